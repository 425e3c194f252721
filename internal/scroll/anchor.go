package scroll

// Thresholds in content units (pixels, rows, whatever the frontend
// measures in).
const (
	// topThreshold is how close to the top the viewport must be before
	// an older page should load.
	topThreshold = 100

	// bottomSlack is how far from the true bottom still counts as "at
	// the bottom" for auto-follow purposes.
	bottomSlack = 32
)

// Anchor keeps a message viewport stable across the two mutations that
// move content under the reader: older pages prepended above, and new
// messages appended below. It is pure bookkeeping; the frontend feeds
// it measurements and applies the offsets it returns.
type Anchor struct {
	autoFollow  bool
	restoring   bool
	savedHeight int
	savedOffset int
}

// NewAnchor starts pinned to the bottom.
func NewAnchor() *Anchor {
	return &Anchor{autoFollow: true}
}

// AutoFollow reports whether new content should snap the view to the
// bottom.
func (a *Anchor) AutoFollow() bool { return a.autoFollow }

// NoteUserScroll records a user-driven scroll. It updates auto-follow
// from the viewport's distance to the bottom and reports whether the
// view is close enough to the top that an older page should load.
func (a *Anchor) NoteUserScroll(offset, contentHeight, viewportHeight int) bool {
	a.autoFollow = offset >= contentHeight-viewportHeight-bottomSlack
	return offset <= topThreshold && !a.restoring
}

// MarkOlderLoading snapshots the geometry just before an older page is
// requested so Resolve can re-anchor once it lands.
func (a *Anchor) MarkOlderLoading(offset, contentHeight int) {
	a.restoring = true
	a.savedOffset = offset
	a.savedHeight = contentHeight
}

// Resolve computes the offset to apply after content changed height.
// A pending older-page restore wins over auto-follow; otherwise the
// view snaps to the bottom only when auto-follow is on. The second
// return reports whether the offset should be applied at all.
func (a *Anchor) Resolve(newContentHeight, viewportHeight int) (int, bool) {
	if a.restoring {
		a.restoring = false
		// Content above the saved position grew by the page height;
		// shift down by the same amount so the same message stays put.
		return a.savedOffset + (newContentHeight - a.savedHeight), true
	}
	if a.autoFollow {
		offset := newContentHeight - viewportHeight
		if offset < 0 {
			offset = 0
		}
		return offset, true
	}
	return 0, false
}
