package persist

import (
	"fmt"
	"time"

	"github.com/matheus3301/glasschat/internal/store"
)

// ReplaceConversations overwrites the persisted inbox snapshot with the
// given list, preserving its order. Search results and unconfirmed
// temporary entries are never passed here.
func (db *DB) ReplaceConversations(convs []store.Conversation) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM conversations`); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO conversations (id, name, avatar, last_message, last_message_at, unread_count, kind, partner_id, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, c := range convs {
		var at int64
		if !c.LastMessageAt.IsZero() {
			at = c.LastMessageAt.UnixMilli()
		}
		if _, err := stmt.Exec(c.ID, c.Name, c.Avatar, c.LastMessage, at, c.UnreadCount, string(c.Kind), c.PartnerID, i); err != nil {
			return fmt.Errorf("insert conversation %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// LoadConversations returns the persisted inbox snapshot in its saved
// order. Presence flags are not persisted; every entry loads offline.
func (db *DB) LoadConversations() ([]store.Conversation, error) {
	rows, err := db.Query(`
		SELECT id, name, avatar, last_message, last_message_at, unread_count, kind, partner_id
		FROM conversations
		ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []store.Conversation
	for rows.Next() {
		var c store.Conversation
		var at int64
		var kind string
		if err := rows.Scan(&c.ID, &c.Name, &c.Avatar, &c.LastMessage, &at, &c.UnreadCount, &kind, &c.PartnerID); err != nil {
			return nil, err
		}
		if at > 0 {
			c.LastMessageAt = time.UnixMilli(at)
		}
		c.Kind = store.ConversationKind(kind)
		convs = append(convs, c)
	}
	return convs, rows.Err()
}
