package store

import (
	"testing"
	"time"
)

func peerMessage(id, conversationID, content string) Message {
	return Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       "u2",
		Content:        content,
		Kind:           MessageText,
		CreatedAt:      time.Now(),
	}
}

func TestReceiveAppendsAndUpdatesConversation(t *testing.T) {
	st := newTestStore(&fakeAPI{}, &fakeGateway{})
	st.Hydrate([]Conversation{
		{ID: "c1", Kind: ConversationDirect},
		{ID: "c2", Kind: ConversationDirect},
	})

	st.ReceiveMessage(peerMessage("m1", "c2", "hey"))

	if got := st.Messages("c2"); len(got) != 1 || got[0].Status != StatusRead {
		t.Fatalf("messages = %+v", got)
	}
	convs := st.Conversations()
	if convs[0].ID != "c2" {
		t.Fatal("conversation not moved to front")
	}
	if convs[0].LastMessage != "hey" || convs[0].UnreadCount != 1 {
		t.Fatalf("conversation = %+v", convs[0])
	}
}

func TestDuplicatePushAppliedOnce(t *testing.T) {
	st := newTestStore(&fakeAPI{}, &fakeGateway{})
	st.Hydrate([]Conversation{{ID: "c1", Kind: ConversationDirect}})

	msg := peerMessage("m1", "c1", "hey")
	st.ReceiveMessage(msg)
	st.ReceiveMessage(msg)

	if got := st.Messages("c1"); len(got) != 1 {
		t.Fatalf("duplicate push appended: %+v", got)
	}
}

func TestUnreadNotIncrementedForActiveConversation(t *testing.T) {
	st := newTestStore(&fakeAPI{}, &fakeGateway{})
	st.SetConnected(true)
	st.Hydrate([]Conversation{{ID: "c1", Kind: ConversationDirect, UnreadCount: 0}})
	st.SetActiveConversation("c1")

	st.ReceiveMessage(peerMessage("m1", "c1", "hey"))
	if got := st.Conversations()[0].UnreadCount; got != 0 {
		t.Fatalf("unread = %d, want 0 for open conversation", got)
	}
}

func TestOwnMessageToClosedConversationCountsUnread(t *testing.T) {
	st := newTestStore(&fakeAPI{}, &fakeGateway{})
	st.SetConnected(true)
	st.Hydrate([]Conversation{
		{ID: "c1", Kind: ConversationDirect},
		{ID: "c2", Kind: ConversationDirect},
	})
	st.SetActiveConversation("c2")

	// Sent from another device, or the echo landed after switching away:
	// the sender is irrelevant, only the open conversation is exempt.
	msg := peerMessage("m1", "c1", "hi")
	msg.SenderID = "me"
	st.ReceiveMessage(msg)

	if got := st.Conversations()[0].UnreadCount; got != 1 {
		t.Fatalf("unread = %d, want 1 for a closed conversation", got)
	}
}

func TestNonTextPreview(t *testing.T) {
	st := newTestStore(&fakeAPI{}, &fakeGateway{})
	st.Hydrate([]Conversation{{ID: "c1", Kind: ConversationDirect}})

	msg := peerMessage("m1", "c1", "ignored")
	msg.Kind = MessageImage
	st.ReceiveMessage(msg)

	if got := st.Conversations()[0].LastMessage; got != "[image]" {
		t.Fatalf("preview = %q, want [image]", got)
	}
}

func TestUnknownConversationTriggersSingleRefetch(t *testing.T) {
	api := &fakeAPI{}
	release := make(chan struct{})
	api.inboxFn = func(page, limit int, search string) ([]Conversation, PageMeta, error) {
		<-release
		return []Conversation{{ID: "c-new", Kind: ConversationDirect}},
			PageMeta{Page: 1, Limit: limit, Total: 1, TotalPages: 1}, nil
	}
	st := newTestStore(api, &fakeGateway{})

	st.ReceiveMessage(peerMessage("m1", "c-new", "hello"))
	st.ReceiveMessage(peerMessage("m2", "c-new", "again"))
	st.ReceiveMessage(peerMessage("m3", "c-new", "still here"))

	waitFor(t, "refetch to start", func() bool { return api.inboxCallCount() >= 1 })
	time.Sleep(30 * time.Millisecond)
	if got := api.inboxCallCount(); got != 1 {
		t.Fatalf("inbox fetched %d times, want 1", got)
	}

	close(release)
	waitFor(t, "inbox to contain the new conversation", func() bool {
		convs := st.Conversations()
		return len(convs) == 1 && convs[0].ID == "c-new"
	})

	// The pushed messages were kept even while the conversation was unknown.
	if got := st.Messages("c-new"); len(got) != 3 {
		t.Fatalf("messages = %+v, want 3", got)
	}
}

func TestTypingIndicatorExpires(t *testing.T) {
	st := newTestStore(&fakeAPI{}, &fakeGateway{})

	st.SetTypingUser(TypingPayload{ConversationID: "c1", UserID: "u2", IsTyping: true})
	if got := st.TypingUsers("c1"); len(got) != 1 || got[0] != "u2" {
		t.Fatalf("typing = %v", got)
	}

	// Expiry is 60ms in the test store; the lost-stop case self-heals.
	waitFor(t, "typing expiry", func() bool { return len(st.TypingUsers("c1")) == 0 })
}

func TestTypingStartRearmsExpiry(t *testing.T) {
	st := newTestStore(&fakeAPI{}, &fakeGateway{})

	st.SetTypingUser(TypingPayload{ConversationID: "c1", UserID: "u2", IsTyping: true})
	time.Sleep(40 * time.Millisecond)
	st.SetTypingUser(TypingPayload{ConversationID: "c1", UserID: "u2", IsTyping: true})
	time.Sleep(40 * time.Millisecond)
	// 80ms after the first start but only 40ms after the second.
	if got := st.TypingUsers("c1"); len(got) != 1 {
		t.Fatalf("typing = %v, want still typing", got)
	}
}

func TestTypingStopClearsImmediately(t *testing.T) {
	st := newTestStore(&fakeAPI{}, &fakeGateway{})

	st.SetTypingUser(TypingPayload{ConversationID: "c1", UserID: "u2", IsTyping: true})
	st.SetTypingUser(TypingPayload{ConversationID: "c1", UserID: "u3", IsTyping: true})
	st.SetTypingUser(TypingPayload{ConversationID: "c1", UserID: "u2", IsTyping: false})

	if got := st.TypingUsers("c1"); len(got) != 1 || got[0] != "u3" {
		t.Fatalf("typing = %v, want [u3]", got)
	}
}

func TestMessageFromTypingUserClearsIndicator(t *testing.T) {
	st := newTestStore(&fakeAPI{}, &fakeGateway{})
	st.Hydrate([]Conversation{{ID: "c1", Kind: ConversationDirect}})

	st.SetTypingUser(TypingPayload{ConversationID: "c1", UserID: "u2", IsTyping: true})
	st.ReceiveMessage(peerMessage("m1", "c1", "done typing"))

	if got := st.TypingUsers("c1"); len(got) != 0 {
		t.Fatalf("typing = %v, want empty after message", got)
	}
}

func TestUserStatusUpdatesDirectConversations(t *testing.T) {
	st := newTestStore(&fakeAPI{}, &fakeGateway{})
	st.Hydrate([]Conversation{
		{ID: "c1", Kind: ConversationDirect, PartnerID: "u2"},
		{ID: "c2", Kind: ConversationDirect, PartnerID: "u3"},
	})

	st.SetUserStatus(UserStatusPayload{UserID: "u2", IsOnline: true})
	convs := st.Conversations()
	if !convs[0].IsOnline || convs[1].IsOnline {
		t.Fatalf("presence = %v,%v, want true,false", convs[0].IsOnline, convs[1].IsOnline)
	}

	st.SetUserStatus(UserStatusPayload{UserID: "u2", IsOnline: false})
	if st.Conversations()[0].IsOnline {
		t.Fatal("presence not cleared")
	}
}
