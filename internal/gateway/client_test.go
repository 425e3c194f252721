package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/matheus3301/glasschat/internal/store"
	"github.com/matheus3301/glasschat/internal/transport"
)

type recordedEmit struct {
	namespace string
	event     string
	payload   any
}

type fakeTransport struct {
	emits   []recordedEmit
	emitErr error
}

func (f *fakeTransport) Send(namespace, event string, payload any) {
	f.emits = append(f.emits, recordedEmit{namespace, event, payload})
}

func (f *fakeTransport) Emit(ctx context.Context, namespace, event string, payload any) (transport.Response, error) {
	f.emits = append(f.emits, recordedEmit{namespace, event, payload})
	return transport.Response{}, f.emitErr
}

func TestJoinAndLeaveRoomAddressTheRoom(t *testing.T) {
	tp := &fakeTransport{}
	c := NewClient(tp)

	if err := c.JoinRoom(context.Background(), "c1"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if err := c.LeaveRoom(context.Background(), "c1"); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}

	if len(tp.emits) != 2 {
		t.Fatalf("emitted %d events, want 2", len(tp.emits))
	}
	if tp.emits[0].event != EventJoinRoom || tp.emits[1].event != EventLeaveRoom {
		t.Fatalf("events = %s,%s", tp.emits[0].event, tp.emits[1].event)
	}
	for _, e := range tp.emits {
		if e.namespace != transport.NamespaceChat {
			t.Fatalf("namespace = %s", e.namespace)
		}
		if e.payload.(RoomPayload).ConversationID != "c1" {
			t.Fatalf("payload = %+v", e.payload)
		}
	}
}

func TestSendMessageCarriesCorrelationID(t *testing.T) {
	tp := &fakeTransport{}
	c := NewClient(tp)

	if err := c.SendMessage(context.Background(), "c1", "hello", store.MessageText, "temp-1"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	raw, err := json.Marshal(tp.emits[0].payload)
	if err != nil {
		t.Fatal(err)
	}
	var wire map[string]string
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"conversationId": "c1",
		"content":        "hello",
		"type":           "TEXT",
		"tempId":         "temp-1",
	}
	for k, v := range want {
		if wire[k] != v {
			t.Fatalf("wire[%q] = %q, want %q", k, wire[k], v)
		}
	}
}

func TestSendMessageSurfacesNack(t *testing.T) {
	tp := &fakeTransport{emitErr: errors.New("content must not be empty")}
	c := NewClient(tp)
	if err := c.SendMessage(context.Background(), "c1", "", store.MessageText, "temp-1"); err == nil {
		t.Fatal("expected error from rejected send")
	}
}
