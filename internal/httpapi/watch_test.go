package httpapi

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/rolodexhq/rolodex/internal/contact"
)

func TestHubPublishNeverBlocks(t *testing.T) {
	hub := NewHub(nil)
	ch := hub.subscribe()
	defer hub.unsubscribe(ch)

	// Overflow the subscriber buffer; Publish must keep returning.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			hub.Publish(contact.ChangeEvent{EventID: "e", Type: contact.ChangeUpdated})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(nil)
	ch := hub.subscribe()
	hub.unsubscribe(ch)
	hub.Publish(contact.ChangeEvent{EventID: "e1"})
	select {
	case ev := <-ch:
		t.Fatalf("received %+v after unsubscribe", ev)
	default:
	}
}

func TestWatchStreamsChangeEvents(t *testing.T) {
	dir := fixtureDirectory()
	source := newTestServer(t, dir, ServerConfig{})
	ts := httptest.NewServer(source)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+ts.URL[len("http"):]+"/v1/contacts/watch", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Give the server a moment to register the subscriber.
	time.Sleep(50 * time.Millisecond)
	source.hub.Publish(contact.ChangeEvent{
		EventID:   "ev-1",
		Type:      contact.ChangeUpdated,
		ContactID: "c1",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})

	var ev contact.ChangeEvent
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.EventID != "ev-1" || ev.Type != contact.ChangeUpdated || ev.ContactID != "c1" {
		t.Errorf("event = %+v", ev)
	}
}
