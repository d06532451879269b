package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
)

func testHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := testHub()
	c := NewClient(hub, nil, 1)

	hub.Register(c)
	if n := hub.RoomSize(1); n != 1 {
		t.Errorf("room size = %d, want 1", n)
	}

	hub.Unregister(c)
	if n := hub.RoomSize(1); n != 0 {
		t.Errorf("room size = %d, want 0", n)
	}

	// Channel closes on unregister.
	if _, ok := <-c.send; ok {
		t.Error("send channel should be closed")
	}
}

func TestHubUnregisterTwice(t *testing.T) {
	hub := testHub()
	c := NewClient(hub, nil, 1)

	hub.Register(c)
	hub.Unregister(c)
	// A second unregister must not close the channel again.
	hub.Unregister(c)
}

func TestHubBroadcastRoomIsolation(t *testing.T) {
	hub := testHub()
	watcher := NewClient(hub, nil, 1)
	bystander := NewClient(hub, nil, 2)
	hub.Register(watcher)
	hub.Register(bystander)

	hub.Broadcast(NewMessage("item", "created", 1, 42, nil))

	select {
	case data := <-watcher.send:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		if msg.Type != "item_created" {
			t.Errorf("type = %q, want %q", msg.Type, "item_created")
		}
		if msg.ListID != 1 || msg.ID != 42 {
			t.Errorf("listId/id = %d/%d, want 1/42", msg.ListID, msg.ID)
		}
	default:
		t.Fatal("watcher should have received the broadcast")
	}

	select {
	case <-bystander.send:
		t.Fatal("client in another room should not receive the broadcast")
	default:
	}
}

func TestHubBroadcastDropsWhenFull(t *testing.T) {
	hub := testHub()
	c := NewClient(hub, nil, 1)
	hub.Register(c)

	// Nobody is draining the channel; overflow must not block.
	for i := 0; i < sendBufferSize+5; i++ {
		hub.Broadcast(NewMessage("item", "updated", 1, int64(i), nil))
	}

	if len(c.send) != sendBufferSize {
		t.Errorf("buffered = %d, want %d", len(c.send), sendBufferSize)
	}
}
