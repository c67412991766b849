package bus

import (
	"testing"
	"time"
)

func TestDedupeCache(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	c := NewDedupeCache(time.Minute, 3)
	c.now = func() time.Time { return now }

	if c.IsDuplicate("a") {
		t.Fatal("first sighting reported as duplicate")
	}
	if !c.IsDuplicate("a") {
		t.Fatal("second sighting not reported")
	}
	if c.IsDuplicate("") || c.IsDuplicate("") {
		t.Fatal("empty key must never be a duplicate")
	}

	now = now.Add(61 * time.Second)
	if c.IsDuplicate("a") {
		t.Error("expired key still reported as duplicate")
	}

	c.IsDuplicate("b")
	c.IsDuplicate("c")
	c.IsDuplicate("d") // evicts "a"
	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
	if c.IsDuplicate("a") {
		t.Error("evicted key still reported as duplicate")
	}

	c.Forget("d")
	if c.IsDuplicate("d") {
		t.Error("forgotten key still reported as duplicate")
	}
}

func TestInboundMessageKeys(t *testing.T) {
	tests := []struct {
		name     string
		msg      InboundMessage
		wantConv string
		wantKey  string
	}{
		{
			name:     "chat id",
			msg:      InboundMessage{Channel: "wati", SenderID: "503", ChatID: "503", MessageID: "m1"},
			wantConv: "wati:503",
			wantKey:  "wati|503|503|m1",
		},
		{
			name:     "sender fallback",
			msg:      InboundMessage{Channel: "manychat", SenderID: "sub9"},
			wantConv: "manychat:sub9",
			wantKey:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.ConversationID(); got != tt.wantConv {
				t.Errorf("ConversationID = %q, want %q", got, tt.wantConv)
			}
			if got := tt.msg.DedupeKey(); got != tt.wantKey {
				t.Errorf("DedupeKey = %q, want %q", got, tt.wantKey)
			}
		})
	}
}
