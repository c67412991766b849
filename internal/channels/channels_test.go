package channels

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hacastro22/watibot3-sub002/internal/config"
)

func post(body string, secret string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/webhook/x", strings.NewReader(body))
	if secret != "" {
		r.Header.Set(SecretHeader, secret)
	}
	return r
}

func TestWatiParse(t *testing.T) {
	c := NewWatiChannel(nil, "")
	tests := []struct {
		name        string
		body        string
		wantN       int
		wantContent string
		wantErr     error
	}{
		{
			name:        "text",
			body:        `{"id":"m1","waId":"50370001111","text":" Hola ","type":"text","senderName":"Ana","eventType":"message"}`,
			wantN:       1,
			wantContent: "Hola",
		},
		{
			name:        "image",
			body:        `{"id":"m2","waId":"50370001111","type":"image","data":"https://cdn/x.jpg"}`,
			wantN:       1,
			wantContent: "[image] https://cdn/x.jpg",
		},
		{name: "operator echo", body: `{"id":"m3","waId":"503","text":"hi","owner":true}`},
		{name: "status event", body: `{"id":"m4","waId":"503","eventType":"sentMessageDELIVERED"}`},
		{name: "missing waId", body: `{"id":"m5","text":"hi"}`, wantErr: ErrBadPayload},
		{name: "not json", body: `hola`, wantErr: ErrBadPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := c.Parse(post(tt.body, ""))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(msgs) != tt.wantN {
				t.Fatalf("got %d messages, want %d", len(msgs), tt.wantN)
			}
			if tt.wantN == 0 {
				return
			}
			m := msgs[0]
			if m.Content != tt.wantContent {
				t.Errorf("content = %q, want %q", m.Content, tt.wantContent)
			}
			if m.ConversationID() != "wati:50370001111" {
				t.Errorf("conversation = %q", m.ConversationID())
			}
		})
	}
}

func TestManyChatParse(t *testing.T) {
	c := NewManyChatChannel(nil, "")
	msgs, err := c.Parse(post(`{"id":"e1","subscriber_id":123456789,"last_input_text":"Quiero reservar","first_name":"Luis","platform":"instagram"}`, ""))
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages", len(msgs))
	}
	m := msgs[0]
	if m.ConversationID() != "manychat:123456789" || m.Content != "Quiero reservar" {
		t.Errorf("message = %+v", m)
	}
	if m.Metadata["sender_name"] != "Luis" || m.Metadata["platform"] != "instagram" {
		t.Errorf("metadata = %v", m.Metadata)
	}

	if _, err := c.Parse(post(`{"last_input_text":"x"}`, "")); !errors.Is(err, ErrBadPayload) {
		t.Errorf("missing subscriber err = %v", err)
	}
}

func TestGenericParseBatch(t *testing.T) {
	c := NewGenericChannel(nil, "")
	body := `[
		{"conversation_id":"c1","sender_id":"u1","text":"Hola","message_id":"1"},
		{"conversation_id":"c1","sender_id":"u1","text":"  "},
		{"sender_id":"u2","text":"¿Cuánto cuesta?"}
	]`
	msgs, err := c.Parse(post(body, ""))
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (blank skipped)", len(msgs))
	}
	if msgs[1].ConversationID() != "generic:u2" {
		t.Errorf("fallback conversation = %q", msgs[1].ConversationID())
	}

	if _, err := c.Parse(post(`{"text":"orphan"}`, "")); !errors.Is(err, ErrBadPayload) {
		t.Errorf("err = %v, want ErrBadPayload", err)
	}
}

func TestCheckSecret(t *testing.T) {
	c := NewGenericChannel(nil, "s3cret")
	body := `{"conversation_id":"c","text":"x"}`
	if _, err := c.Parse(post(body, "")); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("no secret: err = %v", err)
	}
	if _, err := c.Parse(post(body, "wrong")); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("wrong secret: err = %v", err)
	}
	if _, err := c.Parse(post(body, "s3cret")); err != nil {
		t.Errorf("right secret: err = %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, "/webhook/generic?secret=s3cret", strings.NewReader(body))
	if _, err := c.Parse(r); err != nil {
		t.Errorf("query secret: err = %v", err)
	}
}

func TestIsAllowed(t *testing.T) {
	open := NewBaseChannel("wati", nil, "")
	if !open.IsAllowed("anyone") || open.HasAllowList() {
		t.Error("empty allowlist must allow everyone")
	}
	c := NewBaseChannel("wati", []string{"+50370001111", " 50370002222"}, "")
	tests := []struct {
		sender string
		want   bool
	}{
		{"50370001111", true},
		{"+50370001111", true},
		{"50370002222", true},
		{"50370003333", false},
	}
	for _, tt := range tests {
		if got := c.IsAllowed(tt.sender); got != tt.want {
			t.Errorf("IsAllowed(%q) = %v, want %v", tt.sender, got, tt.want)
		}
	}
}

func TestWebhookRateLimiter(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	r := NewWebhookRateLimiter(3)
	r.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !r.Allow("k") {
			t.Fatalf("request %d rejected within burst", i)
		}
	}
	if r.Allow("k") {
		t.Fatal("fourth request allowed")
	}
	if !r.Allow("other") {
		t.Error("keys must be limited independently")
	}
	now = now.Add(20 * time.Second) // one token per 20s at 3 rpm
	if !r.Allow("k") {
		t.Error("token not refilled")
	}

	if !NewWebhookRateLimiter(0).Allow("k") {
		t.Error("rpm 0 must disable limiting")
	}
}

func TestManagerFromConfig(t *testing.T) {
	m := NewManagerFromConfig(config.ChannelsConfig{
		Wati:    config.WebhookChannelConfig{Enabled: true},
		Generic: config.WebhookChannelConfig{Enabled: true},
	})
	if got := m.GetEnabledChannels(); len(got) != 2 || got[0] != "generic" || got[1] != "wati" {
		t.Fatalf("enabled = %v", got)
	}
	if _, ok := m.GetChannel("manychat"); ok {
		t.Error("disabled channel registered")
	}
	m.UnregisterChannel("wati")
	if _, ok := m.GetChannel("wati"); ok {
		t.Error("UnregisterChannel did not remove adapter")
	}
}
