package processor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hacastro22/watibot3-sub002/internal/debounce"
	"github.com/hacastro22/watibot3-sub002/internal/store"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func testBatch() debounce.Batch {
	return debounce.Batch{
		ConversationID: "wati:503",
		OriginalStart:  t0,
		LookbackSince:  t0.Add(-2 * time.Second),
		Cycle:          2,
		Messages: []store.BufferedMessage{
			{ID: "a", Channel: "wati", SenderID: "503", Content: "Hola", ArrivedAt: t0},
			{ID: "b", Channel: "wati", SenderID: "503", Content: "Quiero reservar", ArrivedAt: t0.Add(34 * time.Second)},
		},
	}
}

func TestHTTPProcess(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"reply":"¡Claro! ¿Para qué fecha?"}`))
	}))
	defer srv.Close()

	p := NewHTTP(srv.URL, "k", 5*time.Second)
	resp, err := p.Process(context.Background(), testBatch())
	if err != nil {
		t.Fatal(err)
	}
	if resp.Reply != "¡Claro! ¿Para qué fecha?" {
		t.Errorf("reply = %q", resp.Reply)
	}
	if got.ConversationID != "wati:503" || got.Channel != "wati" || got.Cycle != 2 {
		t.Errorf("request = %+v", got)
	}
	if !got.LookbackSince.Equal(t0.Add(-2 * time.Second)) {
		t.Errorf("lookback_since = %v", got.LookbackSince)
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != "Quiero reservar" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestHTTPProcessErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "server error",
			status: http.StatusBadGateway,
			body:   "upstream down",
			check: func(t *testing.T, err error) {
				var he *HTTPError
				if !errors.As(err, &he) || he.Status != http.StatusBadGateway || he.Body != "upstream down" {
					t.Errorf("err = %v, want HTTPError 502", err)
				}
			},
		},
		{
			name:   "bad json",
			status: http.StatusOK,
			body:   "{not json",
			check: func(t *testing.T, err error) {
				if err == nil {
					t.Error("expected decode error")
				}
			},
		},
		{
			name:   "no content",
			status: http.StatusNoContent,
			check: func(t *testing.T, err error) {
				if err != nil {
					t.Errorf("err = %v, want nil for 204", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			_, err := NewHTTP(srv.URL, "", time.Second).Process(context.Background(), testBatch())
			tt.check(t, err)
		})
	}
}

func TestHTTPProcessTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	if _, err := NewHTTP(srv.URL, "", 50*time.Millisecond).Process(context.Background(), testBatch()); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestLogProcessor(t *testing.T) {
	if _, err := (Log{}).Process(context.Background(), testBatch()); err != nil {
		t.Fatal(err)
	}
}
