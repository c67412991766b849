package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hacastro22/watibot3-sub002/internal/debounce"
)

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 2048

// HTTPError is a non-2xx answer from the AI engine.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("processor: engine returned HTTP %d: %s", e.Status, e.Body)
}

type requestMessage struct {
	ID        string            `json:"id"`
	SenderID  string            `json:"sender_id,omitempty"`
	Content   string            `json:"content"`
	ArrivedAt time.Time         `json:"arrived_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type request struct {
	ConversationID string           `json:"conversation_id"`
	Channel        string           `json:"channel,omitempty"`
	OriginalStart  time.Time        `json:"original_start"`
	LookbackSince  time.Time        `json:"lookback_since"`
	Cycle          int              `json:"cycle"`
	Messages       []requestMessage `json:"messages"`
}

// HTTP posts each batch as JSON to an AI engine endpoint and decodes its
// {"reply": ...} answer. It does not retry.
type HTTP struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTP creates an HTTP processor. timeout bounds one batch round trip.
func NewHTTP(url, apiKey string, timeout time.Duration) *HTTP {
	return &HTTP{
		url:    strings.TrimRight(url, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTP) Name() string { return "http" }

func (p *HTTP) Process(ctx context.Context, b debounce.Batch) (debounce.Response, error) {
	body := request{
		ConversationID: b.ConversationID,
		OriginalStart:  b.OriginalStart.UTC(),
		LookbackSince:  b.LookbackSince.UTC(),
		Cycle:          b.Cycle,
		Messages:       make([]requestMessage, len(b.Messages)),
	}
	for i, m := range b.Messages {
		if body.Channel == "" {
			body.Channel = m.Channel
		}
		body.Messages[i] = requestMessage{
			ID:        m.ID,
			SenderID:  m.SenderID,
			Content:   m.Content,
			ArrivedAt: m.ArrivedAt.UTC(),
			Metadata:  m.Metadata,
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return debounce.Response{}, fmt.Errorf("processor: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(data))
	if err != nil {
		return debounce.Response{}, fmt.Errorf("processor: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return debounce.Response{}, fmt.Errorf("processor: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return debounce.Response{}, &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}
	if resp.StatusCode == http.StatusNoContent {
		return debounce.Response{}, nil
	}

	var out debounce.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		return debounce.Response{}, fmt.Errorf("processor: decode response: %w", err)
	}
	return out, nil
}
