package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/voice-autopilot/internal/types"
)

// TicketWebhook files tickets by POSTing to a configured webhook endpoint
// (a tracker inbox, a Zapier hook, or similar).
type TicketWebhook struct {
	url    string
	client *http.Client
}

func NewTicketWebhook(url string) *TicketWebhook {
	return &TicketWebhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateTicket posts the ticket and returns its id: the endpoint-assigned id
// when the response carries one, a locally generated one otherwise.
func (t *TicketWebhook) CreateTicket(ctx context.Context, p *types.TicketPayload) (string, error) {
	body, err := json.Marshal(map[string]any{
		"title":       p.Title,
		"description": p.Description,
		"priority":    p.Priority,
	})
	if err != nil {
		return "", fmt.Errorf("marshal ticket: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ticket post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ticket endpoint returned %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &parsed); err == nil && parsed.ID != "" {
		return parsed.ID, nil
	}
	return uuid.NewString(), nil
}
