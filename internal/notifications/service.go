package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"royalties/internal/config"
)

const userAgent = "royalties/0.1"

// Event names a notification type.
type Event string

const (
	EventStatementCompleted Event = "statement_completed"
	EventReviewRequired     Event = "review_required"
	EventStatementFailed    Event = "statement_failed"
	EventTest               Event = "test"
)

// Payload carries event fields. Values are formatted with %v.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, p Payload) (message, bool) {
	id := p.text("statementId")
	switch event {
	case EventStatementCompleted:
		return message{
			title: "Royalties - Statement Processed",
			body: fmt.Sprintf("✅ Statement %s: %s rows, %s exact, %s fuzzy, %s unmatched",
				id, p.text("rows"), p.text("exact"), p.text("fuzzy"), p.text("unmatched")),
			tags: []string{"royalties", "statement", "completed"},
		}, true
	case EventReviewRequired:
		return message{
			title: "Royalties - Review Required",
			body:  fmt.Sprintf("📝 Statement %s: %s rows need review", id, p.text("items")),
			tags:  []string{"royalties", "review"},
		}, true
	case EventStatementFailed:
		return message{
			title:    "Royalties - Statement Failed",
			body:     fmt.Sprintf("❌ Statement %s failed: %s", id, p.text("error")),
			tags:     []string{"royalties", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Royalties - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"royalties", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (p Payload) text(key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return "?"
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
