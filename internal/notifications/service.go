package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"libris/internal/config"
)

const userAgent = "Libris/0.1.0"

// Service defines the notification surface the CLI fans events out to.
type Service interface {
	NotifyRequestCreated(ctx context.Context, username, title, contentType string) error
	NotifyRequestFulfilled(ctx context.Context, username, title string) error
	NotifyRequestRejected(ctx context.Context, username, title, adminNote string) error
	NotifyDeliveryTerminal(ctx context.Context, title, state string) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
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
		events:   cfg.Notifications,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	events   config.Notifications
	client   *http.Client
}

func (n *ntfyService) NotifyRequestCreated(ctx context.Context, username, title, contentType string) error {
	if !n.events.Created {
		return nil
	}
	username = strings.TrimSpace(username)
	title = strings.TrimSpace(title)
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = "book"
	}
	data := payload{
		title:   "Libris - New Request",
		message: fmt.Sprintf("%s requested: %s (%s)", username, title, contentType),
		tags:    []string{"libris", "request", "created"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRequestFulfilled(ctx context.Context, username, title string) error {
	if !n.events.Fulfilled {
		return nil
	}
	username = strings.TrimSpace(username)
	title = strings.TrimSpace(title)
	data := payload{
		title:   "Libris - Request Fulfilled",
		message: fmt.Sprintf("Approved for %s: %s", username, title),
		tags:    []string{"libris", "request", "fulfilled"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRequestRejected(ctx context.Context, username, title, adminNote string) error {
	if !n.events.Rejected {
		return nil
	}
	username = strings.TrimSpace(username)
	title = strings.TrimSpace(title)
	message := fmt.Sprintf("Rejected for %s: %s", username, title)
	if adminNote = strings.TrimSpace(adminNote); adminNote != "" {
		message = fmt.Sprintf("%s\nReason: %s", message, adminNote)
	}
	data := payload{
		title:   "Libris - Request Rejected",
		message: message,
		tags:    []string{"libris", "request", "rejected"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDeliveryTerminal(ctx context.Context, title, state string) error {
	if !n.events.Delivery {
		return nil
	}
	title = strings.TrimSpace(title)
	state = strings.TrimSpace(state)

	var data payload
	switch state {
	case "complete":
		data = payload{
			title:    "Libris - Delivered",
			message:  fmt.Sprintf("Ready to read: %s", title),
			tags:     []string{"libris", "delivery", "complete"},
			priority: "high",
		}
	default:
		data = payload{
			title:   "Libris - Delivery " + state,
			message: fmt.Sprintf("Delivery ended as %s: %s", state, title),
			tags:    []string{"libris", "delivery", state},
		}
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.events.Errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Libris - Error",
		message:  builder.String(),
		tags:     []string{"libris", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Libris - Test",
		message:  "Notification system test",
		tags:     []string{"libris", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
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

func (noopService) NotifyRequestCreated(context.Context, string, string, string) error { return nil }
func (noopService) NotifyRequestFulfilled(context.Context, string, string) error       { return nil }
func (noopService) NotifyRequestRejected(context.Context, string, string, string) error {
	return nil
}
func (noopService) NotifyDeliveryTerminal(context.Context, string, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error             { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
