// Package notify provides notification delivery for triggered alerts.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quotewatch/internal/config"
	"quotewatch/internal/resilience"
)

// Notifier delivers a human-readable notification. Callers treat it as
// fire-and-forget: a returned error is logged, never retried.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationAlert NotificationType = "alert"
	NotificationError NotificationType = "error"
	NotificationInfo  NotificationType = "info"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll        NotificationLevel = "all"
	LevelAlertsOnly NotificationLevel = "alerts_only"
	LevelErrorsOnly NotificationLevel = "errors_only"
)

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
	mu       sync.RWMutex
}

// NewMultiNotifier creates a new MultiNotifier with the given configuration.
func NewMultiNotifier(cfg config.NotificationConfig, logger zerolog.Logger) *MultiNotifier {
	mn := &MultiNotifier{
		channels: make([]NotificationChannel, 0),
		level:    NotificationLevel(cfg.Level),
	}

	if mn.level == "" {
		mn.level = LevelAll
	}
	if !cfg.Enabled {
		return mn
	}

	mn.channels = append(mn.channels, NewLogChannel(logger))
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookChannel(cfg.Webhook))
	}

	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// shouldSend checks if a notification should be sent based on the level filter.
func (mn *MultiNotifier) shouldSend(notifType NotificationType) bool {
	switch mn.level {
	case LevelAlertsOnly:
		return notifType == NotificationAlert
	case LevelErrorsOnly:
		return notifType == NotificationError
	default:
		return true
	}
}

// Notify sends an alert notification.
func (mn *MultiNotifier) Notify(ctx context.Context, title, message string) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationAlert,
		Title:   title,
		Message: message,
	})
}

// Send sends a notification to all enabled channels.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if ch.IsEnabled() {
			if err := ch.Send(ctx, n); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SourceStateNotification describes a quote source circuit change. Only the
// first opening and the recovery are reported; a failed probe that re-opens
// the circuit is not.
func SourceStateNotification(source string, from, to resilience.CircuitState, lastErr error) (Notification, bool) {
	switch {
	case from == resilience.CircuitClosed && to == resilience.CircuitOpen:
		msg := fmt.Sprintf("%s is failing, keeping last quotes", source)
		if lastErr != nil {
			msg += ": " + lastErr.Error()
		}
		return Notification{Type: NotificationError, Title: "Quote source unavailable", Message: msg}, true
	case to == resilience.CircuitClosed:
		return Notification{
			Type:    NotificationInfo,
			Title:   "Quote source recovered",
			Message: fmt.Sprintf("%s is responding again", source),
		}, true
	default:
		return Notification{}, false
	}
}

type webhookPayload struct {
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp string           `json:"timestamp"`
	Source    string           `json:"source"`
}

// WebhookChannel posts notifications as JSON to a configured URL.
type WebhookChannel struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookChannel creates a new WebhookChannel.
func NewWebhookChannel(cfg config.WebhookConfig) *WebhookChannel {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the name of the channel.
func (w *WebhookChannel) Name() string {
	return "webhook"
}

// IsEnabled returns whether the channel is enabled.
func (w *WebhookChannel) IsEnabled() bool {
	return w.enabled
}

// Send sends a notification via webhook.
func (w *WebhookChannel) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}

	body, err := json.Marshal(webhookPayload{
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Timestamp: n.Timestamp.UTC().Format(time.RFC3339),
		Source:    "quotewatch",
	})
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "quotewatch")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// LogChannel writes notifications to the structured log.
type LogChannel struct {
	logger zerolog.Logger
}

// NewLogChannel creates a new LogChannel.
func NewLogChannel(logger zerolog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Name returns the name of the channel.
func (l *LogChannel) Name() string {
	return "log"
}

// IsEnabled returns whether the channel is enabled.
func (l *LogChannel) IsEnabled() bool {
	return true
}

// Send logs the notification.
func (l *LogChannel) Send(_ context.Context, n Notification) error {
	l.logger.Info().
		Str("event", "notification").
		Str("type", string(n.Type)).
		Str("title", n.Title).
		Msg(n.Message)
	return nil
}
