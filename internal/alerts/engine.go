// Package alerts evaluates one-shot price alerts against fresh quotes.
package alerts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "quotewatch/internal/errors"
	"quotewatch/internal/format"
	"quotewatch/internal/logging"
	"quotewatch/internal/models"
	"quotewatch/internal/notify"
)

// Persister stores and deletes single alerts.
type Persister interface {
	SaveAlert(ctx context.Context, alert *models.Alert) error
	DeleteAlert(ctx context.Context, alertID string) error
}

// Loader reads persisted alerts.
type Loader interface {
	GetAlerts(ctx context.Context) ([]models.Alert, error)
}

// Engine holds alert definitions and fires each at most once.
// An alert moves from active to triggered and never back.
type Engine struct {
	persister Persister
	notifier  notify.Notifier
	logger    zerolog.Logger
	timeout   time.Duration

	mu     sync.Mutex
	alerts []*models.Alert
	now    func() time.Time

	onTrigger func(models.Alert, float64)
	pending   sync.WaitGroup
}

// NewEngine creates an alert engine. persister and notifier may be nil.
func NewEngine(persister Persister, notifier notify.Notifier, logger zerolog.Logger) *Engine {
	return &Engine{
		persister: persister,
		notifier:  notifier,
		logger:    logging.WithComponent(logger, "alerts"),
		timeout:   10 * time.Second,
		now:       time.Now,
	}
}

// SetOnTrigger sets a callback run after an alert fires.
func (e *Engine) SetOnTrigger(fn func(models.Alert, float64)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrigger = fn
}

// SetClock replaces the time source used for CreatedAt and TriggeredAt.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// Load replaces the in-memory alerts with the persisted ones.
func (e *Engine) Load(ctx context.Context, loader Loader) error {
	stored, err := loader.GetAlerts(ctx)
	if err != nil {
		return apperrors.Wrap(err, "loading alerts")
	}

	loaded := make([]*models.Alert, 0, len(stored))
	for i := range stored {
		a := stored[i]
		loaded = append(loaded, &a)
	}

	e.mu.Lock()
	e.alerts = loaded
	e.mu.Unlock()
	return nil
}

// Validate checks an alert definition. Failures match both ErrInvalidAlert
// and ErrInputValidation.
func Validate(a *models.Alert) error {
	if strings.TrimSpace(a.Symbol) == "" {
		return invalid("symbol", a.Symbol, "must not be empty")
	}
	if !a.Condition.Valid() {
		return invalid("condition", a.Condition, "must be above or below")
	}
	if !(a.TargetPrice > 0) {
		return invalid("target_price", a.TargetPrice, "must be positive")
	}
	return nil
}

func invalid(field string, value interface{}, message string) error {
	return fmt.Errorf("%w: %w", apperrors.ErrInvalidAlert, apperrors.NewValidationError(field, value, message))
}

// Add adds an alert to evaluate.
func (e *Engine) Add(a *models.Alert) error {
	if err := Validate(a); err != nil {
		return err
	}
	a.Symbol = strings.ToUpper(strings.TrimSpace(a.Symbol))

	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts = append(e.alerts, a)
	return nil
}

// Create builds, adds and persists a new active alert.
func (e *Engine) Create(ctx context.Context, symbol string, condition models.AlertCondition, target float64) (*models.Alert, error) {
	e.mu.Lock()
	now := e.now()
	e.mu.Unlock()

	a := &models.Alert{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Condition:   condition,
		TargetPrice: target,
		CreatedAt:   now,
	}
	if err := e.Add(a); err != nil {
		return nil, err
	}

	if e.persister != nil {
		saved := *a
		if err := e.persister.SaveAlert(ctx, &saved); err != nil {
			return a, apperrors.Wrap(err, "persisting alert")
		}
	}
	return a, nil
}

// Remove drops an alert by ID and deletes it from the persister. The
// in-memory removal happens first so change listeners see the new active
// set; a failed delete puts the alert back.
func (e *Engine) Remove(ctx context.Context, alertID string) error {
	e.mu.Lock()
	idx := -1
	for i, a := range e.alerts {
		if a.ID == alertID {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return fmt.Errorf("alert %s: %w", alertID, apperrors.ErrAlertNotFound)
	}
	removed := e.alerts[idx]
	e.alerts = append(e.alerts[:idx:idx], e.alerts[idx+1:]...)
	e.mu.Unlock()

	if e.persister == nil {
		return nil
	}
	if err := e.persister.DeleteAlert(ctx, alertID); err != nil {
		e.mu.Lock()
		e.alerts = append(e.alerts, removed)
		e.mu.Unlock()
		return apperrors.Wrap(err, "deleting alert")
	}
	return nil
}

// Alerts returns copies of all alerts, triggered ones included.
func (e *Engine) Alerts() []models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.Alert, 0, len(e.alerts))
	for _, a := range e.alerts {
		out = append(out, *a)
	}
	return out
}

// ActiveSymbols returns the sorted symbols with at least one active alert.
func (e *Engine) ActiveSymbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]bool)
	var symbols []string
	for _, a := range e.alerts {
		if !a.Triggered && !seen[a.Symbol] {
			seen[a.Symbol] = true
			symbols = append(symbols, a.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// ActiveCount returns the number of active alerts.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, a := range e.alerts {
		if !a.Triggered {
			n++
		}
	}
	return n
}

// Evaluate checks one alert against a price and fires it if the condition
// holds. Both conditions are inclusive: a price exactly at target fires.
// A triggered alert is never evaluated again. It reports whether it fired.
func (e *Engine) Evaluate(a *models.Alert, price float64) bool {
	return e.evaluate(a, price, "")
}

// EvaluateBatch evaluates every active alert once against the quote for its
// symbol. Alerts whose symbol has no quote are skipped. It returns the
// number of alerts fired.
func (e *Engine) EvaluateBatch(quotes map[string]models.Quote) int {
	e.mu.Lock()
	active := make([]*models.Alert, 0, len(e.alerts))
	for _, a := range e.alerts {
		if !a.Triggered {
			active = append(active, a)
		}
	}
	e.mu.Unlock()

	fired := 0
	for _, a := range active {
		q, ok := quotes[a.Symbol]
		if !ok {
			continue
		}
		if e.evaluate(a, q.Price, q.Currency) {
			fired++
		}
	}
	return fired
}

// EvaluateQuote evaluates only the alerts for the quote's symbol.
func (e *Engine) EvaluateQuote(q models.Quote) int {
	return e.EvaluateBatch(map[string]models.Quote{q.Symbol: q})
}

func (e *Engine) evaluate(a *models.Alert, price float64, currency string) bool {
	e.mu.Lock()
	if a.Triggered || !crossed(a, price) {
		e.mu.Unlock()
		return false
	}

	a.Triggered = true
	now := e.now()
	a.TriggeredAt = &now
	fired := *a
	onTrigger := e.onTrigger
	e.mu.Unlock()

	logging.LogAlert(e.logger, fired.ID, fired.Symbol, string(fired.Condition), fired.TargetPrice, price)
	e.dispatch(fired, price, currency)

	if onTrigger != nil {
		onTrigger(fired, price)
	}
	return true
}

// crossed reports whether price satisfies the alert condition.
func crossed(a *models.Alert, price float64) bool {
	switch a.Condition {
	case models.AlertAbove:
		return price >= a.TargetPrice
	case models.AlertBelow:
		return price <= a.TargetPrice
	default:
		return false
	}
}

// dispatch persists the fired alert and sends the notification without
// blocking evaluation. Only the fired row is written, so concurrent
// dispatches touch disjoint alerts. Failures are logged and not retried.
func (e *Engine) dispatch(a models.Alert, price float64, currency string) {
	title, message := Message(a, price, currency)

	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		if e.persister != nil {
			if err := e.persister.SaveAlert(ctx, &a); err != nil {
				e.logger.Error().Err(err).Str("alert_id", a.ID).Msg("Failed to persist triggered alert")
			}
		}
		if e.notifier != nil {
			if err := e.notifier.Notify(ctx, title, message); err != nil {
				e.logger.Error().Err(err).Str("alert_id", a.ID).Msg("Failed to send alert notification")
			}
		}
	}()
}

// Wait blocks until pending persistence and notification work is done.
func (e *Engine) Wait() {
	e.pending.Wait()
}

// Message builds the notification title and body for a fired alert.
func Message(a models.Alert, price float64, currency string) (title, message string) {
	title = fmt.Sprintf("Price alert: %s", a.Symbol)
	message = fmt.Sprintf("%s is %s %s, now %s",
		a.Symbol,
		a.Condition,
		format.FormatPrice(a.TargetPrice, currency),
		format.FormatPrice(price, currency),
	)
	return title, message
}
