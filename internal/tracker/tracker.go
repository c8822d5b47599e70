// Package tracker keeps the scheduler's symbol set equal to the union of
// portfolio holdings, watchlists and symbols with active alerts.
package tracker

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "quotewatch/internal/errors"
	"quotewatch/internal/logging"
	"quotewatch/internal/models"
	"quotewatch/internal/store"
)

// Membership is the part of the store the tracker reads.
type Membership interface {
	GetHoldings(ctx context.Context) ([]models.Holding, error)
	GetAllWatchlists(ctx context.Context) (map[string][]string, error)
	OnChange(fn func(store.Change)) func()
}

// AlertSymbols lists symbols that still have an active alert.
type AlertSymbols interface {
	ActiveSymbols() []string
}

// Reconciler receives the full tracked set.
type Reconciler interface {
	Reconcile(symbols []string) error
}

// Tracker pushes membership changes to the scheduler as they are committed.
type Tracker struct {
	store   Membership
	alerts  AlertSymbols
	target  Reconciler
	logger  zerolog.Logger
	timeout time.Duration

	// refreshMu spans both the store read and the reconcile, so the last
	// union applied is always the last one read.
	refreshMu sync.Mutex

	mu      sync.Mutex
	symbols []string
	unsub   func()
}

// New creates a tracker. alerts may be nil.
func New(m Membership, alerts AlertSymbols, target Reconciler, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:   m,
		alerts:  alerts,
		target:  target,
		logger:  logging.WithComponent(logger, "tracker"),
		timeout: 5 * time.Second,
	}
}

// Start performs the initial reconcile and subscribes to store changes.
func (t *Tracker) Start(ctx context.Context) error {
	if err := t.Refresh(ctx); err != nil {
		return err
	}

	unsub := t.store.OnChange(func(c store.Change) {
		rctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := t.Refresh(rctx); err != nil {
			if apperrors.Is(err, apperrors.ErrSchedulerDisposed) {
				return
			}
			t.logger.Error().Err(err).Str("change", string(c.Kind)).Msg("Failed to reconcile tracked symbols")
		}
	})

	t.mu.Lock()
	t.unsub = unsub
	t.mu.Unlock()
	return nil
}

// Stop unsubscribes from the store.
func (t *Tracker) Stop() {
	t.mu.Lock()
	unsub := t.unsub
	t.unsub = nil
	t.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Refresh recomputes the union and hands it to the scheduler.
func (t *Tracker) Refresh(ctx context.Context) error {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()

	symbols, err := t.Union(ctx)
	if err != nil {
		return err
	}
	if err := t.target.Reconcile(symbols); err != nil {
		return apperrors.Wrap(err, "reconciling tracked symbols")
	}

	t.mu.Lock()
	t.symbols = symbols
	t.mu.Unlock()
	return nil
}

// Union returns the sorted, de-duplicated tracked set.
func (t *Tracker) Union(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	add := func(sym string) {
		if s := strings.ToUpper(strings.TrimSpace(sym)); s != "" {
			seen[s] = true
		}
	}

	holdings, err := t.store.GetHoldings(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "reading holdings")
	}
	for _, h := range holdings {
		add(h.Symbol)
	}

	lists, err := t.store.GetAllWatchlists(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "reading watchlists")
	}
	for _, syms := range lists {
		for _, s := range syms {
			add(s)
		}
	}

	if t.alerts != nil {
		for _, s := range t.alerts.ActiveSymbols() {
			add(s)
		}
	}

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// Symbols returns the set applied by the last successful refresh.
func (t *Tracker) Symbols() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.symbols...)
}
