// Package scheduler polls the quote source for every tracked symbol at an
// adaptive cadence and fans fresh quotes out to listeners and alerts.
//
// A single driving clock ticks at a fixed resolution. Each symbol has its
// own due time; on every tick the entries that are due start a cycle:
// fetch, normalize, dispatch, evaluate alerts. At most one cycle per symbol
// is in flight. A tick that finds the previous cycle still running is
// skipped, not queued, so the effective cadence slows under a slow source.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quotewatch/internal/config"
	apperrors "quotewatch/internal/errors"
	"quotewatch/internal/logging"
	"quotewatch/internal/market"
	"quotewatch/internal/models"
	"quotewatch/internal/quotes"
)

// QuoteFetcher fetches a single quote.
type QuoteFetcher interface {
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
}

// Calendar reports whether any tracked market is trading.
type Calendar interface {
	IsAnyMarketActive(now time.Time) bool
}

// AlertEvaluator evaluates the alerts for a quote's symbol.
type AlertEvaluator interface {
	EvaluateQuote(q models.Quote) int
}

// Listener receives every fresh quote for a symbol.
type Listener func(symbol string, q models.Quote)

// DefaultConfig returns the standard cadences.
func DefaultConfig() config.SchedulerConfig {
	return config.Default().Scheduler
}

type entry struct {
	symbol    string
	crypto    bool
	cadence   time.Duration
	nextDue   time.Time
	removed   bool
	lastQuote *models.Quote
	index     int
}

// EntryState is a read-only view of one symbol's scheduling state.
type EntryState struct {
	Symbol    string
	Crypto    bool
	Cadence   time.Duration
	NextDue   time.Time
	InFlight  bool
	LastQuote *models.Quote
}

// Scheduler owns the per-symbol polling state.
type Scheduler struct {
	cfg      config.SchedulerConfig
	source   QuoteFetcher
	calendar Calendar
	alerts   AlertEvaluator
	logger   zerolog.Logger
	now      func() time.Time

	mu        sync.Mutex
	entries   map[string]*entry
	queue     dueQueue
	// fetching outlives entries so a symbol removed and re-added while its
	// fetch is open still has only one fetch in flight.
	fetching  map[string]bool
	listeners map[string]map[int]Listener
	nextID    int
	disposed  bool
	stop      chan struct{}
	stopOnce  sync.Once

	cycles sync.WaitGroup
}

// New creates a scheduler. alerts may be nil.
func New(cfg config.SchedulerConfig, source QuoteFetcher, calendar Calendar, alerts AlertEvaluator, logger zerolog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.Resolution <= 0 {
		cfg.Resolution = def.Resolution
	}
	if cfg.CryptoCadence <= 0 {
		cfg.CryptoCadence = def.CryptoCadence
	}
	if cfg.ActiveCadence <= 0 {
		cfg.ActiveCadence = def.ActiveCadence
	}
	if cfg.IdleCadence <= 0 {
		cfg.IdleCadence = def.IdleCadence
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}

	return &Scheduler{
		cfg:       cfg,
		source:    source,
		calendar:  calendar,
		alerts:    alerts,
		logger:    logging.WithComponent(logger, "scheduler"),
		now:       time.Now,
		entries:   make(map[string]*entry),
		fetching:  make(map[string]bool),
		listeners: make(map[string]map[int]Listener),
		stop:      make(chan struct{}),
	}
}

// SetClock replaces the time source used by Reconcile and Run.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// CadenceFor returns the polling period for a symbol at the given time.
// Crypto pairs always poll at the crypto cadence; everything else depends on
// whether any market window is open.
func (s *Scheduler) CadenceFor(symbol string, now time.Time) time.Duration {
	return s.cadence(market.IsCrypto(symbol), now)
}

func (s *Scheduler) cadence(crypto bool, now time.Time) time.Duration {
	if crypto {
		return s.cfg.CryptoCadence
	}
	if s.calendar != nil && s.calendar.IsAnyMarketActive(now) {
		return s.cfg.ActiveCadence
	}
	return s.cfg.IdleCadence
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Reconcile makes the tracked set equal to symbols. New symbols are due
// immediately; symbols no longer present are dropped along with their state.
// Duplicates share one entry.
func (s *Scheduler) Reconcile(symbols []string) error {
	want := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		if n := normalizeSymbol(sym); n != "" {
			want[n] = true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return apperrors.ErrSchedulerDisposed
	}

	now := s.now()
	var added, removed []string

	for sym, e := range s.entries {
		if want[sym] {
			continue
		}
		e.removed = true
		if e.index >= 0 {
			heap.Remove(&s.queue, e.index)
		}
		delete(s.entries, sym)
		removed = append(removed, sym)
	}

	for sym := range want {
		if _, ok := s.entries[sym]; ok {
			continue
		}
		e := &entry{
			symbol:  sym,
			crypto:  market.IsCrypto(sym),
			nextDue: now,
			index:   -1,
		}
		e.cadence = s.cadence(e.crypto, now)
		s.entries[sym] = e
		heap.Push(&s.queue, e)
		added = append(added, sym)
	}

	if len(added) > 0 || len(removed) > 0 {
		sort.Strings(added)
		sort.Strings(removed)
		s.logger.Info().
			Strs("added", added).
			Strs("removed", removed).
			Int("tracked", len(s.entries)).
			Msg("Tracked symbols reconciled")
	}
	return nil
}

// Tick starts a cycle for every entry due at now. An entry is due when its
// due time is within half a resolution of now, which absorbs clock jitter.
func (s *Scheduler) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}

	horizon := now.Add(s.cfg.Resolution / 2)
	var due []*entry
	for e := s.queue.peek(); e != nil && !e.nextDue.After(horizon); e = s.queue.peek() {
		heap.Pop(&s.queue)
		due = append(due, e)
	}

	for _, e := range due {
		// Cadence is re-derived at every cycle start so a calendar change
		// applies to the next due time without a restart.
		e.cadence = s.cadence(e.crypto, now)
		e.nextDue = now.Add(e.cadence)
		heap.Push(&s.queue, e)

		if s.fetching[e.symbol] {
			s.logger.Debug().Str("symbol", e.symbol).Msg("Previous fetch still in flight, skipping tick")
			continue
		}
		s.fetching[e.symbol] = true
		s.cycles.Add(1)
		go s.runCycle(e, now)
	}
}

// runCycle performs one fetch-dispatch-evaluate cycle. Nothing escapes it:
// errors and panics are logged, and the symbol's in-flight mark is always
// cleared.
func (s *Scheduler) runCycle(e *entry, started time.Time) {
	logger := logging.WithSymbol(s.logger, e.symbol)

	defer s.cycles.Done()
	defer func() {
		s.mu.Lock()
		delete(s.fetching, e.symbol)
		s.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Update cycle panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FetchTimeout)
	defer cancel()

	fetchStart := time.Now()
	q, err := s.fetch(ctx, e.symbol)
	if err != nil {
		logging.LogFetchFailure(logger, e.symbol, time.Since(fetchStart), err)
		return
	}
	q = quotes.Normalize(q, started)
	if q.Symbol != e.symbol {
		q.Symbol = e.symbol
	}

	s.mu.Lock()
	if s.disposed || e.removed {
		s.mu.Unlock()
		logger.Debug().Msg("Discarding quote for untracked symbol")
		return
	}
	e.lastQuote = &q
	cadence := e.cadence
	listeners := make([]Listener, 0, len(s.listeners[e.symbol]))
	for _, fn := range s.listeners[e.symbol] {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	logging.LogQuote(logger, e.symbol, q.Price, q.ChangePercent, cadence)

	for _, fn := range listeners {
		s.notifyListener(logger, fn, q)
	}

	if s.alerts != nil {
		s.alerts.EvaluateQuote(q)
	}
}

// fetch calls the source, converting a panic into an error.
func (s *Scheduler) fetch(ctx context.Context, symbol string) (q models.Quote, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.NewFetchError("quote", symbol, fmt.Errorf("source panicked: %v", r))
		}
	}()
	return s.source.GetQuote(ctx, symbol)
}

func (s *Scheduler) notifyListener(logger zerolog.Logger, fn Listener, q models.Quote) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Quote listener panicked")
		}
	}()
	fn(q.Symbol, q)
}

// OnQuoteUpdate registers a listener for a symbol and returns a func that
// removes it.
func (s *Scheduler) OnQuoteUpdate(symbol string, fn Listener) func() {
	symbol = normalizeSymbol(symbol)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.listeners[symbol] == nil {
		s.listeners[symbol] = make(map[int]Listener)
	}
	s.listeners[symbol][id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners[symbol], id)
		if len(s.listeners[symbol]) == 0 {
			delete(s.listeners, symbol)
		}
	}
}

// Run drives the scheduler until ctx is cancelled or Dispose is called,
// then disposes it.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Resolution)
	defer ticker.Stop()
	defer s.Dispose()

	s.mu.Lock()
	now := s.now
	s.mu.Unlock()

	s.Tick(now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.Tick(now())
		}
	}
}

// Dispose cancels all scheduling. In-flight fetches finish but their
// results are discarded. Dispose is idempotent.
func (s *Scheduler) Dispose() {
	s.mu.Lock()
	if !s.disposed {
		s.disposed = true
		for _, e := range s.entries {
			e.removed = true
		}
		s.entries = make(map[string]*entry)
		s.queue = nil
		s.listeners = make(map[string]map[int]Listener)
		s.logger.Debug().Msg("Scheduler disposed")
	}
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stop) })
}

// Disposed reports whether Dispose has been called.
func (s *Scheduler) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Wait blocks until every started cycle has finished.
func (s *Scheduler) Wait() {
	s.cycles.Wait()
}

// LastQuote returns the most recent quote for a symbol.
func (s *Scheduler) LastQuote(symbol string) (models.Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[normalizeSymbol(symbol)]
	if !ok || e.lastQuote == nil {
		return models.Quote{}, false
	}
	return *e.lastQuote, true
}

// Symbols returns the tracked symbols, sorted.
func (s *Scheduler) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.entries))
	for sym := range s.entries {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Entry returns the scheduling state of one symbol.
func (s *Scheduler) Entry(symbol string) (EntryState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[normalizeSymbol(symbol)]
	if !ok {
		return EntryState{}, false
	}
	return s.stateOf(e), true
}

// Snapshot returns the state of every tracked symbol, sorted by symbol.
func (s *Scheduler) Snapshot() []EntryState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]EntryState, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, s.stateOf(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (s *Scheduler) stateOf(e *entry) EntryState {
	st := EntryState{
		Symbol:   e.symbol,
		Crypto:   e.crypto,
		Cadence:  e.cadence,
		NextDue:  e.nextDue,
		InFlight: s.fetching[e.symbol],
	}
	if e.lastQuote != nil {
		q := *e.lastQuote
		st.LastQuote = &q
	}
	return st
}
