// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "quotewatch/internal/errors"
	"quotewatch/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB

	listenersMu sync.RWMutex
	listeners   map[int]func(Change)
	nextID      int
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", apperrors.ErrDatabaseError, dbPath, err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		listeners: make(map[int]func(Change)),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initializing schema: %w", apperrors.ErrDatabaseError, err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Portfolio holdings
	CREATE TABLE IF NOT EXISTS holdings (
		symbol TEXT PRIMARY KEY,
		quantity REAL NOT NULL,
		cost_basis REAL NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'USD',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Watchlist table
	CREATE TABLE IF NOT EXISTS watchlist (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		list_name TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, list_name)
	);

	-- Alerts table
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		condition TEXT NOT NULL,
		target_price REAL NOT NULL,
		triggered INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL,
		triggered_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_symbol ON alerts(symbol);
	CREATE INDEX IF NOT EXISTS idx_watchlist_list ON watchlist(list_name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// OnChange registers a change listener.
func (s *SQLiteStore) OnChange(fn func(Change)) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *SQLiteStore) emit(c Change) {
	s.listenersMu.RLock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ============================================================================
// Portfolio Methods
// ============================================================================

// AddHolding inserts or replaces a holding.
func (s *SQLiteStore) AddHolding(ctx context.Context, h models.Holding) error {
	symbol := normalizeSymbol(h.Symbol)
	if symbol == "" {
		return apperrors.NewValidationError("symbol", h.Symbol, "must not be empty")
	}
	if h.Currency == "" {
		h.Currency = "USD"
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO holdings (symbol, quantity, cost_basis, currency, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, symbol, h.Quantity, h.CostBasis, strings.ToUpper(h.Currency), h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save holding: %w", err)
	}

	s.emit(Change{Kind: ChangePortfolio, Symbol: symbol})
	return nil
}

// RemoveHolding deletes a holding.
func (s *SQLiteStore) RemoveHolding(ctx context.Context, symbol string) error {
	symbol = normalizeSymbol(symbol)
	result, err := s.db.ExecContext(ctx, `DELETE FROM holdings WHERE symbol = ?`, symbol)
	if err != nil {
		return fmt.Errorf("failed to remove holding: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("holding %s: %w", symbol, apperrors.ErrSymbolNotFound)
	}

	s.emit(Change{Kind: ChangePortfolio, Symbol: symbol})
	return nil
}

// GetHoldings retrieves all holdings.
func (s *SQLiteStore) GetHoldings(ctx context.Context) ([]models.Holding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, quantity, cost_basis, currency, created_at
		FROM holdings ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []models.Holding
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.Symbol, &h.Quantity, &h.CostBasis, &h.Currency, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}

	return holdings, rows.Err()
}

// ============================================================================
// Watchlist Methods
// ============================================================================

// AddToWatchlist adds a symbol to a watchlist.
func (s *SQLiteStore) AddToWatchlist(ctx context.Context, symbol, listName string) error {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return apperrors.NewValidationError("symbol", symbol, "must not be empty")
	}
	if listName == "" {
		listName = DefaultWatchlist
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO watchlist (symbol, list_name) VALUES (?, ?)
	`, symbol, listName)
	if err != nil {
		return fmt.Errorf("failed to add to watchlist: %w", err)
	}

	s.emit(Change{Kind: ChangeWatchlist, Symbol: symbol})
	return nil
}

// RemoveFromWatchlist removes a symbol from a watchlist.
func (s *SQLiteStore) RemoveFromWatchlist(ctx context.Context, symbol, listName string) error {
	symbol = normalizeSymbol(symbol)
	if listName == "" {
		listName = DefaultWatchlist
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM watchlist WHERE symbol = ? AND list_name = ?
	`, symbol, listName)
	if err != nil {
		return fmt.Errorf("failed to remove from watchlist: %w", err)
	}

	s.emit(Change{Kind: ChangeWatchlist, Symbol: symbol})
	return nil
}

// GetWatchlist retrieves symbols in a watchlist.
func (s *SQLiteStore) GetWatchlist(ctx context.Context, listName string) ([]string, error) {
	if listName == "" {
		listName = DefaultWatchlist
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol FROM watchlist WHERE list_name = ? ORDER BY created_at ASC, id ASC
	`, listName)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}

	return symbols, rows.Err()
}

// GetAllWatchlists retrieves all watchlists.
func (s *SQLiteStore) GetAllWatchlists(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT list_name, symbol FROM watchlist ORDER BY list_name, created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlists: %w", err)
	}
	defer rows.Close()

	watchlists := make(map[string][]string)
	for rows.Next() {
		var listName, symbol string
		if err := rows.Scan(&listName, &symbol); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist entry: %w", err)
		}
		watchlists[listName] = append(watchlists[listName], symbol)
	}

	return watchlists, rows.Err()
}

// ============================================================================
// Alerts Methods
// ============================================================================

// upsertAlert never clears triggered: a stale write that commits after a
// newer one cannot re-arm a fired alert.
const upsertAlert = `
	INSERT INTO alerts (id, symbol, condition, target_price, triggered, created_at, triggered_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		symbol = excluded.symbol,
		condition = excluded.condition,
		target_price = excluded.target_price,
		triggered = MAX(alerts.triggered, excluded.triggered),
		created_at = excluded.created_at,
		triggered_at = COALESCE(alerts.triggered_at, excluded.triggered_at)
`

func alertArgs(a *models.Alert) []interface{} {
	triggered := 0
	if a.Triggered {
		triggered = 1
	}
	return []interface{}{a.ID, normalizeSymbol(a.Symbol), string(a.Condition), a.TargetPrice, triggered, a.CreatedAt, a.TriggeredAt}
}

// SaveAlert saves an alert to the database.
func (s *SQLiteStore) SaveAlert(ctx context.Context, alert *models.Alert) error {
	if _, err := s.db.ExecContext(ctx, upsertAlert, alertArgs(alert)...); err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}

	s.emit(Change{Kind: ChangeAlerts, Symbol: normalizeSymbol(alert.Symbol)})
	return nil
}

// SaveAlerts saves a list of alerts in one transaction.
func (s *SQLiteStore) SaveAlerts(ctx context.Context, alerts []*models.Alert) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertAlert)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		if _, err := stmt.ExecContext(ctx, alertArgs(a)...); err != nil {
			return fmt.Errorf("failed to save alert %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alerts: %w", err)
	}

	s.emit(Change{Kind: ChangeAlerts})
	return nil
}

// GetAlerts retrieves all alerts, triggered ones included.
func (s *SQLiteStore) GetAlerts(ctx context.Context) ([]models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, condition, target_price, triggered, created_at, triggered_at
		FROM alerts ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var triggered int
		var condition string
		var triggeredAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.Symbol, &condition, &a.TargetPrice, &triggered, &a.CreatedAt, &triggeredAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Condition = models.AlertCondition(condition)
		a.Triggered = triggered == 1
		if triggeredAt.Valid {
			t := triggeredAt.Time
			a.TriggeredAt = &t
		}
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

// DeleteAlert removes an alert.
func (s *SQLiteStore) DeleteAlert(ctx context.Context, alertID string) error {
	var symbol string
	err := s.db.QueryRowContext(ctx, `SELECT symbol FROM alerts WHERE id = ?`, alertID).Scan(&symbol)
	if err == sql.ErrNoRows {
		return fmt.Errorf("alert %s: %w", alertID, apperrors.ErrAlertNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up alert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, alertID); err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}

	s.emit(Change{Kind: ChangeAlerts, Symbol: symbol})
	return nil
}
