// Package store provides persistence for the tracked symbol set and alerts.
package store

import (
	"context"

	"quotewatch/internal/models"
)

// DefaultWatchlist is the list used when none is named.
const DefaultWatchlist = "default"

// ChangeKind identifies which collection changed.
type ChangeKind string

const (
	ChangePortfolio ChangeKind = "portfolio"
	ChangeWatchlist ChangeKind = "watchlist"
	ChangeAlerts    ChangeKind = "alerts"
)

// Change describes a committed mutation.
type Change struct {
	Kind   ChangeKind
	Symbol string
}

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Portfolio
	AddHolding(ctx context.Context, h models.Holding) error
	RemoveHolding(ctx context.Context, symbol string) error
	GetHoldings(ctx context.Context) ([]models.Holding, error)

	// Watchlist
	AddToWatchlist(ctx context.Context, symbol, listName string) error
	RemoveFromWatchlist(ctx context.Context, symbol, listName string) error
	GetWatchlist(ctx context.Context, listName string) ([]string, error)
	GetAllWatchlists(ctx context.Context) (map[string][]string, error)

	// Alerts
	SaveAlert(ctx context.Context, alert *models.Alert) error
	SaveAlerts(ctx context.Context, alerts []*models.Alert) error
	GetAlerts(ctx context.Context) ([]models.Alert, error)
	DeleteAlert(ctx context.Context, alertID string) error

	// OnChange registers fn to run after every committed mutation.
	// The returned func unregisters it.
	OnChange(fn func(Change)) func()

	// Lifecycle
	Close() error
}
