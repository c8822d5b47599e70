package models

import "time"

// AlertCondition is the direction an alert watches.
type AlertCondition string

const (
	AlertAbove AlertCondition = "above"
	AlertBelow AlertCondition = "below"
)

// Valid reports whether c is a supported condition.
func (c AlertCondition) Valid() bool {
	return c == AlertAbove || c == AlertBelow
}

// Alert represents a one-shot price alert.
type Alert struct {
	ID          string
	Symbol      string
	Condition   AlertCondition
	TargetPrice float64
	Triggered   bool
	CreatedAt   time.Time
	TriggeredAt *time.Time
}
