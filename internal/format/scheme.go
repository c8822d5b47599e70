package format

// Direction of a change relative to the previous close.
type Direction int

const (
	Flat Direction = iota
	Up
	Down
)

// DirectionOf classifies a change. NaN is flat.
func DirectionOf(change float64) Direction {
	switch {
	case change > 0:
		return Up
	case change < 0:
		return Down
	default:
		return Flat
	}
}

// Scheme is the read-only color scheme handed to renderers. Colors are
// names understood by the output layer ("green", "red", ...).
type Scheme struct {
	Up      string
	Down    string
	Neutral string
}

// DefaultScheme is green for gains and red for losses.
var DefaultScheme = Scheme{Up: "green", Down: "red", Neutral: "white"}

// NewScheme returns a scheme, filling blanks from DefaultScheme.
func NewScheme(up, down string) Scheme {
	s := DefaultScheme
	if up != "" {
		s.Up = up
	}
	if down != "" {
		s.Down = down
	}
	return s
}

// ColorFor returns the scheme color for a change.
func (s Scheme) ColorFor(change float64) string {
	switch DirectionOf(change) {
	case Up:
		return s.Up
	case Down:
		return s.Down
	default:
		return s.Neutral
	}
}
