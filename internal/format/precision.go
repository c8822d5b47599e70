// Package format renders prices, changes and percentages for display.
//
// Precision scales inversely with magnitude so sub-cent instruments stay
// distinguishable while large prices are not padded with noise digits.
// Every function here is total: NaN and infinities render as zero.
package format

import "math"

// band maps values >= Min to Places decimals.
type band struct {
	Min    float64
	Places int
}

// PrecisionRule is an ordered table of magnitude bands, largest first.
type PrecisionRule struct {
	Name     string
	bands    []band
	fallback int
}

// PriceRule is the precision table for prices.
var PriceRule = PrecisionRule{
	Name: "price",
	bands: []band{
		{Min: 1000, Places: 2},
		{Min: 100, Places: 2},
		{Min: 10, Places: 2},
		{Min: 1, Places: 3},
		{Min: 0.1, Places: 4},
		{Min: 0.01, Places: 5},
		{Min: 0.001, Places: 6},
		// Values under 0.001 all get 8 decimals so 0.00015 renders as
		// 0.00015000 rather than 0.0001500.
		{Min: 0.0001, Places: 8},
		{Min: 0.00001, Places: 8},
	},
	fallback: 8,
}

// ChangeRule is the coarser table shared by absolute change and percent
// change. It differs from PriceRule below 10.
var ChangeRule = PrecisionRule{
	Name: "change",
	bands: []band{
		{Min: 100, Places: 2},
		{Min: 10, Places: 2},
		{Min: 1, Places: 2},
	},
	fallback: 3,
}

// DecimalPlaces returns the number of decimals for a magnitude. The sign of
// v is ignored; a value on a band boundary takes that band's precision.
func (r PrecisionRule) DecimalPlaces(v float64) int {
	abs := math.Abs(v)
	if math.IsNaN(abs) {
		return r.fallback
	}
	for _, b := range r.bands {
		if abs >= b.Min {
			return b.Places
		}
	}
	return r.fallback
}

// DecimalPlacesFor returns the price precision for a value.
func DecimalPlacesFor(v float64) int {
	return PriceRule.DecimalPlaces(v)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
