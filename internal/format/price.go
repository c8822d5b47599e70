package format

import (
	"math"
	"strconv"
	"strings"
)

const zero = "0.00"

// currencyGlyphs maps ISO codes to display glyphs. Unknown codes use "$".
var currencyGlyphs = map[string]string{
	"USD": "$",
	"CNY": "¥",
}

// Glyph returns the display glyph for a currency code.
func Glyph(currency string) string {
	if g, ok := currencyGlyphs[strings.ToUpper(currency)]; ok {
		return g
	}
	return "$"
}

// FormatPrice formats a price with its currency glyph and no sign prefix
// for positive values.
func FormatPrice(price float64, currency string) string {
	glyph := Glyph(currency)
	if !finite(price) {
		return glyph + zero
	}
	digits := strconv.FormatFloat(math.Abs(price), 'f', PriceRule.DecimalPlaces(price), 64)
	if price < 0 {
		return "-" + glyph + digits
	}
	return glyph + digits
}

// FormatChange formats an absolute change with an explicit sign,
// "+" for zero and positive values.
func FormatChange(change float64, currency string) string {
	glyph := Glyph(currency)
	if !finite(change) {
		return "+" + glyph + zero
	}
	return sign(change) + glyph + strconv.FormatFloat(math.Abs(change), 'f', ChangeRule.DecimalPlaces(change), 64)
}

// FormatPercent formats a percent change with an explicit sign.
func FormatPercent(percent float64) string {
	if !finite(percent) {
		return "+" + zero + "%"
	}
	return sign(percent) + strconv.FormatFloat(math.Abs(percent), 'f', ChangeRule.DecimalPlaces(percent), 64) + "%"
}

// FormatVolume formats a volume in compact form (K, M, B).
func FormatVolume(volume int64) string {
	v := float64(volume)
	switch {
	case volume >= 1_000_000_000:
		return strconv.FormatFloat(v/1_000_000_000, 'f', 2, 64) + "B"
	case volume >= 1_000_000:
		return strconv.FormatFloat(v/1_000_000, 'f', 2, 64) + "M"
	case volume >= 1_000:
		return strconv.FormatFloat(v/1_000, 'f', 1, 64) + "K"
	default:
		return strconv.FormatInt(volume, 10)
	}
}

func sign(v float64) string {
	if v < 0 {
		return "-"
	}
	return "+"
}
