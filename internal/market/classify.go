package market

import (
	"strings"

	"quotewatch/internal/models"
)

// CryptoSetVersion identifies the revision of KnownCryptoPairs. Bump it when
// pairs are added so persisted classifications can be re-derived.
const CryptoSetVersion = "2024.2"

// KnownCryptoPairs is the closed set of symbols treated as cryptocurrency.
// A "-USD" suffix alone is not enough; the pair must be listed here.
var KnownCryptoPairs = map[string]bool{
	"BTC-USD":   true,
	"ETH-USD":   true,
	"BNB-USD":   true,
	"SOL-USD":   true,
	"XRP-USD":   true,
	"ADA-USD":   true,
	"DOGE-USD":  true,
	"TRX-USD":   true,
	"AVAX-USD":  true,
	"DOT-USD":   true,
	"LINK-USD":  true,
	"MATIC-USD": true,
	"LTC-USD":   true,
	"BCH-USD":   true,
	"SHIB-USD":  true,
	"UNI-USD":   true,
	"ATOM-USD":  true,
	"XLM-USD":   true,
	"USDT-USD":  true,
	"USDC-USD":  true,
}

// Classify returns the asset class of a symbol.
func Classify(symbol string) models.AssetClass {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	switch {
	case IsCrypto(s):
		return models.AssetCrypto
	case strings.HasPrefix(s, "^"):
		return models.AssetIndex
	case strings.HasSuffix(s, "=X"):
		return models.AssetFX
	default:
		return models.AssetEquity
	}
}

// IsCrypto reports whether symbol is in the known crypto set.
func IsCrypto(symbol string) bool {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !strings.HasSuffix(s, "-USD") {
		return false
	}
	return KnownCryptoPairs[s]
}
