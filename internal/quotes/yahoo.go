package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "quotewatch/internal/errors"
	"quotewatch/internal/logging"
	"quotewatch/internal/models"
)

// DefaultYahooBaseURL is the Yahoo Finance chart endpoint.
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

// YahooSource fetches quotes from the Yahoo Finance chart API.
type YahooSource struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewYahooSource creates a Yahoo source. An empty baseURL uses the public endpoint.
func NewYahooSource(baseURL string, timeout time.Duration, logger zerolog.Logger) *YahooSource {
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &YahooSource{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.WithComponent(logger, "yahoo"),
	}
}

// GetQuote fetches the latest quote for a symbol.
func (y *YahooSource) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	resp, err := y.query(ctx, symbol)
	if err != nil {
		return models.Quote{}, apperrors.NewFetchError("quote", symbol, err)
	}
	q, err := toQuote(resp)
	if err != nil {
		return models.Quote{}, apperrors.NewFetchError("quote", symbol, err)
	}
	return Normalize(q, time.Now()), nil
}

// GetRate fetches the from->to rate via the "FROMTO=X" currency pair.
func (y *YahooSource) GetRate(ctx context.Context, from, to string) (float64, error) {
	pair := strings.ToUpper(from+to) + "=X"
	resp, err := y.query(ctx, pair)
	if err != nil {
		return 0, apperrors.NewFetchError("rate", pair, err)
	}
	q, err := toQuote(resp)
	if err != nil {
		return 0, apperrors.NewFetchError("rate", pair, err)
	}
	if q.Price <= 0 {
		return 0, apperrors.NewFetchError("rate", pair, apperrors.ErrRateUnavailable)
	}
	return q.Price, nil
}

func (y *YahooSource) query(ctx context.Context, symbol string) (chartResponse, error) {
	endpoint := y.baseURL + url.PathEscape(symbol) + "?interval=1d&range=1d"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return chartResponse{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := y.httpClient.Do(req)
	if err != nil {
		logging.LogAPICall(y.logger, http.MethodGet, symbol, time.Since(start), err)
		return chartResponse{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return chartResponse{}, err
	}
	logging.LogAPICall(y.logger, http.MethodGet, symbol, time.Since(start), nil)

	var out chartResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return chartResponse{}, fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if out.Chart.Error != nil {
		return out, fmt.Errorf("yahoo error %s: %s", out.Chart.Error.Code, out.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("yahoo returned status %d", resp.StatusCode)
	}
	if len(out.Chart.Result) == 0 {
		return out, fmt.Errorf("no results returned for symbol %s: %w", symbol, apperrors.ErrSymbolNotFound)
	}
	return out, nil
}

// toQuote maps the first chart result onto a Quote. Open comes from the
// first non-null bar; other fields come from the meta block.
func toQuote(resp chartResponse) (models.Quote, error) {
	if len(resp.Chart.Result) == 0 {
		return models.Quote{}, apperrors.ErrQuoteUnavailable
	}
	r := resp.Chart.Result[0]
	m := r.Meta
	if m.RegularMarketPrice == 0 {
		return models.Quote{}, fmt.Errorf("missing regularMarketPrice: %w", apperrors.ErrQuoteUnavailable)
	}

	prev := m.PreviousClose
	if prev == 0 {
		prev = m.ChartPreviousClose
	}

	q := models.Quote{
		Symbol:        m.Symbol,
		Price:         m.RegularMarketPrice,
		High:          m.RegularMarketDayHigh,
		Low:           m.RegularMarketDayLow,
		PreviousClose: prev,
		Volume:        m.RegularMarketVolume,
		Currency:      m.Currency,
		MarketState:   marketState(m.MarketState),
	}
	if m.RegularMarketTime > 0 {
		q.Timestamp = time.Unix(m.RegularMarketTime, 0).UTC()
	}
	if len(r.Indicators.Quote) > 0 {
		for _, o := range r.Indicators.Quote[0].Open {
			if o != nil {
				q.Open = *o
				break
			}
		}
	}
	return q, nil
}

func marketState(s string) models.MarketState {
	switch strings.ToUpper(s) {
	case "PRE", "PREPRE":
		return models.MarketStatePre
	case "POST", "POSTPOST":
		return models.MarketStatePost
	case "CLOSED":
		return models.MarketStateClosed
	case "REGULAR":
		return models.MarketStateRegular
	default:
		return ""
	}
}
