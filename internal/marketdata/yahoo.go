package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "chart-scanner/internal/errors"
	"chart-scanner/internal/logging"
	"chart-scanner/internal/models"
	"chart-scanner/pkg/utils"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooConfig holds configuration for the Yahoo Finance chart API.
type YahooConfig struct {
	BaseURL   string
	Proxy     string
	Timeout   time.Duration
	UserAgent string
	Retry     utils.RetryConfig
	// SymbolMap maps friendly names to Yahoo tickers.
	SymbolMap map[string]string
}

// YahooSource implements Source using the Yahoo Finance public chart API.
type YahooSource struct {
	client    *http.Client
	baseURL   string
	userAgent string
	retry     utils.RetryConfig
	symbolMap map[string]string
	logger    zerolog.Logger
}

// NewYahooSource creates a new Yahoo Finance source.
func NewYahooSource(cfg YahooConfig, logger zerolog.Logger) *YahooSource {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		if u, err := url.Parse(cfg.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultYahooBaseURL
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "Mozilla/5.0"
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = utils.DefaultRetryConfig()
	}
	retry.Retryable = retryableFetchError

	symbolMap := map[string]string{
		"SPX500": "^GSPC",
		"SPX":    "^GSPC",
		"SP500":  "^GSPC",
		"NIFTY":  "^NSEI",
		"SENSEX": "^BSESN",
	}
	for k, v := range cfg.SymbolMap {
		symbolMap[strings.ToUpper(k)] = v
	}

	return &YahooSource{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		baseURL:   baseURL,
		userAgent: userAgent,
		retry:     retry,
		symbolMap: symbolMap,
		logger:    logging.WithSource(logger, "yahoo"),
	}
}

func (y *YahooSource) Name() string { return "yahoo" }

func (y *YahooSource) yahooSymbol(symbol string) string {
	if mapped, ok := y.symbolMap[strings.ToUpper(symbol)]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol   string `json:"symbol"`
				Currency string `json:"currency"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch downloads the bars for req, retrying transient failures.
func (y *YahooSource) Fetch(ctx context.Context, req HistoryRequest) (models.Series, error) {
	req, err := req.Normalize()
	if err != nil {
		return models.Series{}, err
	}

	start := time.Now()
	bars, err := utils.RetryWithResult(ctx, y.retry, func() ([]models.Bar, error) {
		return y.fetchChart(ctx, req)
	})
	logging.LogFetch(y.logger, y.Name(), req.Symbol, len(bars), time.Since(start), err)
	if err != nil {
		return models.Series{}, err
	}

	return models.NewSeries(req.Symbol, bars), nil
}

func (y *YahooSource) fetchChart(ctx context.Context, req HistoryRequest) ([]models.Bar, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		y.baseURL, url.PathEscape(y.yahooSymbol(req.Symbol)),
		url.QueryEscape(string(req.Interval)), url.QueryEscape(string(req.Period)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, utils.Permanent(err)
	}
	httpReq.Header.Set("User-Agent", y.userAgent)

	resp, err := y.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewDataError(y.Name(), req.Symbol, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewDataError(y.Name(), req.Symbol, "reading body", err)
	}

	var chart yahooChart
	decodeErr := json.Unmarshal(body, &chart)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.NewDataError(y.Name(), req.Symbol, "too many requests", apperrors.ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, apperrors.NewDataError(y.Name(), req.Symbol, fmt.Sprintf("status %d", resp.StatusCode), errServerSide)
	case resp.StatusCode != http.StatusOK:
		if decodeErr == nil && chart.Chart.Error != nil {
			return nil, utils.Permanent(y.chartError(req.Symbol, chart.Chart.Error.Code, chart.Chart.Error.Description))
		}
		return nil, utils.Permanent(apperrors.NewDataError(y.Name(), req.Symbol,
			fmt.Sprintf("status %d", resp.StatusCode), apperrors.ErrNoData))
	}

	if decodeErr != nil {
		return nil, utils.Permanent(apperrors.NewDataError(y.Name(), req.Symbol, "decoding response", decodeErr))
	}
	if chart.Chart.Error != nil {
		return nil, utils.Permanent(y.chartError(req.Symbol, chart.Chart.Error.Code, chart.Chart.Error.Description))
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 ||
		len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, utils.Permanent(apperrors.NewDataError(y.Name(), req.Symbol, "no data returned", apperrors.ErrNoData))
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]models.Bar, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		o, h, l, c := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == nil || h == nil || l == nil || c == nil {
			continue // skip null bars (holidays etc.)
		}
		var volume int64
		if v := at(quote.Volume, i); v != nil {
			volume = int64(*v)
		}
		bars = append(bars, models.Bar{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      *o,
			High:      *h,
			Low:       *l,
			Close:     *c,
			Volume:    volume,
		})
	}

	if len(bars) == 0 {
		return nil, utils.Permanent(apperrors.NewDataError(y.Name(), req.Symbol, "only null bars returned", apperrors.ErrNoData))
	}

	return models.SortBars(bars), nil
}

func (y *YahooSource) chartError(symbol, code, description string) error {
	base := apperrors.ErrNoData
	switch {
	case strings.EqualFold(code, "Not Found"):
		base = apperrors.ErrSymbolNotFound
	case strings.Contains(strings.ToLower(description), "interval"):
		base = apperrors.ErrUnsupportedInterval
	}
	return apperrors.NewDataError(y.Name(), symbol, description, base)
}

func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}

var errServerSide = errors.New("server error")

// retryableFetchError reports whether a failed fetch may succeed on a later
// attempt: transport failures, timeouts, rate limiting and 5xx responses.
func retryableFetchError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, apperrors.ErrRateLimited) || errors.Is(err, errServerSide) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
