package marketdata

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "chart-scanner/internal/errors"
	"chart-scanner/internal/logging"
	"chart-scanner/internal/models"
	"chart-scanner/pkg/utils"
)

// kiteClient is the part of the Kite Connect client the source uses.
type kiteClient interface {
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
	GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, OI bool) ([]kiteconnect.HistoricalData, error)
}

// KiteConfig holds configuration for the Zerodha Kite historical API.
type KiteConfig struct {
	APIKey      string
	AccessToken string
	Exchange    string
	Retry       utils.RetryConfig

	// RequestsPerSecond caps historical API calls. Kite allows three.
	RequestsPerSecond float64
}

// KiteSource implements Source using Zerodha Kite Connect historical candles.
// Symbols are trading symbols, optionally prefixed with the exchange as in
// "NSE:INFY".
type KiteSource struct {
	client      kiteClient
	exchange    string
	retry       utils.RetryConfig
	limiter     *utils.RateLimiter
	instruments map[string]int
	mu          sync.RWMutex
	now         func() time.Time
	logger      zerolog.Logger
}

// NewKiteSource creates a Kite source from a saved access token.
func NewKiteSource(cfg KiteConfig, logger zerolog.Logger) (*KiteSource, error) {
	if cfg.APIKey == "" || cfg.AccessToken == "" {
		return nil, apperrors.NewDataError("kite", "", "api_key and access_token are required", apperrors.ErrNotAuthenticated)
	}
	client := kiteconnect.New(cfg.APIKey)
	client.SetAccessToken(cfg.AccessToken)
	return newKiteSource(client, cfg, logger), nil
}

func newKiteSource(client kiteClient, cfg KiteConfig, logger zerolog.Logger) *KiteSource {
	exchange := strings.ToUpper(cfg.Exchange)
	if exchange == "" {
		exchange = "NSE"
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = utils.DefaultRetryConfig()
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 3
	}
	return &KiteSource{
		client:      client,
		exchange:    exchange,
		retry:       retry,
		limiter:     utils.NewRateLimiter(rps, int(rps)),
		instruments: make(map[string]int),
		now:         time.Now,
		logger:      logging.WithSource(logger, "kite"),
	}
}

func (k *KiteSource) Name() string { return "kite" }

// kiteInterval maps an interval to the Kite name and the longest span a
// single historical request may cover.
func kiteInterval(iv models.Interval) (string, time.Duration, bool) {
	const day = 24 * time.Hour
	switch iv {
	case models.Interval1Min:
		return "minute", 60 * day, true
	case models.Interval5Min:
		return "5minute", 100 * day, true
	case models.Interval15Min:
		return "15minute", 200 * day, true
	case models.Interval30Min:
		return "30minute", 200 * day, true
	case models.Interval60Min, models.Interval1Hour:
		return "60minute", 400 * day, true
	case models.Interval1Day:
		return "day", 2000 * day, true
	}
	return "", 0, false
}

func (k *KiteSource) splitSymbol(symbol string) (exchange, tradingSymbol string) {
	if i := strings.Index(symbol, ":"); i > 0 {
		return strings.ToUpper(symbol[:i]), strings.ToUpper(symbol[i+1:])
	}
	return k.exchange, strings.ToUpper(symbol)
}

// Fetch downloads candles for req, splitting long ranges into the chunks
// the API accepts.
func (k *KiteSource) Fetch(ctx context.Context, req HistoryRequest) (models.Series, error) {
	req, err := req.Normalize()
	if err != nil {
		return models.Series{}, err
	}

	interval, span, ok := kiteInterval(req.Interval)
	if !ok {
		return models.Series{}, apperrors.NewDataError(k.Name(), req.Symbol,
			fmt.Sprintf("interval %s is not offered by Kite", req.Interval), apperrors.ErrUnsupportedInterval)
	}

	exchange, tradingSymbol := k.splitSymbol(req.Symbol)
	token, err := k.instrumentToken(ctx, exchange, tradingSymbol)
	if err != nil {
		return models.Series{}, err
	}

	started := time.Now()
	to := k.now()
	from := req.Period.Start(to)

	var bars []models.Bar
	for chunkEnd := to; chunkEnd.After(from); {
		if err := ctx.Err(); err != nil {
			return models.Series{}, err
		}
		chunkStart := chunkEnd.Add(-span)
		if chunkStart.Before(from) {
			chunkStart = from
		}

		data, err := utils.RetryWithResult(ctx, k.retry, func() ([]kiteconnect.HistoricalData, error) {
			if err := k.limiter.Wait(ctx); err != nil {
				return nil, utils.Permanent(err)
			}
			return k.client.GetHistoricalData(token, interval, chunkStart, chunkEnd, false, false)
		})
		if err != nil {
			logging.LogFetch(k.logger, k.Name(), req.Symbol, len(bars), time.Since(started), err)
			return models.Series{}, apperrors.NewDataError(k.Name(), req.Symbol, "failed to get historical data", err)
		}
		// An empty chunk means the instrument did not trade before it.
		if len(data) == 0 {
			break
		}
		for _, d := range data {
			bars = append(bars, models.Bar{
				Timestamp: d.Date.Time,
				Open:      d.Open,
				High:      d.High,
				Low:       d.Low,
				Close:     d.Close,
				Volume:    int64(d.Volume),
			})
		}
		chunkEnd = chunkStart.Add(-time.Second)
	}

	logging.LogFetch(k.logger, k.Name(), req.Symbol, len(bars), time.Since(started), nil)
	if len(bars) == 0 {
		return models.Series{}, apperrors.NewDataError(k.Name(), req.Symbol, "no candles returned", apperrors.ErrNoData)
	}

	return models.NewSeries(req.Symbol, models.SortBars(bars)), nil
}

// instrumentToken resolves exchange:symbol from the instrument dump, which
// is downloaded once per exchange.
func (k *KiteSource) instrumentToken(ctx context.Context, exchange, symbol string) (int, error) {
	key := exchange + ":" + symbol

	k.mu.RLock()
	token, ok := k.instruments[key]
	k.mu.RUnlock()
	if ok {
		return token, nil
	}

	instruments, err := utils.RetryWithResult(ctx, k.retry, func() (kiteconnect.Instruments, error) {
		return k.client.GetInstrumentsByExchange(exchange)
	})
	if err != nil {
		return 0, apperrors.NewDataError(k.Name(), symbol, "failed to get instruments", err)
	}

	k.mu.Lock()
	for _, inst := range instruments {
		k.instruments[inst.Exchange+":"+inst.Tradingsymbol] = inst.InstrumentToken
	}
	token, ok = k.instruments[key]
	k.mu.Unlock()

	if !ok {
		return 0, apperrors.NewDataError(k.Name(), symbol, "instrument not found on "+exchange, apperrors.ErrSymbolNotFound)
	}
	return token, nil
}
