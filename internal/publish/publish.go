// Package publish emits scan results to a NATS subject.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	apperrors "chart-scanner/internal/errors"
	"chart-scanner/internal/scanner"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "scanner"

// Publisher sends scan results to subscribers.
type Publisher interface {
	Publish(ctx context.Context, result *scanner.Result) error
	Close()
}

// Config holds NATS publisher configuration.
type Config struct {
	URL           string
	SubjectPrefix string
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: DefaultSubjectPrefix,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSPublisher publishes each result as JSON on a core NATS subject.
type NATSPublisher struct {
	nc     conn
	prefix string
	logger zerolog.Logger
}

// NewNATSPublisher connects to the NATS server at cfg.URL.
func NewNATSPublisher(cfg Config, logger zerolog.Logger) (*NATSPublisher, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("chart-scanner"),
		nats.MaxReconnects(cfg.RetryAttempts),
		nats.ReconnectWait(cfg.RetryDelay),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to connect to NATS")
	}
	logger.Debug().Str("url", cfg.URL).Msg("Connected to NATS")
	return newNATSPublisher(nc, cfg.SubjectPrefix, logger), nil
}

func newNATSPublisher(nc conn, prefix string, logger zerolog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{
		nc:     nc,
		prefix: strings.Trim(prefix, "."),
		logger: logger.With().Str("component", "publish").Logger(),
	}
}

// Subject returns the subject a result for detector and symbol is sent on:
// <prefix>.<detector>.<symbol>.
func (p *NATSPublisher) Subject(detector, symbol string) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, subjectToken(detector), subjectToken(symbol))
}

// Publish sends result and waits for the server to acknowledge the flush.
func (p *NATSPublisher) Publish(ctx context.Context, result *scanner.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode result")
	}
	subject := p.Subject(string(result.Detector), result.Symbol)
	if err := p.nc.Publish(subject, data); err != nil {
		return apperrors.Wrapf(err, "failed to publish to %s", subject)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return apperrors.Wrap(err, "failed to flush NATS connection")
	}
	p.logger.Debug().Str("subject", subject).Int("bytes", len(data)).Msg("Published result")
	return nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// subjectToken makes s safe as a single subject token. Dots, wildcards and
// whitespace become underscores.
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
