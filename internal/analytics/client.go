// Package analytics fetches the per-item statistical signal feed that the
// scoring worker turns into popularity scores.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/temcen/reelrank/internal/config"
	"github.com/temcen/reelrank/internal/metrics"
	"github.com/temcen/reelrank/internal/validation"
)

const (
	breakerName      = "analytics-feed"
	maxResponseBytes = 32 << 20
)

// ErrUnavailable wraps every failure to obtain a usable feed.
var ErrUnavailable = errors.New("analytics: feed unavailable")

// Signal is the counter set of one item. CIW is the number of intentional
// watchers; the rates are the watch, completion, hook and watch-window rates.
type Signal struct {
	Slug string  `json:"slug"`
	Kind string  `json:"kind"`
	CIW  float64 `json:"ciw"`
	IWR  float64 `json:"iwr"`
	IWCR float64 `json:"iwcr"`
	IWHR float64 `json:"iwhr"`
	IWWR float64 `json:"iwwr"`
}

// Feed is one dialect/kind batch of signals.
type Feed struct {
	Dialect string   `json:"dialect"`
	Kind    string   `json:"kind"`
	Items   []Signal `json:"items"`
}

// SignalSource is what the scoring worker depends on.
type SignalSource interface {
	FetchSignals(ctx context.Context, dialect, kind string) (*Feed, error)
}

// Client calls the analytics service through a circuit breaker that opens
// after FailureLimit consecutive failures.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[*Feed]
	validator  *validation.SchemaValidator
	logger     *logrus.Logger
}

func NewClient(cfg config.AnalyticsConfig, validator *validation.SchemaValidator, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	failureLimit := cfg.FailureLimit
	if failureLimit == 0 {
		failureLimit = 3
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		validator:  validator,
		logger:     logger,
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	c.cb = gobreaker.NewCircuitBreaker[*Feed](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureLimit
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return c
}

// FetchSignals returns the signal feed for one dialect and content kind.
func (c *Client) FetchSignals(ctx context.Context, dialect, kind string) (*Feed, error) {
	feed, err := c.cb.Execute(func() (*Feed, error) {
		return c.fetch(ctx, dialect, kind)
	})
	if err != nil {
		result := "failure"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = "rejected"
		}
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, result).Inc()
		return nil, fmt.Errorf("%w: %s/%s: %v", ErrUnavailable, dialect, kind, err)
	}

	metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	return feed, nil
}

func (c *Client) fetch(ctx context.Context, dialect, kind string) (*Feed, error) {
	query := url.Values{}
	query.Set("dialect", dialect)
	query.Set("kind", kind)
	endpoint := c.baseURL + "/signals?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if c.validator != nil {
		if err := c.validator.ValidateStatisticalFeed(body).Err(); err != nil {
			return nil, fmt.Errorf("malformed feed: %w", err)
		}
	}

	var feed Feed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}
	for i := range feed.Items {
		if feed.Items[i].Kind == "" {
			feed.Items[i].Kind = kind
		}
	}

	c.logger.WithFields(logrus.Fields{
		"dialect": dialect,
		"kind":    kind,
		"items":   len(feed.Items),
	}).Debug("Fetched statistical signal feed")

	return &feed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

var _ SignalSource = (*Client)(nil)
