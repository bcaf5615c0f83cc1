// Package httpfetch implements wayback.Fetcher over net/http with bounded
// retries and exponential backoff.
package httpfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/morikuni/failure/v2"
	"github.com/motemen/go-loghttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-etl/internal/metrics"
	"github.com/JakeFAU/wayback-etl/internal/wayback"
)

// Defaults applied when Config leaves a field unset.
const (
	DefaultMaxAttempts    = 5
	DefaultInitialBackoff = time.Second
	DefaultTimeout        = 20 * time.Second
)

// Config controls retry and timeout behavior.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Timeout        time.Duration
	UserAgent      string
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Limiter paces requests to a host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithSleeper replaces the timer-based wait between attempts.
func WithSleeper(sleep Sleeper) Option {
	return func(f *Fetcher) {
		f.sleep = sleep
	}
}

// WithLimiter paces every attempt, retries included.
func WithLimiter(limiter Limiter) Option {
	return func(f *Fetcher) {
		f.limiter = limiter
	}
}

// Fetcher issues GET requests against archive endpoints.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	sleep   Sleeper
	limiter Limiter
	logger  *zap.Logger
}

// New builds a Fetcher. The default client logs every request and response at
// debug level.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Fetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		cfg:    cfg,
		sleep:  sleepContext,
		logger: logger,
	}
	f.client = &http.Client{Transport: newLoggingTransport(http.DefaultTransport, logger)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves req, retrying rate limits and failures with a delay that
// starts at InitialBackoff and doubles after every wait. The delay is shared by
// both paths and is never reset within one call. No wait follows the final
// attempt, so a rate limit on the last attempt ends the call immediately.
func (f *Fetcher) Fetch(ctx context.Context, req wayback.Request) (wayback.Payload, error) {
	target, err := requestURL(req)
	if err != nil {
		return wayback.Payload{}, err
	}
	endpoint := string(req.Endpoint)
	log := f.logger.With(zap.String("endpoint", endpoint), zap.String("target", req.Target))

	delay := f.cfg.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		log.Info("fetching", zap.String("url", target), zap.Int("attempt", attempt))

		payload, err := f.attempt(ctx, endpoint, target)
		if err == nil {
			log.Info("fetched", zap.Bool("json", payload.IsJSON), zap.String("content_type", payload.ContentType))
			return payload, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return wayback.Payload{}, fmt.Errorf("fetch %s: %w", target, ctx.Err())
		}

		if failure.Is(err, wayback.ErrRateLimited) {
			metrics.ObserveRateLimit(endpoint)
			log.Warn("rate limited", zap.Int("attempt", attempt), zap.Duration("retry_in", delay))
		} else {
			log.Warn("attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		if attempt == f.cfg.MaxAttempts {
			break
		}

		log.Info("retrying", zap.Duration("delay", delay))
		metrics.ObserveBackoff(endpoint, delay)
		if err := f.sleep(ctx, delay); err != nil {
			return wayback.Payload{}, fmt.Errorf("fetch %s: %w", target, err)
		}
		delay *= 2
	}

	metrics.ObserveFetchFailure(endpoint)
	log.Error("giving up", zap.Int("attempts", f.cfg.MaxAttempts), zap.Error(lastErr))
	return wayback.Payload{}, failure.Wrap(lastErr,
		failure.WithCode(wayback.ErrFetchExhausted),
		failure.Message(fmt.Sprintf("giving up on %s after %d attempts", target, f.cfg.MaxAttempts)),
		failure.Context{
			"endpoint": endpoint,
			"url":      target,
		},
	)
}

func (f *Fetcher) attempt(ctx context.Context, endpoint, target string) (wayback.Payload, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, target); err != nil {
			return wayback.Payload{}, err
		}
	}
	attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return wayback.Payload{}, fmt.Errorf("build request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	metrics.ObserveAttempt(endpoint, time.Since(start))
	if err != nil {
		return wayback.Payload{}, fmt.Errorf("get %s: %w", target, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			f.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return wayback.Payload{}, failure.New(wayback.ErrRateLimited,
			failure.Message("archive rate limit reached"),
			failure.Context{"url": target},
		)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return wayback.Payload{}, failure.New(wayback.ErrHTTPStatus,
			failure.Message(fmt.Sprintf("unexpected status %s", resp.Status)),
			failure.Context{"url": target, "status": strconv.Itoa(resp.StatusCode)},
		)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return wayback.Payload{}, fmt.Errorf("read body: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return wayback.Payload{Text: string(body), ContentType: contentType}, nil
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return wayback.Payload{}, fmt.Errorf("decode json body: %w", err)
	}
	return wayback.Payload{JSON: decoded, IsJSON: true, ContentType: contentType}, nil
}

// requestURL merges the request's query parameters into its endpoint URL.
func requestURL(req wayback.Request) (string, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("parse endpoint url %q: %w", req.URL, err)
	}
	q := u.Query()
	for key, values := range req.Query {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func newLoggingTransport(base http.RoundTripper, logger *zap.Logger) http.RoundTripper {
	return &loghttp.Transport{
		Transport: base,
		LogRequest: func(req *http.Request) {
			logger.Debug("http request",
				zap.String("method", req.Method),
				zap.String("url", req.URL.String()),
			)
		},
		LogResponse: func(resp *http.Response) {
			logger.Debug("http response",
				zap.String("method", resp.Request.Method),
				zap.String("url", resp.Request.URL.String()),
				zap.Int("status_code", resp.StatusCode),
				zap.String("content_type", resp.Header.Get("Content-Type")),
			)
		},
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
