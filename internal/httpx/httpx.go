package httpx

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrMaxRetries is wrapped by the error returned once the attempt budget is spent.
var ErrMaxRetries = errors.New("max retries exceeded")

// Kind classifies a failed call.
type Kind int

const (
	// KindTransient failures (429, 408, 5xx, timeouts, dropped connections) are retried.
	KindTransient Kind = iota + 1
	// KindTerminal failures (other 4xx, unusable requests) are returned immediately.
	KindTerminal
	// KindDecode means the server answered 2xx with a body that is not JSON.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindTerminal:
		return "terminal"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is the uniform failure value for every call.
// StatusCode is 0 when the server never answered.
type Error struct {
	Kind       Kind
	Reason     string
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Err        error

	retryAfter time.Duration
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "http %s error: %s", e.Kind, e.Reason)
	if e.Method != "" || e.URL != "" {
		fmt.Fprintf(&b, " (%s %s)", e.Method, e.URL)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status=%d", e.StatusCode)
	}
	if len(e.Body) > 0 {
		fmt.Fprintf(&b, " body=%s", snippet(e.Body, 300))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed.
func (e *Error) Retryable() bool { return e.Kind == KindTransient }

func snippet(b []byte, max int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// RetryConfig controls retry behavior.
type RetryConfig struct {
	MaxAttempts int
	// BaseDelay is the backoff floor; attempt n waits BaseDelay * 2^(n-1).
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Jitter adds up to this much random delay to computed backoffs. Retry-After waits are exact.
	Jitter time.Duration

	// AttemptTimeout bounds a single attempt, including reading the body.
	AttemptTimeout time.Duration

	// If true, retry any 5xx.
	Retry5xx bool

	// Extra statuses to retry (e.g. 429, 408).
	RetryStatuses map[int]bool

	// Limiter paces attempts when set.
	Limiter *rate.Limiter

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *zap.Logger
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		AttemptTimeout: 10 * time.Second,
		Retry5xx:       true,
		RetryStatuses: map[int]bool{
			http.StatusTooManyRequests: true, // 429
			http.StatusRequestTimeout:  true, // 408
		},
	}
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.RetryStatuses == nil {
		cfg.RetryStatuses = def.RetryStatuses
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}

// DoWithRetry executes a request (built by buildReq) with retries.
// buildReq is called once per attempt with that attempt's context, so a
// request body must be rebuilt each time.
func DoWithRetry(
	ctx context.Context,
	client *http.Client,
	buildReq func(context.Context) (*http.Request, error),
	cfg RetryConfig,
) (*Response, error) {
	cfg = cfg.withDefaults()

	var last *Error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if cfg.Limiter != nil {
			if err := cfg.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := doOnce(ctx, client, buildReq, cfg)
		if err == nil {
			return resp, nil
		}

		var herr *Error
		if !errors.As(err, &herr) || !herr.Retryable() {
			return nil, err
		}
		last = herr
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := Backoff(attempt, cfg, herr.retryAfter)
		cfg.Logger.Debug("httpx: retrying",
			zap.Int("attempt", attempt),
			zap.Int("status", herr.StatusCode),
			zap.Duration("wait", wait),
			zap.String("reason", herr.Reason),
		)
		if err := cfg.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, &Error{
		Kind:       KindTransient,
		Reason:     ErrMaxRetries.Error(),
		Method:     last.Method,
		URL:        last.URL,
		StatusCode: last.StatusCode,
		Header:     last.Header,
		Body:       last.Body,
		Err:        fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, cfg.MaxAttempts, last),
	}
}

func doOnce(
	ctx context.Context,
	client *http.Client,
	buildReq func(context.Context) (*http.Request, error),
	cfg RetryConfig,
) (*Response, error) {
	actx := ctx
	if cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, cfg.AttemptTimeout)
		defer cancel()
	}

	req, err := buildReq(actx)
	if err != nil {
		return nil, &Error{Kind: KindTerminal, Reason: "build request", Err: err}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "br, gzip")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(ctx, req, "request failed", err)
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, transportError(ctx, req, "read body", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
	}

	herr := &Error{
		Kind:       KindTerminal,
		Reason:     fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		Method:     req.Method,
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}
	if isRetryableStatus(resp.StatusCode, cfg) {
		herr.Kind = KindTransient
		herr.retryAfter = ParseRetryAfter(resp.Header)
	}
	return nil, herr
}

func transportError(parent context.Context, req *http.Request, reason string, err error) error {
	// caller gave up: not ours to retry
	if parent.Err() != nil {
		return parent.Err()
	}
	kind := KindTerminal
	if isRetryableNetErr(err) {
		kind = KindTransient
	}
	return &Error{Kind: kind, Reason: reason, Method: req.Method, URL: req.URL.String(), Err: err}
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil || len(raw) == 0 {
		return raw, err
	}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(raw)))
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return raw, nil
	}
}

// Backoff returns the wait before attempt+1. A positive retryAfter wins.
func Backoff(attempt int, cfg RetryConfig, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	if attempt < 1 {
		attempt = 1
	}
	sleep := cfg.MaxDelay
	if attempt <= 32 {
		if d := cfg.BaseDelay * time.Duration(1<<(attempt-1)); d > 0 && d < cfg.MaxDelay {
			sleep = d
		}
	}
	if sleep < cfg.BaseDelay {
		sleep = cfg.BaseDelay
	}
	if cfg.Jitter > 0 {
		sleep += rand.N(cfg.Jitter)
	}
	return sleep
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isRetryableStatus(code int, cfg RetryConfig) bool {
	if cfg.RetryStatuses != nil && cfg.RetryStatuses[code] {
		return true
	}
	if cfg.Retry5xx && code >= 500 && code <= 599 {
		return true
	}
	return false
}

func isRetryableNetErr(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// *url.Error implements net.Error itself, so the concrete transport
	// failures are checked before falling back to Timeout.
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var oerr *net.OpError
	if errors.As(err, &oerr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection refused") {
		return true
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return nerr.Timeout()
	}
	return false
}

// ParseRetryAfter parses Retry-After header (seconds or HTTP date).
// Returns 0 when header is missing/invalid.
func ParseRetryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			return 0
		}
		return d
	}
	return 0
}

// DoJSON is a convenience wrapper over DoWithRetry that unmarshals JSON.
// An empty body succeeds and leaves out untouched.
func DoJSON(
	ctx context.Context,
	client *http.Client,
	buildReq func(context.Context) (*http.Request, error),
	out any,
	cfg RetryConfig,
) (*Response, error) {
	resp, err := DoWithRetry(ctx, client, buildReq, cfg)
	if err != nil {
		return nil, err
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return nil, &Error{
			Kind:       KindDecode,
			Reason:     "response was not valid JSON",
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
			Err:        err,
		}
	}
	return resp, nil
}
