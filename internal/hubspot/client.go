package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"portal-sync/internal/httpx"
)

const DefaultBaseURL = "https://api.hubapi.com"

var ErrMissingToken = errors.New("hubspot: missing private app token")

// Client talks to the HubSpot CRM API with a private app token.
// It is safe for concurrent use.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Retry   httpx.RetryConfig

	log       *zap.Logger
	transport http.RoundTripper
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.BaseURL = strings.TrimRight(u, "/") }
}

// WithTransport sets the transport under the auth layer.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

func WithRetry(cfg httpx.RetryConfig) Option {
	return func(c *Client) { c.Retry = cfg }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	c := &Client{
		BaseURL:   DefaultBaseURL,
		Retry:     httpx.DefaultRetryConfig(),
		log:       zap.NewNop(),
		transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Retry.Logger == nil {
		c.Retry.Logger = c.log
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	c.HTTP = &http.Client{
		// no client-wide timeout: each attempt carries its own deadline
		Transport: &oauth2.Transport{Source: src, Base: c.transport},
	}
	return c, nil
}

// RequestOptions tune a single call. Zero values use the client defaults.
type RequestOptions struct {
	JSON        any
	Query       url.Values
	Timeout     time.Duration
	MaxAttempts int
}

// Result is a successful call. Body is empty for endpoints that return nothing.
type Result struct {
	StatusCode int
	Body       json.RawMessage
}

// Call issues one logical request with timeout, retry and backoff.
// Failures are always *httpx.Error or a context error.
func (c *Client) Call(ctx context.Context, method, path string, opts RequestOptions) (Result, error) {
	u, err := c.buildURL(path, opts.Query)
	if err != nil {
		return Result{}, err
	}

	hasBody := opts.JSON != nil && method != http.MethodGet && method != http.MethodDelete
	var payload []byte
	if hasBody {
		payload, err = json.Marshal(opts.JSON)
		if err != nil {
			return Result{}, fmt.Errorf("hubspot: marshal request body: %w", err)
		}
	}

	buildReq := func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if hasBody {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if hasBody {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}

	cfg := c.Retry
	if opts.Timeout > 0 {
		cfg.AttemptTimeout = opts.Timeout
	}
	if opts.MaxAttempts > 0 {
		cfg.MaxAttempts = opts.MaxAttempts
	}

	var raw json.RawMessage
	resp, err := httpx.DoJSON(ctx, c.HTTP, buildReq, &raw, cfg)
	if err != nil {
		var herr *httpx.Error
		if errors.As(err, &herr) && herr.URL == "" {
			herr.Method, herr.URL = method, u
		}
		return Result{}, err
	}
	return Result{StatusCode: resp.StatusCode, Body: raw}, nil
}

func (c *Client) Get(ctx context.Context, path string, opts RequestOptions) (Result, error) {
	return c.Call(ctx, http.MethodGet, path, opts)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	res, err := c.Get(ctx, path, RequestOptions{Query: query})
	if err != nil {
		return err
	}
	if len(res.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		u, _ := c.buildURL(path, query)
		return &httpx.Error{
			Kind:       httpx.KindDecode,
			Reason:     "unexpected response shape",
			Method:     http.MethodGet,
			URL:        u,
			StatusCode: res.StatusCode,
			Body:       res.Body,
			Err:        err,
		}
	}
	return nil
}

func (c *Client) buildURL(path string, query url.Values) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return "", fmt.Errorf("hubspot: invalid url: %w", err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
