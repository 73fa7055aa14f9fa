package sync

import (
	"net/url"
	"strconv"
	"strings"
)

// Bounds for run parameters. Input outside [1, max] or not an integer falls
// back to the default; it is never an error.
const (
	DefaultPageSize    = 50
	MaxPageSize        = 100
	DefaultMaxPages    = 10
	MaxMaxPages        = 50
	DefaultConcurrency = 4
	MaxConcurrency     = 10
)

type Params struct {
	PageSize    int `json:"limit"`
	MaxPages    int `json:"pages"`
	Concurrency int `json:"concurrency"`
}

func DefaultParams() Params {
	return Params{
		PageSize:    DefaultPageSize,
		MaxPages:    DefaultMaxPages,
		Concurrency: DefaultConcurrency,
	}
}

// ParseParams reads limit, pages and concurrency from a query string.
func ParseParams(q url.Values) Params {
	return NewParams(q.Get("limit"), q.Get("pages"), q.Get("concurrency"))
}

// NewParams clamps raw string values, as found in a query or the environment.
func NewParams(limit, pages, concurrency string) Params {
	return Params{
		PageSize:    clamp(limit, DefaultPageSize, MaxPageSize),
		MaxPages:    clamp(pages, DefaultMaxPages, MaxMaxPages),
		Concurrency: clamp(concurrency, DefaultConcurrency, MaxConcurrency),
	}
}

// Normalize applies the same bounds to already-typed values.
func (p Params) Normalize() Params {
	return NewParams(strconv.Itoa(p.PageSize), strconv.Itoa(p.MaxPages), strconv.Itoa(p.Concurrency))
}

func clamp(raw string, def, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
