package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"portal-sync/internal/domain"
	"portal-sync/internal/hubspot"
)

// ServiceLister returns one page of services per call.
type ServiceLister interface {
	ListServicesPage(ctx context.Context, pr hubspot.PageRequest) (hubspot.ServicePage, error)
}

// CollectError aborts a run: a partial listing is never treated as the dataset.
type CollectError struct {
	Page int
	Err  error
}

func (e *CollectError) Error() string {
	return fmt.Sprintf("collect page %d: %v", e.Page, e.Err)
}

func (e *CollectError) Unwrap() error { return e.Err }

// Collector walks the service listing cursor.
type Collector struct {
	Lister ServiceLister
	Log    *zap.Logger
}

// CollectStats describes how a collection ended.
type CollectStats struct {
	Pages     int
	Truncated bool // the page ceiling was hit with a cursor still pending
}

// Collect fetches pages in order until the cursor runs out or maxPages pages
// have been read. Any page error aborts the whole collection.
func (c *Collector) Collect(ctx context.Context, pageSize, maxPages int) ([]domain.RemoteRecord, CollectStats, error) {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}

	var (
		out   []domain.RemoteRecord
		stats CollectStats
		after string
	)
	for page := 1; page <= maxPages; page++ {
		res, err := c.Lister.ListServicesPage(ctx, hubspot.PageRequest{Limit: pageSize, After: after})
		if err != nil {
			return nil, stats, &CollectError{Page: page, Err: err}
		}
		stats.Pages = page
		out = append(out, res.Records...)
		log.Debug("collected page", zap.Int("page", page), zap.Int("records", len(res.Records)))

		if res.NextAfter == "" {
			return out, stats, nil
		}
		after = res.NextAfter
	}

	stats.Truncated = after != ""
	if stats.Truncated {
		log.Warn("page ceiling reached with more results pending", zap.Int("max_pages", maxPages))
	}
	return out, stats, nil
}
