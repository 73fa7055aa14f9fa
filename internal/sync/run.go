package sync

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// RunResult is the summary of one sync pass. It is returned to the caller and
// never persisted.
type RunResult struct {
	Success       bool            `json:"success"`
	RunID         string          `json:"runId"`
	Params        Params          `json:"params"`
	Pages         int             `json:"pages"`
	Truncated     bool            `json:"truncated"`
	Fetched       int             `json:"fetched"`
	Valid         int             `json:"valid"`
	Invalid       int             `json:"invalid"`
	Updated       int             `json:"updated"`
	ClientsNew    int             `json:"clientsCreated"`
	Warnings      []InvalidRecord `json:"warnings"`
	EnrichErrors  []RecordError   `json:"enrichErrors"`
	ProjectErrors []RecordError   `json:"projectErrors"`
	StartedAt     time.Time       `json:"startedAt"`
	ElapsedMs     int64           `json:"elapsedMs"`
}

// Runner wires collection, enrichment and reconciliation into one pass.
// It does not retry; retries belong to the HTTP layer.
type Runner struct {
	Lister   ServiceLister
	Resolver Resolver
	Store    ProjectStore
	Log      *zap.Logger

	now func() time.Time
}

func NewRunner(lister ServiceLister, resolver Resolver, st ProjectStore, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{Lister: lister, Resolver: resolver, Store: st, Log: log, now: time.Now}
}

// Run executes one pass. The error is non-nil only when collection failed;
// in that case nothing was written and the result carries no counts.
func (r *Runner) Run(ctx context.Context, p Params) (RunResult, error) {
	p = p.Normalize()
	now := r.now
	if now == nil {
		now = time.Now
	}
	started := now()
	res := RunResult{
		RunID:         ulid.Make().String(),
		Params:        p,
		StartedAt:     started.UTC(),
		Warnings:      []InvalidRecord{},
		EnrichErrors:  []RecordError{},
		ProjectErrors: []RecordError{},
	}
	log := r.Log.With(zap.String("run_id", res.RunID))
	log.Info("sync started",
		zap.Int("page_size", p.PageSize), zap.Int("max_pages", p.MaxPages), zap.Int("concurrency", p.Concurrency))

	collector := &Collector{Lister: r.Lister, Log: log}
	records, stats, err := collector.Collect(ctx, p.PageSize, p.MaxPages)
	res.Pages = stats.Pages
	if err != nil {
		res.ElapsedMs = now().Sub(started).Milliseconds()
		log.Error("sync aborted", zap.Error(err), zap.Int64("elapsed_ms", res.ElapsedMs))
		return res, err
	}
	res.Truncated = stats.Truncated
	res.Fetched = len(records)

	enricher := &Enricher{Resolver: r.Resolver, Log: log}
	enriched := enricher.Enrich(ctx, records, p.Concurrency)
	res.Valid = res.Fetched - len(enriched.Invalid)
	res.Invalid = len(enriched.Invalid)
	if enriched.Invalid != nil {
		res.Warnings = enriched.Invalid
	}
	if enriched.Failed != nil {
		res.EnrichErrors = enriched.Failed
	}

	reconciler := &Reconciler{Store: r.Store, Log: log}
	rec := reconciler.Reconcile(ctx, enriched.Enriched)
	res.Updated = rec.Updated
	res.ClientsNew = rec.ClientsCreated
	if rec.Errors != nil {
		res.ProjectErrors = rec.Errors
	}

	res.Success = len(res.EnrichErrors) == 0 && len(res.ProjectErrors) == 0
	res.ElapsedMs = now().Sub(started).Milliseconds()
	log.Info("sync finished",
		zap.Bool("success", res.Success),
		zap.Int("fetched", res.Fetched),
		zap.Int("valid", res.Valid),
		zap.Int("invalid", res.Invalid),
		zap.Int("updated", res.Updated),
		zap.Int("enrich_errors", len(res.EnrichErrors)),
		zap.Int("project_errors", len(res.ProjectErrors)),
		zap.Int("owner_lookups", enriched.OwnerLookups),
		zap.Int("company_lookups", enriched.CompanyLookups),
		zap.Int64("elapsed_ms", res.ElapsedMs),
	)
	return res, nil
}
