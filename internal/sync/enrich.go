package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"portal-sync/internal/concurrency"
	"portal-sync/internal/domain"
)

// Resolver fetches the related entities of a service.
type Resolver interface {
	GetOwner(ctx context.Context, id string) (domain.RemoteOwner, error)
	GetCompany(ctx context.Context, id string) (domain.RemoteCompany, error)
}

// InvalidRecord is a service skipped because it is not linked to exactly one company.
type InvalidRecord struct {
	ID           string `json:"id"`
	CompanyCount int    `json:"companyCount"`
}

type EnrichResult struct {
	// Enriched keeps the input order of the eligible records that resolved.
	Enriched []domain.EnrichedRecord
	Invalid  []InvalidRecord
	Failed   []RecordError
	// Lookups counts distinct remote entities fetched.
	OwnerLookups   int
	CompanyLookups int
}

// Partition splits records into those with exactly one company and the rest.
func Partition(records []domain.RemoteRecord) ([]domain.RemoteRecord, []InvalidRecord) {
	var eligible []domain.RemoteRecord
	var invalid []InvalidRecord
	for _, r := range records {
		if len(r.CompanyIDs) == 1 {
			eligible = append(eligible, r)
			continue
		}
		invalid = append(invalid, InvalidRecord{ID: r.ID, CompanyCount: len(r.CompanyIDs)})
	}
	return eligible, invalid
}

// Enricher resolves owners and companies for eligible records. Each call to
// Enrich uses fresh caches, so nothing outlives one run.
type Enricher struct {
	Resolver Resolver
	Log      *zap.Logger
}

func (e *Enricher) Enrich(ctx context.Context, records []domain.RemoteRecord, concurrencyLimit int) EnrichResult {
	log := e.Log
	if log == nil {
		log = zap.NewNop()
	}

	eligible, invalid := Partition(records)
	for _, inv := range invalid {
		log.Warn("skipping service without exactly one company",
			zap.String("service_id", inv.ID), zap.Int("company_count", inv.CompanyCount))
	}

	owners := newMemo(e.Resolver.GetOwner)
	companies := newMemo(e.Resolver.GetCompany)

	results, errs := concurrency.ProcessParallel(ctx, eligible, concurrency.ParallelOptions{MaxWorkers: concurrencyLimit},
		func(ctx context.Context, _ int, r domain.RemoteRecord) (domain.EnrichedRecord, error) {
			return enrichOne(ctx, r, owners, companies)
		})

	out := EnrichResult{
		Invalid:  invalid,
		Enriched: make([]domain.EnrichedRecord, 0, len(eligible)),
	}
	for i, err := range errs {
		if err != nil {
			log.Warn("enrich failed", zap.String("service_id", eligible[i].ID), zap.Error(err))
			out.Failed = append(out.Failed, RecordError{ID: eligible[i].ID, Stage: StageEnrich, Err: err})
			continue
		}
		out.Enriched = append(out.Enriched, results[i])
	}
	out.OwnerLookups = owners.fetched()
	out.CompanyLookups = companies.fetched()
	return out
}

// enrichOne resolves the owner and company of one record concurrently.
func enrichOne(ctx context.Context, r domain.RemoteRecord, owners *memo[domain.RemoteOwner], companies *memo[domain.RemoteCompany]) (domain.EnrichedRecord, error) {
	er := domain.EnrichedRecord{Record: r}

	// lookups share flights across records, so one record's failure must not
	// cancel a fetch another record is waiting on
	var g errgroup.Group
	if r.OwnerID != "" {
		g.Go(func() error {
			o, err := owners.get(ctx, r.OwnerID)
			if err != nil {
				return fmt.Errorf("owner %s: %w", r.OwnerID, err)
			}
			er.Owner = &o
			return nil
		})
	}
	g.Go(func() error {
		c, err := companies.get(ctx, r.CompanyIDs[0])
		if err != nil {
			return fmt.Errorf("company %s: %w", r.CompanyIDs[0], err)
		}
		er.Company = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.EnrichedRecord{}, err
	}
	return er, nil
}
