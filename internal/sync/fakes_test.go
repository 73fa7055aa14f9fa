package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"

	"portal-sync/internal/domain"
	"portal-sync/internal/hubspot"
)

// fakeCRM serves a fixed set of pages and counts lookups.
type fakeCRM struct {
	pages   [][]domain.RemoteRecord
	pageErr map[int]error // keyed by 1-based page number

	owners    map[string]domain.RemoteOwner
	companies map[string]domain.RemoteCompany
	failOwner map[string]bool

	mu           gosync.Mutex
	listCalls    []hubspot.PageRequest
	ownerCalls   map[string]int
	companyCalls map[string]int
	inFlight     atomic.Int32
	peak         atomic.Int32
}

func newFakeCRM(pages ...[]domain.RemoteRecord) *fakeCRM {
	return &fakeCRM{
		pages:        pages,
		owners:       map[string]domain.RemoteOwner{},
		companies:    map[string]domain.RemoteCompany{},
		failOwner:    map[string]bool{},
		ownerCalls:   map[string]int{},
		companyCalls: map[string]int{},
	}
}

func (f *fakeCRM) ListServicesPage(ctx context.Context, pr hubspot.PageRequest) (hubspot.ServicePage, error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, pr)
	page := len(f.listCalls)
	f.mu.Unlock()

	if err := f.pageErr[page]; err != nil {
		return hubspot.ServicePage{}, err
	}
	idx := 0
	if pr.After != "" {
		if _, err := fmt.Sscanf(pr.After, "cursor-%d", &idx); err != nil {
			return hubspot.ServicePage{}, err
		}
	}
	if idx >= len(f.pages) {
		return hubspot.ServicePage{}, nil
	}
	out := hubspot.ServicePage{Records: f.pages[idx]}
	if idx+1 < len(f.pages) {
		out.NextAfter = fmt.Sprintf("cursor-%d", idx+1)
	}
	return out, nil
}

func (f *fakeCRM) GetOwner(ctx context.Context, id string) (domain.RemoteOwner, error) {
	f.enter()
	defer f.inFlight.Add(-1)

	f.mu.Lock()
	f.ownerCalls[id]++
	f.mu.Unlock()
	if f.failOwner[id] {
		return domain.RemoteOwner{}, errors.New("owner lookup failed")
	}
	o, ok := f.owners[id]
	if !ok {
		return domain.RemoteOwner{ID: id}, nil
	}
	return o, nil
}

func (f *fakeCRM) GetCompany(ctx context.Context, id string) (domain.RemoteCompany, error) {
	f.enter()
	defer f.inFlight.Add(-1)

	f.mu.Lock()
	f.companyCalls[id]++
	f.mu.Unlock()
	c, ok := f.companies[id]
	if !ok {
		return domain.RemoteCompany{ID: id, Name: "Company " + id}, nil
	}
	return c, nil
}

func (f *fakeCRM) enter() {
	n := f.inFlight.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (f *fakeCRM) ownerCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ownerCalls[id]
}

func (f *fakeCRM) companyCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.companyCalls[id]
}

func rec(id string, owner string, companies ...string) domain.RemoteRecord {
	return domain.RemoteRecord{
		ID:         id,
		Name:       "Service " + id,
		OwnerID:    owner,
		CompanyIDs: companies,
	}
}

func strPtr(s string) *string { return &s }

// failingUpserts rejects project upserts for selected service ids.
type failingUpserts struct {
	ProjectStore
	fail map[string]error
	seen []string
}

func (f *failingUpserts) UpsertProject(ctx context.Context, p *domain.Project) error {
	f.seen = append(f.seen, p.HubSpotServiceID)
	if err := f.fail[p.HubSpotServiceID]; err != nil {
		return err
	}
	return f.ProjectStore.UpsertProject(ctx, p)
}
