package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"portal-sync/internal/domain"
	"portal-sync/internal/store"
)

// Stage names where a single record can fail.
const (
	StageEnrich  = "enrich"
	StageClient  = "client"
	StageProject = "project"
)

// RecordError is a failure scoped to one service. It never aborts a run.
type RecordError struct {
	ID    string
	Stage string
	Err   error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.ID, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

func (e RecordError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		ID    string `json:"id"`
		Stage string `json:"stage"`
		Error string `json:"error"`
	}{e.ID, e.Stage, msg})
}

// ProjectStore is the subset of store.Store the reconciler writes through.
type ProjectStore interface {
	FindClientByCompanyID(ctx context.Context, companyID string) (domain.Client, error)
	CreateClient(ctx context.Context, c *domain.Client) (bool, error)
	UpsertProject(ctx context.Context, p *domain.Project) error
}

type ReconcileResult struct {
	Updated        int
	ClientsCreated int
	Errors         []RecordError
}

// Reconciler writes enriched records one at a time.
type Reconciler struct {
	Store ProjectStore
	Log   *zap.Logger
}

func (r *Reconciler) Reconcile(ctx context.Context, records []domain.EnrichedRecord) ReconcileResult {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	var res ReconcileResult
	for _, er := range records {
		created, err := r.reconcileOne(ctx, er)
		if err != nil {
			var rerr RecordError
			if !errors.As(err, &rerr) {
				rerr = RecordError{ID: er.Record.ID, Stage: StageProject, Err: err}
			}
			log.Warn("reconcile failed",
				zap.String("service_id", rerr.ID), zap.String("stage", rerr.Stage), zap.Error(rerr.Err))
			res.Errors = append(res.Errors, rerr)
			continue
		}
		if created {
			res.ClientsCreated++
		}
		res.Updated++
	}
	return res
}

func (r *Reconciler) reconcileOne(ctx context.Context, er domain.EnrichedRecord) (bool, error) {
	client, created, err := r.resolveClient(ctx, er.Company)
	if err != nil {
		return false, RecordError{ID: er.Record.ID, Stage: StageClient, Err: err}
	}

	p := ToProject(er, client.ID)
	if err := r.Store.UpsertProject(ctx, &p); err != nil {
		return created, RecordError{ID: er.Record.ID, Stage: StageProject, Err: err}
	}
	return created, nil
}

// resolveClient finds the client for a company or creates it. Existing
// clients are left untouched even if the company was renamed.
func (r *Reconciler) resolveClient(ctx context.Context, company domain.RemoteCompany) (domain.Client, bool, error) {
	c, err := r.Store.FindClientByCompanyID(ctx, company.ID)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Client{}, false, err
	}

	c = domain.Client{HubSpotCompanyID: company.ID, Name: company.Name, Domain: company.Domain}
	created, err := r.Store.CreateClient(ctx, &c)
	if err != nil {
		return domain.Client{}, false, err
	}
	return c, created, nil
}

// ToProject maps an enriched record onto the local project row.
func ToProject(er domain.EnrichedRecord, clientID string) domain.Project {
	rec := er.Record
	p := domain.Project{
		HubSpotServiceID: rec.ID,
		Name:             rec.Name,
		Status:           MapStatus(rec.Status),
		StartDate:        rec.StartDate,
		TargetEndDate:    rec.TargetEndDate,
		OwnerID:          rec.OwnerID,
		ClientID:         clientID,
	}
	if rec.Stage != nil {
		p.Stage = *rec.Stage
	}
	if er.Owner != nil {
		p.OwnerFirstName = er.Owner.FirstName
		p.OwnerLastName = er.Owner.LastName
		p.OwnerEmail = er.Owner.Email
	}
	return p
}
