// Package store persists clients, projects and service updates.
//
// Two engines implement Store: SQLite for single-node deployments and tests,
// Postgres for the hosted portal. Both rely on the engine's unique constraints
// for idempotency: clients are unique on hubspot_company_id and projects on
// hubspot_service_id.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"portal-sync/internal/domain"
)

var ErrNotFound = errors.New("store: not found")

type Store interface {
	// FindClientByCompanyID returns ErrNotFound when no client has that company id.
	FindClientByCompanyID(ctx context.Context, companyID string) (domain.Client, error)
	// CreateClient inserts c unless a client with the same company id exists.
	// It reports whether a row was written; c.ID is set either way.
	CreateClient(ctx context.Context, c *domain.Client) (bool, error)
	// UpsertProject inserts p or replaces every mapped field of the row with the
	// same HubSpotServiceID. p.ID and p.CreatedAt reflect the stored row.
	UpsertProject(ctx context.Context, p *domain.Project) error
	GetProjectByServiceID(ctx context.Context, serviceID string) (domain.Project, error)
	ListProjects(ctx context.Context) ([]domain.Project, error)

	InsertServiceUpdate(ctx context.Context, u *domain.ServiceUpdate) error
	ListServiceUpdates(ctx context.Context, projectID string) ([]domain.ServiceUpdate, error)

	Close() error
}

// Open connects to the configured engine and ensures the schema exists.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "sqlite3":
		s, err := OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres", "postgresql":
		s, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}

func newID() string { return uuid.NewString() }

func now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// scanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const projectColumns = `id, hubspot_service_id, name, status, stage, start_date, target_end_date,
	owner_id, owner_first_name, owner_last_name, owner_email, client_id, created_at, updated_at`

func scanProject(s scanner) (domain.Project, error) {
	var p domain.Project
	var status, stage, start, end sql.NullString
	var ownerID, first, last, email sql.NullString
	err := s.Scan(
		&p.ID, &p.HubSpotServiceID, &p.Name, &status, &stage, &start, &end,
		&ownerID, &first, &last, &email, &p.ClientID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Project{}, err
	}
	if status.Valid {
		st := domain.ProjectStatus(status.String)
		p.Status = &st
	}
	p.Stage = stage.String
	p.StartDate = start.String
	p.TargetEndDate = end.String
	p.OwnerID = ownerID.String
	p.OwnerFirstName = first.String
	p.OwnerLastName = last.String
	p.OwnerEmail = email.String
	return p, nil
}

func projectArgs(p *domain.Project) []any {
	var status any
	if p.Status != nil {
		status = string(*p.Status)
	}
	return []any{
		p.ID, p.HubSpotServiceID, p.Name, status, nullable(p.Stage), nullable(p.StartDate), nullable(p.TargetEndDate),
		nullable(p.OwnerID), nullable(p.OwnerFirstName), nullable(p.OwnerLastName), nullable(p.OwnerEmail),
		p.ClientID, p.CreatedAt, p.UpdatedAt,
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func prepareProject(p *domain.Project) {
	if p.ID == "" {
		p.ID = newID()
	}
	t := now()
	p.CreatedAt = t
	p.UpdatedAt = t
}

func prepareClient(c *domain.Client) {
	if c.ID == "" {
		c.ID = newID()
	}
	t := now()
	c.CreatedAt = t
	c.UpdatedAt = t
}

func prepareUpdate(u *domain.ServiceUpdate) {
	if u.ID == "" {
		u.ID = newID()
	}
	u.CreatedAt = now()
	u.OccurredAt = u.OccurredAt.UTC()
}
