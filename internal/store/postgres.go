package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"portal-sync/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS clients (
	id TEXT PRIMARY KEY,
	hubspot_company_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	domain TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	hubspot_service_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	status TEXT CHECK (status IN ('Open', 'Closed')),
	stage TEXT,
	start_date TEXT,
	target_end_date TEXT,
	owner_id TEXT,
	owner_first_name TEXT,
	owner_last_name TEXT,
	owner_email TEXT,
	client_id TEXT NOT NULL REFERENCES clients(id),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_projects_client_id ON projects(client_id);

CREATE TABLE IF NOT EXISTS service_updates (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	type TEXT NOT NULL CHECK (type IN ('update', 'action', 'milestone', 'message')),
	occurred_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_service_updates_project ON service_updates(project_id, occurred_at DESC);
`

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: init postgres schema: %w", err)
	}
	return NewPostgres(pool), nil
}

// NewPostgres wraps an existing pool. The schema must already exist.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) FindClientByCompanyID(ctx context.Context, companyID string) (domain.Client, error) {
	var c domain.Client
	err := s.pool.QueryRow(ctx, `
		SELECT id, hubspot_company_id, name, domain, created_at, updated_at
		FROM clients WHERE hubspot_company_id = $1
	`, companyID).Scan(&c.ID, &c.HubSpotCompanyID, &c.Name, &c.Domain, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Client{}, ErrNotFound
	}
	if err != nil {
		return domain.Client{}, fmt.Errorf("store: find client %s: %w", companyID, err)
	}
	return c, nil
}

func (s *Postgres) CreateClient(ctx context.Context, c *domain.Client) (bool, error) {
	prepareClient(c)
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO clients (id, hubspot_company_id, name, domain, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (hubspot_company_id) DO NOTHING
	`, c.ID, c.HubSpotCompanyID, c.Name, c.Domain, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("store: create client %s: %w", c.HubSpotCompanyID, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	existing, err := s.FindClientByCompanyID(ctx, c.HubSpotCompanyID)
	if err != nil {
		return false, err
	}
	*c = existing
	return false, nil
}

func (s *Postgres) UpsertProject(ctx context.Context, p *domain.Project) error {
	prepareProject(p)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (hubspot_service_id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			stage = EXCLUDED.stage,
			start_date = EXCLUDED.start_date,
			target_end_date = EXCLUDED.target_end_date,
			owner_id = EXCLUDED.owner_id,
			owner_first_name = EXCLUDED.owner_first_name,
			owner_last_name = EXCLUDED.owner_last_name,
			owner_email = EXCLUDED.owner_email,
			client_id = EXCLUDED.client_id,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`, projectArgs(p)...).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert project %s: %w", p.HubSpotServiceID, err)
	}
	return nil
}

func (s *Postgres) GetProjectByServiceID(ctx context.Context, serviceID string) (domain.Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE hubspot_service_id = $1`, serviceID)
	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Project{}, ErrNotFound
	}
	if err != nil {
		return domain.Project{}, fmt.Errorf("store: get project %s: %w", serviceID, err)
	}
	return p, nil
}

func (s *Postgres) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name, hubspot_service_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list projects: %w", err)
	}
	defer rows.Close()

	var out []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) InsertServiceUpdate(ctx context.Context, u *domain.ServiceUpdate) error {
	prepareUpdate(u)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO service_updates (id, project_id, title, body, type, occurred_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.ProjectID, u.Title, u.Body, u.Type, u.OccurredAt, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert service update: %w", err)
	}
	return nil
}

func (s *Postgres) ListServiceUpdates(ctx context.Context, projectID string) ([]domain.ServiceUpdate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, title, body, type, occurred_at, created_at
		FROM service_updates WHERE project_id = $1
		ORDER BY occurred_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: list service updates: %w", err)
	}
	defer rows.Close()

	var out []domain.ServiceUpdate
	for rows.Next() {
		var u domain.ServiceUpdate
		if err := rows.Scan(&u.ID, &u.ProjectID, &u.Title, &u.Body, &u.Type, &u.OccurredAt, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan service update: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
