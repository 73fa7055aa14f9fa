package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"portal-sync/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS clients (
	id TEXT PRIMARY KEY,
	hubspot_company_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	domain TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	hubspot_service_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	status TEXT CHECK(status IN ('Open', 'Closed')),
	stage TEXT,
	start_date TEXT,
	target_end_date TEXT,
	owner_id TEXT,
	owner_first_name TEXT,
	owner_last_name TEXT,
	owner_email TEXT,
	client_id TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY (client_id) REFERENCES clients(id)
);

CREATE INDEX IF NOT EXISTS idx_projects_client_id ON projects(client_id);

CREATE TABLE IF NOT EXISTS service_updates (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	type TEXT NOT NULL CHECK(type IN ('update', 'action', 'milestone', 'message')),
	occurred_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_service_updates_project ON service_updates(project_id, occurred_at DESC);
`

// SQLite is a Store over a single SQLite file opened in WAL mode.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := path
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create db dir: %w", err)
		}
	}
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// one writer; avoids "database is locked" under concurrent handlers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) FindClientByCompanyID(ctx context.Context, companyID string) (domain.Client, error) {
	var c domain.Client
	err := s.db.QueryRowContext(ctx, `
		SELECT id, hubspot_company_id, name, domain, created_at, updated_at
		FROM clients WHERE hubspot_company_id = ?
	`, companyID).Scan(&c.ID, &c.HubSpotCompanyID, &c.Name, &c.Domain, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Client{}, ErrNotFound
	}
	if err != nil {
		return domain.Client{}, fmt.Errorf("store: find client %s: %w", companyID, err)
	}
	return c, nil
}

func (s *SQLite) CreateClient(ctx context.Context, c *domain.Client) (bool, error) {
	prepareClient(c)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, hubspot_company_id, name, domain, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(hubspot_company_id) DO NOTHING
	`, c.ID, c.HubSpotCompanyID, c.Name, c.Domain, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("store: create client %s: %w", c.HubSpotCompanyID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: create client %s: %w", c.HubSpotCompanyID, err)
	}
	if n == 1 {
		return true, nil
	}

	existing, err := s.FindClientByCompanyID(ctx, c.HubSpotCompanyID)
	if err != nil {
		return false, err
	}
	*c = existing
	return false, nil
}

func (s *SQLite) UpsertProject(ctx context.Context, p *domain.Project) error {
	prepareProject(p)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hubspot_service_id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			stage = excluded.stage,
			start_date = excluded.start_date,
			target_end_date = excluded.target_end_date,
			owner_id = excluded.owner_id,
			owner_first_name = excluded.owner_first_name,
			owner_last_name = excluded.owner_last_name,
			owner_email = excluded.owner_email,
			client_id = excluded.client_id,
			updated_at = excluded.updated_at
	`, projectArgs(p)...)
	if err != nil {
		return fmt.Errorf("store: upsert project %s: %w", p.HubSpotServiceID, err)
	}

	stored, err := s.GetProjectByServiceID(ctx, p.HubSpotServiceID)
	if err != nil {
		return err
	}
	p.ID = stored.ID
	p.CreatedAt = stored.CreatedAt
	return nil
}

func (s *SQLite) GetProjectByServiceID(ctx context.Context, serviceID string) (domain.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE hubspot_service_id = ?`, serviceID)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, ErrNotFound
	}
	if err != nil {
		return domain.Project{}, fmt.Errorf("store: get project %s: %w", serviceID, err)
	}
	return p, nil
}

func (s *SQLite) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name, hubspot_service_id`)
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

func (s *SQLite) InsertServiceUpdate(ctx context.Context, u *domain.ServiceUpdate) error {
	prepareUpdate(u)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO service_updates (id, project_id, title, body, type, occurred_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.ProjectID, u.Title, u.Body, u.Type, u.OccurredAt, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert service update: %w", err)
	}
	return nil
}

func (s *SQLite) ListServiceUpdates(ctx context.Context, projectID string) ([]domain.ServiceUpdate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, title, body, type, occurred_at, created_at
		FROM service_updates WHERE project_id = ?
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
