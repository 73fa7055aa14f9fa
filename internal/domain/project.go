package domain

import "time"

// ProjectStatus is the closed local vocabulary for project state.
type ProjectStatus string

const (
	StatusOpen   ProjectStatus = "Open"
	StatusClosed ProjectStatus = "Closed"
)

// Client is the local row for a HubSpot company.
type Client struct {
	ID               string
	HubSpotCompanyID string
	Name             string
	Domain           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Project is the local row for a HubSpot service.
// HubSpotServiceID is the upsert key.
type Project struct {
	ID               string
	HubSpotServiceID string
	Name             string
	Status           *ProjectStatus
	Stage            string
	StartDate        string
	TargetEndDate    string
	OwnerID          string
	OwnerFirstName   string
	OwnerLastName    string
	OwnerEmail       string
	ClientID         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Update types accepted from the CRM webhook.
const (
	UpdateTypeUpdate    = "update"
	UpdateTypeAction    = "action"
	UpdateTypeMilestone = "milestone"
	UpdateTypeMessage   = "message"
)

// ServiceUpdate is a timeline entry pushed by the CRM for one project.
type ServiceUpdate struct {
	ID         string
	ProjectID  string
	Title      string
	Body       string
	Type       string
	OccurredAt time.Time
	CreatedAt  time.Time
}
