package hubspot

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"portal-sync/internal/domain"
)

// ServiceObjectType is the HubSpot object type id for services.
const ServiceObjectType = "0-162"

var serviceProperties = []string{
	"hs_object_id",
	"hs_name",
	"hs_status",
	"hs_pipeline_stage",
	"hs_start_date",
	"hs_target_end_date",
	"hubspot_owner_id",
}

var companyProperties = []string{"name", "domain"}

type PageRequest struct {
	Limit int
	After string // empty on the first page
}

type ServicePage struct {
	Records   []domain.RemoteRecord
	NextAfter string // empty on the last page
}

// ListServicesPage fetches one page of services with their company associations.
func (c *Client) ListServicesPage(ctx context.Context, pr PageRequest) (ServicePage, error) {
	if pr.Limit <= 0 {
		pr.Limit = 50
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(pr.Limit))
	q.Set("properties", strings.Join(serviceProperties, ","))
	q.Set("associations", "companies")
	if pr.After != "" {
		q.Set("after", pr.After)
	}

	var out listServicesResponse
	if err := c.getJSON(ctx, "/crm/v3/objects/"+ServiceObjectType, q, &out); err != nil {
		return ServicePage{}, fmt.Errorf("hubspot: list services: %w", err)
	}

	page := ServicePage{
		Records:   make([]domain.RemoteRecord, 0, len(out.Results)),
		NextAfter: out.nextAfter(),
	}
	for _, s := range out.Results {
		page.Records = append(page.Records, toRemoteRecord(s))
	}
	return page, nil
}

// GetCompany fetches the name and domain of one company.
func (c *Client) GetCompany(ctx context.Context, id string) (domain.RemoteCompany, error) {
	q := url.Values{}
	q.Set("properties", strings.Join(companyProperties, ","))

	var out companyObject
	if err := c.getJSON(ctx, "/crm/v3/objects/companies/"+url.PathEscape(id), q, &out); err != nil {
		return domain.RemoteCompany{}, fmt.Errorf("hubspot: get company %s: %w", id, err)
	}
	return domain.RemoteCompany{
		ID:     firstNonEmpty(string(out.ID), id),
		Name:   propString(out.Properties, "name"),
		Domain: propString(out.Properties, "domain"),
	}, nil
}

// GetOwner fetches one CRM owner (a HubSpot user).
func (c *Client) GetOwner(ctx context.Context, id string) (domain.RemoteOwner, error) {
	var out ownerObject
	if err := c.getJSON(ctx, "/crm/v3/owners/"+url.PathEscape(id), nil, &out); err != nil {
		return domain.RemoteOwner{}, fmt.Errorf("hubspot: get owner %s: %w", id, err)
	}
	return domain.RemoteOwner{
		ID:        firstNonEmpty(string(out.ID), id),
		FirstName: out.FirstName,
		LastName:  out.LastName,
		Email:     out.Email,
	}, nil
}

func toRemoteRecord(s serviceObject) domain.RemoteRecord {
	// a company can be listed once per association label
	seen := make(map[string]bool, len(s.Associations.Companies.Results))
	companies := make([]string, 0, len(s.Associations.Companies.Results))
	for _, a := range s.Associations.Companies.Results {
		id := strings.TrimSpace(string(a.ID))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		companies = append(companies, id)
	}

	return domain.RemoteRecord{
		ID:            firstNonEmpty(string(s.ID), propString(s.Properties, "hs_object_id")),
		Name:          propString(s.Properties, "hs_name"),
		Status:        prop(s.Properties, "hs_status"),
		Stage:         prop(s.Properties, "hs_pipeline_stage"),
		StartDate:     propString(s.Properties, "hs_start_date"),
		TargetEndDate: propString(s.Properties, "hs_target_end_date"),
		OwnerID:       strings.TrimSpace(propString(s.Properties, "hubspot_owner_id")),
		CompanyIDs:    companies,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}
