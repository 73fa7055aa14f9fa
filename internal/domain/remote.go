package domain

// RemoteRecord is one HubSpot service object as read from the CRM.
// It is never written back.
type RemoteRecord struct {
	ID            string
	Name          string
	Status        *string // free text, nil when the property is unset
	Stage         *string
	StartDate     string
	TargetEndDate string
	OwnerID       string // empty when unassigned
	CompanyIDs    []string
}

// RemoteOwner holds the owner fields the sync consumes.
type RemoteOwner struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
}

// RemoteCompany holds the company fields the sync consumes.
type RemoteCompany struct {
	ID     string
	Name   string
	Domain string
}

// EnrichedRecord is a record with exactly one company resolved.
type EnrichedRecord struct {
	Record  RemoteRecord
	Owner   *RemoteOwner
	Company RemoteCompany
}
