package sync

import (
	"strings"

	"portal-sync/internal/domain"
)

// closedStatus is the only remote status that closes a project.
const closedStatus = "COMPLETED"

// MapStatus normalizes a remote status. It never fails: nil stays nil,
// COMPLETED (any case, surrounding space ignored) is Closed, anything else is Open.
func MapStatus(remote *string) *domain.ProjectStatus {
	if remote == nil {
		return nil
	}
	st := domain.StatusOpen
	if strings.EqualFold(strings.TrimSpace(*remote), closedStatus) {
		st = domain.StatusClosed
	}
	return &st
}
