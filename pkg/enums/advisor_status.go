package enums

import "fmt"

// AdvisorStatus maps to the advisor_status enum in Postgres.
type AdvisorStatus string

const (
	AdvisorAvailable AdvisorStatus = "AVAILABLE"
	AdvisorBusy      AdvisorStatus = "BUSY"
	AdvisorOffline   AdvisorStatus = "OFFLINE"
)

var validAdvisorStatuses = []AdvisorStatus{
	AdvisorAvailable,
	AdvisorBusy,
	AdvisorOffline,
}

// IsValid reports whether the value matches the canonical advisor_status enum.
func (s AdvisorStatus) IsValid() bool {
	for _, candidate := range validAdvisorStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanReceiveAssignments reports whether the advisor may be handed a ticket.
func (s AdvisorStatus) CanReceiveAssignments() bool {
	return s == AdvisorAvailable
}

// ParseAdvisorStatus converts raw input into AdvisorStatus.
func ParseAdvisorStatus(value string) (AdvisorStatus, error) {
	for _, candidate := range validAdvisorStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid advisor status %q", value)
}
