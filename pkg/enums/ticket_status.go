package enums

import "fmt"

// TicketStatus maps to the ticket_status enum in Postgres.
type TicketStatus string

const (
	TicketWaiting   TicketStatus = "WAITING"
	TicketAttending TicketStatus = "ATTENDING"
	TicketCompleted TicketStatus = "COMPLETED"
	TicketCancelled TicketStatus = "CANCELLED"
	TicketNoShow    TicketStatus = "NO_SHOW"
)

var validTicketStatuses = []TicketStatus{
	TicketWaiting,
	TicketAttending,
	TicketCompleted,
	TicketCancelled,
	TicketNoShow,
}

// ActiveTicketStatuses returns the statuses in which a holder still occupies the queue.
func ActiveTicketStatuses() []TicketStatus {
	return []TicketStatus{TicketWaiting, TicketAttending}
}

// IsValid reports whether the value matches the canonical ticket_status enum.
func (s TicketStatus) IsValid() bool {
	for _, candidate := range validTicketStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsActive reports whether a ticket in this status still occupies the queue.
func (s TicketStatus) IsActive() bool {
	for _, candidate := range ActiveTicketStatuses() {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the ticket lifecycle. Recovery
// must never move a ticket out of a terminal status.
func (s TicketStatus) IsTerminal() bool {
	switch s {
	case TicketCompleted, TicketCancelled, TicketNoShow:
		return true
	default:
		return false
	}
}

// ParseTicketStatus converts raw input into TicketStatus.
func ParseTicketStatus(value string) (TicketStatus, error) {
	for _, candidate := range validTicketStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ticket status %q", value)
}
