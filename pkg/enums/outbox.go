package enums

import "fmt"

// OutboxStatus maps to the outbox_status enum in Postgres. SENT and FAILED are
// terminal; a row never leaves either state.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "PENDING"
	OutboxSent    OutboxStatus = "SENT"
	OutboxFailed  OutboxStatus = "FAILED"
)

var validOutboxStatuses = []OutboxStatus{
	OutboxPending,
	OutboxSent,
	OutboxFailed,
}

// IsValid reports whether the value matches the canonical outbox_status enum.
func (s OutboxStatus) IsValid() bool {
	for _, candidate := range validOutboxStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the delivery status is final.
func (s OutboxStatus) IsTerminal() bool {
	return s == OutboxSent || s == OutboxFailed
}

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateTicket  OutboxAggregateType = "ticket"
	AggregateAdvisor OutboxAggregateType = "advisor"
)

var validOutboxAggregateTypes = []OutboxAggregateType{
	AggregateTicket,
	AggregateAdvisor,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validOutboxAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventTicketCreated   OutboxEventType = "ticket_created"
	EventTicketCalled    OutboxEventType = "ticket_called"
	EventTicketCompleted OutboxEventType = "ticket_completed"
	EventTicketRequeued  OutboxEventType = "ticket_requeued"
)

var validOutboxEventTypes = []OutboxEventType{
	EventTicketCreated,
	EventTicketCalled,
	EventTicketCompleted,
	EventTicketRequeued,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
