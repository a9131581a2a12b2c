package outbox

import (
	"github.com/google/uuid"

	"github.com/hmardones/ticketero-backend/pkg/db/models"
	"github.com/hmardones/ticketero-backend/pkg/enums"
)

// RequeueAction tags events produced by worker recovery.
const RequeueAction = "REQUEUE"

// TicketQueueEvent is the payload carried for ticket lifecycle events
// (created, called, completed).
type TicketQueueEvent struct {
	TicketID             uuid.UUID       `json:"ticket_id"`
	TicketNumber         string          `json:"ticket_number"`
	QueueType            enums.QueueType `json:"queue_type"`
	Contact              *string         `json:"contact,omitempty"`
	PositionInQueue      int             `json:"position_in_queue"`
	EstimatedWaitMinutes int             `json:"estimated_wait_minutes"`
}

// TicketRequeueEvent is emitted when recovery returns a ticket to the queue.
type TicketRequeueEvent struct {
	TicketQueueEvent
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// NewTicketQueueEvent builds the standard payload from a ticket row.
func NewTicketQueueEvent(ticket models.Ticket) TicketQueueEvent {
	return TicketQueueEvent{
		TicketID:             ticket.ID,
		TicketNumber:         ticket.Number,
		QueueType:            ticket.QueueType,
		Contact:              ticket.Phone,
		PositionInQueue:      ticket.PositionInQueue,
		EstimatedWaitMinutes: ticket.EstimatedWaitMinutes,
	}
}

// NewTicketRequeueEvent builds the recovery payload from a ticket row.
func NewTicketRequeueEvent(ticket models.Ticket, reason string) TicketRequeueEvent {
	return TicketRequeueEvent{
		TicketQueueEvent: NewTicketQueueEvent(ticket),
		Action:           RequeueAction,
		Reason:           reason,
	}
}
