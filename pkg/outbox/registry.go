package outbox

import (
	"encoding/json"
	"fmt"

	"github.com/hmardones/ticketero-backend/pkg/db/models"
	"github.com/hmardones/ticketero-backend/pkg/enums"
)

// NonRetryableError signals the publisher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// NewNonRetryableError wraps err as terminal for the publisher.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

type payloadFactory func() any

// Registry maps each supported event type to its payload shape so the
// publisher can decode a stored row before handing it to the transport.
type Registry struct {
	factories map[enums.OutboxEventType]payloadFactory
}

// NewRegistry builds the registry for the ticket event catalog.
func NewRegistry() *Registry {
	return &Registry{factories: map[enums.OutboxEventType]payloadFactory{
		enums.EventTicketCreated:   func() any { return &TicketQueueEvent{} },
		enums.EventTicketCalled:    func() any { return &TicketQueueEvent{} },
		enums.EventTicketCompleted: func() any { return &TicketQueueEvent{} },
		enums.EventTicketRequeued:  func() any { return &TicketRequeueEvent{} },
	}}
}

// Resolve decodes the row payload into the event's declared shape. An
// unregistered event type or a malformed payload is non-retryable.
func (r *Registry) Resolve(msg models.OutboxMessage) (any, error) {
	factory, ok := r.factories[msg.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("no payload registered for event type %q", msg.EventType))
	}
	payload := factory()
	if err := json.Unmarshal(msg.Payload, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", msg.EventType, err))
	}
	return payload, nil
}
