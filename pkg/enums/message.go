package enums

import "fmt"

// MessageStatus maps to the message_status enum in Postgres.
type MessageStatus string

const (
	MessagePending MessageStatus = "PENDING"
	MessageSent    MessageStatus = "SENT"
	MessageFailed  MessageStatus = "FAILED"
)

var validMessageStatuses = []MessageStatus{
	MessagePending,
	MessageSent,
	MessageFailed,
}

// IsValid reports whether the value matches the canonical message_status enum.
func (s MessageStatus) IsValid() bool {
	for _, candidate := range validMessageStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// MessageTemplate identifies the chat text rendered for a ticket milestone.
// One message record exists per (ticket, template) at most.
type MessageTemplate string

const (
	TemplateTicketCreated MessageTemplate = "ticket_created"
	TemplateUpcomingTurn  MessageTemplate = "upcoming_turn"
	TemplateYourTurn      MessageTemplate = "your_turn"
)

var validMessageTemplates = []MessageTemplate{
	TemplateTicketCreated,
	TemplateUpcomingTurn,
	TemplateYourTurn,
}

// IsValid reports whether the value matches a known template.
func (t MessageTemplate) IsValid() bool {
	for _, candidate := range validMessageTemplates {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseMessageTemplate converts raw input into MessageTemplate.
func ParseMessageTemplate(value string) (MessageTemplate, error) {
	for _, candidate := range validMessageTemplates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid message template %q", value)
}
