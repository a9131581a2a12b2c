package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/hmardones/ticketero-backend/pkg/enums"
)

// Message is a chat-notification record on the best-effort direct channel.
// Delivery bookkeeping here is independent of the outbox; see the scheduler.
type Message struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TicketID          uuid.UUID             `gorm:"column:ticket_id;type:uuid;not null;index"`
	Template          enums.MessageTemplate `gorm:"column:template;type:text;not null"`
	Status            enums.MessageStatus   `gorm:"column:status;type:message_status_enum;not null;default:PENDING"`
	ScheduledAt       time.Time             `gorm:"column:scheduled_at;type:timestamptz;not null"`
	SentAt            *time.Time            `gorm:"column:sent_at;type:timestamptz"`
	ProviderMessageID *string               `gorm:"column:provider_message_id;type:text"`
	Attempts          int                   `gorm:"column:attempts;not null;default:0"`
	CreatedAt         time.Time             `gorm:"column:created_at;type:timestamptz;autoCreateTime"`
}

// TableName overrides the default pluralization.
func (Message) TableName() string { return "messages" }
