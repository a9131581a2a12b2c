package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hmardones/ticketero-backend/pkg/enums"
)

// OutboxMessage is an intent to deliver a domain fact to the message
// transport. Rows are inserted in the same transaction as the domain mutation
// they report and only the publisher advances their status. Once SENT or
// FAILED a row is immutable and never deleted.
type OutboxMessage struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	RoutingKey    string                    `gorm:"column:routing_key;type:text;not null"`
	Status        enums.OutboxStatus        `gorm:"column:status;type:outbox_status_enum;not null;default:PENDING"`
	RetryCount    int                       `gorm:"column:retry_count;not null;default:0"`
	MaxRetries    int                       `gorm:"column:max_retries;not null;default:5"`
	NextRetryAt   *time.Time                `gorm:"column:next_retry_at;type:timestamptz"`
	LastError     *string                   `gorm:"column:last_error"`
	CreatedAt     time.Time                 `gorm:"column:created_at;type:timestamptz;autoCreateTime"`
	ProcessedAt   *time.Time                `gorm:"column:processed_at;type:timestamptz"`
}

// TableName overrides the default pluralization.
func (OutboxMessage) TableName() string { return "outbox_messages" }
