package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/hmardones/ticketero-backend/pkg/enums"
)

// RecoveryEvent is an append-only audit record of a worker reclaim, written
// exclusively by the recovery monitor.
type RecoveryEvent struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RecoveryType     enums.RecoveryType `gorm:"column:recovery_type;type:recovery_type_enum;not null"`
	AdvisorID        uuid.UUID          `gorm:"column:advisor_id;type:uuid;not null"`
	TicketID         *uuid.UUID         `gorm:"column:ticket_id;type:uuid"`
	OldAdvisorStatus string             `gorm:"column:old_advisor_status;type:text;not null"`
	NewAdvisorStatus string             `gorm:"column:new_advisor_status;type:text;not null"`
	OldTicketStatus  *string            `gorm:"column:old_ticket_status;type:text"`
	NewTicketStatus  *string            `gorm:"column:new_ticket_status;type:text"`
	Reason           string             `gorm:"column:reason;type:text;not null"`
	CreatedAt        time.Time          `gorm:"column:created_at;type:timestamptz;autoCreateTime"`
}

// TableName overrides the default pluralization.
func (RecoveryEvent) TableName() string { return "recovery_events" }
