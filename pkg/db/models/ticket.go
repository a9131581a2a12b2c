package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/hmardones/ticketero-backend/pkg/enums"
)

// Ticket is a unit of queued work. At most one ticket per national id may be
// in an active status at a time.
type Ticket struct {
	ID                   uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Number               string             `gorm:"column:number;type:text;not null;uniqueIndex"`
	NationalID           string             `gorm:"column:national_id;type:text;not null"`
	Phone                *string            `gorm:"column:phone;type:text"`
	BranchOffice         string             `gorm:"column:branch_office;type:text;not null"`
	QueueType            enums.QueueType    `gorm:"column:queue_type;type:queue_type_enum;not null"`
	Status               enums.TicketStatus `gorm:"column:status;type:ticket_status_enum;not null;default:WAITING"`
	PositionInQueue      int                `gorm:"column:position_in_queue;not null;default:0"`
	EstimatedWaitMinutes int                `gorm:"column:estimated_wait_minutes;not null;default:0"`
	AdvisorID            *uuid.UUID         `gorm:"column:advisor_id;type:uuid"`
	ModuleNumber         *int               `gorm:"column:module_number"`
	CreatedAt            time.Time          `gorm:"column:created_at;type:timestamptz;autoCreateTime"`
	UpdatedAt            time.Time          `gorm:"column:updated_at;type:timestamptz;autoUpdateTime"`
}

// TableName overrides the default pluralization.
func (Ticket) TableName() string { return "tickets" }
