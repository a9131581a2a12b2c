package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/hmardones/ticketero-backend/pkg/enums"
)

// Advisor is a branch agent. LastSeenAt is the heartbeat timestamp the
// recovery monitor compares against its timeout; a BUSY advisor whose
// heartbeat went stale is treated as a dead worker.
type Advisor struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name                 string              `gorm:"column:name;type:text;not null"`
	Email                string              `gorm:"column:email;type:text;not null;uniqueIndex"`
	Status               enums.AdvisorStatus `gorm:"column:status;type:advisor_status_enum;not null;default:AVAILABLE"`
	ModuleNumber         int                 `gorm:"column:module_number;not null"`
	AssignedTicketsCount int                 `gorm:"column:assigned_tickets_count;not null;default:0"`
	LastSeenAt           time.Time           `gorm:"column:last_seen_at;type:timestamptz;not null"`
	CreatedAt            time.Time           `gorm:"column:created_at;type:timestamptz;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;type:timestamptz;autoUpdateTime"`
}

// TableName overrides the default pluralization.
func (Advisor) TableName() string { return "advisors" }
