package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/hmardones/ticketero-backend/pkg/db/models"
	"github.com/hmardones/ticketero-backend/pkg/enums"
)

// ticketView is the public ticket shape.
type ticketView struct {
	ID                   uuid.UUID          `json:"id"`
	Number               string             `json:"number"`
	NationalID           string             `json:"national_id"`
	Phone                *string            `json:"phone,omitempty"`
	BranchOffice         string             `json:"branch_office"`
	QueueType            enums.QueueType    `json:"queue_type"`
	Status               enums.TicketStatus `json:"status"`
	PositionInQueue      int                `json:"position_in_queue"`
	EstimatedWaitMinutes int                `json:"estimated_wait_minutes"`
	AdvisorID            *uuid.UUID         `json:"advisor_id,omitempty"`
	ModuleNumber         *int               `json:"module_number,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

func newTicketView(t models.Ticket) ticketView {
	return ticketView{
		ID:                   t.ID,
		Number:               t.Number,
		NationalID:           t.NationalID,
		Phone:                t.Phone,
		BranchOffice:         t.BranchOffice,
		QueueType:            t.QueueType,
		Status:               t.Status,
		PositionInQueue:      t.PositionInQueue,
		EstimatedWaitMinutes: t.EstimatedWaitMinutes,
		AdvisorID:            t.AdvisorID,
		ModuleNumber:         t.ModuleNumber,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}

func newTicketViews(tickets []models.Ticket) []ticketView {
	views := make([]ticketView, 0, len(tickets))
	for _, t := range tickets {
		views = append(views, newTicketView(t))
	}
	return views
}

// advisorView is the public advisor shape.
type advisorView struct {
	ID                   uuid.UUID           `json:"id"`
	Name                 string              `json:"name"`
	Email                string              `json:"email"`
	Status               enums.AdvisorStatus `json:"status"`
	ModuleNumber         int                 `json:"module_number"`
	AssignedTicketsCount int                 `json:"assigned_tickets_count"`
	LastSeenAt           time.Time           `json:"last_seen_at"`
	CreatedAt            time.Time           `json:"created_at"`
}

func newAdvisorView(a models.Advisor) advisorView {
	return advisorView{
		ID:                   a.ID,
		Name:                 a.Name,
		Email:                a.Email,
		Status:               a.Status,
		ModuleNumber:         a.ModuleNumber,
		AssignedTicketsCount: a.AssignedTicketsCount,
		LastSeenAt:           a.LastSeenAt,
		CreatedAt:            a.CreatedAt,
	}
}
