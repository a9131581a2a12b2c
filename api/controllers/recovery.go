package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hmardones/ticketero-backend/api/responses"
	"github.com/hmardones/ticketero-backend/api/validators"
	"github.com/hmardones/ticketero-backend/internal/recovery"
	"github.com/hmardones/ticketero-backend/pkg/db/models"
	"github.com/hmardones/ticketero-backend/pkg/enums"
	pkgerrors "github.com/hmardones/ticketero-backend/pkg/errors"
	"github.com/hmardones/ticketero-backend/pkg/logger"
)

type recoverAdvisorRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

// AdvisorRecover forces the dead-worker rewind for one advisor: its live
// ticket goes back to the queue and the advisor returns to AVAILABLE. Safe to
// call repeatedly; every call leaves an audit event.
func AdvisorRecover(svc *recovery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.UUIDParam(r, "advisorID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload recoverAdvisorRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.RecoverOne(r.Context(), id, payload.Reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "recovered"})
	}
}

type recoveryEventView struct {
	ID               uuid.UUID          `json:"id"`
	RecoveryType     enums.RecoveryType `json:"recovery_type"`
	AdvisorID        uuid.UUID          `json:"advisor_id"`
	TicketID         *uuid.UUID         `json:"ticket_id,omitempty"`
	OldAdvisorStatus string             `json:"old_advisor_status"`
	NewAdvisorStatus string             `json:"new_advisor_status"`
	OldTicketStatus  *string            `json:"old_ticket_status,omitempty"`
	NewTicketStatus  *string            `json:"new_ticket_status,omitempty"`
	Reason           string             `json:"reason"`
	CreatedAt        time.Time          `json:"created_at"`
}

func newRecoveryEventView(e models.RecoveryEvent) recoveryEventView {
	return recoveryEventView{
		ID:               e.ID,
		RecoveryType:     e.RecoveryType,
		AdvisorID:        e.AdvisorID,
		TicketID:         e.TicketID,
		OldAdvisorStatus: e.OldAdvisorStatus,
		NewAdvisorStatus: e.NewAdvisorStatus,
		OldTicketStatus:  e.OldTicketStatus,
		NewTicketStatus:  e.NewTicketStatus,
		Reason:           e.Reason,
		CreatedAt:        e.CreatedAt,
	}
}

// RecoveryEventList returns the recovery audit trail, newest first. Accepts
// optional advisor_id and limit query parameters.
func RecoveryEventList(svc *recovery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var advisorID *uuid.UUID
		if raw := r.URL.Query().Get("advisor_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid advisor_id"))
				return
			}
			advisorID = &id
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a non-negative integer"))
				return
			}
			limit = parsed
		}

		events, err := svc.ListEvents(r.Context(), advisorID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		views := make([]recoveryEventView, 0, len(events))
		for _, event := range events {
			views = append(views, newRecoveryEventView(event))
		}
		responses.WriteSuccess(w, views)
	}
}
