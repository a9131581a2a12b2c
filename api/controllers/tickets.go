package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hmardones/ticketero-backend/api/responses"
	"github.com/hmardones/ticketero-backend/api/validators"
	"github.com/hmardones/ticketero-backend/internal/tickets"
	"github.com/hmardones/ticketero-backend/pkg/enums"
	pkgerrors "github.com/hmardones/ticketero-backend/pkg/errors"
	"github.com/hmardones/ticketero-backend/pkg/logger"
)

type createTicketRequest struct {
	NationalID   string  `json:"national_id" validate:"required,min=7,max=12"`
	Phone        *string `json:"phone,omitempty" validate:"omitempty,e164"`
	BranchOffice string  `json:"branch_office" validate:"required,min=1"`
	QueueType    string  `json:"queue_type" validate:"required,oneof=CAJA PERSONAL_BANKER EMPRESAS GERENCIA"`
}

// TicketCreate issues a new ticket at the back of its queue.
func TicketCreate(svc *tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createTicketRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ticket, err := svc.Create(r.Context(), tickets.CreateTicketInput{
			NationalID:   payload.NationalID,
			Phone:        payload.Phone,
			BranchOffice: payload.BranchOffice,
			QueueType:    enums.QueueType(payload.QueueType),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newTicketView(*ticket))
	}
}

// TicketGet loads one ticket by id.
func TicketGet(svc *tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.UUIDParam(r, "ticketID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ticket, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newTicketView(*ticket))
	}
}

// TicketGetByNumber loads one ticket by its public number, e.g. C07.
func TicketGetByNumber(svc *tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number := strings.ToUpper(chi.URLParam(r, "number"))
		if number == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "ticket number required"))
			return
		}

		ticket, err := svc.GetByNumber(r.Context(), number)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newTicketView(*ticket))
	}
}

// QueueBoard returns the waiting line for one queue, in service order.
func QueueBoard(svc *tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queue := enums.QueueType(strings.ToUpper(chi.URLParam(r, "queueType")))

		board, err := svc.Board(r.Context(), queue)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"queue_type": queue,
			"waiting":    len(board),
			"tickets":    newTicketViews(board),
		})
	}
}

type callNextRequest struct {
	AdvisorID string `json:"advisor_id" validate:"required,uuid"`
}

// QueueCallNext assigns the oldest waiting ticket in the queue to the given
// advisor. Responds 204 when the queue is empty.
func QueueCallNext(svc *tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queue := enums.QueueType(strings.ToUpper(chi.URLParam(r, "queueType")))

		var payload callNextRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		advisorID, err := parseUUIDField(payload.AdvisorID, "advisor_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ticket, err := svc.CallNext(r.Context(), queue, advisorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if ticket == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		responses.WriteSuccess(w, newTicketView(*ticket))
	}
}

type finishTicketRequest struct {
	Status string `json:"status" validate:"required,oneof=COMPLETED CANCELLED NO_SHOW"`
}

// TicketFinish closes an attending ticket with a terminal status.
func TicketFinish(svc *tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.UUIDParam(r, "ticketID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload finishTicketRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Finish(r.Context(), id, enums.TicketStatus(payload.Status)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": payload.Status})
	}
}
