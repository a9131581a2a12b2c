package controllers

import (
	"net/http"

	"github.com/hmardones/ticketero-backend/api/responses"
	"github.com/hmardones/ticketero-backend/api/validators"
	"github.com/hmardones/ticketero-backend/internal/advisors"
	"github.com/hmardones/ticketero-backend/pkg/enums"
	"github.com/hmardones/ticketero-backend/pkg/logger"
)

type createAdvisorRequest struct {
	Name         string `json:"name" validate:"required,min=1"`
	Email        string `json:"email" validate:"required,email"`
	ModuleNumber int    `json:"module_number" validate:"required,min=1"`
}

// AdvisorCreate registers a new advisor starting in AVAILABLE.
func AdvisorCreate(svc *advisors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createAdvisorRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		advisor, err := svc.Create(r.Context(), advisors.CreateAdvisorInput{
			Name:         payload.Name,
			Email:        payload.Email,
			ModuleNumber: payload.ModuleNumber,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newAdvisorView(*advisor))
	}
}

// AdvisorGet loads one advisor by id.
func AdvisorGet(svc *advisors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.UUIDParam(r, "advisorID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		advisor, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newAdvisorView(*advisor))
	}
}

// AdvisorList returns every advisor ordered by module.
func AdvisorList(svc *advisors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		views := make([]advisorView, 0, len(all))
		for _, advisor := range all {
			views = append(views, newAdvisorView(advisor))
		}
		responses.WriteSuccess(w, views)
	}
}

type advisorStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=AVAILABLE BUSY OFFLINE"`
}

// AdvisorSetStatus transitions an advisor to the requested status.
func AdvisorSetStatus(svc *advisors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.UUIDParam(r, "advisorID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload advisorStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SetStatus(r.Context(), id, enums.AdvisorStatus(payload.Status)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": payload.Status})
	}
}

// AdvisorHeartbeat refreshes the advisor liveness timestamp. A BUSY advisor
// that stops calling this endpoint is eventually reclaimed by the recovery
// monitor.
func AdvisorHeartbeat(svc *advisors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.UUIDParam(r, "advisorID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Heartbeat(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
