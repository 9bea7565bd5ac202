package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-testprep/internal/auth/middleware"
	"github.com/mind-engage/mindengage-testprep/internal/exam"
	"github.com/mind-engage/mindengage-testprep/internal/rbac"
)

type startAttemptReq struct {
	TemplateID string `json:"templateId" validate:"required"`
}

type moduleOrderReq struct {
	ModuleOrder []int `json:"moduleOrder" validate:"required,min=1,dive,min=0"`
}

// POST /attempts  {"templateId": "..."}
// 201 when a new attempt was assembled, 200 when an in-progress one resumed.
func StartAttemptHandler(svc Attempts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startAttemptReq
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sub := authmw.SubjectFromContext(r.Context())
		a, created, err := svc.StartAttempt(r.Context(), sub, req.TemplateID)
		if err != nil {
			writeError(w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, a)
	}
}

// GET /attempts/{attemptID}
// Callers with attempt:view-all read any attempt; others only their own.
func GetAttemptHandler(svc Attempts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		var (
			v   exam.AttemptView
			err error
		)
		if rbac.Allowed(r.Context(), rbac.AttemptViewAll) {
			v, err = svc.ReviewAttempt(r.Context(), id)
		} else {
			v, err = svc.GetAttempt(r.Context(), authmw.SubjectFromContext(r.Context()), id)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// PUT /attempts/{attemptID}/module-order  {"moduleOrder": [2,0,1]}
func SetModuleOrderHandler(svc Attempts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moduleOrderReq
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sub := authmw.SubjectFromContext(r.Context())
		a, err := svc.SetModuleOrder(r.Context(), sub, chi.URLParam(r, "attemptID"), req.ModuleOrder)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// PATCH /attempts/{attemptID}/progress
func SaveProgressHandler(svc Attempts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req exam.ProgressRequest
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sub := authmw.SubjectFromContext(r.Context())
		ack, err := svc.SaveProgress(r.Context(), sub, chi.URLParam(r, "attemptID"), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ack)
	}
}

// POST /attempts/{attemptID}/submit
func SubmitAttemptHandler(svc Attempts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		a, err := svc.SubmitAttempt(r.Context(), sub, chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// POST /attempts/{attemptID}/cancel
func CancelAttemptHandler(svc Attempts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		a, err := svc.CancelAttempt(r.Context(), sub, chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}
