package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-testprep/internal/rbac"
)

// MountAttempts registers the attempt routes. The router must already carry
// the JWT middleware so subject and role are in the request context.
func MountAttempts(r chi.Router, svc Attempts) {
	r.With(rbac.Require(rbac.AttemptCreate)).
		Post("/attempts", StartAttemptHandler(svc))
	r.With(rbac.Require(rbac.AttemptViewOwn)).
		Get("/attempts", ListAttemptsHandler(svc))
	r.With(rbac.RequireAny(rbac.AttemptViewOwn, rbac.AttemptViewAll)).
		Get("/attempts/{attemptID}", GetAttemptHandler(svc))
	r.With(rbac.Require(rbac.AttemptSave)).
		Put("/attempts/{attemptID}/module-order", SetModuleOrderHandler(svc))
	r.With(rbac.Require(rbac.AttemptSave)).
		Patch("/attempts/{attemptID}/progress", SaveProgressHandler(svc))
	r.With(rbac.Require(rbac.AttemptSubmit)).
		Post("/attempts/{attemptID}/submit", SubmitAttemptHandler(svc))
	r.With(rbac.Require(rbac.AttemptCancel)).
		Post("/attempts/{attemptID}/cancel", CancelAttemptHandler(svc))
	r.With(rbac.Require(rbac.AttemptGrade)).
		Post("/attempts/{attemptID}/evaluations", RecordEvaluationHandler(svc))
}
