package http

import (
	"net/http"
	"strings"

	authmw "github.com/mind-engage/mindengage-testprep/internal/auth/middleware"
	"github.com/mind-engage/mindengage-testprep/internal/exam"
)

// GET /attempts?status=...&templateId=...&limit=50&offset=0
// Always scoped to the caller's own attempts.
func ListAttemptsHandler(svc Attempts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		status := exam.Status(strings.TrimSpace(q.Get("status")))
		switch status {
		case "", exam.StatusInProgress, exam.StatusCompleted, exam.StatusCancelled, exam.StatusExpired:
		default:
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}

		sub := authmw.SubjectFromContext(r.Context())
		list, err := svc.ListAttempts(r.Context(), sub, exam.ListOptions{
			Status:     status,
			TemplateID: strings.TrimSpace(q.Get("templateId")),
			Limit:      parseIntDefault(q.Get("limit"), 50),
			Offset:     parseIntDefault(q.Get("offset"), 0),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []exam.Attempt{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}
