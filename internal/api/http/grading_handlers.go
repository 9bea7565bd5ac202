package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-testprep/internal/exam"
)

// POST /attempts/{attemptID}/evaluations
// {"questionId": "e1", "isCorrect": true, "marksAwarded": 4}
func RecordEvaluationHandler(svc Attempts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		if attemptID == "" {
			http.Error(w, "attemptID required", http.StatusBadRequest)
			return
		}
		var ev exam.Evaluation
		if err := decode(r, &ev); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		a, err := svc.RecordEvaluation(r.Context(), attemptID, ev)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}
