package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-testprep/internal/exam"
)

// Attempts is the slice of exam.Service the handlers need.
type Attempts interface {
	StartAttempt(ctx context.Context, userID, templateID string) (exam.Attempt, bool, error)
	GetAttempt(ctx context.Context, userID, attemptID string) (exam.AttemptView, error)
	ReviewAttempt(ctx context.Context, attemptID string) (exam.AttemptView, error)
	ListAttempts(ctx context.Context, userID string, opts exam.ListOptions) ([]exam.Attempt, error)
	SetModuleOrder(ctx context.Context, userID, attemptID string, order []int) (exam.Attempt, error)
	SaveProgress(ctx context.Context, userID, attemptID string, req exam.ProgressRequest) (exam.Ack, error)
	SubmitAttempt(ctx context.Context, userID, attemptID string) (exam.Attempt, error)
	CancelAttempt(ctx context.Context, userID, attemptID string) (exam.Attempt, error)
	RecordEvaluation(ctx context.Context, attemptID string, ev exam.Evaluation) (exam.Attempt, error)
}

var validate = validator.New()

// decode reads a JSON body into v and runs struct validation on it.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("bad json: " + err.Error())
	}
	if err := validate.Struct(v); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, exam.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, exam.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, exam.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIntDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
