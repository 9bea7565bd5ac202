package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-testprep/internal/db"
	syncx "github.com/mind-engage/mindengage-testprep/internal/sync"
)

// SQLStore persists each attempt as a JSON document with its lookup columns
// (owner, template, status, version) kept alongside.
type SQLStore struct {
	db     *sql.DB
	driver db.Driver
	events *syncx.EventRepo
}

func NewSQLStore(sqlDB *sql.DB, driver db.Driver) *SQLStore {
	return &SQLStore{db: sqlDB, driver: driver, events: syncx.NewEventRepo(driver, "")}
}

func (s *SQLStore) q(query string) string { return db.Rebind(s.driver, query) }

// Events exposes the attempt's event history.
func (s *SQLStore) Events(ctx context.Context, attemptID string) ([]syncx.Event, error) {
	return s.events.List(ctx, s.db, eventKey(attemptID))
}

func eventKey(id string) string { return "attempt:" + id }

type eventData struct {
	AttemptID  string  `json:"attemptId"`
	UserID     string  `json:"userId"`
	TemplateID string  `json:"templateId"`
	Version    int     `json:"version"`
	RawScore   float64 `json:"rawScore"`
}

func newEventData(a Attempt) eventData {
	return eventData{AttemptID: a.ID, UserID: a.UserID, TemplateID: a.TemplateID, Version: a.Version, RawScore: a.OverallStats.RawScore}
}

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("%w: encode attempt: %v", ErrInternal, err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrInternal, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO test_attempts
		(id,user_id,exam_id,template_id,status,version,doc_json,started_at,completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`),
		a.ID, a.UserID, a.ExamID, a.TemplateID, string(a.Status), a.Version, string(doc),
		a.StartedAt.Unix(), unixOrNil(a))
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: attempt already in progress", ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("%w: insert attempt: %v", ErrInternal, err)
	}
	if err := s.events.Append(ctx, tx, syncx.TypeAttemptStarted, eventKey(a.ID), newEventData(a)); err != nil {
		return fmt.Errorf("%w: append event: %v", ErrInternal, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrInternal, err)
	}
	return nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id, userID string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT doc_json, version FROM test_attempts WHERE id=$1 AND user_id=$2`), id, userID)
	return scanAttempt(row, id)
}

func (s *SQLStore) GetAttemptByID(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT doc_json, version FROM test_attempts WHERE id=$1`), id)
	return scanAttempt(row, id)
}

func (s *SQLStore) FindInProgress(ctx context.Context, userID, templateID string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT doc_json, version FROM test_attempts
		WHERE user_id=$1 AND template_id=$2 AND status='in_progress'`), userID, templateID)
	return scanAttempt(row, "in progress")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner, what string) (Attempt, error) {
	var (
		doc     string
		version int
	)
	err := row.Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, fmt.Errorf("%w: attempt %s", ErrNotFound, what)
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("%w: load attempt: %v", ErrInternal, err)
	}
	var a Attempt
	if err := json.Unmarshal([]byte(doc), &a); err != nil {
		return Attempt{}, fmt.Errorf("%w: decode attempt %s: %v", ErrInternal, what, err)
	}
	a.Version = version
	return a, nil
}

func (s *SQLStore) UpdateAttempt(ctx context.Context, a Attempt, expectedVersion int) (Attempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, fmt.Errorf("%w: begin: %v", ErrInternal, err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		prevStatus string
		version    int
	)
	err = tx.QueryRowContext(ctx, s.q(`SELECT status, version FROM test_attempts WHERE id=$1`), a.ID).Scan(&prevStatus, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, fmt.Errorf("%w: attempt %s", ErrNotFound, a.ID)
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("%w: load attempt: %v", ErrInternal, err)
	}
	if version != expectedVersion {
		return Attempt{}, fmt.Errorf("%w: attempt %s at version %d, expected %d", ErrConflict, a.ID, version, expectedVersion)
	}

	a.Version = expectedVersion + 1
	doc, err := json.Marshal(a)
	if err != nil {
		return Attempt{}, fmt.Errorf("%w: encode attempt: %v", ErrInternal, err)
	}
	res, err := tx.ExecContext(ctx, s.q(`UPDATE test_attempts
		SET status=$1, version=$2, doc_json=$3, completed_at=$4
		WHERE id=$5 AND version=$6`),
		string(a.Status), a.Version, string(doc), unixOrNil(a), a.ID, expectedVersion)
	if err != nil {
		return Attempt{}, fmt.Errorf("%w: update attempt: %v", ErrInternal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Attempt{}, fmt.Errorf("%w: attempt %s changed concurrently", ErrConflict, a.ID)
	}

	if typ := transitionEvent(Status(prevStatus), a.Status); typ != "" {
		if err := s.events.Append(ctx, tx, typ, eventKey(a.ID), newEventData(a)); err != nil {
			return Attempt{}, fmt.Errorf("%w: append event: %v", ErrInternal, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, fmt.Errorf("%w: commit: %v", ErrInternal, err)
	}
	return a, nil
}

// transitionEvent names the event a status change produces, if any.
// Progress saves (in_progress to in_progress) are not logged.
func transitionEvent(from, to Status) string {
	switch {
	case from == StatusInProgress && to == StatusCompleted:
		return syncx.TypeAttemptSubmitted
	case from == StatusInProgress && to == StatusCancelled:
		return syncx.TypeAttemptCancelled
	case from == StatusCompleted && to == StatusCompleted:
		return syncx.TypeAttemptRegraded
	}
	return ""
}

func (s *SQLStore) ListAttempts(ctx context.Context, userID string, opts ListOptions) ([]Attempt, error) {
	var (
		sb   strings.Builder
		args = []any{userID}
	)
	sb.WriteString(`SELECT doc_json, version FROM test_attempts WHERE user_id=$1`)
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		fmt.Fprintf(&sb, " AND status=$%d", len(args))
	}
	if opts.TemplateID != "" {
		args = append(args, opts.TemplateID)
		fmt.Fprintf(&sb, " AND template_id=$%d", len(args))
	}
	sb.WriteString(" ORDER BY started_at DESC, id DESC")
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
		if opts.Offset > 0 {
			args = append(args, opts.Offset)
			fmt.Fprintf(&sb, " OFFSET $%d", len(args))
		}
	}

	rows, err := s.db.QueryContext(ctx, s.q(sb.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list attempts: %v", ErrInternal, err)
	}
	defer rows.Close()
	out := make([]Attempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows, "list")
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list attempts: %v", ErrInternal, err)
	}
	if opts.Limit <= 0 && opts.Offset > 0 {
		out = paginate(out, ListOptions{Offset: opts.Offset})
	}
	return out, nil
}

func unixOrNil(a Attempt) any {
	if a.CompletedAt == nil {
		return nil
	}
	return a.CompletedAt.Unix()
}
