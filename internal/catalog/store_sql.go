package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-testprep/internal/db"
)

// SQLStore keeps catalog documents as JSON next to the columns used for lookup.
type SQLStore struct {
	db     *sql.DB
	driver db.Driver
}

func NewSQLStore(sqlDB *sql.DB, driver db.Driver) *SQLStore {
	return &SQLStore{db: sqlDB, driver: driver}
}

func (s *SQLStore) q(query string) string { return db.Rebind(s.driver, query) }

func (s *SQLStore) PutExam(ctx context.Context, e Exam) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO exams (id,title,doc_json,created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, doc_json=EXCLUDED.doc_json`),
		e.ID, e.Title, string(doc), time.Now().Unix())
	return err
}

func (s *SQLStore) PutTemplate(ctx context.Context, t TestTemplate) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return err
	}
	active := 0
	if t.IsActive {
		active = 1
	}
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO test_templates (id,exam_id,test_type,is_active,doc_json)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET exam_id=EXCLUDED.exam_id, test_type=EXCLUDED.test_type,
		is_active=EXCLUDED.is_active, doc_json=EXCLUDED.doc_json`),
		t.ID, t.ExamID, string(t.TestType), active, string(doc))
	return err
}

func (s *SQLStore) PutQuestion(ctx context.Context, q Question) error {
	doc, err := json.Marshal(q)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO questions (id,exam_id,section_id,question_type,difficulty,doc_json)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET exam_id=EXCLUDED.exam_id, section_id=EXCLUDED.section_id,
		question_type=EXCLUDED.question_type, difficulty=EXCLUDED.difficulty, doc_json=EXCLUDED.doc_json`),
		q.ID, q.ExamID, q.SectionID, string(q.QuestionType), q.Difficulty, string(doc))
	return err
}

func (s *SQLStore) GetExam(ctx context.Context, id string) (Exam, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT doc_json FROM exams WHERE id=$1`), id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, ErrNotFound
	}
	if err != nil {
		return Exam{}, err
	}
	var e Exam
	if err := json.Unmarshal([]byte(doc), &e); err != nil {
		return Exam{}, fmt.Errorf("exam %s: %w", id, err)
	}
	return e, nil
}

func (s *SQLStore) GetTemplate(ctx context.Context, id string) (TestTemplate, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT doc_json FROM test_templates WHERE id=$1`), id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return TestTemplate{}, ErrNotFound
	}
	if err != nil {
		return TestTemplate{}, err
	}
	var t TestTemplate
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return TestTemplate{}, fmt.Errorf("template %s: %w", id, err)
	}
	return t, nil
}

func (s *SQLStore) GetQuestions(ctx context.Context, ids []string) (map[string]Question, error) {
	out := make(map[string]Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT id, doc_json FROM questions WHERE id IN (`+strings.Join(ph, ",")+`)`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		var q Question
		if err := json.Unmarshal([]byte(doc), &q); err != nil {
			// an unreadable document is treated like a missing one
			continue
		}
		out[id] = q
	}
	return out, rows.Err()
}

func (s *SQLStore) FindQuestionIDs(ctx context.Context, f Filter) ([]string, error) {
	query := `SELECT id, doc_json FROM questions WHERE exam_id=$1`
	args := []any{f.ExamID}
	if f.SectionID != "" {
		query += ` AND section_id=$2`
		args = append(args, f.SectionID)
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0, 32)
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		var q Question
		if err := json.Unmarshal([]byte(doc), &q); err != nil {
			continue
		}
		if f.Matches(q) {
			out = append(out, id)
		}
	}
	return out, rows.Err()
}
