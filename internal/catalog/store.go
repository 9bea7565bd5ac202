package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrNotFound = errors.New("catalog: not found")

// Store is the read side of the exam catalog the attempt engine depends on.
type Store interface {
	GetExam(ctx context.Context, id string) (Exam, error)
	GetTemplate(ctx context.Context, id string) (TestTemplate, error)
	// GetQuestions returns the questions that exist; missing ids are absent from the map.
	GetQuestions(ctx context.Context, ids []string) (map[string]Question, error)
	// FindQuestionIDs returns matching ids ordered by id.
	FindQuestionIDs(ctx context.Context, f Filter) ([]string, error)
}

type Memory struct {
	mu        sync.RWMutex
	exams     map[string]Exam
	templates map[string]TestTemplate
	questions map[string]Question
}

func NewMemory() *Memory {
	return &Memory{
		exams:     map[string]Exam{},
		templates: map[string]TestTemplate{},
		questions: map[string]Question{},
	}
}

func (m *Memory) PutExam(e Exam) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exams[e.ID] = e
}

func (m *Memory) PutTemplate(t TestTemplate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t
}

func (m *Memory) PutQuestions(qs ...Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range qs {
		m.questions[q.ID] = q
	}
}

// DeleteQuestion drops a question, e.g. to simulate catalog drift in tests.
func (m *Memory) DeleteQuestion(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.questions, id)
}

func (m *Memory) GetExam(_ context.Context, id string) (Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[id]
	if !ok {
		return Exam{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) GetTemplate(_ context.Context, id string) (TestTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return TestTemplate{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) GetQuestions(_ context.Context, ids []string) (map[string]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Question, len(ids))
	for _, id := range ids {
		if q, ok := m.questions[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

func (m *Memory) FindQuestionIDs(_ context.Context, f Filter) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, 16)
	for id, q := range m.questions {
		if f.Matches(q) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}
