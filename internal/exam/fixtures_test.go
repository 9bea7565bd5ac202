package exam

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-testprep/internal/catalog"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func sel(kv ...string) *Selections {
	m := NewOrderedMap[string]()
	for i := 0; i+1 < len(kv); i += 2 {
		m.Set(kv[i], kv[i+1])
	}
	return m
}

func options(n int, correct ...int) []catalog.Option {
	out := make([]catalog.Option, n)
	for i := range out {
		out[i] = catalog.Option{Text: fmt.Sprintf("option %d", i)}
	}
	for _, c := range correct {
		out[c].IsCorrect = true
	}
	return out
}

// gmatCatalog is a three-section exam with one template per assembly mode.
func gmatCatalog() *catalog.Memory {
	c := catalog.NewMemory()
	c.PutExam(catalog.Exam{ID: "gmat", Title: "GMAT Focus", Sections: []catalog.Section{
		{ID: "quant", Name: "Quantitative Reasoning", DurationMinutes: 45, QuestionCount: 3},
		{ID: "verbal", Name: "Verbal Reasoning", DurationMinutes: 45, QuestionCount: 3},
		{ID: "di", Name: "Data Insights", DurationMinutes: 45, QuestionCount: 2},
	}})
	c.PutQuestions(
		catalog.Question{ID: "q1", ExamID: "gmat", SectionID: "quant", QuestionType: catalog.TypeMCQSingle,
			Difficulty: "easy", Tags: []string{"algebra"}, QuestionText: "Solve for x", Options: options(4, 1),
			Marks: 3, NegativeMarks: 1, Explanation: "x is 2"},
		catalog.Question{ID: "q2", ExamID: "gmat", SectionID: "quant", QuestionType: catalog.TypeMCQMultiple,
			Difficulty: "hard", Tags: []string{"geometry"}, Options: options(4, 0, 2), Marks: 2},
		catalog.Question{ID: "q3", ExamID: "gmat", SectionID: "quant", QuestionType: catalog.TypeNumericEntry,
			Difficulty: "medium", Tags: []string{"algebra"}, CorrectAnswerText: "12"},
		catalog.Question{ID: "v1", ExamID: "gmat", SectionID: "verbal", QuestionType: catalog.TypeFreeText,
			CorrectAnswerText: "Paris", Source: "Atlas, 3rd ed."},
		catalog.Question{ID: "v2", ExamID: "gmat", SectionID: "verbal", QuestionType: catalog.TypeMCQSingle,
			Options: options(5, 0)},
		catalog.Question{ID: "e1", ExamID: "gmat", SectionID: "verbal", QuestionType: catalog.TypeEssay, Marks: 6},
		catalog.Question{ID: "d1", ExamID: "gmat", SectionID: "di", QuestionType: catalog.TypeDataInsights,
			Subtype: catalog.SubtypeMultiSource, NegativeMarks: 0.5,
			DataInsights: &catalog.DataInsights{Statements: []catalog.Statement{
				{ID: "s1", Text: "Revenue grew", Correct: "yes"},
				{ID: "s2", Text: "Costs fell", Correct: "no"},
			}}},
		catalog.Question{ID: "d2", ExamID: "gmat", SectionID: "di", QuestionType: catalog.TypeDataInsights,
			Subtype: catalog.SubtypeGraphics,
			DataInsights: &catalog.DataInsights{Dropdowns: []catalog.Dropdown{
				{ID: "dd1", Options: []string{"10%", "20%", "30%"}, CorrectIndex: 2},
			}}},
	)
	c.PutTemplate(catalog.TestTemplate{ID: "focus", ExamID: "gmat", TestType: catalog.TestFullLength, IsActive: true,
		Sections: []catalog.SectionConfig{
			{SectionID: "quant", SelectionMode: catalog.SelectionFixed, QuestionIDs: []string{"q1", "q2", "q3"}},
			{SectionID: "verbal", SelectionMode: catalog.SelectionFixed, QuestionIDs: []string{"v1", "v2", "e1"}},
			{SectionID: "di", SelectionMode: catalog.SelectionFixed, QuestionIDs: []string{"d1", "d2"}},
		}})
	c.PutTemplate(catalog.TestTemplate{ID: "retired", ExamID: "gmat", TestType: catalog.TestFullLength, IsActive: false,
		Sections: []catalog.SectionConfig{{SectionID: "quant", SelectionMode: catalog.SelectionFixed, QuestionIDs: []string{"q1"}}}})
	c.PutTemplate(catalog.TestTemplate{ID: "algebra-quiz", ExamID: "gmat", TestType: catalog.TestQuiz, IsActive: true,
		DurationMinutes: 20, QuizConfig: &catalog.QuizConfig{Tags: []string{"algebra"}, TotalQuestions: 5}})
	c.PutTemplate(catalog.TestTemplate{ID: "quant-drill", ExamID: "gmat", TestType: catalog.TestSectional, IsActive: true,
		Sections: []catalog.SectionConfig{{SectionID: "quant", Name: "Drill", DurationMinutes: 30,
			SelectionMode: catalog.SelectionRandom, RandomConfig: &catalog.RandomConfig{QuestionCount: 2}}}})
	return c
}

func identityShuffle(int, func(i, j int)) {}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("att-%d", n)
	}
}

func newTestService(t *testing.T, cat catalog.Store, opts ...ServiceOption) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	base := []ServiceOption{
		WithClock(func() time.Time { return t0 }),
		WithIDs(sequentialIDs()),
		WithSamplerOptions(WithShuffle(identityShuffle)),
	}
	return NewService(store, cat, append(base, opts...)...), store
}

// flakyCatalog fails exam or question lookups on demand.
type flakyCatalog struct {
	catalog.Store
	failQuestions bool
	failExam      bool
}

func (f *flakyCatalog) GetExam(ctx context.Context, id string) (catalog.Exam, error) {
	if f.failExam {
		return catalog.Exam{}, errors.New("catalog unavailable")
	}
	return f.Store.GetExam(ctx, id)
}

func (f *flakyCatalog) GetQuestions(ctx context.Context, ids []string) (map[string]catalog.Question, error) {
	if f.failQuestions {
		return nil, errors.New("catalog unavailable")
	}
	return f.Store.GetQuestions(ctx, ids)
}
