package exam

import (
	"context"
	"errors"
	"fmt"

	"github.com/mind-engage/mindengage-testprep/internal/catalog"
)

const quizSectionName = "Quiz"

// Assembler turns a template into the concrete sections of a new attempt.
type Assembler struct {
	catalog catalog.Store
	sampler *Sampler
}

func NewAssembler(c catalog.Store, s *Sampler) *Assembler {
	return &Assembler{catalog: c, sampler: s}
}

// Build resolves every section of t to question ids. Quiz templates yield a
// single section; other templates yield one section per configured section,
// in template order.
func (a *Assembler) Build(ctx context.Context, t catalog.TestTemplate) ([]AttemptSection, error) {
	switch t.TestType {
	case catalog.TestQuiz:
		return a.buildQuiz(ctx, t)
	case catalog.TestFullLength, catalog.TestSectional:
		return a.buildSections(ctx, t)
	default:
		return nil, fmt.Errorf("%w: unknown test type %q", ErrInvalidArgument, t.TestType)
	}
}

func (a *Assembler) buildQuiz(ctx context.Context, t catalog.TestTemplate) ([]AttemptSection, error) {
	qc := t.QuizConfig
	if qc == nil {
		return nil, fmt.Errorf("%w: quiz template %s has no quiz config", ErrInvalidArgument, t.ID)
	}
	if qc.TotalQuestions <= 0 {
		return nil, fmt.Errorf("%w: quiz template %s asks for %d questions", ErrInvalidArgument, t.ID, qc.TotalQuestions)
	}
	ids, err := a.sampler.Sample(ctx, catalog.Filter{
		ExamID:       t.ExamID,
		SectionID:    qc.SectionID,
		Types:        ParseList(qc.QuestionTypes),
		Difficulties: qc.Difficulties,
		Tags:         qc.Tags,
		Search:       qc.Search,
	}, qc.TotalQuestions)
	if err != nil {
		return nil, err
	}
	dur := qc.DurationMinutes
	if dur == 0 {
		dur = t.DurationMinutes
	}
	return []AttemptSection{newSection(qc.SectionID, quizSectionName, dur, ids)}, nil
}

func (a *Assembler) buildSections(ctx context.Context, t catalog.TestTemplate) ([]AttemptSection, error) {
	if len(t.Sections) == 0 {
		return nil, fmt.Errorf("%w: template %s has no sections", ErrInvalidArgument, t.ID)
	}
	ex, err := a.catalog.GetExam(ctx, t.ExamID)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		// names and durations can still come from the template
		ex = catalog.Exam{ID: t.ExamID}
	case err != nil:
		return nil, fmt.Errorf("%w: load exam %s: %v", ErrInternal, t.ExamID, err)
	}

	out := make([]AttemptSection, 0, len(t.Sections))
	for _, sc := range t.Sections {
		var ids []string
		switch sc.SelectionMode {
		case catalog.SelectionFixed:
			ids = a.sampler.Fixed(sc.QuestionIDs)
		case catalog.SelectionRandom:
			rc := sc.RandomConfig
			if rc == nil {
				rc = &catalog.RandomConfig{}
			}
			ids, err = a.sampler.Sample(ctx, catalog.Filter{
				ExamID:       t.ExamID,
				SectionID:    sc.SectionID,
				Types:        rc.QuestionTypes,
				Difficulties: rc.Difficulties,
				Tags:         rc.Tags,
			}, rc.QuestionCount)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: section %s: unknown selection mode %q", ErrInvalidArgument, sc.SectionID, sc.SelectionMode)
		}

		name, dur := sc.Name, sc.DurationMinutes
		if cs, ok := ex.Section(sc.SectionID); ok {
			if name == "" {
				name = cs.Name
			}
			if dur == 0 {
				dur = cs.DurationMinutes
			}
		}
		if name == "" {
			name = sc.SectionID
		}
		out = append(out, newSection(sc.SectionID, name, dur, ids))
	}
	return out, nil
}

func newSection(id, name string, dur int, ids []string) AttemptSection {
	s := AttemptSection{
		SectionID:       id,
		Name:            name,
		DurationMinutes: dur,
		Status:          SectionNotStarted,
		Questions:       make([]AttemptQuestion, len(ids)),
	}
	for i, qid := range ids {
		s.Questions[i] = AttemptQuestion{
			QuestionID:          qid,
			Order:               i + 1,
			AnswerOptionIndexes: []int{},
		}
	}
	return s
}

// TotalQuestions counts question slots across sections.
func TotalQuestions(sections []AttemptSection) int {
	n := 0
	for _, s := range sections {
		n += len(s.Questions)
	}
	return n
}
