package grading

import (
	"context"
	"errors"
	"strings"

	"github.com/mind-engage/mindengage-testprep/internal/catalog"
)

// ErrMalformedResponse marks a response the strategy could not interpret.
// Callers treat it as an incorrect answer worth zero.
var ErrMalformedResponse = errors.New("grading: malformed response")

// Response is the candidate's answer in grader-neutral form.
type Response struct {
	OptionIndexes []int
	Text          string
	Selections    map[string]string
	Dropdowns     map[string]int
}

// Answered reports whether the response carries any answer at all.
func (r Response) Answered() bool {
	return len(r.OptionIndexes) > 0 || strings.TrimSpace(r.Text) != "" ||
		len(r.Selections) > 0 || len(r.Dropdowns) > 0
}

// Result is the outcome of grading a single question response.
type Result struct {
	Correct     bool
	Points      float64  // marks on correct, minus negative marks on incorrect
	NeedsManual bool     // quality is graded out of band (essays)
	Feedback    []string // grader notes, e.g. when a fallback strategy was used
}

// Strategy grades a single question.
type Strategy interface {
	Evaluate(ctx context.Context, q catalog.Question, r Response) (bool, error)
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q catalog.Question, r Response) (Result, error)
}

type defaultGrader struct {
	strategies map[catalog.QuestionType]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q catalog.Question, r Response) (Result, error) {
	var res Result
	s, ok := g.strategies[q.QuestionType]
	if !ok {
		s = fallbackStrategy(q)
		res.Feedback = append(res.Feedback, "no strategy for "+string(q.QuestionType))
	}
	correct, err := s.Evaluate(ctx, q, r)
	if err != nil {
		return res, err
	}
	if _, manual := s.(essayStrategy); manual {
		res.NeedsManual = true
	}
	res.Correct = correct
	if correct {
		res.Points = q.MarksOrDefault()
	} else {
		res.Points = -q.NegativeMarks
	}
	return res, nil
}

// fallbackStrategy grades unknown types by shape: options mean MCQ, otherwise text.
func fallbackStrategy(q catalog.Question) Strategy {
	if len(q.Options) > 0 {
		return mcqStrategy{}
	}
	return freeTextStrategy{}
}

// Engine options

type Option func(*config)

type config struct {
	extra map[catalog.QuestionType]Strategy
}

// WithStrategy installs or replaces the strategy for a question type.
func WithStrategy(t catalog.QuestionType, s Strategy) Option {
	return func(c *config) { c.extra[t] = s }
}

// NewDefaultGrader installs built-in strategies.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{extra: map[catalog.QuestionType]Strategy{}}
	for _, o := range opts {
		o(cfg)
	}
	strategies := map[catalog.QuestionType]Strategy{
		catalog.TypeMCQSingle:         mcqStrategy{},
		catalog.TypeMCQMultiple:       mcqStrategy{},
		catalog.TypeFreeText:          freeTextStrategy{},
		catalog.TypeNumericEntry:      numericStrategy{},
		catalog.TypeEssay:             essayStrategy{},
		catalog.TypeAnalyticalWriting: essayStrategy{},
		catalog.TypeDataInsights:      newDataInsightsStrategy(),
	}
	for t, s := range cfg.extra {
		strategies[t] = s
	}
	return &defaultGrader{strategies: strategies}
}

// --- Strategies ---

// mcqStrategy requires the selected index set to equal the correct index set.
type mcqStrategy struct{}

func (mcqStrategy) Evaluate(_ context.Context, q catalog.Question, r Response) (bool, error) {
	return setEqual(toSet(r.OptionIndexes), toSet(q.CorrectOptionIndexes())), nil
}

type freeTextStrategy struct{}

func (freeTextStrategy) Evaluate(_ context.Context, q catalog.Question, r Response) (bool, error) {
	return textEqual(r.Text, q.CorrectAnswerText), nil
}

// essayStrategy records completion only; quality marks arrive later from the
// external evaluator.
type essayStrategy struct{}

func (essayStrategy) Evaluate(_ context.Context, _ catalog.Question, _ Response) (bool, error) {
	return true, nil
}

// helpers

func textEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func toSet(arr []int) map[int]struct{} {
	m := make(map[int]struct{}, len(arr))
	for _, v := range arr {
		m[v] = struct{}{}
	}
	return m
}

func setEqual(a, b map[int]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
