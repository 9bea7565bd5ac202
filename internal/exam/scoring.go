package exam

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-testprep/internal/catalog"
	"github.com/mind-engage/mindengage-testprep/internal/grading"
	"github.com/mind-engage/mindengage-testprep/internal/metrics"
)

// Scorer grades every question of an attempt and rolls results up into
// section and overall stats.
type Scorer struct {
	grader grading.Grader
	log    *zap.Logger
}

func NewScorer(g grading.Grader, log *zap.Logger) *Scorer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scorer{grader: g, log: log}
}

// Score writes isCorrect and marksAwarded on every question found in
// questions, closes every section at now (keeping an earlier endedAt) and
// recomputes all stats. Running it again on unchanged input yields the same
// attempt.
func (s *Scorer) Score(ctx context.Context, a *Attempt, questions map[string]catalog.Question, now time.Time) {
	for si := range a.Sections {
		sec := &a.Sections[si]
		for qi := range sec.Questions {
			aq := &sec.Questions[qi]
			q, ok := questions[aq.QuestionID]
			if !ok {
				s.log.Warn("question missing from catalog, not scored",
					zap.String("attempt_id", a.ID), zap.String("question_id", aq.QuestionID))
				metrics.QuestionsGraded.WithLabelValues("unknown", "missing").Inc()
				continue
			}
			s.scoreQuestion(ctx, a.ID, q, aq)
		}
		sec.Status = SectionCompleted
		if sec.EndedAt == nil {
			t := now
			sec.EndedAt = &t
		}
	}
	Rollup(a, questions)
}

func (s *Scorer) scoreQuestion(ctx context.Context, attemptID string, q catalog.Question, aq *AttemptQuestion) {
	typ := string(q.QuestionType)
	if !isAnswered(*aq) {
		aq.IsCorrect, aq.MarksAwarded = false, 0
		metrics.QuestionsGraded.WithLabelValues(typ, "skipped").Inc()
		return
	}
	if aq.ExternallyGraded && isEssay(q.QuestionType) {
		return
	}
	res, err := s.grader.Grade(ctx, q, responseOf(*aq))
	if err != nil {
		outcome := "error"
		if errors.Is(err, grading.ErrMalformedResponse) {
			outcome = "malformed"
		}
		s.log.Warn("response could not be graded, marked incorrect",
			zap.String("attempt_id", attemptID), zap.String("question_id", q.ID), zap.Error(err))
		metrics.QuestionsGraded.WithLabelValues(typ, outcome).Inc()
		aq.IsCorrect, aq.MarksAwarded = false, 0
		return
	}
	aq.IsCorrect, aq.MarksAwarded = res.Correct, res.Points
	for _, note := range res.Feedback {
		s.log.Info("grader note",
			zap.String("attempt_id", attemptID), zap.String("question_id", q.ID), zap.String("note", note))
	}
	switch {
	case res.NeedsManual:
		s.log.Info("awaiting external evaluation",
			zap.String("attempt_id", attemptID), zap.String("question_id", q.ID))
		metrics.QuestionsGraded.WithLabelValues(typ, "pending_review").Inc()
	case res.Correct:
		metrics.QuestionsGraded.WithLabelValues(typ, "correct").Inc()
	default:
		metrics.QuestionsGraded.WithLabelValues(typ, "incorrect").Inc()
	}
}

// Rollup recomputes section and overall stats from the per-question results
// already stored on a. Questions absent from questions are not counted.
func Rollup(a *Attempt, questions map[string]catalog.Question) {
	var overall OverallStats
	for si := range a.Sections {
		sec := &a.Sections[si]
		st := SectionStats{}
		for _, aq := range sec.Questions {
			if _, ok := questions[aq.QuestionID]; !ok {
				continue
			}
			st.TotalQuestions++
			if !isAnswered(aq) {
				st.Skipped++
				continue
			}
			st.Attempted++
			if aq.IsCorrect {
				st.Correct++
			} else {
				st.Incorrect++
			}
			st.RawScore += aq.MarksAwarded
		}
		sec.Stats = &st

		overall.TotalQuestions += st.TotalQuestions
		overall.TotalAttempted += st.Attempted
		overall.TotalCorrect += st.Correct
		overall.TotalIncorrect += st.Incorrect
		overall.TotalSkipped += st.Skipped
		overall.RawScore += st.RawScore
	}
	a.OverallStats = overall
}

// isAnswered derives answered-ness from content; the client flag is ignored.
func isAnswered(aq AttemptQuestion) bool {
	return len(aq.AnswerOptionIndexes) > 0 ||
		strings.TrimSpace(aq.AnswerText) != "" ||
		aq.Selections.Len() > 0 ||
		aq.DropdownSelections.Len() > 0
}

func isEssay(t catalog.QuestionType) bool {
	return t == catalog.TypeEssay || t == catalog.TypeAnalyticalWriting
}

func responseOf(aq AttemptQuestion) grading.Response {
	return grading.Response{
		OptionIndexes: aq.AnswerOptionIndexes,
		Text:          aq.AnswerText,
		Selections:    aq.Selections.Map(),
		Dropdowns:     aq.DropdownSelections.Map(),
	}
}
