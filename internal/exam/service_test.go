package exam

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-testprep/internal/grading"
)

func TestStartAttempt_ResumesInProgress(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, gmatCatalog())

	first, created, err := svc.StartAttempt(ctx, "u1", "focus")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StatusInProgress, first.Status)
	assert.Equal(t, 8, first.OverallStats.TotalQuestions)
	assert.Equal(t, t0, first.StartedAt)

	again, created, err := svc.StartAttempt(ctx, "u1", "focus")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.Version, again.Version, "resume performs no writes")

	list, err := store.ListAttempts(ctx, "u1", ListOptions{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	other, created, err := svc.StartAttempt(ctx, "u2", "focus")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestStartAttempt_ConcurrentCallsShareOneAttempt(t *testing.T) {
	svc, _ := newTestService(t, gmatCatalog(), WithIDs(uuid.NewString))

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, _, err := svc.StartAttempt(context.Background(), "u1", "focus")
			if assert.NoError(t, err) {
				ids[i] = a.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestStartAttempt_Errors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, gmatCatalog())

	_, _, err := svc.StartAttempt(ctx, "u1", "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = svc.StartAttempt(ctx, "u1", "retired")
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = svc.StartAttempt(ctx, "", "focus")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGetAttempt_ScopedToOwner(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, gmatCatalog())
	a, _, err := svc.StartAttempt(ctx, "u1", "focus")
	require.NoError(t, err)

	_, err = svc.GetAttempt(ctx, "intruder", a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.SubmitAttempt(ctx, "intruder", a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	view, err := svc.GetAttempt(ctx, "u1", a.ID)
	require.NoError(t, err)
	require.Len(t, view.Questions, 8)
	assert.Equal(t, "q1", view.Questions[0]["id"])
	assert.NotContains(t, view.Questions[0], "explanation")

	review, err := svc.ReviewAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", review.Attempt.UserID)
	require.Len(t, review.Questions, 8)
	assert.NotContains(t, review.Questions[0], "explanation", "staff views are redacted too")
	_, err = svc.ReviewAttempt(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetModuleOrder(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, gmatCatalog())
	a, _, err := svc.StartAttempt(ctx, "u1", "focus")
	require.NoError(t, err)

	for _, bad := range [][]int{{0, 1, 5}, {}, {0, 1}, {0, 0, 1}, {-1, 0, 1}} {
		_, err := svc.SetModuleOrder(ctx, "u1", a.ID, bad)
		assert.ErrorIs(t, err, ErrInvalidArgument, "%v", bad)
	}
	view, err := svc.GetAttempt(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Nil(t, view.Attempt.GmatMeta, "rejected orders leave gmatMeta unset")
	assert.Equal(t, a.Version, view.Attempt.Version)

	got, err := svc.SetModuleOrder(ctx, "u1", a.ID, []int{2, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"di", "quant", "verbal"},
		[]string{got.Sections[0].SectionID, got.Sections[1].SectionID, got.Sections[2].SectionID})
	require.NotNil(t, got.GmatMeta)
	assert.True(t, got.GmatMeta.OrderChosen)
	assert.Equal(t, []int{2, 0, 1}, got.GmatMeta.ModuleOrder)
	assert.Equal(t, PhaseSectionInstructions, got.GmatMeta.Phase)
	assert.Zero(t, got.GmatMeta.CurrentSectionIndex)
	assert.Zero(t, got.GmatMeta.CurrentQuestionIndex)

	_, err = svc.SetModuleOrder(ctx, "u1", a.ID, []int{0, 1, 2})
	assert.ErrorIs(t, err, ErrConflict, "order is chosen once")
}

// answerFocus fills in a mix of right, wrong and blank answers: q1 right (+3),
// q2 wrong without penalty, v1 right (+1), the essay (+6) and d1 wrong (-0.5).
// q3, v2 and d2 stay blank.
func answerFocus(t *testing.T, svc *Service, id string) {
	t.Helper()
	_, err := svc.SaveProgress(context.Background(), "u1", id, ProgressRequest{Updates: []QuestionUpdate{
		{SectionIndex: 0, QuestionIndex: 0, AnswerOptionIndexes: []int{1}},
		{SectionIndex: 0, QuestionIndex: 1, AnswerOptionIndexes: []int{0}},
		{SectionIndex: 1, QuestionIndex: 0, AnswerText: ptr(" paris ")},
		{SectionIndex: 1, QuestionIndex: 2, AnswerText: ptr("An essay on markets.")},
		{SectionIndex: 2, QuestionIndex: 0, Selections: sel("s1", "yes", "s2", "yes")},
	}})
	require.NoError(t, err)
}

func TestSubmitAttempt_Scores(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, gmatCatalog())
	a, _, err := svc.StartAttempt(ctx, "u1", "focus")
	require.NoError(t, err)
	answerFocus(t, svc, a.ID)

	done, err := svc.SubmitAttempt(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, t0, *done.CompletedAt)

	assert.Equal(t, OverallStats{
		TotalQuestions: 8,
		TotalAttempted: 5,
		TotalCorrect:   3,
		TotalIncorrect: 2,
		TotalSkipped:   3,
		RawScore:       9.5,
	}, done.OverallStats)
	assert.Equal(t, done.OverallStats.TotalQuestions, done.OverallStats.TotalAttempted+done.OverallStats.TotalSkipped)

	quant := done.Sections[0]
	assert.Equal(t, SectionCompleted, quant.Status)
	require.NotNil(t, quant.EndedAt)
	assert.Equal(t, &SectionStats{TotalQuestions: 3, Attempted: 2, Correct: 1, Incorrect: 1, Skipped: 1, RawScore: 3}, quant.Stats)
	assert.Equal(t, 3.0, quant.Questions[0].MarksAwarded)
	assert.True(t, quant.Questions[0].IsCorrect)
	assert.False(t, quant.Questions[2].IsCorrect)

	di := done.Sections[2]
	assert.False(t, di.Questions[0].IsCorrect)
	assert.Equal(t, -0.5, di.Questions[0].MarksAwarded)

	_, err = svc.SubmitAttempt(ctx, "u1", a.ID)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = svc.SaveProgress(ctx, "u1", a.ID, ProgressRequest{})
	assert.ErrorIs(t, err, ErrConflict)

	view, err := svc.GetAttempt(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Contains(t, view.Questions[0], "explanation", "completed attempts reveal the key")
}

func TestSubmitAttempt_NegativeMarking(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, gmatCatalog())
	a, _, err := svc.StartAttempt(ctx, "u1", "focus")
	require.NoError(t, err)

	_, err = svc.SaveProgress(ctx, "u1", a.ID, ProgressRequest{Updates: []QuestionUpdate{
		{SectionIndex: 0, QuestionIndex: 0, AnswerOptionIndexes: []int{3}},
	}})
	require.NoError(t, err)
	done, err := svc.SubmitAttempt(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, -1.0, done.Sections[0].Questions[0].MarksAwarded)
	assert.Equal(t, -1.0, done.OverallStats.RawScore)
}

func TestSubmitAttempt_CatalogFailureLeavesAttemptOpen(t *testing.T) {
	ctx := context.Background()
	cat := &flakyCatalog{Store: gmatCatalog()}
	svc, _ := newTestService(t, cat)
	a, _, err := svc.StartAttempt(ctx, "u1", "focus")
	require.NoError(t, err)
	answerFocus(t, svc, a.ID)

	cat.failQuestions = true
	_, err = svc.SubmitAttempt(ctx, "u1", a.ID)
	assert.ErrorIs(t, err, ErrInternal)

	cat.failQuestions = false
	view, err := svc.GetAttempt(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, view.Attempt.Status)
	assert.Nil(t, view.Attempt.CompletedAt)
	assert.Equal(t, []int{1}, view.Attempt.Sections[0].Questions[0].AnswerOptionIndexes)
	assert.Zero(t, view.Attempt.OverallStats.RawScore)
}

func TestSubmitAttempt_MissingQuestionIsSkipped(t *testing.T) {
	ctx := context.Background()
	cat := gmatCatalog()
	svc, _ := newTestService(t, cat)
	a, _, err := svc.StartAttempt(ctx, "u1", "focus")
	require.NoError(t, err)
	answerFocus(t, svc, a.ID)

	cat.DeleteQuestion("q2")
	done, err := svc.SubmitAttempt(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, done.OverallStats.TotalQuestions)
	assert.Equal(t, 4, done.OverallStats.TotalAttempted)
	assert.Equal(t, 9.5, done.OverallStats.RawScore)
}

func TestCancelAttempt_FreesSlot(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, gmatCatalog())
	a, _, err := svc.StartAttempt(ctx, "u1", "focus")
	require.NoError(t, err)

	c, err := svc.CancelAttempt(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, c.Status)

	b, created, err := svc.StartAttempt(ctx, "u1", "focus")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, a.ID, b.ID)

	_, err = svc.CancelAttempt(ctx, "u1", a.ID)
	assert.ErrorIs(t, err, ErrConflict)

	list, err := svc.ListAttempts(ctx, "u1", ListOptions{Status: StatusCancelled})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)
}

func TestRecordEvaluation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, gmatCatalog())
	a, _, err := svc.StartAttempt(ctx, "u1", "focus")
	require.NoError(t, err)
	answerFocus(t, svc, a.ID)

	_, err = svc.RecordEvaluation(ctx, a.ID, Evaluation{QuestionID: "e1", IsCorrect: true, MarksAwarded: 4})
	assert.ErrorIs(t, err, ErrConflict, "only completed attempts are evaluated")

	done, err := svc.SubmitAttempt(ctx, "u1", a.ID)
	require.NoError(t, err)

	_, err = svc.RecordEvaluation(ctx, a.ID, Evaluation{QuestionID: "q1", IsCorrect: false})
	assert.ErrorIs(t, err, ErrInvalidArgument, "not an essay")
	_, err = svc.RecordEvaluation(ctx, a.ID, Evaluation{QuestionID: "zzz"})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := svc.RecordEvaluation(ctx, a.ID, Evaluation{QuestionID: "e1", IsCorrect: true, MarksAwarded: 4})
	require.NoError(t, err)
	essay := got.Sections[1].Questions[2]
	assert.True(t, essay.ExternallyGraded)
	assert.Equal(t, 4.0, essay.MarksAwarded)
	require.NotNil(t, essay.EvaluatedAt)
	assert.Equal(t, done.OverallStats.RawScore-2, got.OverallStats.RawScore)
	assert.Equal(t, 7.5, got.Sections[1].Stats.RawScore+got.Sections[0].Stats.RawScore+got.Sections[2].Stats.RawScore)

	// a later verdict replaces the earlier one
	got, err = svc.RecordEvaluation(ctx, a.ID, Evaluation{QuestionID: "e1", IsCorrect: false, MarksAwarded: 0})
	require.NoError(t, err)
	assert.Equal(t, 3.5, got.OverallStats.RawScore)
	assert.Equal(t, 2, got.OverallStats.TotalCorrect)
	assert.Equal(t, 3, got.OverallStats.TotalIncorrect)

	// marks outside [-negativeMarks, marks] are rejected and change nothing
	for _, marks := range []float64{1000, 6.5, -0.5} {
		_, err = svc.RecordEvaluation(ctx, a.ID, Evaluation{QuestionID: "e1", IsCorrect: true, MarksAwarded: marks})
		assert.ErrorIs(t, err, ErrInvalidArgument, marks)
	}
	view, err := svc.GetAttempt(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.5, view.Attempt.OverallStats.RawScore)

	got, err = svc.RecordEvaluation(ctx, a.ID, Evaluation{QuestionID: "e1", IsCorrect: true, MarksAwarded: 6})
	require.NoError(t, err)
	assert.Equal(t, 9.5, got.OverallStats.RawScore, "full marks are in range")
}

func TestScore_Idempotent(t *testing.T) {
	ctx := context.Background()
	cat := gmatCatalog()
	svc, _ := newTestService(t, cat)
	a, _, err := svc.StartAttempt(ctx, "u1", "focus")
	require.NoError(t, err)
	answerFocus(t, svc, a.ID)
	view, err := svc.GetAttempt(ctx, "u1", a.ID)
	require.NoError(t, err)

	qs, err := cat.GetQuestions(ctx, view.Attempt.QuestionIDs())
	require.NoError(t, err)
	once := view.Attempt.Clone()
	svc.scorer.Score(ctx, &once, qs, t0)
	twice := once.Clone()
	svc.scorer.Score(ctx, &twice, qs, t0.Add(time.Hour))
	assert.Equal(t, once, twice)
}

func TestScore_ExternallyGradedEssayKeepsVerdict(t *testing.T) {
	cat := gmatCatalog()
	qs, err := cat.GetQuestions(context.Background(), []string{"e1"})
	require.NoError(t, err)
	a := Attempt{Sections: []AttemptSection{{Questions: []AttemptQuestion{{
		QuestionID: "e1", AnswerText: "essay", ExternallyGraded: true, IsCorrect: false, MarksAwarded: 2,
	}}}}}
	NewScorer(grading.NewDefaultGrader(), nil).Score(context.Background(), &a, qs, t0)
	assert.False(t, a.Sections[0].Questions[0].IsCorrect)
	assert.Equal(t, 2.0, a.OverallStats.RawScore)
}
