package exam

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startFocus(t *testing.T) (*Service, Attempt) {
	t.Helper()
	svc, _ := newTestService(t, gmatCatalog())
	a, _, err := svc.StartAttempt(context.Background(), "u1", "focus")
	require.NoError(t, err)
	return svc, a
}

func load(t *testing.T, svc *Service, id string) Attempt {
	t.Helper()
	view, err := svc.GetAttempt(context.Background(), "u1", id)
	require.NoError(t, err)
	return view.Attempt
}

func TestSaveProgress_MergesSelections(t *testing.T) {
	ctx := context.Background()
	svc, a := startFocus(t)

	_, err := svc.SaveProgress(ctx, "u1", a.ID, ProgressRequest{Updates: []QuestionUpdate{
		{SectionIndex: 2, QuestionIndex: 0, Selections: sel("s1", "yes")},
	}})
	require.NoError(t, err)
	ack, err := svc.SaveProgress(ctx, "u1", a.ID, ProgressRequest{Updates: []QuestionUpdate{
		{SectionIndex: 2, QuestionIndex: 0, Selections: sel("s2", "no")},
	}})
	require.NoError(t, err)
	assert.Equal(t, Ack{AttemptID: a.ID, Version: 2, Applied: 1}, ack)

	q := load(t, svc, a.ID).Sections[2].Questions[0]
	assert.Equal(t, []string{"s1", "s2"}, q.Selections.Keys())
	assert.Equal(t, map[string]string{"s1": "yes", "s2": "no"}, q.Selections.Map())

	// a later value replaces an earlier one, position kept
	_, err = svc.SaveProgress(ctx, "u1", a.ID, ProgressRequest{Updates: []QuestionUpdate{
		{SectionIndex: 2, QuestionIndex: 0, Selections: sel("s1", "no")},
	}})
	require.NoError(t, err)
	q = load(t, svc, a.ID).Sections[2].Questions[0]
	assert.Equal(t, []string{"s1", "s2"}, q.Selections.Keys())
	v, _ := q.Selections.Get("s1")
	assert.Equal(t, "no", v)
}

func TestSaveProgress_DropdownsMergeSeparately(t *testing.T) {
	ctx := context.Background()
	svc, a := startFocus(t)

	a1 := NewOrderedMap[int]()
	a1.Set("dd1", 1)
	a2 := NewOrderedMap[int]()
	a2.Set("dd2", 0)
	for _, m := range []*DropdownSelections{a1, a2} {
		_, err := svc.SaveProgress(ctx, "u1", a.ID, ProgressRequest{Updates: []QuestionUpdate{
			{SectionIndex: 2, QuestionIndex: 1, DropdownSelections: m},
		}})
		require.NoError(t, err)
	}
	q := load(t, svc, a.ID).Sections[2].Questions[1]
	assert.Equal(t, map[string]int{"dd1": 1, "dd2": 0}, q.DropdownSelections.Map())
	assert.Nil(t, q.Selections)
}

func TestSaveProgress_ScalarsAndSectionStart(t *testing.T) {
	ctx := context.Background()
	svc, a := startFocus(t)

	_, err := svc.SaveProgress(ctx, "u1", a.ID, ProgressRequest{
		Updates: []QuestionUpdate{{
			SectionIndex:        0,
			QuestionIndex:       1,
			AnswerOptionIndexes: []int{0, 2},
			IsAnswered:          ptr(true),
			MarkedForReview:     ptr(true),
			TimeSpentSeconds:    ptr(75),
		}},
		TotalTimeUsedSeconds: ptr(120),
	})
	require.NoError(t, err)

	got := load(t, svc, a.ID)
	q := got.Sections[0].Questions[1]
	assert.Equal(t, []int{0, 2}, q.AnswerOptionIndexes)
	assert.True(t, q.IsAnswered)
	assert.True(t, q.MarkedForReview)
	assert.Equal(t, 75, q.TimeSpentSeconds)
	assert.Equal(t, 120, got.TotalTimeUsedSeconds)
	assert.Equal(t, SectionInProgress, got.Sections[0].Status)
	require.NotNil(t, got.Sections[0].StartedAt)
	assert.Equal(t, SectionNotStarted, got.Sections[1].Status)

	// omitted fields are kept, clearing needs an explicit empty list
	_, err = svc.SaveProgress(ctx, "u1", a.ID, ProgressRequest{Updates: []QuestionUpdate{
		{SectionIndex: 0, QuestionIndex: 1, MarkedForReview: ptr(false)},
	}})
	require.NoError(t, err)
	q = load(t, svc, a.ID).Sections[0].Questions[1]
	assert.Equal(t, []int{0, 2}, q.AnswerOptionIndexes)
	assert.False(t, q.MarkedForReview)

	_, err = svc.SaveProgress(ctx, "u1", a.ID, ProgressRequest{Updates: []QuestionUpdate{
		{SectionIndex: 0, QuestionIndex: 1, AnswerOptionIndexes: []int{}},
	}})
	require.NoError(t, err)
	assert.Empty(t, load(t, svc, a.ID).Sections[0].Questions[1].AnswerOptionIndexes)
}

func TestSaveProgress_SkipsOutOfRange(t *testing.T) {
	ctx := context.Background()
	svc, a := startFocus(t)

	ack, err := svc.SaveProgress(ctx, "u1", a.ID, ProgressRequest{Updates: []QuestionUpdate{
		{SectionIndex: 9, QuestionIndex: 0, AnswerText: ptr("x")},
		{SectionIndex: 0, QuestionIndex: 7, AnswerText: ptr("x")},
		{SectionIndex: -1, QuestionIndex: 0, AnswerText: ptr("x")},
		{SectionIndex: 0, QuestionIndex: 2, AnswerText: ptr("12")},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, ack.Applied)
	assert.Equal(t, 3, ack.Skipped)
	assert.Equal(t, "12", load(t, svc, a.ID).Sections[0].Questions[2].AnswerText)
}

func TestSaveProgress_NeverTouchesScoring(t *testing.T) {
	ctx := context.Background()
	svc, a := startFocus(t)
	_, err := svc.SaveProgress(ctx, "u1", a.ID, ProgressRequest{Updates: []QuestionUpdate{
		{SectionIndex: 0, QuestionIndex: 0, AnswerOptionIndexes: []int{1}},
	}})
	require.NoError(t, err)
	got := load(t, svc, a.ID)
	assert.False(t, got.Sections[0].Questions[0].IsCorrect)
	assert.Zero(t, got.Sections[0].Questions[0].MarksAwarded)
	assert.Nil(t, got.Sections[0].Stats)
	assert.Equal(t, OverallStats{TotalQuestions: 8}, got.OverallStats)
}

func TestSaveProgress_Navigation(t *testing.T) {
	ctx := context.Background()
	svc, a := startFocus(t)

	_, err := svc.SaveProgress(ctx, "u1", a.ID, ProgressRequest{})
	require.NoError(t, err)
	assert.Nil(t, load(t, svc, a.ID).GmatMeta, "no navigation fields, no gmatMeta")

	phase := PhaseBreak
	ends := t0.Add(10 * time.Minute)
	_, err = svc.SaveProgress(ctx, "u1", a.ID, ProgressRequest{Navigation: &Navigation{
		Phase:          &phase,
		BreakUsed:      ptr(true),
		BreakStartedAt: ptr(t0),
		BreakEndsAt:    &ends,
	}})
	require.NoError(t, err)
	gm := load(t, svc, a.ID).GmatMeta
	require.NotNil(t, gm)
	assert.Equal(t, PhaseBreak, gm.Phase)
	assert.True(t, gm.BreakUsed)
	assert.Equal(t, ends, *gm.BreakEndsAt)
	assert.False(t, gm.OrderChosen)

	_, err = svc.SaveProgress(ctx, "u1", a.ID, ProgressRequest{Navigation: &Navigation{CurrentQuestionIndex: ptr(4)}})
	require.NoError(t, err)
	gm = load(t, svc, a.ID).GmatMeta
	assert.Equal(t, PhaseBreak, gm.Phase, "absent fields are kept")
	assert.Equal(t, 4, gm.CurrentQuestionIndex)

	bad := Phase("lunch")
	_, err = svc.SaveProgress(ctx, "u1", a.ID, ProgressRequest{Navigation: &Navigation{Phase: &bad}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSaveProgress_Rejects(t *testing.T) {
	ctx := context.Background()
	svc, a := startFocus(t)

	_, err := svc.SaveProgress(ctx, "u1", a.ID, ProgressRequest{TotalTimeUsedSeconds: ptr(-5)})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = svc.SaveProgress(ctx, "u2", a.ID, ProgressRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.SaveProgress(ctx, "u1", "missing", ProgressRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
}
