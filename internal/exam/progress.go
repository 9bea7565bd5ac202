package exam

import (
	"context"
	"fmt"
	"time"
)

// QuestionUpdate changes one question slot. Nil fields are left alone.
type QuestionUpdate struct {
	SectionIndex        int                 `json:"sectionIndex"`
	QuestionIndex       int                 `json:"questionIndex"`
	AnswerOptionIndexes []int               `json:"answerOptionIndexes,omitempty"`
	AnswerText          *string             `json:"answerText,omitempty"`
	Selections          *Selections         `json:"selections,omitempty"`
	DropdownSelections  *DropdownSelections `json:"dropdownSelections,omitempty"`
	IsAnswered          *bool               `json:"isAnswered,omitempty"`
	MarkedForReview     *bool               `json:"markedForReview,omitempty"`
	TimeSpentSeconds    *int                `json:"timeSpentSeconds,omitempty"`
}

// Navigation moves the candidate through a choose-your-order flow.
type Navigation struct {
	Phase                *Phase     `json:"phase,omitempty"`
	CurrentSectionIndex  *int       `json:"currentSectionIndex,omitempty"`
	CurrentQuestionIndex *int       `json:"currentQuestionIndex,omitempty"`
	BreakUsed            *bool      `json:"breakUsed,omitempty"`
	BreakStartedAt       *time.Time `json:"breakStartedAt,omitempty"`
	BreakEndsAt          *time.Time `json:"breakEndsAt,omitempty"`
}

func (n *Navigation) empty() bool {
	return n == nil || (n.Phase == nil && n.CurrentSectionIndex == nil && n.CurrentQuestionIndex == nil &&
		n.BreakUsed == nil && n.BreakStartedAt == nil && n.BreakEndsAt == nil)
}

type ProgressRequest struct {
	Updates              []QuestionUpdate `json:"updates"`
	TotalTimeUsedSeconds *int             `json:"totalTimeUsedSeconds,omitempty"`
	Navigation           *Navigation      `json:"navigation,omitempty"`
}

// Ack confirms a progress save.
type Ack struct {
	AttemptID string `json:"attemptId"`
	Version   int    `json:"version"`
	Applied   int    `json:"applied"`
	Skipped   int    `json:"skipped"`
}

// SaveProgress applies a batch of candidate edits to an in-progress attempt.
// Updates addressing slots that do not exist are skipped, not rejected.
// Scoring fields are never touched.
func (s *Service) SaveProgress(ctx context.Context, userID, attemptID string, req ProgressRequest) (Ack, error) {
	if err := validateProgress(req); err != nil {
		return Ack{}, err
	}
	var applied, skipped int
	out, err := s.mutate(ctx, userID, attemptID, func(a *Attempt) error {
		now := s.now().UTC()
		for _, u := range req.Updates {
			if applyUpdate(a, u, now) {
				applied++
			} else {
				skipped++
			}
		}
		if req.TotalTimeUsedSeconds != nil {
			a.TotalTimeUsedSeconds = *req.TotalTimeUsedSeconds
		}
		applyNavigation(a, req.Navigation)
		return nil
	})
	if err != nil {
		return Ack{}, err
	}
	return Ack{AttemptID: out.ID, Version: out.Version, Applied: applied, Skipped: skipped}, nil
}

func validateProgress(req ProgressRequest) error {
	if req.TotalTimeUsedSeconds != nil && *req.TotalTimeUsedSeconds < 0 {
		return fmt.Errorf("%w: totalTimeUsedSeconds is negative", ErrInvalidArgument)
	}
	for _, u := range req.Updates {
		if u.TimeSpentSeconds != nil && *u.TimeSpentSeconds < 0 {
			return fmt.Errorf("%w: timeSpentSeconds is negative", ErrInvalidArgument)
		}
	}
	if n := req.Navigation; n != nil && n.Phase != nil && !n.Phase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidArgument, *n.Phase)
	}
	return nil
}

func applyUpdate(a *Attempt, u QuestionUpdate, now time.Time) bool {
	if u.SectionIndex < 0 || u.SectionIndex >= len(a.Sections) {
		return false
	}
	sec := &a.Sections[u.SectionIndex]
	if u.QuestionIndex < 0 || u.QuestionIndex >= len(sec.Questions) {
		return false
	}
	q := &sec.Questions[u.QuestionIndex]

	if u.AnswerOptionIndexes != nil {
		q.AnswerOptionIndexes = append([]int{}, u.AnswerOptionIndexes...)
	}
	if u.AnswerText != nil {
		q.AnswerText = *u.AnswerText
	}
	if u.Selections != nil {
		q.Selections = Merge(q.Selections, u.Selections)
	}
	if u.DropdownSelections != nil {
		q.DropdownSelections = Merge(q.DropdownSelections, u.DropdownSelections)
	}
	if u.IsAnswered != nil {
		q.IsAnswered = *u.IsAnswered
	}
	if u.MarkedForReview != nil {
		q.MarkedForReview = *u.MarkedForReview
	}
	if u.TimeSpentSeconds != nil {
		q.TimeSpentSeconds = *u.TimeSpentSeconds
	}

	if sec.Status == SectionNotStarted {
		sec.Status = SectionInProgress
	}
	if sec.StartedAt == nil {
		t := now
		sec.StartedAt = &t
	}
	return true
}

func applyNavigation(a *Attempt, n *Navigation) {
	if n.empty() {
		return
	}
	if a.GmatMeta == nil {
		a.GmatMeta = &GmatMeta{ModuleOrder: []int{}}
	}
	gm := a.GmatMeta
	if n.Phase != nil {
		gm.Phase = *n.Phase
	}
	if n.CurrentSectionIndex != nil {
		gm.CurrentSectionIndex = *n.CurrentSectionIndex
	}
	if n.CurrentQuestionIndex != nil {
		gm.CurrentQuestionIndex = *n.CurrentQuestionIndex
	}
	if n.BreakUsed != nil {
		gm.BreakUsed = *n.BreakUsed
	}
	if n.BreakStartedAt != nil {
		t := n.BreakStartedAt.UTC()
		gm.BreakStartedAt = &t
	}
	if n.BreakEndsAt != nil {
		t := n.BreakEndsAt.UTC()
		gm.BreakEndsAt = &t
	}
}
