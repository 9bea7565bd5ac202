package exam

import (
	"time"

	"github.com/mind-engage/mindengage-testprep/internal/catalog"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
)

type SectionStatus string

const (
	SectionNotStarted SectionStatus = "not_started"
	SectionInProgress SectionStatus = "in_progress"
	SectionCompleted  SectionStatus = "completed"
)

// Phase is where a candidate is in a choose-your-order exam flow.
type Phase string

const (
	PhaseIntro               Phase = "intro"
	PhaseSelectOrder         Phase = "select_order"
	PhaseSectionInstructions Phase = "section_instructions"
	PhaseInSection           Phase = "in_section"
	PhaseReview              Phase = "review"
	PhaseBreak               Phase = "break"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseIntro, PhaseSelectOrder, PhaseSectionInstructions, PhaseInSection, PhaseReview, PhaseBreak:
		return true
	}
	return false
}

type AttemptQuestion struct {
	QuestionID          string              `json:"questionId"`
	Order               int                 `json:"order"`
	AnswerOptionIndexes []int               `json:"answerOptionIndexes"`
	AnswerText          string              `json:"answerText"`
	Selections          *Selections         `json:"selections,omitempty"`
	DropdownSelections  *DropdownSelections `json:"dropdownSelections,omitempty"`
	IsAnswered          bool                `json:"isAnswered"`
	MarkedForReview     bool                `json:"markedForReview"`
	TimeSpentSeconds    int                 `json:"timeSpentSeconds"`

	// written by scoring and by external evaluation
	IsCorrect        bool       `json:"isCorrect"`
	MarksAwarded     float64    `json:"marksAwarded"`
	ExternallyGraded bool       `json:"externallyGraded,omitempty"`
	EvaluatedAt      *time.Time `json:"evaluatedAt,omitempty"`
}

type SectionStats struct {
	TotalQuestions int     `json:"totalQuestions"`
	Attempted      int     `json:"attempted"`
	Correct        int     `json:"correct"`
	Incorrect      int     `json:"incorrect"`
	Skipped        int     `json:"skipped"`
	RawScore       float64 `json:"rawScore"`
}

type AttemptSection struct {
	SectionID       string            `json:"sectionId,omitempty"`
	Name            string            `json:"name"`
	DurationMinutes int               `json:"durationMinutes"`
	Status          SectionStatus     `json:"status"`
	StartedAt       *time.Time        `json:"startedAt,omitempty"`
	EndedAt         *time.Time        `json:"endedAt,omitempty"`
	Questions       []AttemptQuestion `json:"questions"`
	Stats           *SectionStats     `json:"stats,omitempty"`
}

// GmatMeta tracks module order and navigation for choose-your-order formats.
type GmatMeta struct {
	OrderChosen          bool       `json:"orderChosen"`
	ModuleOrder          []int      `json:"moduleOrder"`
	Phase                Phase      `json:"phase"`
	CurrentSectionIndex  int        `json:"currentSectionIndex"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	BreakUsed            bool       `json:"breakUsed"`
	BreakStartedAt       *time.Time `json:"breakStartedAt,omitempty"`
	BreakEndsAt          *time.Time `json:"breakEndsAt,omitempty"`
}

type OverallStats struct {
	TotalQuestions int     `json:"totalQuestions"`
	TotalAttempted int     `json:"totalAttempted"`
	TotalCorrect   int     `json:"totalCorrect"`
	TotalIncorrect int     `json:"totalIncorrect"`
	TotalSkipped   int     `json:"totalSkipped"`
	RawScore       float64 `json:"rawScore"`
}

// Attempt is one candidate's instance of a test template. It is the unit of
// persistence and of write serialization.
type Attempt struct {
	ID                   string           `json:"id"`
	UserID               string           `json:"userId"`
	ExamID               string           `json:"examId"`
	TemplateID           string           `json:"templateId"`
	TestType             catalog.TestType `json:"testType"`
	Status               Status           `json:"status"`
	Version              int              `json:"version"`
	StartedAt            time.Time        `json:"startedAt"`
	CompletedAt          *time.Time       `json:"completedAt,omitempty"`
	TotalTimeUsedSeconds int              `json:"totalTimeUsedSeconds"`
	GmatMeta             *GmatMeta        `json:"gmatMeta,omitempty"`
	Sections             []AttemptSection `json:"sections"`
	OverallStats         OverallStats     `json:"overallStats"`
}

// QuestionIDs lists every referenced question id in section then question order.
func (a Attempt) QuestionIDs() []string {
	out := make([]string, 0, a.OverallStats.TotalQuestions)
	for _, s := range a.Sections {
		for _, q := range s.Questions {
			out = append(out, q.QuestionID)
		}
	}
	return out
}

// Clone deep-copies the attempt so callers can mutate it without touching
// what a store holds.
func (a Attempt) Clone() Attempt {
	out := a
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		out.CompletedAt = &t
	}
	if a.GmatMeta != nil {
		gm := *a.GmatMeta
		gm.ModuleOrder = cloneInts(a.GmatMeta.ModuleOrder)
		gm.BreakStartedAt = cloneTime(a.GmatMeta.BreakStartedAt)
		gm.BreakEndsAt = cloneTime(a.GmatMeta.BreakEndsAt)
		out.GmatMeta = &gm
	}
	out.Sections = make([]AttemptSection, len(a.Sections))
	for i, s := range a.Sections {
		cs := s
		cs.StartedAt = cloneTime(s.StartedAt)
		cs.EndedAt = cloneTime(s.EndedAt)
		if s.Stats != nil {
			st := *s.Stats
			cs.Stats = &st
		}
		cs.Questions = make([]AttemptQuestion, len(s.Questions))
		for j, q := range s.Questions {
			cq := q
			cq.AnswerOptionIndexes = cloneInts(q.AnswerOptionIndexes)
			cq.Selections = q.Selections.Clone()
			cq.DropdownSelections = q.DropdownSelections.Clone()
			cq.EvaluatedAt = cloneTime(q.EvaluatedAt)
			cs.Questions[j] = cq
		}
		out.Sections[i] = cs
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneInts(s []int) []int {
	if s == nil {
		return nil
	}
	return append(make([]int, 0, len(s)), s...)
}
