package catalog

import "strings"

type QuestionType string

const (
	TypeMCQSingle         QuestionType = "mcq_single"
	TypeMCQMultiple       QuestionType = "mcq_multiple"
	TypeFreeText          QuestionType = "free_text"
	TypeNumericEntry      QuestionType = "numeric_entry"
	TypeEssay             QuestionType = "essay"
	TypeAnalyticalWriting QuestionType = "gre_analytical_writing"
	TypeDataInsights      QuestionType = "data_insights"
)

// Subtype only applies to data_insights questions.
type Subtype string

const (
	SubtypeMultiSource Subtype = "multi_source_reasoning"
	SubtypeTwoPart     Subtype = "two_part_analysis"
	SubtypeTable       Subtype = "table_analysis"
	SubtypeGraphics    Subtype = "graphics_interpretation"
)

type Exam struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Sections []Section `json:"sections,omitempty"`
}

// Section returns the exam section with the given id.
func (e Exam) Section(id string) (Section, bool) {
	for _, s := range e.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

type Section struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	QuestionCount   int    `json:"questionCount,omitempty"`
}

type Option struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

type Statement struct {
	ID      string `json:"id"`
	Text    string `json:"text,omitempty"`
	Correct string `json:"correct"` // yes|no for multi-source, true|false for table analysis
}

type Column struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

type Row struct {
	ID   string `json:"id"`
	Text string `json:"text,omitempty"`
}

type Dropdown struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt,omitempty"`
	Options      []string `json:"options,omitempty"`
	CorrectIndex int      `json:"correctIndex"`
}

type Source struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

// DataInsights holds the subtype-specific structures of a data_insights question.
type DataInsights struct {
	Sources         []Source          `json:"sources,omitempty"`
	Statements      []Statement       `json:"statements,omitempty"`
	Columns         []Column          `json:"columns,omitempty"`
	Rows            []Row             `json:"rows,omitempty"`
	CorrectByColumn map[string]string `json:"correctByColumn,omitempty"`
	Dropdowns       []Dropdown        `json:"dropdowns,omitempty"`
}

type Question struct {
	ID                string        `json:"id"`
	ExamID            string        `json:"examId"`
	SectionID         string        `json:"sectionId,omitempty"`
	QuestionType      QuestionType  `json:"questionType"`
	Subtype           Subtype       `json:"subtype,omitempty"`
	Difficulty        string        `json:"difficulty,omitempty"`
	Tags              []string      `json:"tags,omitempty"`
	QuestionText      string        `json:"questionText,omitempty"`
	Stimulus          string        `json:"stimulus,omitempty"`
	Source            string        `json:"source,omitempty"`
	Options           []Option      `json:"options,omitempty"`
	CorrectAnswerText string        `json:"correctAnswerText,omitempty"`
	Explanation       string        `json:"explanation,omitempty"`
	Marks             float64       `json:"marks,omitempty"`
	NegativeMarks     float64       `json:"negativeMarks,omitempty"`
	DataInsights      *DataInsights `json:"dataInsights,omitempty"`
}

// MarksOrDefault returns the configured marks, or 1 when none are set.
func (q Question) MarksOrDefault() float64 {
	if q.Marks == 0 {
		return 1
	}
	return q.Marks
}

// CorrectOptionIndexes lists the indices of options flagged correct.
func (q Question) CorrectOptionIndexes() []int {
	out := make([]int, 0, 1)
	for i, o := range q.Options {
		if o.IsCorrect {
			out = append(out, i)
		}
	}
	return out
}

type TestType string

const (
	TestQuiz       TestType = "quiz"
	TestFullLength TestType = "full_length"
	TestSectional  TestType = "sectional"
)

type SelectionMode string

const (
	SelectionFixed  SelectionMode = "fixed"
	SelectionRandom SelectionMode = "random"
)

type QuizConfig struct {
	SectionID       string   `json:"sectionId,omitempty"`
	QuestionTypes   string   `json:"questionTypes,omitempty"` // comma list
	Difficulties    []string `json:"difficulties,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Search          string   `json:"search,omitempty"`
	TotalQuestions  int      `json:"totalQuestions"`
	DurationMinutes int      `json:"durationMinutes,omitempty"`
}

type RandomConfig struct {
	QuestionTypes []string `json:"questionTypes,omitempty"`
	Difficulties  []string `json:"difficulties,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	QuestionCount int      `json:"questionCount"`
}

type SectionConfig struct {
	SectionID       string        `json:"sectionId"`
	Name            string        `json:"name,omitempty"`
	DurationMinutes int           `json:"durationMinutes,omitempty"`
	SelectionMode   SelectionMode `json:"selectionMode"`
	QuestionIDs     []string      `json:"questionIds,omitempty"`
	RandomConfig    *RandomConfig `json:"randomConfig,omitempty"`
}

// TestTemplate is the authored blueprint an attempt is assembled from.
// QuizConfig is read for quiz templates, Sections for everything else.
type TestTemplate struct {
	ID              string          `json:"id"`
	ExamID          string          `json:"examId"`
	Title           string          `json:"title,omitempty"`
	TestType        TestType        `json:"testType"`
	IsActive        bool            `json:"isActive"`
	DurationMinutes int             `json:"durationMinutes,omitempty"`
	QuizConfig      *QuizConfig     `json:"quizConfig,omitempty"`
	Sections        []SectionConfig `json:"sections,omitempty"`
}

// Filter selects questions for random sampling. Empty slices match everything.
type Filter struct {
	ExamID       string
	SectionID    string
	Types        []string
	Difficulties []string
	Tags         []string
	Search       string
}

// Matches reports whether q satisfies every populated criterion of f.
func (f Filter) Matches(q Question) bool {
	if f.ExamID != "" && q.ExamID != f.ExamID {
		return false
	}
	if f.SectionID != "" && q.SectionID != f.SectionID {
		return false
	}
	if len(f.Types) > 0 && !containsFold(f.Types, string(q.QuestionType)) {
		return false
	}
	if len(f.Difficulties) > 0 && !containsFold(f.Difficulties, q.Difficulty) {
		return false
	}
	if len(f.Tags) > 0 {
		hit := false
		for _, t := range q.Tags {
			if containsFold(f.Tags, t) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		hay := strings.ToLower(q.QuestionText + "\n" + q.Stimulus + "\n" + q.Source)
		if !strings.Contains(hay, s) {
			return false
		}
	}
	return true
}

func containsFold(list []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, x := range list {
		if strings.EqualFold(strings.TrimSpace(x), v) {
			return true
		}
	}
	return false
}
