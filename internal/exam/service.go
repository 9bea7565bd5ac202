package exam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-testprep/internal/catalog"
	"github.com/mind-engage/mindengage-testprep/internal/grading"
	"github.com/mind-engage/mindengage-testprep/internal/metrics"
)

const defaultCatalogTimeout = 5 * time.Second

// Service owns the attempt lifecycle. Writers on one attempt are serialized
// through the Locker and guarded by the store's version check.
type Service struct {
	store          Store
	catalog        catalog.Store
	locker         Locker
	grader         grading.Grader
	samplerOpts    []SamplerOption
	assembler      *Assembler
	scorer         *Scorer
	log            *zap.Logger
	now            func() time.Time
	newID          func() string
	catalogTimeout time.Duration
}

type ServiceOption func(*Service)

func WithLocker(l Locker) ServiceOption { return func(s *Service) { s.locker = l } }
func WithGrader(g grading.Grader) ServiceOption { return func(s *Service) { s.grader = g } }
func WithLogger(l *zap.Logger) ServiceOption { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) ServiceOption { return func(s *Service) { s.now = now } }
func WithIDs(gen func() string) ServiceOption { return func(s *Service) { s.newID = gen } }

func WithSamplerOptions(opts ...SamplerOption) ServiceOption {
	return func(s *Service) { s.samplerOpts = append(s.samplerOpts, opts...) }
}

// WithCatalogTimeout bounds every catalog lookup made on behalf of one call.
func WithCatalogTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.catalogTimeout = d
		}
	}
}

func NewService(store Store, cat catalog.Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:          store,
		catalog:        cat,
		locker:         NewKeyedMutex(),
		log:            zap.NewNop(),
		now:            time.Now,
		newID:          uuid.NewString,
		catalogTimeout: defaultCatalogTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	if s.grader == nil {
		s.grader = grading.NewDefaultGrader()
	}
	s.assembler = NewAssembler(cat, NewSampler(cat, s.samplerOpts...))
	s.scorer = NewScorer(s.grader, s.log)
	return s
}

// AttemptView is an attempt together with its client-safe questions, in
// attempt order.
type AttemptView struct {
	Attempt   Attempt    `json:"attempt"`
	Questions []Document `json:"questions"`
}

// StartAttempt returns the user's in-progress attempt for templateID, or
// assembles and stores a new one. created reports which happened.
func (s *Service) StartAttempt(ctx context.Context, userID, templateID string) (a Attempt, created bool, err error) {
	if userID == "" || templateID == "" {
		return Attempt{}, false, fmt.Errorf("%w: user and template are required", ErrInvalidArgument)
	}
	tpl, err := s.template(ctx, templateID)
	if err != nil {
		return Attempt{}, false, err
	}

	unlock, err := s.locker.Lock(ctx, startLockKey(userID, templateID))
	if err != nil {
		return Attempt{}, false, fmt.Errorf("%w: acquire start lock: %v", ErrInternal, err)
	}
	defer unlock()

	if cur, err := s.store.FindInProgress(ctx, userID, templateID); err == nil {
		metrics.AttemptTransitions.WithLabelValues("resumed").Inc()
		return cur, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Attempt{}, false, err
	}

	cctx, cancel := context.WithTimeout(ctx, s.catalogTimeout)
	sections, err := s.assembler.Build(cctx, tpl)
	cancel()
	if err != nil {
		return Attempt{}, false, err
	}

	a = Attempt{
		ID:         s.newID(),
		UserID:     userID,
		ExamID:     tpl.ExamID,
		TemplateID: tpl.ID,
		TestType:   tpl.TestType,
		Status:     StatusInProgress,
		StartedAt:  s.now().UTC(),
		Sections:   sections,
	}
	a.OverallStats.TotalQuestions = TotalQuestions(sections)

	if err := s.store.CreateAttempt(ctx, a); err != nil {
		if errors.Is(err, ErrConflict) {
			// another node won the race on the unique slot
			winner, ferr := s.store.FindInProgress(ctx, userID, templateID)
			if ferr == nil {
				return winner, false, nil
			}
		}
		return Attempt{}, false, err
	}
	metrics.AttemptTransitions.WithLabelValues("started").Inc()
	s.log.Info("attempt started",
		zap.String("attempt_id", a.ID), zap.String("user_id", userID),
		zap.String("template_id", templateID), zap.Int("questions", a.OverallStats.TotalQuestions))
	return a, true, nil
}

func (s *Service) template(ctx context.Context, id string) (catalog.TestTemplate, error) {
	cctx, cancel := context.WithTimeout(ctx, s.catalogTimeout)
	defer cancel()
	tpl, err := s.catalog.GetTemplate(cctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return catalog.TestTemplate{}, fmt.Errorf("%w: template %s", ErrNotFound, id)
	}
	if err != nil {
		return catalog.TestTemplate{}, fmt.Errorf("%w: load template %s: %v", ErrInternal, id, err)
	}
	if !tpl.IsActive {
		return catalog.TestTemplate{}, fmt.Errorf("%w: template %s is not active", ErrNotFound, id)
	}
	return tpl, nil
}

// SetModuleOrder applies a candidate-chosen permutation of sections. An
// invalid order is rejected before anything changes.
func (s *Service) SetModuleOrder(ctx context.Context, userID, attemptID string, order []int) (Attempt, error) {
	return s.mutate(ctx, userID, attemptID, func(a *Attempt) error {
		if a.GmatMeta != nil && a.GmatMeta.OrderChosen {
			return fmt.Errorf("%w: module order already chosen", ErrConflict)
		}
		if err := validateOrder(order, len(a.Sections)); err != nil {
			return err
		}
		reordered := make([]AttemptSection, len(order))
		for i, idx := range order {
			reordered[i] = a.Sections[idx]
		}
		a.Sections = reordered

		gm := a.GmatMeta
		if gm == nil {
			gm = &GmatMeta{}
		}
		gm.OrderChosen = true
		gm.ModuleOrder = append([]int(nil), order...)
		gm.Phase = PhaseSectionInstructions
		gm.CurrentSectionIndex, gm.CurrentQuestionIndex = 0, 0
		a.GmatMeta = gm
		return nil
	})
}

func validateOrder(order []int, n int) error {
	if len(order) == 0 {
		return fmt.Errorf("%w: module order is empty", ErrInvalidArgument)
	}
	if len(order) != n {
		return fmt.Errorf("%w: module order has %d entries, attempt has %d sections", ErrInvalidArgument, len(order), n)
	}
	seen := make(map[int]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n {
			return fmt.Errorf("%w: section index %d out of range", ErrInvalidArgument, idx)
		}
		if seen[idx] {
			return fmt.Errorf("%w: section index %d repeated", ErrInvalidArgument, idx)
		}
		seen[idx] = true
	}
	return nil
}

// SubmitAttempt scores the attempt and completes it in a single versioned
// write. On any error the stored attempt is unchanged.
func (s *Service) SubmitAttempt(ctx context.Context, userID, attemptID string) (Attempt, error) {
	start := time.Now()
	out, err := s.mutate(ctx, userID, attemptID, func(a *Attempt) error {
		questions, err := s.questions(ctx, a.QuestionIDs())
		if err != nil {
			return err
		}
		now := s.now().UTC()
		s.scorer.Score(ctx, a, questions, now)
		a.Status = StatusCompleted
		a.CompletedAt = &now
		return nil
	})
	if err != nil {
		return Attempt{}, err
	}
	metrics.ScoringDuration.Observe(time.Since(start).Seconds())
	metrics.AttemptTransitions.WithLabelValues("submitted").Inc()
	s.log.Info("attempt submitted",
		zap.String("attempt_id", out.ID), zap.String("user_id", userID),
		zap.Float64("raw_score", out.OverallStats.RawScore),
		zap.Int("attempted", out.OverallStats.TotalAttempted),
		zap.Int("skipped", out.OverallStats.TotalSkipped))
	return out, nil
}

// CancelAttempt abandons an in-progress attempt, freeing the slot for a new one.
func (s *Service) CancelAttempt(ctx context.Context, userID, attemptID string) (Attempt, error) {
	out, err := s.mutate(ctx, userID, attemptID, func(a *Attempt) error {
		a.Status = StatusCancelled
		return nil
	})
	if err == nil {
		metrics.AttemptTransitions.WithLabelValues("cancelled").Inc()
	}
	return out, err
}

// mutate runs fn on a copy of the user's in-progress attempt under the
// attempt lock and stores the result.
func (s *Service) mutate(ctx context.Context, userID, attemptID string, fn func(a *Attempt) error) (Attempt, error) {
	unlock, err := s.locker.Lock(ctx, attemptLockKey(attemptID))
	if err != nil {
		return Attempt{}, fmt.Errorf("%w: acquire attempt lock: %v", ErrInternal, err)
	}
	defer unlock()

	cur, err := s.store.GetAttempt(ctx, attemptID, userID)
	if err != nil {
		return Attempt{}, err
	}
	if cur.Status != StatusInProgress {
		return Attempt{}, fmt.Errorf("%w: attempt %s is %s", ErrConflict, attemptID, cur.Status)
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return Attempt{}, err
	}
	return s.store.UpdateAttempt(ctx, next, cur.Version)
}

// GetAttempt returns the attempt with its questions; answer keys are hidden
// until the attempt is completed.
func (s *Service) GetAttempt(ctx context.Context, userID, attemptID string) (AttemptView, error) {
	a, err := s.store.GetAttempt(ctx, attemptID, userID)
	if err != nil {
		return AttemptView{}, err
	}
	return s.view(ctx, a)
}

// ReviewAttempt is GetAttempt for staff: any user's attempt, with the same
// answer-key redaction.
func (s *Service) ReviewAttempt(ctx context.Context, attemptID string) (AttemptView, error) {
	a, err := s.store.GetAttemptByID(ctx, attemptID)
	if err != nil {
		return AttemptView{}, err
	}
	return s.view(ctx, a)
}

func (s *Service) view(ctx context.Context, a Attempt) (AttemptView, error) {
	ids := a.QuestionIDs()
	byID, err := s.questions(ctx, ids)
	if err != nil {
		return AttemptView{}, err
	}
	ordered := make([]catalog.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			ordered = append(ordered, q)
		}
	}
	docs, err := Sanitize(ordered, a.Status)
	if err != nil {
		return AttemptView{}, err
	}
	return AttemptView{Attempt: a, Questions: docs}, nil
}

func (s *Service) ListAttempts(ctx context.Context, userID string, opts ListOptions) ([]Attempt, error) {
	return s.store.ListAttempts(ctx, userID, opts)
}

func (s *Service) questions(ctx context.Context, ids []string) (map[string]catalog.Question, error) {
	cctx, cancel := context.WithTimeout(ctx, s.catalogTimeout)
	defer cancel()
	qs, err := s.catalog.GetQuestions(cctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: load questions: %v", ErrInternal, err)
	}
	return qs, nil
}

// Evaluation is an external grader's verdict on one essay response.
type Evaluation struct {
	QuestionID   string     `json:"questionId" validate:"required"`
	IsCorrect    bool       `json:"isCorrect"`
	MarksAwarded float64    `json:"marksAwarded"`
	EvaluatedAt  *time.Time `json:"evaluatedAt,omitempty"`
}

// RecordEvaluation stores an external verdict on a completed attempt's essay
// question and recomputes stats. Later evaluations of the same question
// replace earlier ones.
func (s *Service) RecordEvaluation(ctx context.Context, attemptID string, ev Evaluation) (Attempt, error) {
	if ev.QuestionID == "" {
		return Attempt{}, fmt.Errorf("%w: question id is required", ErrInvalidArgument)
	}
	unlock, err := s.locker.Lock(ctx, attemptLockKey(attemptID))
	if err != nil {
		return Attempt{}, fmt.Errorf("%w: acquire attempt lock: %v", ErrInternal, err)
	}
	defer unlock()

	cur, err := s.store.GetAttemptByID(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if cur.Status != StatusCompleted {
		return Attempt{}, fmt.Errorf("%w: attempt %s is %s, not completed", ErrConflict, attemptID, cur.Status)
	}
	next := cur.Clone()
	aq := findQuestion(&next, ev.QuestionID)
	if aq == nil {
		return Attempt{}, fmt.Errorf("%w: question %s is not part of attempt %s", ErrNotFound, ev.QuestionID, attemptID)
	}
	questions, err := s.questions(ctx, next.QuestionIDs())
	if err != nil {
		return Attempt{}, err
	}
	q, ok := questions[ev.QuestionID]
	if !ok {
		return Attempt{}, fmt.Errorf("%w: question %s", ErrNotFound, ev.QuestionID)
	}
	if !isEssay(q.QuestionType) {
		return Attempt{}, fmt.Errorf("%w: question %s is %s, only essays are evaluated externally", ErrInvalidArgument, q.ID, q.QuestionType)
	}
	if !isAnswered(*aq) {
		return Attempt{}, fmt.Errorf("%w: question %s was not answered", ErrInvalidArgument, q.ID)
	}
	if lo, hi := -q.NegativeMarks, q.MarksOrDefault(); ev.MarksAwarded < lo || ev.MarksAwarded > hi {
		return Attempt{}, fmt.Errorf("%w: marks %g for question %s outside [%g, %g]",
			ErrInvalidArgument, ev.MarksAwarded, q.ID, lo, hi)
	}

	at := s.now().UTC()
	if ev.EvaluatedAt != nil {
		at = ev.EvaluatedAt.UTC()
	}
	aq.IsCorrect = ev.IsCorrect
	aq.MarksAwarded = ev.MarksAwarded
	aq.ExternallyGraded = true
	aq.EvaluatedAt = &at
	Rollup(&next, questions)

	out, err := s.store.UpdateAttempt(ctx, next, cur.Version)
	if err != nil {
		return Attempt{}, err
	}
	metrics.AttemptTransitions.WithLabelValues("regraded").Inc()
	s.log.Info("essay evaluation recorded",
		zap.String("attempt_id", attemptID), zap.String("question_id", ev.QuestionID),
		zap.Float64("marks", ev.MarksAwarded), zap.Float64("raw_score", out.OverallStats.RawScore))
	return out, nil
}

func findQuestion(a *Attempt, questionID string) *AttemptQuestion {
	for si := range a.Sections {
		for qi := range a.Sections[si].Questions {
			if a.Sections[si].Questions[qi].QuestionID == questionID {
				return &a.Sections[si].Questions[qi]
			}
		}
	}
	return nil
}
