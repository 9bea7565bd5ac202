package exam

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ListOptions narrows ListAttempts. Zero values match everything.
type ListOptions struct {
	Status     Status
	TemplateID string
	Limit      int
	Offset     int
}

// Store persists attempts. Implementations return ErrNotFound, ErrConflict
// (duplicate in-progress attempt, stale version) wrapped with context.
type Store interface {
	// CreateAttempt inserts a new attempt. A second in_progress attempt for the
	// same (user, template) is a conflict.
	CreateAttempt(ctx context.Context, a Attempt) error
	// GetAttempt loads an attempt owned by userID.
	GetAttempt(ctx context.Context, id, userID string) (Attempt, error)
	// GetAttemptByID loads an attempt regardless of owner.
	GetAttemptByID(ctx context.Context, id string) (Attempt, error)
	FindInProgress(ctx context.Context, userID, templateID string) (Attempt, error)
	// UpdateAttempt replaces the stored document when its version equals
	// expectedVersion and returns the stored copy with the version bumped.
	UpdateAttempt(ctx context.Context, a Attempt, expectedVersion int) (Attempt, error)
	// ListAttempts returns the user's attempts, newest first.
	ListAttempts(ctx context.Context, userID string, opts ListOptions) ([]Attempt, error)
}

// MemoryStore keeps attempts in a map keyed by id plus an index of the
// in-progress attempt per (user, template).
type MemoryStore struct {
	mu         sync.RWMutex
	attempts   map[string]Attempt
	inProgress map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{attempts: map[string]Attempt{}, inProgress: map[string]string{}}
}

func slotKey(userID, templateID string) string { return userID + "\x00" + templateID }

func (m *MemoryStore) CreateAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[a.ID]; ok {
		return fmt.Errorf("%w: attempt %s exists", ErrConflict, a.ID)
	}
	key := slotKey(a.UserID, a.TemplateID)
	if a.Status == StatusInProgress {
		if _, busy := m.inProgress[key]; busy {
			return fmt.Errorf("%w: attempt already in progress", ErrConflict)
		}
		m.inProgress[key] = a.ID
	}
	m.attempts[a.ID] = a.Clone()
	return nil
}

func (m *MemoryStore) GetAttempt(ctx context.Context, id, userID string) (Attempt, error) {
	a, err := m.GetAttemptByID(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	if a.UserID != userID {
		return Attempt{}, fmt.Errorf("%w: attempt %s", ErrNotFound, id)
	}
	return a, nil
}

func (m *MemoryStore) GetAttemptByID(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, fmt.Errorf("%w: attempt %s", ErrNotFound, id)
	}
	return a.Clone(), nil
}

func (m *MemoryStore) FindInProgress(_ context.Context, userID, templateID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.inProgress[slotKey(userID, templateID)]
	if !ok {
		return Attempt{}, fmt.Errorf("%w: no attempt in progress", ErrNotFound)
	}
	return m.attempts[id].Clone(), nil
}

func (m *MemoryStore) UpdateAttempt(_ context.Context, a Attempt, expectedVersion int) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.attempts[a.ID]
	if !ok {
		return Attempt{}, fmt.Errorf("%w: attempt %s", ErrNotFound, a.ID)
	}
	if cur.Version != expectedVersion {
		return Attempt{}, fmt.Errorf("%w: attempt %s at version %d, expected %d", ErrConflict, a.ID, cur.Version, expectedVersion)
	}
	key := slotKey(cur.UserID, cur.TemplateID)
	if cur.Status == StatusInProgress && a.Status != StatusInProgress {
		delete(m.inProgress, key)
	}
	a.Version = expectedVersion + 1
	m.attempts[a.ID] = a.Clone()
	return a, nil
}

func (m *MemoryStore) ListAttempts(_ context.Context, userID string, opts ListOptions) ([]Attempt, error) {
	m.mu.RLock()
	out := make([]Attempt, 0)
	for _, a := range m.attempts {
		if a.UserID != userID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		if opts.TemplateID != "" && a.TemplateID != opts.TemplateID {
			continue
		}
		out = append(out, a.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return paginate(out, opts), nil
}

func paginate(list []Attempt, opts ListOptions) []Attempt {
	if opts.Offset > 0 {
		if opts.Offset >= len(list) {
			return []Attempt{}
		}
		list = list[opts.Offset:]
	}
	if opts.Limit > 0 && len(list) > opts.Limit {
		list = list[:opts.Limit]
	}
	return list
}
