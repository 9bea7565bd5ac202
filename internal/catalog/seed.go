package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Seed is a dev fixture of catalog content, loaded at gateway start.
type Seed struct {
	Exams     []Exam         `json:"exams"`
	Questions []Question     `json:"questions"`
	Templates []TestTemplate `json:"templates"`
}

func ReadSeedFile(path string) (Seed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, err
	}
	var s Seed
	if err := json.Unmarshal(b, &s); err != nil {
		return Seed{}, fmt.Errorf("seed %s: %w", path, err)
	}
	return s, nil
}

// ApplySeed upserts every document of the seed.
func (s *SQLStore) ApplySeed(ctx context.Context, seed Seed) error {
	for _, e := range seed.Exams {
		if err := s.PutExam(ctx, e); err != nil {
			return fmt.Errorf("exam %s: %w", e.ID, err)
		}
	}
	for _, q := range seed.Questions {
		if err := s.PutQuestion(ctx, q); err != nil {
			return fmt.Errorf("question %s: %w", q.ID, err)
		}
	}
	for _, t := range seed.Templates {
		if err := s.PutTemplate(ctx, t); err != nil {
			return fmt.Errorf("template %s: %w", t.ID, err)
		}
	}
	return nil
}
