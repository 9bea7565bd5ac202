package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-testprep/internal/catalog"
)

// subStrategy grades one data insights subtype. Every keyed item must match.
type subStrategy func(di catalog.DataInsights, r Response) bool

type dataInsightsStrategy struct {
	subtypes map[catalog.Subtype]subStrategy
}

func newDataInsightsStrategy() dataInsightsStrategy {
	return dataInsightsStrategy{subtypes: map[catalog.Subtype]subStrategy{
		catalog.SubtypeMultiSource: gradeStatements,
		catalog.SubtypeTable:       gradeStatements,
		catalog.SubtypeTwoPart:     gradeTwoPart,
		catalog.SubtypeGraphics:    gradeGraphics,
	}}
}

func (s dataInsightsStrategy) Evaluate(_ context.Context, q catalog.Question, r Response) (bool, error) {
	sub, ok := s.subtypes[q.Subtype]
	if !ok {
		return false, fmt.Errorf("%w: unknown data insights subtype %q", ErrMalformedResponse, q.Subtype)
	}
	if q.DataInsights == nil {
		return false, nil
	}
	r, err := structuredResponse(q.Subtype, r)
	if err != nil {
		return false, err
	}
	return sub(*q.DataInsights, r), nil
}

// gradeStatements covers multi-source (yes/no) and table analysis (true/false).
func gradeStatements(di catalog.DataInsights, r Response) bool {
	if len(di.Statements) == 0 {
		return false
	}
	for _, st := range di.Statements {
		got, ok := r.Selections[st.ID]
		if !ok || !textEqual(got, st.Correct) {
			return false
		}
	}
	return true
}

func gradeTwoPart(di catalog.DataInsights, r Response) bool {
	if len(di.CorrectByColumn) == 0 {
		return false
	}
	for col, want := range di.CorrectByColumn {
		got, ok := r.Selections[col]
		if !ok || strings.TrimSpace(got) != strings.TrimSpace(want) {
			return false
		}
	}
	return true
}

func gradeGraphics(di catalog.DataInsights, r Response) bool {
	if len(di.Dropdowns) == 0 {
		return false
	}
	for _, d := range di.Dropdowns {
		got, ok := r.Dropdowns[d.ID]
		if !ok || got != d.CorrectIndex {
			return false
		}
	}
	return true
}

// structuredResponse fills the selection maps from a JSON object carried in
// the text answer when the client did not send the maps themselves.
func structuredResponse(sub catalog.Subtype, r Response) (Response, error) {
	if len(r.Selections) > 0 || len(r.Dropdowns) > 0 {
		return r, nil
	}
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return r, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return r, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if sub == catalog.SubtypeGraphics {
		r.Dropdowns = make(map[string]int, len(raw))
		for k, v := range raw {
			n, err := decodeIndex(v)
			if err != nil {
				return r, fmt.Errorf("%w: dropdown %q: %v", ErrMalformedResponse, k, err)
			}
			r.Dropdowns[k] = n
		}
		return r, nil
	}
	r.Selections = make(map[string]string, len(raw))
	for k, v := range raw {
		s, err := decodeChoice(v)
		if err != nil {
			return r, fmt.Errorf("%w: item %q: %v", ErrMalformedResponse, k, err)
		}
		r.Selections[k] = s
	}
	return r, nil
}

func decodeIndex(v json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(v, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(s))
}

func decodeChoice(v json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return "", err
	}
	return strconv.FormatBool(b), nil
}
