package grading

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-testprep/internal/catalog"
)

// numericStrategy accepts an exact text match, or any response with the same
// numeric value as the key (so "1.50" matches "1.5" and "1,000" matches "1000").
type numericStrategy struct{}

func (numericStrategy) Evaluate(_ context.Context, q catalog.Question, r Response) (bool, error) {
	if textEqual(r.Text, q.CorrectAnswerText) {
		return true, nil
	}
	rv, rOK := parseFloatLoose(r.Text)
	tv, tOK := parseFloatLoose(q.CorrectAnswerText)
	if !rOK || !tOK {
		return false, nil
	}
	return rv == tv, nil
}

var thousands = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// parseFloatLoose parses a single numeric token. Commas are accepted only as
// thousands separators.
func parseFloatLoose(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") {
		if !thousands.MatchString(s) {
			return 0, false
		}
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
