package exam

import (
	"encoding/json"
	"fmt"

	"github.com/mind-engage/mindengage-testprep/internal/catalog"
)

// Document is the client-facing JSON form of a question.
type Document = map[string]any

// answerKeyFields are removed from the top level of a question while the
// attempt is open.
var answerKeyFields = []string{"correctAnswerText", "explanation", "negativeMarks", "source"}

// Sanitize projects questions for the candidate. Until the attempt is
// completed the answer key is stripped; afterwards the full document is
// returned for review. The input is not modified.
func Sanitize(questions []catalog.Question, status Status) ([]Document, error) {
	out := make([]Document, 0, len(questions))
	for _, q := range questions {
		doc, err := toDocument(q)
		if err != nil {
			return nil, fmt.Errorf("%w: encode question %s: %v", ErrInternal, q.ID, err)
		}
		if status != StatusCompleted {
			redact(doc)
		}
		out = append(out, doc)
	}
	return out, nil
}

func toDocument(q catalog.Question) (Document, error) {
	b, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func redact(doc Document) {
	for _, k := range answerKeyFields {
		delete(doc, k)
	}
	deleteInEach(doc, "options", "isCorrect")

	di, ok := doc["dataInsights"].(map[string]any)
	if !ok {
		return
	}
	deleteInEach(di, "statements", "correct")
	deleteInEach(di, "dropdowns", "correctIndex")
	delete(di, "correctByColumn")
}

// deleteInEach removes field from every object of the array at doc[list].
func deleteInEach(doc map[string]any, list, field string) {
	items, ok := doc[list].([]any)
	if !ok {
		return
	}
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			delete(m, field)
		}
	}
}
