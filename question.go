package lnhunt

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Question is one quiz station. The content is supplied externally as static
// JSON, validated once at startup and immutable afterwards.
type Question struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	PhysicalCode string   `json:"physical_code"`
	DigitalCode  string   `json:"digital_code"`
	Hint         string   `json:"hint,omitempty"`
	ImageRef     string   `json:"image_ref,omitempty"`
}

// MatchesPhysicalCode checks player input against the question's physical
// code. Input is sanitized first; the comparison is case-insensitive.
func (q Question) MatchesPhysicalCode(input string) bool {
	code := SanitizeCode(input)
	if len(code) < minCodeLength {
		return false
	}
	return strings.EqualFold(code, q.PhysicalCode)
}

// CorrectAnswer reports whether the selected option index is the right one.
func (q Question) CorrectAnswer(index int) bool {
	return index >= 0 && index < len(q.Options) && index == q.CorrectIndex
}

// questionSchema is the JSON Schema the content file must satisfy before any
// question is accepted into the catalog.
const questionSchema = `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["id", "question", "options", "correct_index", "physical_code", "digital_code"],
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "question": {"type": "string", "minLength": 1},
      "options": {
        "type": "array",
        "minItems": 2,
        "items": {"type": "string", "minLength": 1}
      },
      "correct_index": {"type": "integer", "minimum": 0},
      "physical_code": {"type": "string", "minLength": 2},
      "digital_code": {"type": "string", "minLength": 1},
      "hint": {"type": "string"},
      "image_ref": {"type": "string"}
    }
  }
}`

// Catalog holds all questions in their fixed external order. The order is
// load-bearing: collected fragments concatenate in catalog order to form the
// final phrase.
type Catalog struct {
	ordered []Question
	byID    map[string]Question
}

// LoadCatalog reads and validates a questions file from disk.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read questions file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog validates raw question JSON against the schema and builds the
// catalog. Duplicate ids and out-of-range answer indexes are rejected.
func ParseCatalog(data []byte) (*Catalog, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(questionSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate questions: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, NewError(ErrCodeValidation, "questions file failed schema validation", map[string]interface{}{
			"errors": msgs,
		})
	}

	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("failed to parse questions: %w", err)
	}

	byID := make(map[string]Question, len(questions))
	for _, q := range questions {
		if _, exists := byID[q.ID]; exists {
			return nil, NewError(ErrCodeValidation, fmt.Sprintf("duplicate question id %q", q.ID), nil)
		}
		if q.CorrectIndex >= len(q.Options) {
			return nil, NewError(ErrCodeValidation, fmt.Sprintf("question %q: correct_index %d out of range", q.ID, q.CorrectIndex), nil)
		}
		byID[q.ID] = q
	}

	return &Catalog{ordered: questions, byID: byID}, nil
}

// Get looks up a question by id.
func (c *Catalog) Get(id string) (Question, bool) {
	q, ok := c.byID[id]
	return q, ok
}

// Ordered returns all questions in their fixed external order.
func (c *Catalog) Ordered() []Question {
	out := make([]Question, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Len returns the number of questions.
func (c *Catalog) Len() int { return len(c.ordered) }
