// Package extract turns raw model output into validated recommendations.
package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
)

// Extraction failure reasons.
const (
	ReasonInvalidJSON   = "invalid-json"
	ReasonInvalidShape  = "invalid-shape"
	ReasonInvalidRecord = "invalid-record"
)

// ExtractionError means the output held no valid, complete recommendation
// batch. Index is the offending record, or -1.
type ExtractionError struct {
	Reason string
	Index  int
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := "extraction failed: " + e.Reason
	if e.Index >= 0 {
		msg += fmt.Sprintf(" at record %d", e.Index)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// jsonFenceRe matches a markdown code block labeled exactly json.
var jsonFenceRe = regexp.MustCompile("(?is)```json[ \\t]*\\r?\\n(.*?)```")

// Extract parses rawText as a {"recommendations": [...]} object, falling back
// to the first ```json fenced block. At most MaxRecommendations records are
// kept in their original order. A single invalid record rejects the batch.
func Extract(rawText string) ([]model.Recommendation, error) {
	payload, err := locatePayload(rawText)
	if err != nil {
		return nil, err
	}

	recs := gjson.Get(payload, "recommendations")
	if !recs.IsArray() {
		return nil, &ExtractionError{Reason: ReasonInvalidShape, Index: -1, Err: fmt.Errorf("recommendations is not a list")}
	}

	items := recs.Array()
	if len(items) == 0 {
		return nil, &ExtractionError{Reason: ReasonInvalidShape, Index: -1, Err: fmt.Errorf("recommendations is empty")}
	}
	if len(items) > model.MaxRecommendations {
		items = items[:model.MaxRecommendations]
	}

	out := make([]model.Recommendation, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		rec, err := decodeRecord(item.Raw)
		if err != nil {
			return nil, &ExtractionError{Reason: ReasonInvalidRecord, Index: i, Err: err}
		}
		if _, dup := seen[rec.Name]; dup {
			return nil, &ExtractionError{Reason: ReasonInvalidRecord, Index: i, Err: fmt.Errorf("duplicate name %q", rec.Name)}
		}
		seen[rec.Name] = struct{}{}
		out = append(out, rec)
	}

	return out, nil
}

// locatePayload returns the JSON text to read recommendations from. The
// fenced-block fallback only looks at the first ```json block.
func locatePayload(rawText string) (string, error) {
	text := strings.TrimSpace(rawText)
	if gjson.Valid(text) {
		return text, nil
	}

	m := jsonFenceRe.FindStringSubmatch(rawText)
	if m == nil {
		return "", &ExtractionError{Reason: ReasonInvalidJSON, Index: -1, Err: fmt.Errorf("output is neither JSON nor a fenced json block")}
	}

	inner := strings.TrimSpace(m[1])
	if !gjson.Valid(inner) {
		return "", &ExtractionError{Reason: ReasonInvalidJSON, Index: -1, Err: fmt.Errorf("fenced json block does not parse")}
	}
	return inner, nil
}

func decodeRecord(raw string) (model.Recommendation, error) {
	var rec model.Recommendation

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return rec, err
	}
	dropNullOptionals(doc)

	result := recordSchema.Validate(doc)
	if !result.IsValid() {
		return rec, fmt.Errorf("%s", result.Error())
	}

	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// dropNullOptionals removes optional fields set to null so they read as
// absent. A null required field is left for the schema to reject.
func dropNullOptionals(doc any) {
	obj, ok := doc.(map[string]any)
	if !ok {
		return
	}
	for _, key := range optionalFields {
		if v, present := obj[key]; present && v == nil {
			delete(obj, key)
		}
	}
}
