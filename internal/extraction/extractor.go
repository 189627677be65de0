// Package extraction turns a conversation transcript into a schema-validated
// structured record via a forced-JSON model call, with one repair pass when
// the first output fails validation.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jonathan/voice-autopilot/internal/llm"
	"github.com/jonathan/voice-autopilot/internal/prompts"
	"github.com/jonathan/voice-autopilot/internal/schemas"
	"github.com/jonathan/voice-autopilot/internal/types"
)

var emailPattern = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)

// Extractor produces structured records from transcripts.
type Extractor struct {
	llm      llm.Client
	timezone *time.Location
	now      func() time.Time
}

// NewExtractor creates an extractor. A nil timezone defaults to UTC.
func NewExtractor(client llm.Client, timezone *time.Location) *Extractor {
	if timezone == nil {
		timezone = time.UTC
	}
	return &Extractor{
		llm:      client,
		timezone: timezone,
		now:      time.Now,
	}
}

// Extract runs the extraction prompt against the transcript, validates the
// output against the record schema, and retries once with a repair prompt
// before giving up.
func (e *Extractor) Extract(ctx context.Context, transcript string) (*types.StructuredRecord, error) {
	now := e.now().In(e.timezone)
	prompt := prompts.Format(prompts.MustGet("autopilot.json", "extract-record"), map[string]string{
		"CurrentDatetime": now.Format("2006-01-02 15:04"),
		"TimezoneName":    e.timezone.String(),
		"Transcript":      transcript,
	})

	raw, err := e.llm.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, &Error{Message: "model call failed", Cause: err}
	}

	record, validationErr := parseAndValidate(raw)
	if validationErr != nil {
		record, err = e.repair(ctx, raw, validationErr)
		if err != nil {
			return nil, err
		}
	}

	if record.Entities.Email == "" {
		if match := emailPattern.FindString(transcript); match != "" {
			record.Entities.Email = match
		}
	}
	return record, nil
}

// repair feeds the invalid output and its validation error back to the model
// for one correction attempt.
func (e *Extractor) repair(ctx context.Context, invalid string, cause error) (*types.StructuredRecord, error) {
	prompt := prompts.Format(prompts.MustGet("autopilot.json", "repair-record"), map[string]string{
		"RawOutput":       invalid,
		"ValidationError": cause.Error(),
		"Schema":          schemas.Autopilot(),
	})

	raw, err := e.llm.GenerateJSON(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		return nil, &Error{Message: "repair call failed", Cause: err}
	}

	record, validationErr := parseAndValidate(raw)
	if validationErr != nil {
		return nil, &Error{Message: "output invalid after repair", Cause: validationErr}
	}
	return record, nil
}

// parseAndValidate parses the raw model output, fills in fixable omissions,
// and validates the result against the record schema.
func parseAndValidate(raw string) (*types.StructuredRecord, error) {
	cleaned := llm.CleanJSONBlock(raw)

	fixed, err := autoFix(cleaned)
	if err != nil {
		return nil, err
	}

	if err := schemas.ValidateJSONString(schemas.Autopilot(), fixed); err != nil {
		return nil, err
	}

	var record types.StructuredRecord
	if err := json.Unmarshal([]byte(fixed), &record); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	return &record, nil
}

// autoFix patches omissions the model makes routinely: a missing payload
// becomes an empty object and a missing requires_confirmation defaults to
// true. Anything else is left for schema validation to catch.
func autoFix(raw string) (string, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return "", fmt.Errorf("output is not valid JSON: %w", err)
	}

	actions, ok := doc["next_best_actions"].([]any)
	if ok {
		for _, item := range actions {
			action, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if _, ok := action["payload"]; !ok {
				action["payload"] = map[string]any{}
			}
			if _, ok := action["requires_confirmation"]; !ok {
				action["requires_confirmation"] = true
			}
		}
	}

	fixed, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to re-encode record: %w", err)
	}
	return string(fixed), nil
}
