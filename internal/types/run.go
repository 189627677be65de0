// Package types defines the data model shared across the autopilot pipeline:
// runs, actions, structured records, evidence, and reply drafts.
package types

import "time"

// Mode is the input mode of a run.
type Mode string

const (
	ModeAudio Mode = "audio"
	ModeText  Mode = "text"
)

// Status is the pipeline state of a run. Status only advances forward through
// the pipeline or jumps to error; it is never rolled back.
type Status string

const (
	StatusCreated     Status = "created"
	StatusTranscribed Status = "transcribed"
	StatusExtracted   Status = "extracted"
	StatusDrafted     Status = "drafted"
	StatusPreviewed   Status = "previewed"
	StatusExecuted    Status = "executed"
	// StatusConflict is reached by the voice-only calendar flow when the
	// requested slot collides with an existing event.
	StatusConflict Status = "conflict"
	StatusError    Status = "error"
)

var statusRank = map[Status]int{
	StatusCreated:     0,
	StatusTranscribed: 1,
	StatusExtracted:   2,
	StatusDrafted:     3,
	StatusPreviewed:   4,
	StatusConflict:    5,
	StatusExecuted:    5,
	StatusError:       6,
}

// CanAdvance reports whether a run may move from one status to another.
// Error is reachable from every state; everything else is forward-only.
func CanAdvance(from, to Status) bool {
	if to == StatusError {
		return from != StatusError
	}
	fr, ok := statusRank[from]
	if !ok {
		return false
	}
	tr, ok := statusRank[to]
	if !ok {
		return false
	}
	if from == StatusError || from == StatusExecuted {
		return false
	}
	return tr > fr
}

// Run is one end-to-end processing of a single input through the pipeline.
type Run struct {
	ID         string            `json:"id"`
	Mode       Mode              `json:"mode"`
	RawInput   string            `json:"raw_input"`
	Transcript string            `json:"transcript"`
	Extracted  *StructuredRecord `json:"extracted,omitempty"`
	Evidence   []EvidenceHit     `json:"evidence,omitempty"`
	ReplyDraft *ReplyDraft       `json:"reply_draft,omitempty"`
	Actions    []Action          `json:"actions,omitempty"`
	Results    []ActionResult    `json:"results,omitempty"`
	Status     Status            `json:"status"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Truncate shortens s to at most max runes, never splitting a multibyte
// character. Error strings and raw payloads on the run record are bounded
// this way.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
