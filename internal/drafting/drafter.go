// Package drafting generates knowledge-grounded reply drafts and renders
// them into sendable email content.
package drafting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/voice-autopilot/internal/llm"
	"github.com/jonathan/voice-autopilot/internal/prompts"
	"github.com/jonathan/voice-autopilot/internal/types"
)

// Drafter turns a transcript, its extraction, and retrieved evidence into a
// reply draft with citations.
type Drafter struct {
	llm llm.Client
}

func NewDrafter(client llm.Client) *Drafter {
	return &Drafter{llm: client}
}

// Draft generates the reply. Output that fails to parse as JSON is kept as
// the reply text with no citations rather than failing the run.
func (d *Drafter) Draft(ctx context.Context, transcript string, extracted *types.StructuredRecord, evidence []types.EvidenceHit) (*types.Draft, error) {
	extractedJSON, err := json.MarshalIndent(extracted, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode extraction: %w", err)
	}

	prompt := prompts.Format(prompts.MustGet("autopilot.json", "draft-reply"), map[string]string{
		"Transcript": transcript,
		"Extracted":  string(extractedJSON),
		"Evidence":   formatEvidence(evidence),
	})

	raw, err := d.llm.GenerateJSON(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		return nil, fmt.Errorf("reply draft failed: %w", err)
	}

	cleaned := llm.CleanJSONBlock(raw)
	var draft types.Draft
	if err := json.Unmarshal([]byte(cleaned), &draft); err != nil || draft.ReplyText == "" {
		return &types.Draft{ReplyText: cleaned, Citations: []string{}}, nil
	}
	if draft.Citations == nil {
		draft.Citations = []string{}
	}
	return &draft, nil
}

// formatEvidence renders ranked hits as cite-able blocks keyed doc#chunk.
func formatEvidence(evidence []types.EvidenceHit) string {
	if len(evidence) == 0 {
		return "(No relevant evidence found in the knowledge base.)"
	}
	blocks := make([]string, 0, len(evidence))
	for _, e := range evidence {
		blocks = append(blocks, fmt.Sprintf("[%s#%d] (score=%.3f):\n%s", e.Doc, e.Chunk, e.Score, e.Text))
	}
	return strings.Join(blocks, "\n\n---\n\n")
}
