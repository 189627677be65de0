// Package pipeline provides the high-level orchestration for a run: input to
// transcript to structured record to evidence-grounded draft to previewed
// actions, with the run record advanced through the store at each stage.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/voice-autopilot/internal/drafting"
	"github.com/jonathan/voice-autopilot/internal/enrich"
	"github.com/jonathan/voice-autopilot/internal/store"
	"github.com/jonathan/voice-autopilot/internal/types"
)

// ErrEmptyTranscript is returned when the input resolves to no usable text.
var ErrEmptyTranscript = errors.New("empty transcript")

const (
	defaultTopK    = 5
	maxRawAudioLen = 5000
	errorDetailMax = 1000
)

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, locale string) (string, error)
}

// Extractor turns a transcript into a validated structured record.
type Extractor interface {
	Extract(ctx context.Context, transcript string) (*types.StructuredRecord, error)
}

// Retriever fetches ranked knowledge snippets for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]types.EvidenceHit, error)
}

// Drafter produces the reply draft from transcript, record, and evidence.
type Drafter interface {
	Draft(ctx context.Context, transcript string, extracted *types.StructuredRecord, evidence []types.EvidenceHit) (*types.Draft, error)
}

// Previewer renders the dry-run line for one action.
type Previewer interface {
	Render(a types.Action) string
}

// SlotFiller re-resolves calendar slots from free-form text. Used by the
// adjust-time flow.
type SlotFiller interface {
	Extract(ctx context.Context, userText, lang string, contextEvent *types.MeetingPayload) (*types.MeetingPayload, error)
}

// Orchestrator wires the collaborators into the run pipeline.
type Orchestrator struct {
	Store       store.Store
	Transcriber Transcriber
	Extractor   Extractor
	Retriever   Retriever
	Drafter     Drafter
	Previewer   Previewer
	Slots       SlotFiller

	EmailFrom     string
	EmailFromName string
	TopK          int

	now func() time.Time
}

// NewOrchestrator builds an orchestrator with default retrieval depth.
func NewOrchestrator(st store.Store, tr Transcriber, ex Extractor, re Retriever, dr Drafter, pv Previewer, slots SlotFiller) *Orchestrator {
	return &Orchestrator{
		Store:       st,
		Transcriber: tr,
		Extractor:   ex,
		Retriever:   re,
		Drafter:     dr,
		Previewer:   pv,
		Slots:       slots,
		TopK:        defaultTopK,
		now:         time.Now,
	}
}

// RunInput is the raw client submission.
type RunInput struct {
	Mode        types.Mode
	Text        string
	AudioBase64 string
	Locale      string
}

// RunOutput is everything the client needs to review and confirm.
type RunOutput struct {
	RunID          string                  `json:"run_id"`
	Transcript     string                  `json:"transcript"`
	Extracted      *types.StructuredRecord `json:"extracted"`
	Evidence       []types.EvidenceHit     `json:"evidence"`
	ReplyDraft     *types.ReplyDraft       `json:"reply_draft"`
	ActionsPreview []types.Action          `json:"actions_preview"`
}

// Run processes one input end to end, through previewed actions. The run
// record tracks progress; any failure marks it status error with a bounded
// message before the error is returned.
func (o *Orchestrator) Run(ctx context.Context, input RunInput) (*RunOutput, error) {
	runID := uuid.NewString()

	rawInput := input.Text
	if input.Mode == types.ModeAudio {
		rawInput = input.AudioBase64
		if len(rawInput) > maxRawAudioLen {
			rawInput = rawInput[:maxRawAudioLen] + "..."
		}
	}
	if _, err := o.Store.Create(ctx, runID, input.Mode, rawInput); err != nil {
		return nil, err
	}

	transcript, err := o.resolveTranscript(ctx, input)
	if err != nil {
		return nil, o.fail(ctx, runID, err)
	}
	if _, err := o.Store.Patch(ctx, runID, store.RunPatch{
		Transcript: &transcript,
		Status:     statusPtr(types.StatusTranscribed),
	}); err != nil {
		return nil, err
	}

	extracted, err := o.Extractor.Extract(ctx, transcript)
	if err != nil {
		return nil, o.fail(ctx, runID, err)
	}
	if _, err := o.Store.Patch(ctx, runID, store.RunPatch{
		Extracted: extracted,
		Status:    statusPtr(types.StatusExtracted),
	}); err != nil {
		return nil, err
	}

	topK := o.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	evidence, err := o.Retriever.Retrieve(ctx, buildQuery(extracted), topK)
	if err != nil {
		return nil, o.fail(ctx, runID, err)
	}
	if _, err := o.Store.Patch(ctx, runID, store.RunPatch{Evidence: evidence}); err != nil {
		return nil, err
	}

	draft, err := o.Drafter.Draft(ctx, transcript, extracted, evidence)
	if err != nil {
		return nil, o.fail(ctx, runID, err)
	}
	emailContent := drafting.RenderEmail(draft, extracted, o.EmailFrom, o.EmailFromName)
	replyDraft := &types.ReplyDraft{
		Text:      draft.ReplyText,
		ReplyText: draft.ReplyText,
		Citations: draft.Citations,
		HTML:      emailContent.BodyHTML,
		Subject:   emailContent.Subject,
		To:        emailContent.To,
		From:      emailContent.FromDisplay,
		BodyText:  emailContent.BodyText,
	}
	if _, err := o.Store.Patch(ctx, runID, store.RunPatch{
		ReplyDraft: replyDraft,
		Status:     statusPtr(types.StatusDrafted),
	}); err != nil {
		return nil, err
	}

	actions := enrich.Enrich(extracted.NextBestActions, extracted, draft, emailContent, o.now())
	for i := range actions {
		actions[i].Preview = o.Previewer.Render(actions[i])
	}
	if _, err := o.Store.Patch(ctx, runID, store.RunPatch{
		Actions: actions,
		Status:  statusPtr(types.StatusPreviewed),
	}); err != nil {
		return nil, err
	}

	return &RunOutput{
		RunID:          runID,
		Transcript:     transcript,
		Extracted:      mergeExtractedActions(extracted, actions),
		Evidence:       evidence,
		ReplyDraft:     replyDraft,
		ActionsPreview: actions,
	}, nil
}

func (o *Orchestrator) resolveTranscript(ctx context.Context, input RunInput) (string, error) {
	if input.Mode == types.ModeAudio {
		audio, err := base64.StdEncoding.DecodeString(input.AudioBase64)
		if err != nil {
			return "", fmt.Errorf("invalid audio_base64: %w", err)
		}
		transcript, err := o.Transcriber.Transcribe(ctx, audio, input.Locale)
		if err != nil {
			return "", fmt.Errorf("transcription failed: %w", err)
		}
		transcript = strings.TrimSpace(transcript)
		if transcript == "" {
			return "", ErrEmptyTranscript
		}
		return transcript, nil
	}

	transcript := strings.TrimSpace(input.Text)
	if transcript == "" {
		return "", ErrEmptyTranscript
	}
	return transcript, nil
}

// fail marks the run as errored, preserving the original error for the
// caller.
func (o *Orchestrator) fail(ctx context.Context, runID string, cause error) error {
	msg := types.Truncate(cause.Error(), errorDetailMax)
	if _, err := o.Store.Patch(ctx, runID, store.RunPatch{
		Status: statusPtr(types.StatusError),
		Error:  &msg,
	}); err != nil {
		log.Printf("[%s] failed to record run error: %v", runID, err)
	}
	return cause
}

// AdjustInput re-resolves a meeting slot from fresh user input.
type AdjustInput struct {
	Mode        types.Mode
	Text        string
	AudioBase64 string
	Locale      string
	Action      types.Action
}

// AdjustTime updates a create_meeting action from new free-form input, using
// the action's current payload as context, and returns the updated action
// with a fresh preview alongside the resolved user text.
func (o *Orchestrator) AdjustTime(ctx context.Context, input AdjustInput) (types.Action, string, error) {
	if input.Action.ActionType != types.ActionCreateMeeting {
		return types.Action{}, "", fmt.Errorf("only create_meeting can be adjusted")
	}

	userText, err := o.resolveTranscript(ctx, RunInput{
		Mode:        input.Mode,
		Text:        input.Text,
		AudioBase64: input.AudioBase64,
		Locale:      input.Locale,
	})
	if err != nil {
		return types.Action{}, "", err
	}

	action := input.Action.Clone()
	current := action.Meeting()

	lang := types.NormalizeLang(input.Locale)
	contextEvent := &types.MeetingPayload{
		Date:      current.Date,
		StartTime: current.StartTime,
		EndTime:   current.EndTime,
		Title:     current.Title,
		Attendees: current.Attendees,
	}
	if contextEvent.Title == "" {
		if lang == "en" {
			contextEvent.Title = "Meeting"
		} else {
			contextEvent.Title = "日程安排"
		}
	}

	slot, err := o.Slots.Extract(ctx, userText, lang, contextEvent)
	if err != nil {
		return types.Action{}, "", err
	}

	current.Date = slot.Date
	current.StartTime = slot.StartTime
	current.EndTime = slot.EndTime
	current.Title = slot.Title
	if slot.Attendees != nil {
		current.Attendees = append([]string(nil), slot.Attendees...)
	}

	action.Preview = o.Previewer.Render(action)
	return action, userText, nil
}

// buildQuery assembles the retrieval query from the extracted fields.
func buildQuery(extracted *types.StructuredRecord) string {
	var parts []string
	if extracted.Intent != "" {
		parts = append(parts, strings.ReplaceAll(extracted.Intent, "_", " "))
	}
	if len(extracted.ProductInterest) > 0 {
		parts = append(parts, strings.Join(extracted.ProductInterest, " "))
	}
	if extracted.Summary != "" {
		parts = append(parts, extracted.Summary)
	}
	if len(parts) == 0 {
		return "general inquiry"
	}
	return strings.Join(parts, " ")
}

// mergeExtractedActions folds enriched payloads back into the extracted
// record's action list so the client sees one consistent view. Each enriched
// action is consumed at most once, matched by type in order.
func mergeExtractedActions(extracted *types.StructuredRecord, enriched []types.Action) *types.StructuredRecord {
	merged := *extracted
	merged.NextBestActions = make([]types.Action, len(extracted.NextBestActions))

	pool := make([]types.Action, len(enriched))
	copy(pool, enriched)

	for i, ex := range extracted.NextBestActions {
		out := ex.Clone()
		for j, candidate := range pool {
			if candidate.ActionType == ex.ActionType {
				if candidate.Payload != nil {
					out.Payload = candidate.Clone().Payload
				}
				pool = append(pool[:j], pool[j+1:]...)
				break
			}
		}
		merged.NextBestActions[i] = out
	}
	return &merged
}

func statusPtr(s types.Status) *types.Status { return &s }
