// Package gate decides, at confirm time, which actions run, in what order,
// and what gets skipped when a dependency fails. Calendar actions execute
// first; everything else runs only once the calendar (if any) has been
// created, and carries the created event's confirmation message.
package gate

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/voice-autopilot/internal/calendar"
	"github.com/jonathan/voice-autopilot/internal/types"
)

// ErrConfirmInFlight is returned when a confirm is already running for the
// same run id. Concurrent confirms are rejected rather than serialized so a
// double-submitted form cannot execute actions twice.
var ErrConfirmInFlight = errors.New("confirm already in progress for this run")

const maxDispatchErrLen = 300

// Executor runs a single confirmed action.
type Executor interface {
	Execute(ctx context.Context, a types.Action) (types.ActionResult, error)
}

// SlotFiller recovers calendar slot fields from free-form text. Used to
// backfill meeting payloads from the transcript when the user confirmed a
// meeting whose date or time was never resolved.
type SlotFiller interface {
	Extract(ctx context.Context, userText, lang string, contextEvent *types.MeetingPayload) (*types.MeetingPayload, error)
}

// Gate executes confirmed action batches.
type Gate struct {
	executor Executor
	slots    SlotFiller // nil disables transcript backfill
	now      func() time.Time

	inflight sync.Map // run id -> struct{}
}

func New(executor Executor, slots SlotFiller) *Gate {
	return &Gate{
		executor: executor,
		slots:    slots,
		now:      time.Now,
	}
}

// eligibility is the precomputed decision for one action.
type eligibility struct {
	exec   bool
	reason string
}

// Confirm executes the batch for a run. Results are returned 1:1 and in the
// same order as the input actions, regardless of execution order. Only
// ErrConfirmInFlight is returned as an error; per-action failures are
// reported in the results.
func (g *Gate) Confirm(ctx context.Context, runID string, actions []types.Action, transcript, summary, lang string) ([]types.ActionResult, error) {
	if _, loaded := g.inflight.LoadOrStore(runID, struct{}{}); loaded {
		return nil, ErrConfirmInFlight
	}
	defer g.inflight.Delete(runID)

	batch := make([]types.Action, len(actions))
	for i, a := range actions {
		batch[i] = a.Clone()
	}

	g.backfillCalendarSlots(ctx, batch, transcript, lang)

	meta := classify(batch)
	resolved := make(map[int]types.ActionResult)

	var calendarIndices []int
	for i, m := range meta {
		if m.exec && batch[i].ActionType == types.ActionCreateMeeting {
			calendarIndices = append(calendarIndices, i)
		}
	}

	calendarSuccess := true
	confirmationText := ""
	confirmationHTML := ""
	now := g.now()

	for _, idx := range calendarIndices {
		payload := batch[idx].Meeting()
		calendar.Finalize(payload, summary, lang, now)

		result, err := g.executor.Execute(ctx, batch[idx])
		if err != nil {
			log.Printf("[%s] calendar action failed: %v", runID, err)
			resolved[idx] = types.FailedResult(types.ActionCreateMeeting, err, maxDispatchErrLen)
			calendarSuccess = false
			break
		}
		resolved[idx] = result
		if result.Status != types.ResultSuccess {
			calendarSuccess = false
			break
		}
		if confirmationText == "" {
			confirmationText, confirmationHTML = calendar.BuildConfirmation(payload, lang)
		}
	}

	if len(calendarIndices) > 0 && !calendarSuccess {
		// Nothing else runs until the calendar exists.
		for i, m := range meta {
			if _, done := resolved[i]; done {
				continue
			}
			if !m.exec {
				resolved[i] = types.SkippedResult(batch[i].ActionType, m.reason)
			} else {
				resolved[i] = types.SkippedResult(batch[i].ActionType, "Calendar not created yet")
			}
		}
	} else {
		for i, m := range meta {
			if _, done := resolved[i]; done {
				continue
			}
			if !m.exec {
				resolved[i] = types.SkippedResult(batch[i].ActionType, m.reason)
				continue
			}

			action := batch[i]
			if confirmationText != "" {
				appendConfirmation(&action, confirmationText, confirmationHTML)
			}

			result, err := g.executor.Execute(ctx, action)
			if err != nil {
				log.Printf("[%s] %s action failed: %v", runID, action.ActionType, err)
				resolved[i] = types.FailedResult(action.ActionType, err, maxDispatchErrLen)
				continue
			}
			resolved[i] = result
		}
	}

	results := make([]types.ActionResult, len(batch))
	for i := range batch {
		if r, ok := resolved[i]; ok {
			results[i] = r
		} else {
			results[i] = types.SkippedResult(batch[i].ActionType, "")
		}
	}
	return results, nil
}

// classify computes per-action eligibility in input order. Skipped and
// no-op actions carry no reason; unconfirmed gated actions are reported as
// "Not confirmed".
func classify(actions []types.Action) []eligibility {
	meta := make([]eligibility, len(actions))
	for i, a := range actions {
		switch {
		case a.Skip || a.ActionType == types.ActionNone:
			meta[i] = eligibility{exec: false}
		case a.RequiresConfirmation && !a.Confirmed:
			meta[i] = eligibility{exec: false, reason: "Not confirmed"}
		default:
			meta[i] = eligibility{exec: true}
		}
	}
	return meta
}

// backfillCalendarSlots fills missing meeting dates and times from the
// transcript. Extraction failures leave the payloads as they were.
func (g *Gate) backfillCalendarSlots(ctx context.Context, actions []types.Action, transcript, lang string) {
	if g.slots == nil || transcript == "" {
		return
	}
	needs := false
	for i := range actions {
		if actions[i].ActionType != types.ActionCreateMeeting {
			continue
		}
		m := actions[i].Meeting()
		if m.Date == "" || m.StartTime == "" {
			needs = true
			break
		}
	}
	if !needs {
		return
	}

	slot, err := g.slots.Extract(ctx, transcript, lang, nil)
	if err != nil {
		log.Printf("calendar slot backfill failed: %v", err)
		return
	}

	for i := range actions {
		if actions[i].ActionType != types.ActionCreateMeeting {
			continue
		}
		m := actions[i].Meeting()
		if m.Date == "" && slot.Date != "" {
			m.Date = slot.Date
		}
		if m.StartTime == "" && slot.StartTime != "" {
			m.StartTime = slot.StartTime
		}
		if m.EndTime == "" && slot.EndTime != "" {
			m.EndTime = slot.EndTime
		}
		if m.Title == "" && slot.Title != "" {
			m.Title = slot.Title
		}
		if m.Attendees == nil && slot.Attendees != nil {
			m.Attendees = append([]string(nil), slot.Attendees...)
		}
	}
}

// appendConfirmation adds the calendar confirmation to outgoing slack and
// email payloads, exactly once per payload.
func appendConfirmation(a *types.Action, text, htmlText string) {
	switch a.ActionType {
	case types.ActionSendSlackSummary:
		p, _ := a.Payload.(*types.SlackPayload)
		if p == nil {
			p = &types.SlackPayload{}
			a.Payload = p
		}
		if msg := strings.TrimSpace(p.Message); msg != "" {
			p.Message = msg + "\n\n" + text
		} else {
			p.Message = text
		}

	case types.ActionSendEmailFollowup:
		p, _ := a.Payload.(*types.EmailPayload)
		if p == nil {
			p = &types.EmailPayload{}
			a.Payload = p
		}
		body := strings.TrimSpace(p.BodyText)
		if body == "" {
			body = strings.TrimSpace(p.Body)
		}
		if body != "" {
			p.BodyText = body + "\n\n" + text
		} else {
			p.BodyText = text
		}
		p.Body = p.BodyText

		if p.BodyHTML != "" {
			p.BodyHTML = p.BodyHTML + "\n" + htmlText
		} else {
			p.BodyHTML = htmlText
		}
	}
}
