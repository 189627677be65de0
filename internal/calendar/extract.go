// Package calendar extracts meeting slots from natural language and fills in
// the defaults that make a slot actionable.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"time"

	"github.com/jonathan/voice-autopilot/internal/llm"
	"github.com/jonathan/voice-autopilot/internal/prompts"
	"github.com/jonathan/voice-autopilot/internal/schemas"
	"github.com/jonathan/voice-autopilot/internal/types"
)

// SlotExtractor pulls meeting slots out of free-form user text.
type SlotExtractor struct {
	llm      llm.Client
	timezone *time.Location
	now      func() time.Time
}

// NewSlotExtractor creates a slot extractor. A nil timezone defaults to UTC.
func NewSlotExtractor(client llm.Client, timezone *time.Location) *SlotExtractor {
	if timezone == nil {
		timezone = time.UTC
	}
	return &SlotExtractor{
		llm:      client,
		timezone: timezone,
		now:      time.Now,
	}
}

// Extract pulls date, times, title, and attendees from the user text. When a
// context event is given its fields act as defaults for anything the user did
// not override. Empty fields in the result stay empty except the title, which
// gets a language-appropriate default.
func (s *SlotExtractor) Extract(ctx context.Context, userText, lang string, contextEvent *types.MeetingPayload) (*types.MeetingPayload, error) {
	now := s.now().In(s.timezone)

	contextJSON := ""
	if contextEvent != nil {
		b, err := json.Marshal(contextEvent)
		if err != nil {
			return nil, fmt.Errorf("failed to encode context event: %w", err)
		}
		contextJSON = string(b)
	}

	prompt := prompts.Format(prompts.MustGet("autopilot.json", "extract-calendar"), map[string]string{
		"CurrentDatetime": now.Format("2006-01-02 15:04 (Monday)"),
		"TimezoneName":    s.timezone.String(),
		"Context":         contextJSON,
		"UserText":        userText,
	})

	raw, err := s.llm.GenerateJSON(ctx, prompt, llm.TierLite)
	if err != nil {
		return nil, fmt.Errorf("calendar extraction failed: %w", err)
	}

	cleaned := llm.CleanJSONBlock(raw)
	if err := schemas.ValidateJSONString(schemas.CalendarEvent(), cleaned); err != nil {
		return nil, fmt.Errorf("calendar extraction returned invalid slot: %w", err)
	}

	var slot types.MeetingPayload
	if err := json.Unmarshal([]byte(cleaned), &slot); err != nil {
		return nil, fmt.Errorf("failed to parse slot: %w", err)
	}

	if contextEvent != nil {
		mergeContext(&slot, contextEvent)
	}

	slot.Date = NormalizeDate(slot.Date, now)
	slot.StartTime = NormalizeTime(slot.StartTime)
	slot.EndTime = NormalizeTime(slot.EndTime)
	if slot.Title == "" {
		slot.Title = defaultTitle(lang)
	}
	if slot.Attendees == nil {
		slot.Attendees = []string{}
	}
	return &slot, nil
}

func mergeContext(slot, ctx *types.MeetingPayload) {
	if slot.Date == "" {
		slot.Date = ctx.Date
	}
	if slot.StartTime == "" {
		slot.StartTime = ctx.StartTime
	}
	if slot.EndTime == "" {
		slot.EndTime = ctx.EndTime
	}
	if slot.Title == "" {
		slot.Title = ctx.Title
	}
	if slot.Attendees == nil && ctx.Attendees != nil {
		slot.Attendees = append([]string(nil), ctx.Attendees...)
	}
}

func defaultTitle(lang string) string {
	if types.NormalizeLang(lang) == "en" {
		return "Meeting"
	}
	return "日程安排"
}

// PrepareForPreview normalizes a meeting payload for display without forcing
// defaults: the title is filled from the summary, dates and times already
// present are normalized, and an end time is derived from the start when
// missing. Empty date and start stay empty so the user sees what is unknown.
func PrepareForPreview(p *types.MeetingPayload, summary, lang string, now time.Time) {
	if p.Title == "" {
		if summary != "" {
			p.Title = truncateRunes(summary, 80)
		} else {
			p.Title = defaultTitle(lang)
		}
	}
	if p.Date != "" {
		p.Date = NormalizeDate(p.Date, now)
	}
	if p.StartTime != "" {
		p.StartTime = NormalizeTime(p.StartTime)
	}
	if p.EndTime != "" {
		p.EndTime = NormalizeTime(p.EndTime)
	} else if p.StartTime != "" {
		if t, err := time.Parse("15:04", p.StartTime); err == nil {
			p.EndTime = t.Add(time.Hour).Format("15:04")
		}
	}
	if p.Attendees == nil {
		p.Attendees = []string{}
	}
}

// Finalize fills the remaining gaps in a meeting payload before execution:
// title from the conversation summary, date defaulting to tomorrow, a 10:00
// start, and an end an hour after the start.
func Finalize(p *types.MeetingPayload, summary, lang string, now time.Time) {
	if p.Title == "" {
		if summary != "" {
			p.Title = truncateRunes(summary, 80)
		} else {
			p.Title = defaultTitle(lang)
		}
	}
	if p.Date != "" {
		p.Date = NormalizeDate(p.Date, now)
	} else {
		p.Date = now.AddDate(0, 0, 1).Format("2006-01-02")
	}
	if p.StartTime != "" {
		p.StartTime = NormalizeTime(p.StartTime)
	} else {
		p.StartTime = "10:00"
	}
	if p.EndTime != "" {
		p.EndTime = NormalizeTime(p.EndTime)
	} else {
		p.EndTime = addHour(p.StartTime)
	}
	if p.Attendees == nil {
		p.Attendees = []string{}
	}
}

// BuildConfirmation renders the localized "event created" message in text
// and HTML form.
func BuildConfirmation(p *types.MeetingPayload, lang string) (text, htmlText string) {
	title := p.Title
	if title == "" {
		title = defaultTitle(lang)
	}
	if types.NormalizeLang(lang) == "zh" {
		text = fmt.Sprintf("日历已创建：%s，%s %s-%s。", title, p.Date, p.StartTime, p.EndTime)
	} else {
		text = fmt.Sprintf("Calendar confirmed: %s on %s %s-%s.", title, p.Date, p.StartTime, p.EndTime)
	}
	htmlText = "<p><strong>" + html.EscapeString(text) + "</strong></p>"
	return text, htmlText
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func addHour(start string) string {
	t, err := time.Parse("15:04", start)
	if err != nil {
		return "11:00"
	}
	return t.Add(time.Hour).Format("15:04")
}
