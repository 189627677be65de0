// Package preview renders human-readable dry-run lines for actions so the
// user can see what would happen before confirming.
package preview

import (
	"fmt"
	"strings"

	"github.com/jonathan/voice-autopilot/internal/types"
)

// Previewer annotates actions with dry-run preview strings.
type Previewer struct{}

func NewPreviewer() *Previewer {
	return &Previewer{}
}

// Render describes what executing the action would do, without executing it.
func (p *Previewer) Render(a types.Action) string {
	switch a.ActionType {
	case types.ActionCreateMeeting:
		m, _ := a.Payload.(*types.MeetingPayload)
		if m == nil {
			m = &types.MeetingPayload{}
		}
		line := fmt.Sprintf("Would create calendar event %q", m.Title)
		if m.Date != "" {
			line += " on " + m.Date
		}
		if m.StartTime != "" {
			line += " " + m.StartTime
			if m.EndTime != "" {
				line += "-" + m.EndTime
			}
		}
		if len(m.Attendees) > 0 {
			line += fmt.Sprintf(" with %d attendee(s)", len(m.Attendees))
		}
		return line

	case types.ActionSendSlackSummary:
		s, _ := a.Payload.(*types.SlackPayload)
		if s == nil {
			s = &types.SlackPayload{}
		}
		channel := s.Channel
		if channel == "" {
			channel = "#general"
		}
		return fmt.Sprintf("Would post to %s: %s", channel, firstLine(s.Message, 120))

	case types.ActionSendEmailFollowup:
		e, _ := a.Payload.(*types.EmailPayload)
		if e == nil {
			e = &types.EmailPayload{}
		}
		return fmt.Sprintf("Would email %s with subject %q", e.To, e.Subject)

	case types.ActionCreateTicket:
		t, _ := a.Payload.(*types.TicketPayload)
		if t == nil {
			t = &types.TicketPayload{}
		}
		priority := t.Priority
		if priority == "" {
			priority = "medium"
		}
		return fmt.Sprintf("Would create a %s priority ticket: %q", priority, t.Title)

	default:
		return "No action"
	}
}

// firstLine collapses a message to its first line, bounded to max runes.
func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	r := []rune(s)
	if len(r) > max {
		return string(r[:max]) + "..."
	}
	return s
}
