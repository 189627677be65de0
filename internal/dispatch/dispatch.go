// Package dispatch executes confirmed actions against the outside world:
// Slack messages, follow-up emails, tickets, and calendar events. The
// Dispatcher routes by action type and bounds every call with a timeout.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/voice-autopilot/internal/types"
)

// SlackClient posts a message to a channel and returns the message timestamp.
type SlackClient interface {
	PostMessage(ctx context.Context, channel, text string) (string, error)
}

// EmailClient sends a rendered follow-up email.
type EmailClient interface {
	Send(ctx context.Context, p *types.EmailPayload) error
}

// TicketClient files a ticket and returns its identifier.
type TicketClient interface {
	CreateTicket(ctx context.Context, p *types.TicketPayload) (string, error)
}

// CalendarClient creates a calendar event for a fully resolved slot.
type CalendarClient interface {
	CreateEvent(ctx context.Context, p *types.MeetingPayload) error
}

// Dispatcher routes actions to the matching client. A nil client makes that
// action type fail with a configuration error rather than panic.
type Dispatcher struct {
	Slack    SlackClient
	Email    EmailClient
	Ticket   TicketClient
	Calendar CalendarClient
	Timeout  time.Duration
}

const defaultTimeout = 30 * time.Second

// Execute runs one action and reports its result. The error return carries
// the failure cause; callers decide how a failure affects the rest of the
// batch.
func (d *Dispatcher) Execute(ctx context.Context, a types.Action) (types.ActionResult, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch a.ActionType {
	case types.ActionCreateMeeting:
		if d.Calendar == nil {
			return types.ActionResult{}, fmt.Errorf("no calendar client configured")
		}
		p, _ := a.Payload.(*types.MeetingPayload)
		if p == nil {
			p = &types.MeetingPayload{}
		}
		if err := d.Calendar.CreateEvent(ctx, p); err != nil {
			return types.ActionResult{}, err
		}
		return types.ActionResult{
			ActionType: a.ActionType,
			Status:     types.ResultSuccess,
			Result: map[string]any{
				"title":      p.Title,
				"date":       p.Date,
				"start_time": p.StartTime,
				"end_time":   p.EndTime,
			},
		}, nil

	case types.ActionSendSlackSummary:
		if d.Slack == nil {
			return types.ActionResult{}, fmt.Errorf("no slack client configured")
		}
		p, _ := a.Payload.(*types.SlackPayload)
		if p == nil {
			p = &types.SlackPayload{}
		}
		ts, err := d.Slack.PostMessage(ctx, p.Channel, p.Message)
		if err != nil {
			return types.ActionResult{}, err
		}
		return types.ActionResult{
			ActionType: a.ActionType,
			Status:     types.ResultSuccess,
			Result:     map[string]any{"channel": p.Channel, "ts": ts},
		}, nil

	case types.ActionSendEmailFollowup:
		if d.Email == nil {
			return types.ActionResult{}, fmt.Errorf("no email client configured")
		}
		p, _ := a.Payload.(*types.EmailPayload)
		if p == nil {
			p = &types.EmailPayload{}
		}
		if err := d.Email.Send(ctx, p); err != nil {
			return types.ActionResult{}, err
		}
		return types.ActionResult{
			ActionType: a.ActionType,
			Status:     types.ResultSuccess,
			Result:     map[string]any{"to": p.To, "subject": p.Subject},
		}, nil

	case types.ActionCreateTicket:
		if d.Ticket == nil {
			return types.ActionResult{}, fmt.Errorf("no ticket client configured")
		}
		p, _ := a.Payload.(*types.TicketPayload)
		if p == nil {
			p = &types.TicketPayload{}
		}
		id, err := d.Ticket.CreateTicket(ctx, p)
		if err != nil {
			return types.ActionResult{}, err
		}
		return types.ActionResult{
			ActionType: a.ActionType,
			Status:     types.ResultSuccess,
			Result:     map[string]any{"ticket_id": id, "title": p.Title},
		}, nil

	default:
		return types.SkippedResult(a.ActionType, ""), nil
	}
}
