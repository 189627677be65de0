// Package enrich post-processes extracted actions before preview: it fills
// missing payload fields from the structured record and reply draft,
// synthesizes the actions every run should offer, and drops actions with no
// viable data.
package enrich

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/voice-autopilot/internal/calendar"
	"github.com/jonathan/voice-autopilot/internal/drafting"
	"github.com/jonathan/voice-autopilot/internal/types"
)

// Enrich returns a new action list with filled payloads. A Slack summary
// action is always present; an email follow-up is added when a recipient is
// known and dropped when there is none. Input actions are not mutated.
func Enrich(actions []types.Action, record *types.StructuredRecord, draft *types.Draft, email *drafting.EmailContent, now time.Time) []types.Action {
	lang := record.Language()
	summary := record.Summary
	slackMsg := buildSlackMessage(record, lang)

	list := make([]types.Action, 0, len(actions)+2)
	for _, a := range actions {
		list = append(list, a.Clone())
	}
	if !hasAction(list, types.ActionSendSlackSummary) {
		list = append(list, types.Action{
			ActionType:           types.ActionSendSlackSummary,
			Payload:              &types.SlackPayload{},
			RequiresConfirmation: true,
			Confidence:           0.9,
		})
	}
	if record.Entities.Email != "" && !hasAction(list, types.ActionSendEmailFollowup) {
		list = append(list, types.Action{
			ActionType:           types.ActionSendEmailFollowup,
			Payload:              &types.EmailPayload{},
			RequiresConfirmation: true,
			Confidence:           0.9,
		})
	}

	enriched := make([]types.Action, 0, len(list))
	for _, a := range list {
		switch a.ActionType {
		case types.ActionCreateMeeting:
			calendar.PrepareForPreview(a.Meeting(), summary, lang, now)

		case types.ActionSendSlackSummary:
			p, _ := a.Payload.(*types.SlackPayload)
			if p == nil {
				p = &types.SlackPayload{}
				a.Payload = p
			}
			if p.Message == "" {
				p.Message = slackMsg
			}
			if p.Channel == "" {
				p.Channel = "#general"
			}

		case types.ActionSendEmailFollowup:
			p, _ := a.Payload.(*types.EmailPayload)
			if p == nil {
				p = &types.EmailPayload{}
				a.Payload = p
			}
			if !fillEmail(p, record, draft, email, lang) {
				continue
			}

		case types.ActionCreateTicket:
			p, _ := a.Payload.(*types.TicketPayload)
			if p == nil {
				p = &types.TicketPayload{}
				a.Payload = p
			}
			fillTicket(p, summary, record.Urgency)
		}
		enriched = append(enriched, a)
	}
	return enriched
}

// fillEmail completes an email payload. It reports false when no recipient
// can be resolved, in which case the action is dropped.
func fillEmail(p *types.EmailPayload, record *types.StructuredRecord, draft *types.Draft, email *drafting.EmailContent, lang string) bool {
	if p.To == "" {
		if record.Entities.Email == "" {
			return false
		}
		p.To = record.Entities.Email
	}

	if p.Subject == "" {
		if email != nil && email.Subject != "" {
			p.Subject = email.Subject
		} else {
			p.Subject = defaultSubject(record.Summary, lang)
		}
	}

	bodyText := p.BodyText
	if email != nil && email.BodyText != "" {
		bodyText = email.BodyText
	}
	if bodyText == "" {
		bodyText = p.Body
	}
	if bodyText == "" {
		if draft != nil && draft.ReplyText != "" {
			bodyText = draft.ReplyText
		} else {
			bodyText = record.Summary
		}
	}
	p.BodyText = bodyText
	p.Body = bodyText

	if email != nil && email.BodyHTML != "" {
		p.BodyHTML = email.BodyHTML
	}
	if email != nil && email.FromName != "" {
		p.FromName = email.FromName
	}
	return true
}

func fillTicket(p *types.TicketPayload, summary, urgency string) {
	if p.Title == "" {
		if summary != "" {
			p.Title = truncateRunes(summary, 120)
		} else {
			p.Title = "New ticket"
		}
	}
	if p.Description == "" {
		p.Description = summary
	}
	if p.Priority == "" {
		switch urgency {
		case "high", "medium", "low":
			p.Priority = urgency
		default:
			p.Priority = "medium"
		}
	}
}

// buildSlackMessage renders the structured record as a short labeled digest.
func buildSlackMessage(record *types.StructuredRecord, lang string) string {
	var parts []string
	if record.Intent != "" {
		parts = append(parts, "Intent: "+strings.ReplaceAll(record.Intent, "_", " "))
	}
	if record.Urgency != "" {
		parts = append(parts, "Urgency: "+record.Urgency)
	}
	if record.Entities.Company != "" {
		parts = append(parts, "Company: "+record.Entities.Company)
	}
	if record.Entities.ContactName != "" {
		parts = append(parts, "Contact: "+record.Entities.ContactName)
	}
	if record.Summary != "" {
		parts = append(parts, "Summary: "+record.Summary)
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n")
	}
	if lang == "zh" {
		return "Autopilot 摘要暂无。"
	}
	return "Autopilot summary unavailable."
}

func defaultSubject(summary, lang string) string {
	if summary == "" {
		if lang == "zh" {
			return "跟进"
		}
		return "Follow-up"
	}
	prefix := "Re: "
	if lang == "zh" {
		prefix = "回复: "
	}
	return fmt.Sprintf("%s%s", prefix, truncateRunes(summary, 60))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func hasAction(actions []types.Action, t types.ActionType) bool {
	for _, a := range actions {
		if a.ActionType == t {
			return true
		}
	}
	return false
}
