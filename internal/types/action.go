package types

import (
	"encoding/json"
	"fmt"
)

// ActionType identifies the kind of follow-up work an action performs.
type ActionType string

const (
	ActionCreateMeeting     ActionType = "create_meeting"
	ActionSendSlackSummary  ActionType = "send_slack_summary"
	ActionSendEmailFollowup ActionType = "send_email_followup"
	ActionCreateTicket      ActionType = "create_ticket"
	ActionNone              ActionType = "none"
)

// Payload is the variant-specific body of an action. Each action type has its
// own payload struct so enrichment and execution can switch exhaustively.
type Payload interface {
	isPayload()
}

// MeetingPayload is the payload for create_meeting actions. Date is YYYY-MM-DD
// and times are HH:MM once resolved; empty strings mean "not yet resolved".
type MeetingPayload struct {
	Title     string   `json:"title"`
	Date      string   `json:"date"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	Attendees []string `json:"attendees"`
}

// SlackPayload is the payload for send_slack_summary actions.
type SlackPayload struct {
	Message string `json:"message"`
	Channel string `json:"channel"`
}

// EmailPayload is the payload for send_email_followup actions. Body mirrors
// BodyText for clients that only read the legacy key.
type EmailPayload struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	BodyText string `json:"body_text"`
	BodyHTML string `json:"body_html,omitempty"`
	FromName string `json:"from_name,omitempty"`
}

// TicketPayload is the payload for create_ticket actions.
type TicketPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

func (*MeetingPayload) isPayload() {}
func (*SlackPayload) isPayload()   {}
func (*EmailPayload) isPayload()   {}
func (*TicketPayload) isPayload()  {}

// Action is a typed, confirmable unit of follow-up work.
type Action struct {
	ActionType           ActionType
	Payload              Payload // nil means an empty payload
	RequiresConfirmation bool
	Confirmed            bool
	Skip                 bool
	Confidence           float64
	Preview              string
}

// actionWire is the JSON shape of an action on the HTTP surface.
type actionWire struct {
	ActionType           ActionType      `json:"action_type"`
	Payload              json.RawMessage `json:"payload,omitempty"`
	RequiresConfirmation *bool           `json:"requires_confirmation,omitempty"`
	Confirmed            bool            `json:"confirmed"`
	Skip                 bool            `json:"skip,omitempty"`
	Confidence           float64         `json:"confidence,omitempty"`
	Preview              string          `json:"preview,omitempty"`
}

// NewPayload returns the zero payload for an action type, or nil for "none"
// and unknown types.
func NewPayload(t ActionType) Payload {
	switch t {
	case ActionCreateMeeting:
		return &MeetingPayload{Attendees: []string{}}
	case ActionSendSlackSummary:
		return &SlackPayload{}
	case ActionSendEmailFollowup:
		return &EmailPayload{}
	case ActionCreateTicket:
		return &TicketPayload{}
	default:
		return nil
	}
}

// UnmarshalJSON decodes an action, defaulting a missing action_type to "none",
// a missing requires_confirmation to true, and a missing payload to the zero
// payload for the type.
func (a *Action) UnmarshalJSON(data []byte) error {
	var w actionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	if w.ActionType == "" {
		w.ActionType = ActionNone
	}
	a.ActionType = w.ActionType
	a.Confirmed = w.Confirmed
	a.Skip = w.Skip
	a.Confidence = w.Confidence
	a.Preview = w.Preview

	a.RequiresConfirmation = true
	if w.RequiresConfirmation != nil {
		a.RequiresConfirmation = *w.RequiresConfirmation
	}

	a.Payload = NewPayload(w.ActionType)
	if a.Payload != nil && len(w.Payload) > 0 {
		if err := json.Unmarshal(w.Payload, a.Payload); err != nil {
			return fmt.Errorf("invalid %s payload: %w", w.ActionType, err)
		}
	}
	return nil
}

// MarshalJSON encodes an action with an explicit payload object ({} when nil)
// so clients always see the payload key.
func (a Action) MarshalJSON() ([]byte, error) {
	var payload json.RawMessage
	if a.Payload == nil {
		payload = json.RawMessage("{}")
	} else {
		encoded, err := json.Marshal(a.Payload)
		if err != nil {
			return nil, err
		}
		payload = encoded
	}

	requires := a.RequiresConfirmation
	return json.Marshal(actionWire{
		ActionType:           a.ActionType,
		Payload:              payload,
		RequiresConfirmation: &requires,
		Confirmed:            a.Confirmed,
		Skip:                 a.Skip,
		Confidence:           a.Confidence,
		Preview:              a.Preview,
	})
}

// Meeting returns the meeting payload, allocating one if the action has none.
// It panics if the action is not a create_meeting action.
func (a *Action) Meeting() *MeetingPayload {
	if a.ActionType != ActionCreateMeeting {
		panic(fmt.Sprintf("Meeting() on %s action", a.ActionType))
	}
	if a.Payload == nil {
		a.Payload = &MeetingPayload{Attendees: []string{}}
	}
	return a.Payload.(*MeetingPayload)
}

// Clone returns a deep copy of the action so payload mutations in one pass
// cannot leak into another.
func (a Action) Clone() Action {
	out := a
	switch p := a.Payload.(type) {
	case *MeetingPayload:
		cp := *p
		cp.Attendees = append([]string(nil), p.Attendees...)
		out.Payload = &cp
	case *SlackPayload:
		cp := *p
		out.Payload = &cp
	case *EmailPayload:
		cp := *p
		out.Payload = &cp
	case *TicketPayload:
		cp := *p
		out.Payload = &cp
	}
	return out
}

// ResultStatus is the outcome of executing (or not executing) one action.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
	ResultSkipped ResultStatus = "skipped"
)

// ActionResult reports the outcome for one confirmed action. Results are
// produced 1:1 and order-preserved against the actions supplied to confirm.
type ActionResult struct {
	ActionType ActionType     `json:"action_type"`
	Status     ResultStatus   `json:"status"`
	Result     map[string]any `json:"result"`
}

// SkippedResult builds a skipped result. An empty reason yields an empty
// result object, matching the wire contract.
func SkippedResult(t ActionType, reason string) ActionResult {
	detail := map[string]any{}
	if reason != "" {
		detail["reason"] = reason
	}
	return ActionResult{ActionType: t, Status: ResultSkipped, Result: detail}
}

// FailedResult builds a failed result carrying a truncated error message.
func FailedResult(t ActionType, err error, maxLen int) ActionResult {
	return ActionResult{ActionType: t, Status: ResultFailed, Result: map[string]any{"error": Truncate(err.Error(), maxLen)}}
}
