package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionUnmarshalDefaults(t *testing.T) {
	var a Action
	require.NoError(t, json.Unmarshal([]byte(`{"action_type":"create_ticket"}`), &a))

	assert.Equal(t, ActionCreateTicket, a.ActionType)
	assert.True(t, a.RequiresConfirmation, "requires_confirmation defaults to true")
	assert.False(t, a.Confirmed)
	require.IsType(t, &TicketPayload{}, a.Payload)
}

func TestActionUnmarshalExplicitFields(t *testing.T) {
	raw := `{
		"action_type": "create_meeting",
		"payload": {"title": "Demo", "date": "2026-09-01", "start_time": "10:00", "end_time": "11:00", "attendees": ["john@acme.com"]},
		"requires_confirmation": false,
		"confirmed": true,
		"confidence": 0.8
	}`

	var a Action
	require.NoError(t, json.Unmarshal([]byte(raw), &a))

	assert.False(t, a.RequiresConfirmation)
	assert.True(t, a.Confirmed)
	assert.InDelta(t, 0.8, a.Confidence, 1e-9)

	m := a.Meeting()
	assert.Equal(t, "Demo", m.Title)
	assert.Equal(t, []string{"john@acme.com"}, m.Attendees)
}

func TestActionUnmarshalMissingTypeIsNone(t *testing.T) {
	var a Action
	require.NoError(t, json.Unmarshal([]byte(`{"payload":{}}`), &a))
	assert.Equal(t, ActionNone, a.ActionType)
	assert.Nil(t, a.Payload)
}

func TestActionMarshalEmitsPayloadObject(t *testing.T) {
	a := Action{ActionType: ActionNone, RequiresConfirmation: true}
	data, err := json.Marshal(a)
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	assert.JSONEq(t, `{}`, string(m["payload"]))
}

func TestActionClone(t *testing.T) {
	a := Action{
		ActionType: ActionCreateMeeting,
		Payload:    &MeetingPayload{Title: "Sync", Attendees: []string{"a@b.co"}},
	}

	c := a.Clone()
	c.Meeting().Title = "Changed"
	c.Meeting().Attendees[0] = "x@y.co"

	assert.Equal(t, "Sync", a.Meeting().Title)
	assert.Equal(t, "a@b.co", a.Meeting().Attendees[0])
}

func TestSkippedResult(t *testing.T) {
	r := SkippedResult(ActionNone, "")
	assert.Equal(t, ResultSkipped, r.Status)
	assert.Empty(t, r.Result)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action_type":"none","status":"skipped","result":{}}`, string(data))

	r = SkippedResult(ActionSendSlackSummary, "Not confirmed")
	assert.Equal(t, "Not confirmed", r.Result["reason"])
}

func TestFailedResultTruncates(t *testing.T) {
	err := assert.AnError
	r := FailedResult(ActionCreateTicket, err, 5)
	assert.Equal(t, ResultFailed, r.Status)
	assert.Len(t, r.Result["error"], 5)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("日", 300)
	got := Truncate(s, 200)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("日", 200), got)

	assert.Equal(t, "short", Truncate("short", 200))
}

func TestFailedResultKeepsRunesWhole(t *testing.T) {
	err := errors.New(strings.Repeat("错", 400))
	r := FailedResult(ActionSendEmailFollowup, err, 300)
	msg := r.Result["error"].(string)
	assert.True(t, utf8.ValidString(msg))
	assert.Equal(t, 300, utf8.RuneCountInString(msg))
}

func TestCanAdvance(t *testing.T) {
	assert.True(t, CanAdvance(StatusCreated, StatusTranscribed))
	assert.True(t, CanAdvance(StatusCreated, StatusExtracted))
	assert.True(t, CanAdvance(StatusPreviewed, StatusExecuted))
	assert.True(t, CanAdvance(StatusPreviewed, StatusError))
	assert.True(t, CanAdvance(StatusConflict, StatusError))

	assert.False(t, CanAdvance(StatusExtracted, StatusTranscribed), "no rollback")
	assert.False(t, CanAdvance(StatusExecuted, StatusPreviewed))
	assert.False(t, CanAdvance(StatusError, StatusError))
	assert.False(t, CanAdvance(StatusExecuted, StatusConflict))
}

func TestNormalizeLang(t *testing.T) {
	assert.Equal(t, "en", NormalizeLang(""))
	assert.Equal(t, "en", NormalizeLang("en-US"))
	assert.Equal(t, "en", NormalizeLang("English"))
	assert.Equal(t, "zh", NormalizeLang("zh"))
	assert.Equal(t, "zh", NormalizeLang("zh-CN"))
}
