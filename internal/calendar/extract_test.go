package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/voice-autopilot/internal/llm"
	"github.com/jonathan/voice-autopilot/internal/types"
)

type stubClient struct {
	response string
	err      error
	prompts  []string
}

func (s *stubClient) GenerateContent(_ context.Context, prompt string, _ llm.ModelTier) (string, error) {
	return s.GenerateJSON(context.Background(), prompt, llm.TierLite)
}

func (s *stubClient) GenerateJSON(_ context.Context, prompt string, _ llm.ModelTier) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubClient) EmbedText(context.Context, string) ([]float32, error) {
	return nil, errors.New("not implemented")
}

func (s *stubClient) GetModel(llm.ModelTier) string { return "stub" }

func (s *stubClient) Close() error { return nil }

func fixedExtractor(client llm.Client) *SlotExtractor {
	e := NewSlotExtractor(client, time.UTC)
	e.now = func() time.Time {
		return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	}
	return e
}

func TestExtractCompleteSlot(t *testing.T) {
	client := &stubClient{response: `{
		"date": "2025-06-03",
		"start_time": "14:00",
		"end_time": "15:00",
		"title": "Acme demo",
		"attendees": ["dana@acme.com"]
	}`}
	e := fixedExtractor(client)

	slot, err := e.Extract(context.Background(), "book the Acme demo Tuesday at 2", "en", nil)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-03", slot.Date)
	assert.Equal(t, "14:00", slot.StartTime)
	assert.Equal(t, "15:00", slot.EndTime)
	assert.Equal(t, "Acme demo", slot.Title)
	assert.Equal(t, []string{"dana@acme.com"}, slot.Attendees)
}

func TestExtractContextEventFillsGaps(t *testing.T) {
	client := &stubClient{response: `{"start_time": "16:00"}`}
	e := fixedExtractor(client)

	ctxEvent := &types.MeetingPayload{
		Date:      "2025-06-05",
		StartTime: "10:00",
		EndTime:   "11:00",
		Title:     "Kickoff",
		Attendees: []string{"a@b.com"},
	}
	slot, err := e.Extract(context.Background(), "push it to 4pm", "en", ctxEvent)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-05", slot.Date)
	assert.Equal(t, "16:00", slot.StartTime, "user override wins over context")
	assert.Equal(t, "11:00", slot.EndTime)
	assert.Equal(t, "Kickoff", slot.Title)
	assert.Equal(t, []string{"a@b.com"}, slot.Attendees)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "2025-06-05")
	assert.Contains(t, client.prompts[0], "push it to 4pm")
}

func TestExtractDefaultTitleByLanguage(t *testing.T) {
	for lang, want := range map[string]string{"en": "Meeting", "zh": "日程安排"} {
		client := &stubClient{response: `{"date": "2025-06-02"}`}
		e := fixedExtractor(client)

		slot, err := e.Extract(context.Background(), "tomorrow", lang, nil)
		require.NoError(t, err)
		assert.Equal(t, want, slot.Title, "lang=%s", lang)
		assert.NotNil(t, slot.Attendees)
	}
}

func TestExtractEmptyDateFallsBackToToday(t *testing.T) {
	client := &stubClient{response: `{"title": "Sync"}`}
	e := fixedExtractor(client)

	slot, err := e.Extract(context.Background(), "a sync sometime", "en", nil)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", slot.Date)
	assert.Empty(t, slot.StartTime)
}

func TestExtractInvalidSlotRejected(t *testing.T) {
	client := &stubClient{response: `{"date": 20250601}`}
	e := fixedExtractor(client)

	_, err := e.Extract(context.Background(), "tomorrow", "en", nil)
	require.Error(t, err)
}

func TestNormalizeDate(t *testing.T) {
	ref := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		want string
	}{
		{"", "2025-06-01"},
		{"2025-07-15", "2025-07-15"},
		{"today", "2025-06-01"},
		{"Tomorrow", "2025-06-02"},
		{"2025/07/15", "2025-07-15"},
		{"07/15/2025", "2025-07-15"},
		{"Jul 15, 2025", "2025-07-15"},
		{"Friday", "2025-06-06"},
		{"next Friday", "2025-06-06"},
		{"this Sunday", "2025-06-01"},
		{"Sunday", "2025-06-08"},
		{"garbage", "garbage"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeDate(tc.in, ref), "input %q", tc.in)
	}
}

func TestNormalizeDateWeekdayNeverBecomesReferenceDay(t *testing.T) {
	monday := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	got := NormalizeDate("next Friday", monday)
	assert.Equal(t, "2025-06-06", got)
	assert.NotEqual(t, monday.Format("2006-01-02"), got)
}

func TestNormalizeTime(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"14:30", "14:30"},
		{"14:30:00", "14:30"},
		{"2:30 pm", "14:30"},
		{"2:30PM", "14:30"},
		{"2 pm", "14:00"},
		{"noonish", "noonish"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeTime(tc.in), "input %q", tc.in)
	}
}

func TestFinalizeDefaults(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	p := &types.MeetingPayload{}
	Finalize(p, "Dana from Acme wants a product demo next week", "en", now)
	assert.Equal(t, "Dana from Acme wants a product demo next week", p.Title)
	assert.Equal(t, "2025-06-02", p.Date)
	assert.Equal(t, "10:00", p.StartTime)
	assert.Equal(t, "11:00", p.EndTime)
	assert.Equal(t, []string{}, p.Attendees)
}

func TestFinalizeTruncatesLongSummary(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	long := ""
	for len(long) < 120 {
		long += "abcdefghij"
	}

	p := &types.MeetingPayload{}
	Finalize(p, long, "en", now)
	assert.Len(t, p.Title, 80)
}

func TestFinalizeKeepsExistingFields(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	p := &types.MeetingPayload{Date: "2025-06-10", StartTime: "15:30", Title: "Review"}
	Finalize(p, "summary", "en", now)
	assert.Equal(t, "2025-06-10", p.Date)
	assert.Equal(t, "15:30", p.StartTime)
	assert.Equal(t, "16:30", p.EndTime, "end defaults to an hour after start")
	assert.Equal(t, "Review", p.Title)
}

func TestFinalizeCanonicalizesRawValues(t *testing.T) {
	monday := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	p := &types.MeetingPayload{Date: "next Friday", StartTime: "2:30 PM", EndTime: "3:30 PM"}
	Finalize(p, "summary", "en", monday)
	assert.Equal(t, "2025-06-06", p.Date)
	assert.Equal(t, "14:30", p.StartTime)
	assert.Equal(t, "15:30", p.EndTime)
}

func TestFinalizeEmptySummaryChineseTitle(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	p := &types.MeetingPayload{}
	Finalize(p, "", "zh", now)
	assert.Equal(t, "日程安排", p.Title)
}
