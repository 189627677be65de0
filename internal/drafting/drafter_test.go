package drafting

import (
	"context"
	"errors"
	"testing"

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
	return s.GenerateJSON(context.Background(), prompt, llm.TierAdvanced)
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

func sampleRecord() *types.StructuredRecord {
	return &types.StructuredRecord{
		Intent:               "demo request",
		Urgency:              "high",
		Entities:             types.Entities{ContactName: "Dana", Email: "dana@acme.com"},
		Summary:              "Dana from Acme wants a product demo.",
		ConversationLanguage: "en",
	}
}

func TestDraftParsesJSONOutput(t *testing.T) {
	client := &stubClient{response: `{"reply_text": "Thanks for reaching out.", "citations": ["pricing.md#0"]}`}
	d := NewDrafter(client)

	draft, err := d.Draft(context.Background(), "transcript", sampleRecord(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Thanks for reaching out.", draft.ReplyText)
	assert.Equal(t, []string{"pricing.md#0"}, draft.Citations)
}

func TestDraftKeepsPlainTextOutput(t *testing.T) {
	client := &stubClient{response: "Just plain prose, no JSON."}
	d := NewDrafter(client)

	draft, err := d.Draft(context.Background(), "transcript", sampleRecord(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Just plain prose, no JSON.", draft.ReplyText)
	assert.Empty(t, draft.Citations)
	assert.NotNil(t, draft.Citations)
}

func TestDraftPromptCarriesEvidence(t *testing.T) {
	client := &stubClient{response: `{"reply_text": "ok", "citations": []}`}
	d := NewDrafter(client)

	evidence := []types.EvidenceHit{
		{Doc: "pricing.md", Chunk: 2, Score: 0.8123, Text: "Pro plan costs $49."},
	}
	_, err := d.Draft(context.Background(), "the transcript", sampleRecord(), evidence)
	require.NoError(t, err)
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "the transcript")
	assert.Contains(t, client.prompts[0], "[pricing.md#2] (score=0.812)")
	assert.Contains(t, client.prompts[0], "Pro plan costs $49.")
	assert.Contains(t, client.prompts[0], "demo request")
}

func TestDraftNoEvidencePlaceholder(t *testing.T) {
	client := &stubClient{response: `{"reply_text": "ok", "citations": []}`}
	d := NewDrafter(client)

	_, err := d.Draft(context.Background(), "t", sampleRecord(), nil)
	require.NoError(t, err)
	assert.Contains(t, client.prompts[0], "No relevant evidence found")
}

func TestDraftModelError(t *testing.T) {
	client := &stubClient{err: errors.New("boom")}
	d := NewDrafter(client)

	_, err := d.Draft(context.Background(), "t", sampleRecord(), nil)
	require.Error(t, err)
}

func TestRenderEmailEnglish(t *testing.T) {
	draft := &types.Draft{ReplyText: "Thanks for your interest in our product.\n\nWe can demo Tuesday."}
	content := RenderEmail(draft, sampleRecord(), "sales@corp.com", "Corp Sales")

	assert.Equal(t, "Re: Dana from Acme wants a product demo.", content.Subject)
	assert.Equal(t, "dana@acme.com", content.To)
	assert.True(t, len(content.BodyText) > 0)
	assert.Contains(t, content.BodyText, "Hi Dana,")
	assert.Contains(t, content.BodyText, "Voice Autopilot (noreply)")
	assert.Contains(t, content.BodyText, "Please do not reply.")
	assert.Contains(t, content.BodyHTML, "<p>Hi Dana,</p>")
	assert.Contains(t, content.BodyHTML, "<p><strong>Voice Autopilot (noreply)</strong></p>")
	assert.Contains(t, content.BodyHTML, `<p class="email-footer">`)
	assert.Equal(t, "Corp Sales (noreply) <sales@corp.com>", content.FromDisplay)
}

func TestRenderEmailChinese(t *testing.T) {
	record := &types.StructuredRecord{
		Entities:             types.Entities{ContactName: "王先生", Email: "wang@example.cn"},
		Summary:              "王先生询问企业版报价。",
		ConversationLanguage: "zh-CN",
	}
	draft := &types.Draft{ReplyText: "感谢您的咨询。"}
	content := RenderEmail(draft, record, "", "")

	assert.Equal(t, "回复: 王先生询问企业版报价。", content.Subject)
	assert.Contains(t, content.BodyText, "您好王先生：")
	assert.Contains(t, content.BodyText, "Voice Autopilot（noreply）")
	assert.Contains(t, content.BodyText, "请勿直接回复")
	assert.Equal(t, "Voice Autopilot (noreply) <noreply@example.com>", content.FromDisplay)
}

func TestRenderEmailSkipsGreetingWhenDraftHasOne(t *testing.T) {
	draft := &types.Draft{ReplyText: "Hello Dana, thanks for calling."}
	content := RenderEmail(draft, sampleRecord(), "a@b.com", "X")

	assert.NotContains(t, content.BodyText, "Hi Dana,")
	assert.True(t, len(content.BodyText) > 0)
}

func TestRenderEmailEmptySummarySubject(t *testing.T) {
	record := sampleRecord()
	record.Summary = ""
	content := RenderEmail(&types.Draft{ReplyText: "x"}, record, "a@b.com", "X")
	assert.Equal(t, "Follow-up", content.Subject)
}

func TestRenderEmailSubjectTruncation(t *testing.T) {
	record := sampleRecord()
	long := ""
	for len(long) < 100 {
		long += "summary "
	}
	record.Summary = long
	content := RenderEmail(&types.Draft{}, record, "a@b.com", "X")
	assert.Len(t, []rune(content.Subject), len("Re: ")+60)
}

func TestRenderEmailFromNameAlreadyNoreply(t *testing.T) {
	content := RenderEmail(&types.Draft{}, sampleRecord(), "a@b.com", "NoReply Bot")
	assert.Equal(t, "NoReply Bot", content.FromName)
}

func TestTextToHTMLEscapesAndBreaks(t *testing.T) {
	got := textToHTML("a < b\nsecond line\n\nnext para")
	assert.Equal(t, "<p>a &lt; b<br/>second line</p>\n<p>next para</p>", got)
}
