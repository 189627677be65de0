package drafting

import (
	"fmt"
	"html"
	"strings"

	"github.com/jonathan/voice-autopilot/internal/types"
)

// EmailContent is a fully rendered email: subject, both body forms, and the
// resolved sender identity.
type EmailContent struct {
	Subject     string
	BodyText    string
	BodyHTML    string
	To          string
	FromDisplay string
	FromName    string
}

// RenderEmail assembles the sendable email from a reply draft: greeting when
// the draft lacks one, the draft body, a noreply signature and footer, in the
// conversation's language. fromAddr and fromName identify the sender;
// "(noreply)" is appended to the name unless it already carries it.
func RenderEmail(draft *types.Draft, extracted *types.StructuredRecord, fromAddr, fromName string) *EmailContent {
	lang := extracted.Language()
	toAddr := extracted.Entities.Email
	contact := extracted.Entities.ContactName

	replyText := ""
	if draft != nil {
		replyText = strings.TrimSpace(draft.ReplyText)
	}

	subject := subjectFor(extracted.Summary, lang)

	greeting := ""
	if !startsWithGreeting(replyText, lang) {
		greeting = greetingFor(contact, lang)
	}

	signature := "Voice Autopilot (noreply)"
	footer := "This is an automated message from noreply. Please do not reply."
	if lang == "zh" {
		signature = "Voice Autopilot（noreply）"
		footer = "此邮件由 noreply 自动发送，请勿直接回复。"
	}

	var parts []string
	if greeting != "" {
		parts = append(parts, greeting)
	}
	if replyText != "" {
		parts = append(parts, replyText)
	}
	parts = append(parts, signature, footer)
	bodyText := strings.TrimSpace(strings.Join(parts, "\n\n"))

	var htmlParts []string
	if greeting != "" {
		htmlParts = append(htmlParts, "<p>"+html.EscapeString(greeting)+"</p>")
	}
	if body := textToHTML(replyText); body != "" {
		htmlParts = append(htmlParts, body)
	}
	htmlParts = append(htmlParts,
		"<p><strong>"+html.EscapeString(signature)+"</strong></p>",
		`<p class="email-footer">`+html.EscapeString(footer)+"</p>",
	)
	bodyHTML := strings.Join(htmlParts, "\n")

	if fromAddr == "" {
		fromAddr = "noreply@example.com"
	}
	if fromName == "" {
		fromName = "Voice Autopilot"
	}
	if !strings.Contains(strings.ToLower(fromName), "noreply") {
		fromName = fromName + " (noreply)"
	}

	return &EmailContent{
		Subject:     subject,
		BodyText:    bodyText,
		BodyHTML:    bodyHTML,
		To:          toAddr,
		FromDisplay: fmt.Sprintf("%s <%s>", fromName, fromAddr),
		FromName:    fromName,
	}
}

func subjectFor(summary, lang string) string {
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
	return prefix + truncateRunes(summary, 60)
}

func greetingFor(contact, lang string) string {
	if lang == "zh" {
		if contact != "" {
			return "您好" + contact + "："
		}
		return "您好："
	}
	if contact != "" {
		return "Hi " + contact + ","
	}
	return "Hello,"
}

func startsWithGreeting(text, lang string) bool {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return false
	}
	var prefixes []string
	if lang == "zh" {
		prefixes = []string{"你好", "您好", "嗨", "哈喽"}
	} else {
		prefixes = []string{"hi", "hello", "dear"}
	}
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// textToHTML converts plain text to paragraph markup, keeping single line
// breaks as <br/> within a paragraph.
func textToHTML(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	var paragraphs []string
	for _, block := range strings.Split(text, "\n\n") {
		lines := strings.Split(block, "\n")
		for i, line := range lines {
			lines[i] = html.EscapeString(line)
		}
		paragraphs = append(paragraphs, "<p>"+strings.Join(lines, "<br/>")+"</p>")
	}
	return strings.Join(paragraphs, "\n")
}

// truncateRunes shortens s to at most n runes so multibyte summaries do not
// get split mid-character.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
