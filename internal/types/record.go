package types

// Entities holds the named entities pulled out of a conversation.
type Entities struct {
	Email       string `json:"email,omitempty"`
	ContactName string `json:"contact_name,omitempty"`
	Company     string `json:"company,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// StructuredRecord is the schema-validated extraction of a conversation:
// intent, entities, and the candidate next-best-actions seeded by the model.
type StructuredRecord struct {
	Intent               string   `json:"intent"`
	Urgency              string   `json:"urgency"`
	Entities             Entities `json:"entities"`
	Summary              string   `json:"summary"`
	ConversationLanguage string   `json:"conversation_language"`
	NextBestActions      []Action `json:"next_best_actions"`

	// Domain-specific optional fields.
	Budget            string   `json:"budget,omitempty"`
	FollowUpQuestions []string `json:"follow_up_questions,omitempty"`
	ProductInterest   []string `json:"product_interest,omitempty"`
}

// Language normalizes the conversation language to "en" or "zh".
func (r *StructuredRecord) Language() string {
	return NormalizeLang(r.ConversationLanguage)
}

// NormalizeLang maps free-form locale strings to the two supported languages.
// Anything that does not look like English is treated as Chinese, matching the
// bilingual deployments this system targets.
func NormalizeLang(lang string) string {
	if lang == "" {
		return "en"
	}
	if len(lang) >= 2 && (lang[:2] == "en" || lang[:2] == "En" || lang[:2] == "EN") {
		return "en"
	}
	return "zh"
}

// EvidenceHit is one ranked knowledge snippet retrieved to ground a reply.
type EvidenceHit struct {
	Doc   string  `json:"doc"`
	Chunk int     `json:"chunk"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// Draft is the raw output of the reply drafter collaborator.
type Draft struct {
	ReplyText string   `json:"reply_text"`
	Citations []string `json:"citations"`
}

// ReplyDraft is the assembled reply payload stored on the run and returned to
// the client: the drafted text plus its rendered email form.
type ReplyDraft struct {
	Text      string   `json:"text"`
	ReplyText string   `json:"reply_text"`
	Citations []string `json:"citations"`
	HTML      string   `json:"html"`
	Subject   string   `json:"subject"`
	To        string   `json:"to"`
	From      string   `json:"from"`
	BodyText  string   `json:"body_text"`
}
