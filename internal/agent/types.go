package agent

import "fmt"

// Prompt types recorded on the AI audit trail
const (
	PromptDealAnalysis = "deal_analysis"
	PromptComposeEmail = "compose_email"
	PromptClassify     = "classify_reply"
	PromptLeadScore    = "lead_score"
	PromptDailyReview  = "daily_review"
)

// Actions a deal analysis can recommend
const (
	ActionSendEmail      = "send_email"
	ActionMoveStage      = "move_stage"
	ActionWait           = "wait"
	ActionChangeApproach = "change_approach"
	ActionPause          = "pause"
	ActionFlagForReview  = "flag_for_review"
)

// Reply intents a classification can return
const (
	IntentInterested    = "interested"
	IntentNotInterested = "not_interested"
	IntentUnsubscribe   = "unsubscribe"
	IntentOutOfOffice   = "out_of_office"
	IntentQuestion      = "question"
	IntentOther         = "other"
)

// DealAnalysis is the model's recommendation for a due deal
type DealAnalysis struct {
	Action     string  `json:"action"`
	WaitDays   int     `json:"wait_days,omitempty"`
	Approach   string  `json:"approach,omitempty"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence,omitempty"`
}

// EmailDraft is a composed outreach message
type EmailDraft struct {
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Reasoning string `json:"reasoning,omitempty"`
}

// ReplyClassification is the model's reading of an inbound reply
type ReplyClassification struct {
	Intent    string `json:"intent"`
	Sentiment string `json:"sentiment"`
	Reasoning string `json:"reasoning,omitempty"`
}

// LeadScore rates a contact 0-100
type LeadScore struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning,omitempty"`
}

// ParseError reports that the model returned output that does not satisfy
// the expected JSON schema. Callers should fall back to their safe default
// rather than guess at the model's intent.
type ParseError struct {
	PromptType string
	Raw        string
	Err        error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable %s response: %v", e.PromptType, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FallbackAnalysis is the safe default when analysis fails: route the deal
// to manual review instead of acting on a guess
func FallbackAnalysis() *DealAnalysis {
	return &DealAnalysis{
		Action:    ActionFlagForReview,
		Reasoning: "AI analysis unavailable, flagged for manual review",
	}
}

// FallbackClassification is the safe default when classification fails
func FallbackClassification() *ReplyClassification {
	return &ReplyClassification{
		Intent:    IntentOther,
		Sentiment: "neutral",
		Reasoning: "AI classification unavailable",
	}
}

// FallbackScore is the neutral default when lead scoring fails
func FallbackScore() *LeadScore {
	return &LeadScore{
		Score:     50,
		Reasoning: "AI scoring unavailable, neutral default",
	}
}
