package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/codeteki/outreach/internal/metrics"
	"github.com/codeteki/outreach/internal/stores/crm"
	"github.com/codeteki/outreach/pkg/utils"
)

// Agent wraps prompt construction, the LLM call and strict response parsing
// for the four CRM decisions: deal analysis, email composition, reply
// classification and lead scoring. Every call is recorded on the AI audit
// trail, including failures.
type Agent struct {
	client CompletionClient
	store  crm.StoreInterface

	analysisPrompt string
	composePrompt  string
	classifyPrompt string
	scorePrompt    string
}

// New creates an agent backed by the OpenAI API
func New(cfg *utils.Config, store crm.StoreInterface) (*Agent, error) {
	client, err := NewOpenAIClient(
		cfg.Get("OPENAI_API_KEY"),
		cfg.GetWithDefault("CRM_AI_MODEL", "gpt-4o-mini"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}

	agent := NewWithClient(client, store)
	agent.analysisPrompt = utils.LoadPromptWithFallback(cfg.Get("CRM_ANALYSIS_PROMPT_PATH"), analysisSystemPrompt)
	agent.composePrompt = utils.LoadPromptWithFallback(cfg.Get("CRM_COMPOSE_PROMPT_PATH"), composeSystemPrompt)
	agent.classifyPrompt = utils.LoadPromptWithFallback(cfg.Get("CRM_CLASSIFY_PROMPT_PATH"), classifySystemPrompt)
	agent.scorePrompt = utils.LoadPromptWithFallback(cfg.Get("CRM_SCORE_PROMPT_PATH"), scoreSystemPrompt)
	return agent, nil
}

// NewWithClient creates an agent with an explicit completion client
func NewWithClient(client CompletionClient, store crm.StoreInterface) *Agent {
	return &Agent{
		client:         client,
		store:          store,
		analysisPrompt: analysisSystemPrompt,
		composePrompt:  composeSystemPrompt,
		classifyPrompt: classifySystemPrompt,
		scorePrompt:    scoreSystemPrompt,
	}
}

// response is implemented by every decision type so the shared call path can
// validate and audit uniformly
type response interface {
	validate() error
	reason() string
}

/* ---- OPERATIONS ---- */

// AnalyzeDeal asks the model for the next action on a due deal
func (a *Agent) AnalyzeDeal(ctx context.Context, deal *crm.Deal) (*DealAnalysis, error) {
	prompt := a.dealPrompt(deal)
	prompt.AddContext("Decide the single next action for this deal.")

	var analysis DealAnalysis
	err := a.run(ctx, PromptDealAnalysis, a.analysisPrompt, prompt.Build(), deal, &analysis)
	if err != nil {
		return nil, err
	}
	return &analysis, nil
}

// ComposeEmail asks the model to draft the next outreach message for a deal
func (a *Agent) ComposeEmail(ctx context.Context, deal *crm.Deal) (*EmailDraft, error) {
	prompt := a.dealPrompt(deal)
	if deal.Approach != "" {
		prompt.AddFact("Requested approach", deal.Approach)
	}
	prompt.AddContext("Write the next outreach email for this deal.")

	var draft EmailDraft
	err := a.run(ctx, PromptComposeEmail, a.composePrompt, prompt.Build(), deal, &draft)
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

// ClassifyReply asks the model to read an inbound reply's intent
func (a *Agent) ClassifyReply(ctx context.Context, deal *crm.Deal, subject, body string) (*ReplyClassification, error) {
	prompt := a.dealPrompt(deal)
	prompt.AddFact("Reply subject", subject)
	prompt.AddContext("Classify this reply body:\n" + body)

	var classification ReplyClassification
	err := a.run(ctx, PromptClassify, a.classifyPrompt, prompt.Build(), deal, &classification)
	if err != nil {
		return nil, err
	}
	return &classification, nil
}

// ScoreLead asks the model to rate a contact 0-100
func (a *Agent) ScoreLead(ctx context.Context, contact *crm.Contact) (*LeadScore, error) {
	prompt := NewPromptBuilder("")
	prompt.AddFact("Brand", contact.Brand)
	prompt.AddFact("Name", contact.Name)
	prompt.AddFact("Company", contact.Company)
	prompt.AddFact("Website", contact.Website)
	prompt.AddFact("Source", contact.Source)
	prompt.AddContext("Score this lead.")

	var score LeadScore
	err := a.runForContact(ctx, PromptLeadScore, a.scorePrompt, prompt.Build(), 0, contact.ID, &score)
	if err != nil {
		return nil, err
	}
	return &score, nil
}

/* ---- PROMPT CONSTRUCTION ---- */

// dealPrompt collects the facts about a deal that every deal-scoped prompt
// shares
func (a *Agent) dealPrompt(deal *crm.Deal) *PromptBuilder {
	prompt := NewPromptBuilder("")

	if deal.Contact != nil {
		prompt.AddFact("Brand", deal.Contact.Brand)
		prompt.AddFact("Contact", deal.Contact.Name)
		prompt.AddFact("Company", deal.Contact.Company)
	}
	if deal.Pipeline != nil {
		prompt.AddFactf("Pipeline", "%s (%s)", deal.Pipeline.Name, deal.Pipeline.Type)
	}
	if deal.CurrentStage != nil {
		prompt.AddFactf("Stage", "%s (step %d)", deal.CurrentStage.Name, deal.CurrentStage.StageOrder)
	}
	prompt.AddFactf("Emails sent", "%d", deal.EmailsSent)
	prompt.AddFactf("Emails opened", "%d", deal.EmailsOpened)
	prompt.AddFactf("Unopened streak", "%d", deal.ConsecutiveUnopened)
	prompt.AddFact("Engagement tier", deal.EngagementTier)

	// Recent audit trail gives the model the deal's history
	activities, err := a.store.ListDealActivities(deal.ID)
	if err != nil {
		log.Printf("[AI-AGENT]: Could not load activities for deal %d: %v", deal.ID, err)
	}
	for i, activity := range activities {
		if i >= 5 {
			break
		}
		prompt.AddContext(fmt.Sprintf("%s: %s", activity.Kind, activity.Description))
	}

	return prompt
}

/* ---- CALL PATH ---- */

// run performs the completion call, strict parse, validation and audit for a
// deal-scoped prompt
func (a *Agent) run(ctx context.Context, promptType, system, user string, deal *crm.Deal, out response) error {
	return a.runForContact(ctx, promptType, system, user, deal.ID, deal.ContactID, out)
}

func (a *Agent) runForContact(ctx context.Context, promptType, system, user string, dealID, contactID uint, out response) error {
	audit := &crm.AIActivity{
		DealID:     dealID,
		ContactID:  contactID,
		PromptType: promptType,
	}

	completion, err := a.client.Complete(ctx, system, user)
	if err != nil {
		audit.Success = false
		audit.Error = err.Error()
		a.audit(audit)
		return fmt.Errorf("%s call failed: %w", promptType, err)
	}

	audit.Model = completion.Model
	audit.PromptTokens = completion.PromptTokens
	audit.CompletionTokens = completion.CompletionTokens
	audit.TotalTokens = completion.TotalTokens

	if err := decodeStrict(completion.Content, out); err != nil {
		parseErr := &ParseError{PromptType: promptType, Raw: completion.Content, Err: err}
		audit.Success = false
		audit.Error = parseErr.Error()
		a.audit(audit)
		return parseErr
	}
	if err := out.validate(); err != nil {
		parseErr := &ParseError{PromptType: promptType, Raw: completion.Content, Err: err}
		audit.Success = false
		audit.Error = parseErr.Error()
		a.audit(audit)
		return parseErr
	}

	audit.Success = true
	audit.Reasoning = out.reason()
	a.audit(audit)
	return nil
}

// audit records an LLM call; audit failures are logged, never propagated
func (a *Agent) audit(activity *crm.AIActivity) {
	outcome := "success"
	if !activity.Success {
		outcome = "failure"
	}
	metrics.RecordAICall(activity.PromptType, outcome)

	if err := a.store.AddAIActivity(activity); err != nil {
		log.Printf("[AI-AGENT]: Failed to record AI activity: %v", err)
	}
}

// decodeStrict parses the model output as a single JSON object. Markdown
// code fences are stripped, nothing else is guessed at.
func decodeStrict(raw string, out any) error {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if !strings.HasPrefix(trimmed, "{") {
		return fmt.Errorf("response is not a JSON object")
	}
	if err := json.Unmarshal([]byte(trimmed), out); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

/* ---- VALIDATION ---- */

func (d *DealAnalysis) validate() error {
	switch d.Action {
	case ActionSendEmail, ActionMoveStage, ActionWait, ActionChangeApproach, ActionPause, ActionFlagForReview:
	default:
		return fmt.Errorf("unknown action '%s'", d.Action)
	}
	if d.Action == ActionWait && d.WaitDays <= 0 {
		return fmt.Errorf("wait action requires positive wait_days")
	}
	return nil
}

func (d *DealAnalysis) reason() string { return d.Reasoning }

func (d *EmailDraft) validate() error {
	if strings.TrimSpace(d.Subject) == "" || strings.TrimSpace(d.Body) == "" {
		return fmt.Errorf("draft requires subject and body")
	}
	return nil
}

func (d *EmailDraft) reason() string { return d.Reasoning }

func (c *ReplyClassification) validate() error {
	switch c.Intent {
	case IntentInterested, IntentNotInterested, IntentUnsubscribe, IntentOutOfOffice, IntentQuestion, IntentOther:
	default:
		return fmt.Errorf("unknown intent '%s'", c.Intent)
	}
	return nil
}

func (c *ReplyClassification) reason() string { return c.Reasoning }

func (s *LeadScore) validate() error {
	if s.Score < 0 || s.Score > 100 {
		return fmt.Errorf("score %d out of range", s.Score)
	}
	return nil
}

func (s *LeadScore) reason() string { return s.Reasoning }
