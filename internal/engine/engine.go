package engine

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/codeteki/outreach/internal/agent"
	"github.com/codeteki/outreach/internal/brands"
	"github.com/codeteki/outreach/internal/events"
	"github.com/codeteki/outreach/internal/mailer"
	"github.com/codeteki/outreach/internal/metrics"
	"github.com/codeteki/outreach/internal/stores/crm"
)

// Stage names that close a deal when due and still unanswered
var finalStagePattern = regexp.MustCompile(`(?i)follow.?up 3|final`)

// Stage names a successful send may auto-advance into
var advanceStagePattern = regexp.MustCompile(`(?i)follow.?up|nudge`)

// Decider is the slice of the AI agent the engine depends on
type Decider interface {
	AnalyzeDeal(ctx context.Context, deal *crm.Deal) (*agent.DealAnalysis, error)
	ComposeEmail(ctx context.Context, deal *crm.Deal) (*agent.EmailDraft, error)
	ClassifyReply(ctx context.Context, deal *crm.Deal, subject, body string) (*agent.ReplyClassification, error)
	ScoreLead(ctx context.Context, contact *crm.Contact) (*agent.LeadScore, error)
}

// Reviewer produces the free-form daily briefing
type Reviewer interface {
	Review(ctx context.Context, briefing string) (string, error)
}

// Config holds the engine's tunables
type Config struct {
	BatchSize        int    // Due deals per scheduler run
	SendBatchSize    int    // Queued emails per dispatch run
	BurnoutThreshold int    // Consecutive unopened emails before backing off
	OfficeStartHour  int    // Inclusive, brand-local
	OfficeEndHour    int    // Exclusive, brand-local
	ReplyFetchLimit  int    // Unread messages per inbox poll
	TrackingBaseURL  string // Public base URL for the open-tracking pixel
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		BatchSize:        50,
		SendBatchSize:    20,
		BurnoutThreshold: 3,
		OfficeStartHour:  8,
		OfficeEndHour:    18,
		ReplyFetchLimit:  50,
		TrackingBaseURL:  "http://localhost:8080",
	}
}

// Options wires the engine's collaborators
type Options struct {
	Store     crm.StoreInterface
	AI        Decider
	Reviewer  Reviewer
	Sender    mailer.Sender
	Inbox     mailer.Inbox
	Brands    *brands.Registry
	Publisher events.Publisher
	Config    Config
}

// Engine drives the CRM automation: scheduled deal processing, email
// dispatch, reply ingestion and the daily review
type Engine struct {
	store     crm.StoreInterface
	ai        Decider
	reviewer  Reviewer
	sender    mailer.Sender
	inbox     mailer.Inbox
	brands    *brands.Registry
	publisher events.Publisher
	cfg       Config

	// clock is swapped out in tests
	clock func() time.Time
}

// Report summarizes one batch run
type Report struct {
	Processed int
	Skipped   int
	Errors    int
	Detail    string
}

// New creates the engine. Zero-valued Config fields fall back to the
// defaults individually, so a partially filled Config keeps its set fields.
func New(opts Options) *Engine {
	defaults := DefaultConfig()
	if opts.Config.BatchSize == 0 {
		opts.Config.BatchSize = defaults.BatchSize
	}
	if opts.Config.SendBatchSize == 0 {
		opts.Config.SendBatchSize = defaults.SendBatchSize
	}
	if opts.Config.BurnoutThreshold == 0 {
		opts.Config.BurnoutThreshold = defaults.BurnoutThreshold
	}
	if opts.Config.OfficeStartHour == 0 {
		opts.Config.OfficeStartHour = defaults.OfficeStartHour
	}
	if opts.Config.OfficeEndHour == 0 {
		opts.Config.OfficeEndHour = defaults.OfficeEndHour
	}
	if opts.Config.ReplyFetchLimit == 0 {
		opts.Config.ReplyFetchLimit = defaults.ReplyFetchLimit
	}
	if opts.Config.TrackingBaseURL == "" {
		opts.Config.TrackingBaseURL = defaults.TrackingBaseURL
	}
	return &Engine{
		store:     opts.Store,
		ai:        opts.AI,
		reviewer:  opts.Reviewer,
		sender:    opts.Sender,
		inbox:     opts.Inbox,
		brands:    opts.Brands,
		publisher: opts.Publisher,
		cfg:       opts.Config,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

/* ---- SCHEDULED DEAL PROCESSING ---- */

// ProcessPendingDeals works through the batch of due active deals. Safety
// gates run before any AI call; per-deal failures are counted and never
// abort the batch.
func (e *Engine) ProcessPendingDeals(ctx context.Context) (*Report, error) {
	now := e.clock()

	deals, err := e.store.DueDeals(now, e.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load due deals: %w", err)
	}

	report := &Report{}
	for _, deal := range deals {
		if ctx.Err() != nil {
			break
		}
		if deal.Contact == nil {
			log.Printf("[ENGINE]: Deal %d has no contact, skipping", deal.ID)
			report.Errors++
			continue
		}
		if !e.withinOfficeHours(deal.Contact.Brand, now) {
			report.Skipped++
			continue
		}

		if err := e.processDeal(ctx, deal, now); err != nil {
			log.Printf("[ENGINE]: Deal %d failed: %v", deal.ID, err)
			report.Errors++
			continue
		}
		report.Processed++
	}

	log.Printf("[ENGINE]: Processed %d due deals (%d skipped, %d errors)",
		report.Processed, report.Skipped, report.Errors)
	return report, nil
}

// withinOfficeHours checks the brand-local sending window. Unknown brands
// fall back to UTC rather than blocking the deal.
func (e *Engine) withinOfficeHours(brandKey string, now time.Time) bool {
	loc := time.UTC
	if e.brands != nil {
		if brand, err := e.brands.Get(brandKey); err == nil {
			loc = brand.Location()
		}
	}

	local := now.In(loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	return local.Hour() >= e.cfg.OfficeStartHour && local.Hour() < e.cfg.OfficeEndHour
}

// processDeal runs the safety gates and, only when all pass, the AI decision
func (e *Engine) processDeal(ctx context.Context, deal *crm.Deal, now time.Time) error {
	contact := deal.Contact

	if contact.EmailBounced {
		return e.closeDealLost(ctx, deal, crm.LostReasonInvalidEmail, "Contact email previously bounced")
	}
	if contact.IsUnsubscribed || contact.SpamReported {
		return e.closeDealLost(ctx, deal, crm.LostReasonUnsubscribed, "Contact unsubscribed or reported spam")
	}
	if deal.CurrentStage != nil && finalStagePattern.MatchString(deal.CurrentStage.Name) {
		return e.closeDealLost(ctx, deal, crm.LostReasonNoResponse,
			fmt.Sprintf("No response after final stage '%s'", deal.CurrentStage.Name))
	}
	if deal.EngagementTier == crm.TierGhost && deal.EmailsSent >= 3 && deal.EmailsOpened == 0 {
		return e.closeDealLost(ctx, deal, crm.LostReasonNoResponse,
			fmt.Sprintf("Ghost contact: %d emails sent, none opened", deal.EmailsSent))
	}
	if deal.ConsecutiveUnopened >= e.cfg.BurnoutThreshold {
		return e.backOff(deal, now)
	}

	analysis, err := e.ai.AnalyzeDeal(ctx, deal)
	if err != nil {
		log.Printf("[ENGINE]: Analysis failed for deal %d, flagging for review: %v", deal.ID, err)
		analysis = agent.FallbackAnalysis()
	}
	return e.applyAnalysis(ctx, deal, analysis, now)
}

// backOff doubles the wait on a deal whose recent emails all went unopened
func (e *Engine) backOff(deal *crm.Deal, now time.Time) error {
	days := 7
	if deal.CurrentStage != nil && deal.CurrentStage.DaysUntilFollowup*2 > days {
		days = deal.CurrentStage.DaysUntilFollowup * 2
	}
	next := now.AddDate(0, 0, days)
	deal.NextActionDate = &next

	if err := e.store.UpdateDeal(deal); err != nil {
		return fmt.Errorf("failed to back off deal: %w", err)
	}
	return e.store.AddDealActivity(&crm.DealActivity{
		DealID:      deal.ID,
		Kind:        crm.ActivitySafetyStop,
		Description: fmt.Sprintf("Backed off %d days, %d consecutive emails unopened", days, deal.ConsecutiveUnopened),
	})
}

// applyAnalysis routes the AI's recommended action
func (e *Engine) applyAnalysis(ctx context.Context, deal *crm.Deal, analysis *agent.DealAnalysis, now time.Time) error {
	if err := e.store.AddDealActivity(&crm.DealActivity{
		DealID:      deal.ID,
		Kind:        crm.ActivityAIDecision,
		Description: fmt.Sprintf("%s: %s", analysis.Action, analysis.Reasoning),
	}); err != nil {
		return err
	}

	switch analysis.Action {
	case agent.ActionSendEmail:
		_, err := e.QueueDealEmail(ctx, deal)
		return err

	case agent.ActionMoveStage:
		return e.advanceStage(ctx, deal, now, false)

	case agent.ActionWait:
		next := now.AddDate(0, 0, analysis.WaitDays)
		deal.NextActionDate = &next
		return e.store.UpdateDeal(deal)

	case agent.ActionChangeApproach:
		deal.Approach = analysis.Approach
		if err := e.store.UpdateDeal(deal); err != nil {
			return err
		}
		_, err := e.QueueDealEmail(ctx, deal)
		return err

	case agent.ActionPause:
		deal.Status = crm.DealStatusPaused
		deal.NextActionDate = nil
		return e.store.UpdateDeal(deal)

	case agent.ActionFlagForReview:
		return e.flagForReview(deal, analysis.Reasoning)

	default:
		return e.flagForReview(deal, fmt.Sprintf("unhandled action '%s'", analysis.Action))
	}
}

// flagForReview parks a deal for a human. Clearing the action date keeps it
// out of the due queue until someone re-schedules it.
func (e *Engine) flagForReview(deal *crm.Deal, reason string) error {
	deal.NeedsReview = true
	deal.NextActionDate = nil
	if err := e.store.UpdateDeal(deal); err != nil {
		return err
	}
	return e.store.AddDealActivity(&crm.DealActivity{
		DealID:      deal.ID,
		Kind:        crm.ActivityNote,
		Description: "Flagged for review: " + reason,
	})
}

// advanceStage moves a deal to its next pipeline stage. With restricted set,
// the move only happens when the next stage is a follow-up or nudge stage.
func (e *Engine) advanceStage(ctx context.Context, deal *crm.Deal, now time.Time, restricted bool) error {
	if deal.CurrentStage == nil {
		return e.flagForReview(deal, "deal has no current stage")
	}

	next, err := e.store.NextStage(deal.CurrentStage)
	if err != nil {
		return fmt.Errorf("failed to resolve next stage: %w", err)
	}
	if next == nil {
		return e.flagForReview(deal, fmt.Sprintf("no stage after '%s'", deal.CurrentStage.Name))
	}
	if restricted && !advanceStagePattern.MatchString(next.Name) {
		return nil
	}

	if next.IsTerminal && next.IsWon {
		deal.CurrentStageID = next.ID
		deal.CurrentStage = next
		return e.closeDealWon(ctx, deal, fmt.Sprintf("Reached winning stage '%s'", next.Name))
	}

	previous := deal.CurrentStage.Name
	deal.CurrentStageID = next.ID
	deal.CurrentStage = next
	nextAction := now.AddDate(0, 0, next.DaysUntilFollowup)
	deal.NextActionDate = &nextAction

	if err := e.store.UpdateDeal(deal); err != nil {
		return fmt.Errorf("failed to advance deal: %w", err)
	}
	return e.store.AddDealActivity(&crm.DealActivity{
		DealID:      deal.ID,
		Kind:        crm.ActivityStageChange,
		Description: fmt.Sprintf("Moved from '%s' to '%s'", previous, next.Name),
	})
}

/* ---- CLOSING ---- */

// closeDealLost closes one deal as lost and publishes the closure
func (e *Engine) closeDealLost(ctx context.Context, deal *crm.Deal, reason, description string) error {
	deal.Status = crm.DealStatusLost
	deal.LostReason = reason
	deal.NextActionDate = nil

	if err := e.store.UpdateDeal(deal); err != nil {
		return fmt.Errorf("failed to close deal: %w", err)
	}
	if err := e.store.AddDealActivity(&crm.DealActivity{
		DealID:      deal.ID,
		Kind:        crm.ActivitySafetyStop,
		Description: description,
	}); err != nil {
		return err
	}

	metrics.RecordDealClosed(crm.DealStatusLost, reason)
	e.publish(ctx, &events.Event{
		Topic:      events.TopicDealLost,
		Brand:      e.dealBrand(deal),
		ContactID:  deal.ContactID,
		DealID:     deal.ID,
		PipelineID: deal.PipelineID,
		Reason:     reason,
	})
	return nil
}

// closeDealWon closes one deal as won and publishes the closure. The
// deal-won consumer picks this up to start the nurture pipeline.
func (e *Engine) closeDealWon(ctx context.Context, deal *crm.Deal, description string) error {
	deal.Status = crm.DealStatusWon
	deal.NextActionDate = nil

	if err := e.store.UpdateDeal(deal); err != nil {
		return fmt.Errorf("failed to close deal: %w", err)
	}
	if err := e.store.AddDealActivity(&crm.DealActivity{
		DealID:      deal.ID,
		Kind:        crm.ActivityStageChange,
		Description: description,
	}); err != nil {
		return err
	}

	metrics.RecordDealClosed(crm.DealStatusWon, "")
	e.publish(ctx, &events.Event{
		Topic:      events.TopicDealWon,
		Brand:      e.dealBrand(deal),
		ContactID:  deal.ContactID,
		DealID:     deal.ID,
		PipelineID: deal.PipelineID,
	})
	return nil
}

// publish sends an event; publish failures are logged, never propagated
func (e *Engine) publish(ctx context.Context, event *events.Event) {
	if e.publisher == nil {
		return
	}
	event.OccurredAt = e.clock()
	if err := e.publisher.Publish(ctx, event); err != nil {
		log.Printf("[ENGINE]: Failed to publish '%s' event for deal %d: %v", event.Topic, event.DealID, err)
	}
}

func (e *Engine) dealBrand(deal *crm.Deal) string {
	if deal.Contact != nil {
		return deal.Contact.Brand
	}
	return ""
}
