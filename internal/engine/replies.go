package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/codeteki/outreach/internal/agent"
	"github.com/codeteki/outreach/internal/events"
	"github.com/codeteki/outreach/internal/mailer"
	"github.com/codeteki/outreach/internal/stores/crm"
)

// Reply outcome statuses
const (
	ReplyApplied   = "applied"
	ReplyDuplicate = "duplicate"
	ReplyUnmatched = "unmatched"
)

// ReplyOutcome reports what happened to one inbound message
type ReplyOutcome struct {
	Status string
	DealID uint
	Intent string
}

// CheckEmailReplies polls every brand's inbox and applies new replies
func (e *Engine) CheckEmailReplies(ctx context.Context) (*Report, error) {
	if e.inbox == nil || e.brands == nil {
		return &Report{Detail: "no inbox configured"}, nil
	}

	report := &Report{}
	for _, key := range e.brands.Keys() {
		brand, err := e.brands.Get(key)
		if err != nil || brand.InboxAccount == "" {
			continue
		}

		messages, err := e.inbox.FetchUnread(ctx, brand.InboxAccount, e.cfg.ReplyFetchLimit)
		if err != nil {
			log.Printf("[REPLIES]: Failed to fetch inbox for brand '%s': %v", key, err)
			report.Errors++
			continue
		}

		for _, msg := range messages {
			outcome, err := e.ApplyInboundMessage(ctx, key, msg)
			if err != nil {
				log.Printf("[REPLIES]: Failed to apply reply from %s: %v", msg.From, err)
				report.Errors++
				continue
			}
			if outcome.Status == ReplyApplied {
				report.Processed++
			} else {
				report.Skipped++
			}
		}
	}

	log.Printf("[REPLIES]: Applied %d replies (%d skipped, %d errors)",
		report.Processed, report.Skipped, report.Errors)
	return report, nil
}

// ApplyInboundMessage records and classifies one inbound reply. The inbox
// poller and the reply webhook both land here so the semantics cannot drift.
func (e *Engine) ApplyInboundMessage(ctx context.Context, brandKey string, msg *mailer.InboundMessage) (*ReplyOutcome, error) {
	if msg.MessageID != "" {
		existing, err := e.store.FindInboundByProviderID(msg.MessageID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &ReplyOutcome{Status: ReplyDuplicate, DealID: existing.DealID}, nil
		}
	}

	sender := normalizeAddress(msg.From)
	contact, err := e.store.FindContactByEmail(brandKey, sender)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		log.Printf("[REPLIES]: No contact for %s on brand '%s', skipping", sender, brandKey)
		return &ReplyOutcome{Status: ReplyUnmatched}, nil
	}

	deal, err := e.matchDeal(contact, msg.Subject)
	if err != nil {
		return nil, err
	}
	if deal == nil {
		log.Printf("[REPLIES]: No deal matches reply from %s, skipping", sender)
		return &ReplyOutcome{Status: ReplyUnmatched}, nil
	}

	now := e.clock()
	inbound := &crm.EmailLog{
		DealID:            deal.ID,
		ContactID:         contact.ID,
		Direction:         crm.DirectionInbound,
		Channel:           crm.ChannelEmail,
		Subject:           msg.Subject,
		Body:              msg.Body,
		Status:            crm.EmailStatusReceived,
		ProviderMessageID: msg.MessageID,
		RepliedAt:         &now,
	}
	if err := e.store.CreateEmailLog(inbound); err != nil {
		return nil, fmt.Errorf("failed to record inbound reply: %w", err)
	}

	if outbound, err := e.store.LatestOutbound(deal.ID); err == nil && outbound != nil {
		outbound.RepliedAt = &now
		if err := e.store.UpdateEmailLog(outbound); err != nil {
			log.Printf("[REPLIES]: Failed to mark outbound %d replied: %v", outbound.ID, err)
		}
	}

	classification, err := e.ai.ClassifyReply(ctx, deal, msg.Subject, msg.Body)
	if err != nil {
		log.Printf("[REPLIES]: Classification failed for deal %d, using fallback: %v", deal.ID, err)
		classification = agent.FallbackClassification()
	}

	if err := e.store.AddDealActivity(&crm.DealActivity{
		DealID:      deal.ID,
		Kind:        crm.ActivityReply,
		Description: fmt.Sprintf("Reply classified %s (%s): %s", classification.Intent, classification.Sentiment, classification.Reasoning),
	}); err != nil {
		return nil, err
	}

	if err := e.applyIntent(ctx, deal, contact, classification.Intent, now); err != nil {
		return nil, err
	}
	return &ReplyOutcome{Status: ReplyApplied, DealID: deal.ID, Intent: classification.Intent}, nil
}

// matchDeal finds the deal an inbound reply belongs to: the contact's most
// recent active deal, else subject correlation against recent outbound mail
func (e *Engine) matchDeal(contact *crm.Contact, subject string) (*crm.Deal, error) {
	active, err := e.store.ActiveDealsByContact(contact.ID)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return active[0], nil
	}

	wanted := normalizeSubject(subject)
	if wanted == "" {
		return nil, nil
	}
	deals, err := e.store.ListDeals(crm.DealFilter{ContactID: contact.ID, Limit: 20})
	if err != nil {
		return nil, err
	}
	for _, deal := range deals {
		outbound, err := e.store.LatestOutbound(deal.ID)
		if err != nil || outbound == nil {
			continue
		}
		if normalizeSubject(outbound.Subject) == wanted {
			return deal, nil
		}
	}
	return nil, nil
}

// applyIntent performs the deal transition a classified reply demands
func (e *Engine) applyIntent(ctx context.Context, deal *crm.Deal, contact *crm.Contact, intent string, now time.Time) error {
	// Any reply is engagement
	deal.ConsecutiveUnopened = 0

	switch intent {
	case agent.IntentInterested:
		deal.EngagementTier = crm.TierHot
		deal.NeedsReview = true
		if err := e.advanceStage(ctx, deal, now, false); err != nil {
			return err
		}
		if deal.Status == crm.DealStatusActive {
			return e.store.UpdateDeal(deal)
		}
		return nil

	case agent.IntentNotInterested:
		return e.closeDealLost(ctx, deal, crm.LostReasonNotInterested, "Contact replied not interested")

	case agent.IntentUnsubscribe:
		if err := e.closeDealLost(ctx, deal, crm.LostReasonUnsubscribed, "Contact asked to unsubscribe"); err != nil {
			return err
		}
		_, err := e.UnsubscribeContact(ctx, contact, "reply request", "reply")
		return err

	case agent.IntentOutOfOffice:
		next := now.AddDate(0, 0, 7)
		deal.NextActionDate = &next
		return e.store.UpdateDeal(deal)

	default:
		// question, other and anything unrecognized go to a human
		deal.NeedsReview = true
		return e.store.UpdateDeal(deal)
	}
}

// UnsubscribeContact suppresses a contact and pauses every deal it still
// has active. Returns how many deals were paused. Shared by the reply path
// and the unsubscribe webhook.
func (e *Engine) UnsubscribeContact(ctx context.Context, contact *crm.Contact, reason, source string) (int, error) {
	now := e.clock()
	contact.IsUnsubscribed = true
	contact.UnsubscribeReason = reason
	contact.UnsubscribedAt = &now
	if err := e.store.UpdateContact(contact); err != nil {
		return 0, fmt.Errorf("failed to unsubscribe contact: %w", err)
	}

	deals, err := e.store.ActiveDealsByContact(contact.ID)
	if err != nil {
		return 0, err
	}
	paused := 0
	for _, deal := range deals {
		deal.Status = crm.DealStatusPaused
		deal.NextActionDate = nil
		if err := e.store.UpdateDeal(deal); err != nil {
			log.Printf("[REPLIES]: Failed to pause deal %d: %v", deal.ID, err)
			continue
		}
		if err := e.store.AddDealActivity(&crm.DealActivity{
			DealID:      deal.ID,
			Kind:        crm.ActivitySafetyStop,
			Description: "Paused: contact unsubscribed via " + source,
		}); err != nil {
			return paused, err
		}
		paused++
	}

	e.publish(ctx, &events.Event{
		Topic:     events.TopicContactUnsubscribed,
		Brand:     contact.Brand,
		ContactID: contact.ID,
		Reason:    reason,
	})
	return paused, nil
}

// BrandForRecipient resolves which brand an inbound message was addressed
// to by matching the recipient against each brand's known addresses
func (e *Engine) BrandForRecipient(to string) string {
	if e.brands == nil {
		return ""
	}
	addr := normalizeAddress(to)
	for _, key := range e.brands.Keys() {
		brand, err := e.brands.Get(key)
		if err != nil {
			continue
		}
		for _, candidate := range []string{brand.FromEmail, brand.ReplyTo, brand.InboxAccount} {
			if candidate != "" && normalizeAddress(candidate) == addr {
				return key
			}
		}
	}
	return ""
}

// normalizeAddress lowercases and strips the display-name wrapper from an
// email address
func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if start := strings.LastIndex(addr, "<"); start >= 0 {
		if end := strings.LastIndex(addr, ">"); end > start {
			addr = addr[start+1 : end]
		}
	}
	return strings.ToLower(strings.TrimSpace(addr))
}

// normalizeSubject strips reply and forward prefixes for correlation
func normalizeSubject(subject string) string {
	s := strings.TrimSpace(strings.ToLower(subject))
	for {
		trimmed := s
		for _, prefix := range []string{"re:", "fwd:", "fw:"} {
			trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
		}
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}
