package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeteki/outreach/internal/agent"
	"github.com/codeteki/outreach/internal/events"
	"github.com/codeteki/outreach/internal/mailer"
	"github.com/codeteki/outreach/internal/metrics"
	"github.com/codeteki/outreach/internal/stores/crm"
)

// QueueResult reports what QueueDealEmail did
type QueueResult struct {
	Log     *crm.EmailLog
	Blocked bool
	Reason  string
}

// QueueDealEmail creates and immediately attempts to deliver the next email
// for a deal. Suppression is checked before any template or AI work. The
// body comes from a pre-built template when one exists for the (brand,
// pipeline type, stage name) triple, otherwise the AI composes it.
func (e *Engine) QueueDealEmail(ctx context.Context, deal *crm.Deal) (*QueueResult, error) {
	contact := deal.Contact
	if contact == nil {
		loaded, err := e.store.GetContact(deal.ContactID)
		if err != nil {
			return nil, fmt.Errorf("cannot load contact for deal %d: %w", deal.ID, err)
		}
		contact = loaded
		deal.Contact = loaded
	}

	if contact.Suppressed() {
		if err := e.store.AddDealActivity(&crm.DealActivity{
			DealID:      deal.ID,
			Kind:        crm.ActivitySafetyStop,
			Description: "Email blocked: contact is suppressed",
		}); err != nil {
			return nil, err
		}
		return &QueueResult{Blocked: true, Reason: "contact suppressed"}, nil
	}

	subject, body, err := e.buildEmail(ctx, deal, contact)
	if err != nil {
		var parseErr *agent.ParseError
		if errors.As(err, &parseErr) {
			if flagErr := e.flagForReview(deal, "email composition failed"); flagErr != nil {
				return nil, flagErr
			}
			return &QueueResult{Blocked: true, Reason: "composition failed"}, nil
		}
		return nil, err
	}

	trackingID := uuid.New().String()
	emailLog := &crm.EmailLog{
		DealID:     deal.ID,
		ContactID:  contact.ID,
		Direction:  crm.DirectionOutbound,
		Channel:    crm.ChannelEmail,
		Subject:    subject,
		Body:       mailer.InjectTrackingPixel(body, e.cfg.TrackingBaseURL, trackingID),
		Status:     crm.EmailStatusQueued,
		QueuedAt:   e.clock(),
		TrackingID: trackingID,
	}
	if err := e.store.CreateEmailLog(emailLog); err != nil {
		return nil, fmt.Errorf("failed to queue email: %w", err)
	}

	// Transient failures leave the log queued for the dispatch retry job
	if err := e.deliver(ctx, emailLog, false); err != nil {
		log.Printf("[DISPATCH]: Immediate delivery of email %d failed, left queued: %v", emailLog.ID, err)
	}
	return &QueueResult{Log: emailLog}, nil
}

// buildEmail resolves the message content: template first, AI second
func (e *Engine) buildEmail(ctx context.Context, deal *crm.Deal, contact *crm.Contact) (subject, body string, err error) {
	if deal.Pipeline != nil && deal.CurrentStage != nil {
		tmpl, err := e.store.FindTemplate(contact.Brand, deal.Pipeline.Type, deal.CurrentStage.Name)
		if err != nil {
			return "", "", err
		}
		if tmpl != nil {
			return mailer.RenderTemplate(tmpl, mailer.TemplateData{
				ContactName: contact.Name,
				Company:     contact.Company,
				Brand:       contact.Brand,
				StageName:   deal.CurrentStage.Name,
			})
		}
	}

	draft, err := e.ai.ComposeEmail(ctx, deal)
	if err != nil {
		return "", "", err
	}
	return draft.Subject, mailer.WrapPlainText(draft.Body), nil
}

// SendScheduledEmails drains queued email logs through the delivery path.
// Runs every quarter hour to retry sends that failed transiently.
func (e *Engine) SendScheduledEmails(ctx context.Context) (*Report, error) {
	logs, err := e.store.QueuedEmails(e.cfg.SendBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load queued emails: %w", err)
	}

	report := &Report{}
	for _, emailLog := range logs {
		if ctx.Err() != nil {
			break
		}
		if err := e.deliver(ctx, emailLog, true); err != nil {
			log.Printf("[DISPATCH]: Email %d failed: %v", emailLog.ID, err)
			report.Errors++
			continue
		}
		report.Processed++
	}

	log.Printf("[DISPATCH]: Delivered %d queued emails (%d errors)", report.Processed, report.Errors)
	return report, nil
}

// deliver hands one queued email to the provider and records the outcome on
// the log and the deal. With final set, a transient failure marks the log
// failed instead of leaving it queued.
func (e *Engine) deliver(ctx context.Context, emailLog *crm.EmailLog, final bool) error {
	contact, err := e.store.GetContact(emailLog.ContactID)
	if err != nil {
		return fmt.Errorf("cannot load contact for email %d: %w", emailLog.ID, err)
	}

	// Suppression may have happened between queue and send
	if contact.Suppressed() {
		emailLog.Status = crm.EmailStatusFailed
		emailLog.Error = "contact suppressed"
		return e.store.UpdateEmailLog(emailLog)
	}

	result, err := e.sender.Send(ctx, &mailer.OutboundMessage{
		Brand:    contact.Brand,
		To:       contact.Email,
		Subject:  emailLog.Subject,
		HTMLBody: emailLog.Body,
	})
	if err != nil {
		var bounce *mailer.HardBounceError
		if errors.As(err, &bounce) {
			return e.handleHardBounce(ctx, emailLog, contact, bounce)
		}

		emailLog.Error = err.Error()
		if final {
			emailLog.Status = crm.EmailStatusFailed
		}
		if updateErr := e.store.UpdateEmailLog(emailLog); updateErr != nil {
			return updateErr
		}
		return fmt.Errorf("send failed: %w", err)
	}

	now := e.clock()
	emailLog.Status = crm.EmailStatusSent
	emailLog.SentAt = &now
	emailLog.ProviderMessageID = result.MessageID
	if err := e.store.UpdateEmailLog(emailLog); err != nil {
		return fmt.Errorf("failed to mark email sent: %w", err)
	}

	return e.afterSend(ctx, emailLog, now)
}

// afterSend updates the deal's counters and schedule once a message is out
func (e *Engine) afterSend(ctx context.Context, emailLog *crm.EmailLog, now time.Time) error {
	deal, err := e.store.GetDeal(emailLog.DealID)
	if err != nil {
		return fmt.Errorf("cannot load deal for sent email %d: %w", emailLog.ID, err)
	}

	metrics.RecordEmailSent(e.dealBrand(deal))

	deal.EmailsSent++
	deal.ConsecutiveUnopened++
	deal.RecomputeTier()
	if deal.CurrentStage != nil {
		next := now.AddDate(0, 0, deal.CurrentStage.DaysUntilFollowup)
		deal.NextActionDate = &next
	}
	if err := e.store.UpdateDeal(deal); err != nil {
		return fmt.Errorf("failed to update deal after send: %w", err)
	}

	if err := e.store.AddDealActivity(&crm.DealActivity{
		DealID:      deal.ID,
		Kind:        crm.ActivityEmailSent,
		Description: fmt.Sprintf("Sent '%s'", emailLog.Subject),
	}); err != nil {
		return err
	}

	return e.advanceStage(ctx, deal, now, true)
}

// handleHardBounce marks the contact undeliverable and closes every active
// deal it has. A bounced address is never retried on any pipeline.
func (e *Engine) handleHardBounce(ctx context.Context, emailLog *crm.EmailLog, contact *crm.Contact, bounce *mailer.HardBounceError) error {
	log.Printf("[DISPATCH]: Hard bounce for %s, closing all active deals", contact.Email)
	metrics.RecordEmailBounced(contact.Brand)

	emailLog.Status = crm.EmailStatusFailed
	emailLog.Error = bounce.Error()
	if err := e.store.UpdateEmailLog(emailLog); err != nil {
		return err
	}

	contact.EmailBounced = true
	if err := e.store.UpdateContact(contact); err != nil {
		return fmt.Errorf("failed to mark contact bounced: %w", err)
	}

	deals, err := e.store.ActiveDealsByContact(contact.ID)
	if err != nil {
		return fmt.Errorf("failed to load deals for bounced contact: %w", err)
	}
	for _, deal := range deals {
		if err := e.closeDealLost(ctx, deal, crm.LostReasonInvalidEmail,
			fmt.Sprintf("Hard bounce sending to %s", contact.Email)); err != nil {
			log.Printf("[DISPATCH]: Failed to close deal %d after bounce: %v", deal.ID, err)
		}
	}

	e.publish(ctx, &events.Event{
		Topic:     events.TopicEmailBounced,
		Brand:     contact.Brand,
		ContactID: contact.ID,
		DealID:    emailLog.DealID,
		Reason:    strings.TrimSpace(bounce.Error()),
	})
	return nil
}
