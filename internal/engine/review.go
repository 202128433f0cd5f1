package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/codeteki/outreach/internal/agent"
	"github.com/codeteki/outreach/internal/stores/crm"
)

// staleAfterDays is how long past its action date a deal may sit before the
// daily review flags it
const staleAfterDays = 7

// DailyAIReview summarizes pipeline health for the operations team. Stale
// deals get flagged for review, the briefing itself lands on the AI audit
// trail.
func (e *Engine) DailyAIReview(ctx context.Context) (*Report, error) {
	now := e.clock()

	stats, err := e.store.Stats("")
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	stale, err := e.store.DueDeals(now.AddDate(0, 0, -staleAfterDays), e.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load stale deals: %w", err)
	}

	report := &Report{}
	var briefing strings.Builder
	briefing.WriteString(fmt.Sprintf("Date: %s\n", now.Format("2006-01-02")))
	briefing.WriteString(fmt.Sprintf("Contacts: %d\n", stats.Contacts))
	for status, count := range stats.DealsByStatus {
		briefing.WriteString(fmt.Sprintf("Deals %s: %d\n", status, count))
	}
	briefing.WriteString(fmt.Sprintf("Emails sent: %d, opened: %d, replies: %d\n",
		stats.EmailsSent, stats.EmailsOpened, stats.Replies))

	briefing.WriteString(fmt.Sprintf("Stale deals (past due over %d days): %d\n", staleAfterDays, len(stale)))
	for _, deal := range stale {
		briefing.WriteString(fmt.Sprintf("- deal %d '%s', tier %s, %d emails sent\n",
			deal.ID, deal.Title, deal.EngagementTier, deal.EmailsSent))

		if !deal.NeedsReview {
			deal.NeedsReview = true
			if err := e.store.UpdateDeal(deal); err != nil {
				log.Printf("[REVIEW]: Failed to flag stale deal %d: %v", deal.ID, err)
				report.Errors++
				continue
			}
		}
		report.Processed++
	}

	audit := &crm.AIActivity{PromptType: agent.PromptDailyReview}
	if e.reviewer == nil {
		audit.Success = false
		audit.Error = "no reviewer configured"
	} else {
		summary, err := e.reviewer.Review(ctx, briefing.String())
		if err != nil {
			log.Printf("[REVIEW]: Daily review failed: %v", err)
			audit.Success = false
			audit.Error = err.Error()
			report.Errors++
		} else {
			audit.Success = true
			audit.Reasoning = summary
			report.Detail = summary
		}
	}
	if err := e.store.AddAIActivity(audit); err != nil {
		return report, fmt.Errorf("failed to record daily review: %w", err)
	}

	log.Printf("[REVIEW]: Daily review done, %d stale deals flagged", report.Processed)
	return report, nil
}
