package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/codeteki/outreach/internal/agent"
	"github.com/codeteki/outreach/internal/stores/crm"
)

// ScoreContact rates a new lead with the AI and stores the score on the
// contact. Scoring failures degrade to the neutral default instead of
// failing contact creation.
func (e *Engine) ScoreContact(ctx context.Context, contact *crm.Contact) error {
	score, err := e.ai.ScoreLead(ctx, contact)
	if err != nil {
		log.Printf("[ENGINE]: Lead scoring failed for contact %d, using neutral default: %v", contact.ID, err)
		score = agent.FallbackScore()
	}

	contact.AIScore = score.Score
	if err := e.store.UpdateContact(contact); err != nil {
		return fmt.Errorf("failed to store lead score: %w", err)
	}
	return nil
}

// CloseDeal closes a deal as won or lost on behalf of a manual API move,
// running the same closure path the scheduler uses
func (e *Engine) CloseDeal(ctx context.Context, deal *crm.Deal, status, reason string) error {
	switch status {
	case crm.DealStatusWon:
		return e.closeDealWon(ctx, deal, "Closed won manually")
	case crm.DealStatusLost:
		if reason == "" {
			reason = crm.LostReasonNotInterested
		}
		return e.closeDealLost(ctx, deal, reason, "Closed lost manually")
	default:
		return fmt.Errorf("cannot close deal with status '%s'", status)
	}
}
