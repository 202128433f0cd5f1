package agent

import (
	"context"
	"fmt"

	"github.com/nlpodyssey/openai-agents-go/agents"
)

// ReviewAgent produces the free-form daily briefing. Unlike the four
// structured decisions, its output is prose for humans, so it runs through
// the agents runtime rather than the strict-parse call path.
type ReviewAgent struct {
	agent *agents.Agent
}

// NewReviewAgent creates the daily-review agent
func NewReviewAgent(model string) *ReviewAgent {
	return &ReviewAgent{
		agent: agents.New("CRM Daily Reviewer").
			WithInstructions(reviewInstructions).
			WithModel(model),
	}
}

// Review turns a pipeline summary into an operations briefing
func (r *ReviewAgent) Review(ctx context.Context, briefing string) (string, error) {
	resp, err := agents.Run(ctx, r.agent, briefing)
	if err != nil {
		return "", fmt.Errorf("daily review run failed: %w", err)
	}
	return fmt.Sprint(resp.FinalOutput), nil
}
