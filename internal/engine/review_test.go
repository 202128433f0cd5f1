package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeteki/outreach/internal/agent"
	"github.com/codeteki/outreach/internal/stores/crm"
)

type fakeReviewer struct {
	summary  string
	err      error
	briefing string
}

func (f *fakeReviewer) Review(_ context.Context, briefing string) (string, error) {
	f.briefing = briefing
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

func TestDailyAIReview(t *testing.T) {
	t.Run("flags stale deals and records the briefing", func(t *testing.T) {
		f := newFixture(t)
		reviewer := &fakeReviewer{summary: "Pipeline healthy, two deals need attention."}
		f.engine.reviewer = reviewer

		pipeline := f.createPipeline(t)
		staleDue := f.now.AddDate(0, 0, -10)
		stale := f.createDueDeal(t, f.createContact(t, "stale@example.com", nil), pipeline, 1, func(d *crm.Deal) {
			d.NextActionDate = &staleDue
			d.Title = "Stale deal"
		})
		recentDue := f.now.Add(-time.Hour)
		fresh := f.createDueDeal(t, f.createContact(t, "fresh@example.com", nil), pipeline, 0, func(d *crm.Deal) {
			d.NextActionDate = &recentDue
		})

		report, err := f.engine.DailyAIReview(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Processed)
		assert.Equal(t, reviewer.summary, report.Detail)

		assert.True(t, f.reload(t, stale.ID).NeedsReview)
		assert.False(t, f.reload(t, fresh.ID).NeedsReview)
		assert.Contains(t, reviewer.briefing, "Stale deal")
		assert.Contains(t, reviewer.briefing, "Contacts: 2")

		audits, err := f.store.ListAIActivities(1)
		require.NoError(t, err)
		require.Len(t, audits, 1)
		assert.Equal(t, agent.PromptDailyReview, audits[0].PromptType)
		assert.True(t, audits[0].Success)
	})

	t.Run("missing reviewer is audited, not fatal", func(t *testing.T) {
		f := newFixture(t)

		report, err := f.engine.DailyAIReview(context.Background())
		require.NoError(t, err)
		assert.Empty(t, report.Detail)

		audits, err := f.store.ListAIActivities(1)
		require.NoError(t, err)
		require.Len(t, audits, 1)
		assert.False(t, audits[0].Success)
		assert.Equal(t, "no reviewer configured", audits[0].Error)
	})

	t.Run("reviewer failure is audited", func(t *testing.T) {
		f := newFixture(t)
		f.engine.reviewer = &fakeReviewer{err: errors.New("model unavailable")}

		report, err := f.engine.DailyAIReview(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Errors)

		audits, err := f.store.ListAIActivities(1)
		require.NoError(t, err)
		require.Len(t, audits, 1)
		assert.False(t, audits[0].Success)
	})
}

func TestScoreContact(t *testing.T) {
	t.Run("stores the score", func(t *testing.T) {
		f := newFixture(t)
		f.ai.score = &agent.LeadScore{Score: 85, Reasoning: "good fit"}
		contact := f.createContact(t, "score@example.com", nil)

		require.NoError(t, f.engine.ScoreContact(context.Background(), contact))

		updated, err := f.store.GetContact(contact.ID)
		require.NoError(t, err)
		assert.Equal(t, 85, updated.AIScore)
	})

	t.Run("scoring failure defaults to neutral", func(t *testing.T) {
		f := newFixture(t)
		f.ai.score = nil
		f.ai.scoreErr = errors.New("model timeout")
		contact := f.createContact(t, "neutral@example.com", nil)

		require.NoError(t, f.engine.ScoreContact(context.Background(), contact))

		updated, err := f.store.GetContact(contact.ID)
		require.NoError(t, err)
		assert.Equal(t, 50, updated.AIScore)
	})
}
