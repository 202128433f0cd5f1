package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeteki/outreach/internal/stores/crm"
)

// fakeClient returns a canned completion
type fakeClient struct {
	content string
	err     error
	calls   int

	lastSystem string
	lastUser   string
}

func (f *fakeClient) Complete(_ context.Context, system, user string) (*Completion, error) {
	f.calls++
	f.lastSystem = system
	f.lastUser = user
	if f.err != nil {
		return nil, f.err
	}
	return &Completion{
		Content:          f.content,
		Model:            "gpt-4o-mini",
		PromptTokens:     120,
		CompletionTokens: 40,
		TotalTokens:      160,
	}, nil
}

func testDeal() *crm.Deal {
	return &crm.Deal{
		ID:        1,
		ContactID: 1,
		Contact:   &crm.Contact{ID: 1, Brand: "codeteki", Name: "Dana Reyes", Company: "Acme Ltd"},
		Pipeline:  &crm.Pipeline{ID: 1, Name: "Sales Outreach", Type: crm.PipelineTypeSales},
		CurrentStage: &crm.PipelineStage{
			ID: 1, Name: "Follow-up 1", StageOrder: 2, DaysUntilFollowup: 3,
		},
		EmailsSent:     2,
		EmailsOpened:   1,
		EngagementTier: crm.TierEngaged,
	}
}

func lastAudit(t *testing.T, store *crm.InMemoryStore) *crm.AIActivity {
	t.Helper()
	activities, err := store.ListAIActivities(1)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	return activities[0]
}

func TestAnalyzeDeal(t *testing.T) {
	t.Run("parses a clean response", func(t *testing.T) {
		store := crm.NewInMemoryStore()
		client := &fakeClient{content: `{"action":"wait","wait_days":4,"reasoning":"contact opened yesterday","confidence":0.8}`}
		agent := NewWithClient(client, store)

		analysis, err := agent.AnalyzeDeal(context.Background(), testDeal())
		require.NoError(t, err)
		assert.Equal(t, ActionWait, analysis.Action)
		assert.Equal(t, 4, analysis.WaitDays)

		audit := lastAudit(t, store)
		assert.True(t, audit.Success)
		assert.Equal(t, PromptDealAnalysis, audit.PromptType)
		assert.Equal(t, "contact opened yesterday", audit.Reasoning)
		assert.Equal(t, 160, audit.TotalTokens)
	})

	t.Run("strips markdown fences", func(t *testing.T) {
		client := &fakeClient{content: "```json\n{\"action\":\"send_email\",\"reasoning\":\"due\"}\n```"}
		agent := NewWithClient(client, crm.NewInMemoryStore())

		analysis, err := agent.AnalyzeDeal(context.Background(), testDeal())
		require.NoError(t, err)
		assert.Equal(t, ActionSendEmail, analysis.Action)
	})

	t.Run("prose response is a parse error", func(t *testing.T) {
		store := crm.NewInMemoryStore()
		client := &fakeClient{content: "I think you should wait a few days."}
		agent := NewWithClient(client, store)

		_, err := agent.AnalyzeDeal(context.Background(), testDeal())
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, PromptDealAnalysis, parseErr.PromptType)

		audit := lastAudit(t, store)
		assert.False(t, audit.Success)
		assert.NotEmpty(t, audit.Error)
	})

	t.Run("unknown action fails validation", func(t *testing.T) {
		client := &fakeClient{content: `{"action":"escalate","reasoning":"x"}`}
		agent := NewWithClient(client, crm.NewInMemoryStore())

		_, err := agent.AnalyzeDeal(context.Background(), testDeal())
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
	})

	t.Run("wait without wait_days fails validation", func(t *testing.T) {
		client := &fakeClient{content: `{"action":"wait","reasoning":"x"}`}
		agent := NewWithClient(client, crm.NewInMemoryStore())

		_, err := agent.AnalyzeDeal(context.Background(), testDeal())
		require.Error(t, err)
	})

	t.Run("provider failure is audited", func(t *testing.T) {
		store := crm.NewInMemoryStore()
		client := &fakeClient{err: errors.New("rate limited")}
		agent := NewWithClient(client, store)

		_, err := agent.AnalyzeDeal(context.Background(), testDeal())
		require.Error(t, err)
		assert.False(t, lastAudit(t, store).Success)
	})
}

func TestComposeEmail(t *testing.T) {
	t.Run("returns the draft", func(t *testing.T) {
		client := &fakeClient{content: `{"subject":"Checking in","body":"Hi Dana.","reasoning":"follow-up tone"}`}
		agent := NewWithClient(client, crm.NewInMemoryStore())

		draft, err := agent.ComposeEmail(context.Background(), testDeal())
		require.NoError(t, err)
		assert.Equal(t, "Checking in", draft.Subject)
		assert.Contains(t, client.lastUser, "Follow-up 1")
	})

	t.Run("empty body fails validation", func(t *testing.T) {
		client := &fakeClient{content: `{"subject":"Checking in","body":"  "}`}
		agent := NewWithClient(client, crm.NewInMemoryStore())

		_, err := agent.ComposeEmail(context.Background(), testDeal())
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
	})

	t.Run("requested approach reaches the prompt", func(t *testing.T) {
		client := &fakeClient{content: `{"subject":"A different angle","body":"Hi."}`}
		agent := NewWithClient(client, crm.NewInMemoryStore())

		deal := testDeal()
		deal.Approach = "case study"
		_, err := agent.ComposeEmail(context.Background(), deal)
		require.NoError(t, err)
		assert.Contains(t, client.lastUser, "case study")
	})
}

func TestClassifyReply(t *testing.T) {
	t.Run("parses a clean classification", func(t *testing.T) {
		client := &fakeClient{content: `{"intent":"interested","sentiment":"positive","reasoning":"asked for pricing"}`}
		agent := NewWithClient(client, crm.NewInMemoryStore())

		classification, err := agent.ClassifyReply(context.Background(), testDeal(), "Re: Checking in", "Send pricing please")
		require.NoError(t, err)
		assert.Equal(t, IntentInterested, classification.Intent)
		assert.Contains(t, client.lastUser, "Send pricing please")
	})

	t.Run("unknown intent fails validation", func(t *testing.T) {
		client := &fakeClient{content: `{"intent":"maybe","sentiment":"neutral"}`}
		agent := NewWithClient(client, crm.NewInMemoryStore())

		_, err := agent.ClassifyReply(context.Background(), testDeal(), "Re: hi", "hm")
		require.Error(t, err)
	})
}

func TestScoreLead(t *testing.T) {
	contact := &crm.Contact{ID: 3, Brand: "codeteki", Name: "Sam Ortiz", Company: "Ortiz Media", Website: "https://ortiz.example"}

	t.Run("accepts an in-range score", func(t *testing.T) {
		store := crm.NewInMemoryStore()
		client := &fakeClient{content: `{"score":85,"reasoning":"established company with a website"}`}
		agent := NewWithClient(client, store)

		score, err := agent.ScoreLead(context.Background(), contact)
		require.NoError(t, err)
		assert.Equal(t, 85, score.Score)
		assert.Equal(t, PromptLeadScore, lastAudit(t, store).PromptType)
	})

	t.Run("rejects an out-of-range score", func(t *testing.T) {
		client := &fakeClient{content: `{"score":140}`}
		agent := NewWithClient(client, crm.NewInMemoryStore())

		_, err := agent.ScoreLead(context.Background(), contact)
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
	})
}

func TestFallbacks(t *testing.T) {
	assert.Equal(t, ActionFlagForReview, FallbackAnalysis().Action)
	assert.Equal(t, IntentOther, FallbackClassification().Intent)
	assert.Equal(t, 50, FallbackScore().Score)
}

func TestPromptBuilder(t *testing.T) {
	prompt := NewPromptBuilder("You are a test.").
		AddFact("Brand", "codeteki").
		AddFactf("Emails sent", "%d", 3).
		AddContext("stage_change: Moved to Follow-up 1").
		Build()

	assert.Contains(t, prompt, "You are a test.")
	assert.Contains(t, prompt, "- Brand: codeteki")
	assert.Contains(t, prompt, "- Emails sent: 3")
	assert.Contains(t, prompt, "## Recent Context:")
	assert.Contains(t, prompt, "stage_change: Moved to Follow-up 1")
}
