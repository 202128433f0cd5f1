package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeteki/outreach/internal/agent"
	"github.com/codeteki/outreach/internal/brands"
	"github.com/codeteki/outreach/internal/events"
	"github.com/codeteki/outreach/internal/mailer"
	"github.com/codeteki/outreach/internal/stores/crm"
)

func inboundMessage(from, subject, body, messageID string) *mailer.InboundMessage {
	return &mailer.InboundMessage{
		From:      from,
		Subject:   subject,
		Body:      body,
		MessageID: messageID,
	}
}

func TestApplyInboundMessage(t *testing.T) {
	t.Run("records the reply against the active deal", func(t *testing.T) {
		f := newFixture(t)
		pipeline := f.createPipeline(t)
		contact := f.createContact(t, "reply@example.com", nil)
		deal := f.createDueDeal(t, contact, pipeline, 1, func(d *crm.Deal) { d.ConsecutiveUnopened = 2 })

		// An outbound already went out for this deal
		sentAt := f.now.Add(-48 * time.Hour)
		outbound := &crm.EmailLog{
			DealID:    deal.ID,
			ContactID: contact.ID,
			Direction: crm.DirectionOutbound,
			Channel:   crm.ChannelEmail,
			Subject:   "Quick question",
			Status:    crm.EmailStatusSent,
			SentAt:    &sentAt,
		}
		require.NoError(t, f.store.CreateEmailLog(outbound))

		msg := inboundMessage("Dana Reyes <reply@example.com>", "Re: Quick question", "Tell me more.", "<in-1@zoho>")
		outcome, err := f.engine.ApplyInboundMessage(context.Background(), "codeteki", msg)
		require.NoError(t, err)
		assert.Equal(t, ReplyApplied, outcome.Status)
		assert.Equal(t, deal.ID, outcome.DealID)

		logs, err := f.store.ListEmailLogs(deal.ID)
		require.NoError(t, err)
		require.Len(t, logs, 2)

		var inbound *crm.EmailLog
		for _, l := range logs {
			if l.Direction == crm.DirectionInbound {
				inbound = l
			}
		}
		require.NotNil(t, inbound)
		assert.Equal(t, crm.EmailStatusReceived, inbound.Status)
		assert.Equal(t, "<in-1@zoho>", inbound.ProviderMessageID)

		replied, err := f.store.LatestOutbound(deal.ID)
		require.NoError(t, err)
		require.NotNil(t, replied.RepliedAt)

		// Any reply counts as engagement
		assert.Equal(t, 0, f.reload(t, deal.ID).ConsecutiveUnopened)
		assert.Contains(t, f.activityKinds(t, deal.ID), crm.ActivityReply)
	})

	t.Run("newest active deal wins when several are open", func(t *testing.T) {
		f := newFixture(t)
		contact := f.createContact(t, "multi@example.com", nil)
		f.createDueDeal(t, contact, f.createPipeline(t), 0, nil)
		newer := f.createDueDeal(t, contact, f.createPipeline(t), 0, nil)

		msg := inboundMessage("multi@example.com", "Re: hi", "still here", "<in-multi@zoho>")
		outcome, err := f.engine.ApplyInboundMessage(context.Background(), "codeteki", msg)
		require.NoError(t, err)
		assert.Equal(t, ReplyApplied, outcome.Status)
		assert.Equal(t, newer.ID, outcome.DealID)
	})

	t.Run("same provider message id applies once", func(t *testing.T) {
		f := newFixture(t)
		pipeline := f.createPipeline(t)
		contact := f.createContact(t, "dup@example.com", nil)
		deal := f.createDueDeal(t, contact, pipeline, 0, nil)

		msg := inboundMessage("dup@example.com", "Re: hi", "yes", "<in-dup@zoho>")
		first, err := f.engine.ApplyInboundMessage(context.Background(), "codeteki", msg)
		require.NoError(t, err)
		assert.Equal(t, ReplyApplied, first.Status)

		second, err := f.engine.ApplyInboundMessage(context.Background(), "codeteki", msg)
		require.NoError(t, err)
		assert.Equal(t, ReplyDuplicate, second.Status)
		assert.Equal(t, deal.ID, second.DealID)
		assert.Equal(t, 1, f.ai.classifyCalls)

		logs, err := f.store.ListEmailLogs(deal.ID)
		require.NoError(t, err)
		inboundCount := 0
		for _, l := range logs {
			if l.Direction == crm.DirectionInbound {
				inboundCount++
			}
		}
		assert.Equal(t, 1, inboundCount)
	})

	t.Run("unknown sender is left alone", func(t *testing.T) {
		f := newFixture(t)
		f.createPipeline(t)

		outcome, err := f.engine.ApplyInboundMessage(context.Background(), "codeteki",
			inboundMessage("stranger@example.com", "hello", "who is this", "<in-2@zoho>"))
		require.NoError(t, err)
		assert.Equal(t, ReplyUnmatched, outcome.Status)
		assert.Equal(t, 0, f.ai.classifyCalls)
	})

	t.Run("closed deal is matched by subject correlation", func(t *testing.T) {
		f := newFixture(t)
		pipeline := f.createPipeline(t)
		contact := f.createContact(t, "late@example.com", nil)
		deal := f.createDueDeal(t, contact, pipeline, 2, func(d *crm.Deal) {
			d.Status = crm.DealStatusLost
			d.LostReason = crm.LostReasonNoResponse
		})

		sentAt := f.now.Add(-10 * 24 * time.Hour)
		require.NoError(t, f.store.CreateEmailLog(&crm.EmailLog{
			DealID:    deal.ID,
			ContactID: contact.ID,
			Direction: crm.DirectionOutbound,
			Channel:   crm.ChannelEmail,
			Subject:   "Your listing on Codeteki",
			Status:    crm.EmailStatusSent,
			SentAt:    &sentAt,
		}))

		outcome, err := f.engine.ApplyInboundMessage(context.Background(), "codeteki",
			inboundMessage("late@example.com", "RE: re: Your listing on Codeteki", "Sorry for the delay!", "<in-3@zoho>"))
		require.NoError(t, err)
		assert.Equal(t, ReplyApplied, outcome.Status)
		assert.Equal(t, deal.ID, outcome.DealID)
	})
}

func TestApplyInboundMessage_Intents(t *testing.T) {
	apply := func(t *testing.T, f *fixture, intent string, email string) *crm.Deal {
		t.Helper()
		f.ai.classification = &agent.ReplyClassification{Intent: intent, Sentiment: "neutral", Reasoning: "test"}
		pipeline := f.createPipeline(t)
		contact := f.createContact(t, email, nil)
		deal := f.createDueDeal(t, contact, pipeline, 0, nil)

		outcome, err := f.engine.ApplyInboundMessage(context.Background(), "codeteki",
			inboundMessage(email, "Re: hi", "body", "<in-"+email+">"))
		require.NoError(t, err)
		require.Equal(t, ReplyApplied, outcome.Status)
		assert.Equal(t, intent, outcome.Intent)
		return f.reload(t, deal.ID)
	}

	t.Run("interested advances and escalates", func(t *testing.T) {
		f := newFixture(t)
		deal := apply(t, f, agent.IntentInterested, "hot@example.com")
		assert.Equal(t, crm.TierHot, deal.EngagementTier)
		assert.True(t, deal.NeedsReview)
		assert.Contains(t, f.activityKinds(t, deal.ID), crm.ActivityStageChange)
	})

	t.Run("not interested closes lost", func(t *testing.T) {
		f := newFixture(t)
		deal := apply(t, f, agent.IntentNotInterested, "no@example.com")
		assert.Equal(t, crm.DealStatusLost, deal.Status)
		assert.Equal(t, crm.LostReasonNotInterested, deal.LostReason)
		assert.Len(t, f.bus.ByTopic(events.TopicDealLost), 1)
	})

	t.Run("unsubscribe suppresses the contact everywhere", func(t *testing.T) {
		f := newFixture(t)
		f.ai.classification = &agent.ReplyClassification{Intent: agent.IntentUnsubscribe, Sentiment: "negative", Reasoning: "asked off the list"}
		pipeline := f.createPipeline(t)
		nurture := &crm.Pipeline{
			Brand: "codeteki", Name: "Nurture", Type: crm.PipelineTypeNurture, Active: true,
			Stages: []crm.PipelineStage{{Name: "Check-in", StageOrder: 1, DaysUntilFollowup: 30}},
		}
		require.NoError(t, f.store.CreatePipeline(nurture))

		contact := f.createContact(t, "optout@example.com", nil)
		matched := f.createDueDeal(t, contact, pipeline, 0, nil)
		other := f.createDueDeal(t, contact, nurture, 0, nil)

		outcome, err := f.engine.ApplyInboundMessage(context.Background(), "codeteki",
			inboundMessage("optout@example.com", "Re: hi", "remove me", "<in-unsub@zoho>"))
		require.NoError(t, err)
		assert.Equal(t, ReplyApplied, outcome.Status)

		assert.Equal(t, crm.DealStatusLost, f.reload(t, matched.ID).Status)
		assert.Equal(t, crm.LostReasonUnsubscribed, f.reload(t, matched.ID).LostReason)
		assert.Equal(t, crm.DealStatusPaused, f.reload(t, other.ID).Status)

		updated, err := f.store.GetContact(contact.ID)
		require.NoError(t, err)
		assert.True(t, updated.IsUnsubscribed)
		assert.NotNil(t, updated.UnsubscribedAt)
		assert.Len(t, f.bus.ByTopic(events.TopicContactUnsubscribed), 1)
	})

	t.Run("out of office defers a week", func(t *testing.T) {
		f := newFixture(t)
		deal := apply(t, f, agent.IntentOutOfOffice, "ooo@example.com")
		assert.Equal(t, crm.DealStatusActive, deal.Status)
		require.NotNil(t, deal.NextActionDate)
		assert.Equal(t, f.now.AddDate(0, 0, 7), *deal.NextActionDate)
	})

	t.Run("question goes to a human", func(t *testing.T) {
		f := newFixture(t)
		deal := apply(t, f, agent.IntentQuestion, "how@example.com")
		assert.True(t, deal.NeedsReview)
		assert.Equal(t, crm.DealStatusActive, deal.Status)
	})

	t.Run("classification failure falls back to review", func(t *testing.T) {
		f := newFixture(t)
		f.ai.classification = nil
		f.ai.classifyErr = errors.New("model timeout")
		pipeline := f.createPipeline(t)
		contact := f.createContact(t, "fuzzy@example.com", nil)
		deal := f.createDueDeal(t, contact, pipeline, 0, nil)

		outcome, err := f.engine.ApplyInboundMessage(context.Background(), "codeteki",
			inboundMessage("fuzzy@example.com", "Re: hi", "???", "<in-fb@zoho>"))
		require.NoError(t, err)
		assert.Equal(t, ReplyApplied, outcome.Status)
		assert.Equal(t, agent.IntentOther, outcome.Intent)
		assert.True(t, f.reload(t, deal.ID).NeedsReview)
	})
}

func TestBrandForRecipient(t *testing.T) {
	registry, err := brands.Parse([]byte(`
brands:
  codeteki:
    name: Codeteki
    from_email: outreach@codeteki.com
    reply_to: replies@codeteki.com
    inbox_account: inbox@codeteki.com
  sideshop:
    name: Side Shop
    from_email: hello@sideshop.io
`))
	require.NoError(t, err)

	f := newFixture(t)
	f.engine = New(Options{
		Store:     f.store,
		AI:        f.ai,
		Sender:    f.sender,
		Publisher: f.bus,
		Brands:    registry,
		Config:    DefaultConfig(),
	})

	assert.Equal(t, "codeteki", f.engine.BrandForRecipient("Replies <REPLIES@codeteki.com>"))
	assert.Equal(t, "codeteki", f.engine.BrandForRecipient("inbox@codeteki.com"))
	assert.Equal(t, "sideshop", f.engine.BrandForRecipient("hello@sideshop.io"))
	assert.Equal(t, "", f.engine.BrandForRecipient("nobody@elsewhere.com"))
}

func TestCheckEmailReplies(t *testing.T) {
	t.Run("no inbox configured is a clean no-op", func(t *testing.T) {
		f := newFixture(t)
		report, err := f.engine.CheckEmailReplies(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "no inbox configured", report.Detail)
		assert.Equal(t, 0, report.Processed)
	})
}
