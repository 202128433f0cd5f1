package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeteki/outreach/internal/agent"
	"github.com/codeteki/outreach/internal/engine"
	"github.com/codeteki/outreach/internal/events"
	"github.com/codeteki/outreach/internal/mailer"
	"github.com/codeteki/outreach/internal/stores/crm"
	"github.com/codeteki/outreach/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubAI answers every decision with a fixed, safe response
type stubAI struct{}

func (stubAI) AnalyzeDeal(_ context.Context, _ *crm.Deal) (*agent.DealAnalysis, error) {
	return &agent.DealAnalysis{Action: agent.ActionWait, WaitDays: 3, Reasoning: "hold"}, nil
}

func (stubAI) ComposeEmail(_ context.Context, _ *crm.Deal) (*agent.EmailDraft, error) {
	return &agent.EmailDraft{Subject: "Hello", Body: "Hi."}, nil
}

func (stubAI) ClassifyReply(_ context.Context, _ *crm.Deal, _, _ string) (*agent.ReplyClassification, error) {
	return &agent.ReplyClassification{Intent: agent.IntentInterested, Sentiment: "positive"}, nil
}

func (stubAI) ScoreLead(_ context.Context, _ *crm.Contact) (*agent.LeadScore, error) {
	return &agent.LeadScore{Score: 80, Reasoning: "solid fit"}, nil
}

type stubSender struct{ calls int }

func (s *stubSender) Send(_ context.Context, _ *mailer.OutboundMessage) (*mailer.SendResult, error) {
	s.calls++
	return &mailer.SendResult{MessageID: "<stub@test>"}, nil
}

// envelope mirrors the response wrapper with the data left raw
type envelope struct {
	Status  string          `json:"status"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   any             `json:"error"`
}

type apiFixture struct {
	router *gin.Engine
	store  *crm.InMemoryStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	store := crm.NewInMemoryStore()
	eng := engine.New(engine.Options{
		Store:     store,
		AI:        stubAI{},
		Sender:    &stubSender{},
		Publisher: events.NewMemoryPublisher(),
		Config:    engine.DefaultConfig(),
	})
	cfg := utils.NewConfig(map[string]string{"API_KEY": "test-key"})
	return &apiFixture{router: NewRouter(cfg, store, eng), store: store}
}

// request performs one HTTP round trip against the router
func (f *apiFixture) request(t *testing.T, method, path string, body any, withKey bool) (*httptest.ResponseRecorder, *envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if withKey {
		req.Header.Set("X-API-KEY", "test-key")
	}

	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)

	resp := &envelope{}
	if recorder.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), resp))
	}
	return recorder, resp
}

func (f *apiFixture) seedPipeline(t *testing.T) *crm.Pipeline {
	t.Helper()
	pipeline := &crm.Pipeline{
		Brand: "codeteki", Name: "Sales Outreach", Type: crm.PipelineTypeSales, Active: true,
		Stages: []crm.PipelineStage{
			{Name: "Initial Outreach", StageOrder: 1, DaysUntilFollowup: 3},
			{Name: "Follow-up 1", StageOrder: 2, DaysUntilFollowup: 3},
		},
	}
	require.NoError(t, f.store.CreatePipeline(pipeline))
	return pipeline
}

func (f *apiFixture) seedContact(t *testing.T, email string) *crm.Contact {
	t.Helper()
	contact := &crm.Contact{Brand: "codeteki", Email: email, Name: "Dana Reyes"}
	require.NoError(t, f.store.CreateContact(contact))
	return contact
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	recorder, resp := f.request(t, http.MethodGet, "/api/health", nil, false)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "success", resp.Status)
}

func TestAPIKeyGate(t *testing.T) {
	f := newAPIFixture(t)

	recorder, _ := f.request(t, http.MethodGet, "/api/crm/contacts", nil, false)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder, _ = f.request(t, http.MethodGet, "/api/crm/contacts", nil, true)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestContactEndpoints(t *testing.T) {
	t.Run("create scores the lead", func(t *testing.T) {
		f := newAPIFixture(t)
		recorder, resp := f.request(t, http.MethodPost, "/api/crm/contacts", map[string]any{
			"brand": "codeteki",
			"email": "New.Lead@Example.com",
			"name":  "New Lead",
		}, true)
		require.Equal(t, http.StatusOK, recorder.Code)

		var contact crm.Contact
		require.NoError(t, json.Unmarshal(resp.Data, &contact))
		assert.Equal(t, "new.lead@example.com", contact.Email)
		assert.Equal(t, 80, contact.AIScore)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		f := newAPIFixture(t)
		f.seedContact(t, "dup@example.com")

		recorder, _ := f.request(t, http.MethodPost, "/api/crm/contacts", map[string]any{
			"brand": "codeteki",
			"email": "dup@example.com",
		}, true)
		assert.Equal(t, http.StatusConflict, recorder.Code)
	})

	t.Run("patch updates only the sent fields", func(t *testing.T) {
		f := newAPIFixture(t)
		contact := f.seedContact(t, "patch@example.com")

		recorder, resp := f.request(t, http.MethodPatch, "/api/crm/contacts/1", map[string]any{
			"company": "Reyes Consulting",
		}, true)
		require.Equal(t, http.StatusOK, recorder.Code)

		var updated crm.Contact
		require.NoError(t, json.Unmarshal(resp.Data, &updated))
		assert.Equal(t, "Reyes Consulting", updated.Company)
		assert.Equal(t, contact.Name, updated.Name)
	})

	t.Run("missing contact is a 404", func(t *testing.T) {
		f := newAPIFixture(t)
		recorder, _ := f.request(t, http.MethodGet, "/api/crm/contacts/99", nil, true)
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})
}

func TestPipelineEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	recorder, resp := f.request(t, http.MethodPost, "/api/crm/pipelines", map[string]any{
		"brand": "codeteki",
		"name":  "Backlink Outreach",
		"type":  "backlink",
		"stages": []map[string]any{
			{"name": "Initial Outreach"},
			{"name": "Follow-up 1", "days_until_followup": 5},
		},
	}, true)
	require.Equal(t, http.StatusOK, recorder.Code)

	var pipeline crm.Pipeline
	require.NoError(t, json.Unmarshal(resp.Data, &pipeline))
	require.Len(t, pipeline.Stages, 2)
	assert.Equal(t, 1, pipeline.Stages[0].StageOrder)
	assert.Equal(t, 3, pipeline.Stages[0].DaysUntilFollowup)
	assert.Equal(t, 5, pipeline.Stages[1].DaysUntilFollowup)

	recorder, _ = f.request(t, http.MethodGet, "/api/crm/pipelines/1", nil, true)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestDealEndpoints(t *testing.T) {
	t.Run("create starts at the first stage", func(t *testing.T) {
		f := newAPIFixture(t)
		pipeline := f.seedPipeline(t)
		contact := f.seedContact(t, "deal@example.com")

		recorder, resp := f.request(t, http.MethodPost, "/api/crm/deals", map[string]any{
			"contact_id":  contact.ID,
			"pipeline_id": pipeline.ID,
		}, true)
		require.Equal(t, http.StatusOK, recorder.Code)

		var deal crm.Deal
		require.NoError(t, json.Unmarshal(resp.Data, &deal))
		assert.Equal(t, pipeline.Stages[0].ID, deal.CurrentStageID)
		assert.Equal(t, crm.DealStatusActive, deal.Status)
		assert.NotNil(t, deal.NextActionDate)
	})

	t.Run("second active deal in the same pipeline conflicts", func(t *testing.T) {
		f := newAPIFixture(t)
		pipeline := f.seedPipeline(t)
		contact := f.seedContact(t, "busy@example.com")

		payload := map[string]any{"contact_id": contact.ID, "pipeline_id": pipeline.ID}
		recorder, _ := f.request(t, http.MethodPost, "/api/crm/deals", payload, true)
		require.Equal(t, http.StatusOK, recorder.Code)

		recorder, _ = f.request(t, http.MethodPost, "/api/crm/deals", payload, true)
		assert.Equal(t, http.StatusConflict, recorder.Code)
	})

	t.Run("suppressed contact cannot enter a pipeline", func(t *testing.T) {
		f := newAPIFixture(t)
		pipeline := f.seedPipeline(t)
		contact := &crm.Contact{Brand: "codeteki", Email: "unsub@example.com", IsUnsubscribed: true}
		require.NoError(t, f.store.CreateContact(contact))

		recorder, _ := f.request(t, http.MethodPost, "/api/crm/deals", map[string]any{
			"contact_id":  contact.ID,
			"pipeline_id": pipeline.ID,
		}, true)
		assert.Equal(t, http.StatusConflict, recorder.Code)
	})

	t.Run("patch closes a deal manually", func(t *testing.T) {
		f := newAPIFixture(t)
		pipeline := f.seedPipeline(t)
		contact := f.seedContact(t, "close@example.com")

		recorder, _ := f.request(t, http.MethodPost, "/api/crm/deals", map[string]any{
			"contact_id":  contact.ID,
			"pipeline_id": pipeline.ID,
		}, true)
		require.Equal(t, http.StatusOK, recorder.Code)

		recorder, resp := f.request(t, http.MethodPatch, "/api/crm/deals/1", map[string]any{
			"status": "won",
		}, true)
		require.Equal(t, http.StatusOK, recorder.Code)

		var deal crm.Deal
		require.NoError(t, json.Unmarshal(resp.Data, &deal))
		assert.Equal(t, crm.DealStatusWon, deal.Status)
	})
}

func TestReplyWebhook(t *testing.T) {
	f := newAPIFixture(t)
	pipeline := f.seedPipeline(t)
	contact := f.seedContact(t, "replier@example.com")
	deal := &crm.Deal{
		ContactID:      contact.ID,
		PipelineID:     pipeline.ID,
		CurrentStageID: pipeline.Stages[0].ID,
		Status:         crm.DealStatusActive,
	}
	require.NoError(t, f.store.CreateDeal(deal))

	// No API key: webhook routes are provider-facing
	recorder, resp := f.request(t, http.MethodPost, "/api/crm/webhooks/reply", map[string]any{
		"brand":      "codeteki",
		"from_email": "replier@example.com",
		"subject":    "Re: Hello",
		"body":       "Sounds interesting, tell me more",
		"message_id": "<webhook-1@provider>",
	}, false)
	require.Equal(t, http.StatusOK, recorder.Code)

	var outcome struct {
		Status string `json:"status"`
		DealID uint   `json:"deal_id"`
		Intent string `json:"intent"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &outcome))
	assert.Equal(t, "applied", outcome.Status)
	assert.Equal(t, deal.ID, outcome.DealID)
	assert.Equal(t, agent.IntentInterested, outcome.Intent)
}

func TestUnsubscribeWebhook(t *testing.T) {
	f := newAPIFixture(t)
	pipeline := f.seedPipeline(t)
	contact := f.seedContact(t, "optout@example.com")
	require.NoError(t, f.store.CreateDeal(&crm.Deal{
		ContactID:      contact.ID,
		PipelineID:     pipeline.ID,
		CurrentStageID: pipeline.Stages[0].ID,
		Status:         crm.DealStatusActive,
	}))

	recorder, resp := f.request(t, http.MethodPost, "/api/crm/webhooks/unsubscribe", map[string]any{
		"brand": "codeteki",
		"email": "optout@example.com",
	}, false)
	require.Equal(t, http.StatusOK, recorder.Code)

	var outcome struct {
		Status      string `json:"status"`
		DealsPaused int    `json:"deals_paused"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &outcome))
	assert.Equal(t, "unsubscribed", outcome.Status)
	assert.Equal(t, 1, outcome.DealsPaused)

	updated, err := f.store.GetContact(contact.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsUnsubscribed)

	t.Run("unknown contact is acknowledged", func(t *testing.T) {
		recorder, resp := f.request(t, http.MethodPost, "/api/crm/webhooks/unsubscribe", map[string]any{
			"brand": "codeteki",
			"email": "nobody@example.com",
		}, false)
		require.Equal(t, http.StatusOK, recorder.Code)

		var outcome struct {
			Status string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &outcome))
		assert.Equal(t, "unknown_contact", outcome.Status)
	})
}

func TestTrackingPixel(t *testing.T) {
	f := newAPIFixture(t)
	pipeline := f.seedPipeline(t)
	contact := f.seedContact(t, "opened@example.com")
	deal := &crm.Deal{
		ContactID:      contact.ID,
		PipelineID:     pipeline.ID,
		CurrentStageID: pipeline.Stages[0].ID,
		Status:         crm.DealStatusActive,
		EmailsSent:     1,
	}
	require.NoError(t, f.store.CreateDeal(deal))
	require.NoError(t, f.store.CreateEmailLog(&crm.EmailLog{
		DealID:     deal.ID,
		ContactID:  contact.ID,
		Direction:  crm.DirectionOutbound,
		Channel:    crm.ChannelEmail,
		Subject:    "Hello",
		Status:     crm.EmailStatusSent,
		TrackingID: "track-123",
	}))

	recorder, _ := f.request(t, http.MethodGet, "/api/crm/track/track-123/open.gif", nil, false)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "image/gif", recorder.Header().Get("Content-Type"))
	assert.NotEmpty(t, recorder.Body.Bytes())

	emailLog, err := f.store.GetEmailLogByTrackingID("track-123")
	require.NoError(t, err)
	require.NotNil(t, emailLog.OpenedAt)
	firstOpen := *emailLog.OpenedAt

	updated, err := f.store.GetDeal(deal.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.EmailsOpened)
	assert.Equal(t, 0, updated.ConsecutiveUnopened)
	assert.Equal(t, crm.TierEngaged, updated.EngagementTier)

	// A second hit leaves the recorded open untouched
	recorder, _ = f.request(t, http.MethodGet, "/api/crm/track/track-123/open.gif", nil, false)
	require.Equal(t, http.StatusOK, recorder.Code)

	emailLog, err = f.store.GetEmailLogByTrackingID("track-123")
	require.NoError(t, err)
	assert.Equal(t, firstOpen, *emailLog.OpenedAt)

	updated, err = f.store.GetDeal(deal.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.EmailsOpened)

	t.Run("unknown tracking id still serves the image", func(t *testing.T) {
		recorder, _ := f.request(t, http.MethodGet, "/api/crm/track/missing/open.gif", nil, false)
		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "image/gif", recorder.Header().Get("Content-Type"))
	})
}
