package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client wraps calls to the CRM backend
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Contact is the client-side view of a CRM contact
type Contact struct {
	ID             uint   `json:"id"`
	Brand          string `json:"brand"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	Company        string `json:"company"`
	Status         string `json:"status"`
	AIScore        int    `json:"ai_score"`
	IsUnsubscribed bool   `json:"is_unsubscribed"`
	EmailBounced   bool   `json:"email_bounced"`
}

// Deal is the client-side view of a CRM deal
type Deal struct {
	ID             uint       `json:"id"`
	ContactID      uint       `json:"contact_id"`
	PipelineID     uint       `json:"pipeline_id"`
	CurrentStageID uint       `json:"current_stage_id"`
	Title          string     `json:"title"`
	Status         string     `json:"status"`
	LostReason     string     `json:"lost_reason"`
	NextActionDate *time.Time `json:"next_action_date"`
	EngagementTier string     `json:"engagement_tier"`
	EmailsSent     int        `json:"emails_sent"`
}

// Stats is the client-side view of the stats endpoint
type Stats struct {
	Contacts      int64            `json:"contacts"`
	DealsByStatus map[string]int64 `json:"deals_by_status"`
	DealsByTier   map[string]int64 `json:"deals_by_tier"`
	EmailsSent    int64            `json:"emails_sent"`
	EmailsOpened  int64            `json:"emails_opened"`
	Replies       int64            `json:"replies"`
}

// CreateContact registers a new contact
func (c *Client) CreateContact(ctx context.Context, req *CreateContactRequest) (*Contact, error) {
	var out ApiResponse[Contact]
	if err := c.doJSON(ctx, http.MethodPost, "/api/crm/contacts", req, &out); err != nil {
		return nil, err
	}
	if err := out.asError(); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// ListDeals returns deals matching the filter parameters
func (c *Client) ListDeals(ctx context.Context, status string, offset, limit int) ([]Deal, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if offset > 0 {
		params.Set("offset", fmt.Sprint(offset))
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}

	path := "/api/crm/deals"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var out ApiResponse[[]Deal]
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if err := out.asError(); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// GetDeal retrieves a single deal by ID
func (c *Client) GetDeal(ctx context.Context, id uint) (*Deal, error) {
	var out ApiResponse[Deal]
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/crm/deals/%d", id), nil, &out); err != nil {
		return nil, err
	}
	if err := out.asError(); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// GetStats retrieves CRM stats, optionally scoped to one brand
func (c *Client) GetStats(ctx context.Context, brand string) (*Stats, error) {
	path := "/api/crm/stats"
	if brand != "" {
		path += "?brand=" + url.QueryEscape(brand)
	}

	var out ApiResponse[Stats]
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if err := out.asError(); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// PostReply delivers an inbound reply to the webhook endpoint
func (c *Client) PostReply(ctx context.Context, req *ReplyWebhookRequest) (*ReplyWebhookResponse, error) {
	var out ApiResponse[ReplyWebhookResponse]
	if err := c.doJSON(ctx, http.MethodPost, "/api/crm/webhooks/reply", req, &out); err != nil {
		return nil, err
	}
	if err := out.asError(); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// PostUnsubscribe delivers an unsubscribe event to the webhook endpoint
func (c *Client) PostUnsubscribe(ctx context.Context, req *UnsubscribeWebhookRequest) (*UnsubscribeWebhookResponse, error) {
	var out ApiResponse[UnsubscribeWebhookResponse]
	if err := c.doJSON(ctx, http.MethodPost, "/api/crm/webhooks/unsubscribe", req, &out); err != nil {
		return nil, err
	}
	if err := out.asError(); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// asError converts a non-success envelope into an error
func (r ApiResponse[T]) asError() error {
	switch r.Status {
	case StatusFail:
		return fmt.Errorf("request failed: %s", r.Message)
	case StatusError:
		return fmt.Errorf("request error (%s): %v", r.Message, r.Error)
	}
	return nil
}

// doJSON is a helper to perform JSON requests to the backend
func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
	// Create request body if input is provided
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(b)
	}

	// Create the request
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	// Perform the request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("backend '%s %s' failed: %d: %s", method, path, resp.StatusCode, string(b))
	}

	// If no output expected, return early
	if out == nil {
		return nil
	}

	// Decode the response body into the output struct
	dec := json.NewDecoder(resp.Body)
	return dec.Decode(out)
}
