package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// InboundMessage is one email received in a monitored mailbox
type InboundMessage struct {
	From       string    `json:"from_email"`
	To         string    `json:"to_email"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	MessageID  string    `json:"message_id"`
	ReceivedAt time.Time `json:"received_at"`
}

// Inbox abstracts the reply-polling mail provider
type Inbox interface {
	FetchUnread(ctx context.Context, account string, limit int) ([]*InboundMessage, error)
}

// ZohoInbox polls a Zoho Mail account over its REST API
type ZohoInbox struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewZohoInbox creates a Zoho Mail inbox client
func NewZohoInbox(baseURL, authToken string) *ZohoInbox {
	return &ZohoInbox{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// zohoMessage is the provider's wire shape for one message
type zohoMessage struct {
	MessageID   string `json:"messageId"`
	FromAddress string `json:"fromAddress"`
	ToAddress   string `json:"toAddress"`
	Subject     string `json:"subject"`
	Summary     string `json:"summary"`
	ReceivedMS  int64  `json:"receivedTime,string"`
}

type zohoListResponse struct {
	Data []zohoMessage `json:"data"`
}

// FetchUnread returns unread messages for an account, newest last
func (z *ZohoInbox) FetchUnread(ctx context.Context, account string, limit int) ([]*InboundMessage, error) {
	params := url.Values{}
	params.Set("status", "unread")
	params.Set("limit", fmt.Sprint(limit))

	endpoint := fmt.Sprintf("%s/api/accounts/%s/messages/view?%s", z.baseURL, url.PathEscape(account), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+z.authToken)

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inbox fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("inbox fetch returned %d: %s", resp.StatusCode, string(b))
	}

	var list zohoListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("inbox response does not parse: %w", err)
	}

	messages := make([]*InboundMessage, 0, len(list.Data))
	for _, m := range list.Data {
		messages = append(messages, &InboundMessage{
			From:       m.FromAddress,
			To:         m.ToAddress,
			Subject:    m.Subject,
			Body:       m.Summary,
			MessageID:  m.MessageID,
			ReceivedAt: time.UnixMilli(m.ReceivedMS).UTC(),
		})
	}
	return messages, nil
}
