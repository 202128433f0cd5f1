package sdk

import (
	"encoding/json"
	"time"
)

// StatusType labels the outcome of an API call
type StatusType string

const (
	StatusSuccess StatusType = "success"
	StatusFail    StatusType = "fail"
	StatusError   StatusType = "error"
)

// ApiResponse represents a standard API response structure
type ApiResponse[T any] struct {
	Status  StatusType `json:"status"`          // Status message
	Code    int        `json:"code"`            // Status code
	Message string     `json:"message"`         // Human-readable message
	Data    T          `json:"data,omitempty"`  // Optional data field for successful responses
	Error   any        `json:"error,omitempty"` // Optional errors field for error responses
}

// AsGinResponse converts the ApiResponse to a format suitable for Gin framework
func (r ApiResponse[T]) AsGinResponse() (int, any) {
	return r.Code, r
}

// AsJSON converts the ApiResponse to a JSON string
func (r ApiResponse[T]) AsJSON() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func NewSuccess(message string) ApiResponse[any] {
	return ApiResponse[any]{
		Status:  StatusSuccess,
		Code:    200,
		Message: message,
	}
}

func NewSuccessResponse[T any](message string, data T) ApiResponse[T] {
	return ApiResponse[T]{
		Status:  StatusSuccess,
		Code:    200,
		Message: message,
		Data:    data,
	}
}

func NewErrorResponse(code int, message string, err any) ApiResponse[any] {
	resp := ApiResponse[any]{
		Status:  StatusError,
		Code:    code,
		Message: message,
	}
	if e, ok := err.(error); ok {
		resp.Error = e.Error()
	} else {
		resp.Error = err
	}
	return resp
}

/** Requests */

// ReplyWebhookRequest is the payload delivered by the inbound-reply webhook
type ReplyWebhookRequest struct {
	FromEmail  string    `json:"from_email" binding:"required"`
	ToEmail    string    `json:"to_email"`
	Brand      string    `json:"brand"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	MessageID  string    `json:"message_id"`
	ReceivedAt time.Time `json:"received_at"`
}

// UnsubscribeWebhookRequest is the payload delivered by the unsubscribe webhook
type UnsubscribeWebhookRequest struct {
	Email  string `json:"email" binding:"required"`
	Brand  string `json:"brand"`
	Reason string `json:"reason"`
	Source string `json:"source"`
}

// CreateContactRequest is the payload for creating a contact via the API
type CreateContactRequest struct {
	Brand   string `json:"brand" binding:"required"`
	Email   string `json:"email" binding:"required"`
	Name    string `json:"name"`
	Company string `json:"company"`
	Phone   string `json:"phone"`
	Website string `json:"website"`
	Source  string `json:"source"`
}

// PatchContactRequest updates contact fields via the API; nil fields are
// left unchanged
type PatchContactRequest struct {
	Name    *string `json:"name"`
	Company *string `json:"company"`
	Phone   *string `json:"phone"`
	Website *string `json:"website"`
	Status  *string `json:"status"`
}

// CreateDealRequest starts a contact in a pipeline via the API
type CreateDealRequest struct {
	ContactID  uint   `json:"contact_id" binding:"required"`
	PipelineID uint   `json:"pipeline_id" binding:"required"`
	Title      string `json:"title"`
}

// CreatePipelineRequest defines a pipeline and its ordered stages via the API
type CreatePipelineRequest struct {
	Brand  string               `json:"brand" binding:"required"`
	Name   string               `json:"name" binding:"required"`
	Type   string               `json:"type" binding:"required"`
	Stages []CreateStageRequest `json:"stages" binding:"required"`
}

// CreateStageRequest is one stage of a pipeline being created
type CreateStageRequest struct {
	Name              string `json:"name" binding:"required"`
	StageOrder        int    `json:"stage_order"`
	DaysUntilFollowup int    `json:"days_until_followup"`
	AutoAction        string `json:"auto_action"`
	IsTerminal        bool   `json:"is_terminal"`
	IsWon             bool   `json:"is_won"`
}

// PatchDealRequest moves a deal to a new stage or status via the API
type PatchDealRequest struct {
	StageID *uint   `json:"stage_id"`
	Status  *string `json:"status"`
	Reason  string  `json:"reason"`
}

/** Responses */

// UnsubscribeWebhookResponse reports the effect of an unsubscribe webhook
type UnsubscribeWebhookResponse struct {
	Status      string `json:"status"`
	DealsPaused int    `json:"deals_paused"`
}

// ReplyWebhookResponse reports the effect of an inbound-reply webhook
type ReplyWebhookResponse struct {
	Status string `json:"status"`
	DealID uint   `json:"deal_id,omitempty"`
	Intent string `json:"intent,omitempty"`
}
