package webhooks

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codeteki/outreach/internal/engine"
	"github.com/codeteki/outreach/internal/mailer"
	"github.com/codeteki/outreach/pkg/sdk"
)

// PostReply handles inbound-reply webhook deliveries. Replies that match no
// contact or deal are acknowledged with an unmatched status so the provider
// does not retry them.
func PostReply(c *gin.Context) {
	var req sdk.ReplyWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Could not parse request body", err).AsGinResponse())
		return
	}

	brand := req.Brand
	if brand == "" {
		brand = service.engine.BrandForRecipient(req.ToEmail)
	}
	if brand == "" {
		c.JSON(sdk.NewSuccessResponse("Reply processed", sdk.ReplyWebhookResponse{Status: engine.ReplyUnmatched}).AsGinResponse())
		return
	}

	outcome, err := service.engine.ApplyInboundMessage(c.Request.Context(), brand, &mailer.InboundMessage{
		From:       req.FromEmail,
		To:         req.ToEmail,
		Subject:    req.Subject,
		Body:       req.Body,
		MessageID:  req.MessageID,
		ReceivedAt: req.ReceivedAt,
	})
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to process reply", err).AsGinResponse())
		return
	}

	c.JSON(sdk.NewSuccessResponse("Reply processed", sdk.ReplyWebhookResponse{
		Status: outcome.Status,
		DealID: outcome.DealID,
		Intent: outcome.Intent,
	}).AsGinResponse())
}

// PostUnsubscribe handles unsubscribe webhook deliveries. Unknown contacts
// are a recognized no-op, not an error.
func PostUnsubscribe(c *gin.Context) {
	var req sdk.UnsubscribeWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Could not parse request body", err).AsGinResponse())
		return
	}

	contact, err := service.store.FindContactByEmail(req.Brand, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to look up contact", err).AsGinResponse())
		return
	}
	if contact == nil {
		c.JSON(sdk.NewSuccessResponse("Unsubscribe processed", sdk.UnsubscribeWebhookResponse{Status: "unknown_contact"}).AsGinResponse())
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "webhook request"
	}
	source := req.Source
	if source == "" {
		source = "webhook"
	}

	paused, err := service.engine.UnsubscribeContact(c.Request.Context(), contact, reason, source)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to unsubscribe contact", err).AsGinResponse())
		return
	}

	c.JSON(sdk.NewSuccessResponse("Unsubscribe processed", sdk.UnsubscribeWebhookResponse{
		Status:      "unsubscribed",
		DealsPaused: paused,
	}).AsGinResponse())
}
