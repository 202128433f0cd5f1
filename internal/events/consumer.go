package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/codeteki/outreach/internal/stores/crm"
)

// Handler processes one consumed event
type Handler interface {
	Handle(ctx context.Context, event *Event) error
}

// Consumer drains the deal-won queue and hands events to a handler
type Consumer struct {
	ch      *amqp.Channel
	handler Handler
}

// NewConsumer creates a consumer on an established channel
func NewConsumer(r *RabbitMQ, handler Handler) *Consumer {
	return &Consumer{ch: r.Ch, handler: handler}
}

// Start consumes the deal-won queue until the context is cancelled.
// Malformed messages are rejected without requeue so they dead-letter
// instead of wedging the queue.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.ch.Consume(
		QueueDealWon,
		"",    // consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}
				c.process(ctx, delivery)
			}
		}
	}()

	log.Printf("[EVENTS]: Consumer running on queue '%s'", QueueDealWon)
	return nil
}

func (c *Consumer) process(ctx context.Context, delivery amqp.Delivery) {
	var event Event
	if err := json.Unmarshal(delivery.Body, &event); err != nil {
		log.Printf("[EVENTS]: Dropping malformed event: %v", err)
		delivery.Nack(false, false)
		return
	}

	if err := c.handler.Handle(ctx, &event); err != nil {
		log.Printf("[EVENTS]: Handler failed for '%s' event: %v", event.Topic, err)
		delivery.Nack(false, false)
		return
	}

	delivery.Ack(false)
}

// NurtureHandler re-enters won contacts into the brand's nurture pipeline.
// This is the explicit replacement for the legacy won-deal signal handler.
type NurtureHandler struct {
	store crm.StoreInterface
}

// NewNurtureHandler creates the deal-won handler
func NewNurtureHandler(store crm.StoreInterface) *NurtureHandler {
	return &NurtureHandler{store: store}
}

// Handle creates a nurture deal for the won contact. No-ops when the brand
// has no nurture pipeline or the contact is already in it.
func (h *NurtureHandler) Handle(ctx context.Context, event *Event) error {
	if event.Topic != TopicDealWon {
		return nil
	}

	contact, err := h.store.GetContact(event.ContactID)
	if err != nil {
		return fmt.Errorf("cannot load contact for won deal: %w", err)
	}
	if contact.Suppressed() {
		return nil
	}

	pipeline, err := h.store.FindPipelineByType(contact.Brand, crm.PipelineTypeNurture)
	if err != nil {
		return err
	}
	if pipeline == nil || len(pipeline.Stages) == 0 {
		log.Printf("[EVENTS]: Brand '%s' has no nurture pipeline, skipping re-entry", contact.Brand)
		return nil
	}
	if event.PipelineID == pipeline.ID {
		// The won deal was itself a nurture deal
		return nil
	}

	existing, err := h.store.FindActiveDeal(contact.ID, pipeline.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	firstStage := pipeline.Stages[0]
	nextAction := time.Now().UTC().AddDate(0, 0, firstStage.DaysUntilFollowup)
	deal := &crm.Deal{
		ContactID:      contact.ID,
		PipelineID:     pipeline.ID,
		CurrentStageID: firstStage.ID,
		Title:          fmt.Sprintf("%s nurture", contact.Name),
		Status:         crm.DealStatusActive,
		EngagementTier: crm.TierEngaged,
		NextActionDate: &nextAction,
	}
	if err := h.store.CreateDeal(deal); err != nil {
		return fmt.Errorf("cannot create nurture deal: %w", err)
	}

	return h.store.AddDealActivity(&crm.DealActivity{
		DealID:      deal.ID,
		Kind:        crm.ActivityNote,
		Description: fmt.Sprintf("Created from won deal %d", event.DealID),
	})
}
