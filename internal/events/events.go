package events

import (
	"context"
	"sync"
	"time"
)

// Topics published on the CRM event exchange. These replace the hidden
// model-signal side effects of the legacy system: every cross-module
// consequence of a state change is visible at the publish site.
const (
	TopicContactUnsubscribed = "contact.unsubscribed"
	TopicEmailBounced        = "email.bounced"
	TopicDealWon             = "deal.won"
	TopicDealLost            = "deal.lost"
)

// Event is one CRM state change worth telling other components about
type Event struct {
	Topic      string    `json:"topic"`
	Brand      string    `json:"brand"`
	ContactID  uint      `json:"contact_id,omitempty"`
	DealID     uint      `json:"deal_id,omitempty"`
	PipelineID uint      `json:"pipeline_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher abstracts the event transport so tests can capture events
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// MemoryPublisher records events in memory for tests
type MemoryPublisher struct {
	mutex  sync.Mutex
	events []*Event
}

// NewMemoryPublisher creates an in-memory event recorder
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records the event
func (p *MemoryPublisher) Publish(_ context.Context, event *Event) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	clone := *event
	p.events = append(p.events, &clone)
	return nil
}

// Events returns all recorded events
func (p *MemoryPublisher) Events() []*Event {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	events := make([]*Event, len(p.events))
	copy(events, p.events)
	return events
}

// ByTopic returns recorded events matching one topic
func (p *MemoryPublisher) ByTopic(topic string) []*Event {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var matched []*Event
	for _, event := range p.events {
		if event.Topic == topic {
			matched = append(matched, event)
		}
	}
	return matched
}
