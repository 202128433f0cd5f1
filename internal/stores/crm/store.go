package crm

import (
	"errors"
	"time"
)

// ErrNotFound is returned by Get* lookups when no matching record exists.
// Find* lookups return (nil, nil) instead so callers can branch on absence
// without unwrapping.
var ErrNotFound = errors.New("record not found")

// ContactFilter narrows contact listings
type ContactFilter struct {
	Brand  string
	Status string
	Offset int
	Limit  int
}

// DealFilter narrows deal listings
type DealFilter struct {
	Brand      string
	Status     string
	PipelineID uint
	ContactID  uint
	Offset     int
	Limit      int
}

// Stats summarizes the state of a brand's CRM (all brands when empty)
type Stats struct {
	Contacts      int64            `json:"contacts"`
	DealsByStatus map[string]int64 `json:"deals_by_status"`
	DealsByTier   map[string]int64 `json:"deals_by_tier"`
	EmailsSent    int64            `json:"emails_sent"`
	EmailsOpened  int64            `json:"emails_opened"`
	Replies       int64            `json:"replies"`
}

// StoreInterface defines the persistence operations the CRM engine and API
// depend on
type StoreInterface interface {
	// Contacts
	CreateContact(contact *Contact) error
	GetContact(id uint) (*Contact, error)
	FindContactByEmail(brand, email string) (*Contact, error)
	UpdateContact(contact *Contact) error
	ListContacts(filter ContactFilter) ([]*Contact, error)

	// Pipelines and stages
	CreatePipeline(pipeline *Pipeline) error
	GetPipeline(id uint) (*Pipeline, error)
	ListPipelines(brand string) ([]*Pipeline, error)
	FindPipelineByType(brand, pipelineType string) (*Pipeline, error)
	GetStage(id uint) (*PipelineStage, error)
	NextStage(stage *PipelineStage) (*PipelineStage, error)

	// Deals
	CreateDeal(deal *Deal) error
	GetDeal(id uint) (*Deal, error)
	UpdateDeal(deal *Deal) error
	ListDeals(filter DealFilter) ([]*Deal, error)
	DueDeals(now time.Time, limit int) ([]*Deal, error)
	ActiveDealsByContact(contactID uint) ([]*Deal, error)
	FindActiveDeal(contactID, pipelineID uint) (*Deal, error)

	// Email logs
	CreateEmailLog(log *EmailLog) error
	UpdateEmailLog(log *EmailLog) error
	GetEmailLogByTrackingID(trackingID string) (*EmailLog, error)
	FindInboundByProviderID(messageID string) (*EmailLog, error)
	QueuedEmails(limit int) ([]*EmailLog, error)
	LatestOutbound(dealID uint) (*EmailLog, error)
	ListEmailLogs(dealID uint) ([]*EmailLog, error)

	// Audit trails
	AddDealActivity(activity *DealActivity) error
	ListDealActivities(dealID uint) ([]*DealActivity, error)
	AddAIActivity(activity *AIActivity) error
	ListAIActivities(limit int) ([]*AIActivity, error)

	// Templates
	CreateTemplate(template *EmailTemplate) error
	FindTemplate(brand, pipelineType, stageName string) (*EmailTemplate, error)

	// Stats
	Stats(brand string) (*Stats, error)
}
