package crm

import (
	"time"

	"gorm.io/gorm"
)

// Deal status values
const (
	DealStatusActive = "active"
	DealStatusWon    = "won"
	DealStatusLost   = "lost"
	DealStatusPaused = "paused"
)

// Lost reasons recorded when a deal is closed
const (
	LostReasonInvalidEmail  = "invalid_email"
	LostReasonUnsubscribed  = "unsubscribed"
	LostReasonNoResponse    = "no_response"
	LostReasonNotInterested = "not_interested"
)

// Engagement tiers derived from a contact's email responsiveness
const (
	TierCold    = "cold"
	TierEngaged = "engaged"
	TierHot     = "hot"
	TierGhost   = "ghost"
)

// Email log directions and statuses
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"

	EmailStatusQueued   = "queued"
	EmailStatusSent     = "sent"
	EmailStatusFailed   = "failed"
	EmailStatusReceived = "received"
)

// Message channels
const (
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
)

// Activity kinds recorded on the deal audit trail
const (
	ActivityStageChange = "stage_change"
	ActivityEmailSent   = "email_sent"
	ActivityAIDecision  = "ai_decision"
	ActivityReply       = "reply"
	ActivitySafetyStop  = "safety_stop"
	ActivityNote        = "note"
)

// Pipeline workflow types
const (
	PipelineTypeSales    = "sales"
	PipelineTypeBacklink = "backlink"
	PipelineTypeListing  = "listing"
	PipelineTypeNurture  = "nurture"
)

// Contact represents a prospect or lead, unique per (brand, email).
// Contacts are never hard-deleted; suppression flags make them unreachable instead.
type Contact struct {
	ID        uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"column:updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"column:deleted_at;index"`

	Brand   string `json:"brand" gorm:"column:brand;not null;size:100;uniqueIndex:idx_contacts_brand_email"`
	Email   string `json:"email" gorm:"column:email;not null;size:255;uniqueIndex:idx_contacts_brand_email"`
	Name    string `json:"name" gorm:"column:name;size:255"`
	Company string `json:"company" gorm:"column:company;size:255"`
	Phone   string `json:"phone" gorm:"column:phone;size:50"`
	Website string `json:"website" gorm:"column:website;size:500"`
	Source  string `json:"source" gorm:"column:source;size:100"`

	Status  string `json:"status" gorm:"column:status;size:50;default:new"`
	AIScore int    `json:"ai_score" gorm:"column:ai_score;default:0"`

	IsUnsubscribed    bool       `json:"is_unsubscribed" gorm:"column:is_unsubscribed;default:false"`
	UnsubscribeReason string     `json:"unsubscribe_reason" gorm:"column:unsubscribe_reason;size:255"`
	UnsubscribedAt    *time.Time `json:"unsubscribed_at" gorm:"column:unsubscribed_at"`
	EmailBounced      bool       `json:"email_bounced" gorm:"column:email_bounced;default:false"`
	SpamReported      bool       `json:"spam_reported" gorm:"column:spam_reported;default:false"`
}

// TableName sets the table name for GORM
func (Contact) TableName() string {
	return "crm_contacts"
}

// Suppressed reports whether any hard safety flag blocks outreach to this contact
func (c *Contact) Suppressed() bool {
	return c.IsUnsubscribed || c.EmailBounced || c.SpamReported
}

// Pipeline is an ordered outreach workflow for one brand
type Pipeline struct {
	ID        uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"column:updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"column:deleted_at;index"`

	Brand  string `json:"brand" gorm:"column:brand;not null;size:100;index"`
	Name   string `json:"name" gorm:"column:name;not null;size:255"`
	Type   string `json:"type" gorm:"column:type;not null;size:50"`
	Active bool   `json:"active" gorm:"column:active;default:true"`

	Stages []PipelineStage `json:"stages,omitempty" gorm:"foreignKey:PipelineID"`
}

// TableName sets the table name for GORM
func (Pipeline) TableName() string {
	return "crm_pipelines"
}

// PipelineStage is one named step of a pipeline. Stage order is unique within
// a pipeline.
type PipelineStage struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`

	PipelineID        uint   `json:"pipeline_id" gorm:"column:pipeline_id;not null;uniqueIndex:idx_stage_pipeline_order"`
	Name              string `json:"name" gorm:"column:name;not null;size:255"`
	StageOrder        int    `json:"stage_order" gorm:"column:stage_order;not null;uniqueIndex:idx_stage_pipeline_order"`
	DaysUntilFollowup int    `json:"days_until_followup" gorm:"column:days_until_followup;default:3"`
	AutoAction        string `json:"auto_action" gorm:"column:auto_action;size:100"`
	IsTerminal        bool   `json:"is_terminal" gorm:"column:is_terminal;default:false"`
	IsWon             bool   `json:"is_won" gorm:"column:is_won;default:false"`
}

// TableName sets the table name for GORM
func (PipelineStage) TableName() string {
	return "crm_pipeline_stages"
}

// Deal tracks one contact's progress through one pipeline.
//
// At most one active deal per (contact, pipeline) is enforced by application
// logic, not by a database constraint.
type Deal struct {
	ID        uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"column:updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"column:deleted_at;index"`

	ContactID      uint `json:"contact_id" gorm:"column:contact_id;not null;index"`
	PipelineID     uint `json:"pipeline_id" gorm:"column:pipeline_id;not null;index"`
	CurrentStageID uint `json:"current_stage_id" gorm:"column:current_stage_id;not null"`

	Contact      *Contact       `json:"contact,omitempty" gorm:"foreignKey:ContactID"`
	Pipeline     *Pipeline      `json:"pipeline,omitempty" gorm:"foreignKey:PipelineID"`
	CurrentStage *PipelineStage `json:"current_stage,omitempty" gorm:"foreignKey:CurrentStageID"`

	Title          string     `json:"title" gorm:"column:title;size:255"`
	Status         string     `json:"status" gorm:"column:status;size:50;default:active;index"`
	LostReason     string     `json:"lost_reason" gorm:"column:lost_reason;size:100"`
	NextActionDate *time.Time `json:"next_action_date" gorm:"column:next_action_date;index"`
	EngagementTier string     `json:"engagement_tier" gorm:"column:engagement_tier;size:50;default:cold"`
	Approach       string     `json:"approach" gorm:"column:approach;size:100"`
	NeedsReview    bool       `json:"needs_review" gorm:"column:needs_review;default:false"`

	EmailsSent          int `json:"emails_sent" gorm:"column:emails_sent;default:0"`
	EmailsOpened        int `json:"emails_opened" gorm:"column:emails_opened;default:0"`
	ConsecutiveUnopened int `json:"consecutive_unopened" gorm:"column:consecutive_unopened;default:0"`
}

// TableName sets the table name for GORM
func (Deal) TableName() string {
	return "crm_deals"
}

// RecomputeTier derives the engagement tier from the deal's email counters.
// A hot tier is sticky: it is only set by a positive reply and never
// downgraded here.
func (d *Deal) RecomputeTier() {
	switch {
	case d.EngagementTier == TierHot:
	case d.EmailsSent >= 3 && d.EmailsOpened == 0:
		d.EngagementTier = TierGhost
	case d.EmailsOpened > 0:
		d.EngagementTier = TierEngaged
	default:
		d.EngagementTier = TierCold
	}
}

// EmailLog records one message attempt (outbound) or one received reply
// (inbound). Outbound rows are immutable once sent except for tracking-field
// updates.
type EmailLog struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`

	DealID    uint `json:"deal_id" gorm:"column:deal_id;not null;index"`
	ContactID uint `json:"contact_id" gorm:"column:contact_id;not null;index"`

	Direction string `json:"direction" gorm:"column:direction;size:20;default:outbound"`
	Channel   string `json:"channel" gorm:"column:channel;size:20;default:email"`
	Subject   string `json:"subject" gorm:"column:subject;size:500"`
	Body      string `json:"body" gorm:"column:body;type:longtext"`
	Status    string `json:"status" gorm:"column:status;size:20;default:queued;index"`

	QueuedAt  time.Time  `json:"queued_at" gorm:"column:queued_at"`
	SentAt    *time.Time `json:"sent_at" gorm:"column:sent_at"`
	OpenedAt  *time.Time `json:"opened_at" gorm:"column:opened_at"`
	ClickedAt *time.Time `json:"clicked_at" gorm:"column:clicked_at"`
	RepliedAt *time.Time `json:"replied_at" gorm:"column:replied_at"`

	ProviderMessageID string `json:"provider_message_id" gorm:"column:provider_message_id;size:255;index"`
	TrackingID        string `json:"tracking_id" gorm:"column:tracking_id;size:36;uniqueIndex"`
	Error             string `json:"error,omitempty" gorm:"column:error;size:1000"`
}

// TableName sets the table name for GORM
func (EmailLog) TableName() string {
	return "crm_email_logs"
}

// DealActivity is an append-only audit trail entry for a deal
type DealActivity struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`

	DealID      uint   `json:"deal_id" gorm:"column:deal_id;not null;index"`
	Kind        string `json:"kind" gorm:"column:kind;size:50;not null"`
	Description string `json:"description" gorm:"column:description;size:1000"`
}

// TableName sets the table name for GORM
func (DealActivity) TableName() string {
	return "crm_deal_activities"
}

// AIActivity audits every LLM call: what was asked, what came back, and cost
type AIActivity struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`

	DealID     uint   `json:"deal_id" gorm:"column:deal_id;index"`
	ContactID  uint   `json:"contact_id" gorm:"column:contact_id;index"`
	PromptType string `json:"prompt_type" gorm:"column:prompt_type;size:50;not null;index"`
	Model      string `json:"model" gorm:"column:model;size:100"`
	Reasoning  string `json:"reasoning" gorm:"column:reasoning;type:text"`

	PromptTokens     int  `json:"prompt_tokens" gorm:"column:prompt_tokens;default:0"`
	CompletionTokens int  `json:"completion_tokens" gorm:"column:completion_tokens;default:0"`
	TotalTokens      int  `json:"total_tokens" gorm:"column:total_tokens;default:0"`
	Success          bool `json:"success" gorm:"column:success;default:true"`

	Error string `json:"error,omitempty" gorm:"column:error;size:1000"`
}

// TableName sets the table name for GORM
func (AIActivity) TableName() string {
	return "crm_ai_activities"
}

// EmailTemplate is a pre-built HTML message for a (brand, pipeline type,
// stage name) triple. When one exists it takes precedence over AI-generated
// copy.
type EmailTemplate struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`

	Brand        string `json:"brand" gorm:"column:brand;not null;size:100;uniqueIndex:idx_template_triple"`
	PipelineType string `json:"pipeline_type" gorm:"column:pipeline_type;not null;size:50;uniqueIndex:idx_template_triple"`
	StageName    string `json:"stage_name" gorm:"column:stage_name;not null;size:255;uniqueIndex:idx_template_triple"`
	Subject      string `json:"subject" gorm:"column:subject;size:500"`
	HTMLBody     string `json:"html_body" gorm:"column:html_body;type:longtext"`
	Active       bool   `json:"active" gorm:"column:active;default:true"`
}

// TableName sets the table name for GORM
func (EmailTemplate) TableName() string {
	return "crm_email_templates"
}
