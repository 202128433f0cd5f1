package crm

import (
	"errors"
	"fmt"
	"time"

	sqlmysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Store handles storage and retrieval of CRM records using MySQL
type Store struct {
	db *gorm.DB
}

// BuildDSN assembles a MySQL DSN from its parts using the driver's own
// config type, so escaping and required params stay correct
func BuildDSN(user, password, host, port, database string) string {
	cfg := sqlmysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%s", host, port)
	cfg.DBName = database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// NewStore creates a new CRM store with a MySQL connection
func NewStore(databaseURL string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}

	// Auto-migrate tables
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}

	return store, nil
}

// migrate creates or updates the required database tables
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&Contact{},
		&Pipeline{},
		&PipelineStage{},
		&Deal{},
		&EmailLog{},
		&DealActivity{},
		&AIActivity{},
		&EmailTemplate{},
	)
}

/* ---- CONTACTS ---- */

// CreateContact stores a new contact
func (s *Store) CreateContact(contact *Contact) error {
	if contact.Brand == "" || contact.Email == "" {
		return fmt.Errorf("brand and email cannot be empty")
	}
	if err := s.db.Create(contact).Error; err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

// GetContact retrieves a contact by ID
func (s *Store) GetContact(id uint) (*Contact, error) {
	var contact Contact
	if err := s.db.First(&contact, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("contact %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return &contact, nil
}

// FindContactByEmail looks up a contact by (brand, email). When brand is
// empty the most recently created contact with that email wins.
func (s *Store) FindContactByEmail(brand, email string) (*Contact, error) {
	var contact Contact
	query := s.db.Where("email = ?", email)
	if brand != "" {
		query = query.Where("brand = ?", brand)
	}
	err := query.Order("created_at DESC").First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find contact: %w", err)
	}
	return &contact, nil
}

// UpdateContact persists changes to an existing contact
func (s *Store) UpdateContact(contact *Contact) error {
	if contact.ID == 0 {
		return fmt.Errorf("contact ID cannot be zero")
	}
	if err := s.db.Save(contact).Error; err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	return nil
}

// ListContacts returns contacts matching the filter
func (s *Store) ListContacts(filter ContactFilter) ([]*Contact, error) {
	var contacts []*Contact
	query := s.db.Model(&Contact{})
	if filter.Brand != "" {
		query = query.Where("brand = ?", filter.Brand)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	query = query.Order("created_at DESC").Offset(filter.Offset)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Find(&contacts).Error; err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return contacts, nil
}

/* ---- PIPELINES ---- */

// CreatePipeline stores a pipeline together with its stages
func (s *Store) CreatePipeline(pipeline *Pipeline) error {
	if pipeline.Brand == "" || pipeline.Name == "" {
		return fmt.Errorf("brand and name cannot be empty")
	}
	if err := s.db.Create(pipeline).Error; err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	return nil
}

// GetPipeline retrieves a pipeline with its stages in order
func (s *Store) GetPipeline(id uint) (*Pipeline, error) {
	var pipeline Pipeline
	err := s.db.Preload("Stages", func(db *gorm.DB) *gorm.DB {
		return db.Order("stage_order ASC")
	}).First(&pipeline, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("pipeline %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get pipeline: %w", err)
	}
	return &pipeline, nil
}

// ListPipelines returns all pipelines for a brand (all brands when empty)
func (s *Store) ListPipelines(brand string) ([]*Pipeline, error) {
	var pipelines []*Pipeline
	query := s.db.Preload("Stages", func(db *gorm.DB) *gorm.DB {
		return db.Order("stage_order ASC")
	})
	if brand != "" {
		query = query.Where("brand = ?", brand)
	}
	if err := query.Find(&pipelines).Error; err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}
	return pipelines, nil
}

// FindPipelineByType returns the first active pipeline of the given workflow
// type for a brand, or nil when none exists
func (s *Store) FindPipelineByType(brand, pipelineType string) (*Pipeline, error) {
	var pipeline Pipeline
	err := s.db.Preload("Stages", func(db *gorm.DB) *gorm.DB {
		return db.Order("stage_order ASC")
	}).Where("brand = ? AND type = ? AND active = ?", brand, pipelineType, true).
		First(&pipeline).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find pipeline: %w", err)
	}
	return &pipeline, nil
}

// GetStage retrieves a single pipeline stage
func (s *Store) GetStage(id uint) (*PipelineStage, error) {
	var stage PipelineStage
	if err := s.db.First(&stage, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("stage %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get stage: %w", err)
	}
	return &stage, nil
}

// NextStage returns the stage following the given one in its pipeline, or
// nil when the given stage is the last
func (s *Store) NextStage(stage *PipelineStage) (*PipelineStage, error) {
	var next PipelineStage
	err := s.db.Where("pipeline_id = ? AND stage_order > ?", stage.PipelineID, stage.StageOrder).
		Order("stage_order ASC").First(&next).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get next stage: %w", err)
	}
	return &next, nil
}

/* ---- DEALS ---- */

// CreateDeal stores a new deal
func (s *Store) CreateDeal(deal *Deal) error {
	if deal.ContactID == 0 || deal.PipelineID == 0 || deal.CurrentStageID == 0 {
		return fmt.Errorf("contact, pipeline and stage must be set")
	}
	if err := s.db.Create(deal).Error; err != nil {
		return fmt.Errorf("failed to create deal: %w", err)
	}
	return nil
}

// GetDeal retrieves a deal with its contact, pipeline and current stage
func (s *Store) GetDeal(id uint) (*Deal, error) {
	var deal Deal
	err := s.db.Preload("Contact").Preload("Pipeline").Preload("CurrentStage").
		First(&deal, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("deal %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get deal: %w", err)
	}
	return &deal, nil
}

// UpdateDeal persists changes to an existing deal inside a transaction
func (s *Store) UpdateDeal(deal *Deal) error {
	if deal.ID == 0 {
		return fmt.Errorf("deal ID cannot be zero")
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Omit("Contact", "Pipeline", "CurrentStage").Save(deal).Error
	})
	if err != nil {
		return fmt.Errorf("failed to update deal: %w", err)
	}
	return nil
}

// ListDeals returns deals matching the filter
func (s *Store) ListDeals(filter DealFilter) ([]*Deal, error) {
	var deals []*Deal
	query := s.db.Preload("Contact").Preload("Pipeline").Preload("CurrentStage")
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PipelineID != 0 {
		query = query.Where("pipeline_id = ?", filter.PipelineID)
	}
	if filter.ContactID != 0 {
		query = query.Where("contact_id = ?", filter.ContactID)
	}
	if filter.Brand != "" {
		query = query.Joins("JOIN crm_pipelines ON crm_pipelines.id = crm_deals.pipeline_id").
			Where("crm_pipelines.brand = ?", filter.Brand)
	}
	query = query.Order("crm_deals.created_at DESC").Offset(filter.Offset)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Find(&deals).Error; err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	return deals, nil
}

// DueDeals returns active deals whose next action date has passed, oldest
// first, limited to the batch size
func (s *Store) DueDeals(now time.Time, limit int) ([]*Deal, error) {
	var deals []*Deal
	err := s.db.Preload("Contact").Preload("Pipeline").Preload("CurrentStage").
		Where("status = ? AND next_action_date IS NOT NULL AND next_action_date <= ?", DealStatusActive, now).
		Order("next_action_date ASC").Limit(limit).
		Find(&deals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due deals: %w", err)
	}
	return deals, nil
}

// ActiveDealsByContact returns the contact's active deals, newest first
func (s *Store) ActiveDealsByContact(contactID uint) ([]*Deal, error) {
	var deals []*Deal
	err := s.db.Preload("Contact").Preload("Pipeline").Preload("CurrentStage").
		Where("contact_id = ? AND status = ?", contactID, DealStatusActive).
		Order("created_at DESC").
		Find(&deals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active deals: %w", err)
	}
	return deals, nil
}

// FindActiveDeal returns the active deal for (contact, pipeline), or nil
func (s *Store) FindActiveDeal(contactID, pipelineID uint) (*Deal, error) {
	var deal Deal
	err := s.db.Preload("Contact").Preload("Pipeline").Preload("CurrentStage").
		Where("contact_id = ? AND pipeline_id = ? AND status = ?", contactID, pipelineID, DealStatusActive).
		Order("created_at DESC").First(&deal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active deal: %w", err)
	}
	return &deal, nil
}

/* ---- EMAIL LOGS ---- */

// CreateEmailLog stores a new email log row
func (s *Store) CreateEmailLog(log *EmailLog) error {
	if log.DealID == 0 || log.ContactID == 0 {
		return fmt.Errorf("deal and contact must be set")
	}
	if log.QueuedAt.IsZero() {
		log.QueuedAt = time.Now().UTC()
	}
	if err := s.db.Create(log).Error; err != nil {
		return fmt.Errorf("failed to create email log: %w", err)
	}
	return nil
}

// UpdateEmailLog persists changes to an existing email log row
func (s *Store) UpdateEmailLog(log *EmailLog) error {
	if log.ID == 0 {
		return fmt.Errorf("email log ID cannot be zero")
	}
	if err := s.db.Save(log).Error; err != nil {
		return fmt.Errorf("failed to update email log: %w", err)
	}
	return nil
}

// GetEmailLogByTrackingID retrieves an email log by its tracking UUID
func (s *Store) GetEmailLogByTrackingID(trackingID string) (*EmailLog, error) {
	var log EmailLog
	if err := s.db.Where("tracking_id = ?", trackingID).First(&log).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tracking id '%s': %w", trackingID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get email log: %w", err)
	}
	return &log, nil
}

// FindInboundByProviderID returns the inbound log with the given provider
// message ID, or nil. Used to deduplicate replies.
func (s *Store) FindInboundByProviderID(messageID string) (*EmailLog, error) {
	if messageID == "" {
		return nil, nil
	}
	var log EmailLog
	err := s.db.Where("direction = ? AND provider_message_id = ?", DirectionInbound, messageID).
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find inbound log: %w", err)
	}
	return &log, nil
}

// QueuedEmails returns outbound logs still waiting to be sent
func (s *Store) QueuedEmails(limit int) ([]*EmailLog, error) {
	var logs []*EmailLog
	err := s.db.Where("direction = ? AND status = ?", DirectionOutbound, EmailStatusQueued).
		Order("queued_at ASC").Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list queued emails: %w", err)
	}
	return logs, nil
}

// LatestOutbound returns the most recent sent outbound log for a deal, or nil
func (s *Store) LatestOutbound(dealID uint) (*EmailLog, error) {
	var log EmailLog
	err := s.db.Where("deal_id = ? AND direction = ? AND status = ?", dealID, DirectionOutbound, EmailStatusSent).
		Order("sent_at DESC").First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest outbound: %w", err)
	}
	return &log, nil
}

// ListEmailLogs returns all logs for a deal, newest first
func (s *Store) ListEmailLogs(dealID uint) ([]*EmailLog, error) {
	var logs []*EmailLog
	err := s.db.Where("deal_id = ?", dealID).Order("created_at DESC").Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list email logs: %w", err)
	}
	return logs, nil
}

/* ---- AUDIT TRAILS ---- */

// AddDealActivity appends an entry to a deal's audit trail
func (s *Store) AddDealActivity(activity *DealActivity) error {
	if activity.DealID == 0 {
		return fmt.Errorf("deal ID cannot be zero")
	}
	if err := s.db.Create(activity).Error; err != nil {
		return fmt.Errorf("failed to add deal activity: %w", err)
	}
	return nil
}

// ListDealActivities returns a deal's audit trail, newest first
func (s *Store) ListDealActivities(dealID uint) ([]*DealActivity, error) {
	var activities []*DealActivity
	err := s.db.Where("deal_id = ?", dealID).Order("created_at DESC").Find(&activities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list deal activities: %w", err)
	}
	return activities, nil
}

// AddAIActivity records an LLM call in the audit trail
func (s *Store) AddAIActivity(activity *AIActivity) error {
	if err := s.db.Create(activity).Error; err != nil {
		return fmt.Errorf("failed to add AI activity: %w", err)
	}
	return nil
}

// ListAIActivities returns the most recent LLM calls
func (s *Store) ListAIActivities(limit int) ([]*AIActivity, error) {
	var activities []*AIActivity
	query := s.db.Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&activities).Error; err != nil {
		return nil, fmt.Errorf("failed to list AI activities: %w", err)
	}
	return activities, nil
}

/* ---- TEMPLATES ---- */

// CreateTemplate stores an email template
func (s *Store) CreateTemplate(template *EmailTemplate) error {
	if template.Brand == "" || template.PipelineType == "" || template.StageName == "" {
		return fmt.Errorf("brand, pipeline type and stage name cannot be empty")
	}
	if err := s.db.Create(template).Error; err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// FindTemplate returns the active template for a (brand, pipeline type,
// stage name) triple, or nil when no pre-built copy exists
func (s *Store) FindTemplate(brand, pipelineType, stageName string) (*EmailTemplate, error) {
	var template EmailTemplate
	err := s.db.Where("brand = ? AND pipeline_type = ? AND stage_name = ? AND active = ?",
		brand, pipelineType, stageName, true).First(&template).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find template: %w", err)
	}
	return &template, nil
}

/* ---- STATS ---- */

// Stats summarizes deals, contacts and email traffic for a brand
func (s *Store) Stats(brand string) (*Stats, error) {
	stats := &Stats{
		DealsByStatus: make(map[string]int64),
		DealsByTier:   make(map[string]int64),
	}

	contactQuery := s.db.Model(&Contact{})
	if brand != "" {
		contactQuery = contactQuery.Where("brand = ?", brand)
	}
	if err := contactQuery.Count(&stats.Contacts).Error; err != nil {
		return nil, fmt.Errorf("failed to count contacts: %w", err)
	}

	dealQuery := func() *gorm.DB {
		q := s.db.Model(&Deal{})
		if brand != "" {
			q = q.Joins("JOIN crm_pipelines ON crm_pipelines.id = crm_deals.pipeline_id").
				Where("crm_pipelines.brand = ?", brand)
		}
		return q
	}

	type countRow struct {
		Key   string
		Count int64
	}
	var rows []countRow
	if err := dealQuery().Select("status AS `key`, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count deals by status: %w", err)
	}
	for _, row := range rows {
		stats.DealsByStatus[row.Key] = row.Count
	}

	rows = nil
	if err := dealQuery().Select("engagement_tier AS `key`, COUNT(*) AS count").Group("engagement_tier").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count deals by tier: %w", err)
	}
	for _, row := range rows {
		stats.DealsByTier[row.Key] = row.Count
	}

	logQuery := s.db.Model(&EmailLog{})
	if err := logQuery.Where("direction = ? AND status = ?", DirectionOutbound, EmailStatusSent).Count(&stats.EmailsSent).Error; err != nil {
		return nil, fmt.Errorf("failed to count sent emails: %w", err)
	}
	if err := s.db.Model(&EmailLog{}).Where("direction = ? AND opened_at IS NOT NULL", DirectionOutbound).Count(&stats.EmailsOpened).Error; err != nil {
		return nil, fmt.Errorf("failed to count opened emails: %w", err)
	}
	if err := s.db.Model(&EmailLog{}).Where("direction = ?", DirectionInbound).Count(&stats.Replies).Error; err != nil {
		return nil, fmt.Errorf("failed to count replies: %w", err)
	}

	return stats, nil
}
