package crm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemoryStore provides an in-memory implementation of StoreInterface for
// testing. Reads return copies with associations populated, the way the GORM
// store preloads them.
type InMemoryStore struct {
	mutex sync.RWMutex

	nextID     uint
	contacts   map[uint]*Contact
	pipelines  map[uint]*Pipeline
	stages     map[uint]*PipelineStage
	deals      map[uint]*Deal
	emailLogs  map[uint]*EmailLog
	activities []*DealActivity
	aiLogs     []*AIActivity
	templates  []*EmailTemplate
}

// NewInMemoryStore creates a new in-memory CRM store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nextID:    1,
		contacts:  make(map[uint]*Contact),
		pipelines: make(map[uint]*Pipeline),
		stages:    make(map[uint]*PipelineStage),
		deals:     make(map[uint]*Deal),
		emailLogs: make(map[uint]*EmailLog),
	}
}

func (s *InMemoryStore) allocID() uint {
	id := s.nextID
	s.nextID++
	return id
}

/* ---- CONTACTS ---- */

// CreateContact stores a new contact
func (s *InMemoryStore) CreateContact(contact *Contact) error {
	if contact.Brand == "" || contact.Email == "" {
		return fmt.Errorf("brand and email cannot be empty")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, existing := range s.contacts {
		if existing.Brand == contact.Brand && strings.EqualFold(existing.Email, contact.Email) {
			return fmt.Errorf("contact with email '%s' already exists for brand '%s'", contact.Email, contact.Brand)
		}
	}

	contact.ID = s.allocID()
	contact.CreatedAt = time.Now().UTC()
	contact.UpdatedAt = contact.CreatedAt
	if contact.Status == "" {
		contact.Status = "new"
	}

	clone := *contact
	s.contacts[contact.ID] = &clone
	return nil
}

// GetContact retrieves a contact by ID
func (s *InMemoryStore) GetContact(id uint) (*Contact, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	contact, exists := s.contacts[id]
	if !exists {
		return nil, fmt.Errorf("contact %d: %w", id, ErrNotFound)
	}
	clone := *contact
	return &clone, nil
}

// FindContactByEmail looks up a contact by (brand, email)
func (s *InMemoryStore) FindContactByEmail(brand, email string) (*Contact, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var found *Contact
	for _, contact := range s.contacts {
		if !strings.EqualFold(contact.Email, email) {
			continue
		}
		if brand != "" && contact.Brand != brand {
			continue
		}
		if found == nil || contact.CreatedAt.After(found.CreatedAt) {
			found = contact
		}
	}
	if found == nil {
		return nil, nil
	}
	clone := *found
	return &clone, nil
}

// UpdateContact persists changes to an existing contact
func (s *InMemoryStore) UpdateContact(contact *Contact) error {
	if contact.ID == 0 {
		return fmt.Errorf("contact ID cannot be zero")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.contacts[contact.ID]; !exists {
		return fmt.Errorf("contact %d: %w", contact.ID, ErrNotFound)
	}
	contact.UpdatedAt = time.Now().UTC()
	clone := *contact
	s.contacts[contact.ID] = &clone
	return nil
}

// ListContacts returns contacts matching the filter
func (s *InMemoryStore) ListContacts(filter ContactFilter) ([]*Contact, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var contacts []*Contact
	for _, contact := range s.contacts {
		if filter.Brand != "" && contact.Brand != filter.Brand {
			continue
		}
		if filter.Status != "" && contact.Status != filter.Status {
			continue
		}
		clone := *contact
		contacts = append(contacts, &clone)
	}
	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].CreatedAt.After(contacts[j].CreatedAt)
	})
	return paginate(contacts, filter.Offset, filter.Limit), nil
}

/* ---- PIPELINES ---- */

// CreatePipeline stores a pipeline together with its stages
func (s *InMemoryStore) CreatePipeline(pipeline *Pipeline) error {
	if pipeline.Brand == "" || pipeline.Name == "" {
		return fmt.Errorf("brand and name cannot be empty")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	pipeline.ID = s.allocID()
	pipeline.CreatedAt = time.Now().UTC()
	for i := range pipeline.Stages {
		stage := &pipeline.Stages[i]
		stage.ID = s.allocID()
		stage.PipelineID = pipeline.ID
		clone := *stage
		s.stages[stage.ID] = &clone
	}

	clone := *pipeline
	clone.Stages = nil
	s.pipelines[pipeline.ID] = &clone
	return nil
}

// GetPipeline retrieves a pipeline with its stages in order
func (s *InMemoryStore) GetPipeline(id uint) (*Pipeline, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	pipeline, exists := s.pipelines[id]
	if !exists {
		return nil, fmt.Errorf("pipeline %d: %w", id, ErrNotFound)
	}
	return s.pipelineWithStages(pipeline), nil
}

// pipelineWithStages copies a pipeline and attaches its ordered stages
// (called with mutex held)
func (s *InMemoryStore) pipelineWithStages(pipeline *Pipeline) *Pipeline {
	clone := *pipeline
	for _, stage := range s.stages {
		if stage.PipelineID == pipeline.ID {
			clone.Stages = append(clone.Stages, *stage)
		}
	}
	sort.Slice(clone.Stages, func(i, j int) bool {
		return clone.Stages[i].StageOrder < clone.Stages[j].StageOrder
	})
	return &clone
}

// ListPipelines returns all pipelines for a brand (all brands when empty)
func (s *InMemoryStore) ListPipelines(brand string) ([]*Pipeline, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var pipelines []*Pipeline
	for _, pipeline := range s.pipelines {
		if brand != "" && pipeline.Brand != brand {
			continue
		}
		pipelines = append(pipelines, s.pipelineWithStages(pipeline))
	}
	sort.Slice(pipelines, func(i, j int) bool { return pipelines[i].ID < pipelines[j].ID })
	return pipelines, nil
}

// FindPipelineByType returns the first active pipeline of the given type
func (s *InMemoryStore) FindPipelineByType(brand, pipelineType string) (*Pipeline, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var candidates []*Pipeline
	for _, pipeline := range s.pipelines {
		if pipeline.Brand == brand && pipeline.Type == pipelineType && pipeline.Active {
			candidates = append(candidates, pipeline)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return s.pipelineWithStages(candidates[0]), nil
}

// GetStage retrieves a single pipeline stage
func (s *InMemoryStore) GetStage(id uint) (*PipelineStage, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stage, exists := s.stages[id]
	if !exists {
		return nil, fmt.Errorf("stage %d: %w", id, ErrNotFound)
	}
	clone := *stage
	return &clone, nil
}

// NextStage returns the stage following the given one, or nil when last
func (s *InMemoryStore) NextStage(stage *PipelineStage) (*PipelineStage, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var next *PipelineStage
	for _, candidate := range s.stages {
		if candidate.PipelineID != stage.PipelineID || candidate.StageOrder <= stage.StageOrder {
			continue
		}
		if next == nil || candidate.StageOrder < next.StageOrder {
			next = candidate
		}
	}
	if next == nil {
		return nil, nil
	}
	clone := *next
	return &clone, nil
}

/* ---- DEALS ---- */

// CreateDeal stores a new deal
func (s *InMemoryStore) CreateDeal(deal *Deal) error {
	if deal.ContactID == 0 || deal.PipelineID == 0 || deal.CurrentStageID == 0 {
		return fmt.Errorf("contact, pipeline and stage must be set")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	deal.ID = s.allocID()
	deal.CreatedAt = time.Now().UTC()
	if deal.Status == "" {
		deal.Status = DealStatusActive
	}
	if deal.EngagementTier == "" {
		deal.EngagementTier = TierCold
	}

	clone := *deal
	clone.Contact = nil
	clone.Pipeline = nil
	clone.CurrentStage = nil
	s.deals[deal.ID] = &clone
	return nil
}

// dealWithAssociations copies a deal and attaches its contact, pipeline and
// current stage (called with mutex held)
func (s *InMemoryStore) dealWithAssociations(deal *Deal) *Deal {
	clone := *deal
	if contact, ok := s.contacts[deal.ContactID]; ok {
		c := *contact
		clone.Contact = &c
	}
	if pipeline, ok := s.pipelines[deal.PipelineID]; ok {
		clone.Pipeline = s.pipelineWithStages(pipeline)
	}
	if stage, ok := s.stages[deal.CurrentStageID]; ok {
		st := *stage
		clone.CurrentStage = &st
	}
	return &clone
}

// GetDeal retrieves a deal with its associations
func (s *InMemoryStore) GetDeal(id uint) (*Deal, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	deal, exists := s.deals[id]
	if !exists {
		return nil, fmt.Errorf("deal %d: %w", id, ErrNotFound)
	}
	return s.dealWithAssociations(deal), nil
}

// UpdateDeal persists changes to an existing deal
func (s *InMemoryStore) UpdateDeal(deal *Deal) error {
	if deal.ID == 0 {
		return fmt.Errorf("deal ID cannot be zero")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.deals[deal.ID]; !exists {
		return fmt.Errorf("deal %d: %w", deal.ID, ErrNotFound)
	}
	deal.UpdatedAt = time.Now().UTC()
	clone := *deal
	clone.Contact = nil
	clone.Pipeline = nil
	clone.CurrentStage = nil
	s.deals[deal.ID] = &clone
	return nil
}

// ListDeals returns deals matching the filter
func (s *InMemoryStore) ListDeals(filter DealFilter) ([]*Deal, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var deals []*Deal
	for _, deal := range s.deals {
		if filter.Status != "" && deal.Status != filter.Status {
			continue
		}
		if filter.PipelineID != 0 && deal.PipelineID != filter.PipelineID {
			continue
		}
		if filter.ContactID != 0 && deal.ContactID != filter.ContactID {
			continue
		}
		if filter.Brand != "" {
			pipeline, ok := s.pipelines[deal.PipelineID]
			if !ok || pipeline.Brand != filter.Brand {
				continue
			}
		}
		deals = append(deals, s.dealWithAssociations(deal))
	}
	sort.Slice(deals, func(i, j int) bool { return deals[i].CreatedAt.After(deals[j].CreatedAt) })
	return paginate(deals, filter.Offset, filter.Limit), nil
}

// DueDeals returns active deals whose next action date has passed
func (s *InMemoryStore) DueDeals(now time.Time, limit int) ([]*Deal, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var deals []*Deal
	for _, deal := range s.deals {
		if deal.Status != DealStatusActive || deal.NextActionDate == nil {
			continue
		}
		if deal.NextActionDate.After(now) {
			continue
		}
		deals = append(deals, s.dealWithAssociations(deal))
	}
	sort.Slice(deals, func(i, j int) bool {
		return deals[i].NextActionDate.Before(*deals[j].NextActionDate)
	})
	if limit > 0 && len(deals) > limit {
		deals = deals[:limit]
	}
	return deals, nil
}

// ActiveDealsByContact returns the contact's active deals, newest first
func (s *InMemoryStore) ActiveDealsByContact(contactID uint) ([]*Deal, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var deals []*Deal
	for _, deal := range s.deals {
		if deal.ContactID == contactID && deal.Status == DealStatusActive {
			deals = append(deals, s.dealWithAssociations(deal))
		}
	}
	sort.Slice(deals, func(i, j int) bool {
		if deals[i].CreatedAt.Equal(deals[j].CreatedAt) {
			return deals[i].ID > deals[j].ID
		}
		return deals[i].CreatedAt.After(deals[j].CreatedAt)
	})
	return deals, nil
}

// FindActiveDeal returns the active deal for (contact, pipeline), or nil
func (s *InMemoryStore) FindActiveDeal(contactID, pipelineID uint) (*Deal, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var found *Deal
	for _, deal := range s.deals {
		if deal.ContactID != contactID || deal.PipelineID != pipelineID || deal.Status != DealStatusActive {
			continue
		}
		if found == nil || deal.CreatedAt.After(found.CreatedAt) {
			found = deal
		}
	}
	if found == nil {
		return nil, nil
	}
	return s.dealWithAssociations(found), nil
}

/* ---- EMAIL LOGS ---- */

// CreateEmailLog stores a new email log row
func (s *InMemoryStore) CreateEmailLog(log *EmailLog) error {
	if log.DealID == 0 || log.ContactID == 0 {
		return fmt.Errorf("deal and contact must be set")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	log.ID = s.allocID()
	log.CreatedAt = time.Now().UTC()
	if log.QueuedAt.IsZero() {
		log.QueuedAt = log.CreatedAt
	}
	if log.Direction == "" {
		log.Direction = DirectionOutbound
	}
	if log.Status == "" {
		log.Status = EmailStatusQueued
	}

	clone := *log
	s.emailLogs[log.ID] = &clone
	return nil
}

// UpdateEmailLog persists changes to an existing email log row
func (s *InMemoryStore) UpdateEmailLog(log *EmailLog) error {
	if log.ID == 0 {
		return fmt.Errorf("email log ID cannot be zero")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.emailLogs[log.ID]; !exists {
		return fmt.Errorf("email log %d: %w", log.ID, ErrNotFound)
	}
	clone := *log
	s.emailLogs[log.ID] = &clone
	return nil
}

// GetEmailLogByTrackingID retrieves an email log by its tracking UUID
func (s *InMemoryStore) GetEmailLogByTrackingID(trackingID string) (*EmailLog, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, log := range s.emailLogs {
		if log.TrackingID == trackingID {
			clone := *log
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("tracking id '%s': %w", trackingID, ErrNotFound)
}

// FindInboundByProviderID returns the inbound log with the given message ID
func (s *InMemoryStore) FindInboundByProviderID(messageID string) (*EmailLog, error) {
	if messageID == "" {
		return nil, nil
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, log := range s.emailLogs {
		if log.Direction == DirectionInbound && log.ProviderMessageID == messageID {
			clone := *log
			return &clone, nil
		}
	}
	return nil, nil
}

// QueuedEmails returns outbound logs still waiting to be sent
func (s *InMemoryStore) QueuedEmails(limit int) ([]*EmailLog, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var logs []*EmailLog
	for _, log := range s.emailLogs {
		if log.Direction == DirectionOutbound && log.Status == EmailStatusQueued {
			clone := *log
			logs = append(logs, &clone)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].QueuedAt.Before(logs[j].QueuedAt) })
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// LatestOutbound returns the most recent sent outbound log for a deal, or nil
func (s *InMemoryStore) LatestOutbound(dealID uint) (*EmailLog, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var latest *EmailLog
	for _, log := range s.emailLogs {
		if log.DealID != dealID || log.Direction != DirectionOutbound || log.Status != EmailStatusSent {
			continue
		}
		if latest == nil || (log.SentAt != nil && latest.SentAt != nil && log.SentAt.After(*latest.SentAt)) {
			latest = log
		}
	}
	if latest == nil {
		return nil, nil
	}
	clone := *latest
	return &clone, nil
}

// ListEmailLogs returns all logs for a deal, newest first
func (s *InMemoryStore) ListEmailLogs(dealID uint) ([]*EmailLog, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var logs []*EmailLog
	for _, log := range s.emailLogs {
		if log.DealID == dealID {
			clone := *log
			logs = append(logs, &clone)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	return logs, nil
}

/* ---- AUDIT TRAILS ---- */

// AddDealActivity appends an entry to a deal's audit trail
func (s *InMemoryStore) AddDealActivity(activity *DealActivity) error {
	if activity.DealID == 0 {
		return fmt.Errorf("deal ID cannot be zero")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	activity.ID = s.allocID()
	activity.CreatedAt = time.Now().UTC()
	clone := *activity
	s.activities = append(s.activities, &clone)
	return nil
}

// ListDealActivities returns a deal's audit trail, newest first
func (s *InMemoryStore) ListDealActivities(dealID uint) ([]*DealActivity, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var activities []*DealActivity
	for _, activity := range s.activities {
		if activity.DealID == dealID {
			clone := *activity
			activities = append(activities, &clone)
		}
	}
	// Appended in order, so reverse for newest first
	for i, j := 0, len(activities)-1; i < j; i, j = i+1, j-1 {
		activities[i], activities[j] = activities[j], activities[i]
	}
	return activities, nil
}

// AddAIActivity records an LLM call in the audit trail
func (s *InMemoryStore) AddAIActivity(activity *AIActivity) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	activity.ID = s.allocID()
	activity.CreatedAt = time.Now().UTC()
	clone := *activity
	s.aiLogs = append(s.aiLogs, &clone)
	return nil
}

// ListAIActivities returns the most recent LLM calls
func (s *InMemoryStore) ListAIActivities(limit int) ([]*AIActivity, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var logs []*AIActivity
	for i := len(s.aiLogs) - 1; i >= 0; i-- {
		clone := *s.aiLogs[i]
		logs = append(logs, &clone)
		if limit > 0 && len(logs) >= limit {
			break
		}
	}
	return logs, nil
}

/* ---- TEMPLATES ---- */

// CreateTemplate stores an email template
func (s *InMemoryStore) CreateTemplate(template *EmailTemplate) error {
	if template.Brand == "" || template.PipelineType == "" || template.StageName == "" {
		return fmt.Errorf("brand, pipeline type and stage name cannot be empty")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	template.ID = s.allocID()
	template.CreatedAt = time.Now().UTC()
	clone := *template
	s.templates = append(s.templates, &clone)
	return nil
}

// FindTemplate returns the active template for the triple, or nil
func (s *InMemoryStore) FindTemplate(brand, pipelineType, stageName string) (*EmailTemplate, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, template := range s.templates {
		if template.Brand == brand && template.PipelineType == pipelineType &&
			template.StageName == stageName && template.Active {
			clone := *template
			return &clone, nil
		}
	}
	return nil, nil
}

/* ---- STATS ---- */

// Stats summarizes deals, contacts and email traffic for a brand
func (s *InMemoryStore) Stats(brand string) (*Stats, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stats := &Stats{
		DealsByStatus: make(map[string]int64),
		DealsByTier:   make(map[string]int64),
	}
	for _, contact := range s.contacts {
		if brand == "" || contact.Brand == brand {
			stats.Contacts++
		}
	}
	for _, deal := range s.deals {
		if brand != "" {
			pipeline, ok := s.pipelines[deal.PipelineID]
			if !ok || pipeline.Brand != brand {
				continue
			}
		}
		stats.DealsByStatus[deal.Status]++
		stats.DealsByTier[deal.EngagementTier]++
	}
	for _, log := range s.emailLogs {
		switch {
		case log.Direction == DirectionInbound:
			stats.Replies++
		case log.Status == EmailStatusSent:
			stats.EmailsSent++
		}
		if log.Direction == DirectionOutbound && log.OpenedAt != nil {
			stats.EmailsOpened++
		}
	}
	return stats, nil
}

// paginate applies offset/limit slicing to a listing
func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
