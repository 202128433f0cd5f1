package crm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/codeteki/outreach/internal/engine"
	store "github.com/codeteki/outreach/internal/stores/crm"
	"github.com/codeteki/outreach/pkg/sdk"
)

var service *Service

// Service holds the CRM module's collaborators
type Service struct {
	store  store.StoreInterface
	engine *engine.Engine
}

// Init wires the CRM module
func Init(s store.StoreInterface, e *engine.Engine) {
	service = &Service{store: s, engine: e}
}

// GetService returns the module's service
func GetService() *Service {
	return service
}

// CreateContact creates a contact and scores it as a lead. Duplicate
// (brand, email) pairs are rejected.
func (s *Service) CreateContact(ctx context.Context, req sdk.CreateContactRequest) (*store.Contact, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := s.store.FindContactByEmail(req.Brand, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("contact %s already exists for brand '%s'", email, req.Brand)
	}

	contact := &store.Contact{
		Brand:   req.Brand,
		Email:   email,
		Name:    req.Name,
		Company: req.Company,
		Phone:   req.Phone,
		Website: req.Website,
		Source:  req.Source,
		Status:  "new",
	}
	if err := s.store.CreateContact(contact); err != nil {
		return nil, err
	}

	if s.engine != nil {
		if err := s.engine.ScoreContact(ctx, contact); err != nil {
			return contact, err
		}
	}
	return contact, nil
}

// PatchContact applies the non-nil fields of a patch request
func (s *Service) PatchContact(id uint, req sdk.PatchContactRequest) (*store.Contact, error) {
	contact, err := s.store.GetContact(id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		contact.Name = *req.Name
	}
	if req.Company != nil {
		contact.Company = *req.Company
	}
	if req.Phone != nil {
		contact.Phone = *req.Phone
	}
	if req.Website != nil {
		contact.Website = *req.Website
	}
	if req.Status != nil {
		contact.Status = *req.Status
	}

	if err := s.store.UpdateContact(contact); err != nil {
		return nil, err
	}
	return contact, nil
}

// CreateDeal starts a contact in a pipeline at its first stage. A contact
// can hold at most one active deal per pipeline.
func (s *Service) CreateDeal(req sdk.CreateDealRequest) (*store.Deal, error) {
	contact, err := s.store.GetContact(req.ContactID)
	if err != nil {
		return nil, err
	}
	if contact.Suppressed() {
		return nil, fmt.Errorf("contact %d is suppressed", contact.ID)
	}

	pipeline, err := s.store.GetPipeline(req.PipelineID)
	if err != nil {
		return nil, err
	}
	if len(pipeline.Stages) == 0 {
		return nil, fmt.Errorf("pipeline '%s' has no stages", pipeline.Name)
	}

	existing, err := s.store.FindActiveDeal(contact.ID, pipeline.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("contact %d already has an active deal in pipeline '%s'", contact.ID, pipeline.Name)
	}

	title := req.Title
	if title == "" {
		title = fmt.Sprintf("%s / %s", contact.Name, pipeline.Name)
	}

	firstStage := pipeline.Stages[0]
	nextAction := time.Now().UTC()
	deal := &store.Deal{
		ContactID:      contact.ID,
		PipelineID:     pipeline.ID,
		CurrentStageID: firstStage.ID,
		Title:          title,
		Status:         store.DealStatusActive,
		EngagementTier: store.TierCold,
		NextActionDate: &nextAction,
	}
	if err := s.store.CreateDeal(deal); err != nil {
		return nil, err
	}

	if err := s.store.AddDealActivity(&store.DealActivity{
		DealID:      deal.ID,
		Kind:        store.ActivityNote,
		Description: fmt.Sprintf("Deal created in pipeline '%s'", pipeline.Name),
	}); err != nil {
		return nil, err
	}
	return deal, nil
}

// PatchDeal applies a manual stage or status move
func (s *Service) PatchDeal(ctx context.Context, id uint, req sdk.PatchDealRequest) (*store.Deal, error) {
	deal, err := s.store.GetDeal(id)
	if err != nil {
		return nil, err
	}

	if req.StageID != nil {
		stage, err := s.store.GetStage(*req.StageID)
		if err != nil {
			return nil, err
		}
		if stage.PipelineID != deal.PipelineID {
			return nil, fmt.Errorf("stage %d belongs to another pipeline", stage.ID)
		}

		previous := ""
		if deal.CurrentStage != nil {
			previous = deal.CurrentStage.Name
		}
		deal.CurrentStageID = stage.ID
		deal.CurrentStage = stage
		nextAction := time.Now().UTC().AddDate(0, 0, stage.DaysUntilFollowup)
		deal.NextActionDate = &nextAction

		if err := s.store.UpdateDeal(deal); err != nil {
			return nil, err
		}
		if err := s.store.AddDealActivity(&store.DealActivity{
			DealID:      deal.ID,
			Kind:        store.ActivityStageChange,
			Description: fmt.Sprintf("Moved from '%s' to '%s' manually", previous, stage.Name),
		}); err != nil {
			return nil, err
		}
	}

	if req.Status != nil {
		switch *req.Status {
		case store.DealStatusWon, store.DealStatusLost:
			if err := s.engine.CloseDeal(ctx, deal, *req.Status, req.Reason); err != nil {
				return nil, err
			}
		case store.DealStatusActive, store.DealStatusPaused:
			deal.Status = *req.Status
			if *req.Status == store.DealStatusActive && deal.NextActionDate == nil {
				now := time.Now().UTC()
				deal.NextActionDate = &now
			}
			if err := s.store.UpdateDeal(deal); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown deal status '%s'", *req.Status)
		}
	}

	return s.store.GetDeal(deal.ID)
}

// CreatePipeline creates a pipeline and its stages. Stage order defaults to
// the order given.
func (s *Service) CreatePipeline(req sdk.CreatePipelineRequest) (*store.Pipeline, error) {
	pipeline := &store.Pipeline{
		Brand:  req.Brand,
		Name:   req.Name,
		Type:   req.Type,
		Active: true,
	}
	for i, stage := range req.Stages {
		order := stage.StageOrder
		if order == 0 {
			order = i + 1
		}
		days := stage.DaysUntilFollowup
		if days == 0 {
			days = 3
		}
		pipeline.Stages = append(pipeline.Stages, store.PipelineStage{
			Name:              stage.Name,
			StageOrder:        order,
			DaysUntilFollowup: days,
			AutoAction:        stage.AutoAction,
			IsTerminal:        stage.IsTerminal,
			IsWon:             stage.IsWon,
		})
	}
	sort.Slice(pipeline.Stages, func(i, j int) bool {
		return pipeline.Stages[i].StageOrder < pipeline.Stages[j].StageOrder
	})

	if err := s.store.CreatePipeline(pipeline); err != nil {
		return nil, err
	}
	return pipeline, nil
}
