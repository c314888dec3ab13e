package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/whatleads/campaignd/internal/dispatch"
	"github.com/whatleads/campaignd/internal/storage"
	"github.com/whatleads/campaignd/internal/storage/model"
)

var (
	ErrInvalidName     = errors.New("nome da campanha inválido")
	ErrEmptyMessage    = errors.New("mensagem da campanha não pode ser vazia")
	ErrInvalidDelay    = errors.New("delay mínimo deve ser menor que o máximo")
	ErrDelayOutOfRange = errors.New("delays devem estar dentro dos limites configurados")
	ErrNoInstanceSet   = errors.New("campanha sem rodízio exige instância fixa")
	ErrNoLeads         = errors.New("campanha sem leads importados")
	ErrRunActive       = errors.New("campanha possui execução ativa")
)

// DelayBounds delimita os delays aceitos na criação de campanhas, em segundos.
type DelayBounds struct {
	Min int
	Max int
}

type Service struct {
	repo     storage.CampaignRepository
	leadRepo storage.LeadRepository
	manager  *dispatch.Manager
	reporter *dispatch.Reporter
	bounds   DelayBounds
}

func NewService(repo storage.CampaignRepository, leadRepo storage.LeadRepository, manager *dispatch.Manager, reporter *dispatch.Reporter, bounds DelayBounds) *Service {
	return &Service{repo: repo, leadRepo: leadRepo, manager: manager, reporter: reporter, bounds: bounds}
}

type CreateInput struct {
	Name            string
	OwnerUserID     string
	Message         string
	MediaURL        string
	InstanceID      string
	UseRotation     bool
	MinDelaySeconds int
	MaxDelaySeconds int
}

func (s *Service) Create(ctx context.Context, input CreateInput) (model.Campaign, error) {
	if strings.TrimSpace(input.Name) == "" {
		return model.Campaign{}, ErrInvalidName
	}
	if strings.TrimSpace(input.Message) == "" {
		return model.Campaign{}, ErrEmptyMessage
	}
	if err := s.validateDelays(input.MinDelaySeconds, input.MaxDelaySeconds); err != nil {
		return model.Campaign{}, err
	}
	if !input.UseRotation && strings.TrimSpace(input.InstanceID) == "" {
		return model.Campaign{}, ErrNoInstanceSet
	}

	campaign := model.Campaign{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(input.Name),
		OwnerUserID:     input.OwnerUserID,
		Message:         input.Message,
		MediaURL:        strings.TrimSpace(input.MediaURL),
		InstanceID:      strings.TrimSpace(input.InstanceID),
		UseRotation:     input.UseRotation,
		MinDelaySeconds: input.MinDelaySeconds,
		MaxDelaySeconds: input.MaxDelaySeconds,
	}
	return s.repo.Create(ctx, campaign)
}

func (s *Service) validateDelays(minDelay, maxDelay int) error {
	if minDelay < s.bounds.Min || maxDelay > s.bounds.Max {
		return fmt.Errorf("%w (%d a %d segundos)", ErrDelayOutOfRange, s.bounds.Min, s.bounds.Max)
	}
	if minDelay >= maxDelay {
		return ErrInvalidDelay
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Campaign, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByUser(ctx context.Context, id, userID, userRole string) (model.Campaign, error) {
	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return model.Campaign{}, err
	}
	if userRole != "admin" && campaign.OwnerUserID != userID {
		return model.Campaign{}, storage.ErrNotFound
	}
	return campaign, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]model.Campaign, error) {
	return s.repo.ListByOwner(ctx, userID)
}

type UpdateInput struct {
	Name            string
	Message         string
	MediaURL        string
	InstanceID      string
	UseRotation     bool
	MinDelaySeconds int
	MaxDelaySeconds int
}

func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (model.Campaign, error) {
	if s.manager.Running(id) {
		return model.Campaign{}, ErrRunActive
	}

	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return model.Campaign{}, err
	}

	if strings.TrimSpace(input.Name) == "" {
		return model.Campaign{}, ErrInvalidName
	}
	if strings.TrimSpace(input.Message) == "" {
		return model.Campaign{}, ErrEmptyMessage
	}
	if err := s.validateDelays(input.MinDelaySeconds, input.MaxDelaySeconds); err != nil {
		return model.Campaign{}, err
	}
	if !input.UseRotation && strings.TrimSpace(input.InstanceID) == "" {
		return model.Campaign{}, ErrNoInstanceSet
	}

	campaign.Name = strings.TrimSpace(input.Name)
	campaign.Message = input.Message
	campaign.MediaURL = strings.TrimSpace(input.MediaURL)
	campaign.InstanceID = strings.TrimSpace(input.InstanceID)
	campaign.UseRotation = input.UseRotation
	campaign.MinDelaySeconds = input.MinDelaySeconds
	campaign.MaxDelaySeconds = input.MaxDelaySeconds

	return s.repo.Update(ctx, campaign)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if s.manager.Running(id) {
		return ErrRunActive
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.leadRepo.DeleteByCampaign(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// LeadInput é uma linha da importação de leads.
type LeadInput struct {
	Phone   string
	Name    string
	Segment string
}

// ImportLeads substitui a lista de leads da campanha preservando a ordem do
// arquivo importado.
func (s *Service) ImportLeads(ctx context.Context, campaignID string, inputs []LeadInput) (int, error) {
	if s.manager.Running(campaignID) {
		return 0, ErrRunActive
	}
	if _, err := s.repo.GetByID(ctx, campaignID); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	leads := make([]model.Lead, 0, len(inputs))
	position := 0
	for _, in := range inputs {
		phone := sanitizePhone(in.Phone)
		if phone == "" {
			continue
		}
		leads = append(leads, model.Lead{
			ID:         uuid.NewString(),
			CampaignID: campaignID,
			Phone:      phone,
			Name:       strings.TrimSpace(in.Name),
			Segment:    strings.TrimSpace(in.Segment),
			Position:   position,
			CreatedAt:  now,
		})
		position++
	}
	if len(leads) == 0 {
		return 0, ErrNoLeads
	}

	if err := s.leadRepo.DeleteByCampaign(ctx, campaignID); err != nil {
		return 0, err
	}
	return s.leadRepo.BulkCreate(ctx, leads)
}

func sanitizePhone(phone string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(phone) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 8 {
		return ""
	}
	return digits
}

// Start inicia uma execução da campanha, opcionalmente filtrada por segmento.
func (s *Service) Start(ctx context.Context, campaignID, segment string) (model.CampaignRun, error) {
	campaign, err := s.repo.GetByID(ctx, campaignID)
	if err != nil {
		return model.CampaignRun{}, err
	}
	return s.manager.Start(ctx, campaign, segment)
}

func (s *Service) Pause(ctx context.Context, campaignID string) error {
	return s.manager.Pause(ctx, campaignID)
}

func (s *Service) Resume(ctx context.Context, campaignID string) error {
	campaign, err := s.repo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	return s.manager.Resume(ctx, campaign)
}

func (s *Service) Cancel(ctx context.Context, campaignID string) error {
	return s.manager.Cancel(ctx, campaignID)
}

// Progress devolve o snapshot da última execução da campanha.
func (s *Service) Progress(ctx context.Context, campaignID string) (dispatch.Snapshot, error) {
	if _, err := s.repo.GetByID(ctx, campaignID); err != nil {
		return dispatch.Snapshot{}, err
	}
	return s.reporter.Snapshot(ctx, campaignID)
}
