package rotation

import (
	"context"
	"errors"
	"time"

	"github.com/whatleads/campaignd/internal/storage"
	"github.com/whatleads/campaignd/internal/storage/model"
)

// RunChecker informa se existe disparo ativo para a campanha. Implementado
// pelo dispatch manager; zerar contadores e excluir a política são rejeitados
// enquanto o scheduler estiver rodando.
type RunChecker interface {
	Running(campaignID string) bool
}

// Service gerencia as políticas de rodízio e seus contadores de uso.
// Toda validação acontece antes de qualquer mutação: erro de configuração
// nunca é aplicado parcialmente.
type Service struct {
	repo         storage.RotationRepository
	instanceRepo storage.InstanceRepository
	runs         RunChecker
	selector     *Selector
}

func NewService(repo storage.RotationRepository, instanceRepo storage.InstanceRepository, runs RunChecker, selector *Selector) *Service {
	return &Service{repo: repo, instanceRepo: instanceRepo, runs: runs, selector: selector}
}

type ConfigureInput struct {
	CampaignID     string
	InstanceIDs    []string
	Strategy       model.RotationStrategy
	MaxPerInstance int
}

// Configure cria a política da campanha ou, se já existir, atualiza
// estratégia/limite e reconcilia a lista de instâncias preservando os
// contadores das que permanecem.
func (s *Service) Configure(ctx context.Context, input ConfigureInput) (model.RotationPolicy, []model.InstanceUsage, error) {
	if err := s.validateInput(ctx, input); err != nil {
		return model.RotationPolicy{}, nil, err
	}

	existing, err := s.repo.GetPolicy(ctx, input.CampaignID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return s.create(ctx, input)
	case err != nil:
		return model.RotationPolicy{}, nil, err
	}

	return s.reconcile(ctx, existing, input)
}

func (s *Service) validateInput(ctx context.Context, input ConfigureInput) error {
	if len(input.InstanceIDs) == 0 {
		return ErrNoInstances
	}
	if !input.Strategy.Valid() {
		return ErrInvalidStrategy
	}
	if input.MaxPerInstance < 0 {
		return ErrInvalidCap
	}
	seen := make(map[string]struct{}, len(input.InstanceIDs))
	for _, id := range input.InstanceIDs {
		if _, dup := seen[id]; dup {
			return ErrDuplicateInstance
		}
		seen[id] = struct{}{}

		inst, err := s.instanceRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if inst.Status != model.InstanceStatusConnected {
			return ErrInstanceNotConnected
		}
	}
	return nil
}

func (s *Service) create(ctx context.Context, input ConfigureInput) (model.RotationPolicy, []model.InstanceUsage, error) {
	now := time.Now().UTC()
	policy := model.RotationPolicy{
		CampaignID:     input.CampaignID,
		Strategy:       input.Strategy,
		MaxPerInstance: input.MaxPerInstance,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	usages := make([]model.InstanceUsage, 0, len(input.InstanceIDs))
	for i, id := range input.InstanceIDs {
		usages = append(usages, model.InstanceUsage{
			CampaignID: input.CampaignID,
			InstanceID: id,
			Position:   i,
			IsActive:   true,
		})
	}
	created, err := s.repo.CreatePolicy(ctx, policy, usages)
	if err != nil {
		return model.RotationPolicy{}, nil, err
	}
	return created, usages, nil
}

func (s *Service) reconcile(ctx context.Context, policy model.RotationPolicy, input ConfigureInput) (model.RotationPolicy, []model.InstanceUsage, error) {
	policy.Strategy = input.Strategy
	policy.MaxPerInstance = input.MaxPerInstance
	policy.UpdatedAt = time.Now().UTC()
	if _, err := s.repo.UpdatePolicy(ctx, policy); err != nil {
		return model.RotationPolicy{}, nil, err
	}

	current, err := s.repo.ListUsages(ctx, policy.CampaignID)
	if err != nil {
		return model.RotationPolicy{}, nil, err
	}

	wanted := make(map[string]struct{}, len(input.InstanceIDs))
	for _, id := range input.InstanceIDs {
		wanted[id] = struct{}{}
	}
	have := make(map[string]struct{}, len(current))
	nextPos := 0
	for _, u := range current {
		have[u.InstanceID] = struct{}{}
		if u.Position >= nextPos {
			nextPos = u.Position + 1
		}
	}

	for _, u := range current {
		if _, keep := wanted[u.InstanceID]; !keep {
			if err := s.repo.RemoveUsage(ctx, policy.CampaignID, u.InstanceID); err != nil {
				return model.RotationPolicy{}, nil, err
			}
		}
	}
	for _, id := range input.InstanceIDs {
		if _, exists := have[id]; exists {
			continue
		}
		usage := model.InstanceUsage{
			CampaignID: policy.CampaignID,
			InstanceID: id,
			Position:   nextPos,
			IsActive:   true,
		}
		nextPos++
		if err := s.repo.AddUsage(ctx, usage); err != nil {
			return model.RotationPolicy{}, nil, err
		}
	}

	usages, err := s.repo.ListUsages(ctx, policy.CampaignID)
	if err != nil {
		return model.RotationPolicy{}, nil, err
	}
	return policy, usages, nil
}

// Get retorna a política e os contadores de uso da campanha.
func (s *Service) Get(ctx context.Context, campaignID string) (model.RotationPolicy, []model.InstanceUsage, error) {
	policy, err := s.repo.GetPolicy(ctx, campaignID)
	if err != nil {
		return model.RotationPolicy{}, nil, err
	}
	usages, err := s.repo.ListUsages(ctx, campaignID)
	if err != nil {
		return model.RotationPolicy{}, nil, err
	}
	return policy, usages, nil
}

// AddInstance acrescenta uma instância conectada à política. Idempotente:
// adicionar uma instância já presente não é erro.
func (s *Service) AddInstance(ctx context.Context, campaignID, instanceID string) error {
	if _, err := s.repo.GetPolicy(ctx, campaignID); err != nil {
		return err
	}
	inst, err := s.instanceRepo.GetByID(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status != model.InstanceStatusConnected {
		return ErrInstanceNotConnected
	}

	usages, err := s.repo.ListUsages(ctx, campaignID)
	if err != nil {
		return err
	}
	nextPos := 0
	for _, u := range usages {
		if u.InstanceID == instanceID {
			return nil
		}
		if u.Position >= nextPos {
			nextPos = u.Position + 1
		}
	}
	return s.repo.AddUsage(ctx, model.InstanceUsage{
		CampaignID: campaignID,
		InstanceID: instanceID,
		Position:   nextPos,
		IsActive:   true,
	})
}

// RemoveInstance retira uma instância da política. Idempotente para IDs
// ausentes; remover a última instância falha: a política ativa precisa de
// pelo menos uma, esvaziar exige desativar o rodízio inteiro.
func (s *Service) RemoveInstance(ctx context.Context, campaignID, instanceID string) error {
	if _, err := s.repo.GetPolicy(ctx, campaignID); err != nil {
		return err
	}
	usages, err := s.repo.ListUsages(ctx, campaignID)
	if err != nil {
		return err
	}
	present := false
	for _, u := range usages {
		if u.InstanceID == instanceID {
			present = true
			break
		}
	}
	if !present {
		return nil
	}
	if len(usages) == 1 {
		return ErrLastInstance
	}
	return s.repo.RemoveUsage(ctx, campaignID, instanceID)
}

// SetStrategy troca a estratégia sem mexer em contadores.
func (s *Service) SetStrategy(ctx context.Context, campaignID string, strategy model.RotationStrategy) error {
	if !strategy.Valid() {
		return ErrInvalidStrategy
	}
	policy, err := s.repo.GetPolicy(ctx, campaignID)
	if err != nil {
		return err
	}
	policy.Strategy = strategy
	policy.UpdatedAt = time.Now().UTC()
	_, err = s.repo.UpdatePolicy(ctx, policy)
	return err
}

// ToggleInstanceActive liga/desliga uma instância sem removê-la da política.
// Idempotente.
func (s *Service) ToggleInstanceActive(ctx context.Context, campaignID, instanceID string, active bool) error {
	usages, err := s.repo.ListUsages(ctx, campaignID)
	if err != nil {
		return err
	}
	for _, u := range usages {
		if u.InstanceID != instanceID {
			continue
		}
		if u.IsActive == active {
			return nil
		}
		u.IsActive = active
		return s.repo.UpdateUsage(ctx, u)
	}
	return storage.ErrNotFound
}

// ResetCounters zera todos os contadores e limpa last_used_at. Não altera
// flags de ativação nem a composição da política. Operação de configuração:
// rejeitada com disparo em andamento.
func (s *Service) ResetCounters(ctx context.Context, campaignID string) error {
	if s.runs != nil && s.runs.Running(campaignID) {
		return ErrRunActive
	}
	if _, err := s.repo.GetPolicy(ctx, campaignID); err != nil {
		return err
	}
	if err := s.repo.ResetUsages(ctx, campaignID); err != nil {
		return err
	}
	if s.selector != nil {
		s.selector.ResetCursor(campaignID)
	}
	return nil
}

// Delete desativa o rodízio da campanha por completo (volta ao envio fixo).
func (s *Service) Delete(ctx context.Context, campaignID string) error {
	if s.runs != nil && s.runs.Running(campaignID) {
		return ErrRunActive
	}
	if err := s.repo.DeletePolicy(ctx, campaignID); err != nil {
		return err
	}
	if s.selector != nil {
		s.selector.ResetCursor(campaignID)
	}
	return nil
}
