package instance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/whatleads/campaignd/internal/storage"
	"github.com/whatleads/campaignd/internal/storage/model"
)

var ErrInvalidName = errors.New("nome da instância inválido")

type Service struct {
	repo    storage.InstanceRepository
	session SessionManager
}

type SessionManager interface {
	CreateSession(ctx context.Context, instanceID string) (string, error)
	GetQR(ctx context.Context, instanceID string) (string, error)
	Disconnect(instanceID string) error
	DeleteSession(instanceID string) error
	IsConnected(instanceID string) bool
}

func NewService(repo storage.InstanceRepository) *Service {
	return &Service{repo: repo}
}

func NewServiceWithSession(repo storage.InstanceRepository, session SessionManager) *Service {
	return &Service{repo: repo, session: session}
}

type CreateInput struct {
	Name        string
	OwnerUserID string
}

// Info agrega a instância com os indicadores de aquecimento calculados no
// momento da leitura.
type Info struct {
	model.Instance
	WarmupScore       int  `json:"warmupScore"`
	WarmupRecommended bool `json:"warmupRecommended"`
	ConnectedNow      bool `json:"connectedNow"`
}

func (s *Service) Create(ctx context.Context, input CreateInput) (model.Instance, string, error) {
	if strings.TrimSpace(input.Name) == "" {
		return model.Instance{}, "", ErrInvalidName
	}

	plainToken := uuid.NewString()
	hashBytes := sha256.Sum256([]byte(plainToken))
	hash := hex.EncodeToString(hashBytes[:])
	now := time.Now().UTC()

	instance := model.Instance{
		ID:             uuid.NewString(),
		Name:           strings.TrimSpace(input.Name),
		OwnerUserID:    input.OwnerUserID,
		TokenHash:      hash,
		TokenUpdatedAt: &now,
		Status:         model.InstanceStatusDisconnected,
	}
	created, err := s.repo.Create(ctx, instance)
	if err != nil {
		return model.Instance{}, "", err
	}

	return created, plainToken, nil
}

func (s *Service) List(ctx context.Context) ([]model.Instance, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListByUser(ctx context.Context, userID string, userRole string) ([]Info, error) {
	var (
		instances []model.Instance
		err       error
	)
	if userRole == "admin" {
		instances, err = s.repo.List(ctx)
	} else {
		instances, err = s.repo.ListByOwner(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	infos := make([]Info, 0, len(instances))
	for _, inst := range instances {
		infos = append(infos, s.describe(inst, now))
	}
	return infos, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Instance, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByUser(ctx context.Context, id string, userID string, userRole string) (Info, error) {
	instance, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Info{}, err
	}

	if userRole != "admin" && instance.OwnerUserID != userID {
		return Info{}, storage.ErrNotFound
	}

	return s.describe(instance, time.Now()), nil
}

func (s *Service) describe(inst model.Instance, now time.Time) Info {
	connected := inst.Status == model.InstanceStatusConnected
	if s.session != nil {
		connected = s.session.IsConnected(inst.ID)
	}
	return Info{
		Instance:          inst,
		WarmupScore:       inst.WarmupScore(now),
		WarmupRecommended: inst.WarmupRecommended(now),
		ConnectedNow:      connected,
	}
}

func (s *Service) Rename(ctx context.Context, id string, name string) (model.Instance, error) {
	inst, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return model.Instance{}, err
	}
	if strings.TrimSpace(name) == "" {
		return model.Instance{}, ErrInvalidName
	}
	inst.Name = strings.TrimSpace(name)
	return s.repo.Update(ctx, inst)
}

// UpdateStatus registra a transição de conectividade. ConnectedAt só é
// preenchido na primeira conexão para não zerar o aquecimento a cada
// reconexão.
func (s *Service) UpdateStatus(ctx context.Context, id string, status model.InstanceStatus) (model.Instance, error) {
	instance, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return model.Instance{}, err
	}
	instance.Status = status
	if status == model.InstanceStatusConnected && instance.ConnectedAt == nil {
		now := time.Now().UTC()
		instance.ConnectedAt = &now
	}
	return s.repo.Update(ctx, instance)
}

func (s *Service) Connect(ctx context.Context, id string) (string, error) {
	if s.session == nil {
		return "", errors.New("session manager não configurado")
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return "", err
	}
	return s.session.CreateSession(ctx, id)
}

func (s *Service) GetQR(ctx context.Context, id string) (string, error) {
	if s.session == nil {
		return "", errors.New("session manager não configurado")
	}

	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return "", err
	}

	return s.session.GetQR(ctx, id)
}

func (s *Service) IsConnected(instanceID string) bool {
	if s.session == nil {
		return false
	}
	return s.session.IsConnected(instanceID)
}

func (s *Service) Disconnect(ctx context.Context, id string) error {
	if s.session == nil {
		return errors.New("session manager não configurado")
	}
	if err := s.session.Disconnect(id); err != nil {
		return err
	}
	_, err := s.UpdateStatus(ctx, id, model.InstanceStatusDisconnected)
	return err
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}

	if s.session != nil {
		_ = s.session.DeleteSession(id)
	}

	return s.repo.Delete(ctx, id)
}

func (s *Service) RotateToken(ctx context.Context, id string) (string, error) {
	inst, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	plain := uuid.NewString()
	hashBytes := sha256.Sum256([]byte(plain))
	hash := hex.EncodeToString(hashBytes[:])
	now := time.Now().UTC()
	inst.TokenHash = hash
	inst.TokenUpdatedAt = &now
	if _, err := s.repo.Update(ctx, inst); err != nil {
		return "", err
	}
	return plain, nil
}
