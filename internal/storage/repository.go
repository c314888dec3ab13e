package storage

import (
	"context"

	"github.com/whatleads/campaignd/internal/storage/model"
)

// ErrNotFound reexporta o sentinela dos drivers. É o mesmo valor de
// model.ErrNotFound, então errors.Is funciona com qualquer um dos dois.
var ErrNotFound = model.ErrNotFound

type InstanceRepository interface {
	Create(ctx context.Context, instance model.Instance) (model.Instance, error)
	GetByID(ctx context.Context, id string) (model.Instance, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (model.Instance, error)
	List(ctx context.Context) ([]model.Instance, error)
	ListByOwner(ctx context.Context, ownerUserID string) ([]model.Instance, error)
	Update(ctx context.Context, instance model.Instance) (model.Instance, error)
	Delete(ctx context.Context, id string) error
}

type CampaignRepository interface {
	Create(ctx context.Context, campaign model.Campaign) (model.Campaign, error)
	GetByID(ctx context.Context, id string) (model.Campaign, error)
	ListByOwner(ctx context.Context, ownerUserID string) ([]model.Campaign, error)
	Update(ctx context.Context, campaign model.Campaign) (model.Campaign, error)
	Delete(ctx context.Context, id string) error
}

type RotationRepository interface {
	CreatePolicy(ctx context.Context, policy model.RotationPolicy, usages []model.InstanceUsage) (model.RotationPolicy, error)
	GetPolicy(ctx context.Context, campaignID string) (model.RotationPolicy, error)
	UpdatePolicy(ctx context.Context, policy model.RotationPolicy) (model.RotationPolicy, error)
	DeletePolicy(ctx context.Context, campaignID string) error

	ListUsages(ctx context.Context, campaignID string) ([]model.InstanceUsage, error)
	AddUsage(ctx context.Context, usage model.InstanceUsage) error
	RemoveUsage(ctx context.Context, campaignID, instanceID string) error
	UpdateUsage(ctx context.Context, usage model.InstanceUsage) error
	ResetUsages(ctx context.Context, campaignID string) error
}

type LeadRepository interface {
	BulkCreate(ctx context.Context, leads []model.Lead) (int, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]model.Lead, error)
	ListBySegment(ctx context.Context, campaignID, segment string) ([]model.Lead, error)
	CountByCampaign(ctx context.Context, campaignID string) (int, error)
	DeleteByCampaign(ctx context.Context, campaignID string) error
}

type RunRepository interface {
	Create(ctx context.Context, run model.CampaignRun) (model.CampaignRun, error)
	GetByID(ctx context.Context, id string) (model.CampaignRun, error)
	GetLatestByCampaign(ctx context.Context, campaignID string) (model.CampaignRun, error)
	// Update persiste o estado da passada. Não escreve delivered_count nem
	// read_count: esses contadores pertencem a IncrementReceipts, senão o
	// runner sobrescreveria recibos aplicados em paralelo pelo stats worker.
	Update(ctx context.Context, run model.CampaignRun) (model.CampaignRun, error)
	// IncrementReceipts soma atomicamente os contadores de recibo no banco.
	IncrementReceipts(ctx context.Context, runID string, delivered, read int) error
}

type UserRepository interface {
	Create(ctx context.Context, user model.User) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	List(ctx context.Context) ([]model.User, error)
	Delete(ctx context.Context, id string) error
}
