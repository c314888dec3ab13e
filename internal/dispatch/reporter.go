package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/whatleads/campaignd/internal/storage"
	"github.com/whatleads/campaignd/internal/storage/model"
)

// Snapshot é a projeção de progresso consumida pelo polling externo.
type Snapshot struct {
	RunID          string                `json:"runId"`
	CampaignID     string                `json:"campaignId"`
	Status         model.RunStatus       `json:"status"`
	PauseReason    string                `json:"pauseReason,omitempty"`
	TotalLeads     int                   `json:"totalLeads"`
	SentCount      int                   `json:"sentCount"`
	DeliveredCount int                   `json:"deliveredCount"`
	ReadCount      int                   `json:"readCount"`
	FailedCount    int                   `json:"failedCount"`
	PerInstance    []model.InstanceUsage `json:"perInstanceUsage"`
	StartedAt      time.Time             `json:"startedAt"`
	FinishedAt     *time.Time            `json:"finishedAt,omitempty"`
}

// Reporter deriva estatísticas agregadas do estado persistido do disparo.
// Leitura pura: pode ser chamado em qualquer frequência sem efeito colateral.
type Reporter struct {
	runRepo      storage.RunRepository
	rotationRepo storage.RotationRepository
}

func NewReporter(runRepo storage.RunRepository, rotationRepo storage.RotationRepository) *Reporter {
	return &Reporter{runRepo: runRepo, rotationRepo: rotationRepo}
}

// Snapshot retorna o progresso da última passada da campanha. Propaga
// storage.ErrNotFound quando a campanha nunca disparou.
func (r *Reporter) Snapshot(ctx context.Context, campaignID string) (Snapshot, error) {
	run, err := r.runRepo.GetLatestByCampaign(ctx, campaignID)
	if err != nil {
		return Snapshot{}, err
	}

	usages, err := r.rotationRepo.ListUsages(ctx, campaignID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Snapshot{}, err
	}

	return Snapshot{
		RunID:          run.ID,
		CampaignID:     run.CampaignID,
		Status:         run.Status,
		PauseReason:    run.PauseReason,
		TotalLeads:     run.TotalLeads,
		SentCount:      run.SentCount,
		DeliveredCount: run.DeliveredCount,
		ReadCount:      run.ReadCount,
		FailedCount:    run.FailedCount,
		PerInstance:    usages,
		StartedAt:      run.StartedAt,
		FinishedAt:     run.FinishedAt,
	}, nil
}
