package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/whatleads/campaignd/internal/storage"
	"github.com/whatleads/campaignd/internal/storage/model"
)

// Connectivity responde se a instância tem cliente vivo e logado.
type Connectivity interface {
	IsConnected(instanceID string) bool
}

// Watchdog reconcilia periodicamente o status persistido das instâncias com a
// conectividade real, corrigindo divergências deixadas por quedas abruptas.
type Watchdog struct {
	repo     storage.InstanceRepository
	probe    Connectivity
	log      *zap.Logger
	interval time.Duration
}

func NewWatchdog(repo storage.InstanceRepository, probe Connectivity, log *zap.Logger, interval time.Duration) *Watchdog {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watchdog{repo: repo, probe: probe, log: log, interval: interval}
}

func (w *Watchdog) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reconcile(ctx)
		}
	}
}

func (w *Watchdog) reconcile(ctx context.Context) {
	instances, err := w.repo.List(ctx)
	if err != nil {
		w.log.Error("watchdog: erro ao listar instâncias", zap.Error(err))
		return
	}

	for _, inst := range instances {
		live := w.probe.IsConnected(inst.ID)
		switch {
		case live && inst.Status != model.InstanceStatusConnected:
			w.log.Info("watchdog: instância reconectada", zap.String("instance", inst.ID))
			inst.Status = model.InstanceStatusConnected
			if inst.ConnectedAt == nil {
				now := time.Now().UTC()
				inst.ConnectedAt = &now
			}
			if _, err := w.repo.Update(ctx, inst); err != nil {
				w.log.Warn("watchdog: erro ao atualizar status", zap.String("instance", inst.ID), zap.Error(err))
			}
		case !live && inst.Status == model.InstanceStatusConnected:
			w.log.Warn("watchdog: instância sem conexão viva", zap.String("instance", inst.ID))
			inst.Status = model.InstanceStatusDisconnected
			if _, err := w.repo.Update(ctx, inst); err != nil {
				w.log.Warn("watchdog: erro ao atualizar status", zap.String("instance", inst.ID), zap.Error(err))
			}
		}
	}
}
