package dispatch

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/whatleads/campaignd/internal/rotation"
	"github.com/whatleads/campaignd/internal/storage"
	"github.com/whatleads/campaignd/internal/storage/model"
)

type command int

const (
	cmdPause command = iota
	cmdResume
	cmdCancel
)

// Runner executa uma passada de disparo de uma campanha, estritamente
// sequencial: o jitter entre mensagens é o próprio mecanismo de throttling,
// então nunca há dois envios simultâneos da mesma campanha.
type Runner struct {
	run      model.CampaignRun
	campaign model.Campaign
	leads    []model.Lead

	runRepo      storage.RunRepository
	rotationRepo storage.RotationRepository
	selector     *rotation.Selector
	connected    rotation.ConnectivityFunc
	sender       Sender
	tracker      *Tracker
	log          *zap.Logger

	maxRetries int
	rng        *rand.Rand
	ctrl       chan command
	done       chan struct{}
	onFinish   func(campaignID string)
}

func (r *Runner) start(ctx context.Context) {
	go r.loop(ctx)
}

// Done fecha quando o runner encerra, em qualquer estado terminal.
func (r *Runner) Done() <-chan struct{} { return r.done }

func (r *Runner) command(cmd command) {
	select {
	case r.ctrl <- cmd:
	case <-r.done:
	}
}

type sendResult int

const (
	sendAdvanced sendResult = iota // sucesso ou falha definitiva: cursor avançou
	sendExhausted                  // exaustão de instâncias: lead refileirado no cursor atual
)

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)
	if r.onFinish != nil {
		defer r.onFinish(r.campaign.ID)
	}

	r.log.Info("disparo iniciado",
		zap.String("campaign_id", r.campaign.ID),
		zap.String("run_id", r.run.ID),
		zap.Int("total_leads", len(r.leads)),
		zap.Bool("rotation", r.campaign.UseRotation),
	)

	for r.run.Cursor < len(r.leads) {
		if !r.checkpoint(ctx) {
			return
		}

		instanceID, err := r.pickInstance(ctx)
		if err != nil {
			if errors.Is(err, rotation.ErrNoEligibleInstance) {
				// Exaustão transitória pausa a campanha inteira; continuar
				// quebraria a equidade da estratégia escolhida.
				r.pause(ctx, model.PauseReasonNoEligible)
				if !r.awaitResume(ctx) {
					return
				}
				continue
			}
			r.finish(ctx, model.RunStatusFailed)
			r.log.Error("disparo abortado", zap.String("run_id", r.run.ID), zap.Error(err))
			return
		}

		switch r.sendCurrent(ctx, instanceID) {
		case sendExhausted:
			r.pause(ctx, model.PauseReasonRateCeiling)
			if !r.awaitResume(ctx) {
				return
			}
			continue
		}

		if r.run.Cursor >= len(r.leads) {
			break
		}
		if !r.jitterWait(ctx) {
			return
		}
	}

	r.finish(ctx, model.RunStatusCompleted)
	r.log.Info("disparo concluído",
		zap.String("run_id", r.run.ID),
		zap.Int("sent", r.run.SentCount),
		zap.Int("failed", r.run.FailedCount),
	)
}

// sendCurrent entrega o lead do cursor atual com re-seleção de instância a
// cada tentativa. Falha transitória persistente vira failedCount e o cursor
// avança; exaustão de instâncias no meio das tentativas refileira o lead.
func (r *Runner) sendCurrent(ctx context.Context, instanceID string) sendResult {
	lead := r.leads[r.run.Cursor]

	for attempt := 1; ; attempt++ {
		messageID, err := r.sender.Send(ctx, instanceID, lead, r.campaign)
		if err == nil {
			r.recordSuccess(ctx, instanceID, messageID)
			return sendAdvanced
		}

		r.log.Warn("falha de envio",
			zap.String("run_id", r.run.ID),
			zap.String("instance_id", instanceID),
			zap.String("lead_id", lead.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt >= r.maxRetries {
			r.run.FailedCount++
			r.run.Cursor++
			r.saveRun(ctx)
			return sendAdvanced
		}

		next, err := r.pickInstance(ctx)
		if err != nil {
			if errors.Is(err, rotation.ErrNoEligibleInstance) {
				return sendExhausted
			}
			// erro de infraestrutura na re-seleção: mantém a instância
			// anterior em vez de queimar uma tentativa com ID vazio
			r.log.Warn("erro ao re-selecionar instância",
				zap.String("run_id", r.run.ID), zap.Error(err))
			continue
		}
		instanceID = next
	}
}

func (r *Runner) pickInstance(ctx context.Context) (string, error) {
	if !r.campaign.UseRotation {
		if r.connected != nil && !r.connected(r.campaign.InstanceID) {
			return "", rotation.ErrNoEligibleInstance
		}
		return r.campaign.InstanceID, nil
	}
	policy, err := r.rotationRepo.GetPolicy(ctx, r.campaign.ID)
	if err != nil {
		return "", err
	}
	usages, err := r.rotationRepo.ListUsages(ctx, r.campaign.ID)
	if err != nil {
		return "", err
	}
	return r.selector.Next(policy, usages)
}

func (r *Runner) recordSuccess(ctx context.Context, instanceID, messageID string) {
	now := time.Now().UTC()

	if r.campaign.UseRotation {
		usages, err := r.rotationRepo.ListUsages(ctx, r.campaign.ID)
		if err == nil {
			for _, u := range usages {
				if u.InstanceID != instanceID {
					continue
				}
				u.MessagesSent++
				u.LastUsedAt = &now
				if err := r.rotationRepo.UpdateUsage(ctx, u); err != nil {
					r.log.Warn("erro ao atualizar contador de uso",
						zap.String("instance_id", instanceID), zap.Error(err))
				}
				break
			}
		}
	}

	if r.tracker != nil && messageID != "" {
		r.tracker.Track(messageID, r.run.ID)
	}

	r.run.SentCount++
	r.run.Cursor++
	r.saveRun(ctx)
}

// checkpoint drena comandos pendentes antes de iniciar o próximo envio.
// Retorna false quando o runner deve encerrar.
func (r *Runner) checkpoint(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		r.pause(context.Background(), "shutdown")
		return false
	case cmd := <-r.ctrl:
		switch cmd {
		case cmdCancel:
			r.finish(ctx, model.RunStatusCancelled)
			return false
		case cmdPause:
			r.pause(ctx, model.PauseReasonOperator)
			return r.awaitResume(ctx)
		}
		return true
	default:
		return true
	}
}

// awaitResume bloqueia até resume ou cancel. Retorna false quando o runner
// deve encerrar.
func (r *Runner) awaitResume(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case cmd := <-r.ctrl:
			switch cmd {
			case cmdResume:
				r.run.Status = model.RunStatusRunning
				r.run.PauseReason = ""
				r.saveRun(ctx)
				r.log.Info("disparo retomado", zap.String("run_id", r.run.ID))
				return true
			case cmdCancel:
				r.finish(ctx, model.RunStatusCancelled)
				return false
			}
		}
	}
}

// jitterWait dorme um intervalo uniforme em [minDelay, maxDelay] segundos.
// O atraso aleatório é medida anti-detecção deliberada, nunca encurtado nem
// determinístico. Timer cancelável: pause/cancel valem durante a espera.
func (r *Runner) jitterWait(ctx context.Context) bool {
	minMs := r.run.MinDelaySeconds * 1000
	maxMs := r.run.MaxDelaySeconds * 1000
	span := maxMs - minMs
	d := time.Duration(minMs) * time.Millisecond
	if span > 0 {
		d = time.Duration(minMs+r.rng.Intn(span+1)) * time.Millisecond
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		r.pause(context.Background(), "shutdown")
		return false
	case cmd := <-r.ctrl:
		switch cmd {
		case cmdCancel:
			r.finish(ctx, model.RunStatusCancelled)
			return false
		case cmdPause:
			r.pause(ctx, model.PauseReasonOperator)
			return r.awaitResume(ctx)
		}
		return true
	}
}

func (r *Runner) pause(ctx context.Context, reason string) {
	r.run.Status = model.RunStatusPaused
	r.run.PauseReason = reason
	r.saveRun(ctx)
	r.log.Info("disparo pausado",
		zap.String("run_id", r.run.ID),
		zap.String("reason", reason),
	)
}

func (r *Runner) finish(ctx context.Context, status model.RunStatus) {
	now := time.Now().UTC()
	r.run.Status = status
	r.run.PauseReason = ""
	r.run.FinishedAt = &now
	r.saveRun(ctx)
}

func (r *Runner) saveRun(ctx context.Context) {
	r.run.UpdatedAt = time.Now().UTC()
	if _, err := r.runRepo.Update(ctx, r.run); err != nil {
		r.log.Error("erro ao persistir estado do disparo",
			zap.String("run_id", r.run.ID), zap.Error(err))
	}
}
