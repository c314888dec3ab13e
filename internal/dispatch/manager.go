package dispatch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/whatleads/campaignd/internal/rotation"
	"github.com/whatleads/campaignd/internal/storage"
	"github.com/whatleads/campaignd/internal/storage/model"
)

// Manager mantém no máximo um scheduler ativo por campanha. É esse
// invariante que dispensa locking extra nos contadores de uso: só o caminho
// de execução do runner os incrementa.
type Manager struct {
	runRepo      storage.RunRepository
	leadRepo     storage.LeadRepository
	rotationRepo storage.RotationRepository
	selector     *rotation.Selector
	connected    rotation.ConnectivityFunc
	sender       Sender
	tracker      *Tracker
	log          *zap.Logger

	maxRetries int
	seed       int64

	// baseCtx desacopla a vida dos runners do contexto da requisição que os
	// iniciou; só o Shutdown o cancela.
	baseCtx context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	runners map[string]*Runner
}

type ManagerOptions struct {
	RunRepo      storage.RunRepository
	LeadRepo     storage.LeadRepository
	RotationRepo storage.RotationRepository
	Selector     *rotation.Selector
	Connected    rotation.ConnectivityFunc
	Sender       Sender
	Tracker      *Tracker
	Logger       *zap.Logger
	MaxRetries   int
	Seed         int64
}

func NewManager(opts ManagerOptions) *Manager {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	baseCtx, stop := context.WithCancel(context.Background())
	return &Manager{
		runRepo:      opts.RunRepo,
		leadRepo:     opts.LeadRepo,
		rotationRepo: opts.RotationRepo,
		selector:     opts.Selector,
		connected:    opts.Connected,
		sender:       opts.Sender,
		tracker:      opts.Tracker,
		log:          opts.Logger,
		maxRetries:   opts.MaxRetries,
		seed:         opts.Seed,
		baseCtx:      baseCtx,
		stop:         stop,
		runners:      make(map[string]*Runner),
	}
}

// Running implementa rotation.RunChecker.
func (m *Manager) Running(campaignID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.runners[campaignID]
	return ok
}

// Start prepara e dispara uma nova passada da campanha. A resolução dos
// leads acontece aqui (fase preparing): ordem fixada na importação ou, com
// segmento, a ordem retornada pela consulta de segmentação.
func (m *Manager) Start(ctx context.Context, campaign model.Campaign, segment string) (model.CampaignRun, error) {
	m.mu.Lock()
	if _, active := m.runners[campaign.ID]; active {
		m.mu.Unlock()
		return model.CampaignRun{}, ErrAlreadyRunning
	}
	m.mu.Unlock()

	now := time.Now().UTC()
	run := model.CampaignRun{
		ID:              uuid.NewString(),
		CampaignID:      campaign.ID,
		Status:          model.RunStatusPreparing,
		MinDelaySeconds: campaign.MinDelaySeconds,
		MaxDelaySeconds: campaign.MaxDelaySeconds,
		Segment:         segment,
		StartedAt:       now,
		UpdatedAt:       now,
	}
	run, err := m.runRepo.Create(ctx, run)
	if err != nil {
		return model.CampaignRun{}, err
	}

	leads, err := m.resolveLeads(ctx, campaign.ID, segment)
	if err != nil {
		return model.CampaignRun{}, err
	}
	if len(leads) == 0 {
		run.Status = model.RunStatusFailed
		finished := time.Now().UTC()
		run.FinishedAt = &finished
		run.UpdatedAt = finished
		if _, uerr := m.runRepo.Update(ctx, run); uerr != nil {
			m.log.Error("erro ao marcar run como failed", zap.Error(uerr))
		}
		return run, ErrNoLeads
	}

	run.TotalLeads = len(leads)
	run.Status = model.RunStatusRunning
	run.UpdatedAt = time.Now().UTC()
	run, err = m.runRepo.Update(ctx, run)
	if err != nil {
		return model.CampaignRun{}, err
	}

	m.spawn(run, campaign, leads)
	return run, nil
}

func (m *Manager) resolveLeads(ctx context.Context, campaignID, segment string) ([]model.Lead, error) {
	if segment != "" {
		return m.leadRepo.ListBySegment(ctx, campaignID, segment)
	}
	return m.leadRepo.ListByCampaign(ctx, campaignID)
}

func (m *Manager) spawn(run model.CampaignRun, campaign model.Campaign, leads []model.Lead) {
	runner := &Runner{
		run:          run,
		campaign:     campaign,
		leads:        leads,
		runRepo:      m.runRepo,
		rotationRepo: m.rotationRepo,
		selector:     m.selector,
		connected:    m.connected,
		sender:       m.sender,
		tracker:      m.tracker,
		log:          m.log,
		maxRetries:   m.maxRetries,
		rng:          rand.New(rand.NewSource(m.seed + int64(len(run.ID)))),
		ctrl:         make(chan command, 8),
		done:         make(chan struct{}),
		onFinish:     m.release,
	}

	m.mu.Lock()
	m.runners[campaign.ID] = runner
	m.mu.Unlock()

	runner.start(m.baseCtx)
}

func (m *Manager) release(campaignID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runners, campaignID)
}

// Pause solicita pausa; observada antes do próximo envio começar (o envio
// em andamento termina e é contabilizado).
func (m *Manager) Pause(ctx context.Context, campaignID string) error {
	runner, err := m.liveRunner(ctx, campaignID, model.RunStatusRunning)
	if err != nil {
		return err
	}
	runner.command(cmdPause)
	return nil
}

// Resume retoma um disparo pausado do cursor persistido. Se o runner ainda
// estiver vivo (pausa quente), recebe o comando; senão uma nova passada é
// recriada a partir do estado gravado.
func (m *Manager) Resume(ctx context.Context, campaign model.Campaign) error {
	run, err := m.runRepo.GetLatestByCampaign(ctx, campaign.ID)
	if err != nil {
		return err
	}
	if run.Status != model.RunStatusPaused {
		return ErrInvalidState
	}

	m.mu.Lock()
	runner, live := m.runners[campaign.ID]
	m.mu.Unlock()
	if live {
		runner.command(cmdResume)
		return nil
	}

	leads, err := m.resolveLeads(ctx, campaign.ID, run.Segment)
	if err != nil {
		return err
	}
	run.Status = model.RunStatusRunning
	run.PauseReason = ""
	run.UpdatedAt = time.Now().UTC()
	run, err = m.runRepo.Update(ctx, run)
	if err != nil {
		return err
	}
	m.spawn(run, campaign, leads)
	return nil
}

// Cancel encerra o disparo em definitivo. O cursor fica gravado para
// auditoria, mas a passada não é retomável.
func (m *Manager) Cancel(ctx context.Context, campaignID string) error {
	run, err := m.runRepo.GetLatestByCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() || run.Status == model.RunStatusPreparing {
		return ErrInvalidState
	}

	m.mu.Lock()
	runner, live := m.runners[campaignID]
	m.mu.Unlock()
	if live {
		runner.command(cmdCancel)
		return nil
	}

	// pausa fria: nenhum runner vivo, encerra direto no repositório
	now := time.Now().UTC()
	run.Status = model.RunStatusCancelled
	run.PauseReason = ""
	run.FinishedAt = &now
	run.UpdatedAt = now
	_, err = m.runRepo.Update(ctx, run)
	return err
}

func (m *Manager) liveRunner(ctx context.Context, campaignID string, want model.RunStatus) (*Runner, error) {
	run, err := m.runRepo.GetLatestByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if run.Status != want {
		return nil, ErrInvalidState
	}
	m.mu.Lock()
	runner, ok := m.runners[campaignID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrInvalidState
	}
	return runner, nil
}

// Shutdown espera os runners ativos observarem o cancelamento do contexto.
func (m *Manager) Shutdown(timeout time.Duration) {
	m.stop()

	m.mu.Lock()
	runners := make([]*Runner, 0, len(m.runners))
	for _, r := range m.runners {
		runners = append(runners, r)
	}
	m.mu.Unlock()

	deadline := time.After(timeout)
	for _, r := range runners {
		select {
		case <-r.Done():
		case <-deadline:
			return
		}
	}
}
