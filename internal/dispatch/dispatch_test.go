package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whatleads/campaignd/internal/pkg/queue"
	"github.com/whatleads/campaignd/internal/pkg/queue/memory"
	"github.com/whatleads/campaignd/internal/rotation"
	"github.com/whatleads/campaignd/internal/storage"
	"github.com/whatleads/campaignd/internal/storage/model"
)

const eventually = 10 * time.Second

type fakeRunRepo struct {
	mu   sync.Mutex
	runs map[string]model.CampaignRun
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[string]model.CampaignRun)}
}

func (f *fakeRunRepo) Create(_ context.Context, run model.CampaignRun) (model.CampaignRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeRunRepo) GetByID(_ context.Context, id string) (model.CampaignRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return model.CampaignRun{}, storage.ErrNotFound
	}
	return run, nil
}

func (f *fakeRunRepo) GetLatestByCampaign(_ context.Context, campaignID string) (model.CampaignRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest model.CampaignRun
	found := false
	for _, run := range f.runs {
		if run.CampaignID != campaignID {
			continue
		}
		if !found || run.StartedAt.After(latest.StartedAt) {
			latest = run
			found = true
		}
	}
	if !found {
		return model.CampaignRun{}, storage.ErrNotFound
	}
	return latest, nil
}

func (f *fakeRunRepo) Update(_ context.Context, run model.CampaignRun) (model.CampaignRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	atual, ok := f.runs[run.ID]
	if !ok {
		return model.CampaignRun{}, storage.ErrNotFound
	}
	// Espelha o SQL real: Update nunca escreve os contadores de recibo.
	run.DeliveredCount = atual.DeliveredCount
	run.ReadCount = atual.ReadCount
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeRunRepo) IncrementReceipts(_ context.Context, runID string, delivered, read int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return storage.ErrNotFound
	}
	run.DeliveredCount += delivered
	run.ReadCount += read
	f.runs[runID] = run
	return nil
}

func (f *fakeRunRepo) latest(t *testing.T, campaignID string) model.CampaignRun {
	t.Helper()
	run, err := f.GetLatestByCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	return run
}

type fakeLeadRepo struct {
	leads []model.Lead
}

func (f *fakeLeadRepo) BulkCreate(_ context.Context, leads []model.Lead) (int, error) {
	f.leads = append(f.leads, leads...)
	return len(leads), nil
}

func (f *fakeLeadRepo) ListByCampaign(_ context.Context, campaignID string) ([]model.Lead, error) {
	var out []model.Lead
	for _, l := range f.leads {
		if l.CampaignID == campaignID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeLeadRepo) ListBySegment(_ context.Context, campaignID, segment string) ([]model.Lead, error) {
	var out []model.Lead
	for _, l := range f.leads {
		if l.CampaignID == campaignID && l.Segment == segment {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeLeadRepo) CountByCampaign(_ context.Context, campaignID string) (int, error) {
	leads, _ := f.ListByCampaign(context.Background(), campaignID)
	return len(leads), nil
}

func (f *fakeLeadRepo) DeleteByCampaign(_ context.Context, campaignID string) error {
	kept := f.leads[:0]
	for _, l := range f.leads {
		if l.CampaignID != campaignID {
			kept = append(kept, l)
		}
	}
	f.leads = kept
	return nil
}

type fakeRotationRepo struct {
	mu     sync.Mutex
	policy model.RotationPolicy
	usages []model.InstanceUsage
	hasAny bool

	// falhas injetadas por número da chamada de ListUsages (1-based)
	listCalls int
	failList  map[int]error
}

func (f *fakeRotationRepo) CreatePolicy(_ context.Context, p model.RotationPolicy, usages []model.InstanceUsage) (model.RotationPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policy = p
	f.usages = append([]model.InstanceUsage(nil), usages...)
	f.hasAny = true
	return p, nil
}

func (f *fakeRotationRepo) GetPolicy(_ context.Context, _ string) (model.RotationPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasAny {
		return model.RotationPolicy{}, storage.ErrNotFound
	}
	return f.policy, nil
}

func (f *fakeRotationRepo) UpdatePolicy(_ context.Context, p model.RotationPolicy) (model.RotationPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policy = p
	return p, nil
}

func (f *fakeRotationRepo) DeletePolicy(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasAny = false
	return nil
}

func (f *fakeRotationRepo) ListUsages(_ context.Context, _ string) ([]model.InstanceUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if err, ok := f.failList[f.listCalls]; ok {
		return nil, err
	}
	return append([]model.InstanceUsage(nil), f.usages...), nil
}

func (f *fakeRotationRepo) AddUsage(_ context.Context, u model.InstanceUsage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usages = append(f.usages, u)
	return nil
}

func (f *fakeRotationRepo) RemoveUsage(_ context.Context, _, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.usages[:0]
	for _, u := range f.usages {
		if u.InstanceID != instanceID {
			kept = append(kept, u)
		}
	}
	f.usages = kept
	return nil
}

func (f *fakeRotationRepo) UpdateUsage(_ context.Context, usage model.InstanceUsage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, u := range f.usages {
		if u.InstanceID == usage.InstanceID {
			f.usages[i] = usage
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeRotationRepo) ResetUsages(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.usages {
		f.usages[i].MessagesSent = 0
		f.usages[i].LastUsedAt = nil
	}
	return nil
}

// fakeSender registra os envios e, quando gated, segura cada Send até o teste
// liberar pelo canal. failures determina quantas chamadas iniciais falham.
type fakeSender struct {
	mu       sync.Mutex
	gate     chan struct{}
	failures int
	calls    int
	sent     []string // instanceID usado em cada envio bem-sucedido
}

func (f *fakeSender) Send(ctx context.Context, instanceID string, lead model.Lead, _ model.Campaign) (string, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("instância indisponível")
	}
	f.sent = append(f.sent, instanceID)
	return fmt.Sprintf("msg-%d", f.calls), nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func testCampaign(useRotation bool) model.Campaign {
	return model.Campaign{
		ID:          "camp-1",
		Name:        "lançamento",
		OwnerUserID: "user-1",
		Message:     "olá {{nome}}",
		InstanceID:  "inst-a",
		UseRotation: useRotation,
	}
}

func seedLeads(leadRepo *fakeLeadRepo, n int) {
	for i := 0; i < n; i++ {
		leadRepo.leads = append(leadRepo.leads, model.Lead{
			ID:         fmt.Sprintf("lead-%d", i),
			CampaignID: "camp-1",
			Phone:      fmt.Sprintf("55119999000%d", i),
			Position:   i,
		})
	}
}

type managerEnv struct {
	manager   *Manager
	runRepo   *fakeRunRepo
	leadRepo  *fakeLeadRepo
	rotRepo   *fakeRotationRepo
	sender    *fakeSender
	tracker   *Tracker
	connected *atomic.Bool
}

func newManagerEnv(sender *fakeSender) *managerEnv {
	runRepo := newFakeRunRepo()
	leadRepo := &fakeLeadRepo{}
	rotRepo := &fakeRotationRepo{}
	connected := &atomic.Bool{}
	connected.Store(true)
	connFn := func(string) bool { return connected.Load() }
	tracker := NewTracker()

	manager := NewManager(ManagerOptions{
		RunRepo:      runRepo,
		LeadRepo:     leadRepo,
		RotationRepo: rotRepo,
		Selector:     rotation.NewSelector(1, connFn),
		Connected:    connFn,
		Sender:       sender,
		Tracker:      tracker,
		Logger:       zap.NewNop(),
		MaxRetries:   2,
		Seed:         1,
	})
	return &managerEnv{
		manager:   manager,
		runRepo:   runRepo,
		leadRepo:  leadRepo,
		rotRepo:   rotRepo,
		sender:    sender,
		tracker:   tracker,
		connected: connected,
	}
}

func (e *managerEnv) waitStatus(t *testing.T, campaignID string, want model.RunStatus) model.CampaignRun {
	t.Helper()
	require.Eventually(t, func() bool {
		run, err := e.runRepo.GetLatestByCampaign(context.Background(), campaignID)
		return err == nil && run.Status == want
	}, eventually, 5*time.Millisecond, "run nunca chegou ao status %s", want)
	return e.runRepo.latest(t, campaignID)
}

func TestStartWithoutLeadsFails(t *testing.T) {
	env := newManagerEnv(&fakeSender{})

	_, err := env.manager.Start(context.Background(), testCampaign(false), "")
	assert.ErrorIs(t, err, ErrNoLeads)

	run := env.runRepo.latest(t, "camp-1")
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.NotNil(t, run.FinishedAt)
}

func TestStartRejectsSecondRun(t *testing.T) {
	sender := &fakeSender{gate: make(chan struct{})}
	env := newManagerEnv(sender)
	seedLeads(env.leadRepo, 2)

	_, err := env.manager.Start(context.Background(), testCampaign(false), "")
	require.NoError(t, err)
	assert.True(t, env.manager.Running("camp-1"))

	_, err = env.manager.Start(context.Background(), testCampaign(false), "")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(sender.gate)
	env.waitStatus(t, "camp-1", model.RunStatusCompleted)
	assert.False(t, env.manager.Running("camp-1"))
}

func TestRunCompletesAllLeadsInOrder(t *testing.T) {
	sender := &fakeSender{}
	env := newManagerEnv(sender)
	seedLeads(env.leadRepo, 5)

	run, err := env.manager.Start(context.Background(), testCampaign(false), "")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.Equal(t, 5, run.TotalLeads)

	final := env.waitStatus(t, "camp-1", model.RunStatusCompleted)
	assert.Equal(t, 5, final.SentCount)
	assert.Equal(t, 5, final.Cursor)
	assert.Zero(t, final.FailedCount)
	assert.NotNil(t, final.FinishedAt)
	assert.Equal(t, 5, sender.sentCount())
}

// slowCampaign usa jitter de 1s para que a pausa pedida entre envios seja
// sempre observada na espera, não no meio de um select disputado.
func slowCampaign() model.Campaign {
	c := testCampaign(false)
	c.MinDelaySeconds = 1
	c.MaxDelaySeconds = 1
	return c
}

func (e *managerEnv) waitSent(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return e.sender.sentCount() >= n },
		eventually, 5*time.Millisecond, "nunca alcançou %d envios", n)
}

func TestPauseAndResume(t *testing.T) {
	sender := &fakeSender{}
	env := newManagerEnv(sender)
	seedLeads(env.leadRepo, 4)
	ctx := context.Background()

	_, err := env.manager.Start(ctx, slowCampaign(), "")
	require.NoError(t, err)

	env.waitSent(t, 2)
	require.NoError(t, env.manager.Pause(ctx, "camp-1"))

	paused := env.waitStatus(t, "camp-1", model.RunStatusPaused)
	assert.Equal(t, model.PauseReasonOperator, paused.PauseReason)
	assert.Equal(t, 2, paused.SentCount)
	assert.Equal(t, 2, paused.Cursor)

	require.NoError(t, env.manager.Resume(ctx, slowCampaign()))

	final := env.waitStatus(t, "camp-1", model.RunStatusCompleted)
	assert.Equal(t, 4, final.SentCount)
	assert.Empty(t, final.PauseReason)
}

func TestCancelWhilePaused(t *testing.T) {
	sender := &fakeSender{}
	env := newManagerEnv(sender)
	seedLeads(env.leadRepo, 5)
	ctx := context.Background()

	_, err := env.manager.Start(ctx, slowCampaign(), "")
	require.NoError(t, err)

	env.waitSent(t, 1)
	require.NoError(t, env.manager.Pause(ctx, "camp-1"))
	env.waitStatus(t, "camp-1", model.RunStatusPaused)

	require.NoError(t, env.manager.Cancel(ctx, "camp-1"))
	final := env.waitStatus(t, "camp-1", model.RunStatusCancelled)
	assert.Equal(t, 1, final.Cursor, "cursor fica gravado para auditoria")
	assert.NotNil(t, final.FinishedAt)
	assert.False(t, env.manager.Running("camp-1"))
}

func TestPauseRequiresRunningRun(t *testing.T) {
	env := newManagerEnv(&fakeSender{})
	ctx := context.Background()

	assert.ErrorIs(t, env.manager.Pause(ctx, "camp-1"), storage.ErrNotFound)

	now := time.Now().UTC()
	_, err := env.runRepo.Create(ctx, model.CampaignRun{
		ID: "run-1", CampaignID: "camp-1",
		Status: model.RunStatusCompleted, StartedAt: now, FinishedAt: &now,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, env.manager.Pause(ctx, "camp-1"), ErrInvalidState)
	assert.ErrorIs(t, env.manager.Resume(ctx, testCampaign(false)), ErrInvalidState)
	assert.ErrorIs(t, env.manager.Cancel(ctx, "camp-1"), ErrInvalidState)
}

func TestResumeColdStartsFromPersistedCursor(t *testing.T) {
	sender := &fakeSender{}
	env := newManagerEnv(sender)
	seedLeads(env.leadRepo, 5)
	ctx := context.Background()

	// passada pausada sem runner vivo, como após um restart do processo
	_, err := env.runRepo.Create(ctx, model.CampaignRun{
		ID: "run-1", CampaignID: "camp-1",
		Status: model.RunStatusPaused, PauseReason: model.PauseReasonOperator,
		Cursor: 2, TotalLeads: 5, SentCount: 2,
		StartedAt: time.Now().UTC().Add(-time.Minute),
	})
	require.NoError(t, err)

	require.NoError(t, env.manager.Resume(ctx, testCampaign(false)))

	final := env.waitStatus(t, "camp-1", model.RunStatusCompleted)
	assert.Equal(t, 5, final.SentCount)
	assert.Equal(t, 3, sender.sentCount(), "retomada continua do cursor, sem reenviar")
}

func TestCancelColdRun(t *testing.T) {
	env := newManagerEnv(&fakeSender{})
	ctx := context.Background()

	_, err := env.runRepo.Create(ctx, model.CampaignRun{
		ID: "run-1", CampaignID: "camp-1",
		Status: model.RunStatusPaused, Cursor: 3,
		StartedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, env.manager.Cancel(ctx, "camp-1"))
	run := env.runRepo.latest(t, "camp-1")
	assert.Equal(t, model.RunStatusCancelled, run.Status)
	assert.NotNil(t, run.FinishedAt)
}

func TestExhaustionPausesWithReason(t *testing.T) {
	sender := &fakeSender{}
	env := newManagerEnv(sender)
	seedLeads(env.leadRepo, 3)
	env.connected.Store(false)
	ctx := context.Background()

	_, err := env.manager.Start(ctx, testCampaign(false), "")
	require.NoError(t, err)

	paused := env.waitStatus(t, "camp-1", model.RunStatusPaused)
	assert.Equal(t, model.PauseReasonNoEligible, paused.PauseReason)
	assert.Zero(t, paused.SentCount, "nenhuma mensagem pode ser descartada")

	// instância volta e o operador retoma
	env.connected.Store(true)
	require.NoError(t, env.manager.Resume(ctx, testCampaign(false)))

	final := env.waitStatus(t, "camp-1", model.RunStatusCompleted)
	assert.Equal(t, 3, final.SentCount)
}

func TestTransientFailuresRetryThenAdvance(t *testing.T) {
	sender := &fakeSender{failures: 10} // falha sempre: 1 lead x 2 tentativas
	env := newManagerEnv(sender)
	seedLeads(env.leadRepo, 1)

	_, err := env.manager.Start(context.Background(), testCampaign(false), "")
	require.NoError(t, err)

	final := env.waitStatus(t, "camp-1", model.RunStatusCompleted)
	assert.Equal(t, 1, final.FailedCount)
	assert.Zero(t, final.SentCount)
	assert.Equal(t, 1, final.Cursor)
}

func TestRotationRunUpdatesUsageCounters(t *testing.T) {
	sender := &fakeSender{}
	env := newManagerEnv(sender)
	seedLeads(env.leadRepo, 4)
	ctx := context.Background()

	_, err := env.rotRepo.CreatePolicy(ctx, model.RotationPolicy{
		CampaignID: "camp-1",
		Strategy:   model.StrategySequential,
	}, []model.InstanceUsage{
		{CampaignID: "camp-1", InstanceID: "inst-a", Position: 0, IsActive: true},
		{CampaignID: "camp-1", InstanceID: "inst-b", Position: 1, IsActive: true},
	})
	require.NoError(t, err)

	_, err = env.manager.Start(ctx, testCampaign(true), "")
	require.NoError(t, err)
	env.waitStatus(t, "camp-1", model.RunStatusCompleted)

	assert.Equal(t, []string{"inst-a", "inst-b", "inst-a", "inst-b"}, sender.sentTo())

	usages, err := env.rotRepo.ListUsages(ctx, "camp-1")
	require.NoError(t, err)
	for _, u := range usages {
		assert.Equal(t, 2, u.MessagesSent)
		assert.NotNil(t, u.LastUsedAt)
	}
}

// Erro de infraestrutura na re-seleção entre tentativas não pode derrubar a
// instância em uso: a próxima tentativa sai pela instância anterior, nunca
// por um ID vazio.
func TestRetryKeepsInstanceWhenReselectFails(t *testing.T) {
	sender := &fakeSender{failures: 1}
	env := newManagerEnv(sender)
	seedLeads(env.leadRepo, 1)
	ctx := context.Background()

	_, err := env.rotRepo.CreatePolicy(ctx, model.RotationPolicy{
		CampaignID: "camp-1",
		Strategy:   model.StrategySequential,
	}, []model.InstanceUsage{
		{CampaignID: "camp-1", InstanceID: "inst-a", Position: 0, IsActive: true},
	})
	require.NoError(t, err)

	// 1ª chamada: seleção inicial; a 2ª é a re-seleção após a falha de envio
	env.rotRepo.failList = map[int]error{2: errors.New("banco indisponível")}

	_, err = env.manager.Start(ctx, testCampaign(true), "")
	require.NoError(t, err)

	run := env.waitStatus(t, "camp-1", model.RunStatusCompleted)
	assert.Equal(t, 1, run.SentCount)
	assert.Equal(t, 0, run.FailedCount)
	assert.Equal(t, []string{"inst-a"}, sender.sentTo())
}

func TestStartFiltersBySegment(t *testing.T) {
	sender := &fakeSender{}
	env := newManagerEnv(sender)
	env.leadRepo.leads = []model.Lead{
		{ID: "lead-0", CampaignID: "camp-1", Phone: "5511990000000", Segment: "vip", Position: 0},
		{ID: "lead-1", CampaignID: "camp-1", Phone: "5511990000001", Segment: "geral", Position: 1},
		{ID: "lead-2", CampaignID: "camp-1", Phone: "5511990000002", Segment: "vip", Position: 2},
	}

	run, err := env.manager.Start(context.Background(), testCampaign(false), "vip")
	require.NoError(t, err)
	assert.Equal(t, 2, run.TotalLeads)
	assert.Equal(t, "vip", run.Segment)

	final := env.waitStatus(t, "camp-1", model.RunStatusCompleted)
	assert.Equal(t, 2, final.SentCount)
}

func TestTrackerResolveAndSweep(t *testing.T) {
	tracker := NewTracker()
	tracker.Track("msg-1", "run-1")

	runID, ok := tracker.Resolve("msg-1")
	assert.True(t, ok)
	assert.Equal(t, "run-1", runID)

	_, ok = tracker.Resolve("msg-2")
	assert.False(t, ok)

	tracker.Sweep(0)
	_, ok = tracker.Resolve("msg-1")
	assert.False(t, ok, "sweep expira correlações antigas")
}

func TestStatsWorkerFoldsReceipts(t *testing.T) {
	runRepo := newFakeRunRepo()
	ctx := context.Background()
	_, err := runRepo.Create(ctx, model.CampaignRun{
		ID: "run-1", CampaignID: "camp-1",
		Status: model.RunStatusRunning, StartedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	tracker := NewTracker()
	tracker.Track("msg-1", "run-1")
	tracker.Track("msg-2", "run-1")

	q := memory.NewQueue(16)
	worker := NewStatsWorker(q, tracker, runRepo, zap.NewNop())
	worker.Start(ctx)
	defer worker.Stop()

	require.NoError(t, q.Enqueue(ctx, queueEvent("receipt.delivered", "msg-1", "msg-2")))
	require.NoError(t, q.Enqueue(ctx, queueEvent("receipt.read", "msg-1")))
	// recibo de mensagem desconhecida é ignorado sem erro
	require.NoError(t, q.Enqueue(ctx, queueEvent("receipt.delivered", "msg-zzz")))

	require.Eventually(t, func() bool {
		run, err := runRepo.GetByID(ctx, "run-1")
		return err == nil && run.DeliveredCount == 2 && run.ReadCount == 1
	}, eventually, 5*time.Millisecond)
}

// Recibo aplicado no meio da passada tem que sobreviver aos saves seguintes
// do runner: worker e runner escrevem a mesma linha concorrentemente.
func TestReceiptSurvivesRunnerSaves(t *testing.T) {
	sender := &fakeSender{}
	env := newManagerEnv(sender)
	seedLeads(env.leadRepo, 3)
	ctx := context.Background()

	q := memory.NewQueue(16)
	worker := NewStatsWorker(q, env.tracker, env.runRepo, zap.NewNop())
	worker.Start(ctx)
	defer worker.Stop()

	_, err := env.manager.Start(ctx, slowCampaign(), "")
	require.NoError(t, err)

	// recibo do primeiro envio chega enquanto os demais ainda estão na fila
	env.waitSent(t, 1)
	require.NoError(t, q.Enqueue(ctx, queueEvent("receipt.delivered", "msg-1")))
	require.Eventually(t, func() bool {
		run, err := env.runRepo.GetLatestByCampaign(ctx, "camp-1")
		return err == nil && run.DeliveredCount == 1
	}, eventually, 5*time.Millisecond, "recibo nunca foi persistido")

	run := env.waitStatus(t, "camp-1", model.RunStatusCompleted)
	assert.Equal(t, 3, run.SentCount)
	assert.Equal(t, 1, run.DeliveredCount, "recibo somado durante a passada foi sobrescrito")
}

func TestReporterSnapshot(t *testing.T) {
	runRepo := newFakeRunRepo()
	rotRepo := &fakeRotationRepo{}
	reporter := NewReporter(runRepo, rotRepo)
	ctx := context.Background()

	_, err := reporter.Snapshot(ctx, "camp-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	now := time.Now().UTC()
	_, err = runRepo.Create(ctx, model.CampaignRun{
		ID: "run-1", CampaignID: "camp-1",
		Status: model.RunStatusPaused, PauseReason: model.PauseReasonRateCeiling,
		TotalLeads: 10, SentCount: 4, DeliveredCount: 3, ReadCount: 1, FailedCount: 1,
		StartedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, rotRepo.AddUsage(ctx, model.InstanceUsage{
		CampaignID: "camp-1", InstanceID: "inst-a", MessagesSent: 4, IsActive: true,
	}))

	snap, err := reporter.Snapshot(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, model.RunStatusPaused, snap.Status)
	assert.Equal(t, model.PauseReasonRateCeiling, snap.PauseReason)
	assert.Equal(t, 10, snap.TotalLeads)
	assert.Equal(t, 4, snap.SentCount)
	assert.Equal(t, 3, snap.DeliveredCount)
	assert.Equal(t, 1, snap.ReadCount)
	assert.Equal(t, 1, snap.FailedCount)
	require.Len(t, snap.PerInstance, 1)
	assert.Equal(t, 4, snap.PerInstance[0].MessagesSent)
}

func queueEvent(eventType string, messageIDs ...string) queue.Event {
	return queue.Event{
		ID:         fmt.Sprintf("evt-%d", time.Now().UnixNano()),
		Type:       eventType,
		MessageIDs: messageIDs,
		CreatedAt:  time.Now().UTC(),
	}
}
