package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/whatleads/campaignd/internal/pkg/queue"
	"github.com/whatleads/campaignd/internal/storage"
)

// Tracker correlaciona IDs de mensagem do transporte com a passada que as
// enviou, para que recibos assíncronos alimentem as estatísticas certas.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]trackEntry
}

type trackEntry struct {
	runID     string
	createdAt time.Time
}

func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]trackEntry)}
}

func (t *Tracker) Track(messageID, runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[messageID] = trackEntry{runID: runID, createdAt: time.Now()}
}

func (t *Tracker) Resolve(messageID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[messageID]
	return e.runID, ok
}

// Sweep expira correlações mais antigas que maxAge.
func (t *Tracker) Sweep(maxAge time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	for id, e := range t.entries {
		if e.createdAt.Before(cutoff) {
			delete(t.entries, id)
		}
	}
}

// StatsWorker consome recibos de entrega/leitura da fila e soma nos
// agregados da passada correspondente.
type StatsWorker struct {
	queue   queue.Queue
	tracker *Tracker
	runRepo storage.RunRepository
	log     *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewStatsWorker(q queue.Queue, tracker *Tracker, runRepo storage.RunRepository, log *zap.Logger) *StatsWorker {
	return &StatsWorker{queue: q, tracker: tracker, runRepo: runRepo, log: log}
}

func (w *StatsWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.log.Info("stats worker: iniciado")
		for {
			select {
			case <-ctx.Done():
				w.log.Info("stats worker: encerrando")
				return
			default:
				w.processNext(ctx)
			}
		}
	}()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.tracker.Sweep(24 * time.Hour)
			}
		}
	}()
}

func (w *StatsWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *StatsWorker) processNext(ctx context.Context) {
	event, err := w.queue.Dequeue(ctx, 1*time.Second)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error("stats worker: erro ao desenfileirar", zap.Error(err))
		}
		return
	}
	if event == nil {
		return // timeout, sem eventos
	}

	for _, messageID := range event.MessageIDs {
		runID, ok := w.tracker.Resolve(messageID)
		if !ok {
			continue // recibo de mensagem fora de campanha
		}
		if err := w.apply(ctx, runID, event.Type); err != nil {
			w.log.Warn("stats worker: erro ao aplicar recibo",
				zap.String("run_id", runID),
				zap.String("type", event.Type),
				zap.Error(err),
			)
		}
	}
}

// apply soma o recibo direto no banco, nunca via read-modify-write: o runner
// regrava a linha da passada a cada envio e apagaria o que fosse somado aqui.
func (w *StatsWorker) apply(ctx context.Context, runID, eventType string) error {
	switch eventType {
	case queue.EventReceiptDelivered:
		return w.runRepo.IncrementReceipts(ctx, runID, 1, 0)
	case queue.EventReceiptRead:
		return w.runRepo.IncrementReceipts(ctx, runID, 0, 1)
	}
	return nil
}
