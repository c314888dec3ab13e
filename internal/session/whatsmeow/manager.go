package whatsmeow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/whatleads/campaignd/internal/pkg/queue"
	"github.com/whatleads/campaignd/internal/storage"
)

var (
	ErrSessionExists   = errors.New("sessão já existe para esta instância")
	ErrNotConnected    = errors.New("instância não está conectada")
	ErrSessionNotFound = errors.New("sessão não encontrada")
)

type noopLogger struct{}

func (n *noopLogger) Debugf(msg string, args ...interface{}) {}
func (n *noopLogger) Infof(msg string, args ...interface{})  {}
func (n *noopLogger) Warnf(msg string, args ...interface{})  {}
func (n *noopLogger) Errorf(msg string, args ...interface{}) {}
func (n *noopLogger) Sub(module string) waLog.Logger         { return n }

// Manager mantém os clientes WhatsMeow das instâncias e publica os recibos de
// entrega/leitura na fila de eventos.
type Manager struct {
	clients    map[string]*whatsmeow.Client
	currentQRs map[string]string
	qrContexts map[string]context.CancelFunc
	mu         sync.RWMutex

	log           *zap.Logger
	storageDriver string
	baseDir       string
	pgConnString  string

	instanceRepo   storage.InstanceRepository
	receipts       queue.Queue
	onStatusChange func(instanceID string, status string)
}

func NewManager(log *zap.Logger, storageDriver, baseDir, pgConnString string, instanceRepo storage.InstanceRepository, receipts queue.Queue) *Manager {
	if storageDriver != "postgres" {
		if baseDir == "" {
			baseDir = "/app/data/sessions"
			log.Warn("diretório de sessões não definido, usando padrão", zap.String("dir", baseDir))
		}
		os.MkdirAll(baseDir, 0755)
	}

	return &Manager{
		clients:       make(map[string]*whatsmeow.Client),
		currentQRs:    make(map[string]string),
		qrContexts:    make(map[string]context.CancelFunc),
		log:           log,
		storageDriver: storageDriver,
		baseDir:       baseDir,
		pgConnString:  pgConnString,
		instanceRepo:  instanceRepo,
		receipts:      receipts,
	}
}

func (m *Manager) SetStatusChangeCallback(fn func(instanceID string, status string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatusChange = fn
}

func (m *Manager) sqlitePath(instanceID string) string {
	return filepath.Join(m.baseDir, instanceID+".db")
}

func (m *Manager) newContainer(ctx context.Context, instanceID string) (*sqlstore.Container, error) {
	if m.storageDriver == "postgres" && m.pgConnString != "" {
		return sqlstore.New(ctx, "postgres", m.pgConnString, &noopLogger{})
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", m.sqlitePath(instanceID))
	return sqlstore.New(ctx, "sqlite3", dsn, &noopLogger{})
}

// CreateSession cria um cliente novo para a instância e devolve o primeiro QR
// code gerado. Instâncias já pareadas devem usar RestoreAllSessions.
func (m *Manager) CreateSession(ctx context.Context, instanceID string) (string, error) {
	m.mu.Lock()
	if _, exists := m.clients[instanceID]; exists {
		m.mu.Unlock()
		m.log.Warn("tentativa de criar sessão que já existe", zap.String("instance_id", instanceID))
		return "", ErrSessionExists
	}
	m.mu.Unlock()

	m.log.Info("criando nova sessão WhatsMeow", zap.String("instance_id", instanceID))

	container, err := m.newContainer(ctx, instanceID)
	if err != nil {
		return "", fmt.Errorf("whatsmeow: criar store: %w", err)
	}

	var deviceStore *store.Device
	if m.storageDriver == "postgres" {
		deviceStore = container.NewDevice()
	} else {
		deviceStore, err = container.GetFirstDevice(ctx)
		if err != nil {
			return "", fmt.Errorf("whatsmeow: obter device: %w", err)
		}
		if deviceStore.ID != nil && !deviceStore.ID.IsEmpty() {
			// Pareamento antigo no arquivo; recomeça do zero para gerar QR.
			_ = os.Remove(m.sqlitePath(instanceID))
			container, err = m.newContainer(ctx, instanceID)
			if err != nil {
				return "", fmt.Errorf("whatsmeow: recriar store: %w", err)
			}
			deviceStore, err = container.GetFirstDevice(ctx)
			if err != nil {
				return "", fmt.Errorf("whatsmeow: obter device: %w", err)
			}
		}
	}

	client := whatsmeow.NewClient(deviceStore, &noopLogger{})
	client.EnableAutoReconnect = true
	client.AddEventHandler(func(evt any) {
		m.handleEvent(instanceID, evt)
	})

	qrCtx, qrCancel := context.WithCancel(context.Background())
	qrChan, err := client.GetQRChannel(qrCtx)
	if err != nil {
		qrCancel()
		return "", fmt.Errorf("whatsmeow: obter canal QR: %w", err)
	}

	if err := client.Connect(); err != nil {
		qrCancel()
		return "", fmt.Errorf("whatsmeow: conectar: %w", err)
	}

	m.mu.Lock()
	m.clients[instanceID] = client
	m.qrContexts[instanceID] = qrCancel
	m.mu.Unlock()

	go m.monitorQRChannel(instanceID, client, qrChan, qrCancel)

	return m.waitFirstQR(instanceID)
}

func (m *Manager) waitFirstQR(instanceID string) (string, error) {
	deadline := time.Now().Add(30 * time.Second)
	for {
		m.mu.RLock()
		qr, hasQR := m.currentQRs[instanceID]
		_, open := m.qrContexts[instanceID]
		m.mu.RUnlock()

		if hasQR && qr != "" {
			m.log.Info("QR code gerado com sucesso", zap.String("instance_id", instanceID))
			return qr, nil
		}
		if !open {
			return "", fmt.Errorf("whatsmeow: canal QR fechado antes de receber código")
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("whatsmeow: timeout ao aguardar QR code")
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func (m *Manager) monitorQRChannel(instanceID string, client *whatsmeow.Client, qrChan <-chan whatsmeow.QRChannelItem, cancel context.CancelFunc) {
	defer cancel()
	defer func() {
		m.mu.Lock()
		delete(m.qrContexts, instanceID)
		m.mu.Unlock()
	}()

	for evt := range qrChan {
		switch evt.Event {
		case "code":
			if evt.Code == "" {
				continue
			}
			m.mu.Lock()
			m.currentQRs[instanceID] = evt.Code
			m.mu.Unlock()
			m.log.Info("QR code recebido", zap.String("instance_id", instanceID), zap.Duration("timeout", evt.Timeout))

		case "success":
			m.log.Info("pareamento concluído com sucesso", zap.String("instance_id", instanceID))
			m.mu.Lock()
			delete(m.currentQRs, instanceID)
			m.mu.Unlock()
			m.saveJID(instanceID, client)
		}
	}
}

func (m *Manager) saveJID(instanceID string, client *whatsmeow.Client) {
	if m.instanceRepo == nil || client == nil || client.Store == nil || client.Store.ID == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	inst, err := m.instanceRepo.GetByID(ctx, instanceID)
	if err != nil {
		m.log.Error("erro ao buscar instância para salvar JID", zap.String("instance_id", instanceID), zap.Error(err))
		return
	}
	inst.WhatsAppJID = client.Store.ID.String()
	if _, err := m.instanceRepo.Update(ctx, inst); err != nil {
		m.log.Error("erro ao salvar JID da instância", zap.String("instance_id", instanceID), zap.Error(err))
	}
}

// GetQR devolve o QR code corrente da instância, se houver pareamento em
// andamento.
func (m *Manager) GetQR(ctx context.Context, instanceID string) (string, error) {
	m.mu.RLock()
	client, exists := m.clients[instanceID]
	qr, hasQR := m.currentQRs[instanceID]
	m.mu.RUnlock()

	if !exists {
		return "", ErrSessionNotFound
	}
	if client.IsLoggedIn() {
		return "", fmt.Errorf("instância já conectada, não é necessário QR code")
	}
	if !hasQR || qr == "" {
		return "", fmt.Errorf("nenhum QR code disponível no momento")
	}
	return qr, nil
}

func (m *Manager) handleEvent(instanceID string, evt any) {
	m.mu.RLock()
	callback := m.onStatusChange
	m.mu.RUnlock()

	switch v := evt.(type) {
	case *events.Connected:
		m.log.Info("instância conectada", zap.String("instance_id", instanceID))
		if callback != nil {
			callback(instanceID, "connected")
		}
	case *events.PairSuccess:
		m.log.Info("pareamento concluído",
			zap.String("instance_id", instanceID),
			zap.String("user_jid", v.ID.String()),
		)
		if callback != nil {
			callback(instanceID, "connecting")
		}
	case *events.Disconnected:
		m.log.Warn("instância desconectada", zap.String("instance_id", instanceID))
		if callback != nil {
			callback(instanceID, "disconnected")
		}
	case *events.LoggedOut:
		m.log.Warn("instância deslogada",
			zap.String("instance_id", instanceID),
			zap.String("reason", v.Reason.String()),
		)
		if callback != nil {
			callback(instanceID, "disconnected")
		}
	case *events.ConnectFailure:
		m.log.Error("falha ao conectar instância",
			zap.String("instance_id", instanceID),
			zap.String("reason", v.Reason.String()),
		)
		if callback != nil {
			callback(instanceID, "disconnected")
		}
	case *events.TemporaryBan:
		m.log.Error("instância temporariamente banida pelo WhatsApp",
			zap.String("instance_id", instanceID),
			zap.String("code", v.Code.String()),
			zap.Duration("expire", v.Expire),
		)
		if callback != nil {
			callback(instanceID, "disconnected")
		}
	case *events.Receipt:
		m.publishReceipt(instanceID, v)
	}
}

// publishReceipt converte recibos delivered/read em eventos da fila para o
// worker de estatísticas consumir.
func (m *Manager) publishReceipt(instanceID string, receipt *events.Receipt) {
	if m.receipts == nil || receipt == nil || len(receipt.MessageIDs) == 0 {
		return
	}

	var eventType string
	switch receipt.Type {
	case types.ReceiptTypeDelivered:
		eventType = queue.EventReceiptDelivered
	case types.ReceiptTypeRead:
		eventType = queue.EventReceiptRead
	default:
		return
	}

	ids := make([]string, len(receipt.MessageIDs))
	for i, id := range receipt.MessageIDs {
		ids[i] = string(id)
	}

	evt := queue.Event{
		InstanceID: instanceID,
		Type:       eventType,
		MessageIDs: ids,
		Chat:       receipt.Chat.String(),
		CreatedAt:  time.Now(),
	}
	if err := m.receipts.Enqueue(context.Background(), evt); err != nil {
		m.log.Warn("falha ao enfileirar recibo",
			zap.String("instance_id", instanceID),
			zap.Error(err),
		)
	}
}

// RestoreAllSessions reconecta instâncias pareadas anteriormente. Instâncias
// sem device armazenado são ignoradas.
func (m *Manager) RestoreAllSessions(ctx context.Context, instanceIDs []string) {
	m.log.Info("restaurando sessões", zap.Int("total", len(instanceIDs)))
	for _, id := range instanceIDs {
		if err := m.restoreSession(ctx, id); err != nil {
			m.log.Debug("sessão não restaurada", zap.String("instance_id", id), zap.Error(err))
		}
	}
}

func (m *Manager) restoreSession(ctx context.Context, instanceID string) error {
	m.mu.RLock()
	_, exists := m.clients[instanceID]
	m.mu.RUnlock()
	if exists {
		return nil
	}

	if m.storageDriver != "postgres" {
		if _, err := os.Stat(m.sqlitePath(instanceID)); err != nil {
			return ErrSessionNotFound
		}
	}

	container, err := m.newContainer(ctx, instanceID)
	if err != nil {
		return err
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return err
	}
	if deviceStore.ID == nil || deviceStore.ID.IsEmpty() {
		return ErrSessionNotFound
	}

	client := whatsmeow.NewClient(deviceStore, &noopLogger{})
	client.EnableAutoReconnect = true
	client.AddEventHandler(func(evt any) {
		m.handleEvent(instanceID, evt)
	})

	if err := client.Connect(); err != nil {
		return fmt.Errorf("whatsmeow: reconectar: %w", err)
	}

	m.mu.Lock()
	m.clients[instanceID] = client
	m.mu.Unlock()

	m.log.Info("sessão restaurada", zap.String("instance_id", instanceID))
	return nil
}

func (m *Manager) GetClient(instanceID string) (*whatsmeow.Client, error) {
	m.mu.RLock()
	client, exists := m.clients[instanceID]
	m.mu.RUnlock()
	if !exists {
		return nil, ErrSessionNotFound
	}
	return client, nil
}

// IsConnected reporta conectividade viva, não o status persistido.
func (m *Manager) IsConnected(instanceID string) bool {
	m.mu.RLock()
	client, exists := m.clients[instanceID]
	m.mu.RUnlock()
	return exists && client.IsLoggedIn()
}

func (m *Manager) ListInstances() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) Disconnect(instanceID string) error {
	m.mu.Lock()
	client, exists := m.clients[instanceID]
	if exists {
		delete(m.clients, instanceID)
	}
	if cancel, ok := m.qrContexts[instanceID]; ok {
		cancel()
		delete(m.qrContexts, instanceID)
	}
	delete(m.currentQRs, instanceID)
	m.mu.Unlock()

	if !exists {
		return nil
	}
	client.Disconnect()
	return nil
}

// DeleteSession desconecta, desloga e apaga o device armazenado.
func (m *Manager) DeleteSession(instanceID string) error {
	m.mu.Lock()
	client, exists := m.clients[instanceID]
	if exists {
		delete(m.clients, instanceID)
	}
	if cancel, ok := m.qrContexts[instanceID]; ok {
		cancel()
		delete(m.qrContexts, instanceID)
	}
	delete(m.currentQRs, instanceID)
	m.mu.Unlock()

	if exists && client.IsLoggedIn() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := client.Logout(ctx); err != nil {
			m.log.Warn("erro ao deslogar cliente", zap.String("instance_id", instanceID), zap.Error(err))
		}
		cancel()
	}
	if exists {
		client.Disconnect()
	}

	if m.storageDriver != "postgres" {
		_ = os.Remove(m.sqlitePath(instanceID))
	}
	return nil
}

// Shutdown desconecta todos os clientes sem deslogar.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*whatsmeow.Client)
	m.mu.Unlock()

	for id, client := range clients {
		client.Disconnect()
		m.log.Debug("cliente desconectado", zap.String("instance_id", id))
	}
}
