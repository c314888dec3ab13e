package model

import "time"

type InstanceStatus string

const (
	InstanceStatusConnected    InstanceStatus = "connected"
	InstanceStatusConnecting   InstanceStatus = "connecting"
	InstanceStatusDisconnected InstanceStatus = "disconnected"
)

// WarmupRecommendedHours é o tempo de conexão a partir do qual uma instância
// é considerada aquecida para disparos em volume. Abaixo disso a instância
// continua utilizável, apenas sinalizada como não recomendada.
const WarmupRecommendedHours = 300

type Instance struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	OwnerUserID    string         `json:"ownerUserId"`
	WhatsAppJID    string         `json:"whatsappJid,omitempty"`
	Status         InstanceStatus `json:"status"`
	ConnectedAt    *time.Time     `json:"connectedAt,omitempty"`
	TokenHash      string         `json:"-"`
	TokenUpdatedAt *time.Time     `json:"tokenUpdatedAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// WarmupScore retorna a maturidade da instância em 0–100, derivada das horas
// conectadas desde ConnectedAt.
func (i Instance) WarmupScore(now time.Time) int {
	if i.ConnectedAt == nil {
		return 0
	}
	hours := now.Sub(*i.ConnectedAt).Hours()
	if hours <= 0 {
		return 0
	}
	score := int(hours / WarmupRecommendedHours * 100)
	if score > 100 {
		score = 100
	}
	return score
}

// WarmupRecommended indica se a instância já passou do limiar de aquecimento.
func (i Instance) WarmupRecommended(now time.Time) bool {
	if i.ConnectedAt == nil {
		return false
	}
	return now.Sub(*i.ConnectedAt).Hours() >= WarmupRecommendedHours
}

type RotationStrategy string

const (
	StrategyRandom       RotationStrategy = "random"
	StrategySequential   RotationStrategy = "sequential"
	StrategyLoadBalanced RotationStrategy = "load_balanced"
)

// Valid reporta se o valor é uma das três estratégias suportadas.
func (s RotationStrategy) Valid() bool {
	switch s {
	case StrategyRandom, StrategySequential, StrategyLoadBalanced:
		return true
	}
	return false
}

// ParseStrategy converte a entrada textual em estratégia. O segundo retorno é
// falso para valores fora do conjunto suportado.
func ParseStrategy(s string) (RotationStrategy, bool) {
	strategy := RotationStrategy(s)
	return strategy, strategy.Valid()
}

// RotationPolicy configura o rodízio de instâncias de uma campanha.
// MaxPerInstance igual a zero significa sem limite.
type RotationPolicy struct {
	CampaignID     string           `json:"campaignId"`
	Strategy       RotationStrategy `json:"strategy"`
	MaxPerInstance int              `json:"maxMessagesPerInstance"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// InstanceUsage é o contador de uso de uma instância dentro de uma campanha.
// Position preserva a ordem de inserção usada pelo rodízio sequencial.
type InstanceUsage struct {
	CampaignID   string     `json:"campaignId"`
	InstanceID   string     `json:"instanceId"`
	Position     int        `json:"position"`
	MessagesSent int        `json:"messagesSent"`
	LastUsedAt   *time.Time `json:"lastUsedAt,omitempty"`
	IsActive     bool       `json:"isActive"`
}

type Campaign struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	OwnerUserID     string    `json:"ownerUserId"`
	Message         string    `json:"message"`
	MediaURL        string    `json:"mediaUrl,omitempty"`
	InstanceID      string    `json:"instanceId,omitempty"` // envio fixo quando sem rodízio
	UseRotation     bool      `json:"useRotation"`
	MinDelaySeconds int       `json:"minDelay"`
	MaxDelaySeconds int       `json:"maxDelay"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Lead é um destinatário da campanha. A ordem de disparo é fixada por
// Position no momento da importação.
type Lead struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaignId"`
	Phone      string    `json:"phone"`
	Name       string    `json:"name,omitempty"`
	Segment    string    `json:"segment,omitempty"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"createdAt"`
}

type RunStatus string

const (
	RunStatusPreparing RunStatus = "preparing"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reporta se o status encerra a execução definitivamente.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// Motivos de pausa expostos no snapshot de progresso.
const (
	PauseReasonOperator    = "operator_request"
	PauseReasonNoEligible  = "no_eligible_instance"
	PauseReasonRateCeiling = "instance_caps_reached"
)

// CampaignRun é o estado de uma passada de disparo. Cursor aponta para a
// posição do próximo lead e é persistido para que pausa/retomada preserve a
// ordem.
type CampaignRun struct {
	ID              string     `json:"id"`
	CampaignID      string     `json:"campaignId"`
	Status          RunStatus  `json:"status"`
	PauseReason     string     `json:"pauseReason,omitempty"`
	Cursor          int        `json:"cursor"`
	TotalLeads      int        `json:"totalLeads"`
	SentCount       int        `json:"sentCount"`
	DeliveredCount  int        `json:"deliveredCount"`
	ReadCount       int        `json:"readCount"`
	FailedCount     int        `json:"failedCount"`
	MinDelaySeconds int        `json:"minDelay"`
	MaxDelaySeconds int        `json:"maxDelay"`
	Segment         string     `json:"segment,omitempty"`
	StartedAt       time.Time  `json:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}
