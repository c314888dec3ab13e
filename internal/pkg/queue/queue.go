package queue

import (
	"context"
	"time"
)

// Event é um recibo de entrega vindo da camada de sessão WhatsApp, consumido
// pelo worker de estatísticas de disparo.
type Event struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instanceId"`
	Type       string    `json:"type"` // receipt.delivered | receipt.read
	MessageIDs []string  `json:"messageIds"`
	Chat       string    `json:"chat,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

const (
	EventReceiptDelivered = "receipt.delivered"
	EventReceiptRead      = "receipt.read"
)

type Queue interface {
	Enqueue(ctx context.Context, event Event) error
	Dequeue(ctx context.Context, timeout time.Duration) (*Event, error)
	Size(ctx context.Context) (int64, error)
	Close() error
}
