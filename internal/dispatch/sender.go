package dispatch

import (
	"context"

	"github.com/whatleads/campaignd/internal/storage/model"
)

// Sender entrega uma mensagem de campanha através de uma instância. Retorna
// o ID da mensagem no transporte para correlação posterior de recibos.
// Falhas transitórias (rede, instância caiu entre seleção e envio) voltam
// como erro e o scheduler re-seleciona e tenta de novo até o limite.
type Sender interface {
	Send(ctx context.Context, instanceID string, lead model.Lead, campaign model.Campaign) (messageID string, err error)
}
