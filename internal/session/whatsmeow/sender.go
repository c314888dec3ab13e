package whatsmeow

import (
	"context"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/whatleads/campaignd/internal/storage/model"
)

// Sender envia mensagens de campanha através do cliente da instância
// escolhida pelo rodízio.
type Sender struct {
	manager *Manager
	log     *zap.Logger
}

func NewSender(manager *Manager, log *zap.Logger) *Sender {
	return &Sender{manager: manager, log: log}
}

func (s *Sender) Send(ctx context.Context, instanceID string, lead model.Lead, campaign model.Campaign) (string, error) {
	client, err := s.manager.GetClient(instanceID)
	if err != nil {
		return "", err
	}
	if !client.IsLoggedIn() {
		return "", ErrNotConnected
	}

	toJID, err := types.ParseJID(lead.Phone + "@s.whatsapp.net")
	if err != nil {
		return "", fmt.Errorf("whatsmeow: jid inválido para %s: %w", lead.Phone, err)
	}

	text := renderMessage(campaign, lead)
	msg := &waE2E.Message{
		Conversation: proto.String(text),
	}

	resp, err := client.SendMessage(ctx, toJID, msg)
	if err != nil {
		s.log.Warn("falha no envio da mensagem",
			zap.String("instance_id", instanceID),
			zap.String("to", toJID.String()),
			zap.Error(err),
		)
		return "", err
	}

	s.log.Info("mensagem enviada com sucesso",
		zap.String("instance_id", instanceID),
		zap.String("to", toJID.String()),
		zap.String("server_id", resp.ID),
	)
	return resp.ID, nil
}

// renderMessage substitui o placeholder {{nome}} e anexa a mídia como link.
func renderMessage(campaign model.Campaign, lead model.Lead) string {
	text := strings.ReplaceAll(campaign.Message, "{{nome}}", lead.Name)
	text = strings.TrimSpace(text)
	if campaign.MediaURL != "" {
		text = text + "\n\n" + campaign.MediaURL
	}
	return text
}
