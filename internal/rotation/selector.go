package rotation

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/whatleads/campaignd/internal/storage/model"
)

// ConnectivityFunc responde se uma instância está conectada no momento da
// seleção. Em produção é o session manager; em testes, um stub.
type ConnectivityFunc func(instanceID string) bool

// Selector escolhe a próxima instância de envio segundo a estratégia da
// política. A elegibilidade é reavaliada a cada chamada: instância ativa,
// conectada e abaixo do limite (quando configurado).
type Selector struct {
	mu        sync.Mutex
	rng       *rand.Rand
	cursors   map[string]int // campaignID → posição da última instância servida
	connected ConnectivityFunc
}

func NewSelector(seed int64, connected ConnectivityFunc) *Selector {
	if connected == nil {
		connected = func(string) bool { return true }
	}
	return &Selector{
		rng:       rand.New(rand.NewSource(seed)),
		cursors:   make(map[string]int),
		connected: connected,
	}
}

// Next retorna o ID da instância que deve enviar a próxima mensagem.
// Retorna ErrNoEligibleInstance quando o conjunto elegível está vazio.
func (s *Selector) Next(policy model.RotationPolicy, usages []model.InstanceUsage) (string, error) {
	if !policy.Strategy.Valid() {
		return "", ErrInvalidStrategy
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	eligible := s.eligible(policy, usages)
	if len(eligible) == 0 {
		return "", ErrNoEligibleInstance
	}

	switch policy.Strategy {
	case model.StrategyRandom:
		return eligible[s.rng.Intn(len(eligible))].InstanceID, nil
	case model.StrategySequential:
		return s.nextSequential(policy.CampaignID, eligible), nil
	default:
		return nextLoadBalanced(eligible), nil
	}
}

// ResetCursor descarta o cursor sequencial de uma campanha. Chamado quando a
// política é removida ou os contadores são zerados.
func (s *Selector) ResetCursor(campaignID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, campaignID)
}

// eligible filtra e ordena por posição de inserção, a ordem estável usada
// pelo rodízio sequencial.
func (s *Selector) eligible(policy model.RotationPolicy, usages []model.InstanceUsage) []model.InstanceUsage {
	out := make([]model.InstanceUsage, 0, len(usages))
	for _, u := range usages {
		if !u.IsActive {
			continue
		}
		if policy.MaxPerInstance > 0 && u.MessagesSent >= policy.MaxPerInstance {
			continue
		}
		if !s.connected(u.InstanceID) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// nextSequential avança o cursor uma casa elegível por chamada, com wrap.
// O cursor guarda a posição da última instância servida, então instâncias
// que ficam inelegíveis no meio da rodada são simplesmente puladas.
func (s *Selector) nextSequential(campaignID string, eligible []model.InstanceUsage) string {
	last, ok := s.cursors[campaignID]
	if ok {
		for _, u := range eligible {
			if u.Position > last {
				s.cursors[campaignID] = u.Position
				return u.InstanceID
			}
		}
	}
	first := eligible[0]
	s.cursors[campaignID] = first.Position
	return first.InstanceID
}

// nextLoadBalanced escolhe a instância com menos envios na passada atual.
// Empate: last_used_at mais antigo (nunca usada vem primeiro), depois ID.
func nextLoadBalanced(eligible []model.InstanceUsage) string {
	best := eligible[0]
	for _, u := range eligible[1:] {
		if lessLoaded(u, best) {
			best = u
		}
	}
	return best.InstanceID
}

func lessLoaded(a, b model.InstanceUsage) bool {
	if a.MessagesSent != b.MessagesSent {
		return a.MessagesSent < b.MessagesSent
	}
	switch {
	case a.LastUsedAt == nil && b.LastUsedAt != nil:
		return true
	case a.LastUsedAt != nil && b.LastUsedAt == nil:
		return false
	case a.LastUsedAt != nil && b.LastUsedAt != nil && !a.LastUsedAt.Equal(*b.LastUsedAt):
		return a.LastUsedAt.Before(*b.LastUsedAt)
	}
	return a.InstanceID < b.InstanceID
}
