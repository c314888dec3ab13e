package rotation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whatleads/campaignd/internal/storage/model"
)

func usage(instanceID string, position, sent int) model.InstanceUsage {
	return model.InstanceUsage{
		CampaignID:   "camp-1",
		InstanceID:   instanceID,
		Position:     position,
		MessagesSent: sent,
		IsActive:     true,
	}
}

func policy(strategy model.RotationStrategy, cap int) model.RotationPolicy {
	return model.RotationPolicy{
		CampaignID:     "camp-1",
		Strategy:       strategy,
		MaxPerInstance: cap,
	}
}

func TestSelectorSequentialRoundRobin(t *testing.T) {
	s := NewSelector(1, nil)
	usages := []model.InstanceUsage{
		usage("inst-a", 0, 0),
		usage("inst-b", 1, 0),
		usage("inst-c", 2, 0),
	}
	p := policy(model.StrategySequential, 0)

	var got []string
	for i := 0; i < 6; i++ {
		id, err := s.Next(p, usages)
		require.NoError(t, err)
		got = append(got, id)
	}
	assert.Equal(t, []string{"inst-a", "inst-b", "inst-c", "inst-a", "inst-b", "inst-c"}, got)
}

func TestSelectorSequentialSkipsIneligible(t *testing.T) {
	s := NewSelector(1, nil)
	usages := []model.InstanceUsage{
		usage("inst-a", 0, 0),
		usage("inst-b", 1, 0),
		usage("inst-c", 2, 0),
	}
	p := policy(model.StrategySequential, 0)

	id, err := s.Next(p, usages)
	require.NoError(t, err)
	assert.Equal(t, "inst-a", id)

	// inst-b fica inelegível no meio da rodada e é pulada sem quebrar o cursor
	usages[1].IsActive = false
	id, err = s.Next(p, usages)
	require.NoError(t, err)
	assert.Equal(t, "inst-c", id)

	usages[1].IsActive = true
	id, err = s.Next(p, usages)
	require.NoError(t, err)
	assert.Equal(t, "inst-a", id)
}

func TestSelectorSequentialCursorIsPerCampaign(t *testing.T) {
	s := NewSelector(1, nil)
	usages := []model.InstanceUsage{usage("inst-a", 0, 0), usage("inst-b", 1, 0)}

	p1 := policy(model.StrategySequential, 0)
	p2 := p1
	p2.CampaignID = "camp-2"

	id, err := s.Next(p1, usages)
	require.NoError(t, err)
	assert.Equal(t, "inst-a", id)

	// outra campanha começa do zero, sem herdar o cursor
	id, err = s.Next(p2, usages)
	require.NoError(t, err)
	assert.Equal(t, "inst-a", id)
}

func TestSelectorResetCursor(t *testing.T) {
	s := NewSelector(1, nil)
	usages := []model.InstanceUsage{usage("inst-a", 0, 0), usage("inst-b", 1, 0)}
	p := policy(model.StrategySequential, 0)

	_, err := s.Next(p, usages)
	require.NoError(t, err)

	s.ResetCursor("camp-1")
	id, err := s.Next(p, usages)
	require.NoError(t, err)
	assert.Equal(t, "inst-a", id)
}

func TestSelectorRandomIsSeededAndCoversAll(t *testing.T) {
	usages := []model.InstanceUsage{
		usage("inst-a", 0, 0),
		usage("inst-b", 1, 0),
		usage("inst-c", 2, 0),
	}
	p := policy(model.StrategyRandom, 0)

	s1 := NewSelector(42, nil)
	s2 := NewSelector(42, nil)
	counts := map[string]int{}
	for i := 0; i < 300; i++ {
		id1, err := s1.Next(p, usages)
		require.NoError(t, err)
		id2, err := s2.Next(p, usages)
		require.NoError(t, err)
		assert.Equal(t, id1, id2, "mesma seed deve produzir a mesma sequência")
		counts[id1]++
	}

	for _, u := range usages {
		assert.Greater(t, counts[u.InstanceID], 0, "instância %s nunca sorteada", u.InstanceID)
	}
}

func TestSelectorLoadBalancedFairness(t *testing.T) {
	s := NewSelector(7, nil)
	usages := []model.InstanceUsage{
		usage("inst-a", 0, 0),
		usage("inst-b", 1, 0),
		usage("inst-c", 2, 0),
	}
	p := policy(model.StrategyLoadBalanced, 0)

	for i := 0; i < 30; i++ {
		id, err := s.Next(p, usages)
		require.NoError(t, err)
		for j := range usages {
			if usages[j].InstanceID == id {
				usages[j].MessagesSent++
			}
		}
	}

	minSent, maxSent := usages[0].MessagesSent, usages[0].MessagesSent
	for _, u := range usages[1:] {
		if u.MessagesSent < minSent {
			minSent = u.MessagesSent
		}
		if u.MessagesSent > maxSent {
			maxSent = u.MessagesSent
		}
	}
	assert.LessOrEqual(t, maxSent-minSent, 1, "contadores devem divergir no máximo em 1")
}

func TestSelectorLoadBalancedTieBreaks(t *testing.T) {
	s := NewSelector(7, nil)
	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now().Add(-10 * time.Minute)

	a := usage("inst-a", 0, 5)
	a.LastUsedAt = &recent
	b := usage("inst-b", 1, 5)
	b.LastUsedAt = &old
	c := usage("inst-c", 2, 5)

	p := policy(model.StrategyLoadBalanced, 0)

	// nunca usada vem antes de qualquer last_used_at
	id, err := s.Next(p, []model.InstanceUsage{a, b, c})
	require.NoError(t, err)
	assert.Equal(t, "inst-c", id)

	// entre usadas, a mais antiga primeiro
	id, err = s.Next(p, []model.InstanceUsage{a, b})
	require.NoError(t, err)
	assert.Equal(t, "inst-b", id)

	// empate total resolve por ID
	d := usage("inst-d", 3, 5)
	id, err = s.Next(p, []model.InstanceUsage{d, c})
	require.NoError(t, err)
	assert.Equal(t, "inst-c", id)
}

func TestSelectorCapExhaustion(t *testing.T) {
	s := NewSelector(1, nil)
	usages := []model.InstanceUsage{
		usage("inst-a", 0, 2),
		usage("inst-b", 1, 2),
	}
	p := policy(model.StrategySequential, 2)

	_, err := s.Next(p, usages)
	assert.ErrorIs(t, err, ErrNoEligibleInstance)

	// cap zero significa sem limite
	p.MaxPerInstance = 0
	_, err = s.Next(p, usages)
	assert.NoError(t, err)
}

func TestSelectorSkipsDisconnected(t *testing.T) {
	s := NewSelector(1, func(id string) bool { return id != "inst-a" })
	usages := []model.InstanceUsage{
		usage("inst-a", 0, 0),
		usage("inst-b", 1, 0),
	}
	p := policy(model.StrategySequential, 0)

	for i := 0; i < 3; i++ {
		id, err := s.Next(p, usages)
		require.NoError(t, err)
		assert.Equal(t, "inst-b", id)
	}
}

func TestSelectorSkipsInactive(t *testing.T) {
	s := NewSelector(1, nil)
	a := usage("inst-a", 0, 0)
	a.IsActive = false
	usages := []model.InstanceUsage{a, usage("inst-b", 1, 0)}

	id, err := s.Next(policy(model.StrategyLoadBalanced, 0), usages)
	require.NoError(t, err)
	assert.Equal(t, "inst-b", id)

	usages[1].IsActive = false
	_, err = s.Next(policy(model.StrategyLoadBalanced, 0), usages)
	assert.ErrorIs(t, err, ErrNoEligibleInstance)
}

func TestSelectorInvalidStrategy(t *testing.T) {
	s := NewSelector(1, nil)
	_, err := s.Next(policy("round_trip", 0), []model.InstanceUsage{usage("inst-a", 0, 0)})
	assert.ErrorIs(t, err, ErrInvalidStrategy)
}
