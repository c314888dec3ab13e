package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWarmupScore(t *testing.T) {
	now := time.Now().UTC()

	never := Instance{}
	assert.Zero(t, never.WarmupScore(now))
	assert.False(t, never.WarmupRecommended(now))

	halfway := now.Add(-150 * time.Hour)
	inst := Instance{ConnectedAt: &halfway}
	assert.Equal(t, 50, inst.WarmupScore(now))
	assert.False(t, inst.WarmupRecommended(now))

	mature := now.Add(-500 * time.Hour)
	inst = Instance{ConnectedAt: &mature}
	assert.Equal(t, 100, inst.WarmupScore(now), "score satura em 100")
	assert.True(t, inst.WarmupRecommended(now))
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input string
		want  RotationStrategy
		ok    bool
	}{
		{"random", StrategyRandom, true},
		{"sequential", StrategySequential, true},
		{"load_balanced", StrategyLoadBalanced, true},
		{"RANDOM", "", false},
		{"round_robin", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseStrategy(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRunStatusTerminal(t *testing.T) {
	assert.False(t, RunStatusPreparing.Terminal())
	assert.False(t, RunStatusRunning.Terminal())
	assert.False(t, RunStatusPaused.Terminal())
	assert.True(t, RunStatusCompleted.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
	assert.True(t, RunStatusCancelled.Terminal())
}
