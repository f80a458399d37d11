package fusion

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/yard.fusion/internal/config"
)

func TestConfigFromTuning_DefaultsFileMatchesBuiltins(t *testing.T) {
	t.Parallel()
	fromFile := ConfigFromTuning(config.MustLoadDefaultConfig())
	if diff := cmp.Diff(DefaultConfig(), fromFile); diff != "" {
		t.Errorf("defaults file drifted from built-in defaults (-builtin +file):\n%s", diff)
	}
}

func TestConfigFromTuning_Overrides(t *testing.T) {
	t.Parallel()
	stale := "60s"
	length := 20
	weight := 0.95
	cfg := ConfigFromTuning(&config.TuningConfig{
		StaleAfter:          &stale,
		MaxTrajectoryLength: &length,
		PriorityUWBWeight:   &weight,
	})
	assert.Equal(t, 60*time.Second, cfg.StaleAfter)
	assert.Equal(t, 20, cfg.MaxTrajectoryLength)
	assert.InDelta(t, 0.95, cfg.PriorityUWBWeight, 1e-9)
	assert.InDelta(t, 0.4, cfg.BaseVisionWeight, 1e-9)
}
