package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsLoadAndValidate(t *testing.T) {
	viper.Reset()
	m, err := NewManager()
	require.NoError(t, err)

	cfg := m.GetConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 30.0, cfg.Capture.FPS)
	assert.Equal(t, 100.0, cfg.Rules.TachycardiaBPM)
	assert.Equal(t, 50.0, cfg.Rules.BradycardiaBPM)
	assert.Equal(t, 42.0, cfg.Thermal.ThrottleTempC)
	assert.Equal(t, 30*time.Second, cfg.Thermal.Cooldown)
	assert.Len(t, cfg.Model.SearchDirs, 2)
	assert.NoError(t, Validate(cfg))
}

func TestEnvOverride(t *testing.T) {
	viper.Reset()
	t.Setenv("NKU_SCREEN_RULES_TACHYCARDIA_BPM", "110")

	m, err := NewManager()
	require.NoError(t, err)
	assert.Equal(t, 110.0, m.GetConfig().Rules.TachycardiaBPM)
}

func TestValidateRejectsBrokenThresholdOrdering(t *testing.T) {
	viper.Reset()
	m, err := NewManager()
	require.NoError(t, err)

	cfg := *m.GetConfig()
	cfg.Extract.Pallor.SevereSaturation = 0.9 // above mild: nonsense ordering
	assert.Error(t, Validate(&cfg))

	cfg = *m.GetConfig()
	cfg.Rules.BradycardiaBPM = 120
	assert.Error(t, Validate(&cfg))

	cfg = *m.GetConfig()
	cfg.Extract.Edema.FacialWeight = 0.9 // weights no longer sum to 1
	assert.Error(t, Validate(&cfg))
}
