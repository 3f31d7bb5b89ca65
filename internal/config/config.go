// Package config provides configuration management for the screening core.
// Every clinical threshold is an uncalibrated engineering estimate and is
// therefore exposed here as a named, overridable default rather than a
// hard-coded constant.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the screening core.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Sanitize  SanitizeConfig  `mapstructure:"sanitize"`
	Thermal   ThermalConfig   `mapstructure:"thermal"`
	Model     ModelConfig     `mapstructure:"model"`
	Store     StoreConfig     `mapstructure:"store"`
	Screening ScreeningConfig `mapstructure:"screening"`
}

// LoggingConfig controls logrus setup.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// CaptureConfig describes the expected frame stream.
type CaptureConfig struct {
	FPS            float64       `mapstructure:"fps"`
	BufferSeconds  float64       `mapstructure:"buffer_seconds"`
	MinSeconds     float64       `mapstructure:"min_seconds"`
	AnalysisEvery  time.Duration `mapstructure:"analysis_every"`
	MinFrameWidth  int           `mapstructure:"min_frame_width"`
	MinFrameHeight int           `mapstructure:"min_frame_height"`
}

// ExtractConfig holds per-modality calibration placeholders.
type ExtractConfig struct {
	HeartRate HeartRateConfig `mapstructure:"heart_rate"`
	Pallor    PallorConfig    `mapstructure:"pallor"`
	Edema     EdemaConfig     `mapstructure:"edema"`
}

// HeartRateConfig bounds the physiological band of the spectral peak search.
type HeartRateConfig struct {
	MinBPM            float64 `mapstructure:"min_bpm"`
	MaxBPM            float64 `mapstructure:"max_bpm"`
	MinSignalVariance float64 `mapstructure:"min_signal_variance"`
}

// PallorConfig holds the tissue-hue filter and saturation cutoffs.
// The saturation thresholds are calibration placeholders, not clinically
// validated values.
type PallorConfig struct {
	HueLowDeg          float64 `mapstructure:"hue_low_deg"`
	HueHighDeg         float64 `mapstructure:"hue_high_deg"`
	MinTissueCoverage  float64 `mapstructure:"min_tissue_coverage"`
	MildSaturation     float64 `mapstructure:"mild_saturation"`
	ModerateSaturation float64 `mapstructure:"moderate_saturation"`
	SevereSaturation   float64 `mapstructure:"severe_saturation"`
}

// EdemaConfig holds the open-eye aspect-ratio baseline, composite weights
// and score thresholds. The baseline is a calibration placeholder.
type EdemaConfig struct {
	BaselineEAR       float64 `mapstructure:"baseline_ear"`
	PeriorbitalWeight float64 `mapstructure:"periorbital_weight"`
	FacialWeight      float64 `mapstructure:"facial_weight"`
	MildScore         float64 `mapstructure:"mild_score"`
	ModerateScore     float64 `mapstructure:"moderate_score"`
	SevereScore       float64 `mapstructure:"severe_score"`
	MinFaceFraction   float64 `mapstructure:"min_face_fraction"`
}

// RulesConfig holds the rule-engine cutoffs.
type RulesConfig struct {
	TachycardiaBPM float64 `mapstructure:"tachycardia_bpm"`
	BradycardiaBPM float64 `mapstructure:"bradycardia_bpm"`
	// PreeclampsiaWeeks is the gestation from which edema escalates and
	// prompts carry the preeclampsia-risk note.
	PreeclampsiaWeeks int `mapstructure:"preeclampsia_weeks"`
}

// SanitizeConfig caps sanitizer input and output lengths.
type SanitizeConfig struct {
	MaxInputLen  int `mapstructure:"max_input_len"`
	MaxOutputLen int `mapstructure:"max_output_len"`
}

// ThermalConfig controls the thermal monitor.
type ThermalConfig struct {
	ThrottleTempC float64       `mapstructure:"throttle_temp_c"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	SensorPaths   []string      `mapstructure:"sensor_paths"`
	Mock          bool          `mapstructure:"mock"`
	MockTempC     float64       `mapstructure:"mock_temp_c"`
}

// ModelConfig controls artifact resolution and orchestration.
type ModelConfig struct {
	// SearchDirs is the ordered candidate list: application-private
	// directory first, then the shared fallback location.
	SearchDirs         []string      `mapstructure:"search_dirs"`
	ReasonerArtifact   string        `mapstructure:"reasoner_artifact"`
	TranslatorArtifact string        `mapstructure:"translator_artifact"`
	MinArtifactBytes   int64         `mapstructure:"min_artifact_bytes"`
	MaxLoadRetries     int           `mapstructure:"max_load_retries"`
	BackoffBase        time.Duration `mapstructure:"backoff_base"`
	GenerationBudget   time.Duration `mapstructure:"generation_budget"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	BreakerFailures    uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
}

// StoreConfig controls the local screening-history store.
type StoreConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// ScreeningConfig controls the service layer.
type ScreeningConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// Manager loads and validates configuration through viper.
type Manager struct {
	config *Config
}

// NewManager creates a configuration manager, reading defaults, an optional
// config file, and NKU_SCREEN_* environment overrides.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// GetConfig returns the loaded configuration.
func (m *Manager) GetConfig() *Config { return m.config }

func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/nku-screen/")

	viper.SetEnvPrefix("NKU_SCREEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; defaults and environment apply.
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := Validate(config); err != nil {
		return err
	}

	m.config = config
	return nil
}

func setDefaults() {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".nku-screen")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("capture.fps", 30.0)
	viper.SetDefault("capture.buffer_seconds", 10.0)
	viper.SetDefault("capture.min_seconds", 5.0)
	viper.SetDefault("capture.analysis_every", "500ms")
	viper.SetDefault("capture.min_frame_width", 50)
	viper.SetDefault("capture.min_frame_height", 50)

	viper.SetDefault("extract.heart_rate.min_bpm", 40.0)
	viper.SetDefault("extract.heart_rate.max_bpm", 200.0)
	viper.SetDefault("extract.heart_rate.min_signal_variance", 1.0)

	viper.SetDefault("extract.pallor.hue_low_deg", 340.0)
	viper.SetDefault("extract.pallor.hue_high_deg", 50.0)
	viper.SetDefault("extract.pallor.min_tissue_coverage", 0.15)
	viper.SetDefault("extract.pallor.mild_saturation", 0.45)
	viper.SetDefault("extract.pallor.moderate_saturation", 0.30)
	viper.SetDefault("extract.pallor.severe_saturation", 0.18)

	viper.SetDefault("extract.edema.baseline_ear", 0.30)
	viper.SetDefault("extract.edema.periorbital_weight", 0.6)
	viper.SetDefault("extract.edema.facial_weight", 0.4)
	viper.SetDefault("extract.edema.mild_score", 0.35)
	viper.SetDefault("extract.edema.moderate_score", 0.55)
	viper.SetDefault("extract.edema.severe_score", 0.75)
	viper.SetDefault("extract.edema.min_face_fraction", 0.08)

	viper.SetDefault("rules.tachycardia_bpm", 100.0)
	viper.SetDefault("rules.bradycardia_bpm", 50.0)
	viper.SetDefault("rules.preeclampsia_weeks", 20)

	viper.SetDefault("sanitize.max_input_len", 1000)
	viper.SetDefault("sanitize.max_output_len", 5000)

	viper.SetDefault("thermal.throttle_temp_c", 42.0)
	viper.SetDefault("thermal.cooldown", "30s")
	viper.SetDefault("thermal.sensor_paths", []string{
		"/sys/class/power_supply/battery/temp",
		"/sys/devices/virtual/thermal/thermal_zone0/temp",
	})
	viper.SetDefault("thermal.mock", false)
	viper.SetDefault("thermal.mock_temp_c", 35.0)

	viper.SetDefault("model.search_dirs", []string{
		filepath.Join(dataDir, "models"),
		"/data/local/shared/nku-models",
	})
	viper.SetDefault("model.reasoner_artifact", "medscreen-4b-q.onnx")
	viper.SetDefault("model.translator_artifact", "translate-4b-q.onnx")
	viper.SetDefault("model.min_artifact_bytes", 1<<20)
	viper.SetDefault("model.max_load_retries", 3)
	viper.SetDefault("model.backoff_base", "250ms")
	viper.SetDefault("model.generation_budget", "45s")
	viper.SetDefault("model.max_tokens", 384)
	viper.SetDefault("model.breaker_failures", 3)
	viper.SetDefault("model.breaker_timeout", "60s")

	viper.SetDefault("store.db_path", filepath.Join(dataDir, "screenings.db"))

	viper.SetDefault("screening.cache_size", 64)
}
