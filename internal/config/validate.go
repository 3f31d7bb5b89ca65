package config

import "fmt"

// Validate rejects configurations that would make the pipeline unsafe or
// nonsensical. Thresholds themselves are not judged clinically; only their
// structural relationships are checked.
func Validate(cfg *Config) error {
	if cfg.Capture.FPS <= 0 {
		return fmt.Errorf("capture.fps must be positive, got %v", cfg.Capture.FPS)
	}
	if cfg.Capture.BufferSeconds <= 0 {
		return fmt.Errorf("capture.buffer_seconds must be positive, got %v", cfg.Capture.BufferSeconds)
	}
	if cfg.Capture.MinSeconds > cfg.Capture.BufferSeconds {
		return fmt.Errorf("capture.min_seconds (%v) exceeds capture.buffer_seconds (%v)",
			cfg.Capture.MinSeconds, cfg.Capture.BufferSeconds)
	}

	hr := cfg.Extract.HeartRate
	if hr.MinBPM <= 0 || hr.MaxBPM <= hr.MinBPM {
		return fmt.Errorf("extract.heart_rate band invalid: [%v, %v]", hr.MinBPM, hr.MaxBPM)
	}

	p := cfg.Extract.Pallor
	if !(p.SevereSaturation < p.ModerateSaturation && p.ModerateSaturation < p.MildSaturation) {
		return fmt.Errorf("extract.pallor saturation thresholds must be strictly decreasing severe<moderate<mild, got %v/%v/%v",
			p.SevereSaturation, p.ModerateSaturation, p.MildSaturation)
	}

	e := cfg.Extract.Edema
	if e.BaselineEAR <= 0 {
		return fmt.Errorf("extract.edema.baseline_ear must be positive, got %v", e.BaselineEAR)
	}
	if !(e.MildScore < e.ModerateScore && e.ModerateScore < e.SevereScore) {
		return fmt.Errorf("extract.edema score thresholds must be strictly increasing mild<moderate<severe, got %v/%v/%v",
			e.MildScore, e.ModerateScore, e.SevereScore)
	}
	if w := e.PeriorbitalWeight + e.FacialWeight; w < 0.999 || w > 1.001 {
		return fmt.Errorf("extract.edema weights must sum to 1.0, got %v", w)
	}

	if cfg.Rules.BradycardiaBPM >= cfg.Rules.TachycardiaBPM {
		return fmt.Errorf("rules.bradycardia_bpm (%v) must be below rules.tachycardia_bpm (%v)",
			cfg.Rules.BradycardiaBPM, cfg.Rules.TachycardiaBPM)
	}

	if cfg.Model.MaxLoadRetries < 0 {
		return fmt.Errorf("model.max_load_retries must be non-negative, got %d", cfg.Model.MaxLoadRetries)
	}
	if len(cfg.Model.SearchDirs) == 0 {
		return fmt.Errorf("model.search_dirs must list at least one candidate location")
	}
	if cfg.Model.GenerationBudget <= 0 {
		return fmt.Errorf("model.generation_budget must be positive, got %v", cfg.Model.GenerationBudget)
	}

	if cfg.Sanitize.MaxInputLen <= 0 || cfg.Sanitize.MaxOutputLen <= 0 {
		return fmt.Errorf("sanitize length caps must be positive")
	}

	return nil
}
