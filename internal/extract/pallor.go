package extract

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/nku-health/nku-screen/internal/config"
	"github.com/nku-health/nku-screen/internal/domain"
)

// ModalityPallor tags pallor extractor results.
const ModalityPallor = "pallor"

// pallorSaturationScale normalizes mean tissue saturation onto the [0,1]
// pallor score: score = 1 - sat/scale, clamped. Calibration placeholder.
const pallorSaturationScale = 0.60

// pallorBaseConfidence is the confidence assigned when tissue coverage
// clears the minimum. Single-still color analysis never reaches 1.0.
const pallorBaseConfidence = 0.9

// Pallor scores tissue color from a single still. Lower tissue saturation
// means more pallor. The extractor is a pure function of its input frame;
// it keeps no rolling state.
type Pallor struct {
	cfg config.PallorConfig
	log *logrus.Logger
}

// NewPallor builds the extractor.
func NewPallor(cfg config.PallorConfig, log *logrus.Logger) *Pallor {
	return &Pallor{cfg: cfg, log: log}
}

// Analyze classifies region pixels into the tissue hue window and maps the
// mean tissue saturation onto a severity. Coverage below the configured
// minimum downgrades confidence instead of guessing; the result then falls
// under the confidence gate and is excluded downstream.
func (p *Pallor) Analyze(frame *Frame) *domain.ExtractorResult {
	if frame == nil || frame.Width == 0 || frame.Height == 0 {
		return &domain.ExtractorResult{Modality: ModalityPallor, Quality: domain.QualityInsufficient}
	}

	stats := frame.TissueStats(frame.CenterRegion(), p.cfg.HueLowDeg, p.cfg.HueHighDeg)

	confidence := pallorBaseConfidence
	if stats.Coverage < p.cfg.MinTissueCoverage {
		if p.cfg.MinTissueCoverage > 0 {
			confidence = pallorBaseConfidence * (stats.Coverage / p.cfg.MinTissueCoverage) * 0.5
		} else {
			confidence = 0
		}
	}
	if stats.Coverage == 0 {
		return &domain.ExtractorResult{
			Modality: ModalityPallor,
			Quality:  domain.QualityInsufficient,
			Pallor:   &domain.PallorBiomarkers{},
		}
	}

	score := clamp01(1.0 - stats.MeanSaturation/pallorSaturationScale)
	severity := p.severityForSaturation(stats.MeanSaturation)

	quality := domain.QualityPoor
	switch {
	case confidence >= qualityGoodConfidence:
		quality = domain.QualityGood
	case confidence >= qualityFairConfidence:
		quality = domain.QualityFair
	}

	res := &domain.ExtractorResult{
		Modality:   ModalityPallor,
		Score:      score,
		Confidence: math.Round(confidence*100) / 100,
		Severity:   severity,
		Quality:    quality,
		Analyzed:   true,
		Pallor: &domain.PallorBiomarkers{
			TissueCoverage: stats.Coverage,
			MeanSaturation: stats.MeanSaturation,
			TissueHueRatio: stats.HueRatio,
		},
	}
	p.log.WithFields(logrus.Fields{
		"coverage":   stats.Coverage,
		"saturation": stats.MeanSaturation,
		"severity":   severity.String(),
		"confidence": res.Confidence,
	}).Debug("Pallor analysis pass")
	return res
}

// severityForSaturation maps mean tissue saturation to an indicator tier.
// Lower saturation is worse. Thresholds are configured, never inline.
func (p *Pallor) severityForSaturation(sat float64) domain.IndicatorSeverity {
	switch {
	case sat >= p.cfg.MildSaturation:
		return domain.IndicatorNone
	case sat >= p.cfg.ModerateSaturation:
		return domain.IndicatorMild
	case sat >= p.cfg.SevereSaturation:
		return domain.IndicatorModerate
	default:
		return domain.IndicatorSevere
	}
}
