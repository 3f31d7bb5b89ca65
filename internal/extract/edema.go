package extract

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/nku-health/nku-screen/internal/config"
	"github.com/nku-health/nku-screen/internal/domain"
)

// ModalityEdema tags edema extractor results.
const ModalityEdema = "edema"

// Confidence assigned with and without a landmark set. The heuristic region
// path is deliberately held under the confidence gate.
const (
	edemaLandmarkConfidence  = 0.85
	edemaHeuristicConfidence = 0.5
)

// edemaGradientScale normalizes the periorbital brightness gradient onto the
// smoothness score: smooth (swollen) skin has a low gradient. Calibration
// placeholder.
const edemaGradientScale = 0.25

// eyeBandTop and eyeBandBottom bound the heuristic eye band as fractions of
// the face-region height when no landmarks are available.
const (
	eyeBandTop    = 0.30
	eyeBandBottom = 0.55
)

// Edema scores periorbital swelling from a single still plus an optional
// facial landmark set. Pure function of its inputs; no rolling state.
type Edema struct {
	cfg config.EdemaConfig
	log *logrus.Logger
}

// NewEdema builds the extractor.
func NewEdema(cfg config.EdemaConfig, log *logrus.Logger) *Edema {
	return &Edema{cfg: cfg, log: log}
}

// Analyze combines an eye-aspect-ratio score with a periorbital texture
// score into a fixed weighted composite. A face region below the minimum
// frame fraction yields an insufficient result, never a confident guess.
func (e *Edema) Analyze(frame *Frame, lm *Landmarks) *domain.ExtractorResult {
	if frame == nil || frame.Width == 0 || frame.Height == 0 {
		return &domain.ExtractorResult{Modality: ModalityEdema, Quality: domain.QualityInsufficient}
	}

	face := frame.CenterRegion()
	if lm != nil && lm.FaceBounds.Area() > 0 {
		face = frame.clip(lm.FaceBounds)
	}
	faceFraction := float64(face.Area()) / float64(frame.Width*frame.Height)
	if faceFraction < e.cfg.MinFaceFraction {
		return &domain.ExtractorResult{
			Modality: ModalityEdema,
			Quality:  domain.QualityInsufficient,
			Edema:    &domain.EdemaBiomarkers{},
		}
	}

	ear, usedLandmarks := e.eyeAspectRatio(frame, face, lm)
	earScore := clamp01((e.cfg.BaselineEAR - ear) / e.cfg.BaselineEAR)

	periorbital := e.periorbitalScore(frame, face, lm)

	composite := e.cfg.PeriorbitalWeight*periorbital + e.cfg.FacialWeight*earScore
	severity := e.severityForScore(composite)

	confidence := edemaHeuristicConfidence
	if usedLandmarks {
		confidence = edemaLandmarkConfidence
	}

	quality := domain.QualityFair
	if confidence >= qualityGoodConfidence {
		quality = domain.QualityGood
	}

	res := &domain.ExtractorResult{
		Modality:   ModalityEdema,
		Score:      composite,
		Confidence: confidence,
		Severity:   severity,
		Quality:    quality,
		Analyzed:   true,
		Edema: &domain.EdemaBiomarkers{
			EyeAspectRatio:   ear,
			PeriorbitalScore: periorbital,
			UsedLandmarks:    usedLandmarks,
		},
	}
	e.log.WithFields(logrus.Fields{
		"ear":            ear,
		"periorbital":    periorbital,
		"composite":      composite,
		"severity":       severity.String(),
		"used_landmarks": usedLandmarks,
	}).Debug("Edema analysis pass")
	return res
}

// eyeAspectRatio averages the six-point EAR over both eyes when landmarks
// are available; otherwise it estimates eye openness from the dark-row span
// inside the heuristic eye band.
func (e *Edema) eyeAspectRatio(frame *Frame, face Rect, lm *Landmarks) (float64, bool) {
	if lm != nil {
		var sum float64
		var n int
		if ear, ok := EyeAspectRatio(lm.LeftEye); ok {
			sum += ear
			n++
		}
		if ear, ok := EyeAspectRatio(lm.RightEye); ok {
			sum += ear
			n++
		}
		if n > 0 {
			return sum / float64(n), true
		}
	}

	band := Rect{
		X0: face.X0,
		X1: face.X1,
		Y0: face.Y0 + int(float64(face.Dy())*eyeBandTop),
		Y1: face.Y0 + int(float64(face.Dy())*eyeBandBottom),
	}
	rows := frame.RowBrightness(band)
	if len(rows) == 0 {
		return e.cfg.BaselineEAR, false
	}
	var mean float64
	for _, v := range rows {
		mean += v
	}
	mean /= float64(len(rows))

	// Eyes and lashes darken their rows; the fraction of dark rows tracks
	// vertical eye opening, which stands in for the lid-to-lid distance.
	var dark int
	for _, v := range rows {
		if v < 0.85*mean {
			dark++
		}
	}
	openFraction := float64(dark) / float64(len(rows))
	return openFraction * e.cfg.BaselineEAR / 0.4, false
}

// periorbitalScore measures skin smoothness under the eye band: swollen
// tissue flattens texture, lowering the brightness gradient.
func (e *Edema) periorbitalScore(frame *Frame, face Rect, lm *Landmarks) float64 {
	region := Rect{
		X0: face.X0,
		X1: face.X1,
		Y0: face.Y0 + int(float64(face.Dy())*eyeBandBottom),
		Y1: face.Y0 + int(float64(face.Dy())*0.75),
	}
	if lm != nil && len(lm.LeftEye) == 6 && len(lm.RightEye) == 6 {
		lowY := math.Max(lm.LeftEye[4].Y, lm.RightEye[4].Y)
		region.Y0 = int(lowY)
		region.Y1 = int(lowY) + face.Dy()/5
	}
	gradient := frame.BrightnessGradient(region)
	return clamp01(1.0 - gradient/edemaGradientScale)
}

func (e *Edema) severityForScore(score float64) domain.IndicatorSeverity {
	switch {
	case score > e.cfg.SevereScore:
		return domain.IndicatorSevere
	case score > e.cfg.ModerateScore:
		return domain.IndicatorModerate
	case score > e.cfg.MildScore:
		return domain.IndicatorMild
	default:
		return domain.IndicatorNone
	}
}
