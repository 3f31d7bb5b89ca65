package domain

import "time"

// ConfidenceGate is the global confidence threshold. A per-sensor datum
// below this value may influence neither the prompt content nor the rule
// engine's decisions; it is surfaced as excluded, never silently dropped.
const ConfidenceGate = 0.75

// HeartRateBiomarkers carries the raw frequency-domain measurements behind
// a heart-rate estimate.
type HeartRateBiomarkers struct {
	DominantFreqHz float64 `json:"dominant_freq_hz"`
	PeakToAvgRatio float64 `json:"peak_to_avg_ratio"`
	BufferFillPct  float64 `json:"buffer_fill_pct"`
}

// PallorBiomarkers carries the raw tissue-color measurements behind a
// pallor score.
type PallorBiomarkers struct {
	TissueCoverage float64 `json:"tissue_coverage"`
	MeanSaturation float64 `json:"mean_saturation"`
	TissueHueRatio float64 `json:"tissue_hue_ratio"`
}

// EdemaBiomarkers carries the raw facial-geometry measurements behind an
// edema score.
type EdemaBiomarkers struct {
	EyeAspectRatio   float64 `json:"eye_aspect_ratio"`
	PeriorbitalScore float64 `json:"periorbital_score"`
	UsedLandmarks    bool    `json:"used_landmarks"`
}

// ExtractorResult is the output of one analysis pass of one modality.
// Each extractor exclusively owns its current result and replaces it whole
// on every pass; results are never mutated in place.
type ExtractorResult struct {
	Modality   string
	Score      float64 // continuous [0,1]
	Confidence float64 // [0,1]
	Severity   IndicatorSeverity
	Quality    SignalQuality
	Analyzed   bool

	// Modality-specific biomarkers; exactly one is populated.
	HeartRate *HeartRateBiomarkers
	Pallor    *PallorBiomarkers
	Edema     *EdemaBiomarkers
}

// Confident reports whether the result clears the global confidence gate.
func (r *ExtractorResult) Confident() bool {
	return r != nil && r.Analyzed && r.Confidence >= ConfidenceGate
}

// Symptom is one reported complaint with an optional duration.
type Symptom struct {
	Text     string
	Duration string // free text such as "2 days"; empty when not reported
}

// HeartRateReading is an optional heart-rate measurement inside a
// VitalSigns snapshot.
type HeartRateReading struct {
	BPM        float64
	Confidence float64
	Quality    SignalQuality
	Biomarkers HeartRateBiomarkers
}

// PallorReading is an optional pallor measurement inside a VitalSigns
// snapshot.
type PallorReading struct {
	Score      float64
	Severity   IndicatorSeverity
	Confidence float64
	Biomarkers PallorBiomarkers
}

// EdemaReading is an optional edema measurement inside a VitalSigns
// snapshot.
type EdemaReading struct {
	Score      float64
	Severity   IndicatorSeverity
	Confidence float64
	Biomarkers EdemaBiomarkers
}

// VitalSigns is the immutable snapshot handed from sensor fusion to the
// clinical reasoner. Sensor fusion builds a fresh value on every fusion
// pass; downstream consumers must treat it as read-only.
type VitalSigns struct {
	HeartRate *HeartRateReading
	Pallor    *PallorReading
	Edema     *EdemaReading

	Pregnant         bool
	GestationalWeeks *int

	// Symptoms preserves report order.
	Symptoms []Symptom

	CapturedAt time.Time
}

// HasConfidentData reports whether at least one present modality clears the
// confidence gate.
func (v VitalSigns) HasConfidentData() bool {
	if v.HeartRate != nil && v.HeartRate.Confidence >= ConfidenceGate {
		return true
	}
	if v.Pallor != nil && v.Pallor.Confidence >= ConfidenceGate {
		return true
	}
	if v.Edema != nil && v.Edema.Confidence >= ConfidenceGate {
		return true
	}
	return false
}

// Assessment is the final result of a triage run. The pipeline always
// terminates in a valid Assessment, possibly an abstention, never an empty
// result.
type Assessment struct {
	Severity        Severity
	Urgency         Urgency
	Triage          TriageCategory
	PrimaryConcerns []string
	Recommendations []string
	Disclaimer      string
	Provenance      Provenance
	Prompt          string // the prompt text that produced a model result
}

// ScreeningDisclaimer is attached to every Assessment.
const ScreeningDisclaimer = "Screening aid only. Not a diagnosis. " +
	"All readings are engineering estimates pending clinical calibration; " +
	"refer per local protocol."
