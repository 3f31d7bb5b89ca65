// Package fusion aggregates the latest extractor outputs with symptom and
// pregnancy context into immutable VitalSigns snapshots for the reasoner.
package fusion

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nku-health/nku-screen/internal/domain"
)

// Aggregator holds the most recent result per modality (last-write-wins, no
// temporal smoothing across captures) plus the reported symptom list and
// pregnancy context. All methods are safe for concurrent use.
type Aggregator struct {
	log *logrus.Logger

	mu               sync.Mutex
	heartRate        *domain.ExtractorResult
	pallor           *domain.ExtractorResult
	edema            *domain.ExtractorResult
	symptoms         []domain.Symptom
	pregnant         bool
	gestationalWeeks *int
}

// NewAggregator creates an empty aggregator.
func NewAggregator(log *logrus.Logger) *Aggregator {
	return &Aggregator{log: log}
}

// UpdateHeartRate replaces the current heart-rate result.
func (a *Aggregator) UpdateHeartRate(res *domain.ExtractorResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.heartRate = res
}

// UpdatePallor replaces the current pallor result.
func (a *Aggregator) UpdatePallor(res *domain.ExtractorResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pallor = res
}

// UpdateEdema replaces the current edema result.
func (a *Aggregator) UpdateEdema(res *domain.ExtractorResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.edema = res
}

// AddSymptom appends one reported complaint, preserving report order.
func (a *Aggregator) AddSymptom(text, duration string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.symptoms = append(a.symptoms, domain.Symptom{Text: text, Duration: duration})
	a.log.WithField("symptom_count", len(a.symptoms)).Debug("Symptom added")
}

// RemoveSymptom deletes the symptom at the given index; out-of-range
// indices are ignored.
func (a *Aggregator) RemoveSymptom(index int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if index < 0 || index >= len(a.symptoms) {
		return
	}
	a.symptoms = append(a.symptoms[:index], a.symptoms[index+1:]...)
}

// ClearSymptoms empties the symptom list.
func (a *Aggregator) ClearSymptoms() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.symptoms = nil
}

// SetPregnancy records pregnancy context. weeks may be nil when gestation
// is unknown.
func (a *Aggregator) SetPregnancy(pregnant bool, weeks *int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pregnant = pregnant
	if weeks != nil {
		w := *weeks
		a.gestationalWeeks = &w
	} else {
		a.gestationalWeeks = nil
	}
}

// Snapshot builds a fresh immutable VitalSigns from the current state.
// Nothing the snapshot references is shared with the aggregator.
func (a *Aggregator) Snapshot() domain.VitalSigns {
	a.mu.Lock()
	defer a.mu.Unlock()

	v := domain.VitalSigns{
		Pregnant:   a.pregnant,
		CapturedAt: time.Now(),
	}
	if a.gestationalWeeks != nil {
		w := *a.gestationalWeeks
		v.GestationalWeeks = &w
	}
	if len(a.symptoms) > 0 {
		v.Symptoms = make([]domain.Symptom, len(a.symptoms))
		copy(v.Symptoms, a.symptoms)
	}

	if r := a.heartRate; r != nil && r.Analyzed && r.HeartRate != nil {
		v.HeartRate = &domain.HeartRateReading{
			BPM:        r.HeartRate.DominantFreqHz * 60.0,
			Confidence: r.Confidence,
			Quality:    r.Quality,
			Biomarkers: *r.HeartRate,
		}
	}
	if r := a.pallor; r != nil && r.Analyzed && r.Pallor != nil {
		v.Pallor = &domain.PallorReading{
			Score:      r.Score,
			Severity:   r.Severity,
			Confidence: r.Confidence,
			Biomarkers: *r.Pallor,
		}
	}
	if r := a.edema; r != nil && r.Analyzed && r.Edema != nil {
		v.Edema = &domain.EdemaReading{
			Score:      r.Score,
			Severity:   r.Severity,
			Confidence: r.Confidence,
			Biomarkers: *r.Edema,
		}
	}
	return v
}

// High-risk single-sensor cutoffs for the UI re-capture hint. Calibration
// placeholders; the rule engine applies its own configured thresholds.
const (
	highRiskBPMHigh = 130.0
	highRiskBPMLow  = 50.0
)

// HighRiskIndicator reports whether any single confident sensor shows a
// danger-tier value. Intended for UI re-capture prompts only; the reasoner
// evaluates its own rules.
func (a *Aggregator) HighRiskIndicator() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if r := a.heartRate; r.Confident() && r.HeartRate != nil {
		bpm := r.HeartRate.DominantFreqHz * 60.0
		if bpm > highRiskBPMHigh || bpm < highRiskBPMLow {
			return true
		}
	}
	if r := a.pallor; r.Confident() && r.Severity == domain.IndicatorSevere {
		return true
	}
	if r := a.edema; r.Confident() && r.Severity == domain.IndicatorSevere {
		return true
	}
	return false
}

// Reset restores all state to defaults atomically.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.heartRate = nil
	a.pallor = nil
	a.edema = nil
	a.symptoms = nil
	a.pregnant = false
	a.gestationalWeeks = nil
	a.log.Info("Sensor fusion state reset")
}
