// Package reason turns VitalSigns snapshots into model prompts, parses
// model replies into structured assessments, and independently computes a
// deterministic rule-based assessment used both as fallback and as a
// conservative floor.
package reason

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nku-health/nku-screen/internal/config"
	"github.com/nku-health/nku-screen/internal/domain"
	"github.com/nku-health/nku-screen/internal/sanitize"
)

// LowConfidenceMarker tags a prompt section whose reading may not influence
// the assessment.
const LowConfidenceMarker = "[LOW CONFIDENCE - excluded from assessment]"

// Literature anchors rendered alongside confident readings.
const (
	heartRateCitation = "Verkruysse et al., Optics Express 2008 (remote plethysmographic imaging)"
	pallorCitation    = "Sheth et al., J Gen Intern Med 1997 (conjunctival pallor and anemia)"
	edemaCitation     = "ACOG Practice Bulletin 222, 2020 (gestational hypertension and preeclampsia)"
)

const sectionDisclaimer = "Reading is an uncalibrated engineering estimate."

// Reasoner builds prompts and assessments. Stateless; safe for concurrent
// use.
type Reasoner struct {
	rules config.RulesConfig
	san   *sanitize.Sanitizer
	log   *logrus.Logger
}

// NewReasoner wires the rule thresholds and the sanitizer.
func NewReasoner(rules config.RulesConfig, san *sanitize.Sanitizer, log *logrus.Logger) *Reasoner {
	return &Reasoner{rules: rules, san: san, log: log}
}

// BuildPrompt renders a deterministic, section-ordered prompt. A modality
// section carries its severity label and citation only when the reading
// clears the confidence gate; below the gate the raw value appears with the
// low-confidence marker and no severity-implying language.
func (r *Reasoner) BuildPrompt(v domain.VitalSigns) string {
	var b strings.Builder

	b.WriteString("You are a screening assistant for a frontline health worker. ")
	b.WriteString("Assess referral urgency only; never name a diagnosis. ")
	b.WriteString("Readings below are smartphone-derived estimates.\n\n")

	r.writeHeartRateSection(&b, v.HeartRate)
	r.writePallorSection(&b, v.Pallor)
	r.writeEdemaSection(&b, v.Edema)
	r.writePregnancySection(&b, v)
	r.writeSymptomSection(&b, v.Symptoms)

	b.WriteString("\nRespond in exactly this format:\n")
	b.WriteString("SEVERITY: LOW|MEDIUM|HIGH|CRITICAL\n")
	b.WriteString("URGENCY: ROUTINE|WITHIN_WEEK|WITHIN_48_HOURS|IMMEDIATE\n")
	b.WriteString("PRIMARY_CONCERNS:\n- <one concern per line>\n")
	b.WriteString("RECOMMENDATIONS:\n- <one recommendation per line>\n")
	return b.String()
}

func (r *Reasoner) writeHeartRateSection(b *strings.Builder, hr *domain.HeartRateReading) {
	b.WriteString("HEART RATE:\n")
	if hr == nil {
		b.WriteString("Not measured.\n\n")
		return
	}
	if hr.Confidence < domain.ConfidenceGate {
		fmt.Fprintf(b, "Raw reading %.0f/min (confidence %.2f). %s\n\n",
			hr.BPM, hr.Confidence, LowConfidenceMarker)
		return
	}
	fmt.Fprintf(b, "%.0f beats/min, signal quality %s, confidence %.2f.\n", hr.BPM, hr.Quality, hr.Confidence)
	fmt.Fprintf(b, "Interpretation: %s.\n", heartRateLabel(hr.BPM))
	fmt.Fprintf(b, "Basis: %s. %s\n\n", heartRateCitation, sectionDisclaimer)
}

// heartRateLabel is only ever rendered for gated-in readings.
func heartRateLabel(bpm float64) string {
	switch {
	case bpm > 100:
		return "elevated resting rate (tachycardia range)"
	case bpm < 60:
		return "low resting rate (bradycardia range)"
	default:
		return "within normal resting range"
	}
}

func (r *Reasoner) writePallorSection(b *strings.Builder, p *domain.PallorReading) {
	b.WriteString("PALLOR SCREEN:\n")
	if p == nil {
		b.WriteString("Not performed.\n\n")
		return
	}
	if p.Confidence < domain.ConfidenceGate {
		fmt.Fprintf(b, "Raw tissue-color score %.2f (confidence %.2f). %s\n\n",
			p.Score, p.Confidence, LowConfidenceMarker)
		return
	}
	fmt.Fprintf(b, "Tissue-color score %.2f, indicator %s, confidence %.2f ", p.Score, p.Severity, p.Confidence)
	fmt.Fprintf(b, "(tissue coverage %.0f%%, mean saturation %.2f).\n",
		p.Biomarkers.TissueCoverage*100, p.Biomarkers.MeanSaturation)
	fmt.Fprintf(b, "Basis: %s. %s\n\n", pallorCitation, sectionDisclaimer)
}

func (r *Reasoner) writeEdemaSection(b *strings.Builder, e *domain.EdemaReading) {
	b.WriteString("EDEMA SCREEN:\n")
	if e == nil {
		b.WriteString("Not performed.\n\n")
		return
	}
	if e.Confidence < domain.ConfidenceGate {
		fmt.Fprintf(b, "Raw periorbital score %.2f (confidence %.2f). %s\n\n",
			e.Score, e.Confidence, LowConfidenceMarker)
		return
	}
	fmt.Fprintf(b, "Periorbital score %.2f, indicator %s, confidence %.2f ", e.Score, e.Severity, e.Confidence)
	fmt.Fprintf(b, "(eye aspect ratio %.2f, landmarks used: %t).\n",
		e.Biomarkers.EyeAspectRatio, e.Biomarkers.UsedLandmarks)
	fmt.Fprintf(b, "Basis: %s. %s\n\n", edemaCitation, sectionDisclaimer)
}

func (r *Reasoner) writePregnancySection(b *strings.Builder, v domain.VitalSigns) {
	b.WriteString("PREGNANCY:\n")
	if !v.Pregnant {
		b.WriteString("Not reported.\n\n")
		return
	}
	if v.GestationalWeeks == nil {
		b.WriteString("Pregnant, gestation unknown.\n\n")
		return
	}
	fmt.Fprintf(b, "Pregnant, %d weeks gestation.\n", *v.GestationalWeeks)
	if *v.GestationalWeeks >= r.rules.PreeclampsiaWeeks {
		b.WriteString("Note: gestation is in the window where new hypertension or edema warrants preeclampsia-risk assessment.\n")
	}
	b.WriteString("\n")
}

// writeSymptomSection sanitizes and wraps each reported symptom
// individually so free text can never reach the model as instructions.
func (r *Reasoner) writeSymptomSection(b *strings.Builder, symptoms []domain.Symptom) {
	b.WriteString("REPORTED SYMPTOMS:\n")
	if len(symptoms) == 0 {
		b.WriteString("None reported.\n")
		return
	}
	for i, s := range symptoms {
		text := r.san.Sanitize(s.Text)
		if s.Duration != "" {
			text = text + " (duration: " + r.san.Sanitize(s.Duration) + ")"
		}
		fmt.Fprintf(b, "%d. %s\n", i+1, r.san.Wrap(text))
	}
}
