package reason

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nku-health/nku-screen/internal/domain"
)

// InsufficientConfidenceConcern is the fixed abstention message. Its exact
// text is part of the external contract with the UI layer.
const InsufficientConfidenceConcern = "Sensor data confidence was insufficient for triage; no reliable readings or reported symptoms available."

// escalationKeywords force immediate referral when found in a reported
// symptom. Matching is case-insensitive substring over sanitized text.
var escalationKeywords = []string{
	"chest pain",
	"difficulty breathing",
	"shortness of breath",
	"not breathing",
	"severe bleeding",
	"unconscious",
	"unresponsive",
	"convulsion",
	"seizure",
}

// RuleBasedAssessment evaluates the deterministic decision table over
// confidence-gated readings. Independent rule triggers combine by
// most-severe-wins, never by averaging: one confident danger sign cannot be
// diluted by reassuring readings.
func (r *Reasoner) RuleBasedAssessment(v domain.VitalSigns) domain.Assessment {
	if !v.HasConfidentData() && len(v.Symptoms) == 0 {
		return domain.Assessment{
			Severity:        domain.SeverityLow,
			Urgency:         domain.UrgencyRoutine,
			Triage:          domain.TriageGreen,
			PrimaryConcerns: []string{InsufficientConfidenceConcern},
			Recommendations: []string{
				"Re-capture sensor readings in better lighting with the camera held steady.",
				"Ask the patient to describe any complaints and record them as symptoms.",
			},
			Disclaimer: domain.ScreeningDisclaimer,
			Provenance: domain.ProvenanceRuleBasedAbstained,
		}
	}

	severity := domain.SeverityLow
	urgency := domain.UrgencyRoutine
	var concerns []string
	var excluded []string

	if hr := v.HeartRate; hr != nil {
		if hr.Confidence >= domain.ConfidenceGate {
			switch {
			case hr.BPM > r.rules.TachycardiaBPM:
				concerns = append(concerns, fmt.Sprintf("Elevated heart rate %.0f/min: tachycardia", hr.BPM))
				severity = domain.MaxSeverity(severity, domain.SeverityMedium)
			case hr.BPM < r.rules.BradycardiaBPM:
				concerns = append(concerns, fmt.Sprintf("Low heart rate %.0f/min: bradycardia", hr.BPM))
				severity = domain.MaxSeverity(severity, domain.SeverityMedium)
				urgency = domain.MaxUrgency(urgency, domain.UrgencyWithinWeek)
			}
		} else {
			excluded = append(excluded, "heart rate")
		}
	}

	if p := v.Pallor; p != nil {
		if p.Confidence >= domain.ConfidenceGate {
			switch p.Severity {
			case domain.IndicatorSevere:
				concerns = append(concerns, "Severe pallor detected")
				severity = domain.MaxSeverity(severity, domain.SeverityHigh)
				urgency = domain.MaxUrgency(urgency, domain.UrgencyWithin48Hours)
			case domain.IndicatorModerate:
				concerns = append(concerns, "Moderate pallor detected")
				severity = domain.MaxSeverity(severity, domain.SeverityMedium)
				urgency = domain.MaxUrgency(urgency, domain.UrgencyWithinWeek)
			}
		} else {
			excluded = append(excluded, "pallor")
		}
	}

	if e := v.Edema; e != nil {
		if e.Confidence >= domain.ConfidenceGate {
			if e.Severity == domain.IndicatorSevere {
				if v.Pregnant {
					concerns = append(concerns, "Significant edema during pregnancy: preeclampsia risk")
					severity = domain.MaxSeverity(severity, domain.SeverityHigh)
					urgency = domain.MaxUrgency(urgency, domain.UrgencyWithin48Hours)
				} else {
					concerns = append(concerns, "Significant periorbital edema detected")
					severity = domain.MaxSeverity(severity, domain.SeverityMedium)
					urgency = domain.MaxUrgency(urgency, domain.UrgencyWithinWeek)
				}
			}
		} else {
			excluded = append(excluded, "edema")
		}
	}

	for _, s := range v.Symptoms {
		text := strings.ToLower(r.san.Sanitize(s.Text))
		for _, kw := range escalationKeywords {
			if strings.Contains(text, kw) {
				concerns = append(concerns, fmt.Sprintf("Reported symptom requires immediate attention: %s", kw))
				severity = domain.MaxSeverity(severity, domain.SeverityHigh)
				urgency = domain.UrgencyImmediate
				break
			}
		}
	}

	// Excluded sensors are surfaced, never silently dropped.
	if len(excluded) > 0 {
		concerns = append(concerns, "Excluded from assessment (low confidence): "+strings.Join(excluded, ", "))
	}

	triage := domain.TriageFor(severity, urgency)
	a := domain.Assessment{
		Severity:        severity,
		Urgency:         urgency,
		Triage:          triage,
		PrimaryConcerns: concerns,
		Recommendations: r.recommendationsFor(triage, len(excluded) > 0),
		Disclaimer:      domain.ScreeningDisclaimer,
		Provenance:      domain.ProvenanceRuleBased,
	}
	r.log.WithFields(logrus.Fields{
		"severity": severity.String(),
		"urgency":  urgency.String(),
		"triage":   triage.String(),
		"concerns": len(concerns),
	}).Info("Rule-based assessment computed")
	return a
}

func (r *Reasoner) recommendationsFor(t domain.TriageCategory, hasExcluded bool) []string {
	var recs []string
	switch t {
	case domain.TriageRed:
		recs = append(recs, "Arrange immediate referral to the nearest facility.")
	case domain.TriageOrange:
		recs = append(recs, "Refer to a clinic within 48 hours.")
	case domain.TriageYellow:
		recs = append(recs, "Advise a clinic visit within the week.")
	default:
		recs = append(recs, "Routine follow-up; no urgent referral indicated by available data.")
	}
	if hasExcluded {
		recs = append(recs, "Re-capture low-confidence sensor readings before relying on this screen.")
	}
	return recs
}
