// Package domain contains core business entities and types for offline
// patient screening and referral-urgency triage.
//
// The screening core never asserts a disease. It produces a referral-urgency
// recommendation for a frontline health worker; every threshold in this
// package is an engineering estimate pending field calibration.
package domain

import "fmt"

// Severity represents the overall clinical severity of a screening result.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Urgency represents the recommended referral timeframe.
type Urgency string

const (
	UrgencyRoutine       Urgency = "ROUTINE"
	UrgencyWithinWeek    Urgency = "WITHIN_WEEK"
	UrgencyWithin48Hours Urgency = "WITHIN_48_HOURS"
	UrgencyImmediate     Urgency = "IMMEDIATE"
)

// TriageCategory is the four-tier referral classification shown to the
// health worker. It is always derived from (Severity, Urgency) through
// TriageFor and never set directly.
type TriageCategory string

const (
	TriageGreen  TriageCategory = "GREEN"
	TriageYellow TriageCategory = "YELLOW"
	TriageOrange TriageCategory = "ORANGE"
	TriageRed    TriageCategory = "RED"
)

// IndicatorSeverity is the four-level per-modality severity reported by the
// signal extractors (pallor, edema). SEVERE is the tier the rule engine
// treats as a danger sign ("significant" in edema prose).
type IndicatorSeverity string

const (
	IndicatorNone     IndicatorSeverity = "NONE"
	IndicatorMild     IndicatorSeverity = "MILD"
	IndicatorModerate IndicatorSeverity = "MODERATE"
	IndicatorSevere   IndicatorSeverity = "SEVERE"
)

// SignalQuality labels the usability of a periodic-signal estimate.
type SignalQuality string

const (
	QualityInsufficient SignalQuality = "insufficient"
	QualityPoor         SignalQuality = "poor"
	QualityFair         SignalQuality = "fair"
	QualityGood         SignalQuality = "good"
)

// String returns the string representation of the signal quality.
func (q SignalQuality) String() string { return string(q) }

// Provenance records which path produced an Assessment.
type Provenance string

const (
	ProvenanceModel              Provenance = "model"
	ProvenanceRuleBased          Provenance = "rule-based"
	ProvenanceRuleBasedAbstained Provenance = "rule-based-abstention"
)

// IsValid reports whether the severity is one of the four known tiers.
// Only valid severities may enter an Assessment.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// String returns the string representation of the severity.
func (s Severity) String() string { return string(s) }

func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool { return s.rank() >= other.rank() }

// MaxSeverity returns the more severe of the two values. Most-severe-wins
// aggregation is the core safety invariant of the rule engine: one confident
// danger sign is never diluted by reassuring readings.
func MaxSeverity(a, b Severity) Severity {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// IsValid reports whether the urgency is one of the four known tiers.
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyRoutine, UrgencyWithinWeek, UrgencyWithin48Hours, UrgencyImmediate:
		return true
	default:
		return false
	}
}

// String returns the string representation of the urgency.
func (u Urgency) String() string { return string(u) }

func (u Urgency) rank() int {
	switch u {
	case UrgencyRoutine:
		return 0
	case UrgencyWithinWeek:
		return 1
	case UrgencyWithin48Hours:
		return 2
	case UrgencyImmediate:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether u is as urgent as other.
func (u Urgency) AtLeast(other Urgency) bool { return u.rank() >= other.rank() }

// MaxUrgency returns the more urgent of the two values.
func MaxUrgency(a, b Urgency) Urgency {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// IsValid reports whether the triage category is known.
func (t TriageCategory) IsValid() bool {
	switch t {
	case TriageGreen, TriageYellow, TriageOrange, TriageRed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the triage category.
func (t TriageCategory) String() string { return string(t) }

// Rank orders triage categories from GREEN (0) to RED (3).
func (t TriageCategory) Rank() int {
	switch t {
	case TriageGreen:
		return 0
	case TriageYellow:
		return 1
	case TriageOrange:
		return 2
	case TriageRed:
		return 3
	default:
		return -1
	}
}

// IsValid reports whether the indicator severity is known.
func (i IndicatorSeverity) IsValid() bool {
	switch i {
	case IndicatorNone, IndicatorMild, IndicatorModerate, IndicatorSevere:
		return true
	default:
		return false
	}
}

// String returns the string representation of the indicator severity.
func (i IndicatorSeverity) String() string { return string(i) }

func (i IndicatorSeverity) rank() int {
	switch i {
	case IndicatorNone:
		return 0
	case IndicatorMild:
		return 1
	case IndicatorModerate:
		return 2
	case IndicatorSevere:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether i is as severe as other.
func (i IndicatorSeverity) AtLeast(other IndicatorSeverity) bool {
	return i.rank() >= other.rank()
}

// TriageFor maps (severity, urgency) onto a triage category through a fixed
// lookup. The mapping is pure and monotone: raising either input never
// lowers the category.
func TriageFor(severity Severity, urgency Urgency) TriageCategory {
	sr, ur := severity.rank(), urgency.rank()
	if sr < 0 {
		sr = 0
	}
	if ur < 0 {
		ur = 0
	}
	table := [4][4]TriageCategory{
		// ROUTINE       WITHIN_WEEK   WITHIN_48H    IMMEDIATE
		{TriageGreen, TriageGreen, TriageYellow, TriageOrange},   // LOW
		{TriageYellow, TriageYellow, TriageOrange, TriageOrange}, // MEDIUM
		{TriageYellow, TriageOrange, TriageOrange, TriageRed},    // HIGH
		{TriageOrange, TriageOrange, TriageRed, TriageRed},       // CRITICAL
	}
	return table[sr][ur]
}

// LogFields returns structured logging fields for audit trails.
// Screening decisions must stay traceable; every assessment log line
// carries these fields.
func (t TriageCategory) LogFields() map[string]any {
	return map[string]any{
		"triage_category": string(t),
		"triage_rank":     t.Rank(),
		"is_valid":        t.IsValid(),
	}
}

// ParseSeverity resolves a model-emitted token to a Severity.
func ParseSeverity(token string) (Severity, error) {
	s := Severity(token)
	if !s.IsValid() {
		return "", fmt.Errorf("%w: severity token %q", ErrUnparseableOutput, token)
	}
	return s, nil
}

// ParseUrgency resolves a model-emitted token to an Urgency.
func ParseUrgency(token string) (Urgency, error) {
	u := Urgency(token)
	if !u.IsValid() {
		return "", fmt.Errorf("%w: urgency token %q", ErrUnparseableOutput, token)
	}
	return u, nil
}
