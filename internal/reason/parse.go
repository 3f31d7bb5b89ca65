package reason

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nku-health/nku-screen/internal/domain"
)

// Line-anchored token extraction, closed at both ends. Free-floating
// mentions of a severity word elsewhere in the reply never count, and a
// line carrying anything beyond a single token (such as an echo of the
// format contract) never resolves.
var (
	severityLine = regexp.MustCompile(`(?m)^\s*SEVERITY\s*:\s*([A-Za-z0-9_]+)\s*$`)
	urgencyLine  = regexp.MustCompile(`(?m)^\s*URGENCY\s*:\s*([A-Za-z0-9_]+)\s*$`)
)

// parsedReply is the tagged result of token extraction. ok is false for any
// missing or unknown token; there is no low-severity default.
type parsedReply struct {
	severity domain.Severity
	urgency  domain.Urgency
	concerns []string
	recs     []string
	ok       bool
}

// ParseResponse extracts a structured assessment from a raw model reply.
// A malformed, truncated, or adversarially steered reply must never produce
// a falsely reassuring outcome: any unresolvable token falls back to
// RuleBasedAssessment for the same vitals. A successfully parsed result is
// additionally floored at the rule-based result whenever the rule engine
// flags the case as high-risk.
func (r *Reasoner) ParseResponse(raw string, v domain.VitalSigns) domain.Assessment {
	reply := r.extract(raw)
	if !reply.ok {
		r.log.WithField("reply_len", len(raw)).Warn("Model reply unparseable, falling back to rule-based assessment")
		return r.RuleBasedAssessment(v)
	}

	severity := reply.severity
	urgency := reply.urgency
	concerns := reply.concerns
	recs := reply.recs

	rb := r.RuleBasedAssessment(v)
	if rb.Triage.Rank() >= domain.TriageOrange.Rank() {
		// Conservative floor: the model may raise but never lower a
		// rule-flagged high-risk case.
		severity = domain.MaxSeverity(severity, rb.Severity)
		urgency = domain.MaxUrgency(urgency, rb.Urgency)
		concerns = mergeLists(concerns, rb.PrimaryConcerns)
	}

	triage := domain.TriageFor(severity, urgency)
	if len(recs) == 0 {
		recs = r.recommendationsFor(triage, false)
	}

	a := domain.Assessment{
		Severity:        severity,
		Urgency:         urgency,
		Triage:          triage,
		PrimaryConcerns: concerns,
		Recommendations: recs,
		Disclaimer:      domain.ScreeningDisclaimer,
		Provenance:      domain.ProvenanceModel,
	}
	r.log.WithFields(logrus.Fields{
		"severity": severity.String(),
		"urgency":  urgency.String(),
		"triage":   triage.String(),
	}).Info("Model reply parsed")
	return a
}

func (r *Reasoner) extract(raw string) parsedReply {
	sm := severityLine.FindStringSubmatch(raw)
	um := urgencyLine.FindStringSubmatch(raw)
	if sm == nil || um == nil {
		return parsedReply{}
	}

	severity, err := domain.ParseSeverity(strings.ToUpper(sm[1]))
	if err != nil {
		return parsedReply{}
	}
	urgency, err := domain.ParseUrgency(strings.ToUpper(um[1]))
	if err != nil {
		return parsedReply{}
	}

	return parsedReply{
		severity: severity,
		urgency:  urgency,
		concerns: bulletList(raw, "PRIMARY_CONCERNS"),
		recs:     bulletList(raw, "RECOMMENDATIONS"),
		ok:       true,
	}
}

// bulletList collects "- item" lines following a section header until the
// next all-caps header line.
func bulletList(raw, header string) []string {
	var items []string
	inSection := false
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, header) {
			inSection = true
			continue
		}
		if inSection {
			if item, ok := strings.CutPrefix(trimmed, "- "); ok {
				items = append(items, strings.TrimSpace(item))
				continue
			}
			if item, ok := strings.CutPrefix(trimmed, "* "); ok {
				items = append(items, strings.TrimSpace(item))
				continue
			}
			if trimmed != "" {
				inSection = false
			}
		}
	}
	return items
}

func mergeLists(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, s := range base {
		seen[s] = true
	}
	for _, s := range extra {
		if !seen[s] {
			base = append(base, s)
			seen[s] = true
		}
	}
	return base
}
