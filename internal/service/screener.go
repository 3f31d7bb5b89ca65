// Package service runs full triage passes: snapshot, prompt, model
// pipeline, parse, fallback, persistence. A screening always terminates in
// a valid Assessment, possibly an abstention, never an error.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/nku-health/nku-screen/internal/domain"
	"github.com/nku-health/nku-screen/internal/fusion"
	"github.com/nku-health/nku-screen/internal/model"
	"github.com/nku-health/nku-screen/internal/reason"
	"github.com/nku-health/nku-screen/internal/store"
)

// History persists screening outcomes. May be nil when persistence is
// disabled.
type History interface {
	Save(ctx context.Context, rec *store.Record) error
}

// Screener owns one screening session: the fused sensor state, the model
// pipeline, a result cache, and the session identifier.
type Screener struct {
	agg      *fusion.Aggregator
	reasoner *reason.Reasoner
	orch     *model.Orchestrator
	history  History
	cache    *lru.Cache[string, domain.Assessment]
	log      *logrus.Logger

	sessionID string
}

// NewScreener wires a screening session. cacheSize caps the number of
// remembered prompt-to-assessment results.
func NewScreener(agg *fusion.Aggregator, reasoner *reason.Reasoner, orch *model.Orchestrator, history History, cacheSize int, log *logrus.Logger) (*Screener, error) {
	if cacheSize <= 0 {
		cacheSize = 64
	}
	cache, err := lru.New[string, domain.Assessment](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Screener{
		agg:       agg,
		reasoner:  reasoner,
		orch:      orch,
		history:   history,
		cache:     cache,
		log:       log,
		sessionID: uuid.New().String(),
	}, nil
}

// SessionID returns the current session identifier.
func (s *Screener) SessionID() string { return s.sessionID }

// Vitals returns the current fused snapshot.
func (s *Screener) Vitals() domain.VitalSigns { return s.agg.Snapshot() }

// Fusion exposes the aggregator for capture-side updates.
func (s *Screener) Fusion() *fusion.Aggregator { return s.agg }

// ResetSession clears all fused state, drops cached results, and issues a
// fresh session identifier.
func (s *Screener) ResetSession() {
	s.agg.Reset()
	s.cache.Purge()
	s.sessionID = uuid.New().String()
	s.log.WithField("session_id", s.sessionID).Info("Screening session reset")
}

// Screen runs one full triage pass. When every present sensor is below the
// confidence gate and no symptoms were reported the rule engine abstains
// without any model invocation. Model failures of any kind resolve to the
// rule-based assessment; the caller always receives a valid result.
func (s *Screener) Screen(ctx context.Context, language string, progress model.ProgressFunc) domain.Assessment {
	vitals := s.agg.Snapshot()

	if !vitals.HasConfidentData() && len(vitals.Symptoms) == 0 {
		a := s.reasoner.RuleBasedAssessment(vitals)
		s.persist(ctx, a, "")
		return a
	}

	prompt := s.reasoner.BuildPrompt(vitals)
	hash := promptHash(prompt)

	if cached, ok := s.cache.Get(hash); ok {
		s.log.WithField("prompt_hash", hash[:12]).Debug("Assessment cache hit")
		return cached
	}

	var assessment domain.Assessment
	reply, err := s.orch.Run(ctx, prompt, language, progress)
	if err != nil {
		assessment = s.reasoner.RuleBasedAssessment(vitals)
		if errors.Is(err, domain.ErrThermalBlock) {
			assessment.Recommendations = append(assessment.Recommendations,
				"Device is cooling down; retry shortly for a model-assisted assessment.")
		}
		s.log.WithError(err).WithFields(logrus.Fields{
			"session_id": s.sessionID,
			"triage":     assessment.Triage.String(),
		}).Warn("Model pipeline unavailable, using rule-based assessment")
	} else {
		assessment = s.reasoner.ParseResponse(reply, vitals)
	}
	assessment.Prompt = prompt

	// Transient failures must not pin a stale fallback to this prompt.
	if assessment.Provenance == domain.ProvenanceModel {
		s.cache.Add(hash, assessment)
	}
	s.persist(ctx, assessment, hash)
	return assessment
}

func (s *Screener) persist(ctx context.Context, a domain.Assessment, hash string) {
	if s.history == nil {
		return
	}
	rec := &store.Record{
		SessionID:    s.sessionID,
		Severity:     a.Severity,
		Urgency:      a.Urgency,
		Triage:       a.Triage,
		Provenance:   a.Provenance,
		ConcernCount: len(a.PrimaryConcerns),
		PromptHash:   hash,
	}
	if err := s.history.Save(ctx, rec); err != nil {
		s.log.WithError(err).Warn("Failed to persist screening record")
	}
}

func promptHash(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
