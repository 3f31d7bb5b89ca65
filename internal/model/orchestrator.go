package model

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/nku-health/nku-screen/internal/config"
	"github.com/nku-health/nku-screen/internal/domain"
	"github.com/nku-health/nku-screen/internal/sanitize"
	"github.com/nku-health/nku-screen/internal/thermal"
)

// Stage names one step of a triage run, streamed to the UI through the
// progress callback.
type Stage string

const (
	StageIdle           Stage = "IDLE"
	StageLoading        Stage = "LOADING"
	StageTranslatingIn  Stage = "TRANSLATING_IN"
	StageReasoning      Stage = "REASONING"
	StageTranslatingOut Stage = "TRANSLATING_OUT"
	StageComplete       Stage = "COMPLETE"
	StageError          Stage = "ERROR"
)

// ProgressFunc receives stage transitions. May be nil.
type ProgressFunc func(stage Stage, message string)

// filteredFallbackReply replaces any model output that fails validation.
// It never parses as an assessment, so the caller's rule-based fallback
// engages.
const filteredFallbackReply = "[filtered: model output withheld]"

// Orchestrator runs the sequential model pipeline: load, translate in,
// reason, translate out, unload. Exactly one model is resident at any time;
// the next stage's load waits for the prior handle's release. Every heavy
// stage is gated by the thermal monitor and wrapped in a circuit breaker so
// repeated failures skip straight to the rule-based fallback.
type Orchestrator struct {
	cfg     config.ModelConfig
	locator *ArtifactLocator
	loader  Loader
	monitor thermal.Monitor
	san     *sanitize.Sanitizer
	breaker *gobreaker.CircuitBreaker
	log     *logrus.Logger

	// mu serializes triage runs; model-bearing stages are never concurrent.
	mu sync.Mutex
}

// NewOrchestrator wires the pipeline. loader defaults to the onnxruntime
// implementation when nil.
func NewOrchestrator(cfg config.ModelConfig, monitor thermal.Monitor, san *sanitize.Sanitizer, loader Loader, log *logrus.Logger) *Orchestrator {
	if loader == nil {
		loader = func(path string) (Runtime, error) {
			return LoadONNXRuntime(path, 0, log)
		}
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "model-pipeline",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Model circuit breaker state changed")
		},
	})
	return &Orchestrator{
		cfg:     cfg,
		locator: NewArtifactLocator(cfg.SearchDirs, cfg.MinArtifactBytes, log),
		loader:  loader,
		monitor: monitor,
		san:     san,
		breaker: breaker,
		log:     log,
	}
}

// Run executes one full pipeline pass over a built prompt. language selects
// the translation stages; "en" or empty skips them. The returned string is
// always validated output; any failure carries a sentinel from the domain
// error taxonomy and the caller falls back to rule-based triage.
func (o *Orchestrator) Run(ctx context.Context, prompt, language string, progress ProgressFunc) (reply string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	defer func() {
		if err != nil {
			o.emit(progress, StageError, err.Error())
		} else {
			o.emit(progress, StageComplete, "Assessment text ready")
		}
		o.emit(progress, StageIdle, "")
	}()

	translate := language != "" && language != "en"
	text := prompt

	if translate {
		text, err = o.runStage(ctx, progress, StageTranslatingIn, o.cfg.TranslatorArtifact,
			"Translate the following to English. Preserve markers verbatim.\n"+text)
		if err != nil {
			return "", err
		}
	}

	text, err = o.runStage(ctx, progress, StageReasoning, o.cfg.ReasonerArtifact, text)
	if err != nil {
		return "", err
	}

	if translate {
		text, err = o.runStage(ctx, progress, StageTranslatingOut, o.cfg.TranslatorArtifact,
			fmt.Sprintf("Translate the following to %s. Preserve the SEVERITY and URGENCY lines verbatim.\n%s", language, text))
		if err != nil {
			return "", err
		}
	}

	return text, nil
}

// runStage performs one load-generate-release cycle. The thermal gate runs
// before any model state is touched; an unsafe reading short-circuits with
// a user-facing message and no load attempt.
func (o *Orchestrator) runStage(ctx context.Context, progress ProgressFunc, stage Stage, artifact, input string) (string, error) {
	if st := o.monitor.Status(); !st.Safe {
		return "", fmt.Errorf("%w: %s", domain.ErrThermalBlock, st.Message)
	}

	out, err := o.breaker.Execute(func() (any, error) {
		path, err := o.locator.Resolve(artifact)
		if err != nil {
			return nil, err
		}

		o.emit(progress, StageLoading, "Loading "+artifact)
		rt, err := o.loadWithRetry(ctx, path)
		if err != nil {
			return nil, err
		}
		defer rt.Close()

		o.emit(progress, stage, "")
		genCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerationBudget)
		defer cancel()

		raw, err := rt.Generate(genCtx, input, o.cfg.MaxTokens)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: generation budget %v exhausted", domain.ErrModelUnavailable, o.cfg.GenerationBudget)
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
		}
		return raw, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: model pipeline temporarily disabled after repeated failures", domain.ErrModelUnavailable)
		}
		return "", err
	}

	validated, err := o.san.SanitizeOutput(out.(string))
	if err != nil {
		// Rejected output never reaches the parser; the fallback string
		// cannot parse as an assessment either.
		o.log.WithError(err).Warn("Model reply rejected by output validation")
		return filteredFallbackReply, nil
	}
	return validated, nil
}

// loadWithRetry attempts to construct the inference context, retrying with
// exponential backoff and forcing a memory reclaim between attempts. Load
// failure is reported, never fatal.
func (o *Orchestrator) loadWithRetry(ctx context.Context, path string) (Runtime, error) {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxLoadRetries; attempt++ {
		if attempt > 0 {
			debug.FreeOSMemory()
			backoff := o.cfg.BackoffBase << (attempt - 1)
			o.log.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
			}).Warn("Retrying model load")
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: load canceled: %v", domain.ErrModelUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
		}

		rt, err := o.loader(path)
		if err == nil {
			return rt, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: load failed after %d attempts: %v",
		domain.ErrModelUnavailable, o.cfg.MaxLoadRetries+1, lastErr)
}

func (o *Orchestrator) emit(progress ProgressFunc, stage Stage, message string) {
	o.log.WithFields(logrus.Fields{"stage": string(stage), "message": message}).Debug("Pipeline stage")
	if progress != nil {
		progress(stage, message)
	}
}
