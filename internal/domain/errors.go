package domain

import "errors"

// Error taxonomy for the screening pipeline. Only ErrThermalBlock and
// ErrModelUnavailable ever reach the service layer, and both resolve to the
// rule-based fallback or a wait message rather than a failure.
var (
	// ErrInsufficientSignal marks an extractor pass that could not reach a
	// confident output. Non-fatal; surfaced as low confidence.
	ErrInsufficientSignal = errors.New("insufficient signal for confident output")

	// ErrThermalBlock marks a run refused because the device is too hot.
	// Transient; resolved by waiting, not by retrying the model.
	ErrThermalBlock = errors.New("device too hot for on-device inference")

	// ErrModelUnavailable covers a missing or corrupt artifact, exhausted
	// load retries, generation budget expiry, and out-of-memory. Always
	// resolved by rule-based triage.
	ErrModelUnavailable = errors.New("on-device model unavailable")

	// ErrRejectedOutput marks a model reply that failed output validation.
	// Treated identically to ErrModelUnavailable by callers.
	ErrRejectedOutput = errors.New("model output rejected by validator")

	// ErrUnparseableOutput marks a reply whose SEVERITY/URGENCY tokens are
	// missing or unknown. The parser must fall back to the rule engine and
	// must never default to a low-severity result.
	ErrUnparseableOutput = errors.New("model output unparseable")
)
