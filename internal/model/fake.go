package model

import (
	"context"
	"sync/atomic"
	"time"
)

// FakeRuntime is a deterministic Runtime for tests and for development
// machines without model artifacts.
type FakeRuntime struct {
	ReplyText string
	Err       error
	// Delay simulates generation latency so budget expiry paths can be
	// exercised.
	Delay time.Duration

	GenerateCalls atomic.Int32
	Closed        atomic.Bool
}

// Generate returns the canned reply after the configured delay.
func (f *FakeRuntime) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.GenerateCalls.Add(1)
	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.Delay):
		}
	}
	if f.Err != nil {
		return "", f.Err
	}
	return f.ReplyText, nil
}

// Close marks the runtime released.
func (f *FakeRuntime) Close() error {
	f.Closed.Store(true)
	return nil
}

// FakeLoader returns a Loader that always yields rt, or err when non-nil.
func FakeLoader(rt *FakeRuntime, err error) Loader {
	return func(path string) (Runtime, error) {
		if err != nil {
			return nil, err
		}
		return rt, nil
	}
}
