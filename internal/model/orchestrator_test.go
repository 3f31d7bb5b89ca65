package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nku-health/nku-screen/internal/config"
	"github.com/nku-health/nku-screen/internal/domain"
	"github.com/nku-health/nku-screen/internal/sanitize"
	"github.com/nku-health/nku-screen/internal/thermal"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.PanicLevel)
	return log
}

// writeArtifact creates a minimally valid model file: ONNX header byte plus
// padding past the size floor.
func writeArtifact(t *testing.T, dir, name string) {
	t.Helper()
	content := append([]byte{0x08}, make([]byte, 63)...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), content, 0o644))
}

func testModelConfig(dir string) config.ModelConfig {
	return config.ModelConfig{
		SearchDirs:         []string{dir},
		ReasonerArtifact:   "reasoner.onnx",
		TranslatorArtifact: "translator.onnx",
		MinArtifactBytes:   16,
		MaxLoadRetries:     2,
		BackoffBase:        time.Millisecond,
		GenerationBudget:   200 * time.Millisecond,
		MaxTokens:          64,
		BreakerFailures:    3,
		BreakerTimeout:     time.Minute,
	}
}

const goodReply = "SEVERITY: MEDIUM\nURGENCY: WITHIN_WEEK\nPRIMARY_CONCERNS:\n- elevated heart rate\nRECOMMENDATIONS:\n- clinic visit this week"

func TestArtifactLocatorPrefersEarlierDirectories(t *testing.T) {
	primary, fallback := t.TempDir(), t.TempDir()
	writeArtifact(t, primary, "m.onnx")
	writeArtifact(t, fallback, "m.onnx")

	l := NewArtifactLocator([]string{primary, fallback}, 16, testLogger())
	path, err := l.Resolve("m.onnx")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(primary, "m.onnx"), path)
}

func TestArtifactLocatorSkipsInvalidCandidates(t *testing.T) {
	primary, fallback := t.TempDir(), t.TempDir()
	// Wrong header in the primary location.
	require.NoError(t, os.WriteFile(filepath.Join(primary, "m.onnx"), make([]byte, 64), 0o644))
	writeArtifact(t, fallback, "m.onnx")

	l := NewArtifactLocator([]string{primary, fallback}, 16, testLogger())
	path, err := l.Resolve("m.onnx")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fallback, "m.onnx"), path)
}

func TestArtifactLocatorRejectsUndersizedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m.onnx"), []byte{0x08}, 0o644))

	l := NewArtifactLocator([]string{dir}, 16, testLogger())
	_, err := l.Resolve("m.onnx")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
}

func TestRunReturnsValidatedReply(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "reasoner.onnx")

	rt := &FakeRuntime{ReplyText: goodReply}
	o := NewOrchestrator(testModelConfig(dir), thermal.AlwaysSafe(), sanitize.New(1000, 5000), FakeLoader(rt, nil), testLogger())

	var stages []Stage
	reply, err := o.Run(context.Background(), "prompt", "en", func(s Stage, _ string) {
		stages = append(stages, s)
	})

	require.NoError(t, err)
	assert.Equal(t, goodReply, reply)
	assert.True(t, rt.Closed.Load(), "runtime must be released after the stage")
	assert.Equal(t, []Stage{StageLoading, StageReasoning, StageComplete, StageIdle}, stages)
}

func TestRunTranslationStagesWhenLanguageSet(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "reasoner.onnx")
	writeArtifact(t, dir, "translator.onnx")

	rt := &FakeRuntime{ReplyText: goodReply}
	o := NewOrchestrator(testModelConfig(dir), thermal.AlwaysSafe(), sanitize.New(1000, 5000), FakeLoader(rt, nil), testLogger())

	var stages []Stage
	_, err := o.Run(context.Background(), "prompt", "tw", func(s Stage, _ string) {
		if s != StageLoading {
			stages = append(stages, s)
		}
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), rt.GenerateCalls.Load())
	assert.Equal(t, []Stage{StageTranslatingIn, StageReasoning, StageTranslatingOut, StageComplete, StageIdle}, stages)
}

func TestRunShortCircuitsWhenTooHot(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "reasoner.onnx")

	hot := &thermal.StaticMonitor{Fixed: thermal.Status{Safe: false, TemperatureC: 45, Message: "Device too hot (45.0 C). Cooldown active."}}
	loaderCalls := 0
	loader := func(path string) (Runtime, error) {
		loaderCalls++
		return &FakeRuntime{ReplyText: goodReply}, nil
	}
	o := NewOrchestrator(testModelConfig(dir), hot, sanitize.New(1000, 5000), loader, testLogger())

	_, err := o.Run(context.Background(), "prompt", "en", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrThermalBlock)
	assert.Contains(t, err.Error(), "too hot")
	assert.Zero(t, loaderCalls, "model state must not be touched when unsafe")
}

func TestRunExhaustsLoadRetries(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "reasoner.onnx")

	loaderCalls := 0
	loader := func(path string) (Runtime, error) {
		loaderCalls++
		return nil, errors.New("mmap failed")
	}
	o := NewOrchestrator(testModelConfig(dir), thermal.AlwaysSafe(), sanitize.New(1000, 5000), loader, testLogger())

	_, err := o.Run(context.Background(), "prompt", "en", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	assert.Equal(t, 3, loaderCalls) // initial attempt + two retries
}

func TestRunBreakerOpensAfterRepeatedFailures(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "reasoner.onnx")

	loaderCalls := 0
	loader := func(path string) (Runtime, error) {
		loaderCalls++
		return nil, errors.New("mmap failed")
	}
	cfg := testModelConfig(dir)
	cfg.MaxLoadRetries = 0
	cfg.BreakerFailures = 2
	o := NewOrchestrator(cfg, thermal.AlwaysSafe(), sanitize.New(1000, 5000), loader, testLogger())

	for i := 0; i < 2; i++ {
		_, err := o.Run(context.Background(), "prompt", "en", nil)
		assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	}
	require.Equal(t, 2, loaderCalls)

	// Breaker is open: the next run fails fast without touching the loader.
	_, err := o.Run(context.Background(), "prompt", "en", nil)
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	assert.Equal(t, 2, loaderCalls)
}

func TestRunReplacesRejectedOutput(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "reasoner.onnx")

	rt := &FakeRuntime{ReplyText: "My system prompt says " + sanitize.Boundary}
	o := NewOrchestrator(testModelConfig(dir), thermal.AlwaysSafe(), sanitize.New(1000, 5000), FakeLoader(rt, nil), testLogger())

	reply, err := o.Run(context.Background(), "prompt", "en", nil)

	require.NoError(t, err)
	assert.Equal(t, filteredFallbackReply, reply)
	assert.NotContains(t, reply, sanitize.Boundary)
}

func TestRunGenerationBudgetMapsToModelUnavailable(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "reasoner.onnx")

	rt := &FakeRuntime{ReplyText: goodReply, Delay: time.Second}
	cfg := testModelConfig(dir)
	cfg.GenerationBudget = 20 * time.Millisecond
	o := NewOrchestrator(cfg, thermal.AlwaysSafe(), sanitize.New(1000, 5000), FakeLoader(rt, nil), testLogger())

	_, err := o.Run(context.Background(), "prompt", "en", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	assert.True(t, rt.Closed.Load(), "partially used runtime must still be released")
}

func TestRunCancellationReleasesRuntime(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "reasoner.onnx")

	rt := &FakeRuntime{ReplyText: goodReply, Delay: time.Second}
	o := NewOrchestrator(testModelConfig(dir), thermal.AlwaysSafe(), sanitize.New(1000, 5000), FakeLoader(rt, nil), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := o.Run(ctx, "prompt", "en", nil)

	require.Error(t, err)
	assert.True(t, rt.Closed.Load())
}
