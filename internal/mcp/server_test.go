package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gosdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nku-health/nku-screen/internal/config"
	"github.com/nku-health/nku-screen/internal/domain"
	"github.com/nku-health/nku-screen/internal/fusion"
	"github.com/nku-health/nku-screen/internal/model"
	"github.com/nku-health/nku-screen/internal/reason"
	"github.com/nku-health/nku-screen/internal/sanitize"
	"github.com/nku-health/nku-screen/internal/service"
	"github.com/nku-health/nku-screen/internal/thermal"
)

const modelReply = "SEVERITY: MEDIUM\nURGENCY: WITHIN_WEEK\nPRIMARY_CONCERNS:\n- elevated heart rate\nRECOMMENDATIONS:\n- clinic visit this week"

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestServer(t *testing.T, monitor thermal.Monitor) *Server {
	t.Helper()
	log := testLogger()

	dir := t.TempDir()
	content := append([]byte{0x08}, make([]byte, 63)...)
	for _, name := range []string{"reasoner.onnx", "translator.onnx"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), content, 0o644))
	}

	cfg := config.ModelConfig{
		SearchDirs:         []string{dir},
		ReasonerArtifact:   "reasoner.onnx",
		TranslatorArtifact: "translator.onnx",
		MinArtifactBytes:   16,
		MaxLoadRetries:     1,
		BackoffBase:        time.Millisecond,
		GenerationBudget:   time.Second,
		MaxTokens:          64,
		BreakerFailures:    5,
		BreakerTimeout:     time.Minute,
	}
	san := sanitize.New(1000, 5000)
	rules := config.RulesConfig{TachycardiaBPM: 100, BradycardiaBPM: 50, PreeclampsiaWeeks: 20}

	rt := &model.FakeRuntime{ReplyText: modelReply}
	orch := model.NewOrchestrator(cfg, monitor, san, model.FakeLoader(rt, nil), log)
	reasoner := reason.NewReasoner(rules, san, log)

	screener, err := service.NewScreener(fusion.NewAggregator(log), reasoner, orch, nil, 8, log)
	require.NoError(t, err)

	return NewServer(screener, monitor, "v0.1.0-test", log)
}

func textOf(t *testing.T, res *gosdk.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*gosdk.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestHandleScreenPatientAbstainsOnEmptySession(t *testing.T) {
	s := newTestServer(t, thermal.AlwaysSafe())

	res, structured, err := s.handleScreenPatient(context.Background(), nil, ScreenPatientParams{})

	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, textOf(t, res), "Triage GREEN")

	result, ok := structured.(ScreenPatientResult)
	require.True(t, ok)
	assert.Equal(t, "GREEN", result.Triage)
	assert.Equal(t, "rule-based-abstention", result.Provenance)
	assert.NotEmpty(t, result.Disclaimer)
}

func TestHandleAddSymptomRequiresText(t *testing.T) {
	s := newTestServer(t, thermal.AlwaysSafe())

	res, _, err := s.handleAddSymptom(context.Background(), nil, AddSymptomParams{Text: "  "})

	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "text is required")
}

func TestHandleAddSymptomFlowsIntoVitalsAndScreening(t *testing.T) {
	s := newTestServer(t, thermal.AlwaysSafe())

	res, structured, err := s.handleAddSymptom(context.Background(), nil, AddSymptomParams{Text: "fever", Duration: "2 days"})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	added, ok := structured.(AddSymptomResult)
	require.True(t, ok)
	assert.Equal(t, 1, added.SymptomCount)

	_, structured, err = s.handleGetVitals(context.Background(), nil, struct{}{})
	require.NoError(t, err)
	vitals, ok := structured.(GetVitalsResult)
	require.True(t, ok)
	require.Len(t, vitals.Symptoms, 1)
	assert.Equal(t, "fever", vitals.Symptoms[0].Text)
	assert.Equal(t, "2 days", vitals.Symptoms[0].Duration)

	// A reported symptom is enough to leave the abstention path.
	_, structured, err = s.handleScreenPatient(context.Background(), nil, ScreenPatientParams{})
	require.NoError(t, err)
	result, ok := structured.(ScreenPatientResult)
	require.True(t, ok)
	assert.NotEqual(t, "rule-based-abstention", result.Provenance)
}

func TestHandleGetVitalsFlagsHighRisk(t *testing.T) {
	s := newTestServer(t, thermal.AlwaysSafe())
	s.screener.Fusion().UpdatePallor(&domain.ExtractorResult{
		Modality:   "pallor",
		Score:      0.9,
		Confidence: 0.9,
		Severity:   domain.IndicatorSevere,
		Quality:    domain.QualityGood,
		Analyzed:   true,
		Pallor:     &domain.PallorBiomarkers{MeanSaturation: 0.05},
	})

	_, structured, err := s.handleGetVitals(context.Background(), nil, struct{}{})

	require.NoError(t, err)
	vitals, ok := structured.(GetVitalsResult)
	require.True(t, ok)
	assert.True(t, vitals.HighRisk)
	assert.True(t, vitals.HasConfidentData)
	require.NotNil(t, vitals.Pallor)
	assert.Equal(t, "SEVERE", vitals.Pallor.Severity)
}

func TestHandleResetSessionIssuesNewIdentity(t *testing.T) {
	s := newTestServer(t, thermal.AlwaysSafe())

	_, _, err := s.handleAddSymptom(context.Background(), nil, AddSymptomParams{Text: "fever"})
	require.NoError(t, err)

	_, before, err := s.handleGetVitals(context.Background(), nil, struct{}{})
	require.NoError(t, err)
	beforeID := before.(GetVitalsResult).SessionID

	_, structured, err := s.handleResetSession(context.Background(), nil, struct{}{})
	require.NoError(t, err)
	reset, ok := structured.(ResetSessionResult)
	require.True(t, ok)
	assert.NotEqual(t, beforeID, reset.SessionID)

	_, after, err := s.handleGetVitals(context.Background(), nil, struct{}{})
	require.NoError(t, err)
	assert.Empty(t, after.(GetVitalsResult).Symptoms)
}

func TestHandleThermalStatusReportsUnsafeDevice(t *testing.T) {
	hot := &thermal.StaticMonitor{Fixed: thermal.Status{
		Safe:              false,
		TemperatureC:      45.0,
		Message:           "Device too hot (45.0 C). Cooldown active.",
		CooldownRemaining: 30 * time.Second,
	}}
	s := newTestServer(t, hot)

	res, structured, err := s.handleThermalStatus(context.Background(), nil, struct{}{})

	require.NoError(t, err)
	assert.Contains(t, textOf(t, res), "too hot")

	status, ok := structured.(ThermalStatusResult)
	require.True(t, ok)
	assert.False(t, status.Safe)
	assert.Equal(t, 45.0, status.TemperatureC)
	assert.Equal(t, "30s", status.CooldownRemaining)
}
