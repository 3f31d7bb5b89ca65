package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nku-health/nku-screen/internal/domain"
)

// ScreenPatientParams defines parameters for the screen_patient tool.
type ScreenPatientParams struct {
	// Language is a BCP 47 code for the patient's language. Empty or "en"
	// skips the translation stages.
	Language string `json:"language,omitempty"`
}

// ScreenPatientResult defines the result structure for screen_patient.
type ScreenPatientResult struct {
	SessionID       string   `json:"session_id"`
	Severity        string   `json:"severity"`
	Urgency         string   `json:"urgency"`
	Triage          string   `json:"triage"`
	PrimaryConcerns []string `json:"primary_concerns"`
	Recommendations []string `json:"recommendations"`
	Disclaimer      string   `json:"disclaimer"`
	Provenance      string   `json:"provenance"`
}

// HeartRateView is the heart-rate portion of a vitals snapshot.
type HeartRateView struct {
	BPM        float64 `json:"bpm"`
	Confidence float64 `json:"confidence"`
	Quality    string  `json:"quality"`
}

// IndicatorView is the pallor or edema portion of a vitals snapshot.
type IndicatorView struct {
	Score      float64 `json:"score"`
	Severity   string  `json:"severity"`
	Confidence float64 `json:"confidence"`
}

// SymptomView is one reported symptom in a vitals snapshot.
type SymptomView struct {
	Text     string `json:"text"`
	Duration string `json:"duration,omitempty"`
}

// GetVitalsResult defines the result structure for get_vitals.
type GetVitalsResult struct {
	SessionID        string         `json:"session_id"`
	HeartRate        *HeartRateView `json:"heart_rate,omitempty"`
	Pallor           *IndicatorView `json:"pallor,omitempty"`
	Edema            *IndicatorView `json:"edema,omitempty"`
	Pregnant         bool           `json:"pregnant"`
	GestationalWeeks *int           `json:"gestational_weeks,omitempty"`
	Symptoms         []SymptomView  `json:"symptoms"`
	HasConfidentData bool           `json:"has_confident_data"`
	// HighRisk is the re-capture hint: a confident severe indicator is
	// present and the UI should urge an immediate full screening pass.
	HighRisk bool `json:"high_risk"`
}

// AddSymptomParams defines parameters for the add_symptom tool.
type AddSymptomParams struct {
	Text     string `json:"text"`
	Duration string `json:"duration,omitempty"`
}

// AddSymptomResult defines the result structure for add_symptom.
type AddSymptomResult struct {
	SessionID    string `json:"session_id"`
	SymptomCount int    `json:"symptom_count"`
}

// ResetSessionResult defines the result structure for reset_session.
type ResetSessionResult struct {
	SessionID string `json:"session_id"`
}

// ThermalStatusResult defines the result structure for thermal_status.
type ThermalStatusResult struct {
	Safe              bool    `json:"safe"`
	TemperatureC      float64 `json:"temperature_c"`
	Message           string  `json:"message"`
	CooldownRemaining string  `json:"cooldown_remaining,omitempty"`
}

func (s *Server) handleScreenPatient(ctx context.Context, req *mcp.CallToolRequest, params ScreenPatientParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "screen_patient").Info("Tool invoked")

	a := s.screener.Screen(ctx, params.Language, nil)

	result := ScreenPatientResult{
		SessionID:       s.screener.SessionID(),
		Severity:        a.Severity.String(),
		Urgency:         a.Urgency.String(),
		Triage:          a.Triage.String(),
		PrimaryConcerns: a.PrimaryConcerns,
		Recommendations: a.Recommendations,
		Disclaimer:      a.Disclaimer,
		Provenance:      string(a.Provenance),
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Triage %s: severity %s, urgency %s. %s",
					result.Triage, result.Severity, result.Urgency,
					strings.Join(result.PrimaryConcerns, "; ")),
			},
		},
	}, result, nil
}

func (s *Server) handleGetVitals(ctx context.Context, req *mcp.CallToolRequest, params struct{}) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "get_vitals").Debug("Tool invoked")

	v := s.screener.Vitals()
	result := vitalsView(s.screener.SessionID(), v)
	result.HighRisk = s.screener.Fusion().HighRiskIndicator()

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: vitalsSummary(v)},
		},
	}, result, nil
}

func (s *Server) handleAddSymptom(ctx context.Context, req *mcp.CallToolRequest, params AddSymptomParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "add_symptom").Info("Tool invoked")

	if strings.TrimSpace(params.Text) == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("text is required")), nil, nil
	}

	s.screener.Fusion().AddSymptom(params.Text, params.Duration)
	v := s.screener.Vitals()

	result := AddSymptomResult{
		SessionID:    s.screener.SessionID(),
		SymptomCount: len(v.Symptoms),
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Symptom recorded. %d symptom(s) in this session.", result.SymptomCount),
			},
		},
	}, result, nil
}

func (s *Server) handleResetSession(ctx context.Context, req *mcp.CallToolRequest, params struct{}) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "reset_session").Info("Tool invoked")

	s.screener.ResetSession()
	result := ResetSessionResult{SessionID: s.screener.SessionID()}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Session reset. New session: %s", result.SessionID),
			},
		},
	}, result, nil
}

func (s *Server) handleThermalStatus(ctx context.Context, req *mcp.CallToolRequest, params struct{}) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "thermal_status").Debug("Tool invoked")

	status := s.monitor.Status()
	result := ThermalStatusResult{
		Safe:         status.Safe,
		TemperatureC: status.TemperatureC,
		Message:      status.Message,
	}
	if status.CooldownRemaining > 0 {
		result.CooldownRemaining = status.CooldownRemaining.String()
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: status.Message},
		},
	}, result, nil
}

func vitalsView(sessionID string, v domain.VitalSigns) GetVitalsResult {
	result := GetVitalsResult{
		SessionID:        sessionID,
		Pregnant:         v.Pregnant,
		GestationalWeeks: v.GestationalWeeks,
		Symptoms:         make([]SymptomView, 0, len(v.Symptoms)),
		HasConfidentData: v.HasConfidentData(),
	}
	if v.HeartRate != nil {
		result.HeartRate = &HeartRateView{
			BPM:        v.HeartRate.BPM,
			Confidence: v.HeartRate.Confidence,
			Quality:    string(v.HeartRate.Quality),
		}
	}
	if v.Pallor != nil {
		result.Pallor = &IndicatorView{
			Score:      v.Pallor.Score,
			Severity:   v.Pallor.Severity.String(),
			Confidence: v.Pallor.Confidence,
		}
	}
	if v.Edema != nil {
		result.Edema = &IndicatorView{
			Score:      v.Edema.Score,
			Severity:   v.Edema.Severity.String(),
			Confidence: v.Edema.Confidence,
		}
	}
	for _, sym := range v.Symptoms {
		result.Symptoms = append(result.Symptoms, SymptomView{Text: sym.Text, Duration: sym.Duration})
	}
	return result
}

func vitalsSummary(v domain.VitalSigns) string {
	var parts []string
	if v.HeartRate != nil {
		parts = append(parts, fmt.Sprintf("heart rate %.1f bpm (%s)", v.HeartRate.BPM, v.HeartRate.Quality))
	}
	if v.Pallor != nil {
		parts = append(parts, fmt.Sprintf("pallor %s", v.Pallor.Severity))
	}
	if v.Edema != nil {
		parts = append(parts, fmt.Sprintf("edema %s", v.Edema.Severity))
	}
	if len(v.Symptoms) > 0 {
		parts = append(parts, fmt.Sprintf("%d reported symptom(s)", len(v.Symptoms)))
	}
	if len(parts) == 0 {
		return "No measurements or symptoms recorded in this session."
	}
	return "Current session: " + strings.Join(parts, ", ") + "."
}
