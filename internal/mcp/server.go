// Package mcp exposes the screening core to the external UI layer over the
// Model Context Protocol. Stdio transport only; the screening core never
// opens a network listener.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/nku-health/nku-screen/internal/service"
	"github.com/nku-health/nku-screen/internal/thermal"
)

// Server wraps one screening session behind MCP tools.
type Server struct {
	screener  *service.Screener
	monitor   thermal.Monitor
	mcpServer *mcp.Server
	logger    *logrus.Logger
}

// NewServer creates the MCP server and registers the screening tools.
func NewServer(screener *service.Screener, monitor thermal.Monitor, version string, logger *logrus.Logger) *Server {
	serverInfo := &mcp.Implementation{
		Name:    "nku-screen",
		Version: version,
	}

	s := &Server{
		screener:  screener,
		monitor:   monitor,
		mcpServer: mcp.NewServer(serverInfo, nil),
		logger:    logger,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "screen_patient",
		Description: "Run a full triage pass over the current session and return the referral assessment",
	}, s.handleScreenPatient)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_vitals",
		Description: "Return the current fused vital-sign snapshot for this session",
	}, s.handleGetVitals)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "add_symptom",
		Description: "Record a patient-reported symptom with an optional duration",
	}, s.handleAddSymptom)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "reset_session",
		Description: "Discard all session state and start a fresh screening session",
	}, s.handleResetSession)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "thermal_status",
		Description: "Report whether the device is currently safe for on-device inference",
	}, s.handleThermalStatus)

	s.logger.WithField("tool_count", 5).Info("Registered MCP screening tools")
}

// Start runs the MCP server over stdio until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting nku-screen MCP server...")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// createErrorResult creates a standardized error result for tool calls.
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
