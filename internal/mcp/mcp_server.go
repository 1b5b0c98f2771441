// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer initializes and configures the Spikewave MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(baseCfg *contract.Config, mgr contract.StoreManager) *server.MCPServer {
	s := server.NewMCPServer(
		"Spikewave Session Server",
		"1.0.0",
		server.WithLogging(),
	)

	h := &toolHandler{
		baseCfg: baseCfg,
		mgr:     mgr,
	}

	// --- 1. Tool: run_unit ---
	s.AddTool(mcp.NewTool("run_unit",
		mcp.WithDescription("Align, extract waveforms and build PSTHs for one recording/probe unit of the configured session."),
		mcp.WithString("recording", mcp.Description("Recording name from the session manifest."), mcp.Required()),
		mcp.WithString("probe", mcp.Description("Probe label within the recording."), mcp.Required()),
		mcp.WithString("artifact_format", mcp.Description("Artifact serialization. Defaults to the configured format."), mcp.Enum("msgpack", "json")),
	), h.handleRunUnit)

	// --- 2. Tool: get_flags ---
	s.AddTool(mcp.NewTool("get_flags",
		mcp.WithDescription("List the persisted skip flags of every unit."),
	), h.handleGetFlags)

	// --- 3. Tool: set_flag ---
	s.AddTool(mcp.NewTool("set_flag",
		mcp.WithDescription("Mark a unit to be skipped by future runs, or clear its flag when skip is false."),
		mcp.WithString("recording", mcp.Description("Recording name."), mcp.Required()),
		mcp.WithString("probe", mcp.Description("Probe label."), mcp.Required()),
		mcp.WithBoolean("skip", mcp.Description("Skip the unit on future runs. Defaults to true.")),
		mcp.WithString("reason", mcp.Description("Why the unit is skipped.")),
	), h.handleSetFlag)

	// --- 4. Tool: get_run_status ---
	s.AddTool(mcp.NewTool("get_run_status",
		mcp.WithDescription("Summarize tracked runs, unit outcomes and cluster counts."),
	), h.handleGetRunStatus)

	// --- 5. Tool: decode_barcodes ---
	s.AddTool(mcp.NewTool("decode_barcodes",
		mcp.WithDescription("Decode the barcodes of the master stream of a recording, or of one of its probes."),
		mcp.WithString("recording", mcp.Description("Recording name."), mcp.Required()),
		mcp.WithString("probe", mcp.Description("Probe label. Omit to decode the master stream.")),
	), h.handleDecodeBarcodes)

	return s
}

// StartMCPServer starts the Spikewave MCP server.
func StartMCPServer(_ context.Context, baseCfg *contract.Config, mgr contract.StoreManager) error {
	s := NewMCPServer(baseCfg, mgr)
	return server.ServeStdio(s)
}
