package mcp_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/internal/iocache"
	mcp_internal "github.com/huangsam/spikewave/internal/mcp"
	"github.com/huangsam/spikewave/internal/simulate"
	"github.com/huangsam/spikewave/schema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := s.GetTool(name)
	require.NotNil(t, tool, "Tool %s should exist", name)

	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
	res, err := tool.Handler(context.Background(), req)
	require.NoError(t, err, "The MCP handler should not return a raw error for tool logic failures")
	return res
}

func resultText(res *mcp.CallToolResult) string {
	return res.Content[0].(mcp.TextContent).Text
}

func TestMCPServerHandlers_ValidationErrors(t *testing.T) {
	baseCfg := &contract.Config{SessionName: "mouse1", ArtifactFormat: schema.MsgpackArtifact}

	// Nil manager: validation fails before any store is touched
	s := mcp_internal.NewMCPServer(baseCfg, nil)

	t.Run("run_unit missing probe", func(t *testing.T) {
		res := callTool(t, s, "run_unit", map[string]any{"recording": "1"})
		assert.True(t, res.IsError, "The response should indicate an error state")
		assert.Contains(t, resultText(res), "recording and probe are required")
	})

	t.Run("run_unit invalid artifact format", func(t *testing.T) {
		res := callTool(t, s, "run_unit", map[string]any{"recording": "1", "probe": "A", "artifact_format": "hdf5"})
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(res), "invalid artifact format")
	})

	t.Run("run_unit unknown recording", func(t *testing.T) {
		res := callTool(t, s, "run_unit", map[string]any{"recording": "1", "probe": "A"})
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(res), "recording 1 not found")
	})

	t.Run("get_flags without store", func(t *testing.T) {
		res := callTool(t, s, "get_flags", nil)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(res), "flag store is disabled")
	})

	t.Run("get_run_status without store", func(t *testing.T) {
		res := callTool(t, s, "get_run_status", nil)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(res), "run tracking is disabled")
	})

	t.Run("decode_barcodes unknown recording", func(t *testing.T) {
		res := callTool(t, s, "decode_barcodes", map[string]any{"recording": "7"})
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(res), "recording 7 not found")
	})
}

func TestMCPServerFlagTools(t *testing.T) {
	baseCfg := &contract.Config{SessionName: "mouse1"}
	key := schema.UnitKey{Session: "mouse1", Recording: "1", Probe: "A"}

	flags := &iocache.MockFlagStore{}
	flags.On("List").Return([]schema.UnitFlag{{UnitKey: key, Skip: true, Reason: "noisy"}}, nil)
	flags.On("Set", mock.MatchedBy(func(f schema.UnitFlag) bool {
		return f.UnitKey == key && f.Skip && f.Reason == "bad sorting"
	})).Return(nil).Once()
	flags.On("Clear", key).Return(nil).Once()

	mgr := &iocache.MockStoreManager{}
	mgr.On("GetFlagStore").Return(flags)
	s := mcp_internal.NewMCPServer(baseCfg, mgr)

	res := callTool(t, s, "get_flags", nil)
	require.False(t, res.IsError, resultText(res))
	var listed []schema.UnitFlag
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "noisy", listed[0].Reason)

	res = callTool(t, s, "set_flag", map[string]any{"recording": "1", "probe": "A", "reason": "bad sorting"})
	assert.False(t, res.IsError, resultText(res))

	res = callTool(t, s, "set_flag", map[string]any{"recording": "1", "probe": "A", "skip": false})
	assert.False(t, res.IsError, resultText(res))
	assert.Contains(t, resultText(res), "cleared flag of mouse1/1/A")

	flags.AssertExpectations(t)
}

func TestMCPServerRunStatus(t *testing.T) {
	runs := &iocache.MockRunStore{}
	runs.On("GetStatus").Return(schema.RunStatus{Backend: "sqlite", Connected: true, TotalRuns: 3}, nil)
	mgr := &iocache.MockStoreManager{}
	mgr.On("GetRunStore").Return(runs)

	s := mcp_internal.NewMCPServer(&contract.Config{}, mgr)
	res := callTool(t, s, "get_run_status", nil)
	require.False(t, res.IsError, resultText(res))

	var status schema.RunStatus
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &status))
	assert.Equal(t, 3, status.TotalRuns)
	assert.True(t, status.Connected)
}

func TestMCPServerSessionTools(t *testing.T) {
	sess, err := simulate.Generate(simulate.DefaultOptions(t.TempDir()))
	require.NoError(t, err)
	conditions, params := simulate.Conditions()
	baseCfg := &contract.Config{
		SessionName:        sess.Name,
		OutputDir:          t.TempDir(),
		ArtifactFormat:     schema.MsgpackArtifact,
		Workers:            1,
		ClusterWorkers:     1,
		Seed:               1,
		ProbeSampleRate:    sess.Options.ProbeRate,
		Barcode:            sess.Options.Barcode,
		AlignmentPolicy:    schema.FirstMatchPolicy,
		AlignmentTolerance: 1,
		Extraction: schema.ExtractionParams{
			NChannels:       sess.Options.NChannels,
			TotWaveforms:    20,
			SamplesPerSpike: 12,
			PreSamples:      3,
			NBoots:          3,
		},
		Conditions: conditions,
		PSTHParams: params,
		Recordings: sess.Recordings,
	}
	s := mcp_internal.NewMCPServer(baseCfg, nil)

	res := callTool(t, s, "decode_barcodes", map[string]any{"recording": "1", "probe": "A"})
	require.False(t, res.IsError, resultText(res))
	var codes []schema.Barcode
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &codes))
	assert.Len(t, codes, 3)

	res = callTool(t, s, "run_unit", map[string]any{"recording": "1", "probe": "A", "artifact_format": "json"})
	require.False(t, res.IsError, resultText(res))
	var result schema.UnitResult
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &result))
	assert.Equal(t, schema.UnitCompleted, result.State)
	assert.Contains(t, result.ArtifactPath, "extracted_data_1_probeA.json")
	assert.Equal(t, schema.MsgpackArtifact, baseCfg.ArtifactFormat, "base config is not mutated")
}
