package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/huangsam/spikewave/core"
	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/schema"
	"github.com/mark3labs/mcp-go/mcp"
)

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	baseCfg *contract.Config
	mgr     contract.StoreManager
}

func (h *toolHandler) flagStore() contract.FlagStore {
	if h.mgr == nil {
		return nil
	}
	return h.mgr.GetFlagStore()
}

func (h *toolHandler) runStore() contract.RunStore {
	if h.mgr == nil {
		return nil
	}
	return h.mgr.GetRunStore()
}

// unitArgs reads the required recording and probe arguments.
func unitArgs(request mcp.CallToolRequest) (string, string, error) {
	recording := strings.TrimSpace(request.GetString("recording", ""))
	probe := strings.TrimSpace(request.GetString("probe", ""))
	if recording == "" || probe == "" {
		return "", "", fmt.Errorf("recording and probe are required")
	}
	return recording, probe, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

func (h *toolHandler) handleRunUnit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recording, probe, err := unitArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cfg := h.baseCfg.Clone()
	if f := request.GetString("artifact_format", ""); f != "" {
		format := schema.ArtifactFormat(strings.ToLower(f))
		if _, ok := schema.ValidArtifactFormats[format]; !ok {
			return mcp.NewToolResultError(fmt.Sprintf("invalid artifact format '%s'. must be msgpack, json", f)), nil
		}
		cfg.ArtifactFormat = format
	}

	result, err := core.RunUnit(ctx, cfg, h.mgr, recording, probe)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
	}
	return jsonResult(result)
}

func (h *toolHandler) handleGetFlags(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	flags := h.flagStore()
	if flags == nil {
		return mcp.NewToolResultError("flag store is disabled"), nil
	}
	list, err := flags.List()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list flags: %v", err)), nil
	}
	if list == nil {
		list = []schema.UnitFlag{}
	}
	return jsonResult(list)
}

func (h *toolHandler) handleSetFlag(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recording, probe, err := unitArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	flags := h.flagStore()
	if flags == nil {
		return mcp.NewToolResultError("flag store is disabled"), nil
	}

	key := schema.UnitKey{Session: h.baseCfg.SessionName, Recording: recording, Probe: probe}
	if !request.GetBool("skip", true) {
		if err := flags.Clear(key); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to clear flag: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("cleared flag of %s", key)), nil
	}

	flag := schema.UnitFlag{
		UnitKey:   key,
		Skip:      true,
		Reason:    request.GetString("reason", "flagged manually"),
		UpdatedAt: time.Now(),
	}
	if err := flags.Set(flag); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to set flag: %v", err)), nil
	}
	return jsonResult(flag)
}

func (h *toolHandler) handleGetRunStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs := h.runStore()
	if runs == nil {
		return mcp.NewToolResultError("run tracking is disabled"), nil
	}
	status, err := runs.GetStatus()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read run status: %v", err)), nil
	}
	return jsonResult(status)
}

func (h *toolHandler) handleDecodeBarcodes(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recording := strings.TrimSpace(request.GetString("recording", ""))
	if recording == "" {
		return mcp.NewToolResultError("recording is required"), nil
	}
	probe := strings.TrimSpace(request.GetString("probe", ""))

	stream, err := h.baseCfg.FindStream(recording, probe)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	codes, err := core.DecodeStream(h.baseCfg, stream, stream.BarcodeLine)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("decode failed: %v", err)), nil
	}
	return jsonResult(codes)
}
