package bridge

import (
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Kenbark42/dominus-ai/internal/backend"
	"github.com/Kenbark42/dominus-ai/internal/tool"
)

// handleListTools returns the definitions of all registered tools.
func (s *Server) handleListTools() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"tools": s.tools.Definitions()})
	}
}

// executeToolRequest is the body for POST /tools/execute: a direct tool
// invocation without a model round-trip.
type executeToolRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// handleExecuteTool runs one tool directly.
func (s *Server) handleExecuteTool() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req executeToolRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.Tool == "" {
			writeError(w, http.StatusBadRequest, "tool is required")
			return
		}

		result := s.executor.Execute(r.Context(), tool.Call{Name: req.Tool, Args: req.Arguments})
		writeJSON(w, http.StatusOK, result)
	}
}

// toolsChatRequest is the body for POST /generate_with_tools.
type toolsChatRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	Message   string         `json:"message"`
	Params    backend.Params `json:"params,omitempty"`
}

// toolRound records one tool-call iteration for the response.
type toolRound struct {
	Calls   []tool.Call   `json:"calls"`
	Results []tool.Result `json:"results"`
}

// toolsChatResponse is the body for POST /generate_with_tools.
type toolsChatResponse struct {
	SessionID  string      `json:"session_id"`
	Response   string      `json:"response"`
	Rounds     []toolRound `json:"rounds,omitempty"`
	Usage      chatUsage   `json:"usage"`
	DurationMS int64       `json:"duration_ms"`
}

// handleGenerateWithTools runs a turn with the tool-calling loop: the model
// is prompted with the tool definitions, parsed calls are executed, and
// results are fed back until the model answers directly or the round limit
// is reached.
func (s *Server) handleGenerateWithTools() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req toolsChatRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.Message == "" {
			writeError(w, http.StatusBadRequest, "message is required")
			return
		}

		resp, err := s.chatWithTools(r, req)
		if err != nil {
			s.metrics.RecordBackendError()
			if errors.Is(err, backend.ErrUnavailable) {
				writeError(w, http.StatusBadGateway, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) chatWithTools(r *http.Request, req toolsChatRequest) (*toolsChatResponse, error) {
	start := time.Now()

	ctx, span := s.tracer.Start(r.Context(), "bridge.generate_with_tools")
	defer span.End()

	sessionID := s.manager.GetOrCreateSession(ctx, req.SessionID)

	turn := chatRequest{
		SessionID:    sessionID,
		Message:      req.Message,
		SystemPrompt: tool.FormatSystemPrompt(s.tools.Definitions()),
		Params:       req.Params,
	}

	var (
		rounds    []toolRound
		usage     chatUsage
		finalText string
	)

	for round := 0; round <= s.config.ToolMaxRounds; round++ {
		resp, err := s.chat(ctx, turn)
		if err != nil {
			return nil, err
		}
		usage.PromptTokens += resp.Usage.PromptTokens
		usage.CompletionTokens += resp.Usage.CompletionTokens

		calls := tool.ParseCalls(resp.Response)
		if len(calls) == 0 || round == s.config.ToolMaxRounds {
			finalText = resp.Response
			break
		}

		results := s.executor.ExecuteAll(ctx, calls)
		rounds = append(rounds, toolRound{Calls: calls, Results: results})
		s.metrics.RecordToolCalls(len(calls))

		// Feed the results back as the next user turn.
		turn = chatRequest{
			SessionID:    sessionID,
			Message:      tool.FormatResults(results),
			SystemPrompt: turn.SystemPrompt,
			Params:       req.Params,
		}
	}

	span.SetAttributes(attribute.Int("tools.rounds", len(rounds)))

	return &toolsChatResponse{
		SessionID:  sessionID,
		Response:   finalText,
		Rounds:     rounds,
		Usage:      usage,
		DurationMS: time.Since(start).Milliseconds(),
	}, nil
}
