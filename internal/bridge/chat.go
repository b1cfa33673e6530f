package bridge

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Kenbark42/dominus-ai/internal/backend"
	"github.com/Kenbark42/dominus-ai/internal/conversation"
)

// chatRequest is the body for POST /chat.
type chatRequest struct {
	SessionID    string         `json:"session_id,omitempty"`
	Message      string         `json:"message"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	UseRAG       bool           `json:"use_rag,omitempty"`
	Collection   string         `json:"collection,omitempty"`
	Params       backend.Params `json:"params,omitempty"`
}

// chatUsage reports backend token accounting for one turn.
type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ragSource identifies one retrieved chunk that grounded the response.
type ragSource struct {
	Source string `json:"source"`
	Seq    int    `json:"seq"`
}

// chatResponse is the body for POST /chat.
type chatResponse struct {
	SessionID       string      `json:"session_id"`
	Response        string      `json:"response"`
	Thinking        string      `json:"thinking,omitempty"`
	Usage           chatUsage   `json:"usage"`
	ContextMessages int         `json:"context_messages"`
	Continued       bool        `json:"continued"`
	RAGSources      []ragSource `json:"rag_sources,omitempty"`
	DurationMS      int64       `json:"duration_ms"`
}

// handleChat runs one full conversation turn: resolve the session, record
// the user message, build the prompt (continuation state or rendered
// history, optionally RAG-augmented), call the backend, record the reply,
// and store the new continuation state.
func (s *Server) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.Message == "" {
			writeError(w, http.StatusBadRequest, "message is required")
			return
		}

		resp, err := s.chat(r.Context(), req)
		if err != nil {
			s.metrics.RecordBackendError()
			if errors.Is(err, backend.ErrUnavailable) {
				writeError(w, http.StatusBadGateway, err.Error())
				return
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				writeError(w, http.StatusGatewayTimeout, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// chat is the transport-independent turn pipeline, shared by the HTTP and
// WebSocket handlers.
func (s *Server) chat(ctx context.Context, req chatRequest) (*chatResponse, error) {
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "bridge.chat")
	defer span.End()

	sessionID := s.manager.GetOrCreateSession(ctx, req.SessionID)
	span.SetAttributes(attribute.String("session.id", sessionID))

	if _, err := s.manager.AddMessage(ctx, sessionID, conversation.RoleUser, req.Message, 0); err != nil {
		return nil, err
	}

	genReq, contextMessages, sources, continued, err := s.buildGenerateRequest(ctx, sessionID, req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("chat.continued", continued),
		attribute.Int("chat.context_messages", contextMessages),
	)

	// The backend call runs outside any manager lock; generations take
	// seconds to minutes.
	genResp, err := s.backend.Generate(ctx, genReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return nil, err
	}

	if _, err := s.manager.AddMessage(ctx, sessionID, conversation.RoleAssistant, genResp.Response, genResp.EvalCount); err != nil {
		// The session was cleaned up mid-turn; the generation still
		// succeeded, so return it rather than failing the request.
		s.logger.Warn("bridge: assistant message not recorded", "session_id", sessionID, "error", err)
	}
	if len(genResp.Context) > 0 {
		s.manager.UpdateContextState(ctx, sessionID, genResp.Context)
	}

	s.metrics.RecordGeneration(genResp.PromptEvalCount, genResp.EvalCount, time.Since(start))

	return &chatResponse{
		SessionID: sessionID,
		Response:  genResp.Response,
		Thinking:  genResp.Thinking,
		Usage: chatUsage{
			PromptTokens:     genResp.PromptEvalCount,
			CompletionTokens: genResp.EvalCount,
		},
		ContextMessages: contextMessages,
		Continued:       continued,
		RAGSources:      sources,
		DurationMS:      time.Since(start).Milliseconds(),
	}, nil
}

// buildGenerateRequest assembles the backend request for a turn. When the
// session has continuation state, only the new turn is sent alongside the
// opaque tokens; otherwise the full context window is rendered, with the
// user message optionally augmented by retrieval.
func (s *Server) buildGenerateRequest(ctx context.Context, sessionID string, req chatRequest) (backend.GenerateRequest, int, []ragSource, bool, error) {
	genReq := backend.GenerateRequest{Options: s.backend.Options(req.Params)}

	userMessage := req.Message
	var sources []ragSource
	if req.UseRAG && s.engine != nil {
		augmented, results, err := s.engine.AugmentPrompt(ctx, req.Collection, req.Message, 0)
		if err != nil {
			// Retrieval is an enhancement; degrade to the raw message.
			s.logger.Warn("bridge: rag augmentation failed", "error", err)
		} else {
			userMessage = augmented
			for _, r := range results {
				sources = append(sources, ragSource{Source: r.Source, Seq: r.Seq})
			}
		}
	}

	if state := s.manager.ContextState(ctx, sessionID); len(state) > 0 {
		genReq.Context = state
		genReq.Prompt = conversation.RenderContinuationPrompt(userMessage)
		return genReq, 0, sources, true, nil
	}

	history := s.manager.GetContext(ctx, sessionID, 0)
	// The user message was already appended; the rendered history must not
	// repeat it.
	if n := len(history); n > 0 && history[n-1].Role == conversation.RoleUser && history[n-1].Content == req.Message {
		history = history[:n-1]
	}

	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = s.config.SystemPrompt
	}
	genReq.Prompt = conversation.RenderPrompt(history, userMessage, systemPrompt)
	return genReq, len(history), sources, false, nil
}

// generateRequest is the body for POST /generate: a stateless one-shot
// generation that bypasses session tracking.
type generateRequest struct {
	Prompt string         `json:"prompt"`
	Params backend.Params `json:"params,omitempty"`
}

// generateResponse is the body for POST /generate.
type generateResponse struct {
	Response   string    `json:"response"`
	Thinking   string    `json:"thinking,omitempty"`
	Usage      chatUsage `json:"usage"`
	DurationMS int64     `json:"duration_ms"`
}

// handleGenerate runs a stateless generation.
func (s *Server) handleGenerate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.Prompt == "" {
			writeError(w, http.StatusBadRequest, "prompt is required")
			return
		}

		start := time.Now()
		ctx, span := s.tracer.Start(r.Context(), "bridge.generate",
			trace.WithAttributes(attribute.Int("prompt.bytes", len(req.Prompt))))
		defer span.End()

		genResp, err := s.backend.Generate(ctx, backend.GenerateRequest{
			Prompt:  req.Prompt,
			Options: s.backend.Options(req.Params),
		})
		if err != nil {
			span.RecordError(err)
			s.metrics.RecordBackendError()
			if errors.Is(err, backend.ErrUnavailable) {
				writeError(w, http.StatusBadGateway, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		s.metrics.RecordGeneration(genResp.PromptEvalCount, genResp.EvalCount, time.Since(start))
		writeJSON(w, http.StatusOK, generateResponse{
			Response: genResp.Response,
			Thinking: genResp.Thinking,
			Usage: chatUsage{
				PromptTokens:     genResp.PromptEvalCount,
				CompletionTokens: genResp.EvalCount,
			},
			DurationMS: time.Since(start).Milliseconds(),
		})
	}
}
