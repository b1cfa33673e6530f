package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/Kenbark42/dominus-ai/internal/backend"
	"github.com/Kenbark42/dominus-ai/internal/conversation"
)

// streamEvent is one WebSocket frame in a streamed chat. Type is "chunk"
// while tokens arrive, then a single "done" carrying the final accounting,
// or "error".
type streamEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Thinking  string `json:"thinking,omitempty"`
	Error     string `json:"error,omitempty"`

	Usage *chatUsage `json:"usage,omitempty"`
}

// handleChatStream upgrades to WebSocket, reads one chatRequest, and streams
// the generation back chunk by chunk. One turn per connection.
func (s *Server) handleChatStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			s.logger.Warn("bridge: websocket accept failed", "error", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusInternalError, "unexpected close") }()

		ctx := r.Context()

		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var req chatRequest
		if err := json.Unmarshal(data, &req); err != nil || req.Message == "" {
			s.sendEvent(ctx, conn, streamEvent{Type: "error", Error: "expected a chat request with a message"})
			_ = conn.Close(websocket.StatusUnsupportedData, "bad request")
			return
		}

		if err := s.streamChat(ctx, conn, req); err != nil {
			s.metrics.RecordBackendError()
			s.sendEvent(ctx, conn, streamEvent{Type: "error", Error: err.Error()})
			_ = conn.Close(websocket.StatusInternalError, "generation failed")
			return
		}

		_ = conn.Close(websocket.StatusNormalClosure, "done")
	}
}

// streamChat runs the turn pipeline with a streaming backend call, relaying
// each chunk as a WebSocket frame.
func (s *Server) streamChat(ctx context.Context, conn *websocket.Conn, req chatRequest) error {
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "bridge.chat_stream")
	defer span.End()

	sessionID := s.manager.GetOrCreateSession(ctx, req.SessionID)
	if _, err := s.manager.AddMessage(ctx, sessionID, conversation.RoleUser, req.Message, 0); err != nil {
		return err
	}

	genReq, _, _, _, err := s.buildGenerateRequest(ctx, sessionID, req)
	if err != nil {
		return err
	}

	var (
		assembled string
		final     backend.GenerateResponse
	)
	err = s.backend.GenerateStream(ctx, genReq, func(chunk backend.GenerateResponse) error {
		if chunk.Done {
			final = chunk
			return nil
		}
		assembled += chunk.Response
		s.sendEvent(ctx, conn, streamEvent{
			Type:      "chunk",
			SessionID: sessionID,
			Content:   chunk.Response,
			Thinking:  chunk.Thinking,
		})
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	if _, err := s.manager.AddMessage(ctx, sessionID, conversation.RoleAssistant, assembled, final.EvalCount); err != nil {
		s.logger.Warn("bridge: assistant message not recorded", "session_id", sessionID, "error", err)
	}
	if len(final.Context) > 0 {
		s.manager.UpdateContextState(ctx, sessionID, final.Context)
	}
	s.metrics.RecordGeneration(final.PromptEvalCount, final.EvalCount, time.Since(start))

	s.sendEvent(ctx, conn, streamEvent{
		Type:      "done",
		SessionID: sessionID,
		Usage: &chatUsage{
			PromptTokens:     final.PromptEvalCount,
			CompletionTokens: final.EvalCount,
		},
	})
	return nil
}

// sendEvent writes one JSON frame, logging rather than failing on error:
// a dropped client must not abort the pipeline mid-persist.
func (s *Server) sendEvent(ctx context.Context, conn *websocket.Conn, ev streamEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("bridge: marshal stream event", "error", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.logger.Debug("bridge: stream write failed", "error", err)
	}
}
