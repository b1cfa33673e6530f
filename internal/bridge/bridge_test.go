package bridge_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Kenbark42/dominus-ai/internal/backend"
	"github.com/Kenbark42/dominus-ai/internal/bridge"
	"github.com/Kenbark42/dominus-ai/internal/cache"
	"github.com/Kenbark42/dominus-ai/internal/conversation"
	"github.com/Kenbark42/dominus-ai/internal/rag"
	"github.com/Kenbark42/dominus-ai/internal/store/sqlite"
	"github.com/Kenbark42/dominus-ai/internal/tool"
)

// fakeBackend scripts Generate responses and records requests.
type fakeBackend struct {
	responses []backend.GenerateResponse
	requests  []backend.GenerateRequest
	healthErr error
	calls     int
}

func (f *fakeBackend) Generate(_ context.Context, req backend.GenerateRequest) (*backend.GenerateResponse, error) {
	f.requests = append(f.requests, req)
	if f.calls >= len(f.responses) {
		return nil, fmt.Errorf("%w: no scripted response %d", backend.ErrUnavailable, f.calls)
	}
	resp := f.responses[f.calls]
	f.calls++
	return &resp, nil
}

func (f *fakeBackend) GenerateStream(ctx context.Context, req backend.GenerateRequest, fn func(backend.GenerateResponse) error) error {
	resp, err := f.Generate(ctx, req)
	if err != nil {
		return err
	}
	if err := fn(backend.GenerateResponse{Response: resp.Response}); err != nil {
		return err
	}
	final := *resp
	final.Response = ""
	final.Done = true
	return fn(final)
}

func (f *fakeBackend) Health(context.Context) error { return f.healthErr }
func (f *fakeBackend) Model() string                { return "test-model" }
func (f *fakeBackend) Options(p backend.Params) backend.Options {
	return backend.Config{NumCtx: 4096}.BuildOptions(p)
}

type testEnv struct {
	server  *bridge.Server
	handler http.Handler
	manager *conversation.Manager
	backend *fakeBackend
}

func newTestEnv(t *testing.T, cfg bridge.Config, be *fakeBackend) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	store, err := sqlite.Open(filepath.Join(dir, "conversations.db"), sqlite.Options{Logger: logger})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	manager := conversation.NewManager(conversation.Config{}, store, cache.NewTTLCache(), logger)

	engine, err := rag.Open(rag.Config{Path: filepath.Join(dir, "documents.db"), Logger: logger})
	if err != nil {
		t.Fatalf("open rag: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	registry := tool.NewRegistry()
	if err := tool.RegisterBuiltins(registry, dir, nil); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	executor := tool.NewExecutor(registry, 5*time.Second, logger)

	srv := bridge.New(cfg, manager, be, engine, registry, executor, logger)
	return &testEnv{server: srv, handler: srv.Handler(), manager: manager, backend: be}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestChatFlow(t *testing.T) {
	be := &fakeBackend{responses: []backend.GenerateResponse{
		{Response: "Hello Alice!", Context: []int{1, 2, 3}, PromptEvalCount: 10, EvalCount: 4, Done: true},
		{Response: "Your name is Alice.", Context: []int{4, 5, 6}, PromptEvalCount: 3, EvalCount: 5, Done: true},
	}}
	env := newTestEnv(t, bridge.Config{}, be)

	rec := env.do(t, http.MethodPost, "/chat", map[string]any{"message": "Hi, my name is Alice"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	first := decodeBody[map[string]any](t, rec)

	sessionID, _ := first["session_id"].(string)
	if sessionID == "" {
		t.Fatal("no session_id in response")
	}
	if first["response"] != "Hello Alice!" {
		t.Errorf("response = %v", first["response"])
	}
	if first["continued"] != false {
		t.Error("first turn must not be a continuation")
	}

	// First request renders the full prompt; no continuation state yet.
	if len(be.requests[0].Context) != 0 {
		t.Errorf("first request context = %v, want empty", be.requests[0].Context)
	}
	if !strings.Contains(be.requests[0].Prompt, "User: Hi, my name is Alice") {
		t.Errorf("prompt missing user turn:\n%s", be.requests[0].Prompt)
	}

	rec = env.do(t, http.MethodPost, "/chat", map[string]any{
		"session_id": sessionID,
		"message":    "What is my name?",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	second := decodeBody[map[string]any](t, rec)

	if second["session_id"] != sessionID {
		t.Errorf("session_id changed: %v", second["session_id"])
	}
	if second["continued"] != true {
		t.Error("second turn should resume from continuation state")
	}

	// Second request carries the opaque state and only the new turn.
	got := be.requests[1]
	if len(got.Context) != 3 || got.Context[0] != 1 {
		t.Errorf("second request context = %v, want [1 2 3]", got.Context)
	}
	if strings.Contains(got.Prompt, "Alice!") {
		t.Errorf("continuation prompt should not re-render history:\n%s", got.Prompt)
	}

	// Both turns were recorded.
	info, ok := env.manager.SessionInfo(context.Background(), sessionID)
	if !ok {
		t.Fatal("session not found after chat")
	}
	if info.MessageCount != 4 {
		t.Errorf("message count = %d, want 4", info.MessageCount)
	}
}

func TestChatBackendDown(t *testing.T) {
	env := newTestEnv(t, bridge.Config{}, &fakeBackend{})

	rec := env.do(t, http.MethodPost, "/chat", map[string]any{"message": "hi"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestChatValidation(t *testing.T) {
	env := newTestEnv(t, bridge.Config{}, &fakeBackend{})

	rec := env.do(t, http.MethodPost, "/chat", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/chat", map[string]any{"message": "hi", "bogus": true})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: status = %d, want 400", rec.Code)
	}
}

func TestGenerateStateless(t *testing.T) {
	be := &fakeBackend{responses: []backend.GenerateResponse{
		{Response: "out", PromptEvalCount: 2, EvalCount: 1, Done: true},
	}}
	env := newTestEnv(t, bridge.Config{}, be)

	rec := env.do(t, http.MethodPost, "/generate", map[string]any{"prompt": "raw prompt"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if be.requests[0].Prompt != "raw prompt" {
		t.Errorf("prompt = %q, want passthrough", be.requests[0].Prompt)
	}
	if env.manager.Len() != 0 {
		t.Errorf("sessions = %d, stateless generate must not create one", env.manager.Len())
	}
}

func TestSessionEndpoints(t *testing.T) {
	env := newTestEnv(t, bridge.Config{}, &fakeBackend{})

	rec := env.do(t, http.MethodPost, "/session/create", map[string]any{"metadata": map[string]any{"user": "alice"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d", rec.Code)
	}
	created := decodeBody[map[string]string](t, rec)
	id := created["session_id"]
	if id == "" {
		t.Fatal("empty session_id")
	}

	rec = env.do(t, http.MethodPost, "/session/info", map[string]string{"session_id": id})
	if rec.Code != http.StatusOK {
		t.Fatalf("info status = %d", rec.Code)
	}
	info := decodeBody[map[string]any](t, rec)
	if info["session_id"] != id {
		t.Errorf("info session_id = %v", info["session_id"])
	}

	rec = env.do(t, http.MethodPost, "/session/info", map[string]string{"session_id": "missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing info status = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	list := decodeBody[[]map[string]any](t, rec)
	if len(list) != 1 {
		t.Fatalf("sessions = %d, want 1", len(list))
	}

	rec = env.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, bridge.Config{BearerToken: "secret-token"}, &fakeBackend{healthErr: nil})

	rec := env.do(t, http.MethodGet, "/api/sessions", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200", rec.Code)
	}

	// Health stays public.
	rec = env.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200 without auth", rec.Code)
	}
}

func TestHealthDegraded(t *testing.T) {
	env := newTestEnv(t, bridge.Config{}, &fakeBackend{healthErr: backend.ErrUnavailable})

	rec := env.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["status"] != "degraded" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	be := &fakeBackend{responses: []backend.GenerateResponse{
		{Response: "ok", PromptEvalCount: 5, EvalCount: 2, Done: true},
	}}
	env := newTestEnv(t, bridge.Config{}, be)

	if rec := env.do(t, http.MethodPost, "/chat", map[string]any{"message": "hi"}); rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, metric := range []string{"dominus_generations_total", "dominus_active_sessions", "dominus_http_requests_total"} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics output missing %s", metric)
		}
	}
}

func TestDocumentEndpoints(t *testing.T) {
	env := newTestEnv(t, bridge.Config{}, &fakeBackend{})

	rec := env.do(t, http.MethodPost, "/documents/ingest", map[string]any{
		"collection": "kb",
		"source":     "go.md",
		"text":       "Go has goroutines and channels for concurrency.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/documents/search", map[string]any{
		"collection": "kb",
		"query":      "goroutines concurrency",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d", rec.Code)
	}
	search := decodeBody[map[string][]map[string]any](t, rec)
	if len(search["results"]) == 0 {
		t.Fatal("no search results")
	}

	rec = env.do(t, http.MethodGet, "/documents/collections", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("collections status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/documents/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	stats := decodeBody[map[string]int](t, rec)
	if stats["chunks"] < 1 || stats["collections"] != 1 {
		t.Errorf("stats = %v", stats)
	}

	rec = env.do(t, http.MethodDelete, "/documents/collections/kb", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/documents/collections/kb", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestChatWithRAG(t *testing.T) {
	be := &fakeBackend{responses: []backend.GenerateResponse{
		{Response: "Paris.", Done: true},
	}}
	env := newTestEnv(t, bridge.Config{}, be)

	rec := env.do(t, http.MethodPost, "/documents/ingest", map[string]any{
		"collection": "facts",
		"source":     "geo.txt",
		"text":       "The capital of France is Paris.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/chat", map[string]any{
		"message":    "What is the capital of France?",
		"use_rag":    true,
		"collection": "facts",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[map[string]any](t, rec)
	sources, _ := resp["rag_sources"].([]any)
	if len(sources) == 0 {
		t.Error("no rag_sources in response")
	}
	if !strings.Contains(be.requests[0].Prompt, "[Document 1]") {
		t.Errorf("prompt not augmented:\n%s", be.requests[0].Prompt)
	}
}

func TestToolEndpoints(t *testing.T) {
	env := newTestEnv(t, bridge.Config{}, &fakeBackend{})

	rec := env.do(t, http.MethodPost, "/tools/list", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("tools status = %d", rec.Code)
	}
	tools := decodeBody[map[string][]map[string]any](t, rec)
	if len(tools["tools"]) != 4 {
		t.Fatalf("tools = %d, want 4 builtins", len(tools["tools"]))
	}

	rec = env.do(t, http.MethodPost, "/tools/execute", map[string]any{
		"tool":      "calculate",
		"arguments": map[string]any{"expression": "6 * 7"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("execute status = %d", rec.Code)
	}
	result := decodeBody[map[string]any](t, rec)
	if result["content"] != "42" {
		t.Errorf("content = %v, want 42", result["content"])
	}
}

func TestGenerateWithToolsLoop(t *testing.T) {
	be := &fakeBackend{responses: []backend.GenerateResponse{
		{Response: "```json\n{\"tool\": \"calculate\", \"arguments\": {\"expression\": \"21*2\"}}\n```", Done: true},
		{Response: "The answer is 42.", Done: true},
	}}
	env := newTestEnv(t, bridge.Config{}, be)

	rec := env.do(t, http.MethodPost, "/generate_with_tools", map[string]any{
		"message": "What is 21 times 2?",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[map[string]any](t, rec)
	if resp["response"] != "The answer is 42." {
		t.Errorf("response = %v", resp["response"])
	}
	rounds, _ := resp["rounds"].([]any)
	if len(rounds) != 1 {
		t.Fatalf("rounds = %d, want 1", len(rounds))
	}

	// The second backend request carries the tool result.
	if len(be.requests) != 2 {
		t.Fatalf("backend calls = %d, want 2", len(be.requests))
	}
	if !strings.Contains(be.requests[1].Prompt, "42") {
		t.Errorf("tool result not fed back:\n%s", be.requests[1].Prompt)
	}
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t, bridge.Config{}, &fakeBackend{})

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Authorization") {
		t.Errorf("Allow-Headers = %q", got)
	}

	// Non-preflight responses carry the origin header too.
	rec = env.do(t, http.MethodGet, "/health", nil)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin on GET = %q, want *", got)
	}
}
