package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Kenbark42/dominus-ai/internal/cache"
)

// fakeStore is an in-memory Store with switchable failure modes.
type fakeStore struct {
	mu    sync.Mutex
	convs map[string]*Conversation

	saveErr error
	loadErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{convs: make(map[string]*Conversation)}
}

func (s *fakeStore) Save(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.convs[conv.SessionID] = conv.clone()
	return nil
}

func (s *fakeStore) Load(_ context.Context, sessionID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	conv, ok := s.convs[sessionID]
	if !ok {
		return nil, nil
	}
	return conv.clone(), nil
}

func (s *fakeStore) LoadActive(_ context.Context, cutoff time.Time) ([]*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	var out []*Conversation
	for _, conv := range s.convs {
		if conv.UpdatedAt.After(cutoff) {
			out = append(out, conv.clone())
		}
	}
	return out, nil
}

func (s *fakeStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, sessionID)
	return nil
}

func (s *fakeStore) DeleteIdle(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, conv := range s.convs {
		if conv.UpdatedAt.Before(cutoff) {
			delete(s.convs, id)
			n++
		}
	}
	return n, nil
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	return NewManager(cfg, store, cache.NewTTLCache(), nil), store
}

func TestCreateAndResolveSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, store := newTestManager(t, Config{})

	id := m.CreateSession(ctx, map[string]any{"user": "alice"})
	if id == "" {
		t.Fatal("empty session id")
	}
	if !m.SessionExists(ctx, id) {
		t.Error("created session should exist")
	}
	if m.SessionExists(ctx, "nope") {
		t.Error("unknown session should not exist")
	}

	store.mu.Lock()
	_, persisted := store.convs[id]
	store.mu.Unlock()
	if !persisted {
		t.Error("session not persisted to store")
	}

	info, ok := m.SessionInfo(ctx, id)
	if !ok {
		t.Fatal("SessionInfo miss for existing session")
	}
	if info.Metadata["user"] != "alice" {
		t.Errorf("metadata lost: %v", info.Metadata)
	}
}

func TestGetOrCreateSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})

	id := m.GetOrCreateSession(ctx, "")
	if id == "" {
		t.Fatal("empty id from create path")
	}
	if got := m.GetOrCreateSession(ctx, id); got != id {
		t.Errorf("existing id not reused: got %q want %q", got, id)
	}
	if got := m.GetOrCreateSession(ctx, "unknown-session"); got == "unknown-session" {
		t.Error("unknown id should not be adopted")
	}
}

func TestAddMessageUnknownSession(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, Config{})

	_, err := m.AddMessage(context.Background(), "missing", RoleUser, "hi", 0)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestMessageRetentionLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newTestManager(t, Config{MaxMessages: 50})

	id := m.CreateSession(ctx, nil)
	for i := 0; i < 60; i++ {
		if _, err := m.AddMessage(ctx, id, RoleUser, fmt.Sprintf("message %d", i), 10); err != nil {
			t.Fatalf("AddMessage %d: %v", i, err)
		}
	}

	history := m.GetContext(ctx, id, 1_000_000)
	if len(history) != 50 {
		t.Fatalf("retained %d messages, want 50", len(history))
	}
	if history[0].Content != "message 10" {
		t.Errorf("oldest survivor = %q, want %q", history[0].Content, "message 10")
	}
	if history[len(history)-1].Content != "message 59" {
		t.Errorf("newest = %q, want %q", history[len(history)-1].Content, "message 59")
	}

	info, _ := m.SessionInfo(ctx, id)
	if info.TotalTokens != 500 {
		t.Errorf("TotalTokens = %d, want 500 after truncation", info.TotalTokens)
	}
}

func TestGetContextTokenBudget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newTestManager(t, Config{MaxContextTokens: 100})

	id := m.CreateSession(ctx, nil)
	for i := 0; i < 10; i++ {
		if _, err := m.AddMessage(ctx, id, RoleUser, fmt.Sprintf("m%d", i), 30); err != nil {
			t.Fatal(err)
		}
	}

	// 30 tokens each against a 100 budget: only the newest three fit.
	window := m.GetContext(ctx, id, 0)
	if len(window) != 3 {
		t.Fatalf("window = %d messages, want 3", len(window))
	}
	if window[0].Content != "m7" || window[2].Content != "m9" {
		t.Errorf("window order wrong: %q .. %q", window[0].Content, window[2].Content)
	}

	// Explicit budget overrides the configured ceiling.
	if got := m.GetContext(ctx, id, 65); len(got) != 2 {
		t.Errorf("explicit budget window = %d, want 2", len(got))
	}

	if got := m.GetContext(ctx, "missing", 0); got != nil {
		t.Errorf("unknown session window = %v, want nil", got)
	}
}

func TestGetContextEstimatesUnknownTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})

	id := m.CreateSession(ctx, nil)
	// Tokens unknown: five words -> ceil(5 * 1.3) = 7 estimated tokens.
	if _, err := m.AddMessage(ctx, id, RoleUser, "one two three four five", 0); err != nil {
		t.Fatal(err)
	}

	if got := m.GetContext(ctx, id, 7); len(got) != 1 {
		t.Errorf("window at exact estimate = %d messages, want 1", len(got))
	}
	if got := m.GetContext(ctx, id, 6); len(got) != 0 {
		t.Errorf("window below estimate = %d messages, want 0", len(got))
	}
}

func TestContextStateRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})

	id := m.CreateSession(ctx, nil)
	state := []int{1, 2, 3, 4}
	m.UpdateContextState(ctx, id, state)

	got := m.ContextState(ctx, id)
	if len(got) != 4 || got[0] != 1 || got[3] != 4 {
		t.Fatalf("ContextState = %v, want %v", got, state)
	}

	// Mutating the returned slice must not affect the stored copy.
	got[0] = 99
	if again := m.ContextState(ctx, id); again[0] != 1 {
		t.Error("stored state aliased caller slice")
	}

	if got := m.ContextState(ctx, "missing"); got != nil {
		t.Errorf("state for unknown session = %v, want nil", got)
	}
}

func TestContextStateFallsBackToCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})

	id := m.CreateSession(ctx, nil)
	m.UpdateContextState(ctx, id, []int{7, 8})

	// Drop the in-memory copy; the fast path still holds the state.
	m.mu.Lock()
	delete(m.conversations, id)
	m.mu.Unlock()

	if got := m.ContextState(ctx, id); len(got) != 2 || got[0] != 7 {
		t.Errorf("cache fallback state = %v, want [7 8]", got)
	}
}

func TestResolvePromotesFromCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fastPath := cache.NewTTLCache()
	m := NewManager(Config{}, newFakeStore(), fastPath, nil)

	conv := &Conversation{
		SessionID: "cached-session",
		Messages:  []Message{{ID: "m1", Role: RoleUser, Content: "hello"}},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	data, err := json.Marshal(conv)
	if err != nil {
		t.Fatal(err)
	}
	fastPath.SetSession(conv.SessionID, data, time.Minute)

	if !m.SessionExists(ctx, "cached-session") {
		t.Fatal("cached session not resolved")
	}
	if m.Len() != 1 {
		t.Error("cache hit not promoted into memory")
	}
}

func TestResolvePromotesFromStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	m := NewManager(Config{}, store, cache.NopCache{}, nil)

	store.convs["stored-session"] = &Conversation{
		SessionID: "stored-session",
		UpdatedAt: time.Now(),
	}

	if !m.SessionExists(ctx, "stored-session") {
		t.Fatal("stored session not resolved")
	}
	if _, err := m.AddMessage(ctx, "stored-session", RoleUser, "hi", 0); err != nil {
		t.Errorf("AddMessage after promotion: %v", err)
	}
}

func TestStoreFailureDegrades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	store.saveErr = errors.New("disk full")
	m := NewManager(Config{}, store, cache.NopCache{}, nil)

	id := m.CreateSession(ctx, nil)
	if _, err := m.AddMessage(ctx, id, RoleUser, "hi", 0); err != nil {
		t.Errorf("AddMessage should survive store failure, got %v", err)
	}
	if got := m.GetContext(ctx, id, 0); len(got) != 1 {
		t.Errorf("in-memory history = %d messages, want 1", len(got))
	}
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, store := newTestManager(t, Config{})

	id := m.CreateSession(ctx, nil)
	if !m.DeleteSession(ctx, id) {
		t.Error("delete of existing session reported false")
	}
	if m.SessionExists(ctx, id) {
		t.Error("session still resolvable after delete")
	}
	store.mu.Lock()
	_, left := store.convs[id]
	store.mu.Unlock()
	if left {
		t.Error("snapshot left in store after delete")
	}

	if m.DeleteSession(ctx, "missing") {
		t.Error("delete of unknown session reported true")
	}
}

func TestSessionsSortedByRecency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	m.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	first := m.CreateSession(ctx, nil)
	second := m.CreateSession(ctx, nil)

	infos := m.Sessions()
	if len(infos) != 2 {
		t.Fatalf("got %d sessions, want 2", len(infos))
	}
	if infos[0].SessionID != second || infos[1].SessionID != first {
		t.Errorf("sessions not sorted most-recent first: %v", infos)
	}
}

func TestCleanupOldSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, store := newTestManager(t, Config{SessionTTL: time.Hour})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	stale := m.CreateSession(ctx, nil)
	now = now.Add(2 * time.Hour)
	fresh := m.CreateSession(ctx, nil)

	removed := m.CleanupOldSessions(ctx)
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if m.SessionExists(ctx, stale) {
		t.Error("stale session survived cleanup")
	}
	if !m.SessionExists(ctx, fresh) {
		t.Error("fresh session removed by cleanup")
	}
	store.mu.Lock()
	_, left := store.convs[stale]
	store.mu.Unlock()
	if left {
		t.Error("stale snapshot left in store")
	}
}

func TestLoadActiveSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.convs["recent"] = &Conversation{SessionID: "recent", UpdatedAt: now.Add(-time.Hour)}
	store.convs["ancient"] = &Conversation{SessionID: "ancient", UpdatedAt: now.Add(-48 * time.Hour)}

	m := NewManager(Config{SessionTTL: 24 * time.Hour}, store, cache.NopCache{}, nil)
	m.now = func() time.Time { return now }

	loaded, err := m.LoadActiveSessions(ctx)
	if err != nil {
		t.Fatalf("LoadActiveSessions: %v", err)
	}
	if loaded != 1 {
		t.Errorf("loaded = %d, want 1", loaded)
	}
	if m.Len() != 1 {
		t.Errorf("working set = %d, want 1", m.Len())
	}

	// A second call is a no-op for already-resident sessions.
	loaded, err = m.LoadActiveSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if loaded != 0 {
		t.Errorf("second load = %d, want 0", loaded)
	}
}

func TestBuildPromptWithContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newTestManager(t, Config{})

	id := m.CreateSession(ctx, nil)
	if _, err := m.AddMessage(ctx, id, RoleUser, "My name is Alice", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddMessage(ctx, id, RoleAssistant, "Nice to meet you, Alice.", 0); err != nil {
		t.Fatal(err)
	}

	prompt := m.BuildPromptWithContext(ctx, id, "What is my name?", "Be concise.")
	want := "System: Be concise.\n" +
		"\n\nUser: My name is Alice" +
		"\n\nAssistant: Nice to meet you, Alice." +
		"\n\nUser: What is my name?" +
		"\n\nAssistant:"
	if prompt != want {
		t.Errorf("prompt mismatch:\ngot:\n%s\nwant:\n%s", prompt, want)
	}
}
