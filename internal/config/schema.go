// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for dominus.
package config

import "time"

// Config is the top-level configuration structure.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Context ContextConfig `yaml:"context"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	RAG     RAGConfig     `yaml:"rag"`
	Tools   ToolsConfig   `yaml:"tools"`
	Tracing TracingConfig `yaml:"tracing"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig configures the HTTP bridge.
type ServerConfig struct {
	// Bind is the listen address, e.g. "127.0.0.1:8080".
	Bind string `yaml:"bind"`

	// AuthToken, when set, requires a matching bearer token on every
	// request outside /health.
	AuthToken string `yaml:"auth_token"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BackendConfig configures the inference backend client.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	NumCtx  int           `yaml:"num_ctx"`
}

// ContextConfig configures the conversation manager.
type ContextConfig struct {
	MaxContextTokens int           `yaml:"max_context_tokens"`
	MaxMessages      int           `yaml:"max_messages"`
	SessionTTL       time.Duration `yaml:"session_ttl"`
	SystemPrompt     string        `yaml:"system_prompt"`

	// CleanupSchedule is the cron expression for the session cleanup job.
	// Empty uses the job's default (hourly).
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

// StorageConfig configures the durable conversation store.
type StorageConfig struct {
	// Path is the SQLite database file for conversations.
	Path string `yaml:"path"`

	// WAL enables WAL journal mode. Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is the milliseconds to wait on a busy lock.
	BusyTimeout int `yaml:"busy_timeout"`
}

// CacheConfig configures the fast-path session cache.
type CacheConfig struct {
	// Enabled switches the in-memory fast path on. When false, lookups go
	// straight from the manager to the durable store.
	Enabled *bool `yaml:"enabled"`

	SessionTTL time.Duration `yaml:"session_ttl"`
	StateTTL   time.Duration `yaml:"state_ttl"`
}

// RAGConfig configures retrieval-augmented generation.
type RAGConfig struct {
	Enabled *bool `yaml:"enabled"`

	// Path is the SQLite database file for document chunks.
	Path string `yaml:"path"`

	ChunkTokens   int `yaml:"chunk_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
	TopK          int `yaml:"top_k"`
}

// ToolsConfig configures model-driven tool calling.
type ToolsConfig struct {
	Enabled *bool `yaml:"enabled"`

	// Workspace is the root directory the read_file tool is confined to.
	Workspace string `yaml:"workspace"`

	Timeout time.Duration `yaml:"timeout"`

	// MaxRounds bounds tool-call iterations per request.
	MaxRounds int `yaml:"max_rounds"`

	// Allow overrides the execute_command allowlist. Empty keeps the
	// built-in read-only set.
	Allow []string `yaml:"allow"`
}

// TracingConfig configures OpenTelemetry trace export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP/HTTP collector address, e.g. "localhost:4318".
	Endpoint string `yaml:"endpoint"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Defaults fills unset fields with production defaults.
func (c *Config) Defaults() {
	if c.Server.Bind == "" {
		c.Server.Bind = "127.0.0.1:8080"
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		// Write timeout must outlast the slowest generation.
		c.Server.WriteTimeout = 600 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://localhost:11434"
	}
	if c.Backend.Model == "" {
		c.Backend.Model = "gpt-oss:20b"
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = 300 * time.Second
	}
	if c.Backend.NumCtx <= 0 {
		c.Backend.NumCtx = 8192
	}

	if c.Context.MaxContextTokens <= 0 {
		c.Context.MaxContextTokens = 6000
	}
	if c.Context.MaxMessages <= 0 {
		c.Context.MaxMessages = 50
	}
	if c.Context.SessionTTL <= 0 {
		c.Context.SessionTTL = 24 * time.Hour
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "data/conversations.db"
	}

	if c.Cache.Enabled == nil {
		t := true
		c.Cache.Enabled = &t
	}
	if c.Cache.SessionTTL <= 0 {
		c.Cache.SessionTTL = c.Context.SessionTTL
	}
	if c.Cache.StateTTL <= 0 {
		c.Cache.StateTTL = time.Hour
	}

	if c.RAG.Enabled == nil {
		t := true
		c.RAG.Enabled = &t
	}
	if c.RAG.Path == "" {
		c.RAG.Path = "data/documents.db"
	}
	if c.RAG.ChunkTokens <= 0 {
		c.RAG.ChunkTokens = 512
	}
	if c.RAG.OverlapTokens <= 0 {
		c.RAG.OverlapTokens = 50
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = 3
	}

	if c.Tools.Enabled == nil {
		t := true
		c.Tools.Enabled = &t
	}
	if c.Tools.Workspace == "" {
		c.Tools.Workspace = "."
	}
	if c.Tools.Timeout <= 0 {
		c.Tools.Timeout = 30 * time.Second
	}
	if c.Tools.MaxRounds <= 0 {
		c.Tools.MaxRounds = 3
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}
