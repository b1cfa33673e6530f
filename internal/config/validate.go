package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
)

var logLevels = []string{"debug", "info", "warn", "error"}
var logFormats = []string{"text", "json"}

// Validate checks the structural validity of a Config. Call Defaults first;
// validation assumes defaulted values are in place.
func Validate(cfg *Config) error {
	var errs []error

	if _, _, err := net.SplitHostPort(cfg.Server.Bind); err != nil {
		errs = append(errs, fmt.Errorf("config: server.bind %q is not host:port: %w", cfg.Server.Bind, err))
	}

	if u, err := url.Parse(cfg.Backend.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("config: backend.base_url is not a valid URL: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("config: backend.base_url scheme must be http or https, got %q", u.Scheme))
	}

	if cfg.Context.MaxContextTokens < 100 {
		errs = append(errs, fmt.Errorf("config: context.max_context_tokens must be at least 100, got %d", cfg.Context.MaxContextTokens))
	}
	if cfg.Context.MaxMessages < 1 {
		errs = append(errs, fmt.Errorf("config: context.max_messages must be at least 1, got %d", cfg.Context.MaxMessages))
	}

	if cfg.RAG.OverlapTokens >= cfg.RAG.ChunkTokens {
		errs = append(errs, fmt.Errorf("config: rag.overlap_tokens (%d) must be smaller than rag.chunk_tokens (%d)",
			cfg.RAG.OverlapTokens, cfg.RAG.ChunkTokens))
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("config: tracing.enabled requires tracing.endpoint"))
	}

	if !slices.Contains(logLevels, cfg.Log.Level) {
		errs = append(errs, fmt.Errorf("config: log.level must be one of %v, got %q", logLevels, cfg.Log.Level))
	}
	if !slices.Contains(logFormats, cfg.Log.Format) {
		errs = append(errs, fmt.Errorf("config: log.format must be one of %v, got %q", logFormats, cfg.Log.Format))
	}

	return errors.Join(errs...)
}
