// Package rag implements retrieval-augmented generation: documents are
// chunked, indexed into a SQLite FTS5 store, and retrieved at chat time to
// ground the prompt in ingested material.
package rag

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// collectionPrefix namespaces every collection in the shared index so
// unrelated tools sharing the database cannot collide with ours.
const collectionPrefix = "dominus_"

// DefaultCollection is used when a caller does not name one.
const DefaultCollection = "default"

// ErrCollectionNotFound indicates a delete of a collection with no chunks.
var ErrCollectionNotFound = errors.New("rag: collection not found")

// Config tunes chunking and retrieval.
type Config struct {
	// Path is the document database file.
	Path string

	// ChunkTokens is the target chunk size in estimated tokens.
	ChunkTokens int

	// OverlapTokens is the estimated-token overlap between adjacent chunks.
	OverlapTokens int

	// TopK is the default number of chunks returned by a search.
	TopK int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.ChunkTokens <= 0 {
		c.ChunkTokens = 512
	}
	if c.OverlapTokens < 0 || c.OverlapTokens >= c.ChunkTokens {
		c.OverlapTokens = 50
	}
	if c.TopK <= 0 {
		c.TopK = 3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Chunk is one indexed slice of a document.
type Chunk struct {
	ID         string
	Collection string
	Source     string
	Seq        int
	Content    string
	CreatedAt  time.Time
}

// Result is a retrieved chunk with its FTS rank (lower is better).
type Result struct {
	Chunk
	Rank float64
}

// CollectionInfo summarises one collection.
type CollectionInfo struct {
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
}

// Engine indexes and retrieves document chunks.
type Engine struct {
	db     *sql.DB
	cfg    Config
	logger *slog.Logger
}

// Open opens (creating if needed) the document database at cfg.Path.
func Open(cfg Config) (*Engine, error) {
	cfg.defaults()

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("rag: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("rag: open %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("rag: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("rag: set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Engine{db: db, cfg: cfg, logger: cfg.Logger}, nil
}

// Close closes the underlying database.
func (e *Engine) Close() error {
	return e.db.Close()
}

// qualify maps a caller-facing collection name to its stored name.
func qualify(collection string) string {
	if collection == "" {
		collection = DefaultCollection
	}
	return collectionPrefix + collection
}

// unqualify strips the namespace prefix for caller-facing output.
func unqualify(stored string) string {
	return strings.TrimPrefix(stored, collectionPrefix)
}
