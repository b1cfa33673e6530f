package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Ingest chunks the document text and indexes every chunk under the
// collection. It returns the number of chunks written.
func (e *Engine) Ingest(ctx context.Context, collection, source, text string) (int, error) {
	pieces := e.splitChunks(text)
	if len(pieces) == 0 {
		return 0, nil
	}

	stored := qualify(collection)

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("rag: begin ingest: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	docHash := shortHash(stored + "\x00" + source + "\x00" + text)
	for seq, content := range pieces {
		// Content-derived ids make re-ingesting the same document
		// idempotent: OR IGNORE skips rows that already exist without
		// touching the FTS triggers.
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO chunks (id, collection, source, seq, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			fmt.Sprintf("%s-%d", docHash, seq), stored, source, seq, content, now,
		)
		if err != nil {
			return 0, fmt.Errorf("rag: index chunk %d of %s: %w", seq, source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("rag: commit ingest: %w", err)
	}

	e.logger.Info("rag: document ingested",
		"collection", unqualify(stored), "source", source, "chunks", len(pieces))
	return len(pieces), nil
}

// Search retrieves the top-K chunks matching the query within the
// collection using FTS5 full-text search. topK <= 0 uses the configured
// default. An empty or unmatchable query returns no results, never an error.
func (e *Engine) Search(ctx context.Context, collection, query string, topK int) ([]Result, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = e.cfg.TopK
	}

	rows, err := e.db.QueryContext(ctx, `
		SELECT c.id, c.collection, c.source, c.seq, c.content, c.created_at, rank
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ? AND c.collection = ?
		ORDER BY rank
		LIMIT ?`,
		match, qualify(collection), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("rag: search chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []Result
	for rows.Next() {
		var (
			r            Result
			createdAtStr string
		)
		if err := rows.Scan(&r.ID, &r.Collection, &r.Source, &r.Seq, &r.Content, &createdAtStr, &r.Rank); err != nil {
			return nil, fmt.Errorf("rag: scan chunk: %w", err)
		}
		r.Collection = unqualify(r.Collection)
		if t, err := time.Parse(time.RFC3339Nano, createdAtStr); err == nil {
			r.CreatedAt = t
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rag: search rows: %w", err)
	}
	return results, nil
}

// Collections lists every collection with its chunk count.
func (e *Engine) Collections(ctx context.Context) ([]CollectionInfo, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT collection, COUNT(*)
		FROM chunks
		GROUP BY collection
		ORDER BY collection`,
	)
	if err != nil {
		return nil, fmt.Errorf("rag: list collections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []CollectionInfo
	for rows.Next() {
		var info CollectionInfo
		if err := rows.Scan(&info.Name, &info.Chunks); err != nil {
			return nil, fmt.Errorf("rag: scan collection: %w", err)
		}
		info.Name = unqualify(info.Name)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rag: collection rows: %w", err)
	}
	return infos, nil
}

// DeleteCollection removes every chunk in the collection. Returns
// ErrCollectionNotFound when nothing was indexed under that name.
func (e *Engine) DeleteCollection(ctx context.Context, collection string) error {
	result, err := e.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE collection = ?", qualify(collection),
	)
	if err != nil {
		return fmt.Errorf("rag: delete collection: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rag: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	e.logger.Info("rag: collection deleted", "collection", collection, "chunks", n)
	return nil
}

// Stats returns the total number of indexed chunks across all collections.
func (e *Engine) Stats(ctx context.Context) (int, error) {
	var count int
	if err := e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("rag: count chunks: %w", err)
	}
	return count, nil
}

// ftsQuery sanitises free text into an FTS5 MATCH expression: each term is
// quoted (disabling FTS operators in user input) and terms are OR-joined
// for recall.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ReplaceAll(term, `"`, `""`)
		quoted = append(quoted, `"`+term+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// shortHash returns the first 16 hex characters of the SHA-256 of s.
func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
