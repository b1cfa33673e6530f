package cron

import (
	"context"
	"log/slog"
)

// SessionCleaner is the subset of the conversation manager needed by the
// cleanup job. Defined here to avoid a dependency on the conversation package.
type SessionCleaner interface {
	CleanupOldSessions(ctx context.Context) int
}

// CacheSweeper reclaims expired entries from the fast-path cache.
type CacheSweeper interface {
	Sweep() int
}

// SessionCleanupJob removes sessions that have been idle past their TTL,
// from memory, cache, and the durable store.
type SessionCleanupJob struct {
	Manager      SessionCleaner
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 * * * *"
}

// Compile-time interface check.
var _ Job = (*SessionCleanupJob)(nil)

// Name implements Job.
func (j *SessionCleanupJob) Name() string { return "session_cleanup" }

// Schedule implements Job. Defaults to the top of every hour.
func (j *SessionCleanupJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run removes expired sessions.
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	removed := j.Manager.CleanupOldSessions(ctx)
	if removed > 0 {
		j.Logger.Info("cron: cleaned up expired sessions", "count", removed)
	}
	return nil
}

// CacheSweepJob reclaims memory held by expired fast-path cache entries.
// Expired entries are already invisible to readers; the sweep only frees
// the space they occupy.
type CacheSweepJob struct {
	Cache        CacheSweeper
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/10 * * * *"
}

// Compile-time interface check.
var _ Job = (*CacheSweepJob)(nil)

// Name implements Job.
func (j *CacheSweepJob) Name() string { return "cache_sweep" }

// Schedule implements Job.
func (j *CacheSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/10 * * * *"
}

// Run sweeps expired cache entries.
func (j *CacheSweepJob) Run(_ context.Context) error {
	swept := j.Cache.Sweep()
	if swept > 0 {
		j.Logger.Debug("cron: swept expired cache entries", "count", swept)
	}
	return nil
}
