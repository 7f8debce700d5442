package identity

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/chatsync/internal/store"
)

const defaultExpiryInterval = 5 * time.Minute

// StartExpiryWorker periodically purges stored credentials older than ttl and
// signs the provider out when its own credentials have aged past ttl.
// A zero ttl disables the worker.
func StartExpiryWorker(ctx context.Context, repo store.Repository, p *Provider, ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = defaultExpiryInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Credential expiry worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case now := <-ticker.C:
				sweepExpired(ctx, repo, p, ttl, now)
			case <-ctx.Done():
				slog.Info("Credential expiry worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepExpired(ctx context.Context, repo store.Repository, p *Provider, ttl time.Duration, now time.Time) {
	if p != nil && p.ExpireIfStale(ctx, now) {
		slog.Info("Expiry worker ended stale session")
	}
	if repo == nil {
		return
	}
	n, err := repo.PurgeExpired(ctx, ttl)
	if err != nil {
		slog.Error("Expiry worker failed to purge credentials", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Expiry worker purged credentials", "count", n)
	}
}
