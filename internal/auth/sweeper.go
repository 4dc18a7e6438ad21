package auth

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"authgrid.dev/internal/obs"
)

const defaultSessionRetention = 30 * 24 * time.Hour

// Sweeper periodically purges expired blacklist entries and long-inactive
// sessions. Safe to run concurrently with lookups: a lookup racing a
// not-yet-swept expired entry just reports "revoked" for an already-expired
// token.
type Sweeper struct {
	svc       *Service
	cron      *cron.Cron
	retention time.Duration
}

// NewSweeper schedules sweeps at the given cron spec (e.g. "@every 1h").
func NewSweeper(svc *Service, spec string, retention time.Duration) (*Sweeper, error) {
	if retention <= 0 {
		retention = defaultSessionRetention
	}
	sw := &Sweeper{
		svc:       svc,
		cron:      cron.New(),
		retention: retention,
	}
	if _, err := sw.cron.AddFunc(spec, sw.run); err != nil {
		return nil, err
	}
	return sw, nil
}

// Start begins the schedule in its own goroutine.
func (sw *Sweeper) Start() { sw.cron.Start() }

// Stop halts the schedule and waits for a running sweep to finish.
func (sw *Sweeper) Stop() {
	ctx := sw.cron.Stop()
	<-ctx.Done()
}

func (sw *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	swept, err := sw.svc.SweepBlacklist(ctx)
	if err != nil {
		obs.Error("blacklist sweep failed", map[string]any{"error": err.Error()})
	}
	cleaned, err := sw.svc.CleanupSessions(ctx, sw.retention)
	if err != nil {
		obs.Error("session cleanup failed", map[string]any{"error": err.Error()})
	}
	if swept > 0 || cleaned > 0 {
		obs.Info("sweep complete", map[string]any{
			"blacklist_deleted": swept,
			"sessions_deleted":  cleaned,
		})
	}
}
