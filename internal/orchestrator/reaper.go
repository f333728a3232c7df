package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Run closes sessions idle for longer than the configured timeout and sweeps
// stale temp sources until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	if o.cfg.SessionIdle <= 0 {
		return
	}
	interval := o.cfg.SessionIdle / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("idle_timeout", o.cfg.SessionIdle).Dur("interval", interval).Msg("started session reaper")

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			o.reap(ctx, now)
		}
	}
}

// reap closes idle sessions and removes temp sources not owned by a live
// session.
func (o *Orchestrator) reap(ctx context.Context, now time.Time) {
	live := make(map[string]bool)
	closed := 0
	for _, s := range o.sessions.all() {
		if now.Sub(s.idleSince()) >= o.cfg.SessionIdle {
			o.closeSession(ctx, s, "idle timeout")
			closed++
			continue
		}
		live[s.path] = true
	}
	removed := CleanupTemps(o.cfg.UploadDir, o.cfg.SessionIdle, live)

	log.Debug().
		Int("closed", closed).
		Int("temps_removed", removed).
		Int("sessions", o.sessions.len()).
		Msg("reaper tick")
}
