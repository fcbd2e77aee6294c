package rollcall

import (
	"context"
	"time"
)

// Start launches the background token rotation and sweep drivers. They run
// until ctx is cancelled or Close is called. Calling Start more than once
// has no effect.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		e.wg.Add(2)
		go e.loop(ctx, e.config.RotationInterval, func() { e.rotateActive() })
		go e.loop(ctx, e.config.SweepInterval, func() { e.Sweep(e.config.Now()) })

		e.log.Info().
			Dur("rotation_interval", e.config.RotationInterval).
			Dur("sweep_interval", e.config.SweepInterval).
			Msg("background drivers started")
	})
}

// loop calls fn every interval until stopped.
func (e *Engine) loop(ctx context.Context, interval time.Duration, fn func()) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn()
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		}
	}
}

// rotateActive rotates the token of every active session and returns how
// many were rotated. Sessions ended in between are skipped; other failures
// are logged by RotateToken and retried on the next tick.
func (e *Engine) rotateActive() int {
	rotated := 0
	for _, id := range e.sessions.ActiveIDs() {
		if _, _, err := e.RotateToken(id); err == nil {
			rotated++
		}
	}
	return rotated
}
