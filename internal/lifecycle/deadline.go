package lifecycle

import (
	"context"
	"time"
)

// deadline is a single-shot timer that can be armed, stopped, and selected
// on. A stopped or never-armed deadline has a nil channel, which blocks
// forever in a select.
type deadline struct {
	timer *time.Timer
}

// arm (re)starts the deadline. Non-positive durations fire immediately.
func (d *deadline) arm(after time.Duration) {
	d.stop()
	if after < 0 {
		after = 0
	}
	d.timer = time.NewTimer(after)
}

// stop cancels the deadline. Safe to call repeatedly.
func (d *deadline) stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// C returns the channel to select on, or nil when not armed.
func (d *deadline) C() <-chan time.Time {
	if d.timer == nil {
		return nil
	}
	return d.timer.C
}

// fired disarms the deadline after its channel was received from.
func (d *deadline) fired() {
	d.timer = nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
