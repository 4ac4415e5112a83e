package runner

import "time"

// tickTimer is the single pending tick of one session. It is owned by the
// router loop. The timer callback never touches session state; it only reports
// the generation it was armed with, and the loop ignores stale generations.
type tickTimer struct {
	timer *time.Timer
	gen   uint64
}

// arm replaces any pending tick with one firing after d.
//
// Postcondition: exactly one tick is pending; fire receives the new generation.
func (t *tickTimer) arm(d time.Duration, fire func(gen uint64)) {
	t.stop()
	if d < 0 {
		d = 0
	}
	gen := t.gen
	t.timer = time.AfterFunc(d, func() { fire(gen) })
}

// stop cancels the pending tick. A callback already in flight becomes stale.
func (t *tickTimer) stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
}

// claim consumes the pending tick if gen is current.
//
// Postcondition: returns true at most once per arm.
func (t *tickTimer) claim(gen uint64) bool {
	if t.timer == nil || t.gen != gen {
		return false
	}
	t.timer = nil
	return true
}

func (t *tickTimer) pending() bool {
	return t.timer != nil
}
