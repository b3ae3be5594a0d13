//go:build !tinygo

package hal

import "time"

type hostTime struct {
	ch     chan uint64
	seq    uint64
	period time.Duration
	manual bool

	last time.Time
	acc  time.Duration
}

func newHostTime(hz int, manual bool) *hostTime {
	return &hostTime{
		ch:     make(chan uint64, 1024),
		period: time.Second / time.Duration(hz),
		manual: manual,
	}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

// step emits the ticks that elapsed in wall-clock time since the last call.
func (t *hostTime) step() {
	if t.manual {
		return
	}
	now := time.Now()
	if t.last.IsZero() {
		t.last = now
		t.acc = 0
		t.stepN(1)
		return
	}

	t.acc += now.Sub(t.last)
	t.last = now

	ticks := uint64(t.acc / t.period)
	if ticks == 0 {
		return
	}
	t.acc = t.acc % t.period
	t.stepN(ticks)
}

func (t *hostTime) stepN(n uint64) {
	for i := uint64(0); i < n; i++ {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
		}
	}
}
