// Package blinky is the demo thread body: it toggles one LED with a duty
// cycle expressed in kernel ticks.
package blinky

import "miros/hal"

// Delayer blocks the calling thread for a number of ticks.
type Delayer interface {
	Delay(ticks uint32)
}

// Blinker drives LED on for On ticks, then off for Off ticks.
type Blinker struct {
	LED hal.LED
	K   Delayer
	On  uint32
	Off uint32
}

// New returns a blinker with a quarter-on, three-quarters-off duty cycle over
// one second of ticks.
func New(led hal.LED, k Delayer, ticksPerSec uint32) *Blinker {
	on := ticksPerSec / 4
	if on == 0 {
		on = 1
	}
	off := ticksPerSec * 3 / 4
	if off == 0 {
		off = 1
	}
	return &Blinker{LED: led, K: k, On: on, Off: off}
}

// Blink runs one on/off period.
func (b *Blinker) Blink() {
	b.LED.High()
	b.K.Delay(b.On)
	b.LED.Low()
	b.K.Delay(b.Off)
}

// Run blinks forever. It is a thread entry body.
func (b *Blinker) Run() {
	for {
		b.Blink()
	}
}
