//go:build !tinygo

package hal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// HostConfig configures the host HAL.
type HostConfig struct {
	// TickHz is the rate of the tick stream (default 100).
	TickHz int
	// Manual stops wall-clock ticks; ticks are injected by RunStep.
	Manual bool
	// Quiet suppresses LED log lines.
	Quiet bool
}

type hostHAL struct {
	logger *hostLogger
	leds   [ledCount]*hostLED
	fb     *hostFramebuffer
	t      *hostTime
}

// New returns a host HAL implementation with the default configuration.
func New() HAL {
	return newHost(HostConfig{})
}

// NewWithConfig returns a host HAL implementation.
func NewWithConfig(cfg HostConfig) HAL {
	return newHost(cfg)
}

func newHost(cfg HostConfig) *hostHAL {
	if cfg.TickHz <= 0 {
		cfg.TickHz = 100
	}
	logger := &hostLogger{w: os.Stdout}
	h := &hostHAL{
		logger: logger,
		fb:     newHostFramebuffer(160, 96),
		t:      newHostTime(cfg.TickHz, cfg.Manual),
	}
	for id := range h.leds {
		h.leds[id] = &hostLED{id: LEDID(id), logger: logger, quiet: cfg.Quiet}
	}
	return h
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) Display() Display { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Time() Time       { return h.t }

func (h *hostHAL) LED(id LEDID) LED {
	if id >= ledCount {
		return nullLED{}
	}
	return h.leds[id]
}

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

type hostLED struct {
	mu     sync.Mutex
	id     LEDID
	on     bool
	quiet  bool
	logger *hostLogger
}

func (l *hostLED) High() { l.set(true) }
func (l *hostLED) Low()  { l.set(false) }

func (l *hostLED) set(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.on == on {
		return
	}
	l.on = on
	if l.quiet {
		return
	}
	state := "LOW"
	if on {
		state = "HIGH"
	}
	l.logger.WriteLineString("led: " + l.id.String() + " " + state)
}

// haltStep runs an app step until it reports ErrHalted, then stops calling
// it so the last frame stays on screen.
type haltStep struct {
	step   func() error
	logger Logger
	halted bool
}

func (s *haltStep) run() error {
	if s.step == nil || s.halted {
		return nil
	}
	err := s.step()
	if errors.Is(err, ErrHalted) {
		s.halted = true
		s.logger.WriteLineString("window: " + err.Error())
		return nil
	}
	return err
}
