package app

import (
	"fmt"
	"sync"
	"sync/atomic"

	"miros/hal"
	"miros/internal/buildinfo"
	"miros/rtos/kernel"
	"miros/rtos/tasks/blinky"
)

// Machine is the CPU the kernel runs on: the kernel port plus the tick
// timer and the low-power wait.
type Machine interface {
	kernel.Port
	// Attach connects the kernel whose Switch the switch exception runs and
	// the handler run on every tick interrupt.
	Attach(k *kernel.Kernel, tickISR func())
	// StartTicks starts the periodic tick interrupt at hz and enables interrupts.
	StartTicks(hz uint32)
	// Idle waits for the next interrupt.
	Idle()
}

type Config struct {
	// TicksPerSec is the kernel tick rate (default 100).
	TicksPerSec uint32
}

const (
	stackWords = 40

	prioBlinky1 = 2
	prioBlinky2 = 1
)

// Thread control blocks and stacks are static; thread entry points are
// top-level functions reading the running system.
var (
	stackIdle    [stackWords]uintptr
	stackBlinky1 [stackWords]uintptr
	stackBlinky2 [stackWords]uintptr

	blinky1 kernel.Thread
	blinky2 kernel.Thread

	sys *system
)

// ErrFault is returned by the frame step once the kernel reported a fault.
// Runners that own a display keep showing the fault screen.
var ErrFault = fmt.Errorf("app: kernel fault: %w", hal.ErrHalted)

type system struct {
	h   hal.HAL
	m   Machine
	k   *kernel.Kernel
	cfg Config

	green, blue *trackedLED
	b1, b2      *blinky.Blinker

	panel   *panel
	fbMu    sync.Mutex
	fault   atomic.Pointer[kernel.Fault]
	started atomic.Bool

	// isrSnap is written only by the tick interrupt.
	isrSnap kernel.Snapshot
	mu      sync.Mutex
	snap    kernel.Snapshot
	fresh   bool
}

// New initializes the OS on m, starts it on its own goroutine and returns a
// frame step that renders the status panel (host entrypoint).
func New(h hal.HAL, m Machine, cfg Config) func() error {
	s := newSystem(h, m, cfg)
	go s.k.Run()
	return s.step
}

// Run initializes the OS on m and runs it. It never returns (TinyGo/native
// entrypoint).
func Run(h hal.HAL, m Machine, cfg Config) {
	s := newSystem(h, m, cfg)
	s.k.Run()
}

// newKernelSystem builds the kernel and its hooks on m without registering
// any thread.
func newKernelSystem(h hal.HAL, m Machine, cfg Config) *system {
	if cfg.TicksPerSec == 0 {
		cfg.TicksPerSec = 100
	}

	if l := h.Logger(); l != nil {
		l.WriteLineString(buildinfo.Banner())
	}

	s := &system{
		h:     h,
		m:     m,
		cfg:   cfg,
		green: &trackedLED{led: h.LED(hal.LEDGreen)},
		blue:  &trackedLED{led: h.LED(hal.LEDBlue)},
	}
	if disp := h.Display(); disp != nil {
		s.panel = newPanel(disp.Framebuffer())
	}

	s.k = kernel.New(kernel.Config{
		Port:      m,
		Logger:    h.Logger(),
		OnStartup: s.onStartup,
		OnIdle:    m.Idle,
		OnFault:   s.onFault,
	})
	m.Attach(s.k, s.tickISR)
	return s
}

func newSystem(h hal.HAL, m Machine, cfg Config) *system {
	s := newKernelSystem(h, m, cfg)

	s.b1 = blinky.New(s.green, s.k, s.cfg.TicksPerSec)
	s.b2 = blinky.New(s.blue, s.k, s.cfg.TicksPerSec)
	sys = s

	s.k.Init(stackIdle[:])
	s.k.Start(&blinky1, prioBlinky1, mainBlinky1, stackBlinky1[:])
	s.k.Start(&blinky2, prioBlinky2, mainBlinky2, stackBlinky2[:])
	return s
}

func mainBlinky1() { sys.b1.Run() }
func mainBlinky2() { sys.b2.Run() }

func (s *system) onStartup() {
	s.started.Store(true)
	s.m.StartTicks(s.cfg.TicksPerSec)
}

func (s *system) tickISR() {
	s.k.Tick()
	s.k.Schedule()

	if s.panel == nil {
		return
	}
	s.k.Snapshot(&s.isrSnap)
	s.mu.Lock()
	s.snap = s.isrSnap
	s.fresh = true
	s.mu.Unlock()
}

// step redraws the panel when a new tick was published.
func (s *system) step() error {
	if s.fault.Load() != nil {
		return ErrFault
	}
	if s.panel == nil {
		return nil
	}

	s.mu.Lock()
	if !s.fresh {
		s.mu.Unlock()
		return nil
	}
	snap := s.snap
	s.fresh = false
	s.mu.Unlock()

	s.fbMu.Lock()
	defer s.fbMu.Unlock()
	if s.fault.Load() != nil {
		return ErrFault
	}
	return s.panel.draw(&snap, s.green.on.Load(), s.blue.on.Load())
}
