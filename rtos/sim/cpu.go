// Package sim is a host model of a single Cortex-M core that the kernel can
// run on without hardware.
//
// Each kernel thread runs as a goroutine, but only the goroutine holding the
// simulated CPU executes; the switch exception hands the CPU over. Interrupts
// are taken at delivery points: re-enabling interrupts, pending the switch
// with interrupts enabled, and Idle. A thread that never calls into the
// kernel is therefore never preempted on the host.
package sim

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"miros/rtos/kernel"
)

const wordSize = unsafe.Sizeof(uintptr(0))

// Registers is the simulated register file.
type Registers struct {
	R    [13]uintptr // R0..R12
	SP   uintptr
	LR   uintptr
	PC   uintptr
	XPSR uintptr
}

// HardFault is raised (as a panic) when simulated code breaks the machine model.
type HardFault struct {
	Reason string
}

func (f *HardFault) Error() string { return "sim: hard fault: " + f.Reason }

// Config configures a simulated CPU.
type Config struct {
	// Ticks, if set, is forwarded to the tick interrupt once StartTicks runs.
	Ticks <-chan uint64
	// MainStackWords sizes the stack the boot code and the first exception use.
	MainStackWords int
}

type context struct {
	resume chan struct{}
}

// CPU is a simulated core. It implements kernel.Port.
type CPU struct {
	cfg Config
	k   *kernel.Kernel
	isr func()

	// Owned by the goroutine holding the CPU.
	regs     Registers
	primask  bool
	pendSV   bool
	active   int
	lowest   bool
	main     kernel.Stack
	contexts map[*kernel.Thread]*context

	irq      atomic.Uint32
	ticking  atomic.Bool
	switches atomic.Uint64
	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a CPU. The calling goroutine holds it until the first switch.
func New(cfg Config) *CPU {
	if cfg.MainStackWords <= 0 {
		cfg.MainStackWords = 64
	}
	c := &CPU{
		cfg:      cfg,
		main:     make(kernel.Stack, cfg.MainStackWords),
		contexts: make(map[*kernel.Thread]*context),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	c.regs.SP = c.main.End() &^ 7
	return c
}

// Attach connects the kernel whose Switch runs in the switch exception and
// the handler run for each tick interrupt.
func (c *CPU) Attach(k *kernel.Kernel, tickISR func()) {
	c.k = k
	c.isr = tickISR
}

// SetSwitchPriorityLowest implements kernel.Port.
func (c *CPU) SetSwitchPriorityLowest() { c.lowest = true }

// RequestSwitch implements kernel.Port.
func (c *CPU) RequestSwitch() {
	c.pendSV = true
	c.service()
}

// DisableInterrupts implements kernel.Port.
func (c *CPU) DisableInterrupts() uintptr {
	var s uintptr
	if c.primask {
		s = 1
	}
	c.primask = true
	return s
}

// RestoreInterrupts implements kernel.Port.
func (c *CPU) RestoreInterrupts(s uintptr) {
	c.primask = s != 0
	c.service()
}

// StartTicks enables the tick interrupt. The rate is set by the tick source.
func (c *CPU) StartTicks(_ uint32) {
	if !c.ticking.CompareAndSwap(false, true) {
		return
	}
	if c.cfg.Ticks == nil {
		return
	}
	go func() {
		for {
			select {
			case <-c.done:
				return
			case _, ok := <-c.cfg.Ticks:
				if !ok {
					return
				}
				c.RaiseIRQ()
			}
		}
	}()
}

// RaiseIRQ latches one tick interrupt. It is safe to call from any goroutine.
// Ticks raised before StartTicks are dropped.
func (c *CPU) RaiseIRQ() {
	if !c.ticking.Load() {
		return
	}
	c.irq.Add(1)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Idle waits for an interrupt and services it (WFI).
func (c *CPU) Idle() {
	for c.irq.Load() == 0 {
		select {
		case <-c.wake:
		case <-c.done:
			runtime.Goexit()
		}
	}
	c.service()
}

// Stop halts the CPU. Every goroutine parked on it exits.
func (c *CPU) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// Done is closed by Stop.
func (c *CPU) Done() <-chan struct{} { return c.done }

// Switches returns the number of switch exceptions taken.
func (c *CPU) Switches() uint64 { return c.switches.Load() }

// Registers returns the register file. Only the running thread may call it.
func (c *CPU) Registers() Registers { return c.regs }

// SetRegister sets R0..R12. Only the running thread may call it.
func (c *CPU) SetRegister(n int, v uintptr) {
	if n < 0 || n >= len(c.regs.R) {
		c.fault(fmt.Sprintf("no register R%d", n))
	}
	c.regs.R[n] = v
}

// service takes pending exceptions in priority order: ticks, then the switch.
func (c *CPU) service() {
	for !c.primask && c.active == 0 {
		select {
		case <-c.done:
			runtime.Goexit()
		default:
		}

		if c.irq.Load() > 0 {
			c.irq.Add(^uint32(0))
			c.active++
			if c.isr != nil {
				c.isr()
			}
			c.active--
			continue
		}
		if !c.pendSV {
			return
		}
		c.pendSV = false
		c.takeSwitch()
	}
}

func (c *CPU) takeSwitch() {
	if c.k == nil {
		c.fault("switch taken with no kernel attached")
	}
	if !c.lowest {
		c.fault("switch exception priority not configured")
	}
	prev := c.k.Current()
	var wait chan struct{}
	if prev != nil {
		wait = c.contexts[prev].resume
	}

	// Exception entry stacks the caller-saved frame.
	r := &c.regs
	c.push(r.XPSR, r.PC, r.LR, r.R[12], r.R[3], r.R[2], r.R[1], r.R[0])

	c.primask = true
	if prev != nil {
		c.push(r.R[11], r.R[10], r.R[9], r.R[8], r.R[7], r.R[6], r.R[5], r.R[4])
	}
	r.SP = c.k.Switch(r.SP)
	next := c.k.Current()
	for i := 4; i <= 11; i++ {
		r.R[i] = c.pop()
	}
	c.primask = false

	// Exception return unstacks the frame of the incoming thread.
	for i := 0; i <= 3; i++ {
		r.R[i] = c.pop()
	}
	r.R[12] = c.pop()
	r.LR = c.pop()
	r.PC = c.pop()
	r.XPSR = c.pop()
	c.switches.Add(1)

	if next == prev {
		return
	}
	if r.PC != next.EntryAddr() {
		c.fault(fmt.Sprintf("exception return to %#x, thread %d entry is %#x", r.PC, next.Priority(), next.EntryAddr()))
	}
	c.enter(next)

	select {
	case <-wait:
	case <-c.done:
		runtime.Goexit()
	}
}

// enter hands the CPU to t, starting its goroutine on the first entry.
func (c *CPU) enter(t *kernel.Thread) {
	if ctx := c.contexts[t]; ctx != nil {
		ctx.resume <- struct{}{}
		return
	}
	c.contexts[t] = &context{resume: make(chan struct{}, 1)}
	go c.run(t)
}

func (c *CPU) run(t *kernel.Thread) {
	t.Entry()()
	c.fault(fmt.Sprintf("thread %d returned from its entry point", t.Priority()))
}

func (c *CPU) push(words ...uintptr) {
	for _, w := range words {
		c.regs.SP -= wordSize
		*c.word(c.regs.SP) = w
	}
}

func (c *CPU) pop() uintptr {
	w := *c.word(c.regs.SP)
	c.regs.SP += wordSize
	return w
}

// word resolves a stack address against the main stack and every thread stack.
func (c *CPU) word(addr uintptr) *uintptr {
	if w := c.main.At(addr); w != nil {
		return w
	}
	if c.k != nil {
		for p := 0; p <= kernel.MaxPriority; p++ {
			t := c.k.Thread(uint8(p))
			if t == nil {
				continue
			}
			if w := t.Stack().At(addr); w != nil {
				return w
			}
		}
	}
	c.fault(fmt.Sprintf("stack access at %#x outside any stack", addr))
	return nil
}

func (c *CPU) fault(reason string) {
	panic(&HardFault{Reason: reason})
}
