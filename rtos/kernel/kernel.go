package kernel

import (
	"math/bits"
	"strconv"
	"sync/atomic"
)

const (
	// MaxPriority is the highest thread priority. Priorities are unique.
	MaxPriority = 32

	// IdlePriority is reserved for the idle thread.
	IdlePriority = 0
)

// Port is the architecture boundary of the kernel.
type Port interface {
	// SetSwitchPriorityLowest gives the deferred switch exception the lowest
	// urgency so it never preempts other interrupt handlers.
	SetSwitchPriorityLowest()
	// RequestSwitch pends the deferred switch exception. Idempotent.
	RequestSwitch()
	// DisableInterrupts masks interrupts and returns the previous mask state.
	DisableInterrupts() uintptr
	// RestoreInterrupts restores a mask state returned by DisableInterrupts.
	RestoreInterrupts(state uintptr)
}

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
}

// Config holds the kernel's collaborators. Port is required.
type Config struct {
	Port   Port
	Logger Logger

	// OnStartup is called once from Run. It must start the periodic tick and
	// leave interrupts enabled.
	OnStartup func()
	// OnIdle is called in a loop by the idle thread.
	OnIdle func()
	// OnFault is called before the kernel halts on a fault. It must not
	// panic. It may block forever to keep the system halted; if it returns,
	// the kernel panics with the fault.
	OnFault func(*Fault)
}

// Kernel is a preemptive, priority-based scheduler for one CPU.
//
// The ready and delayed sets hold one bit per priority (bit p-1 for priority
// p). The idle thread is never in either set; it runs when no bit is ready.
type Kernel struct {
	cfg  Config
	port Port

	threads [MaxPriority + 1]*Thread
	ready   uint32
	delayed uint32

	curr    *Thread
	next    *Thread
	pending bool

	idle     Thread
	ticks    uint64
	switches uint64
}

// running is the kernel whose Run started the idle thread.
var running atomic.Pointer[Kernel]

// New creates a kernel instance.
func New(cfg Config) *Kernel {
	if cfg.Port == nil {
		panic("kernel: nil port")
	}
	return &Kernel{cfg: cfg, port: cfg.Port}
}

// Init sets the switch exception to the lowest priority and registers the
// idle thread on idleStack. It must be called exactly once, before Run.
func (k *Kernel) Init(idleStack Stack) {
	k.port.SetSwitchPriorityLowest()
	k.register(&k.idle, IdlePriority, idleMain, idleStack)
}

// Start registers t at prio (1..MaxPriority) and makes it ready. It
// fabricates the initial context on stack so the first switch into t begins
// executing entry.
func (k *Kernel) Start(t *Thread, prio uint8, entry func(), stack Stack) {
	if prio == IdlePriority {
		k.fail(FaultPriority, prio)
	}
	k.register(t, prio, entry, stack)
}

func (k *Kernel) register(t *Thread, prio uint8, entry func(), stack Stack) {
	if int(prio) > MaxPriority || k.threads[prio] != nil {
		k.fail(FaultPriority, prio)
	}
	if entry == nil {
		k.fail(FaultEntry, prio)
	}
	addr, ok := entryAddress(entry)
	if !ok {
		k.fail(FaultEntry, prio)
	}
	sp, limit, ok := FabricateFrame(stack, addr)
	if !ok {
		k.fail(FaultStack, prio)
	}

	*t = Thread{
		sp:        sp,
		prio:      prio,
		stack:     stack,
		limit:     limit,
		entry:     entry,
		entryAddr: addr,
	}

	s := k.port.DisableInterrupts()
	k.threads[prio] = t
	if prio != IdlePriority {
		k.ready |= bit(prio)
	}
	k.port.RestoreInterrupts(s)

	k.log("kernel: thread " + strconv.Itoa(int(prio)) + " registered, " +
		strconv.Itoa(t.StackFree()) + " stack words free")
}

// Run starts multitasking. It calls OnStartup, arms the first switch and
// never returns.
func (k *Kernel) Run() {
	if k.threads[IdlePriority] == nil {
		k.fail(FaultNotInitialized, IdlePriority)
	}
	running.Store(k)
	k.log("kernel: run")

	if k.cfg.OnStartup != nil {
		k.cfg.OnStartup()
	}

	s := k.port.DisableInterrupts()
	k.schedule()
	k.port.RestoreInterrupts(s)

	k.fail(FaultRunReturned, IdlePriority)
}

// Schedule picks the highest-priority ready thread, or the idle thread when
// none is ready, and arms the switch if it differs from the current thread.
// It is safe to call from thread and interrupt context.
func (k *Kernel) Schedule() {
	s := k.port.DisableInterrupts()
	k.schedule()
	k.port.RestoreInterrupts(s)
}

func (k *Kernel) schedule() {
	if k.ready == 0 {
		k.next = k.threads[IdlePriority]
	} else {
		p := log2(k.ready)
		k.next = k.threads[p]
		if k.next == nil {
			k.fail(FaultNoThread, p)
		}
	}

	if k.next != k.curr && !k.pending {
		k.pending = true
		k.port.RequestSwitch()
	}
}

// Tick advances every delayed thread by one tick and makes expired ones
// ready. The tick interrupt must call Schedule after it.
func (k *Kernel) Tick() {
	s := k.port.DisableInterrupts()
	k.ticks++

	working := k.delayed
	for working != 0 {
		p := log2(working)
		t := k.threads[p]
		if t == nil || t.timeout == 0 {
			k.fail(FaultTimeout, p)
		}

		b := bit(p)
		t.timeout--
		if t.timeout == 0 {
			k.ready |= b
			k.delayed &^= b
		}
		working &^= b
	}

	k.port.RestoreInterrupts(s)
}

// Delay blocks the calling thread for ticks ticks. It must not be called from
// the idle thread. It returns once the thread has been switched back in.
func (k *Kernel) Delay(ticks uint32) {
	if ticks == 0 {
		k.fail(FaultDelayZero, k.currentPriority())
	}

	s := k.port.DisableInterrupts()
	t := k.curr
	if t == nil || t.prio == IdlePriority {
		k.fail(FaultDelayIdle, IdlePriority)
	}

	t.timeout = ticks
	b := bit(t.prio)
	k.ready &^= b
	k.delayed |= b
	k.schedule()
	k.port.RestoreInterrupts(s)
}

// Switch is the portable body of the deferred switch handler. The
// architecture shim calls it with interrupts disabled, passing the stack
// pointer just after it pushed the callee-saved registers of the outgoing
// thread (ignored on the first switch). It returns the stack pointer to
// restore the incoming thread's callee-saved registers from.
func (k *Kernel) Switch(sp uintptr) uintptr {
	if k.next == nil {
		k.fail(FaultNoThread, IdlePriority)
	}
	if k.curr != nil {
		k.curr.sp = sp
	}
	k.curr = k.next
	k.pending = false
	k.switches++
	return k.curr.sp
}

// Current returns the thread whose context is loaded, nil before the first switch.
func (k *Kernel) Current() *Thread { return k.curr }

// Next returns the thread chosen by the last Schedule.
func (k *Kernel) Next() *Thread { return k.next }

// Thread returns the thread registered at prio, or nil.
func (k *Kernel) Thread(prio uint8) *Thread {
	if int(prio) > MaxPriority {
		return nil
	}
	return k.threads[prio]
}

// ReadySet returns the ready bitmask (bit p-1 for priority p).
func (k *Kernel) ReadySet() uint32 { return k.ready }

// DelayedSet returns the delayed bitmask (bit p-1 for priority p).
func (k *Kernel) DelayedSet() uint32 { return k.delayed }

func (k *Kernel) currentPriority() uint8 {
	if k.curr == nil {
		return IdlePriority
	}
	return k.curr.prio
}

func (k *Kernel) log(s string) {
	if k.cfg.Logger != nil {
		k.cfg.Logger.WriteLineString(s)
	}
}

func idleMain() {
	k := running.Load()
	for {
		if k.cfg.OnIdle != nil {
			k.cfg.OnIdle()
		}
	}
}

func bit(prio uint8) uint32 {
	return 1 << (prio - 1)
}

// log2 returns the priority of the highest set bit of a non-zero set.
func log2(set uint32) uint8 {
	return uint8(32 - bits.LeadingZeros32(set))
}
