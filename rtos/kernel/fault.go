package kernel

import "strconv"

// FaultKind classifies a fatal kernel fault.
type FaultKind uint8

const (
	// FaultPriority: priority out of range or already registered.
	FaultPriority FaultKind = iota + 1
	// FaultEntry: nil thread entry point.
	FaultEntry
	// FaultStack: stack too small to hold the initial frame.
	FaultStack
	// FaultDelayIdle: Delay called from the idle thread or before any thread runs.
	FaultDelayIdle
	// FaultDelayZero: Delay called with zero ticks.
	FaultDelayZero
	// FaultNoThread: the scheduler picked an empty registry slot.
	FaultNoThread
	// FaultTimeout: a delayed thread is missing or has no countdown.
	FaultTimeout
	// FaultNotInitialized: Run called before Init.
	FaultNotInitialized
	// FaultRunReturned: the first context switch never happened.
	FaultRunReturned
)

func (k FaultKind) String() string {
	switch k {
	case FaultPriority:
		return "bad priority"
	case FaultEntry:
		return "nil entry point"
	case FaultStack:
		return "stack too small"
	case FaultDelayIdle:
		return "delay from idle thread"
	case FaultDelayZero:
		return "zero delay"
	case FaultNoThread:
		return "no thread at ready priority"
	case FaultTimeout:
		return "corrupt delayed set"
	case FaultNotInitialized:
		return "kernel not initialized"
	case FaultRunReturned:
		return "run returned"
	default:
		return "unknown"
	}
}

// Fault describes a violated precondition or kernel invariant.
// Faults are never recovered by the kernel: it reports them and halts.
type Fault struct {
	Kind     FaultKind
	Priority uint8
	Stack    []byte
}

func (f *Fault) Error() string {
	return "kernel: fault: " + f.Kind.String() + " (prio " + strconv.Itoa(int(f.Priority)) + ")"
}

// fail reports a fault and halts by panicking with it.
func (k *Kernel) fail(kind FaultKind, prio uint8) {
	f := &Fault{Kind: kind, Priority: prio, Stack: captureStack()}
	k.log(f.Error())
	if k.cfg.OnFault != nil {
		k.cfg.OnFault(f)
	}
	panic(f)
}
