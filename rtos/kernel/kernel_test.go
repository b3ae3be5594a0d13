package kernel

import (
	"strings"
	"testing"
)

type fakePort struct {
	lowest   bool
	requests int
	masked   bool

	onRestore func()
}

func (p *fakePort) SetSwitchPriorityLowest() { p.lowest = true }
func (p *fakePort) RequestSwitch()           { p.requests++ }

func (p *fakePort) DisableInterrupts() uintptr {
	var s uintptr
	if p.masked {
		s = 1
	}
	p.masked = true
	return s
}

func (p *fakePort) RestoreInterrupts(s uintptr) {
	p.masked = s != 0
	if !p.masked && p.onRestore != nil {
		p.onRestore()
	}
}

type lineLogger struct {
	lines []string
}

func (l *lineLogger) WriteLineString(s string) { l.lines = append(l.lines, s) }

func newTestKernel(t *testing.T) (*Kernel, *fakePort) {
	t.Helper()
	port := &fakePort{}
	k := New(Config{Port: port})
	k.Init(make(Stack, 64))
	return k, port
}

func startThread(t *testing.T, k *Kernel, prio uint8) *Thread {
	t.Helper()
	th := &Thread{}
	k.Start(th, prio, func() {}, make(Stack, 64))
	return th
}

func expectFault(t *testing.T, want FaultKind, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected fault %s, got none", want)
		}
		f, ok := r.(*Fault)
		if !ok {
			t.Fatalf("expected *Fault, got %T: %v", r, r)
		}
		if f.Kind != want {
			t.Fatalf("fault = %s, want %s", f.Kind, want)
		}
	}()
	fn()
}

func TestInitRegistersIdleOutsideSets(t *testing.T) {
	k, port := newTestKernel(t)

	if !port.lowest {
		t.Fatal("expected switch priority set to lowest")
	}
	idle := k.Thread(IdlePriority)
	if idle == nil {
		t.Fatal("expected idle thread at priority 0")
	}
	if k.ReadySet() != 0 || k.DelayedSet() != 0 {
		t.Fatalf("sets = %#x/%#x, want 0/0", k.ReadySet(), k.DelayedSet())
	}
	if port.masked {
		t.Fatal("interrupts left masked after Init")
	}
}

func TestInitTwiceFaults(t *testing.T) {
	k, _ := newTestKernel(t)
	expectFault(t, FaultPriority, func() { k.Init(make(Stack, 64)) })
}

func TestStartDuplicatePriorityFaults(t *testing.T) {
	k, _ := newTestKernel(t)
	first := startThread(t, k, 3)

	second := &Thread{}
	expectFault(t, FaultPriority, func() { k.Start(second, 3, func() {}, make(Stack, 64)) })

	if got := k.Thread(3); got != first {
		t.Fatalf("Thread(3) = %p, want %p", got, first)
	}
	if k.ReadySet() != 1<<2 {
		t.Fatalf("ReadySet() = %#x, want %#x", k.ReadySet(), 1<<2)
	}
}

func TestStartPriorityOutOfRangeFaults(t *testing.T) {
	k, _ := newTestKernel(t)
	expectFault(t, FaultPriority, func() { k.Start(&Thread{}, MaxPriority+1, func() {}, make(Stack, 64)) })
	expectFault(t, FaultPriority, func() { k.Start(&Thread{}, IdlePriority, func() {}, make(Stack, 64)) })
	if k.ReadySet() != 0 {
		t.Fatalf("ReadySet() = %#x, want 0", k.ReadySet())
	}
}

func TestStartMaxPriority(t *testing.T) {
	k, _ := newTestKernel(t)
	th := startThread(t, k, MaxPriority)
	if k.ReadySet() != 1<<31 {
		t.Fatalf("ReadySet() = %#x, want %#x", k.ReadySet(), uint32(1<<31))
	}
	k.Schedule()
	if k.Next() != th {
		t.Fatal("expected priority 32 thread to be chosen")
	}
}

func TestStartNilEntryFaults(t *testing.T) {
	k, _ := newTestKernel(t)
	expectFault(t, FaultEntry, func() { k.Start(&Thread{}, 1, nil, make(Stack, 64)) })
	if k.Thread(1) != nil {
		t.Fatal("expected empty slot after fault")
	}
}

func TestStartSmallStackFaults(t *testing.T) {
	k, _ := newTestKernel(t)
	stack := make(Stack, 8)
	expectFault(t, FaultStack, func() { k.Start(&Thread{}, 1, func() {}, stack) })
	if k.Thread(1) != nil {
		t.Fatal("expected empty slot after fault")
	}
	for i, w := range stack {
		if w != 0 {
			t.Fatalf("stack[%d] = %#x, want untouched", i, w)
		}
	}
}

func TestScheduleHighestReady(t *testing.T) {
	k, port := newTestKernel(t)
	startThread(t, k, 1)
	t2 := startThread(t, k, 2)

	k.Schedule()
	if k.Next() != t2 {
		t.Fatalf("Next() prio = %d, want 2", k.Next().Priority())
	}
	if port.requests != 1 {
		t.Fatalf("requests = %d, want 1", port.requests)
	}
}

func TestScheduleEmptyPicksIdle(t *testing.T) {
	k, port := newTestKernel(t)

	k.Schedule()
	if k.Next() != k.Thread(IdlePriority) {
		t.Fatal("expected idle thread")
	}
	if port.requests != 1 {
		t.Fatalf("requests = %d, want 1", port.requests)
	}
}

func TestScheduleArmsOncePerChange(t *testing.T) {
	k, port := newTestKernel(t)
	t1 := startThread(t, k, 1)

	k.Schedule()
	k.Schedule()
	if port.requests != 1 {
		t.Fatalf("requests = %d after two schedules, want 1", port.requests)
	}

	k.Switch(0)
	if k.Current() != t1 {
		t.Fatal("expected t1 current after switch")
	}
	k.Schedule()
	if port.requests != 1 {
		t.Fatalf("requests = %d when next is current, want 1", port.requests)
	}
}

func TestSwitchRecordsOutgoingSP(t *testing.T) {
	k, _ := newTestKernel(t)
	t1 := startThread(t, k, 1)
	t2 := startThread(t, k, 2)
	t1SP := t1.SP()

	k.Schedule()
	if got := k.Switch(0xBAD); got != t2.SP() {
		t.Fatalf("Switch() = %#x, want %#x", got, t2.SP())
	}

	k.Delay(1)
	if k.Next() != t1 {
		t.Fatal("expected t1 next after t2 delays")
	}
	if got := k.Switch(0x1230); got != t1SP {
		t.Fatalf("Switch() = %#x, want %#x", got, t1SP)
	}
	if t2.SP() != 0x1230 {
		t.Fatalf("t2.SP() = %#x, want 0x1230", t2.SP())
	}
	if k.Current() != t1 {
		t.Fatal("expected t1 current")
	}
}

func TestDelayRoundTrip(t *testing.T) {
	k, port := newTestKernel(t)
	t1 := startThread(t, k, 1)

	k.Schedule()
	k.Switch(0)

	k.Delay(5)
	if k.ReadySet() != 0 || k.DelayedSet() != 1 {
		t.Fatalf("sets = %#x/%#x, want 0/1", k.ReadySet(), k.DelayedSet())
	}
	if t1.Timeout() != 5 {
		t.Fatalf("Timeout() = %d, want 5", t1.Timeout())
	}
	if k.Next() != k.Thread(IdlePriority) {
		t.Fatal("expected idle chosen after delay")
	}
	if port.requests != 2 {
		t.Fatalf("requests = %d, want 2", port.requests)
	}
	k.Switch(0x100)

	for i := 1; i < 5; i++ {
		k.Tick()
		if k.ReadySet() != 0 {
			t.Fatalf("ready after %d ticks, want still delayed", i)
		}
		if got := t1.Timeout(); got != uint32(5-i) {
			t.Fatalf("Timeout() after %d ticks = %d, want %d", i, got, 5-i)
		}
	}

	k.Tick()
	if k.ReadySet() != 1 || k.DelayedSet() != 0 {
		t.Fatalf("sets = %#x/%#x, want 1/0", k.ReadySet(), k.DelayedSet())
	}
	if t1.Timeout() != 0 {
		t.Fatalf("Timeout() = %d, want 0", t1.Timeout())
	}

	k.Schedule()
	if k.Next() != t1 {
		t.Fatal("expected t1 chosen after wake-up")
	}
}

func TestTickWakesAllExpiredTogether(t *testing.T) {
	k, _ := newTestKernel(t)
	t1 := startThread(t, k, 1)
	t3 := startThread(t, k, 3)

	k.Schedule()
	k.Switch(0)
	k.Delay(2) // t3
	k.Switch(0)
	k.Delay(2) // t1
	k.Switch(0)

	if k.DelayedSet() != 0b101 {
		t.Fatalf("DelayedSet() = %#b, want 0b101", k.DelayedSet())
	}
	k.Tick()
	if t1.Timeout() != 1 || t3.Timeout() != 1 {
		t.Fatalf("timeouts = %d/%d, want 1/1", t1.Timeout(), t3.Timeout())
	}
	k.Tick()
	if k.ReadySet() != 0b101 || k.DelayedSet() != 0 {
		t.Fatalf("sets = %#b/%#b, want 0b101/0", k.ReadySet(), k.DelayedSet())
	}
	k.Schedule()
	if k.Next() != t3 {
		t.Fatal("expected t3 chosen")
	}
}

func TestTickCorruptDelayedSetFaults(t *testing.T) {
	k, _ := newTestKernel(t)
	startThread(t, k, 4)
	k.delayed = bit(5)
	expectFault(t, FaultTimeout, k.Tick)
}

func TestDelayFromIdleFaults(t *testing.T) {
	k, _ := newTestKernel(t)
	k.Schedule()
	k.Switch(0)
	idle := k.Thread(IdlePriority)

	expectFault(t, FaultDelayIdle, func() { k.Delay(3) })
	if idle.Timeout() != 0 || k.ReadySet() != 0 || k.DelayedSet() != 0 {
		t.Fatal("state mutated by rejected delay")
	}
}

func TestDelayBeforeRunFaults(t *testing.T) {
	k, _ := newTestKernel(t)
	startThread(t, k, 1)
	expectFault(t, FaultDelayIdle, func() { k.Delay(1) })
}

func TestDelayZeroFaults(t *testing.T) {
	k, _ := newTestKernel(t)
	t1 := startThread(t, k, 1)
	k.Schedule()
	k.Switch(0)

	expectFault(t, FaultDelayZero, func() { k.Delay(0) })
	if t1.Timeout() != 0 || k.ReadySet() != 1 || k.DelayedSet() != 0 {
		t.Fatal("state mutated by rejected delay")
	}
}

func TestRunWithoutInitFaults(t *testing.T) {
	k := New(Config{Port: &fakePort{}})
	expectFault(t, FaultNotInitialized, k.Run)
}

func TestRunReturningFaults(t *testing.T) {
	port := &fakePort{}
	var started bool
	var faults []*Fault
	k := New(Config{
		Port:      port,
		OnStartup: func() { started = true },
		OnFault:   func(f *Fault) { faults = append(faults, f) },
	})
	k.Init(make(Stack, 64))

	expectFault(t, FaultRunReturned, k.Run)
	if !started {
		t.Fatal("OnStartup not called")
	}
	if port.requests != 1 {
		t.Fatalf("requests = %d, want 1", port.requests)
	}
	if len(faults) != 1 || faults[0].Kind != FaultRunReturned {
		t.Fatalf("OnFault calls = %v, want one FaultRunReturned", faults)
	}
	if len(faults[0].Stack) == 0 {
		t.Fatal("expected captured stack")
	}
}

func TestLoggerReceivesRegistration(t *testing.T) {
	l := &lineLogger{}
	k := New(Config{Port: &fakePort{}, Logger: l})
	k.Init(make(Stack, 64))

	if len(l.lines) != 1 || !strings.HasPrefix(l.lines[0], "kernel: thread 0 registered") {
		t.Fatalf("log lines = %q", l.lines)
	}
}

func TestSnapshot(t *testing.T) {
	k, port := newTestKernel(t)
	t2 := startThread(t, k, 2)
	k.Schedule()
	k.Switch(0)
	k.Delay(7)
	k.Switch(0)
	k.Tick()

	var s Snapshot
	k.Snapshot(&s)
	if s.Current != IdlePriority {
		t.Fatalf("Current = %d, want 0", s.Current)
	}
	if s.Ticks != 1 || s.Switches != 2 {
		t.Fatalf("Ticks/Switches = %d/%d, want 1/2", s.Ticks, s.Switches)
	}
	if s.Delayed != 1<<1 || s.Ready != 0 {
		t.Fatalf("sets = %#x/%#x", s.Ready, s.Delayed)
	}
	st := s.Threads[2]
	if !st.Registered || st.Timeout != 6 || st.StackFree != t2.StackFree() {
		t.Fatalf("Threads[2] = %+v", st)
	}
	if s.Threads[1].Registered {
		t.Fatal("expected empty slot 1")
	}
	if port.masked {
		t.Fatal("interrupts left masked")
	}
}

func TestSnapshotScansStacksUnmasked(t *testing.T) {
	k, port := newTestKernel(t)
	th := startThread(t, k, 3)
	before := th.StackFree()

	// A thread that runs as soon as interrupts are back on dirties one more
	// word below its frame. The watermark must see it.
	port.onRestore = func() {
		port.onRestore = nil
		*th.Stack().At(th.SP() - wordSize) = 0
	}

	var s Snapshot
	k.Snapshot(&s)
	if got := s.Threads[3].StackFree; got != before-1 {
		t.Fatalf("StackFree = %d, want %d", got, before-1)
	}
	if s.Threads[3].Timeout != 0 || !s.Threads[3].Registered {
		t.Fatalf("Threads[3] = %+v", s.Threads[3])
	}
}

func TestLog2(t *testing.T) {
	for _, tc := range []struct {
		set  uint32
		want uint8
	}{
		{1, 1},
		{0b110, 3},
		{1 << 31, 32},
		{0xFFFFFFFF, 32},
	} {
		if got := log2(tc.set); got != tc.want {
			t.Fatalf("log2(%#x) = %d, want %d", tc.set, got, tc.want)
		}
	}
}
