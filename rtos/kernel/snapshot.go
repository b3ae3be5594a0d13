package kernel

// ThreadStatus is the observable state of one registry slot.
type ThreadStatus struct {
	Registered bool
	Timeout    uint32
	StackFree  int
}

// Snapshot is a consistent copy of the scheduler state.
type Snapshot struct {
	Ticks    uint64
	Switches uint64
	Current  int // -1 before the first switch
	Ready    uint32
	Delayed  uint32
	Threads  [MaxPriority + 1]ThreadStatus
}

// Snapshot copies the scheduler state into s inside a critical section.
// Stack watermarks are scanned after interrupts are restored. It does not
// allocate, so it may be called from the tick interrupt.
func (k *Kernel) Snapshot(s *Snapshot) {
	var threads [MaxPriority + 1]*Thread

	st := k.port.DisableInterrupts()
	s.Ticks = k.ticks
	s.Switches = k.switches
	s.Current = -1
	if k.curr != nil {
		s.Current = int(k.curr.prio)
	}
	s.Ready = k.ready
	s.Delayed = k.delayed
	threads = k.threads
	for i, t := range threads {
		if t == nil {
			s.Threads[i] = ThreadStatus{}
			continue
		}
		s.Threads[i] = ThreadStatus{Registered: true, Timeout: t.timeout}
	}
	k.port.RestoreInterrupts(st)

	for i, t := range threads {
		if t != nil {
			s.Threads[i].StackFree = t.StackFree()
		}
	}
}
