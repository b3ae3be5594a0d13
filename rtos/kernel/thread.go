package kernel

import "unsafe"

const (
	// StackPoison fills the unused part of every fabricated stack.
	StackPoison uintptr = 0xDEADBEEF

	// FrameWords is the size of a fabricated initial context: the 8-word
	// exception-return frame plus the 8-word callee-saved block.
	FrameWords = 16

	wordSize   = unsafe.Sizeof(uintptr(0))
	stackAlign = 8
)

// Initial register values written into a fabricated frame.
const (
	InitialXPSR uintptr = 1 << 24 // Thumb state.
	InitialLR   uintptr = 0x0000000E
	InitialR12  uintptr = 0x0000000C
)

// Stack is thread stack memory, one machine word per element.
//
// It must not be resized or copied once handed to the kernel; threads hold
// raw addresses into it.
type Stack []uintptr

// Base returns the address of the first word.
func (s Stack) Base() uintptr {
	if len(s) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(s)))
}

// End returns the address one past the last word.
func (s Stack) End() uintptr {
	return s.Base() + uintptr(len(s))*wordSize
}

// At returns the word at addr, or nil if addr is not a word inside s.
func (s Stack) At(addr uintptr) *uintptr {
	base := s.Base()
	if len(s) == 0 || addr < base || addr >= s.End() || (addr-base)%wordSize != 0 {
		return nil
	}
	return &s[(addr-base)/wordSize]
}

// Contains reports whether addr falls inside s.
func (s Stack) Contains(addr uintptr) bool {
	return s.At(addr) != nil
}

// FabricateFrame writes an initial context onto stack so that the switch
// handler can resume a thread that has never run at entryAddr.
//
// It returns the saved stack pointer (the address of the R4 word) and the
// aligned stack limit. Nothing is written when ok is false.
func FabricateFrame(stack Stack, entryAddr uintptr) (sp, limit uintptr, ok bool) {
	if len(stack) == 0 {
		return 0, 0, false
	}
	top := stack.End() &^ (stackAlign - 1)
	limit = (stack.Base() + stackAlign - 1) &^ (stackAlign - 1)
	if top < limit || (top-limit)/wordSize < FrameWords {
		return 0, 0, false
	}

	frame := [FrameWords]uintptr{
		InitialXPSR,
		entryAddr,
		InitialLR,
		InitialR12,
		3, 2, 1, 0, // R3..R0
		11, 10, 9, 8, 7, 6, 5, 4, // R11..R4
	}
	sp = top
	for _, w := range frame {
		sp -= wordSize
		*stack.At(sp) = w
	}

	for p := sp; p > limit; {
		p -= wordSize
		*stack.At(p) = StackPoison
	}
	return sp, limit, true
}

// Thread is a thread control block. It is owned by the application,
// typically as static storage next to its stack.
type Thread struct {
	sp      uintptr
	prio    uint8
	timeout uint32

	stack     Stack
	limit     uintptr
	entry     func()
	entryAddr uintptr
}

// Priority returns the thread priority (0 for the idle thread).
func (t *Thread) Priority() uint8 { return t.prio }

// Timeout returns the remaining delay in ticks, 0 when not delayed.
func (t *Thread) Timeout() uint32 { return t.timeout }

// SP returns the saved stack pointer. It is only meaningful while the thread
// is not running.
func (t *Thread) SP() uintptr { return t.sp }

// Stack returns the stack memory the thread was started on.
func (t *Thread) Stack() Stack { return t.stack }

// Limit returns the aligned lowest usable stack address.
func (t *Thread) Limit() uintptr { return t.limit }

// Entry returns the thread body.
func (t *Thread) Entry() func() { return t.entry }

// EntryAddr returns the resume address written into the fabricated frame.
func (t *Thread) EntryAddr() uintptr { return t.entryAddr }

// StackFree counts the poison words still intact above the stack limit.
func (t *Thread) StackFree() int {
	n := 0
	for p := t.limit; ; p += wordSize {
		w := t.stack.At(p)
		if w == nil || *w != StackPoison {
			return n
		}
		n++
	}
}
