// Package cortexm runs the kernel on an ARMv7-M core under TinyGo. It supports
// cores without an active FPU: Cortex-M3, or Cortex-M4/M7 built soft-float
// with the FPU left disabled. Fabricated frames have no floating-point area
// and every thread returns with the same EXC_RETURN (0xFFFFFFF9).
//
// The deferred switch is PendSV at the lowest exception priority. Its handler
// is a naked shim that pushes r4-r11, passes the resulting stack pointer to
// kernel.Kernel.Switch and pops r4-r11 from the stack pointer it returns.
// Threads run on the main stack pointer, so the program must be built with
// -scheduler=none and a non-scanning collector (-gc=leaking), since TinyGo
// cannot see the thread stacks.
package cortexm
