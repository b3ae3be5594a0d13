//go:build tinygo && cortexm

package cortexm

import (
	"device/arm"
	"machine"
	"runtime/volatile"
	"unsafe"

	"miros/rtos/kernel"
)

var (
	icsr  = (*volatile.Register32)(unsafe.Pointer(uintptr(0xE000ED04)))
	shpr3 = (*volatile.Register32)(unsafe.Pointer(uintptr(0xE000ED20)))

	systCSR = (*volatile.Register32)(unsafe.Pointer(uintptr(0xE000E010)))
	systRVR = (*volatile.Register32)(unsafe.Pointer(uintptr(0xE000E014)))
	systCVR = (*volatile.Register32)(unsafe.Pointer(uintptr(0xE000E018)))
)

const (
	icsrPendSVSet = 1 << 28
	shpr3PendSV   = 0xFF << 16

	systEnable    = 1 << 0
	systTickInt   = 1 << 1
	systClkSource = 1 << 2
)

// The exception handlers are global, so one kernel owns the CPU.
var (
	owner   *kernel.Kernel
	tickISR func()
)

// Port drives the core's system control block. It implements kernel.Port.
type Port struct{}

// New returns the port for this core.
func New() *Port {
	return &Port{}
}

// Attach makes k the kernel switched by PendSV and isr the SysTick handler.
func (p *Port) Attach(k *kernel.Kernel, isr func()) {
	owner = k
	tickISR = isr
}

// SetSwitchPriorityLowest implements kernel.Port.
func (p *Port) SetSwitchPriorityLowest() {
	shpr3.SetBits(shpr3PendSV)
}

// RequestSwitch implements kernel.Port.
func (p *Port) RequestSwitch() {
	icsr.Set(icsrPendSVSet)
}

// DisableInterrupts implements kernel.Port.
func (p *Port) DisableInterrupts() uintptr {
	return arm.DisableInterrupts()
}

// RestoreInterrupts implements kernel.Port.
func (p *Port) RestoreInterrupts(state uintptr) {
	arm.EnableInterrupts(state)
}

// StartTicks starts SysTick at hz from the core clock and enables interrupts.
func (p *Port) StartTicks(hz uint32) {
	systRVR.Set(machine.CPUFrequency()/hz - 1)
	systCVR.Set(0)
	systCSR.Set(systClkSource | systTickInt | systEnable)
	arm.Asm("cpsie i")
}

// Idle sleeps until the next interrupt.
func (p *Port) Idle() {
	arm.Asm("wfi")
}

//export SysTick_Handler
func sysTickHandler() {
	if tickISR != nil {
		tickISR()
	}
}
