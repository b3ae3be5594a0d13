//go:build tinygo && cortexm

package cortexm

import "C"

// mirosSwitch is called by PendSV_Handler (pendsv.c) with interrupts masked.
//
//export miros_switch
func mirosSwitch(sp uintptr) uintptr {
	return owner.Switch(sp)
}
