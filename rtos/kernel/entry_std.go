//go:build !tinygo

package kernel

import "reflect"

// entryAddress returns the code address of fn. On hosts it is only used as the
// resume address the simulator checks on the first switch into a thread.
func entryAddress(fn func()) (uintptr, bool) {
	return reflect.ValueOf(fn).Pointer(), true
}
