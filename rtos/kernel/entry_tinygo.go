//go:build tinygo

package kernel

import "unsafe"

// entryAddress returns the code address of fn.
//
// A TinyGo func value is a {context, code} pair. The fabricated frame cannot
// pass a context, so only top-level functions (nil context) can be entry points.
func entryAddress(fn func()) (uintptr, bool) {
	pair := *(*[2]uintptr)(unsafe.Pointer(&fn))
	if pair[0] != 0 {
		return 0, false
	}
	return pair[1], true
}
