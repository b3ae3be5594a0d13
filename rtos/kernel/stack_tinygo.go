//go:build tinygo

package kernel

// TinyGo cannot walk goroutine stacks; the fault kind and priority are all we report.
func captureStack() []byte {
	return nil
}
