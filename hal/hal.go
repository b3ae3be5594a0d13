package hal

import "errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// LED is a minimal output pin abstraction.
type LED interface {
	High()
	Low()
}

// LEDID names one of the board LEDs.
type LEDID uint8

const (
	LEDGreen LEDID = iota
	LEDBlue
	LEDRed

	ledCount
)

func (id LEDID) String() string {
	switch id {
	case LEDGreen:
		return "green"
	case LEDBlue:
		return "blue"
	case LEDRed:
		return "red"
	default:
		return "unknown"
	}
}

var ErrNotImplemented = errors.New("not implemented")

// ErrHalted is returned (wrapped) by an app step once the system has halted.
// A runner with a window stops stepping and keeps showing the last frame.
var ErrHalted = errors.New("halted")

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// Time provides a base tick stream.
//
// On boards the kernel tick comes from the core timer instead and Time may be nil.
type Time interface {
	Ticks() <-chan uint64
}

// HAL provides the only contact point between the OS and the outside world.
type HAL interface {
	Logger() Logger
	LED(id LEDID) LED
	Display() Display
	Time() Time
}

type nullLED struct{}

func (nullLED) High() {}
func (nullLED) Low()  {}
