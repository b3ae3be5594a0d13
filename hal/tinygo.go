//go:build tinygo && baremetal

package hal

import "machine"

type tinyGoHAL struct {
	logger *uartLogger
	leds   [ledCount]LED
}

// New returns the board HAL implementation.
//
// UART: the board default UART, 115200 8N1. Only machine.LED is wired; it
// stands in for the green LED and the others are no-ops. The board has no
// framebuffer and the kernel tick comes from SysTick, so Display and Time
// are nil.
func New() HAL {
	uart := machine.DefaultUART
	uart.Configure(machine.UARTConfig{BaudRate: 115200})

	ledPin := machine.LED
	ledPin.Configure(machine.PinConfig{Mode: machine.PinOutput})

	h := &tinyGoHAL{logger: &uartLogger{uart: uart}}
	for id := range h.leds {
		h.leds[id] = nullLED{}
	}
	h.leds[LEDGreen] = &pinLED{pin: ledPin}
	return h
}

func (h *tinyGoHAL) Logger() Logger   { return h.logger }
func (h *tinyGoHAL) Display() Display { return nil }
func (h *tinyGoHAL) Time() Time       { return nil }

func (h *tinyGoHAL) LED(id LEDID) LED {
	if id >= ledCount {
		return nullLED{}
	}
	return h.leds[id]
}

type uartLogger struct {
	uart *machine.UART
}

func (l *uartLogger) WriteLineString(s string) {
	for i := 0; i < len(s); i++ {
		l.uart.WriteByte(s[i])
	}
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}

func (l *uartLogger) WriteLineBytes(b []byte) {
	for i := 0; i < len(b); i++ {
		l.uart.WriteByte(b[i])
	}
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}

type pinLED struct {
	pin machine.Pin
}

func (l *pinLED) High() { l.pin.High() }
func (l *pinLED) Low()  { l.pin.Low() }
