package app

import (
	"image/color"
	"strconv"
	"strings"
	"unicode/utf8"

	"miros/hal"
	"miros/rtos/kernel"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

// onFault reports a kernel fault on the logger and the display. With a
// display and a running kernel it shows the fault screen, stops the machine
// and never returns, so the screen stays up. Otherwise it returns and the
// kernel panics.
func (s *system) onFault(f *kernel.Fault) {
	s.fault.Store(f)

	if l := s.h.Logger(); l != nil {
		if len(f.Stack) > 0 {
			for _, line := range strings.Split(string(f.Stack), "\n") {
				if line == "" {
					continue
				}
				l.WriteLineString(line)
			}
		}
	}
	if red := s.h.LED(hal.LEDRed); red != nil {
		red.High()
	}

	if s.panel == nil || !s.started.Load() {
		return
	}
	s.fbMu.Lock()
	drawFault(s.panel.fb, f)
	s.fbMu.Unlock()

	if st, ok := s.m.(stopper); ok {
		st.Stop()
	}
	select {}
}

// stopper is implemented by machines that can be halted from software.
type stopper interface {
	Stop()
}

func drawFault(fb hal.Framebuffer, f *kernel.Fault) {
	fb.ClearRGB(255, 255, 255)

	lines := []string{
		"miros fault:",
		"kind: " + f.Kind.String(),
		"prio: " + strconv.Itoa(int(f.Priority)),
	}
	if len(f.Stack) > 0 {
		lines = append(lines, "stack:")
		for _, line := range strings.Split(string(f.Stack), "\n") {
			if line == "" {
				continue
			}
			lines = append(lines, strings.TrimSpace(line))
		}
	} else {
		lines = append(lines, "stack: unavailable")
	}

	d := &fbDisplayer{fb: fb}
	font := &proggy.TinySZ8pt7b
	fg := color.RGBA{R: 0, G: 0, B: 0, A: 255}

	_, outboxWidth := tinyfont.LineWidth(font, "0")
	cols := int16(fb.Width()-2*panelMargin) / int16(max(int(outboxWidth), 1))
	if cols <= 0 {
		cols = 1
	}

	y := int16(panelBaseline)
	for _, line := range lines {
		for len(line) > 0 {
			if int(y) >= fb.Height() {
				_ = fb.Present()
				return
			}
			chunk, rest := takeRunes(line, cols)
			tinyfont.WriteLine(d, font, panelMargin, y, chunk, fg)
			y += panelLineHeight
			line = strings.TrimLeft(rest, " ")
		}
	}
	_ = fb.Present()
}

func takeRunes(s string, n int16) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	if int64(len(s)) <= int64(n) {
		return s, ""
	}
	var i int
	var count int16
	for i < len(s) && count < n {
		_, size := utf8.DecodeRuneInString(s[i:])
		if size <= 0 {
			break
		}
		i += size
		count++
	}
	if i >= len(s) {
		return s, ""
	}
	return s[:i], s[i:]
}
