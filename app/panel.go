package app

import (
	"fmt"
	"image/color"
	"sync/atomic"

	"miros/hal"
	"miros/internal/buildinfo"
	"miros/rtos/kernel"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

const (
	panelLineHeight = 10
	panelBaseline   = 8
	panelMargin     = 2
)

var (
	panelBG    = color.RGBA{R: 0x10, G: 0x10, B: 0x18, A: 0xFF}
	panelFG    = color.RGBA{R: 0xE0, G: 0xE0, B: 0xE0, A: 0xFF}
	panelGreen = color.RGBA{R: 0x30, G: 0xE0, B: 0x30, A: 0xFF}
	panelBlue  = color.RGBA{R: 0x40, G: 0x80, B: 0xFF, A: 0xFF}
	panelOff   = color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xFF}
)

// trackedLED forwards to an LED and remembers its state for the panel.
type trackedLED struct {
	led hal.LED
	on  atomic.Bool
}

func (l *trackedLED) High() {
	l.on.Store(true)
	l.led.High()
}

func (l *trackedLED) Low() {
	l.on.Store(false)
	l.led.Low()
}

// panel renders scheduler snapshots as fixed-layout text.
type panel struct {
	fb   hal.Framebuffer
	d    drivers.Displayer
	font tinyfont.Fonter
}

func newPanel(fb hal.Framebuffer) *panel {
	if fb == nil || fb.Format() != hal.PixelFormatRGB565 {
		return nil
	}
	return &panel{
		fb:   fb,
		d:    &fbDisplayer{fb: fb},
		font: &proggy.TinySZ8pt7b,
	}
}

func (p *panel) draw(s *kernel.Snapshot, green, blue bool) error {
	p.fb.ClearRGB(panelBG.R, panelBG.G, panelBG.B)

	y := int16(panelBaseline)
	for _, line := range panelLines(s) {
		if int(y) >= p.fb.Height() {
			break
		}
		tinyfont.WriteLine(p.d, p.font, panelMargin, y, line, panelFG)
		y += panelLineHeight
	}

	w := int16(p.fb.Width())
	p.lamp(w-24, panelMargin, green, panelGreen)
	p.lamp(w-12, panelMargin, blue, panelBlue)
	return p.d.Display()
}

func (p *panel) lamp(x, y int16, on bool, c color.RGBA) {
	if !on {
		c = panelOff
	}
	for dy := int16(0); dy < 8; dy++ {
		for dx := int16(0); dx < 8; dx++ {
			p.d.SetPixel(x+dx, y+dy, c)
		}
	}
}

// panelLines formats a snapshot: a header, the scheduler sets, then one row
// per registered thread with its countdown and untouched stack words.
func panelLines(s *kernel.Snapshot) []string {
	cur := "-"
	if s.Current >= 0 {
		cur = fmt.Sprint(s.Current)
	}
	lines := []string{
		"miros " + buildinfo.Short(),
		fmt.Sprintf("tick %d sw %d", s.Ticks, s.Switches),
		fmt.Sprintf("cur %s rdy %08x", cur, s.Ready),
		fmt.Sprintf("dly %08x", s.Delayed),
		"pr  wait  free",
	}
	for p, t := range s.Threads {
		if !t.Registered {
			continue
		}
		wait := "-"
		if t.Timeout > 0 {
			wait = fmt.Sprint(t.Timeout)
		}
		lines = append(lines, fmt.Sprintf("%2d  %-4s  %d", p, wait, t.StackFree))
	}
	return lines
}
