//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"miros/app"
	"miros/hal"
	"miros/rtos/sim"
)

func main() {
	var cfg hal.HeadlessConfig
	var step bool
	var tickHz int
	flag.BoolVar(&cfg.Enabled, "headless", false, "Run without a window.")
	flag.IntVar(&cfg.Hz, "hz", 60, "Frame rate in headless mode.")
	flag.Uint64Var(&cfg.Ticks, "ticks", 0, "Stop after N frames in headless mode (0 = run forever).")
	flag.IntVar(&tickHz, "tick-hz", 100, "Kernel tick rate.")
	flag.BoolVar(&step, "step", false, "Deliver ticks from the keyboard, one per key press.")
	flag.BoolVar(&cfg.Host.Quiet, "quiet", false, "Do not log LED transitions.")
	flag.Parse()

	cfg.Host.TickHz = tickHz
	newApp := func(h hal.HAL) func() error {
		cpu := sim.New(sim.Config{Ticks: h.Time().Ticks()})
		return app.New(h, cpu, app.Config{TicksPerSec: uint32(tickHz)})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch {
	case step:
		err = hal.RunStep(ctx, newApp, hal.StepConfig{Host: cfg.Host})
	case cfg.Enabled:
		err = hal.RunHeadless(ctx, newApp, cfg)
	default:
		err = hal.RunWindow(newApp, cfg.Host)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
