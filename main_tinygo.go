//go:build tinygo && baremetal && cortexm

package main

import (
	"miros/app"
	"miros/hal"
	"miros/rtos/cortexm"
)

func main() {
	app.Run(hal.New(), cortexm.New(), app.Config{TicksPerSec: 100})
}
