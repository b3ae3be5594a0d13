//go:build !tinygo

package hal

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-tty"
	"golang.org/x/sync/errgroup"
)

// StepConfig controls the single-step host runner.
type StepConfig struct {
	Host HostConfig
}

var errQuit = errors.New("quit")

// RunStep runs the OS with ticks injected from the terminal: space or enter
// delivers one tick, 't' ten, 'q' or Ctrl-C quits. step runs after each key.
func RunStep(ctx context.Context, newApp func(HAL) func() error, cfg StepConfig) error {
	cfg.Host.Manual = true
	h := newHost(cfg.Host)
	step := newApp(h)

	term, err := tty.Open()
	if err != nil {
		return fmt.Errorf("step: open tty: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	keys := make(chan rune)
	go func() {
		for {
			r, err := term.ReadRune()
			if err != nil {
				return
			}
			select {
			case keys <- r:
			case <-ctx.Done():
				return
			}
		}
	}()

	g.Go(func() error {
		<-ctx.Done()
		return term.Close()
	})
	g.Go(func() error {
		h.logger.WriteLineString("step: space/enter = 1 tick, t = 10 ticks, q = quit")
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case r := <-keys:
				n, quit := stepKey(r)
				if quit {
					return errQuit
				}
				if n == 0 {
					continue
				}
				h.t.stepN(n)
				if step != nil {
					if err := step(); err != nil {
						return err
					}
				}
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

// stepKey maps a key to a tick count.
func stepKey(r rune) (ticks uint64, quit bool) {
	switch r {
	case ' ', '\r', '\n':
		return 1, false
	case 't', 'T':
		return 10, false
	case 'q', 'Q', 0x03:
		return 0, true
	default:
		return 0, false
	}
}
