package updater

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bgpfu/junos-agent/internal/log"
)

// RunDaemon drives Run periodically every period, until an interrupt or
// termination signal is received (spec.md §4.5 "Daemon run"). Ticks never
// overlap: the loop waits for one tick's Run to finish (or panic-recover)
// before resetting the timer, so a slow run simply delays the next tick
// rather than stacking concurrent runs.
func RunDaemon(ctx context.Context, cfg Config, period time.Duration) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Logger.Info("context cancelled, shutting down")
			return nil
		case sig := <-sigCh:
			log.Logger.WithField("signal", sig.String()).Info("shutdown signal received")
			return nil
		case <-timer.C:
			runTick(ctx, cfg)
			timer.Reset(period)
		}
	}
}

// runTick runs exactly one Run under an errgroup so a panic inside Run is
// recovered and logged rather than taking down the daemon loop (spec.md
// §4.5 "on task-level panic, log and continue").
func runTick(ctx context.Context, cfg Config) {
	g, tickCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &panicError{Value: r}
			}
		}()
		return Run(tickCtx, cfg)
	})

	if err := g.Wait(); err != nil {
		log.Logger.WithField("error", err).Error("tick failed")
	}
}

type panicError struct {
	Value interface{}
}

func (e *panicError) Error() string {
	return "panic during tick: " + errString(e.Value)
}

func errString(v interface{}) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", v)
}
