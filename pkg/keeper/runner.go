package keeper

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/core-tools/hsu-keeper/pkg/config"
	"github.com/core-tools/hsu-keeper/pkg/logging"
)

// RunWithSignals runs the keeper until SIGINT/SIGTERM, or until runDuration
// elapses when it is positive.
func RunWithSignals(runDuration time.Duration, cfg config.Config, logger logging.Logger) error {
	logger.Infof("Keeper runner starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if runDuration > 0 {
		logger.Infof("Using RUN DURATION of %v", runDuration)
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, runDuration)
		defer timeoutCancel()
	}

	k, err := NewKeeper(cfg, Options{}, logger)
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig) // Unix signals not implemented on Windows
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}
	defer signal.Stop(sig)

	go func() {
		select {
		case receivedSignal := <-sig:
			logger.Infof("Keeper runner received signal: %v", receivedSignal)
			cancel()
		case <-ctx.Done():
		}
	}()

	err = k.Run(ctx)

	logger.Infof("Keeper runner stopped")
	return err
}
