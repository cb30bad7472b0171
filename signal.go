package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// shutdownContext returns a context canceled by the first SIGINT/SIGTERM.
// In-flight operations then finish or abort and the run summary is still
// printed. A second signal exits immediately. The returned stop function
// cancels the context and returns once the signal handler is released;
// call it when the command returns.
func shutdownContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	released := make(chan struct{})
	exited := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer close(exited)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, stopping after in-flight operations",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit",
				slog.String("signal", sig.String()),
			)
			os.Exit(1)
		case <-released:
			return
		case <-parent.Done():
			return
		}
	}()

	var once sync.Once

	stop := func() {
		once.Do(func() {
			cancel()
			close(released)
			<-exited
		})
	}

	return ctx, stop
}
