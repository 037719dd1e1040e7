// cmd/seckillctl is the operator CLI: publish vouchers into the admission
// gate, warm cached shops and inspect the order stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"flash-sale/internal/app"
	"flash-sale/internal/config"
	"flash-sale/internal/logging"
)

func main() {
	os.Exit(submain(context.Background()))
}

func submain(ctx context.Context) int {
	cmd, closeInfra := newRootCommand(openFromConfig)
	defer func() { _ = closeInfra() }()
	ctx = withSignalCancel(ctx)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

// openFromConfig loads the same configuration the services use.
func openFromConfig(ctx context.Context, logLevel string) (*app.Infra, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.Log.Level = logLevel
	cfg.Log.Format = "console"
	logger, _, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg, logger)
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
