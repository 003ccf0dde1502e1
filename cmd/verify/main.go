package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"dev/bravebird/page-verifier/pkg/browser"
	"dev/bravebird/page-verifier/pkg/config"
	"dev/bravebird/page-verifier/pkg/logging"
	"dev/bravebird/page-verifier/pkg/verify"
)

func main() {
	logger, err := logging.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// SIGINT/SIGTERM cancel the run; the runner still closes the browser
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, os.Stdout, verify.BrowserStarter); err != nil {
		logger.Error("Verification failed", zap.Error(err))
		logger.Sync()
		stop()
		os.Exit(1)
	}
}

// run performs one verification and reports the screenshot path on stdout.
// newStarter builds the browser starter from the resolved launch options.
func run(ctx context.Context, logger *zap.Logger, stdout io.Writer, newStarter func(browser.Options) verify.Starter) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	baseDir, err := config.ScriptDir()
	if err != nil {
		return err
	}
	output, err := cfg.OutputPath(baseDir)
	if err != nil {
		return err
	}

	target := cfg.Target
	target.Output = output

	runner := verify.NewRunner(newStarter(cfg.BrowserOptions()), verify.Options{
		Target:            target,
		NavigationTimeout: cfg.Timeouts.Navigation,
		WaitTimeout:       cfg.Timeouts.Wait,
	}, logger)

	path, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Screenshot saved to %s\n", path)
	return nil
}
