package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"dev/bravebird/page-verifier/pkg/browser"
	"dev/bravebird/page-verifier/pkg/logging"
	"dev/bravebird/page-verifier/pkg/temporal/activities"
	"dev/bravebird/page-verifier/pkg/temporal/workflows"
)

func main() {
	logger, err := logging.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Get Temporal host from environment
	temporalHost := getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")

	// Create Temporal client
	c, err := client.Dial(client.Options{
		HostPort: temporalHost,
		Logger:   logging.NewTemporalLogger(logger),
	})
	if err != nil {
		logger.Fatal("Failed to create Temporal client", zap.Error(err))
	}
	defer c.Close()

	// Screenshot directory
	screenshotDir := getEnvOrDefault("SCREENSHOT_DIR", "/tmp/screenshots")

	opts := browser.DefaultOptions()
	opts.Bin = os.Getenv("CHROME_BIN")

	// Sessions live in this process, so every activity of a run must land here
	pool := browser.NewPool()
	defer func() {
		if err := pool.CloseAll(); err != nil {
			logger.Warn("Failed to close browser sessions", zap.Error(err))
		}
	}()

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	hostQueue := workflows.HostTaskQueue(host, uuid.New().String())

	acts := activities.NewActivities(pool, screenshotDir, opts, hostQueue)

	// Session-bound activities are polled only from this process's queue
	hw := worker.New(c, hostQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: 5,
	})
	hw.RegisterActivity(acts.CloseBrowserActivity)
	hw.RegisterActivity(acts.NavigateActivity)
	hw.RegisterActivity(acts.WaitForSelectorActivity)
	hw.RegisterActivity(acts.TakeScreenshotActivity)

	if err := hw.Start(); err != nil {
		logger.Fatal("Failed to start host worker", zap.Error(err))
	}
	defer hw.Stop()

	// Create worker
	w := worker.New(c, workflows.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     5,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	// Register workflows
	w.RegisterWorkflow(workflows.VerificationWorkflow)
	w.RegisterWorkflow(workflows.ParallelVerificationWorkflow)

	// Launching is the only activity any worker may take
	w.RegisterActivity(acts.InitializeBrowserActivity)

	logger.Info("Starting Temporal worker",
		zap.String("taskQueue", workflows.TaskQueue),
		zap.String("hostTaskQueue", hostQueue),
		zap.String("temporalHost", temporalHost),
		zap.String("screenshotDir", screenshotDir))

	// Start worker
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Error("Worker failed", zap.Error(err))
		return
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
