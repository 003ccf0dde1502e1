package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"dev/bravebird/page-verifier/pkg/models"
)

// TaskQueue is shared by the worker and the API that starts runs
const TaskQueue = "page-verification"

// HostTaskQueue names the queue polled only by one worker process
func HostTaskQueue(host, id string) string {
	return fmt.Sprintf("%s-%s-%s", TaskQueue, host, id)
}

// ProgressQuery is the query name that returns the current VerificationResult
const ProgressQuery = "getProgress"

const defaultActivityTimeout = 120

// A session-bound activity waits at most this long for its worker to pick it up
const sessionScheduleToStartTimeout = time.Minute

// VerificationWorkflow runs one verification: launch, navigate, wait for the
// marker, screenshot. The browser is closed on every path once launched.
func VerificationWorkflow(ctx workflow.Context, input models.VerificationInput) (result models.VerificationResult, err error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting verification workflow", "runID", input.RunID, "url", input.Target.URL)

	result = models.VerificationResult{
		RunID:  input.RunID,
		Status: models.StatusRunning,
		Steps:  make([]models.StepResult, 0, 5),
	}

	// Register query handler for real-time progress
	err = workflow.SetQueryHandler(ctx, ProgressQuery, func() (models.VerificationResult, error) {
		return result, nil
	})
	if err != nil {
		logger.Error("Failed to register query handler", "error", err)
	}

	startTime := workflow.Now(ctx)

	timeout := input.ActivityTimeoutSec
	if timeout <= 0 {
		timeout = defaultActivityTimeout
	}

	// A verification is never retried
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: time.Duration(timeout) * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	step := func(name string, fn func() error) error {
		began := workflow.Now(ctx)
		stepErr := fn()
		sr := models.StepResult{
			Step:     name,
			Status:   models.StatusSuccess,
			Duration: workflow.Now(ctx).Sub(began).Milliseconds(),
		}
		if stepErr != nil {
			sr.Status = models.StatusFailed
			if temporal.IsCanceledError(stepErr) {
				sr.Status = models.StatusCanceled
			}
			sr.ErrorMessage = stepErr.Error()
			// The first failure decides the outcome, teardown errors after it are only recorded
			if result.Status == models.StatusRunning {
				result.Status = sr.Status
				result.ErrorMessage = fmt.Sprintf("%s %s: %v", name, sr.Status, stepErr)
			}
			logger.Error("Verification step failed", "step", name, "error", stepErr)
		}
		result.Steps = append(result.Steps, sr)
		return stepErr
	}

	finish := func() {
		result.TotalDuration = workflow.Now(ctx).Sub(startTime).Milliseconds()
		if result.Status == models.StatusRunning {
			result.Status = models.StatusSuccess
		}
		logger.Info("Verification completed", "status", result.Status, "duration", result.TotalDuration)
	}

	var session BrowserSession
	if step(models.StepStart, func() error {
		return workflow.ExecuteActivity(ctx, "InitializeBrowserActivity", BrowserInitInput{
			Headless: input.Headless,
		}).Get(ctx, &session)
	}) != nil {
		finish()
		if result.Status == models.StatusCanceled {
			return result, ctx.Err()
		}
		return result, nil
	}

	// Every later activity needs the process that holds the browser
	ctx = workflow.WithActivityOptions(ctx, sessionActivityOptions(activityOptions, session))

	defer func() {
		// Cleanup must run even when the workflow was canceled
		closeCtx, cancel := workflow.NewDisconnectedContext(ctx)
		defer cancel()
		_ = step(models.StepTeardown, func() error {
			return workflow.ExecuteActivity(closeCtx, "CloseBrowserActivity", session.SessionID).Get(closeCtx, nil)
		})
		finish()
		// Report cancellation to Temporal once the browser is released
		if cerr := ctx.Err(); cerr != nil && result.Status == models.StatusCanceled {
			err = cerr
		}
	}()

	if step(models.StepNavigate, func() error {
		return workflow.ExecuteActivity(ctx, "NavigateActivity", NavigateInput{
			SessionID:      session.SessionID,
			URL:            input.Target.URL,
			TimeoutSeconds: input.NavigationTimeout,
		}).Get(ctx, nil)
	}) != nil {
		return result, nil
	}

	if step(models.StepWait, func() error {
		return workflow.ExecuteActivity(ctx, "WaitForSelectorActivity", WaitInput{
			SessionID:      session.SessionID,
			Selector:       input.Target.Selector,
			TimeoutSeconds: input.WaitTimeout,
		}).Get(ctx, nil)
	}) != nil {
		return result, nil
	}

	var screenshotPath string
	if step(models.StepCapture, func() error {
		return workflow.ExecuteActivity(ctx, "TakeScreenshotActivity", ScreenshotInput{
			SessionID: session.SessionID,
			Filename:  screenshotName(input),
		}).Get(ctx, &screenshotPath)
	}) != nil {
		return result, nil
	}
	result.ScreenshotPath = screenshotPath

	return result, nil
}

// sessionActivityOptions pins activities to the task queue of the worker that
// launched the session. Without one the shared queue is kept.
func sessionActivityOptions(opts workflow.ActivityOptions, session BrowserSession) workflow.ActivityOptions {
	if session.TaskQueue == "" {
		return opts
	}
	opts.TaskQueue = session.TaskQueue
	opts.ScheduleToStartTimeout = sessionScheduleToStartTimeout
	return opts
}

func screenshotName(input models.VerificationInput) string {
	if input.RunID != "" {
		return input.RunID + ".png"
	}
	return models.DefaultScreenshotName
}

// BrowserSession holds browser session information
type BrowserSession struct {
	SessionID string `json:"session_id"`
	PageURL   string `json:"page_url"`
	TaskQueue string `json:"task_queue,omitempty"` // worker-specific queue owning the session
}

// BrowserInitInput is the input for browser initialization
type BrowserInitInput struct {
	Headless bool `json:"headless"`
}

// NavigateInput is the input for loading the target page
type NavigateInput struct {
	SessionID      string `json:"session_id"`
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// WaitInput is the input for waiting on the marker element
type WaitInput struct {
	SessionID      string `json:"session_id"`
	Selector       string `json:"selector"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ScreenshotInput is the input for taking a screenshot
type ScreenshotInput struct {
	SessionID string `json:"session_id"`
	Filename  string `json:"filename"`
}

// ParallelVerificationInput represents input for parallel verification
type ParallelVerificationInput struct {
	Runs []models.VerificationInput `json:"runs"`
}

// ParallelVerificationResult represents the result of parallel execution
type ParallelVerificationResult struct {
	Results []models.VerificationResult `json:"results"`
}

// ParallelVerificationWorkflow executes several verifications as child workflows
func ParallelVerificationWorkflow(ctx workflow.Context, input ParallelVerificationInput) (ParallelVerificationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting parallel verification", "runCount", len(input.Runs))

	result := ParallelVerificationResult{
		Results: make([]models.VerificationResult, len(input.Runs)),
	}

	parentID := workflow.GetInfo(ctx).WorkflowExecution.ID
	selector := workflow.NewSelector(ctx)

	for i, run := range input.Runs {
		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID: fmt.Sprintf("%s-child-%d", parentID, i),
		})
		future := workflow.ExecuteChildWorkflow(childCtx, VerificationWorkflow, run)

		idx := i
		runID := run.RunID
		selector.AddFuture(future, func(f workflow.Future) {
			var childResult models.VerificationResult
			if err := f.Get(ctx, &childResult); err != nil {
				status := models.StatusFailed
				if temporal.IsCanceledError(err) {
					status = models.StatusCanceled
				}
				childResult = models.VerificationResult{
					RunID:        runID,
					Status:       status,
					ErrorMessage: err.Error(),
				}
			}
			result.Results[idx] = childResult
		})
	}

	// Wait for all child workflows to complete
	for range input.Runs {
		selector.Select(ctx)
	}

	logger.Info("Parallel verification completed", "totalRuns", len(input.Runs))
	return result, nil
}
