package activities

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.temporal.io/sdk/activity"

	"dev/bravebird/page-verifier/pkg/browser"
	"dev/bravebird/page-verifier/pkg/temporal/workflows"
	"dev/bravebird/page-verifier/pkg/verify"
)

// Activities holds activity implementations.
// HostTaskQueue is the queue only this process polls; sessions in Pool are
// reachable through it alone.
type Activities struct {
	Pool           *browser.Pool
	ScreenshotDir  string
	BrowserOptions browser.Options
	HostTaskQueue  string
}

// NewActivities creates new activities
func NewActivities(pool *browser.Pool, screenshotDir string, opts browser.Options, hostTaskQueue string) *Activities {
	return &Activities{
		Pool:           pool,
		ScreenshotDir:  screenshotDir,
		BrowserOptions: opts,
		HostTaskQueue:  hostTaskQueue,
	}
}

// InitializeBrowserActivity launches a browser, opens a page and parks both in the pool
func (a *Activities) InitializeBrowserActivity(ctx context.Context, input workflows.BrowserInitInput) (workflows.BrowserSession, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Initializing browser session", "headless", input.Headless)

	opts := a.BrowserOptions
	opts.Headless = input.Headless

	// The session outlives this activity, so it must not inherit its context
	session, err := browser.Start(context.Background(), opts)
	if err != nil {
		return workflows.BrowserSession{}, err
	}

	page, err := session.OpenPage(context.Background())
	if err != nil {
		session.Close()
		return workflows.BrowserSession{}, err
	}

	sessionID := a.Pool.Put(session, page)
	logger.Info("Browser session created", "sessionID", sessionID, "pid", session.PID())

	return workflows.BrowserSession{
		SessionID: sessionID,
		PageURL:   page.URL(),
		TaskQueue: a.HostTaskQueue,
	}, nil
}

// CloseBrowserActivity closes a browser session
func (a *Activities) CloseBrowserActivity(ctx context.Context, sessionID string) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Closing browser session", "sessionID", sessionID)

	return a.Pool.Close(sessionID)
}

// NavigateActivity loads the target url and waits for the load event
func (a *Activities) NavigateActivity(ctx context.Context, input workflows.NavigateInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Navigating", "sessionID", input.SessionID, "url", input.URL)

	session, err := a.Pool.Get(input.SessionID)
	if err != nil {
		return fmt.Errorf("%w: %s", err, input.SessionID)
	}

	return session.Page.WithContext(ctx).Navigate(input.URL, seconds(input.TimeoutSeconds))
}

// WaitForSelectorActivity blocks until the marker element is visible
func (a *Activities) WaitForSelectorActivity(ctx context.Context, input workflows.WaitInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Waiting for selector", "sessionID", input.SessionID, "selector", input.Selector)

	session, err := a.Pool.Get(input.SessionID)
	if err != nil {
		return fmt.Errorf("%w: %s", err, input.SessionID)
	}

	return session.Page.WithContext(ctx).WaitVisible(input.Selector, seconds(input.TimeoutSeconds))
}

// TakeScreenshotActivity takes a screenshot
func (a *Activities) TakeScreenshotActivity(ctx context.Context, input workflows.ScreenshotInput) (string, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Taking screenshot", "sessionID", input.SessionID)

	session, err := a.Pool.Get(input.SessionID)
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, input.SessionID)
	}

	// Ensure screenshot directory exists
	if err := os.MkdirAll(a.ScreenshotDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshot dir: %w", err)
	}

	// Only the base name is honored, callers cannot write outside ScreenshotDir
	screenshotPath := filepath.Join(a.ScreenshotDir, filepath.Base(input.Filename))

	data, err := session.Page.WithContext(ctx).Screenshot()
	if err != nil {
		return "", err
	}

	if err := verify.SaveScreenshot(screenshotPath, data); err != nil {
		return "", err
	}

	return screenshotPath, nil
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
