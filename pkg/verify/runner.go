// Package verify runs the fixed page verification sequence: launch a browser,
// open a page, navigate, wait for the marker element, capture a screenshot
// and release the browser.
package verify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"dev/bravebird/page-verifier/pkg/browser"
	"dev/bravebird/page-verifier/pkg/models"
)

// Session is an exclusively owned browser instance
type Session interface {
	OpenPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a tab the runner drives
type Page interface {
	Navigate(url string, timeout time.Duration) error
	WaitVisible(selector string, timeout time.Duration) error
	Screenshot() ([]byte, error)
}

// Starter acquires a new Session
type Starter func(ctx context.Context) (Session, error)

// StepError reports which step of the sequence failed
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Options holds everything a single run needs
type Options struct {
	Target            models.Target // Target.Output must already be an absolute path
	NavigationTimeout time.Duration
	WaitTimeout       time.Duration
}

// Runner performs the verification sequence
type Runner struct {
	start  Starter
	opts   Options
	logger *zap.Logger
}

// NewRunner creates a runner. A nil logger discards logs.
func NewRunner(start Starter, opts Options, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		start:  start,
		opts:   opts,
		logger: logger,
	}
}

// Run executes the sequence and returns the screenshot path.
// The session is closed on every path once it has been started.
func (r *Runner) Run(ctx context.Context) (path string, err error) {
	t := r.opts.Target
	log := r.logger.With(zap.String("url", t.URL), zap.String("selector", t.Selector))

	log.Info("Starting browser session")
	session, err := r.start(ctx)
	if err != nil {
		return "", &StepError{Step: models.StepStart, Err: err}
	}
	defer func() {
		log.Info("Closing browser session")
		if cerr := session.Close(); cerr != nil {
			if err == nil {
				err = &StepError{Step: models.StepTeardown, Err: cerr}
				path = ""
				return
			}
			log.Warn("Teardown failed after earlier error", zap.Error(cerr))
		}
	}()

	page, err := session.OpenPage(ctx)
	if err != nil {
		return "", &StepError{Step: models.StepOpenPage, Err: err}
	}

	log.Info("Navigating", zap.Duration("timeout", r.opts.NavigationTimeout))
	if err := page.Navigate(t.URL, r.opts.NavigationTimeout); err != nil {
		return "", &StepError{Step: models.StepNavigate, Err: err}
	}

	log.Info("Waiting for marker element", zap.Duration("timeout", r.opts.WaitTimeout))
	if err := page.WaitVisible(t.Selector, r.opts.WaitTimeout); err != nil {
		return "", &StepError{Step: models.StepWait, Err: err}
	}

	data, err := page.Screenshot()
	if err != nil {
		return "", &StepError{Step: models.StepCapture, Err: err}
	}
	if err := SaveScreenshot(t.Output, data); err != nil {
		return "", &StepError{Step: models.StepCapture, Err: err}
	}

	log.Info("Screenshot captured", zap.String("path", t.Output), zap.Int("bytes", len(data)))
	return t.Output, nil
}

// SaveScreenshot writes data to path, replacing any existing file.
// The bytes land in a sibling temp file first so a failed write never
// leaves a truncated image behind.
func SaveScreenshot(path string, data []byte) error {
	if len(data) == 0 {
		return errors.New("screenshot is empty")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".verification-*.png")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod screenshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to save screenshot: %w", err)
	}
	return nil
}

// BrowserStarter returns a Starter backed by a real rod browser
func BrowserStarter(opts browser.Options) Starter {
	return func(ctx context.Context) (Session, error) {
		s, err := browser.Start(ctx, opts)
		if err != nil {
			return nil, err
		}
		return rodSession{s}, nil
	}
}

type rodSession struct {
	*browser.Session
}

func (s rodSession) OpenPage(ctx context.Context) (Page, error) {
	p, err := s.Session.OpenPage(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}
