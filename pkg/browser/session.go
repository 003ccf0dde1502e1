// Package browser owns the lifecycle of a single controllable Chromium process
// and the pages opened inside it.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// Options configures how the browser process is launched
type Options struct {
	Headless       bool
	Bin            string   // explicit browser binary, empty means rod's lookup/download
	NoSandbox      bool     // required when running as root inside containers
	Flags          []string // extra chromium switches, without the leading dashes
	ViewportWidth  int
	ViewportHeight int
}

// DefaultOptions returns headless options with a 1280x720 viewport
func DefaultOptions() Options {
	return Options{
		Headless:       true,
		NoSandbox:      true,
		ViewportWidth:  1280,
		ViewportHeight: 720,
	}
}

// Session is one launched browser process plus its CDP connection
type Session struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	opts     Options

	closeOnce sync.Once
	closeErr  error
}

// Start launches a browser process and connects to it.
// On any error no process is left running.
func Start(ctx context.Context, opts Options) (*Session, error) {
	l := launcher.New().Context(ctx)

	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	l = l.Headless(opts.Headless)

	// Additional Chrome flags for Docker compatibility
	if opts.NoSandbox {
		l = l.Set("no-sandbox")
	}
	l = l.Set("disable-gpu")
	l = l.Set("disable-dev-shm-usage")
	for _, f := range opts.Flags {
		l = l.Set(flags.Flag(f))
	}

	url, err := l.Launch()
	if err != nil {
		reap(l)
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(url).NoDefaultDevice().Context(ctx)
	if err := b.Connect(); err != nil {
		reap(l)
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return &Session{launcher: l, browser: b, opts: opts}, nil
}

// reap kills the process if one was spawned and waits for it to exit.
// Cleanup blocks on process exit, so it must not run when nothing started.
func reap(l *launcher.Launcher) {
	if l.PID() == 0 {
		return
	}
	l.Kill()
	l.Cleanup()
}

// PID returns the browser process id
func (s *Session) PID() int {
	return s.launcher.PID()
}

// OpenPage creates a new blank tab bound to ctx
func (s *Session) OpenPage(ctx context.Context) (*Page, error) {
	p, err := s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	p = p.Context(ctx)

	if s.opts.ViewportWidth > 0 && s.opts.ViewportHeight > 0 {
		err = p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             s.opts.ViewportWidth,
			Height:            s.opts.ViewportHeight,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set viewport: %w", err)
		}
	}

	return &Page{page: p}, nil
}

// Close shuts the browser down and reaps its process. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if err := s.browser.Close(); err != nil {
			s.closeErr = fmt.Errorf("failed to close browser: %w", err)
		}
		// Kill regardless, a failed CDP close must not orphan the process
		reap(s.launcher)
	})
	return s.closeErr
}

// Page is a single tab inside a Session
type Page struct {
	page *rod.Page
}

// WithContext returns a copy of the page whose calls are bound to ctx
func (p *Page) WithContext(ctx context.Context) *Page {
	return &Page{page: p.page.Context(ctx)}
}

// Navigate loads url and blocks until the load event fires or timeout elapses.
// A zero timeout waits on the page context alone.
func (p *Page) Navigate(url string, timeout time.Duration) error {
	page := p.page
	if timeout > 0 {
		page = page.Timeout(timeout)
		defer page.CancelTimeout()
	}

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed waiting for load of %s: %w", url, err)
	}
	return nil
}

// WaitVisible blocks until an element matching selector is in the DOM and visible
func (p *Page) WaitVisible(selector string, timeout time.Duration) error {
	page := p.page
	if timeout > 0 {
		page = page.Timeout(timeout)
		defer page.CancelTimeout()
	}

	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %s: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("element not visible: %s: %w", selector, err)
	}
	return nil
}

// Screenshot captures the current viewport as PNG
func (p *Page) Screenshot() ([]byte, error) {
	data, err := p.page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return data, nil
}

// URL returns the page's current location, or empty if it cannot be read
func (p *Page) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}
