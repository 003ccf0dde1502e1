// Package config resolves where and how a verification runs.
//
// With nothing set the runner looks at http://localhost:8080/, waits for
// ".container" and writes verification.png next to the executable. A YAML
// file named by VERIFY_CONFIG and a handful of env vars can override that.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dev/bravebird/page-verifier/pkg/browser"
	"dev/bravebird/page-verifier/pkg/models"
)

// Environment variables read by Load
const (
	EnvConfigFile  = "VERIFY_CONFIG"
	EnvURL         = "VERIFY_URL"
	EnvSelector    = "VERIFY_SELECTOR"
	EnvOutput      = "VERIFY_OUTPUT"
	EnvChromeBin   = "CHROME_BIN"
	EnvNavTimeout  = "VERIFY_NAV_TIMEOUT"
	EnvWaitTimeout = "VERIFY_WAIT_TIMEOUT"
)

// DefaultTimeout bounds both navigation and the readiness wait
const DefaultTimeout = 30 * time.Second

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid config")

// Config is the full runner configuration
type Config struct {
	Target   models.Target `yaml:"target"`
	Browser  Browser       `yaml:"browser"`
	Timeouts Timeouts      `yaml:"timeouts"`
}

// Browser holds launch settings
type Browser struct {
	Headless  bool     `yaml:"headless"`
	Bin       string   `yaml:"bin"`
	NoSandbox bool     `yaml:"no_sandbox"`
	Flags     []string `yaml:"flags"`
	Width     int      `yaml:"viewport_width"`
	Height    int      `yaml:"viewport_height"`
}

// Timeouts bound the two blocking page operations
type Timeouts struct {
	Navigation time.Duration `yaml:"navigation"`
	Wait       time.Duration `yaml:"wait"`
}

// Default returns the zero-input configuration
func Default() Config {
	opts := browser.DefaultOptions()
	return Config{
		Target: models.DefaultTarget(),
		Browser: Browser{
			Headless:  opts.Headless,
			NoSandbox: opts.NoSandbox,
			Width:     opts.ViewportWidth,
			Height:    opts.ViewportHeight,
		},
		Timeouts: Timeouts{
			Navigation: DefaultTimeout,
			Wait:       DefaultTimeout,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file and env
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	// Decoding onto the defaults keeps any key the file leaves out
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvURL); v != "" {
		c.Target.URL = v
	}
	if v := os.Getenv(EnvSelector); v != "" {
		c.Target.Selector = v
	}
	if v := os.Getenv(EnvOutput); v != "" {
		c.Target.Output = v
	}
	if v := os.Getenv(EnvChromeBin); v != "" {
		c.Browser.Bin = v
	}

	var err error
	if c.Timeouts.Navigation, err = durationEnv(EnvNavTimeout, c.Timeouts.Navigation); err != nil {
		return err
	}
	if c.Timeouts.Wait, err = durationEnv(EnvWaitTimeout, c.Timeouts.Wait); err != nil {
		return err
	}
	return nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return d, nil
}

// Validate checks the fields a run cannot do without
func (c Config) Validate() error {
	if c.Target.URL == "" {
		return fmt.Errorf("%w: target url is empty", ErrInvalid)
	}
	u, err := url.Parse(c.Target.URL)
	if err != nil {
		return fmt.Errorf("%w: target url: %v", ErrInvalid, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: target url must be http or https, got %q", ErrInvalid, u.Scheme)
	}
	if c.Target.Selector == "" {
		return fmt.Errorf("%w: selector is empty", ErrInvalid)
	}
	if c.Target.Output == "" {
		return fmt.Errorf("%w: output path is empty", ErrInvalid)
	}
	if c.Timeouts.Navigation <= 0 || c.Timeouts.Wait <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalid)
	}
	return nil
}

// BrowserOptions converts the launch settings for the browser package
func (c Config) BrowserOptions() browser.Options {
	return browser.Options{
		Headless:       c.Browser.Headless,
		Bin:            c.Browser.Bin,
		NoSandbox:      c.Browser.NoSandbox,
		Flags:          c.Browser.Flags,
		ViewportWidth:  c.Browser.Width,
		ViewportHeight: c.Browser.Height,
	}
}

// OutputPath returns the absolute screenshot path. Relative outputs are
// anchored at baseDir, which callers set to ScriptDir.
func (c Config) OutputPath(baseDir string) (string, error) {
	p := c.Target.Output
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output path: %w", err)
	}
	return abs, nil
}

// ScriptDir returns the directory the runner treats as its own: the one
// holding the binary, symlinks resolved. A binary built by `go run` lives in
// a go-build temp dir that is removed on exit, so the working directory is
// used instead.
func ScriptDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable: %w", err)
	}
	return scriptDir(exe, buildRoots(), os.Getwd)
}

func scriptDir(exe string, roots []string, getwd func() (string, error)) (string, error) {
	dir := filepath.Dir(exe)
	if !isGoBuildDir(dir, roots) {
		return dir, nil
	}
	wd, err := getwd()
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}
	return wd, nil
}

// buildRoots lists where the go tool may place temporary binaries
func buildRoots() []string {
	var roots []string
	for _, d := range []string{os.Getenv("GOTMPDIR"), os.TempDir()} {
		if d == "" {
			continue
		}
		if resolved, err := filepath.EvalSymlinks(d); err == nil {
			d = resolved
		}
		roots = append(roots, d)
	}
	return roots
}

// isGoBuildDir reports whether dir sits below a go-build* directory inside one of roots
func isGoBuildDir(dir string, roots []string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, dir)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		for _, part := range strings.Split(rel, string(filepath.Separator)) {
			if strings.HasPrefix(part, "go-build") {
				return true
			}
		}
	}
	return false
}
