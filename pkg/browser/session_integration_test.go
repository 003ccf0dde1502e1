//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/page-verifier/pkg/browser"
)

func TestSessionLifecycle_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `<html><body><main class="container">hello</main><p class="hidden" style="display:none">x</p></body></html>`)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := browser.DefaultOptions()
	opts.Bin = os.Getenv("CHROME_BIN")

	s, err := browser.Start(ctx, opts)
	require.NoError(t, err, "Failed to start browser")
	pid := s.PID()
	require.NotZero(t, pid)

	page, err := s.OpenPage(ctx)
	require.NoError(t, err)

	require.NoError(t, page.Navigate(ts.URL, 10*time.Second))
	assert.Contains(t, page.URL(), ts.URL)

	require.NoError(t, page.WaitVisible(".container", 5*time.Second))
	assert.Error(t, page.WaitVisible(".hidden", time.Second), "hidden element must time out")

	data, err := page.Screenshot()
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data[:4])

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close(), "second close is a no-op")

	assert.Eventually(t, func() bool {
		return syscall.Kill(pid, 0) != nil
	}, 10*time.Second, 100*time.Millisecond, "browser process still alive")
}

func TestStartWithMissingBinary_Integration(t *testing.T) {
	opts := browser.DefaultOptions()
	opts.Bin = "/nonexistent/chromium"

	_, err := browser.Start(context.Background(), opts)
	assert.Error(t, err)
}
