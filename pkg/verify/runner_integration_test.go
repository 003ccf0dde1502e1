//go:build integration

package verify_test

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/page-verifier/pkg/browser"
	"dev/bravebird/page-verifier/pkg/models"
	"dev/bravebird/page-verifier/pkg/verify"
)

const readyPage = `<html><body><div class="container"><h1>Quiz</h1></div></body></html>`

// delayedPage renders the container from script, like a client-side app does
const delayedPage = `<html><body><div id="root"></div><script>
setTimeout(function () {
  var d = document.createElement("div");
  d.className = "container";
  d.textContent = "ready";
  document.getElementById("root").appendChild(d);
}, 300);
</script></body></html>`

const neverReadyPage = `<html><body><div class="loading">...</div></body></html>`

func serve(t *testing.T, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func processGone(pid int) bool {
	return syscall.Kill(pid, 0) != nil
}

// pidStarter wraps BrowserStarter so the test can see the launched pid
func pidStarter(pids *[]int) verify.Starter {
	opts := browser.DefaultOptions()
	opts.Bin = os.Getenv("CHROME_BIN")
	base := verify.BrowserStarter(opts)
	return func(ctx context.Context) (verify.Session, error) {
		s, err := base(ctx)
		if err != nil {
			return nil, err
		}
		if p, ok := s.(interface{ PID() int }); ok {
			*pids = append(*pids, p.PID())
		}
		return s, nil
	}
}

func run(t *testing.T, url string, wait time.Duration) (string, []int, error) {
	t.Helper()
	out := filepath.Join(t.TempDir(), models.DefaultScreenshotName)
	var pids []int
	r := verify.NewRunner(pidStarter(&pids), verify.Options{
		Target: models.Target{
			URL:      url,
			Selector: models.DefaultMarkerSelector,
			Output:   out,
		},
		NavigationTimeout: 10 * time.Second,
		WaitTimeout:       wait,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	path, err := r.Run(ctx)
	if err != nil {
		path = out
	}
	return path, pids, err
}

func TestRunAgainstHealthyServer(t *testing.T) {
	for name, body := range map[string]string{"static": readyPage, "delayed": delayedPage} {
		t.Run(name, func(t *testing.T) {
			ts := serve(t, body)

			path, pids, err := run(t, ts.URL+"/", 10*time.Second)
			require.NoError(t, err)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			require.NotEmpty(t, data)

			img, err := png.Decode(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Greater(t, img.Bounds().Dx(), 0)

			require.Len(t, pids, 1)
			assert.Eventually(t, func() bool { return processGone(pids[0]) }, 10*time.Second, 100*time.Millisecond)
		})
	}
}

func TestRunWithoutServer(t *testing.T) {
	// Grab a free port and release it so nothing is listening there
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL + "/"
	ts.Close()

	path, pids, err := run(t, url, 5*time.Second)
	require.Error(t, err)

	var stepErr *verify.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, models.StepNavigate, stepErr.Step)

	assert.NoFileExists(t, path)
	require.Len(t, pids, 1)
	assert.Eventually(t, func() bool { return processGone(pids[0]) }, 10*time.Second, 100*time.Millisecond)
}

func TestRunMarkerNeverRenders(t *testing.T) {
	ts := serve(t, neverReadyPage)

	start := time.Now()
	path, pids, err := run(t, ts.URL+"/", 2*time.Second)
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Second)

	var stepErr *verify.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, models.StepWait, stepErr.Step)

	assert.NoFileExists(t, path)
	require.Len(t, pids, 1)
	assert.Eventually(t, func() bool { return processGone(pids[0]) }, 10*time.Second, 100*time.Millisecond)
}
