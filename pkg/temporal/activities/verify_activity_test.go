package activities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"dev/bravebird/page-verifier/pkg/browser"
	"dev/bravebird/page-verifier/pkg/temporal/workflows"
)

func newEnv(t *testing.T) (*testsuite.TestActivityEnvironment, *Activities) {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	acts := NewActivities(browser.NewPool(), t.TempDir(), browser.DefaultOptions(), "page-verification-test")
	env.RegisterActivity(acts)
	return env, acts
}

func TestActivitiesRejectUnknownSession(t *testing.T) {
	env, acts := newEnv(t)

	_, err := env.ExecuteActivity(acts.NavigateActivity, workflows.NavigateInput{SessionID: "missing", URL: "http://localhost:8080/"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), browser.ErrSessionNotFound.Error())

	_, err = env.ExecuteActivity(acts.WaitForSelectorActivity, workflows.WaitInput{SessionID: "missing", Selector: ".container"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), browser.ErrSessionNotFound.Error())

	_, err = env.ExecuteActivity(acts.TakeScreenshotActivity, workflows.ScreenshotInput{SessionID: "missing", Filename: "x.png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), browser.ErrSessionNotFound.Error())
}

func TestCloseUnknownSessionIsNoop(t *testing.T) {
	env, acts := newEnv(t)

	_, err := env.ExecuteActivity(acts.CloseBrowserActivity, "missing")
	assert.NoError(t, err)
}

func TestCloseRemovesSession(t *testing.T) {
	env, acts := newEnv(t)
	id := acts.Pool.Put(nil, nil)

	_, err := env.ExecuteActivity(acts.CloseBrowserActivity, id)
	require.NoError(t, err)
	assert.Equal(t, 0, acts.Pool.Len())
}

func TestSeconds(t *testing.T) {
	assert.Zero(t, seconds(0))
	assert.Zero(t, seconds(-3))
	assert.Equal(t, "30s", seconds(30).String())
}
