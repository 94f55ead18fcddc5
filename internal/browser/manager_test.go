package browser

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/require"
)

var playwrightCheck struct {
	once sync.Once
	err  error
}

// requirePlaywright skips tests that need a real Chromium install, which is
// not available in every environment this module builds in.
func requirePlaywright(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser integration tests in short mode")
	}
	playwrightCheck.once.Do(func() {
		playwrightCheck.err = playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
	})
	if playwrightCheck.err != nil {
		t.Skipf("playwright not available: %v", playwrightCheck.err)
	}
}

func TestManagerCreateStepCleanupLifecycle(t *testing.T) {
	requirePlaywright(t)

	m := New(nil)
	defer m.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sess, err := m.CreateSession(ctx, Config{
		SessionID:   "sess-1",
		TaskID:      "task-1",
		BenchmarkID: "miniwob",
		StartURL:    "about:blank",
		Headless:    true,
	})
	require.NoError(t, err)
	require.Equal(t, SessionActive, sess.State)

	res, err := m.Step(ctx, sess, Action{Action: ActionSendMsgToUser, Text: "done"})
	require.NoError(t, err)
	require.True(t, res.Done)
	require.Equal(t, 1.0, res.Reward)

	report, err := m.Cleanup(ctx, sess)
	require.NoError(t, err)
	require.Equal(t, SessionCleaned, sess.State)
	require.Contains(t, []CleanupStatus{CleanupSuccess, CleanupFallbackSuccess}, report.Status)
}

func TestManagerCleanupIsIdempotent(t *testing.T) {
	requirePlaywright(t)

	m := New(nil)
	defer m.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sess, err := m.CreateSession(ctx, Config{
		SessionID:   "sess-2",
		TaskID:      "task-2",
		BenchmarkID: "miniwob",
		Headless:    true,
	})
	require.NoError(t, err)

	_, err = m.Cleanup(ctx, sess)
	require.NoError(t, err)

	report, err := m.Cleanup(ctx, sess)
	require.NoError(t, err)
	require.Equal(t, CleanupSuccess, report.Status)
}
