// Package browser implements the Browser-Session Manager: it creates,
// drives, and tears down browser environments for one task at a time,
// confining every call that touches the browser handle to a single
// dedicated OS thread, because the underlying automation library
// (playwright-go, itself a thin wrapper over a single-connection CDP
// session) is not safe to call from multiple goroutines concurrently.
package browser

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/a2aeval/evaluator/internal/observation"
	"github.com/a2aeval/evaluator/internal/telemetry"
)

// browserHandle is the opaque, Manager-owned handle referenced by Session.
type browserHandle struct {
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
}

// workItem is one submit-and-wait unit of work dispatched to the browser
// thread: a thunk to run there, and a completion channel the submitter
// blocks on.
type workItem struct {
	fn   func() (any, error)
	done chan result
}

type result struct {
	value any
	err   error
}

// Manager owns one browser environment at a time and pins every operation
// that touches it to a single dedicated OS thread (the "browser thread").
// Other components interact through CreateSession/Step/Cleanup, which are
// thin submit-and-wait wrappers around an inbox of work items; this is the
// single most important architectural constraint in the Evaluator.
type Manager struct {
	inbox  chan workItem
	done   chan struct{}
	logger telemetry.Logger

	// current and pw are only ever touched from the browser thread.
	current *Session
	pw      *playwright.Playwright
}

// New constructs a Manager and starts its dedicated browser thread. The
// thread runs until Shutdown is called.
func New(logger telemetry.Logger) *Manager {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	m := &Manager{
		inbox:  make(chan workItem),
		done:   make(chan struct{}),
		logger: logger,
	}
	go m.run()
	return m
}

// run is the dedicated browser thread's body. runtime.LockOSThread pins this
// goroutine to one OS thread for its entire lifetime, satisfying the
// single-thread constraint that the underlying Playwright/CDP connection
// requires.
func (m *Manager) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(m.done)

	for item := range m.inbox {
		v, err := item.fn()
		item.done <- result{value: v, err: err}
	}
}

// submit hands fn to the browser thread and blocks for its result, or until
// ctx is canceled.
func (m *Manager) submit(ctx context.Context, fn func() (any, error)) (any, error) {
	item := workItem{fn: fn, done: make(chan result, 1)}
	select {
	case m.inbox <- item:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-item.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops the browser thread. It must be called after the last
// session has been cleaned up.
func (m *Manager) Shutdown() {
	close(m.inbox)
	<-m.done
}

// CreateSession creates a browser environment for the given config. The
// previous session, if any, must already be in the Cleaned state; violating
// this is a programmer error and panics, since it corrupts the single-active-
// session invariant the rest of the system depends on.
func (m *Manager) CreateSession(ctx context.Context, cfg Config) (*Session, error) {
	v, err := m.submit(ctx, func() (any, error) {
		return m.createSessionOnThread(cfg)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) createSessionOnThread(cfg Config) (*Session, error) {
	if m.current != nil && m.current.State != SessionCleaned {
		panic("browser: CreateSession called while previous session is not Cleaned")
	}

	if cfg.DatasetEnvVar != "" && cfg.DatasetFileURL != "" {
		if err := setEnv(cfg.DatasetEnvVar, cfg.DatasetFileURL); err != nil {
			return nil, &EnvironmentError{Op: "dataset_resolution", Reason: err.Error()}
		}
	}

	before, err := snapshotProcessTree()
	if err != nil {
		m.logger.Warn(context.Background(), "process snapshot before reset failed", "err", err)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, &EnvironmentError{Op: "create_session", Reason: fmt.Sprintf("start playwright: %v", err)}
	}
	br, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Timeout:  playwright.Float(30000),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, &EnvironmentError{Op: "create_session", Reason: fmt.Sprintf("launch browser: %v", err)}
	}
	bctx, err := br.NewContext(playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
	})
	if err != nil {
		_ = br.Close()
		_ = pw.Stop()
		return nil, &EnvironmentError{Op: "create_session", Reason: fmt.Sprintf("new context: %v", err)}
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = br.Close()
		_ = pw.Stop()
		return nil, &EnvironmentError{Op: "create_session", Reason: fmt.Sprintf("new page: %v", err)}
	}

	if cfg.StartURL != "" {
		if _, err := page.Goto(cfg.StartURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		}); err != nil {
			return nil, &EnvironmentError{Op: "create_session", Reason: fmt.Sprintf("initial goto: %v", err)}
		}
	}

	raw, err := captureObservation(page, "")
	if err != nil {
		return nil, &EnvironmentError{Op: "create_session", Reason: fmt.Sprintf("capture initial observation: %v", err)}
	}

	after, err := snapshotProcessTree()
	if err != nil {
		m.logger.Warn(context.Background(), "process snapshot after reset failed", "err", err)
	}
	spawned := diffPids(before, after)

	sess := &Session{
		ID:                 cfg.SessionID,
		TaskID:             cfg.TaskID,
		BenchmarkID:        cfg.BenchmarkID,
		InitialObservation: raw,
		ProcessIDs:         spawned,
		State:              SessionActive,
		handle:             &browserHandle{browser: br, bctx: bctx, page: page},
	}
	m.current = sess
	// pw is intentionally not retained on Session: it is only needed to stop
	// the engine during cleanup, which happens via handle.browser.Close and
	// a process-tree kill, matching the "library is not thread-safe" design
	// that keeps all Playwright state on this one goroutine only.
	m.pw = pw
	return sess, nil
}

// Step drives one batch action against the active session. It must be
// called with the same Manager the session was created from.
func (m *Manager) Step(ctx context.Context, sess *Session, action Action) (StepResult, error) {
	v, err := m.submit(ctx, func() (any, error) {
		return m.stepOnThread(sess, action)
	})
	if err != nil {
		return StepResult{}, err
	}
	return v.(StepResult), nil
}

func (m *Manager) stepOnThread(sess *Session, action Action) (StepResult, error) {
	if sess.handle == nil || sess.State != SessionActive {
		return StepResult{}, &ActionError{ReasonCode: "no_active_session", Reason: "session has no active browser handle"}
	}
	if err := ValidateAction(action, 0); err != nil {
		return StepResult{}, &ActionError{ReasonCode: "invalid_shape", Reason: err.Error()}
	}

	page := sess.handle.page
	reward := 0.0
	done := false
	truncated := false
	lastResult := ""

	if err := applyAction(page, action); err != nil {
		lastResult = err.Error()
		sess.ActionHistory = append(sess.ActionHistory, ActionRecord{Action: action, Timestamp: time.Now(), Error: err.Error()})
		return StepResult{}, &ActionError{ReasonCode: "step_failed", Reason: err.Error()}
	}
	sess.ActionHistory = append(sess.ActionHistory, ActionRecord{Action: action, Timestamp: time.Now()})

	if action.Action == ActionSendMsgToUser {
		done = true
		reward = 1.0
	}

	raw, err := captureObservation(page, lastResult)
	if err != nil {
		return StepResult{}, &EnvironmentError{Op: "step", Reason: err.Error()}
	}

	return StepResult{Observation: raw, Reward: reward, Done: done, Truncated: truncated, Info: map[string]any{}}, nil
}

// Observe captures the session's current observation without applying any
// action, used by get_observation.
func (m *Manager) Observe(ctx context.Context, sess *Session) (observation.Raw, error) {
	v, err := m.submit(ctx, func() (any, error) {
		if sess.handle == nil || sess.State != SessionActive {
			return observation.Raw{}, &ActionError{ReasonCode: "no_active_session", Reason: "session has no active browser handle"}
		}
		return captureObservation(sess.handle.page, "")
	})
	if err != nil {
		return observation.Raw{}, err
	}
	return v.(observation.Raw), nil
}

// Cleanup tears down the session's browser environment, idempotently.
func (m *Manager) Cleanup(ctx context.Context, sess *Session) (CleanupReport, error) {
	v, err := m.submit(ctx, func() (any, error) {
		return m.cleanupOnThread(sess)
	})
	if err != nil {
		return CleanupReport{}, err
	}
	return v.(CleanupReport), nil
}

func (m *Manager) cleanupOnThread(sess *Session) (CleanupReport, error) {
	if sess.State == SessionCleaned {
		return CleanupReport{Status: CleanupSuccess}, nil
	}
	sess.State = SessionCleanupRequested

	var closeErr error
	if sess.handle != nil {
		if sess.handle.page != nil {
			_ = sess.handle.page.Close()
		}
		if sess.handle.bctx != nil {
			_ = sess.handle.bctx.Close()
		}
		if sess.handle.browser != nil {
			closeErr = sess.handle.browser.Close()
		}
	}
	if m.pw != nil {
		_ = m.pw.Stop()
		m.pw = nil
	}

	killed, orphaned := killProcessTree(sess.ProcessIDs, 2*time.Second)

	sess.handle = nil
	sess.State = SessionCleaned
	if m.current == sess {
		m.current = nil
	}

	status := CleanupSuccess
	if closeErr != nil {
		status = CleanupFallbackSuccess
	}
	return CleanupReport{Status: status, KilledProcessIDs: killed, OrphanedCount: orphaned}, nil
}

func setEnv(key, value string) error {
	return osSetenv(key, value)
}
