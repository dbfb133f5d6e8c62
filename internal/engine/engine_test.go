package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tembedos/runtime/internal/shared/errdefs"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	return New(cfg, zap.NewNop())
}

func mustContext(t *testing.T, e *Engine, appID string) *Context {
	t.Helper()
	ctx, err := e.NewContext(appID, 0)
	require.NoError(t, err)
	t.Cleanup(func() { e.DestroyContext(ctx) })
	return ctx
}

func TestExecuteOutcomes(t *testing.T) {
	e := newTestEngine(t, Config{})

	tests := []struct {
		name   string
		script string
		want   Outcome
	}{
		{
			name:   "simple expression",
			script: "1 + 1",
			want:   OutcomeOK,
		},
		{
			name:   "function definition and call",
			script: "function f(x) { return x * 2; } f(21)",
			want:   OutcomeOK,
		},
		{
			name:   "reference error",
			script: "definitelyNotDefined()",
			want:   OutcomeError,
		},
		{
			name:   "thrown error",
			script: "throw new Error('boom')",
			want:   OutcomeError,
		},
		{
			name:   "syntax error",
			script: "function {",
			want:   OutcomeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := mustContext(t, e, "app-"+tt.name)
			require.NoError(t, ctx.LoadString(tt.script, tt.name))
			outcome, _ := ctx.Execute()
			assert.Equal(t, tt.want, outcome)
		})
	}
}

func TestExecuteTimeout(t *testing.T) {
	e := newTestEngine(t, Config{DefaultTimeLimit: 50 * time.Millisecond})
	ctx := mustContext(t, e, "spinner")

	require.NoError(t, ctx.LoadString("while(true) {}", "spin"))

	start := time.Now()
	outcome, elapsed := ctx.Execute()

	assert.Equal(t, OutcomeTimeout, outcome)
	assert.NotEmpty(t, ctx.LastError())
	// The watchdog preempts; the run must not take anywhere near forever.
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Greater(t, elapsed, time.Duration(0))
}

func TestExecuteAfterTimeoutRecovers(t *testing.T) {
	e := newTestEngine(t, Config{DefaultTimeLimit: 50 * time.Millisecond})
	ctx := mustContext(t, e, "recover")

	require.NoError(t, ctx.LoadString("while(true) {}", "spin"))
	outcome, _ := ctx.Execute()
	require.Equal(t, OutcomeTimeout, outcome)

	// The interrupt must not leak into the next run.
	require.NoError(t, ctx.LoadString("2 + 2", "ok"))
	outcome, _ = ctx.Execute()
	assert.Equal(t, OutcomeOK, outcome)
}

func TestExecuteOverrunAfterCompletion(t *testing.T) {
	e := newTestEngine(t, Config{DefaultTimeLimit: 20 * time.Millisecond})
	ctx := mustContext(t, e, "sleeper")

	require.NoError(t, ctx.RegisterNative("nap", func(call goja.FunctionCall) goja.Value {
		time.Sleep(60 * time.Millisecond)
		return goja.Undefined()
	}))

	require.NoError(t, ctx.LoadString("var done = true; nap();", "sleep"))
	outcome, elapsed := ctx.Execute()

	// The script finished its work, but the wall clock still counts
	// against the budget.
	assert.Equal(t, OutcomeTimeout, outcome)
	assert.Greater(t, elapsed, 20*time.Millisecond)

	// Nothing was rolled back: globals set before the overrun survive.
	v, ok := ctx.GetGlobal("done")
	require.True(t, ok)
	assert.Equal(t, true, v)
}

func TestExecuteStackOverflow(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := mustContext(t, e, "recursive")

	require.NoError(t, ctx.LoadString("function f() { return f(); } f();", "deep"))
	outcome, _ := ctx.Execute()

	assert.Equal(t, OutcomeOutOfMemory, outcome)
	assert.NotEmpty(t, ctx.LastError())
}

func TestContextPoolCapacity(t *testing.T) {
	e := newTestEngine(t, Config{MaxContexts: 2})

	c1, err := e.NewContext("app-1", 0)
	require.NoError(t, err)
	c2, err := e.NewContext("app-2", 0)
	require.NoError(t, err)

	_, err = e.NewContext("app-3", 0)
	assert.ErrorIs(t, err, errdefs.ErrNoCapacity)
	assert.Equal(t, 2, e.ActiveContexts())

	e.DestroyContext(c1)
	c3, err := e.NewContext("app-3", 0)
	require.NoError(t, err)

	e.DestroyContext(c2)
	e.DestroyContext(c3)
	assert.Equal(t, 0, e.ActiveContexts())
}

func TestLoadFile(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := mustContext(t, e, "loader")

	dir := t.TempDir()
	path := filepath.Join(dir, "main.js")
	require.NoError(t, os.WriteFile(path, []byte("var x = 40 + 2;"), 0o644))

	require.NoError(t, ctx.LoadFile(path))
	outcome, _ := ctx.Execute()
	assert.Equal(t, OutcomeOK, outcome)

	v, ok := ctx.GetGlobal("x")
	require.True(t, ok)
	assert.EqualValues(t, 42, v)
}

func TestLoadFileNotFound(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := mustContext(t, e, "loader")

	err := ctx.LoadFile(filepath.Join(t.TempDir(), "missing.js"))
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestLoadFileEmpty(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := mustContext(t, e, "loader")

	path := filepath.Join(t.TempDir(), "empty.js")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	err := ctx.LoadFile(path)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestLoadFileSizeBudget(t *testing.T) {
	e := newTestEngine(t, Config{DefaultMemoryLimit: 1024})
	ctx := mustContext(t, e, "loader")

	dir := t.TempDir()
	path := filepath.Join(dir, "big.js")
	// Over half the 1 KiB budget.
	big := "// " + strings.Repeat("x", 600)
	require.NoError(t, os.WriteFile(path, []byte(big), 0o644))

	err := ctx.LoadFile(path)
	assert.ErrorIs(t, err, errdefs.ErrSizeExceeded)
}

func TestLoadStringSizeBudget(t *testing.T) {
	e := newTestEngine(t, Config{DefaultMemoryLimit: 1024})
	ctx := mustContext(t, e, "loader")

	err := ctx.LoadString(strings.Repeat("x", 600), "big")
	assert.ErrorIs(t, err, errdefs.ErrSizeExceeded)
}

func TestGlobals(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := mustContext(t, e, "globals")

	require.NoError(t, ctx.SetGlobal("answer", 42))
	require.NoError(t, ctx.LoadString("var doubled = answer * 2;", "g"))
	outcome, _ := ctx.Execute()
	require.Equal(t, OutcomeOK, outcome)

	v, ok := ctx.GetGlobal("doubled")
	require.True(t, ok)
	assert.EqualValues(t, 84, v)

	_, ok = ctx.GetGlobal("nonexistent")
	assert.False(t, ok)

	// Last write wins for the same name.
	require.NoError(t, ctx.SetGlobal("answer", "overwritten"))
	v, ok = ctx.GetGlobal("answer")
	require.True(t, ok)
	assert.Equal(t, "overwritten", v)
}

func TestGlobalTableFull(t *testing.T) {
	e := newTestEngine(t, Config{MaxUserGlobals: 2})
	ctx := mustContext(t, e, "globals")

	require.NoError(t, ctx.SetGlobal("a", 1))
	require.NoError(t, ctx.SetGlobal("b", 2))
	assert.ErrorIs(t, ctx.SetGlobal("c", 3), errdefs.ErrTableFull)

	// Rebinding an existing name does not consume a slot.
	assert.NoError(t, ctx.SetGlobal("a", 10))
}

func TestNativeTableFull(t *testing.T) {
	e := newTestEngine(t, Config{MaxNatives: 1})
	ctx := mustContext(t, e, "natives")

	noop := func(call goja.FunctionCall) goja.Value { return goja.Undefined() }
	require.NoError(t, ctx.RegisterNative("first", noop))
	assert.ErrorIs(t, ctx.RegisterNative("second", noop), errdefs.ErrTableFull)
}

func TestNativeDuplicateName(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := mustContext(t, e, "natives")

	noop := func(call goja.FunctionCall) goja.Value { return goja.Undefined() }
	require.NoError(t, ctx.RegisterNative("dup", noop))
	assert.ErrorIs(t, ctx.RegisterNative("dup", noop), errdefs.ErrReservedName)
}

func TestNativesUnshadowable(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := mustContext(t, e, "natives")

	called := 0
	require.NoError(t, ctx.RegisterNative("probe", func(call goja.FunctionCall) goja.Value {
		called++
		return goja.Undefined()
	}))

	// SetGlobal may not steal a native name.
	assert.ErrorIs(t, ctx.SetGlobal("probe", "shadow"), errdefs.ErrReservedName)

	// Script assignment to the binding is silently ineffective (non-strict)
	// and the native still resolves.
	require.NoError(t, ctx.LoadString("probe = 'shadow'; probe();", "shadow"))
	outcome, _ := ctx.Execute()
	assert.Equal(t, OutcomeOK, outcome)
	assert.Equal(t, 1, called)
}

func TestDottedNativesUnshadowable(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := mustContext(t, e, "natives")

	called := 0
	require.NoError(t, ctx.RegisterNative("rf.probe", func(call goja.FunctionCall) goja.Value {
		called++
		return goja.Undefined()
	}))

	// The namespace object itself is reserved too.
	assert.ErrorIs(t, ctx.SetGlobal("rf", "shadow"), errdefs.ErrReservedName)

	require.NoError(t, ctx.LoadString("rf.probe = 'x'; rf.probe();", "shadow"))
	outcome, _ := ctx.Execute()
	assert.Equal(t, OutcomeOK, outcome)
	assert.Equal(t, 1, called)
}

func TestStop(t *testing.T) {
	e := newTestEngine(t, Config{DefaultTimeLimit: 10 * time.Second})
	ctx := mustContext(t, e, "stopper")

	require.NoError(t, ctx.LoadString("while(true) {}", "spin"))

	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := ctx.Execute()
		done <- outcome
	}()

	// Give the script a moment to enter the loop, then stop it.
	time.Sleep(50 * time.Millisecond)
	ctx.Stop()

	select {
	case outcome := <-done:
		assert.Equal(t, OutcomeError, outcome)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not interrupt the script")
	}
}

func TestErrorCallback(t *testing.T) {
	e := newTestEngine(t, Config{})

	var gotApp, gotMsg string
	e.SetErrorCallback(func(appID, message string) {
		gotApp, gotMsg = appID, message
	})

	ctx := mustContext(t, e, "failing-app")
	require.NoError(t, ctx.LoadString("throw new Error('kaput')", "fail"))
	outcome, _ := ctx.Execute()

	require.Equal(t, OutcomeError, outcome)
	assert.Equal(t, "failing-app", gotApp)
	assert.Contains(t, gotMsg, "kaput")
}

func TestConsoleCapture(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := mustContext(t, e, "console")

	ctx.AppendConsole("log", "first")
	ctx.AppendConsole("warn", "second")

	entries := ctx.Console()
	require.Len(t, entries, 2)
	assert.Equal(t, "log", entries[0].Level)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, "warn", entries[1].Level)
}
