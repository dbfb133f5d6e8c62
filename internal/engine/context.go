package engine

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/tembedos/runtime/internal/shared/errdefs"
)

// Interrupt sentinels. The watchdog and Stop interrupt the VM with these so
// Execute can classify the abort.
var (
	errBudgetExceeded  = errors.New("time budget exceeded")
	errStoppedByHost   = errors.New("stopped by host")
	errPermissionAbort = errors.New("permission denied")
)

// NativeFunc is a host function callable from script.
type NativeFunc func(call goja.FunctionCall) goja.Value

// LogEntry is one captured console line.
type LogEntry struct {
	Level   string
	Message string
	Time    time.Time
}

const maxConsoleEntries = 256

// Context is one isolated interpreter instance plus its loaded code,
// bindings and resource budgets. It is owned by exactly one app while that
// app runs.
type Context struct {
	engine *Engine
	appID  string
	vm     *goja.Runtime

	mu          sync.Mutex
	source      string
	label       string
	lastError   string
	console     []LogEntry
	timeLimit   time.Duration
	startedAt   time.Time
	natives     map[string]struct{}
	namespaces  map[string]*goja.Object
	userGlobals map[string]struct{}

	memoryLimit int64
	running     atomic.Bool
	destroyed   atomic.Bool
}

func newContext(e *Engine, appID string, memoryLimit int64, timeLimit time.Duration) *Context {
	vm := goja.New()

	// goja has no byte-accurate heap ceiling; the budget caps loaded
	// source size and recursion depth. One stack frame is budgeted at
	// roughly 1 KiB.
	depth := int(memoryLimit / 1024)
	if depth < 64 {
		depth = 64
	}
	vm.SetMaxCallStackSize(depth)

	return &Context{
		engine:      e,
		appID:       appID,
		vm:          vm,
		memoryLimit: memoryLimit,
		timeLimit:   timeLimit,
		startedAt:   time.Now(),
		natives:     make(map[string]struct{}),
		namespaces:  make(map[string]*goja.Object),
		userGlobals: make(map[string]struct{}),
	}
}

// AppID returns the owning app's id.
func (c *Context) AppID() string { return c.appID }

// MemoryLimit returns the memory budget in bytes.
func (c *Context) MemoryLimit() int64 { return c.memoryLimit }

// TimeLimit returns the execution time budget.
func (c *Context) TimeLimit() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeLimit
}

// SetTimeLimit adjusts the time budget for future executions.
func (c *Context) SetTimeLimit(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeLimit = d
}

// StartedAt returns the context creation timestamp.
func (c *Context) StartedAt() time.Time { return c.startedAt }

// Running reports whether an execution is in flight.
func (c *Context) Running() bool { return c.running.Load() }

// LastError returns the message of the most recent failed execution.
func (c *Context) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// LoadFile reads a script from disk. Files larger than half the memory
// budget are rejected with ErrSizeExceeded.
func (c *Context) LoadFile(path string) error {
	if path == "" {
		return fmt.Errorf("path: %w", errdefs.ErrInvalidArgument)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", path, errdefs.ErrNotFound)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty: %w", path, errdefs.ErrInvalidArgument)
	}
	if info.Size() > c.memoryLimit/2 {
		return fmt.Errorf("%s is %d bytes (budget %d): %w",
			path, info.Size(), c.memoryLimit/2, errdefs.ErrSizeExceeded)
	}

	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	c.mu.Lock()
	c.source = string(code)
	c.label = path
	c.mu.Unlock()
	return nil
}

// LoadString loads script text directly. The label is used in error messages.
func (c *Context) LoadString(code, label string) error {
	if code == "" {
		return fmt.Errorf("code: %w", errdefs.ErrInvalidArgument)
	}
	if int64(len(code)) > c.memoryLimit/2 {
		return fmt.Errorf("code is %d bytes (budget %d): %w",
			len(code), c.memoryLimit/2, errdefs.ErrSizeExceeded)
	}
	if label == "" {
		label = "string"
	}

	c.mu.Lock()
	c.source = code
	c.label = label
	c.mu.Unlock()
	return nil
}

// Execute evaluates the loaded source and classifies the outcome. The time
// budget is enforced two ways: a watchdog interrupts the VM once the budget
// elapses, and a run that completes naturally but overran the budget is
// still classified Timeout.
func (c *Context) Execute() (Outcome, time.Duration) {
	c.mu.Lock()
	source, label := c.source, c.label
	limit := c.timeLimit
	c.mu.Unlock()

	if source == "" || c.destroyed.Load() {
		c.setLastError("no code loaded")
		return OutcomeError, 0
	}

	c.running.Store(true)
	start := time.Now()

	watchdog := time.AfterFunc(limit, func() {
		c.vm.Interrupt(errBudgetExceeded)
	})

	_, err := c.vm.RunScript(label, source)

	watchdog.Stop()
	c.vm.ClearInterrupt()
	elapsed := time.Since(start)
	c.running.Store(false)

	outcome := c.classify(err, elapsed, limit)
	if outcome == OutcomeError {
		c.engine.reportError(c.appID, c.LastError())
	}
	return outcome, elapsed
}

func (c *Context) classify(err error, elapsed, limit time.Duration) Outcome {
	if err != nil {
		var interrupted *goja.InterruptedError
		var stackOverflow *goja.StackOverflowError
		switch {
		case errors.As(err, &interrupted):
			switch interrupted.Value() {
			case errBudgetExceeded:
				c.setLastError("execution exceeded time budget")
				return OutcomeTimeout
			case errPermissionAbort:
				c.setLastError("execution aborted: permission denied")
				return OutcomePermissionDenied
			default:
				c.setLastError("execution stopped")
				return OutcomeError
			}
		case errors.As(err, &stackOverflow):
			c.setLastError("call stack exceeded memory budget")
			return OutcomeOutOfMemory
		default:
			c.setLastError(err.Error())
			return OutcomeError
		}
	}

	// Post-hoc budget check: evaluation ran to completion, but the wall
	// clock still counts against the app.
	if elapsed > limit {
		c.setLastError("execution exceeded time budget")
		return OutcomeTimeout
	}

	c.setLastError("")
	return OutcomeOK
}

// Stop clears the running flag and interrupts the VM at its next safe point.
// An in-flight collaborator call is not preempted.
func (c *Context) Stop() {
	if c.running.Swap(false) {
		c.vm.Interrupt(errStoppedByHost)
	}
}

// AbortPermissionDenied interrupts an in-flight execution and classifies it
// PermissionDenied. Used by enforcement points that must halt the script
// rather than return an in-script error value.
func (c *Context) AbortPermissionDenied() {
	c.vm.Interrupt(errPermissionAbort)
}

// RegisterNative binds a host function under name, which may be dotted
// ("rf.transmit"). Native names live in their own namespace: the bindings are
// non-writable and non-configurable, so neither scripts nor later SetGlobal
// calls can shadow them. Registration fails with ErrTableFull once the
// catalogue capacity is reached.
func (c *Context) RegisterNative(name string, fn NativeFunc) error {
	if name == "" || fn == nil {
		return errdefs.ErrInvalidArgument
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.natives) >= c.engine.cfg.MaxNatives {
		return fmt.Errorf("native table (%d): %w", c.engine.cfg.MaxNatives, errdefs.ErrTableFull)
	}
	if _, dup := c.natives[name]; dup {
		return fmt.Errorf("%s already bound: %w", name, errdefs.ErrReservedName)
	}

	// Plain function type so goja binds it as a native callable.
	value := c.vm.ToValue((func(goja.FunctionCall) goja.Value)(fn))

	if head, member, dotted := strings.Cut(name, "."); dotted {
		ns, ok := c.namespaces[head]
		if !ok {
			ns = c.vm.NewObject()
			if err := c.vm.GlobalObject().DefineDataProperty(
				head, ns, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
				return fmt.Errorf("bind namespace %s: %w", head, err)
			}
			c.namespaces[head] = ns
		}
		if err := ns.DefineDataProperty(
			member, value, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	} else {
		if err := c.vm.GlobalObject().DefineDataProperty(
			name, value, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}

	c.natives[name] = struct{}{}
	return nil
}

// SetGlobal binds a value into the user-global table, last-write-wins by
// name. Names owned by natives are rejected with ErrReservedName; a new name
// past the table capacity is rejected with ErrTableFull.
func (c *Context) SetGlobal(name string, value interface{}) error {
	if name == "" {
		return errdefs.ErrInvalidArgument
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, reserved := c.natives[name]; reserved {
		return fmt.Errorf("%s: %w", name, errdefs.ErrReservedName)
	}
	if _, reserved := c.namespaces[name]; reserved {
		return fmt.Errorf("%s: %w", name, errdefs.ErrReservedName)
	}
	if _, exists := c.userGlobals[name]; !exists && len(c.userGlobals) >= c.engine.cfg.MaxUserGlobals {
		return fmt.Errorf("global table (%d): %w", c.engine.cfg.MaxUserGlobals, errdefs.ErrTableFull)
	}

	if err := c.vm.Set(name, value); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	c.userGlobals[name] = struct{}{}
	return nil
}

// GetGlobal reads a global by name. The second return is false when the name
// is unbound or undefined.
func (c *Context) GetGlobal(name string) (interface{}, bool) {
	v := c.vm.Get(name)
	if v == nil || goja.IsUndefined(v) {
		return nil, false
	}
	if goja.IsNull(v) {
		return nil, true
	}
	return v.Export(), true
}

// ToValue converts a Go value for return into script.
func (c *Context) ToValue(v interface{}) goja.Value {
	return c.vm.ToValue(v)
}

// Undefined returns the undefined value.
func (c *Context) Undefined() goja.Value { return goja.Undefined() }

// Null returns the null value.
func (c *Context) Null() goja.Value { return goja.Null() }

// ErrorValue builds the in-script error value natives return on failure. A
// failed native call never aborts the whole script; the app decides whether
// to inspect `.error`.
func (c *Context) ErrorValue(message string) goja.Value {
	obj := c.vm.NewObject()
	_ = obj.Set("error", message)
	return obj
}

// Callable asserts a script value is a function.
func (c *Context) Callable(v goja.Value) (goja.Callable, bool) {
	return goja.AssertFunction(v)
}

// AppendConsole records one console line, bounded to the most recent
// maxConsoleEntries.
func (c *Context) AppendConsole(level, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.console) >= maxConsoleEntries {
		c.console = c.console[1:]
	}
	c.console = append(c.console, LogEntry{Level: level, Message: message, Time: time.Now()})
}

// Console returns a snapshot of captured console output.
func (c *Context) Console() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LogEntry, len(c.console))
	copy(out, c.console)
	return out
}

func (c *Context) setLastError(msg string) {
	c.mu.Lock()
	c.lastError = msg
	c.mu.Unlock()
}

// release drops the interpreter and owned source. Called by the engine only.
func (c *Context) release() {
	c.destroyed.Store(true)
	c.mu.Lock()
	c.source = ""
	c.console = nil
	c.mu.Unlock()
}
