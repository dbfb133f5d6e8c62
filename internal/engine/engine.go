// Package engine wraps the goja interpreter behind the runtime's context
// model: fixed-capacity context pool, per-context memory and time budgets,
// split native/user global namespaces, and interrupt-driven timeouts.
package engine

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tembedos/runtime/internal/shared/errdefs"
)

// ErrorCallback receives script execution errors as they are classified.
type ErrorCallback func(appID, message string)

// Config bounds the engine. Capacities are explicit constructor inputs, not
// hidden file-scope constants.
type Config struct {
	MaxContexts        int
	DefaultMemoryLimit int64
	DefaultTimeLimit   time.Duration
	MaxUserGlobals     int
	MaxNatives         int
}

// DefaultConfig mirrors the device defaults: 8 concurrent contexts, a 64 KiB
// memory budget and a 5 second time budget.
func DefaultConfig() Config {
	return Config{
		MaxContexts:        8,
		DefaultMemoryLimit: 64 * 1024,
		DefaultTimeLimit:   5 * time.Second,
		MaxUserGlobals:     64,
		MaxNatives:         64,
	}
}

// Engine owns every live context. It is the sole authority that may create
// or destroy them.
type Engine struct {
	cfg Config
	log *zap.Logger

	mu       sync.Mutex
	contexts map[*Context]struct{}
	onError  ErrorCallback
}

// New creates an engine with the given bounds. Zero config fields fall back
// to DefaultConfig values.
func New(cfg Config, log *zap.Logger) *Engine {
	def := DefaultConfig()
	if cfg.MaxContexts <= 0 {
		cfg.MaxContexts = def.MaxContexts
	}
	if cfg.DefaultMemoryLimit <= 0 {
		cfg.DefaultMemoryLimit = def.DefaultMemoryLimit
	}
	if cfg.DefaultTimeLimit <= 0 {
		cfg.DefaultTimeLimit = def.DefaultTimeLimit
	}
	if cfg.MaxUserGlobals <= 0 {
		cfg.MaxUserGlobals = def.MaxUserGlobals
	}
	if cfg.MaxNatives <= 0 {
		cfg.MaxNatives = def.MaxNatives
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		log:      log,
		contexts: make(map[*Context]struct{}),
	}
}

// SetErrorCallback registers a callback invoked for every execution that
// classifies as an error. At most one callback is active.
func (e *Engine) SetErrorCallback(cb ErrorCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onError = cb
}

// NewContext allocates an interpreter context bound to the given memory
// budget (0 selects the default). Fails with ErrNoCapacity when the pool is
// full.
func (e *Engine) NewContext(appID string, memoryLimit int64) (*Context, error) {
	if appID == "" {
		return nil, fmt.Errorf("app id: %w", errdefs.ErrInvalidArgument)
	}
	if memoryLimit <= 0 {
		memoryLimit = e.cfg.DefaultMemoryLimit
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.contexts) >= e.cfg.MaxContexts {
		return nil, fmt.Errorf("context pool (%d): %w", e.cfg.MaxContexts, errdefs.ErrNoCapacity)
	}

	ctx := newContext(e, appID, memoryLimit, e.cfg.DefaultTimeLimit)
	e.contexts[ctx] = struct{}{}

	e.log.Info("created context",
		zap.String("app_id", appID),
		zap.Int64("memory_limit", memoryLimit),
		zap.Int("active", len(e.contexts)))
	return ctx, nil
}

// DestroyContext releases the interpreter and its owned source. Safe on a
// stopped context; callers must not double-destroy.
func (e *Engine) DestroyContext(ctx *Context) {
	if ctx == nil {
		return
	}
	ctx.Stop()

	e.mu.Lock()
	if _, ok := e.contexts[ctx]; !ok {
		e.mu.Unlock()
		e.log.Warn("destroy of unknown context", zap.String("app_id", ctx.appID))
		return
	}
	delete(e.contexts, ctx)
	active := len(e.contexts)
	e.mu.Unlock()

	ctx.release()
	e.log.Info("destroyed context", zap.String("app_id", ctx.appID), zap.Int("active", active))
}

// ActiveContexts reports the number of live contexts.
func (e *Engine) ActiveContexts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.contexts)
}

// Capacity reports the pool bound.
func (e *Engine) Capacity() int { return e.cfg.MaxContexts }

func (e *Engine) reportError(appID, message string) {
	e.mu.Lock()
	cb := e.onError
	e.mu.Unlock()
	if cb != nil {
		cb(appID, message)
	}
}
