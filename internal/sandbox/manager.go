// Package sandbox manages the resource-budget wrapper around engine contexts.
// The manager owns a fixed-size pool keyed by app id and is the sole path
// through which contexts are created and destroyed for running apps.
package sandbox

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tembedos/runtime/internal/engine"
	"github.com/tembedos/runtime/internal/infrastructure/monitoring"
	"github.com/tembedos/runtime/internal/permissions"
	"github.com/tembedos/runtime/internal/shared/errdefs"
)

// Registrar populates a fresh context with the native catalogue.
type Registrar interface {
	RegisterAll(ctx *engine.Context) error
}

// Checker resolves permission grants for the access heuristic.
type Checker interface {
	Check(appID string, required permissions.Permission) bool
}

// Slot is one live sandbox: the context plus its budget bookkeeping.
type Slot struct {
	Context     *engine.Context
	MemoryLimit int64
	TimeLimit   time.Duration
	StartedAt   time.Time
}

// Manager owns the sandbox pool. Capacity is fixed at construction.
type Manager struct {
	engine    *engine.Engine
	registrar Registrar
	perms     Checker
	log       *zap.Logger
	metrics   *monitoring.Metrics

	capacity    int
	memoryLimit int64
	timeLimit   time.Duration

	mu    sync.Mutex
	slots map[string]*Slot
}

// NewManager creates a sandbox manager. capacity, memoryLimit and timeLimit
// must be positive; metrics may be nil.
func NewManager(eng *engine.Engine, registrar Registrar, perms Checker,
	capacity int, memoryLimit int64, timeLimit time.Duration,
	log *zap.Logger, metrics *monitoring.Metrics) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		engine:      eng,
		registrar:   registrar,
		perms:       perms,
		log:         log,
		metrics:     metrics,
		capacity:    capacity,
		memoryLimit: memoryLimit,
		timeLimit:   timeLimit,
		slots:       make(map[string]*Slot),
	}
}

// Create allocates a sandbox for appID: an engine context with the default
// memory budget, the full native catalogue, and a fresh start timestamp.
// Fails with ErrNoCapacity when the pool is full.
func (m *Manager) Create(appID string) (*Slot, error) {
	if appID == "" {
		return nil, fmt.Errorf("app id: %w", errdefs.ErrInvalidArgument)
	}

	m.mu.Lock()
	if _, exists := m.slots[appID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("sandbox for %s exists: %w", appID, errdefs.ErrInvalidArgument)
	}
	if len(m.slots) >= m.capacity {
		m.mu.Unlock()
		return nil, fmt.Errorf("sandbox pool (%d): %w", m.capacity, errdefs.ErrNoCapacity)
	}
	m.mu.Unlock()

	ctx, err := m.engine.NewContext(appID, m.memoryLimit)
	if err != nil {
		return nil, fmt.Errorf("create context: %w", err)
	}
	if err := m.registrar.RegisterAll(ctx); err != nil {
		m.engine.DestroyContext(ctx)
		return nil, fmt.Errorf("register natives: %w", err)
	}
	ctx.SetTimeLimit(m.timeLimit)

	slot := &Slot{
		Context:     ctx,
		MemoryLimit: m.memoryLimit,
		TimeLimit:   m.timeLimit,
		StartedAt:   time.Now(),
	}

	m.mu.Lock()
	// Re-check: a racing Create may have taken the last slot while the
	// context was being built.
	if len(m.slots) >= m.capacity {
		m.mu.Unlock()
		m.engine.DestroyContext(ctx)
		return nil, fmt.Errorf("sandbox pool (%d): %w", m.capacity, errdefs.ErrNoCapacity)
	}
	m.slots[appID] = slot
	count := len(m.slots)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetSandboxesActive(count)
	}
	m.log.Info("created sandbox",
		zap.String("app_id", appID),
		zap.Int64("memory_limit", slot.MemoryLimit),
		zap.Duration("time_limit", slot.TimeLimit),
		zap.Int("active", count))
	return slot, nil
}

// Destroy tears down the sandbox for appID. Absent sandbox is a warn-level
// no-op.
func (m *Manager) Destroy(appID string) {
	m.mu.Lock()
	slot, ok := m.slots[appID]
	if ok {
		delete(m.slots, appID)
	}
	count := len(m.slots)
	m.mu.Unlock()

	if !ok {
		m.log.Warn("destroy of absent sandbox", zap.String("app_id", appID))
		return
	}

	m.engine.DestroyContext(slot.Context)
	if m.metrics != nil {
		m.metrics.SetSandboxesActive(count)
	}
	m.log.Info("destroyed sandbox", zap.String("app_id", appID), zap.Int("active", count))
}

// Get returns the live sandbox for appID.
func (m *Manager) Get(appID string) (*Slot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[appID]
	return slot, ok
}

// SetLimits updates the recorded budgets for an existing sandbox. The time
// budget propagates to future executions; the memory budget is bookkeeping
// only and does not resize the live interpreter.
func (m *Manager) SetLimits(appID string, memoryLimit int64, timeLimit time.Duration) error {
	m.mu.Lock()
	slot, ok := m.slots[appID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("sandbox %s: %w", appID, errdefs.ErrNotFound)
	}

	if memoryLimit > 0 {
		slot.MemoryLimit = memoryLimit
	}
	if timeLimit > 0 {
		slot.TimeLimit = timeLimit
		slot.Context.SetTimeLimit(timeLimit)
	}
	return nil
}

// CheckAccess is the coarse secondary gate in front of the bridge's per-call
// checks. It denies when the sandbox has outlived its time budget, when the
// resource names a system path without the system grant, or names an RF
// operation without an RF grant. Unknown apps and unmatched resources pass.
func (m *Manager) CheckAccess(appID, resource string) bool {
	m.mu.Lock()
	slot, ok := m.slots[appID]
	m.mu.Unlock()
	if !ok {
		return true
	}

	if time.Since(slot.StartedAt) > slot.TimeLimit {
		m.log.Warn("access denied: time budget exhausted",
			zap.String("app_id", appID),
			zap.String("resource", resource))
		return false
	}
	if strings.Contains(resource, "/system/") && !m.perms.Check(appID, permissions.System) {
		return false
	}
	if strings.Contains(resource, "rf.") && !m.perms.Check(appID, permissions.AnyRF) {
		return false
	}
	return true
}

// Count reports the number of live sandboxes.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
