// Package app implements the top-level registry: installed apps, the
// install→start→stop lifecycle, and the single "current app" slot. The
// manager delegates context work to the sandbox manager and package work to
// the installer; it is the only writer of registry records.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tembedos/runtime/internal/engine"
	"github.com/tembedos/runtime/internal/infrastructure/monitoring"
	"github.com/tembedos/runtime/internal/installer"
	"github.com/tembedos/runtime/internal/permissions"
	"github.com/tembedos/runtime/internal/sandbox"
	"github.com/tembedos/runtime/internal/shared/errdefs"
	"github.com/tembedos/runtime/internal/shared/types"
)

// Manager owns the app registry. The registry mutex guards metadata only;
// script execution happens outside it under a per-app lifecycle lock, so a
// slow start cannot stall list/get calls.
type Manager struct {
	installer *installer.Installer
	sandboxes *sandbox.Manager
	perms     *permissions.Store
	log       *zap.Logger
	metrics   *monitoring.Metrics

	root     string
	capacity int

	mu      sync.Mutex
	apps    map[string]*types.App
	current string
	locks   map[string]*sync.Mutex
}

// NewManager creates an app manager. root is the directory installs are
// placed under; capacity bounds the registry. metrics may be nil.
func NewManager(inst *installer.Installer, sandboxes *sandbox.Manager,
	perms *permissions.Store, root string, capacity int,
	log *zap.Logger, metrics *monitoring.Metrics) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		installer: inst,
		sandboxes: sandboxes,
		perms:     perms,
		log:       log,
		metrics:   metrics,
		root:      root,
		capacity:  capacity,
		apps:      make(map[string]*types.App),
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockFor returns the lifecycle lock for an app id, creating it on first use.
func (m *Manager) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// Install runs the package pipeline and registers the result as a Stopped
// app. The registry is unchanged on any failure and the partial install
// directory is removed.
func (m *Manager) Install(pkg string) (*types.App, error) {
	m.mu.Lock()
	if len(m.apps) >= m.capacity {
		m.mu.Unlock()
		return nil, fmt.Errorf("registry (%d): %w", m.capacity, errdefs.ErrNoCapacity)
	}
	m.mu.Unlock()

	id := uuid.NewString()
	dst := filepath.Join(m.root, id)

	if err := m.installer.ExtractPackage(pkg, dst); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	if err := m.installer.ValidateManifest(dst); err != nil {
		os.RemoveAll(dst)
		return nil, fmt.Errorf("validate: %w", err)
	}
	manifest, err := m.installer.LoadManifest(dst)
	if err != nil {
		os.RemoveAll(dst)
		return nil, fmt.Errorf("manifest: %w", err)
	}

	granted := permissions.Parse(manifest.Permissions)
	if err := m.perms.Save(id, granted); err != nil {
		os.RemoveAll(dst)
		return nil, fmt.Errorf("save permissions: %w", err)
	}

	app := &types.App{
		ID:          id,
		Name:        manifest.Name,
		Version:     manifest.Version,
		Author:      manifest.Author,
		EntryPoint:  manifest.EntryPoint,
		InstallPath: dst,
		State:       types.StateStopped,
		Permissions: granted,
		InstalledAt: time.Now(),
		MemoryLimit: manifest.MemoryLimit,
	}

	m.mu.Lock()
	// Re-check under the lock: racing installs may have filled the registry.
	if len(m.apps) >= m.capacity {
		m.mu.Unlock()
		os.RemoveAll(dst)
		_ = m.perms.Delete(id)
		return nil, fmt.Errorf("registry (%d): %w", m.capacity, errdefs.ErrNoCapacity)
	}
	m.apps[id] = app
	installed := len(m.apps)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.InstallsTotal.Inc()
		m.metrics.SetAppsInstalled(installed)
	}
	m.log.Info("installed app",
		zap.String("app_id", id),
		zap.String("name", app.Name),
		zap.String("version", app.Version),
		zap.String("permissions", granted.String()))

	snapshot := *app
	return &snapshot, nil
}

// Start creates a sandbox for the app, loads its entry file and executes it.
// Idempotent when the app is already Running; a Paused app must be resumed
// instead. The app is Running for the duration of the entry script, so a
// sandbox-create or load failure leaves it Stopped while a script failure
// marks it Error. Either way the sandbox is torn down and the cause
// propagated.
func (m *Manager) Start(id string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	app, ok := m.apps[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("app %s: %w", id, errdefs.ErrNotFound)
	}
	if app.State == types.StateRunning {
		m.mu.Unlock()
		return nil
	}
	if app.State == types.StatePaused {
		m.mu.Unlock()
		return fmt.Errorf("app %s is paused, resume it: %w", id, errdefs.ErrInvalidArgument)
	}
	entry := filepath.Join(app.InstallPath, app.EntryPoint)
	memLimit := app.MemoryLimit
	timeLimit := app.TimeLimit
	m.mu.Unlock()

	slot, err := m.sandboxes.Create(id)
	if err != nil {
		return fmt.Errorf("create sandbox: %w", err)
	}
	if memLimit > 0 || timeLimit > 0 {
		_ = m.sandboxes.SetLimits(id, memLimit, timeLimit)
	}

	if err := slot.Context.LoadFile(entry); err != nil {
		m.sandboxes.Destroy(id)
		return fmt.Errorf("load %s: %w", entry, err)
	}

	// The app is Running while its entry script evaluates; the engine's
	// error callback sees that state and can flip it to Error.
	m.mu.Lock()
	app.State = types.StateRunning
	m.current = id
	m.mu.Unlock()

	outcome, elapsed := slot.Context.Execute()
	if m.metrics != nil {
		m.metrics.RecordExecution(outcome.String(), elapsed)
	}
	if outcome != engine.OutcomeOK {
		cause := slot.Context.LastError()
		m.sandboxes.Destroy(id)
		m.mu.Lock()
		app.State = types.StateError
		if m.current == id {
			m.current = ""
		}
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.ScriptErrors.Inc()
		}
		m.log.Warn("app start failed",
			zap.String("app_id", id),
			zap.String("outcome", outcome.String()),
			zap.String("cause", cause),
			zap.Duration("elapsed", elapsed))
		return fmt.Errorf("execute (%s): %s", outcome.String(), cause)
	}

	m.mu.Lock()
	app.CPUTime += uint64(elapsed.Milliseconds())
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.StartsTotal.Inc()
	}
	m.log.Info("started app", zap.String("app_id", id), zap.Duration("elapsed", elapsed))
	return nil
}

// Stop halts the app and destroys its sandbox. Idempotent when the app is
// already Stopped. The current pointer is cleared only if it points here.
func (m *Manager) Stop(id string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	app, ok := m.apps[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("app %s: %w", id, errdefs.ErrNotFound)
	}
	if app.State == types.StateStopped {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if slot, ok := m.sandboxes.Get(id); ok {
		slot.Context.Stop()
	}
	m.sandboxes.Destroy(id)

	m.mu.Lock()
	app.State = types.StateStopped
	if m.current == id {
		m.current = ""
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.StopsTotal.Inc()
	}
	m.log.Info("stopped app", zap.String("app_id", id))
	return nil
}

// Pause moves a Running app to Paused. The sandbox and its context are kept;
// only the lifecycle state changes.
func (m *Manager) Pause(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return fmt.Errorf("app %s: %w", id, errdefs.ErrNotFound)
	}
	if app.State != types.StateRunning {
		return fmt.Errorf("app %s is %s: %w", id, app.State, errdefs.ErrInvalidArgument)
	}
	app.State = types.StatePaused
	m.log.Info("paused app", zap.String("app_id", id))
	return nil
}

// Resume moves a Paused app back to Running.
func (m *Manager) Resume(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return fmt.Errorf("app %s: %w", id, errdefs.ErrNotFound)
	}
	if app.State != types.StatePaused {
		return fmt.Errorf("app %s is %s: %w", id, app.State, errdefs.ErrInvalidArgument)
	}
	app.State = types.StateRunning
	m.log.Info("resumed app", zap.String("app_id", id))
	return nil
}

// Uninstall stops the app if needed and removes its record, install
// directory and permission grant.
func (m *Manager) Uninstall(id string) error {
	lock := m.lockFor(id)
	lock.Lock()

	m.mu.Lock()
	app, ok := m.apps[id]
	if !ok {
		m.mu.Unlock()
		lock.Unlock()
		return fmt.Errorf("app %s: %w", id, errdefs.ErrNotFound)
	}
	running := app.State != types.StateStopped
	m.mu.Unlock()

	if running {
		if slot, ok := m.sandboxes.Get(id); ok {
			slot.Context.Stop()
		}
		m.sandboxes.Destroy(id)
	}

	m.mu.Lock()
	delete(m.apps, id)
	delete(m.locks, id)
	if m.current == id {
		m.current = ""
	}
	installed := len(m.apps)
	m.mu.Unlock()
	lock.Unlock()

	if err := os.RemoveAll(app.InstallPath); err != nil {
		m.log.Warn("remove install dir", zap.String("app_id", id), zap.Error(err))
	}
	if err := m.perms.Delete(id); err != nil {
		m.log.Warn("delete grant", zap.String("app_id", id), zap.Error(err))
	}

	if m.metrics != nil {
		m.metrics.UninstallsTotal.Inc()
		m.metrics.SetAppsInstalled(installed)
	}
	m.log.Info("uninstalled app", zap.String("app_id", id), zap.String("name", app.Name))
	return nil
}

// Get returns a snapshot of the app record.
func (m *Manager) Get(id string) (*types.App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return nil, fmt.Errorf("app %s: %w", id, errdefs.ErrNotFound)
	}
	snapshot := *app
	return &snapshot, nil
}

// List returns snapshots of up to max installed apps (0 means all).
func (m *Manager) List(max int) []*types.App {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.App, 0, len(m.apps))
	for _, app := range m.apps {
		if max > 0 && len(out) >= max {
			break
		}
		snapshot := *app
		out = append(out, &snapshot)
	}
	return out
}

// Current returns the app holding the current slot.
func (m *Manager) Current() (*types.App, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == "" {
		return nil, false
	}
	app, ok := m.apps[m.current]
	if !ok {
		return nil, false
	}
	snapshot := *app
	return &snapshot, true
}

// CheckPermission tests the registry's cached grant for any of the required
// bits. The cache is kept in step with the store by Grant/Revoke.
func (m *Manager) CheckPermission(id string, required permissions.Permission) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return false
	}
	return app.Permissions.Has(required)
}

// GrantPermission widens the app's grant in both the store and the cache.
func (m *Manager) GrantPermission(id string, p permissions.Permission) error {
	m.mu.Lock()
	app, ok := m.apps[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("app %s: %w", id, errdefs.ErrNotFound)
	}

	if err := m.perms.Grant(id, p); err != nil {
		return err
	}

	m.mu.Lock()
	app.Permissions |= p
	m.mu.Unlock()
	return nil
}

// RevokePermission narrows the app's grant in both the store and the cache.
func (m *Manager) RevokePermission(id string, p permissions.Permission) error {
	m.mu.Lock()
	app, ok := m.apps[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("app %s: %w", id, errdefs.ErrNotFound)
	}

	if err := m.perms.Revoke(id, p); err != nil {
		return err
	}

	m.mu.Lock()
	app.Permissions &^= p
	m.mu.Unlock()
	return nil
}

// HandleScriptError marks a Running app Errored. Wired as the engine's error
// callback: the entry script evaluates while the record is Running, so a
// reported execution error lands here before Start's own failure handling.
func (m *Manager) HandleScriptError(id, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok || app.State != types.StateRunning {
		return
	}
	app.State = types.StateError
	m.log.Error("app errored",
		zap.String("app_id", id),
		zap.String("message", message))
}

// Stats summarizes the registry.
func (m *Manager) Stats() types.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := types.Stats{
		Installed: len(m.apps),
		Capacity:  m.capacity,
	}
	for _, app := range m.apps {
		switch app.State {
		case types.StateRunning:
			stats.Running++
		case types.StatePaused:
			stats.Paused++
		case types.StateError:
			stats.Errored++
		}
	}
	if m.current != "" {
		current := m.current
		stats.Current = &current
	}
	return stats
}

// Close stops every non-Stopped app. Called at shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.apps))
	for id, app := range m.apps {
		if app.State != types.StateStopped {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Stop(id); err != nil {
			m.log.Warn("stop at shutdown", zap.String("app_id", id), zap.Error(err))
		}
	}
}
