package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tembedos/runtime/internal/bridge"
	"github.com/tembedos/runtime/internal/engine"
	"github.com/tembedos/runtime/internal/hal/sim"
	"github.com/tembedos/runtime/internal/installer"
	"github.com/tembedos/runtime/internal/permissions"
	"github.com/tembedos/runtime/internal/sandbox"
	"github.com/tembedos/runtime/internal/shared/errdefs"
	"github.com/tembedos/runtime/internal/shared/types"
)

type fixture struct {
	manager   *Manager
	sandboxes *sandbox.Manager
	store     *permissions.Store
}

func newFixture(t *testing.T, maxApps, maxSandboxes int) *fixture {
	t.Helper()
	log := zap.NewNop()
	root := t.TempDir()

	store, err := permissions.NewStore(filepath.Join(root, "permissions.json"), log)
	require.NoError(t, err)

	eng := engine.New(engine.Config{
		MaxContexts:      maxSandboxes,
		DefaultTimeLimit: 2 * time.Second,
	}, log)

	devices := bridge.Devices{
		Radio:    sim.NewRadio(log),
		GPIO:     sim.NewGPIO(),
		Display:  sim.NewDisplay(log),
		Storage:  sim.NewStorage(),
		Network:  sim.NewNetwork(),
		Notifier: sim.NewNotifier(log),
	}
	natives := bridge.New(store, devices, log, nil)

	sandboxes := sandbox.NewManager(eng, natives, store,
		maxSandboxes, 64*1024, 2*time.Second, log, nil)
	inst := installer.New(64*1024, log)

	manager := NewManager(inst, sandboxes, store,
		filepath.Join(root, "apps"), maxApps, log, nil)
	eng.SetErrorCallback(manager.HandleScriptError)

	t.Cleanup(manager.Close)
	return &fixture{manager: manager, sandboxes: sandboxes, store: store}
}

func writePackage(t *testing.T, manifest, script string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte(script), 0o644))
	return dir
}

const testerManifest = `{
	"name": "Tester",
	"version": "0.1",
	"entry_point": "index.js",
	"permissions": "gpio.read,rf.transmit"
}`

func TestInstallManifestScenario(t *testing.T) {
	f := newFixture(t, 16, 8)
	pkg := writePackage(t, testerManifest, "var ready = true;")

	installed, err := f.manager.Install(pkg)
	require.NoError(t, err)

	assert.NotEmpty(t, installed.ID)
	assert.Equal(t, "Tester", installed.Name)
	assert.Equal(t, "0.1", installed.Version)
	assert.Equal(t, "index.js", installed.EntryPoint)
	assert.Equal(t, types.StateStopped, installed.State)
	assert.Equal(t, permissions.GPIORead|permissions.RFTransmit, installed.Permissions)

	// The grant is persisted, not just cached.
	assert.Equal(t, permissions.GPIORead|permissions.RFTransmit, f.store.Load(installed.ID))

	// Exactly the named bits, nothing else.
	assert.True(t, f.manager.CheckPermission(installed.ID, permissions.GPIORead))
	assert.True(t, f.manager.CheckPermission(installed.ID, permissions.RFTransmit))
	assert.False(t, f.manager.CheckPermission(installed.ID, permissions.RFReceive))
	assert.False(t, f.manager.CheckPermission(installed.ID, permissions.System))
}

func TestInstallInvalidManifest(t *testing.T) {
	f := newFixture(t, 16, 8)
	pkg := writePackage(t, `{"name": "NoEntry", "version": "1.0"}`, "1;")

	_, err := f.manager.Install(pkg)
	assert.ErrorIs(t, err, errdefs.ErrInvalidManifest)
	assert.Empty(t, f.manager.List(0))
}

func TestInstallCapacity(t *testing.T) {
	f := newFixture(t, 2, 8)

	for i := 0; i < 2; i++ {
		pkg := writePackage(t, testerManifest, "1;")
		_, err := f.manager.Install(pkg)
		require.NoError(t, err)
	}

	pkg := writePackage(t, testerManifest, "1;")
	_, err := f.manager.Install(pkg)
	assert.ErrorIs(t, err, errdefs.ErrNoCapacity)
	assert.Len(t, f.manager.List(0), 2)
}

func TestStartStopLifecycle(t *testing.T) {
	f := newFixture(t, 16, 8)
	pkg := writePackage(t, testerManifest, "var started = true;")

	installed, err := f.manager.Install(pkg)
	require.NoError(t, err)

	require.NoError(t, f.manager.Start(installed.ID))

	record, err := f.manager.Get(installed.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateRunning, record.State)
	assert.Equal(t, 1, f.sandboxes.Count())

	current, ok := f.manager.Current()
	require.True(t, ok)
	assert.Equal(t, installed.ID, current.ID)

	require.NoError(t, f.manager.Stop(installed.ID))

	record, err = f.manager.Get(installed.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateStopped, record.State)
	assert.Equal(t, 0, f.sandboxes.Count())

	_, ok = f.manager.Current()
	assert.False(t, ok)
}

func TestStartIdempotent(t *testing.T) {
	f := newFixture(t, 16, 8)
	pkg := writePackage(t, testerManifest, "1;")

	installed, err := f.manager.Install(pkg)
	require.NoError(t, err)

	require.NoError(t, f.manager.Start(installed.ID))
	require.Equal(t, 1, f.sandboxes.Count())

	// Second start is a no-op success: no second sandbox.
	require.NoError(t, f.manager.Start(installed.ID))
	assert.Equal(t, 1, f.sandboxes.Count())
}

func TestStopIdempotent(t *testing.T) {
	f := newFixture(t, 16, 8)

	other, err := f.manager.Install(writePackage(t, testerManifest, "1;"))
	require.NoError(t, err)
	target, err := f.manager.Install(writePackage(t, testerManifest, "1;"))
	require.NoError(t, err)

	require.NoError(t, f.manager.Start(other.ID))
	require.NoError(t, f.manager.Start(target.ID))

	// Stopping the non-current app leaves the current pointer intact.
	require.NoError(t, f.manager.Stop(other.ID))
	current, ok := f.manager.Current()
	require.True(t, ok)
	assert.Equal(t, target.ID, current.ID)

	// Stopping a stopped app is a no-op success.
	require.NoError(t, f.manager.Stop(other.ID))
	current, ok = f.manager.Current()
	require.True(t, ok)
	assert.Equal(t, target.ID, current.ID)
}

func TestStartUnknownApp(t *testing.T) {
	f := newFixture(t, 16, 8)
	assert.ErrorIs(t, f.manager.Start("ghost"), errdefs.ErrNotFound)
	assert.ErrorIs(t, f.manager.Stop("ghost"), errdefs.ErrNotFound)
}

func TestStartScriptFailureMarksError(t *testing.T) {
	f := newFixture(t, 16, 8)
	pkg := writePackage(t, testerManifest, "throw new Error('broken at boot');")

	installed, err := f.manager.Install(pkg)
	require.NoError(t, err)

	err = f.manager.Start(installed.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken at boot")

	record, getErr := f.manager.Get(installed.ID)
	require.NoError(t, getErr)
	assert.Equal(t, types.StateError, record.State)
	assert.Equal(t, 0, f.sandboxes.Count())

	_, ok := f.manager.Current()
	assert.False(t, ok)

	// Stop recovers the record to Stopped.
	require.NoError(t, f.manager.Stop(installed.ID))
	record, _ = f.manager.Get(installed.ID)
	assert.Equal(t, types.StateStopped, record.State)
}

func TestStartMissingEntryPoint(t *testing.T) {
	f := newFixture(t, 16, 8)
	dir := t.TempDir()
	manifest := `{"name": "NoFile", "version": "1.0", "entry_point": "missing.js"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifest), 0o644))

	installed, err := f.manager.Install(dir)
	require.NoError(t, err)

	err = f.manager.Start(installed.ID)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
	assert.Equal(t, 0, f.sandboxes.Count())

	// A load failure is a failed boot, not an execution error.
	record, _ := f.manager.Get(installed.ID)
	assert.Equal(t, types.StateStopped, record.State)
}

func TestStartWhilePaused(t *testing.T) {
	f := newFixture(t, 16, 8)

	installed, err := f.manager.Install(writePackage(t, testerManifest, "1;"))
	require.NoError(t, err)

	require.NoError(t, f.manager.Start(installed.ID))
	require.NoError(t, f.manager.Pause(installed.ID))

	err = f.manager.Start(installed.ID)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "paused")

	// The paused sandbox is untouched.
	assert.Equal(t, 1, f.sandboxes.Count())

	require.NoError(t, f.manager.Resume(installed.ID))
	record, _ := f.manager.Get(installed.ID)
	assert.Equal(t, types.StateRunning, record.State)
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t, 16, 8)
	pkg := writePackage(t, testerManifest, "1;")

	installed, err := f.manager.Install(pkg)
	require.NoError(t, err)

	// Pause requires Running.
	assert.ErrorIs(t, f.manager.Pause(installed.ID), errdefs.ErrInvalidArgument)

	require.NoError(t, f.manager.Start(installed.ID))
	require.NoError(t, f.manager.Pause(installed.ID))

	record, _ := f.manager.Get(installed.ID)
	assert.Equal(t, types.StatePaused, record.State)

	// The sandbox survives a pause.
	assert.Equal(t, 1, f.sandboxes.Count())

	require.NoError(t, f.manager.Resume(installed.ID))
	record, _ = f.manager.Get(installed.ID)
	assert.Equal(t, types.StateRunning, record.State)
}

func TestUninstall(t *testing.T) {
	f := newFixture(t, 16, 8)
	pkg := writePackage(t, testerManifest, "1;")

	installed, err := f.manager.Install(pkg)
	require.NoError(t, err)
	require.NoError(t, f.manager.Start(installed.ID))

	require.NoError(t, f.manager.Uninstall(installed.ID))

	_, err = f.manager.Get(installed.ID)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
	assert.Equal(t, 0, f.sandboxes.Count())
	assert.NoDirExists(t, installed.InstallPath)

	// The grant dies with the app identity.
	assert.Equal(t, permissions.None, f.store.Load(installed.ID))

	assert.ErrorIs(t, f.manager.Uninstall(installed.ID), errdefs.ErrNotFound)
}

func TestGrantRevokePermission(t *testing.T) {
	f := newFixture(t, 16, 8)
	pkg := writePackage(t, testerManifest, "1;")

	installed, err := f.manager.Install(pkg)
	require.NoError(t, err)

	require.NoError(t, f.manager.GrantPermission(installed.ID, permissions.Network))
	assert.True(t, f.manager.CheckPermission(installed.ID, permissions.Network))
	assert.True(t, f.store.Check(installed.ID, permissions.Network))

	require.NoError(t, f.manager.RevokePermission(installed.ID, permissions.Network))
	assert.False(t, f.manager.CheckPermission(installed.ID, permissions.Network))
	assert.False(t, f.store.Check(installed.ID, permissions.Network))
}

func TestNativesSeePermissions(t *testing.T) {
	f := newFixture(t, 16, 8)
	// Manifest grants rf.transmit but not storage.write.
	pkg := writePackage(t, testerManifest, `
		var tx = rf.transmit([1, 2, 3]);
		var wr = storage.writeText("f.txt", "data");
	`)

	installed, err := f.manager.Install(pkg)
	require.NoError(t, err)
	require.NoError(t, f.manager.Start(installed.ID))

	slot, ok := f.sandboxes.Get(installed.ID)
	require.True(t, ok)

	wr, found := slot.Context.GetGlobal("wr")
	require.True(t, found)
	m, isMap := wr.(map[string]interface{})
	require.True(t, isMap)
	assert.Contains(t, m["error"], "permission denied")
}

func TestStats(t *testing.T) {
	f := newFixture(t, 16, 8)

	a, err := f.manager.Install(writePackage(t, testerManifest, "1;"))
	require.NoError(t, err)
	b, err := f.manager.Install(writePackage(t, testerManifest, "1;"))
	require.NoError(t, err)

	require.NoError(t, f.manager.Start(a.ID))
	require.NoError(t, f.manager.Start(b.ID))
	require.NoError(t, f.manager.Pause(b.ID))

	stats := f.manager.Stats()
	assert.Equal(t, 2, stats.Installed)
	assert.Equal(t, 1, stats.Running)
	assert.Equal(t, 1, stats.Paused)
	assert.Equal(t, 16, stats.Capacity)
	require.NotNil(t, stats.Current)
	assert.Equal(t, b.ID, *stats.Current)
}

func TestList(t *testing.T) {
	f := newFixture(t, 16, 8)

	for i := 0; i < 3; i++ {
		_, err := f.manager.Install(writePackage(t, testerManifest, "1;"))
		require.NoError(t, err)
	}

	assert.Len(t, f.manager.List(0), 3)
	assert.Len(t, f.manager.List(2), 2)
	assert.Len(t, f.manager.List(10), 3)
}
