package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tembedos/runtime/internal/engine"
	"github.com/tembedos/runtime/internal/permissions"
	"github.com/tembedos/runtime/internal/shared/errdefs"
)

// nopRegistrar skips native registration; these tests exercise pool
// bookkeeping, not the catalogue.
type nopRegistrar struct{}

func (nopRegistrar) RegisterAll(ctx *engine.Context) error { return nil }

// mapChecker grants per-app bitsets.
type mapChecker struct {
	grants map[string]permissions.Permission
}

func (m *mapChecker) Check(appID string, required permissions.Permission) bool {
	return m.grants[appID].Has(required)
}

func newTestManager(t *testing.T, capacity int, checker Checker) *Manager {
	t.Helper()
	if checker == nil {
		checker = &mapChecker{grants: map[string]permissions.Permission{}}
	}
	eng := engine.New(engine.Config{MaxContexts: capacity + 1}, zap.NewNop())
	return NewManager(eng, nopRegistrar{}, checker,
		capacity, 64*1024, 5*time.Second, zap.NewNop(), nil)
}

func TestCreateDestroy(t *testing.T) {
	m := newTestManager(t, 2, nil)

	slot, err := m.Create("app-1")
	require.NoError(t, err)
	require.NotNil(t, slot.Context)
	assert.Equal(t, int64(64*1024), slot.MemoryLimit)
	assert.Equal(t, 5*time.Second, slot.TimeLimit)
	assert.False(t, slot.StartedAt.IsZero())
	assert.Equal(t, 1, m.Count())

	m.Destroy("app-1")
	assert.Equal(t, 0, m.Count())
}

func TestCreateCapacity(t *testing.T) {
	m := newTestManager(t, 2, nil)

	_, err := m.Create("app-1")
	require.NoError(t, err)
	_, err = m.Create("app-2")
	require.NoError(t, err)

	_, err = m.Create("app-3")
	assert.ErrorIs(t, err, errdefs.ErrNoCapacity)
	assert.Equal(t, 2, m.Count())

	// Freeing a slot restores capacity.
	m.Destroy("app-1")
	_, err = m.Create("app-3")
	assert.NoError(t, err)
}

func TestCreateDuplicate(t *testing.T) {
	m := newTestManager(t, 2, nil)

	_, err := m.Create("app-1")
	require.NoError(t, err)

	_, err = m.Create("app-1")
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
	assert.Equal(t, 1, m.Count())
}

func TestDestroyAbsentIsNoOp(t *testing.T) {
	m := newTestManager(t, 2, nil)

	// Must not panic or disturb the pool.
	m.Destroy("never-created")
	assert.Equal(t, 0, m.Count())
}

func TestSetLimits(t *testing.T) {
	m := newTestManager(t, 2, nil)

	slot, err := m.Create("app-1")
	require.NoError(t, err)

	require.NoError(t, m.SetLimits("app-1", 32*1024, 2*time.Second))
	assert.Equal(t, int64(32*1024), slot.MemoryLimit)
	assert.Equal(t, 2*time.Second, slot.TimeLimit)
	assert.Equal(t, 2*time.Second, slot.Context.TimeLimit())

	// Zero values leave the budgets untouched.
	require.NoError(t, m.SetLimits("app-1", 0, 0))
	assert.Equal(t, int64(32*1024), slot.MemoryLimit)

	assert.ErrorIs(t, m.SetLimits("absent", 1024, time.Second), errdefs.ErrNotFound)
}

func TestCheckAccess(t *testing.T) {
	checker := &mapChecker{grants: map[string]permissions.Permission{
		"sys-app": permissions.System,
		"rf-app":  permissions.RFReceive,
		"plain":   permissions.None,
	}}
	m := newTestManager(t, 4, checker)

	for _, id := range []string{"sys-app", "rf-app", "plain"} {
		_, err := m.Create(id)
		require.NoError(t, err)
	}

	tests := []struct {
		name     string
		appID    string
		resource string
		want     bool
	}{
		{"system path with grant", "sys-app", "/system/config", true},
		{"system path without grant", "plain", "/system/config", false},
		{"rf resource with any rf bit", "rf-app", "rf.scan", true},
		{"rf resource without grant", "plain", "rf.scan", false},
		{"plain resource", "plain", "/data/notes.txt", true},
		{"unknown app passes", "ghost", "/system/config", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.CheckAccess(tt.appID, tt.resource))
		})
	}
}

func TestCheckAccessTimeBudget(t *testing.T) {
	m := newTestManager(t, 2, nil)

	_, err := m.Create("app-1")
	require.NoError(t, err)

	// Shrink the budget so the sandbox is already expired.
	require.NoError(t, m.SetLimits("app-1", 0, time.Nanosecond))
	time.Sleep(time.Millisecond)

	assert.False(t, m.CheckAccess("app-1", "/data/anything"))
}
