// Package bridge exposes the fixed catalogue of host functions into a script
// context. Every collaborator-backed native wraps a permission check around
// the call; denial returns an in-script error value and never reaches the
// collaborator.
package bridge

import (
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/tembedos/runtime/internal/engine"
	"github.com/tembedos/runtime/internal/hal"
	"github.com/tembedos/runtime/internal/infrastructure/monitoring"
	"github.com/tembedos/runtime/internal/permissions"
)

// PermissionChecker resolves a grant check for an app id. Check uses any-bit
// semantics; the bridge always passes a single bit per native, composite
// masks only where any one capability of a family suffices.
type PermissionChecker interface {
	Check(appID string, required permissions.Permission) bool
}

// Devices bundles the hardware collaborators the catalogue drives.
type Devices struct {
	Radio    hal.Radio
	GPIO     hal.GPIO
	Display  hal.Display
	Storage  hal.Storage
	Network  hal.Network
	Notifier hal.Notifier
}

// Bridge holds the wiring for native registration. It keeps no state beyond
// it; all side effects are confined to the collaborator being called.
type Bridge struct {
	perms   PermissionChecker
	devices Devices
	log     *zap.Logger
	metrics *monitoring.Metrics
}

// New creates a bridge. metrics may be nil.
func New(perms PermissionChecker, devices Devices, log *zap.Logger, metrics *monitoring.Metrics) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{perms: perms, devices: devices, log: log, metrics: metrics}
}

// RegisterAll populates the context's native table with the full catalogue.
func (b *Bridge) RegisterAll(ctx *engine.Context) error {
	groups := []struct {
		name string
		fn   func(*engine.Context) error
	}{
		{"console", b.registerConsole},
		{"rf", b.registerRF},
		{"gpio", b.registerGPIO},
		{"ui", b.registerUI},
		{"storage", b.registerStorage},
		{"notify", b.registerNotify},
		{"wifi", b.registerWifi},
	}
	for _, g := range groups {
		if err := g.fn(ctx); err != nil {
			return fmt.Errorf("register %s natives: %w", g.name, err)
		}
	}
	return nil
}

// allow performs the per-call permission gate. On denial it records the
// metric and log line; the caller returns an error value into the script.
func (b *Bridge) allow(ctx *engine.Context, required permissions.Permission, op string) bool {
	if b.perms.Check(ctx.AppID(), required) {
		return true
	}
	if b.metrics != nil {
		b.metrics.PermissionDenials.WithLabelValues(op).Inc()
	}
	b.log.Warn("native call denied",
		zap.String("app_id", ctx.AppID()),
		zap.String("op", op),
		zap.String("required", required.String()))
	return false
}

func denied(ctx *engine.Context, op string) goja.Value {
	return ctx.ErrorValue("permission denied: " + op)
}
