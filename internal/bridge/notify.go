package bridge

import (
	"github.com/dop251/goja"

	"github.com/tembedos/runtime/internal/engine"
	"github.com/tembedos/runtime/internal/permissions"
)

// registerNotify binds the user-attention natives. They share the ui.create
// capability: both surfaces compete for the user's attention and the
// manifest vocabulary has no finer bit.
func (b *Bridge) registerNotify(ctx *engine.Context) error {
	notifier := b.devices.Notifier

	durationNative := func(op string, fn func(int) error) engine.NativeFunc {
		return func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.UICreate, op) {
				return denied(ctx, op)
			}
			n, ok := numberArg(call, 0)
			if !ok || n < 0 {
				return ctx.ErrorValue(op + ": invalid duration parameter")
			}
			if err := fn(int(n)); err != nil {
				return ctx.ErrorValue(op + ": " + err.Error())
			}
			return ctx.Undefined()
		}
	}

	natives := map[string]engine.NativeFunc{
		"notify.show": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.UICreate, "notify.show") {
				return denied(ctx, "notify.show")
			}
			msg, ok := stringArg(call, 0)
			if !ok {
				return ctx.ErrorValue("notify.show: invalid message parameter")
			}
			if err := notifier.Show(msg); err != nil {
				return ctx.ErrorValue("notify.show: " + err.Error())
			}
			return ctx.Undefined()
		},
		"notify.led": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.UICreate, "notify.led") {
				return denied(ctx, "notify.led")
			}
			on, ok := boolArg(call, 0)
			if !ok {
				return ctx.ErrorValue("notify.led: invalid state parameter")
			}
			if err := notifier.LED(on); err != nil {
				return ctx.ErrorValue("notify.led: " + err.Error())
			}
			return ctx.Undefined()
		},
		"notify.beep":    durationNative("notify.beep", notifier.Beep),
		"notify.vibrate": durationNative("notify.vibrate", notifier.Vibrate),
		"notify.flash": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.UICreate, "notify.flash") {
				return denied(ctx, "notify.flash")
			}
			times, ok := numberArg(call, 0)
			if !ok || times < 0 {
				return ctx.ErrorValue("notify.flash: invalid count parameter")
			}
			if err := notifier.Flash(int(times)); err != nil {
				return ctx.ErrorValue("notify.flash: " + err.Error())
			}
			return ctx.Undefined()
		},
	}

	for name, fn := range natives {
		if err := ctx.RegisterNative(name, fn); err != nil {
			return err
		}
	}
	return nil
}
