package bridge

import (
	"github.com/dop251/goja"

	"github.com/tembedos/runtime/internal/engine"
	"github.com/tembedos/runtime/internal/permissions"
)

func (b *Bridge) registerGPIO(ctx *engine.Context) error {
	gpio := b.devices.GPIO

	natives := map[string]engine.NativeFunc{
		// Pin configuration is allowed with either GPIO capability; the
		// direction-specific natives gate the actual access.
		"gpio.setup": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.GPIORead|permissions.GPIOWrite, "gpio.setup") {
				return denied(ctx, "gpio.setup")
			}
			pin, ok := numberArg(call, 0)
			if !ok {
				return ctx.ErrorValue("gpio.setup: invalid pin parameter")
			}
			mode, ok := stringArg(call, 1)
			if !ok {
				return ctx.ErrorValue("gpio.setup: invalid mode parameter")
			}
			if err := gpio.Setup(int(pin), mode); err != nil {
				return ctx.ErrorValue("gpio.setup: " + err.Error())
			}
			return ctx.Undefined()
		},
		"gpio.write": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.GPIOWrite, "gpio.write") {
				return denied(ctx, "gpio.write")
			}
			pin, ok := numberArg(call, 0)
			if !ok {
				return ctx.ErrorValue("gpio.write: invalid pin parameter")
			}
			level, ok := boolArg(call, 1)
			if !ok {
				return ctx.ErrorValue("gpio.write: invalid level parameter")
			}
			if err := gpio.Write(int(pin), level); err != nil {
				return ctx.ErrorValue("gpio.write: " + err.Error())
			}
			return ctx.Undefined()
		},
		"gpio.read": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.GPIORead, "gpio.read") {
				return denied(ctx, "gpio.read")
			}
			pin, ok := numberArg(call, 0)
			if !ok {
				return ctx.ErrorValue("gpio.read: invalid pin parameter")
			}
			level, err := gpio.Read(int(pin))
			if err != nil {
				return ctx.ErrorValue("gpio.read: " + err.Error())
			}
			return ctx.ToValue(level)
		},
	}

	for name, fn := range natives {
		if err := ctx.RegisterNative(name, fn); err != nil {
			return err
		}
	}
	return nil
}
