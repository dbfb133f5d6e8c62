package bridge

import (
	"github.com/dop251/goja"

	"github.com/tembedos/runtime/internal/engine"
	"github.com/tembedos/runtime/internal/permissions"
)

func (b *Bridge) registerUI(ctx *engine.Context) error {
	display := b.devices.Display

	natives := map[string]engine.NativeFunc{
		"ui.createScreen": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.UICreate, "ui.createScreen") {
				return denied(ctx, "ui.createScreen")
			}
			title, ok := stringArg(call, 0)
			if !ok {
				return ctx.ErrorValue("ui.createScreen: invalid title parameter")
			}
			id, err := display.CreateScreen(title)
			if err != nil {
				return ctx.ErrorValue("ui.createScreen: " + err.Error())
			}
			return ctx.ToValue(id)
		},
		"ui.createButton": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.UICreate, "ui.createButton") {
				return denied(ctx, "ui.createButton")
			}
			screen, ok := numberArg(call, 0)
			if !ok {
				return ctx.ErrorValue("ui.createButton: invalid screen parameter")
			}
			label, ok := stringArg(call, 1)
			if !ok {
				return ctx.ErrorValue("ui.createButton: invalid label parameter")
			}
			id, err := display.CreateButton(int(screen), label)
			if err != nil {
				return ctx.ErrorValue("ui.createButton: " + err.Error())
			}
			return ctx.ToValue(id)
		},
		"ui.createLabel": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.UICreate, "ui.createLabel") {
				return denied(ctx, "ui.createLabel")
			}
			screen, ok := numberArg(call, 0)
			if !ok {
				return ctx.ErrorValue("ui.createLabel: invalid screen parameter")
			}
			text, ok := stringArg(call, 1)
			if !ok {
				return ctx.ErrorValue("ui.createLabel: invalid text parameter")
			}
			id, err := display.CreateLabel(int(screen), text)
			if err != nil {
				return ctx.ErrorValue("ui.createLabel: " + err.Error())
			}
			return ctx.ToValue(id)
		},
		"ui.showNotification": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.UICreate, "ui.showNotification") {
				return denied(ctx, "ui.showNotification")
			}
			text, ok := stringArg(call, 0)
			if !ok {
				return ctx.ErrorValue("ui.showNotification: invalid text parameter")
			}
			if err := display.ShowNotification(text); err != nil {
				return ctx.ErrorValue("ui.showNotification: " + err.Error())
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
