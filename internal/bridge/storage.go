package bridge

import (
	"github.com/dop251/goja"

	"github.com/tembedos/runtime/internal/engine"
	"github.com/tembedos/runtime/internal/permissions"
)

func (b *Bridge) registerStorage(ctx *engine.Context) error {
	store := b.devices.Storage

	natives := map[string]engine.NativeFunc{
		"storage.writeText": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.StorageWrite, "storage.writeText") {
				return denied(ctx, "storage.writeText")
			}
			path, ok := stringArg(call, 0)
			if !ok {
				return ctx.ErrorValue("storage.writeText: invalid filename parameter")
			}
			content, ok := stringArg(call, 1)
			if !ok {
				return ctx.ErrorValue("storage.writeText: invalid content parameter")
			}
			if err := store.WriteText(path, content); err != nil {
				return ctx.ErrorValue("storage.writeText: " + err.Error())
			}
			return ctx.Undefined()
		},
		"storage.readText": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.StorageRead, "storage.readText") {
				return denied(ctx, "storage.readText")
			}
			path, ok := stringArg(call, 0)
			if !ok {
				return ctx.ErrorValue("storage.readText: invalid filename parameter")
			}
			content, err := store.ReadText(path)
			if err != nil {
				return ctx.ErrorValue("storage.readText: " + err.Error())
			}
			return ctx.ToValue(content)
		},
		"storage.setConfig": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.StorageWrite, "storage.setConfig") {
				return denied(ctx, "storage.setConfig")
			}
			key, ok := stringArg(call, 0)
			if !ok {
				return ctx.ErrorValue("storage.setConfig: invalid key parameter")
			}
			value, ok := stringArg(call, 1)
			if !ok {
				return ctx.ErrorValue("storage.setConfig: invalid value parameter")
			}
			if err := store.SetConfig(key, value); err != nil {
				return ctx.ErrorValue("storage.setConfig: " + err.Error())
			}
			return ctx.Undefined()
		},
		"storage.getConfig": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.StorageRead, "storage.getConfig") {
				return denied(ctx, "storage.getConfig")
			}
			key, ok := stringArg(call, 0)
			if !ok {
				return ctx.ErrorValue("storage.getConfig: invalid key parameter")
			}
			value, err := store.GetConfig(key)
			if err != nil {
				return ctx.ErrorValue("storage.getConfig: " + err.Error())
			}
			return ctx.ToValue(value)
		},
		"storage.deleteFile": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.StorageWrite, "storage.deleteFile") {
				return denied(ctx, "storage.deleteFile")
			}
			path, ok := stringArg(call, 0)
			if !ok {
				return ctx.ErrorValue("storage.deleteFile: invalid filename parameter")
			}
			if err := store.Delete(path); err != nil {
				return ctx.ErrorValue("storage.deleteFile: " + err.Error())
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
