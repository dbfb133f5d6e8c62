package bridge

import (
	"errors"

	"github.com/dop251/goja"

	"github.com/tembedos/runtime/internal/engine"
	"github.com/tembedos/runtime/internal/hal"
	"github.com/tembedos/runtime/internal/permissions"
)

// registerRF binds the transceiver natives. Receive-path operations require
// rf.receive, transmit requires rf.transmit, and shared configuration accepts
// either RF capability.
func (b *Bridge) registerRF(ctx *engine.Context) error {
	radio := b.devices.Radio

	natives := map[string]engine.NativeFunc{
		"rf.setFrequency": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.AnyRF, "rf.setFrequency") {
				return denied(ctx, "rf.setFrequency")
			}
			hz, ok := numberArg(call, 0)
			if !ok || hz <= 0 {
				return ctx.ErrorValue("rf.setFrequency: invalid frequency parameter")
			}
			if err := radio.SetFrequency(uint32(hz)); err != nil {
				return ctx.ErrorValue("rf.setFrequency: " + err.Error())
			}
			return ctx.Undefined()
		},
		"rf.getFrequency": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.AnyRF, "rf.getFrequency") {
				return denied(ctx, "rf.getFrequency")
			}
			return ctx.ToValue(float64(radio.Frequency()))
		},
		"rf.setModulation": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.AnyRF, "rf.setModulation") {
				return denied(ctx, "rf.setModulation")
			}
			mode, ok := stringArg(call, 0)
			if !ok {
				return ctx.ErrorValue("rf.setModulation: invalid modulation parameter")
			}
			if err := radio.SetModulation(mode); err != nil {
				return ctx.ErrorValue("rf.setModulation: " + err.Error())
			}
			return ctx.Undefined()
		},
		"rf.startReceive": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.RFReceive, "rf.startReceive") {
				return denied(ctx, "rf.startReceive")
			}
			if err := radio.StartReceive(); err != nil {
				return ctx.ErrorValue("rf.startReceive: " + err.Error())
			}
			return ctx.Undefined()
		},
		"rf.stopReceive": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.RFReceive, "rf.stopReceive") {
				return denied(ctx, "rf.stopReceive")
			}
			if err := radio.StopReceive(); err != nil {
				return ctx.ErrorValue("rf.stopReceive: " + err.Error())
			}
			return ctx.Undefined()
		},
		"rf.transmit": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.RFTransmit, "rf.transmit") {
				return denied(ctx, "rf.transmit")
			}
			data, ok := bytesArg(call, 0)
			if !ok {
				return ctx.ErrorValue("rf.transmit: invalid data parameter")
			}
			if err := radio.Transmit(data); err != nil {
				return ctx.ErrorValue("rf.transmit: " + err.Error())
			}
			return ctx.Undefined()
		},
		"rf.readSignal": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.RFReceive, "rf.readSignal") {
				return denied(ctx, "rf.readSignal")
			}
			sig, err := radio.ReadSignal()
			if errors.Is(err, hal.ErrNoSignal) {
				return ctx.Null()
			}
			if err != nil {
				return ctx.ErrorValue("rf.readSignal: " + err.Error())
			}
			return ctx.ToValue(map[string]interface{}{
				"frequency": float64(sig.Frequency),
				"rssi":      sig.RSSI,
				"length":    len(sig.Data),
			})
		},
		"rf.getRssi": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.RFReceive, "rf.getRssi") {
				return denied(ctx, "rf.getRssi")
			}
			return ctx.ToValue(radio.RSSI())
		},
		"rf.isPresent": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.AnyRF, "rf.isPresent") {
				return denied(ctx, "rf.isPresent")
			}
			return ctx.ToValue(radio.Present())
		},
		"rf.loadPreset": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.AnyRF, "rf.loadPreset") {
				return denied(ctx, "rf.loadPreset")
			}
			preset, ok := stringArg(call, 0)
			if !ok {
				return ctx.ErrorValue("rf.loadPreset: invalid preset parameter")
			}
			if err := radio.LoadPreset(preset); err != nil {
				return ctx.ErrorValue("rf.loadPreset: " + err.Error())
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
