package bridge

import (
	"github.com/dop251/goja"

	"github.com/tembedos/runtime/internal/engine"
	"github.com/tembedos/runtime/internal/permissions"
)

// registerWifi binds the Wi-Fi natives. Station-mode operations require the
// network capability; hosting an access point additionally requires system.
func (b *Bridge) registerWifi(ctx *engine.Context) error {
	net := b.devices.Network

	natives := map[string]engine.NativeFunc{
		"wifi.connect": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.Network, "wifi.connect") {
				return denied(ctx, "wifi.connect")
			}
			ssid, ok := stringArg(call, 0)
			if !ok {
				return ctx.ErrorValue("wifi.connect: invalid ssid parameter")
			}
			password, _ := stringArg(call, 1) // open networks pass no password
			if err := net.Connect(ssid, password); err != nil {
				return ctx.ErrorValue("wifi.connect: " + err.Error())
			}
			return ctx.Undefined()
		},
		"wifi.disconnect": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.Network, "wifi.disconnect") {
				return denied(ctx, "wifi.disconnect")
			}
			if err := net.Disconnect(); err != nil {
				return ctx.ErrorValue("wifi.disconnect: " + err.Error())
			}
			return ctx.Undefined()
		},
		"wifi.scan": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.Network, "wifi.scan") {
				return denied(ctx, "wifi.scan")
			}
			aps, err := net.Scan()
			if err != nil {
				return ctx.ErrorValue("wifi.scan: " + err.Error())
			}
			out := make([]map[string]interface{}, len(aps))
			for i, ap := range aps {
				out[i] = map[string]interface{}{"ssid": ap.SSID, "rssi": ap.RSSI}
			}
			return ctx.ToValue(out)
		},
		"wifi.getStatus": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.Network, "wifi.getStatus") {
				return denied(ctx, "wifi.getStatus")
			}
			status, err := net.Status()
			if err != nil {
				return ctx.ErrorValue("wifi.getStatus: " + err.Error())
			}
			return ctx.ToValue(status)
		},
		"wifi.getIPAddress": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.Network, "wifi.getIPAddress") {
				return denied(ctx, "wifi.getIPAddress")
			}
			ip, err := net.IPAddress()
			if err != nil {
				return ctx.ErrorValue("wifi.getIPAddress: " + err.Error())
			}
			return ctx.ToValue(ip)
		},
		"wifi.startAP": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.Network, "wifi.startAP") || !b.allow(ctx, permissions.System, "wifi.startAP") {
				return denied(ctx, "wifi.startAP")
			}
			ssid, ok := stringArg(call, 0)
			if !ok {
				return ctx.ErrorValue("wifi.startAP: invalid ssid parameter")
			}
			password, _ := stringArg(call, 1)
			if err := net.StartAP(ssid, password); err != nil {
				return ctx.ErrorValue("wifi.startAP: " + err.Error())
			}
			return ctx.Undefined()
		},
		"wifi.stopAP": func(call goja.FunctionCall) goja.Value {
			if !b.allow(ctx, permissions.Network, "wifi.stopAP") || !b.allow(ctx, permissions.System, "wifi.stopAP") {
				return denied(ctx, "wifi.stopAP")
			}
			if err := net.StopAP(); err != nil {
				return ctx.ErrorValue("wifi.stopAP: " + err.Error())
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
