package bridge

import (
	"strings"
	"sync/atomic"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/tembedos/runtime/internal/engine"
)

// registerConsole binds console.*, print and the timer shims. None of these
// touch hardware, so no permission gate applies.
func (b *Bridge) registerConsole(ctx *engine.Context) error {
	makeLog := func(level string) engine.NativeFunc {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			msg := strings.Join(parts, " ")
			ctx.AppendConsole(level, msg)
			b.log.Info("script console",
				zap.String("app_id", ctx.AppID()),
				zap.String("level", level),
				zap.String("message", msg))
			return ctx.Undefined()
		}
	}

	natives := map[string]engine.NativeFunc{
		"console.log":   makeLog("log"),
		"console.info":  makeLog("info"),
		"console.warn":  makeLog("warn"),
		"console.error": makeLog("error"),
		"print":         makeLog("log"),
	}

	// setTimeout is accepted but not asynchronous: the callback runs
	// immediately on the script's own thread and the delay is ignored.
	var timerID int64
	natives["setTimeout"] = func(call goja.FunctionCall) goja.Value {
		fn, ok := ctx.Callable(call.Argument(0))
		if !ok {
			return ctx.ErrorValue("setTimeout: invalid callback parameter")
		}
		if _, err := fn(goja.Undefined()); err != nil {
			return ctx.ErrorValue("setTimeout: " + err.Error())
		}
		return ctx.ToValue(atomic.AddInt64(&timerID, 1))
	}
	natives["clearTimeout"] = func(call goja.FunctionCall) goja.Value {
		return ctx.Undefined()
	}

	for name, fn := range natives {
		if err := ctx.RegisterNative(name, fn); err != nil {
			return err
		}
	}
	return nil
}
