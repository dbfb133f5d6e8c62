package bridge

import "github.com/dop251/goja"

// Positional argument extraction. Missing or wrong-typed arguments fail; the
// native returns an in-script error value rather than throwing.

func stringArg(call goja.FunctionCall, i int) (string, bool) {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return "", false
	}
	s, ok := v.Export().(string)
	return s, ok
}

func numberArg(call goja.FunctionCall, i int) (float64, bool) {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return 0, false
	}
	switch n := v.Export().(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func boolArg(call goja.FunctionCall, i int) (bool, bool) {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return false, false
	}
	b, ok := v.Export().(bool)
	return b, ok
}

// bytesArg accepts a string or an array of byte-range numbers.
func bytesArg(call goja.FunctionCall, i int) ([]byte, bool) {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}
	switch raw := v.Export().(type) {
	case string:
		if raw == "" {
			return nil, false
		}
		return []byte(raw), true
	case []byte:
		return raw, len(raw) > 0
	case []interface{}:
		out := make([]byte, 0, len(raw))
		for _, el := range raw {
			var n int64
			switch num := el.(type) {
			case int64:
				n = num
			case float64:
				n = int64(num)
			default:
				return nil, false
			}
			if n < 0 || n > 255 {
				return nil, false
			}
			out = append(out, byte(n))
		}
		return out, len(out) > 0
	default:
		return nil, false
	}
}
