package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"
)

// parseValue encodes text as a stack value of type t.
func parseValue(text string, t api.ValueType) (uint64, error) {
	text = strings.TrimSpace(text)
	switch t {
	case api.ValueTypeI32:
		v, err := strconv.ParseInt(text, 0, 32)
		if err != nil {
			// allow the full unsigned range
			u, uerr := strconv.ParseUint(text, 0, 32)
			if uerr != nil {
				return 0, err
			}
			return uint64(uint32(u)), nil
		}
		return api.EncodeI32(int32(v)), nil
	case api.ValueTypeI64:
		v, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			u, uerr := strconv.ParseUint(text, 0, 64)
			if uerr != nil {
				return 0, err
			}
			return u, nil
		}
		return api.EncodeI64(v), nil
	case api.ValueTypeF32:
		v, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return 0, err
		}
		return api.EncodeF32(float32(v)), nil
	case api.ValueTypeF64:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, err
		}
		return api.EncodeF64(v), nil
	default:
		return 0, fmt.Errorf("unsupported parameter type %s", api.ValueTypeName(t))
	}
}

// formatValue renders a stack value of type t.
func formatValue(v uint64, t api.ValueType) string {
	switch t {
	case api.ValueTypeI32:
		return strconv.FormatInt(int64(api.DecodeI32(v)), 10)
	case api.ValueTypeI64:
		return strconv.FormatInt(int64(v), 10)
	case api.ValueTypeF32:
		return strconv.FormatFloat(float64(api.DecodeF32(v)), 'g', -1, 32)
	case api.ValueTypeF64:
		return strconv.FormatFloat(math.Float64frombits(v), 'g', -1, 64)
	default:
		return fmt.Sprintf("0x%x", v)
	}
}

func formatResults(vals []uint64, types []api.ValueType) string {
	if len(vals) == 0 {
		return "()"
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		t := api.ValueTypeI64
		if i < len(types) {
			t = types[i]
		}
		parts[i] = formatValue(v, t)
	}
	return strings.Join(parts, ", ")
}
