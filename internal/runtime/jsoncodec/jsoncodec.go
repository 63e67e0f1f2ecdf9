package jsoncodec

import (
	"encoding/json"
	"errors"
	"io"
	"math"

	"github.com/bytedance/sonic"
)

var (
	defaultConfig = sonic.ConfigStd

	// documentConfig keeps integers intact so record ids survive a round trip
	// through map[string]any without turning into float64.
	documentConfig = sonic.Config{
		EscapeHTML:     true,
		UseNumber:      true,
		ValidateString: true,
	}.Froze()
)

var ErrNotAnObject = errors.New("jsoncodec: payload is not a JSON object")

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	enc := defaultConfig.NewEncoder(w)
	return enc.Encode(v)
}

func Decode(r io.Reader, v any) error {
	dec := defaultConfig.NewDecoder(r)
	return dec.Decode(v)
}

// UnmarshalValue decodes arbitrary JSON and normalizes numbers with Normalize.
func UnmarshalValue(data []byte) (any, error) {
	var v any
	if err := documentConfig.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return Normalize(v), nil
}

// UnmarshalDocument decodes a JSON object into a map with normalized numbers.
func UnmarshalDocument(data []byte) (map[string]any, error) {
	v, err := UnmarshalValue(data)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotAnObject
	}
	return doc, nil
}

// Normalize walks decoded JSON and converts numbers to int64 when they are
// integral, float64 otherwise. Maps and slices are rewritten in place.
func Normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = Normalize(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = Normalize(item)
		}
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return normalizeFloat(f)
		}
		return val.String()
	case float64:
		return normalizeFloat(val)
	case float32:
		return normalizeFloat(float64(val))
	case int:
		return int64(val)
	case int32:
		return int64(val)
	default:
		return v
	}
}

const maxExactFloatInt = 1 << 53

func normalizeFloat(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) <= maxExactFloatInt {
		return int64(f)
	}
	return f
}
