package decode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/mitchellh/mapstructure"
)

// Options 用于定制 Decode 行为。
type Options struct {
	// 宽松解码（默认 true）："123" -> int、1.0 -> int64 等。
	WeaklyTypedInput bool
	// 出现结构体里没有的字段时报错
	ErrorUnused bool
}

func DefaultOptions() Options {
	return Options{
		WeaklyTypedInput: true,
	}
}

// Decode 将 map[string]any（或任意 JSON 形态的值）解码到结构体 T，字段读取使用 `json` tag。
func Decode[T any](in any, opts ...Options) (*T, error) {
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}
	cfg := DefaultOptions()
	if len(opts) > 0 {
		cfg = opts[0]
	}

	var out T
	decCfg := &mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: cfg.WeaklyTypedInput,
		ErrorUnused:      cfg.ErrorUnused,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			floatToIntHook(),
			jsonRawStringToMapHook(),
		),
	}

	dec, err := mapstructure.NewDecoder(decCfg)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return nil, fmt.Errorf("decode struct: %w", err)
	}
	return &out, nil
}

// Payload 先把原始 JSON 解成通用值再走 Decode，保留 json.Number 以免大整数丢精度
func Payload[T any](raw json.RawMessage, opts ...Options) (*T, error) {
	v, err := generic(raw)
	if err != nil {
		return nil, err
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, fmt.Errorf("payload is %T, want object", v)
	}
	return Decode[T](v, opts...)
}

// StringOrField 兼容两种形态：`"abc"` 或 `{"<key>":"abc"}`
func StringOrField(raw json.RawMessage, key string) (string, error) {
	v, err := generic(raw)
	if err != nil {
		return "", err
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case map[string]any:
		return readString(t, key)
	default:
		return "", fmt.Errorf("payload is %T, want string or object", v)
	}
}

func generic(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("payload json: %w", err)
	}
	if v == nil {
		return nil, fmt.Errorf("payload is null")
	}
	return v, nil
}

// readString 从 map 中读取 string 字段（数字也接受）。
func readString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", fmt.Errorf("missing field %q", key)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("field %q not string (got %T)", key, v)
	}
}

// floatToIntHook：float64 / json.Number 自动转为 int / int32 / int64。
func floatToIntHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		switch to.Kind() {
		case reflect.Int, reflect.Int32, reflect.Int64:
		default:
			return data, nil
		}
		var n int64
		switch v := data.(type) {
		case float64:
			n = int64(v)
		case json.Number:
			i, err := v.Int64()
			if err != nil {
				return data, nil
			}
			n = i
		default:
			return data, nil
		}
		switch to.Kind() {
		case reflect.Int:
			return int(n), nil
		case reflect.Int32:
			return int32(n), nil
		default:
			return n, nil
		}
	}
}

// jsonRawStringToMapHook：JSON 字符串自动转为 map[string]any（嵌套字符串 JSON 字段）。
func jsonRawStringToMapHook() mapstructure.DecodeHookFuncKind {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.String || to != reflect.Map {
			return data, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(data.(string)), &m); err == nil {
			return m, nil
		}
		return data, nil
	}
}
