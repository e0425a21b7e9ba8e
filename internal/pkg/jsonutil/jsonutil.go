// Package jsonutil reads loosely-typed parameter maps as supplied by the
// calling agent, where numbers frequently arrive as strings.
package jsonutil

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Float extracts params[key] as a float64, coercing numeric strings, or
// returns fallback when the key is absent or not numeric.
func Float(params map[string]any, key string, fallback float64) float64 {
	res := lookup(params, key)
	if !res.Exists() {
		return fallback
	}
	switch res.Type {
	case gjson.Number:
		return res.Float()
	case gjson.String:
		if f := res.Float(); f != 0 || res.Str == "0" {
			return f
		}
	}
	return fallback
}

// Int extracts params[key] as an int with the same coercion as Float.
func Int(params map[string]any, key string, fallback int) int {
	res := lookup(params, key)
	if !res.Exists() {
		return fallback
	}
	switch res.Type {
	case gjson.Number:
		return int(res.Int())
	case gjson.String:
		if n := res.Int(); n != 0 || res.Str == "0" {
			return int(n)
		}
	}
	return fallback
}

// String extracts params[key] as a string, or fallback when absent.
func String(params map[string]any, key string, fallback string) string {
	res := lookup(params, key)
	if !res.Exists() || res.Type != gjson.String || res.Str == "" {
		return fallback
	}
	return res.Str
}

func lookup(params map[string]any, key string) gjson.Result {
	if len(params) == 0 {
		return gjson.Result{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(raw, key)
}
