package common

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// ErrNotInteger is returned by IntArg for values that are not whole numbers.
var ErrNotInteger = errors.New("not an integer")

// IntArg reads an integer argument. JSON numbers arrive as float64, so any
// integral number is accepted, as are numeric strings. present is false only
// when the argument is absent or null.
func IntArg(args map[string]any, key string) (value int, present bool, err error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, false, nil
	}

	switch v := raw.(type) {
	case bool:
		return 0, true, fmt.Errorf("%s: %w", key, ErrNotInteger)
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, true, fmt.Errorf("%s: %w", key, ErrNotInteger)
		}
	case float32:
		if float64(v) != math.Trunc(float64(v)) {
			return 0, true, fmt.Errorf("%s: %w", key, ErrNotInteger)
		}
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, true, fmt.Errorf("%s: %w", key, ErrNotInteger)
		}
	}

	n, err := cast.ToIntE(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, ErrNotInteger)
	}
	return n, true, nil
}
