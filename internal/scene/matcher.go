package scene

import (
	"math"
	"reflect"
)

// Evaluate decides whether one entity's live state and attributes satisfy
// its scene target. Pure function of the inputs and options; no side
// effects.
//
// Evaluation order:
//  1. Missing/unavailable/unknown entity → ResultIgnored (when
//     IgnoreUnavailable)
//  2. Exclusion pattern match → ResultExcluded
//  3. Unavailable and not ignorable → ResultMismatched (after exclusion,
//     so an excluded entity never blocks the scene)
//  4. State compare (exact, case-sensitive) → ResultMismatched on differ
//  5. Off-shortcut: target "off" satisfied by live "off" regardless of
//     attributes (devices report stale attributes while off)
//  6. Every declared target attribute must match its live counterpart;
//     attributes only present on the live entity are ignored.
func Evaluate(target EntityTarget, live *Snapshot, opts Options) MatchResult {
	unavailable := live == nil || !live.Available ||
		live.State == StateUnavailable || live.State == StateUnknown

	if unavailable && opts.IgnoreUnavailable {
		return ResultIgnored
	}

	if opts.ExcludeEnabled && MatchesAny(opts.ExcludePatterns, target.EntityID) {
		return ResultExcluded
	}

	if unavailable {
		return ResultMismatched
	}

	if target.State != "" {
		if live.State != target.State {
			return ResultMismatched
		}
		if target.State == StateOff {
			return ResultMatched
		}
	}

	if opts.IgnoreAttributes {
		return ResultMatched
	}

	for name, want := range target.Attributes {
		got, ok := live.Attributes[name]
		if !ok || got == nil {
			return ResultMismatched
		}
		if !valuesMatch(want, got, opts.NumberTolerance) {
			return ResultMismatched
		}
	}

	return ResultMatched
}

// valuesMatch compares an expected attribute value against a live one.
//
// Numbers match within tolerance (a difference exactly equal to the
// tolerance matches). Sequences compare element-wise, mappings compare the
// keys present in expected, everything else compares for equality.
func valuesMatch(expected, actual any, tol float64) bool {
	if e, ok := toFloat(expected); ok {
		a, ok := toFloat(actual)
		if !ok {
			return false
		}
		return math.Abs(e-a) <= tol
	}

	switch e := expected.(type) {
	case string:
		a, ok := actual.(string)
		return ok && e == a

	case bool:
		a, ok := actual.(bool)
		return ok && e == a

	case []any:
		a, ok := asSlice(actual)
		if !ok || len(e) != len(a) {
			return false
		}
		for i := range e {
			if !valuesMatch(e[i], a[i], tol) {
				return false
			}
		}
		return true

	case map[string]any:
		a, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range e {
			av, present := a[k]
			if !present || !valuesMatch(v, av, tol) {
				return false
			}
		}
		return true

	default:
		return reflect.DeepEqual(expected, actual)
	}
}

// asSlice normalises typed slices (as produced by some decoders) to []any.
func asSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// toFloat reports whether v is a numeric value and returns it as float64.
// Booleans are not numeric.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
