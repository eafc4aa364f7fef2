package value

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Equal reports structural equality: order-sensitive for sequences, key-set
// and value sensitive for mappings, exact for scalars. Numbers compare by
// value, so 3 and 3.0 are equal.
func Equal(a, b Value) bool {
	return Diff(a, b, 0) == ""
}

// EqualWithin is Equal with an absolute tolerance for non-integer numbers.
func EqualWithin(a, b Value, tolerance float64) bool {
	return Diff(a, b, tolerance) == ""
}

// Diff returns a description of the first mismatch between expected and
// actual, or "" when they are equal.
func Diff(expected, actual Value, tolerance float64) string {
	return diff("$", expected, actual, tolerance)
}

func diff(path string, expected, actual Value, tolerance float64) string {
	if expected.kind != actual.kind {
		return fmt.Sprintf("%s: expected %s %s, got %s %s",
			path, expected.kind, expected, actual.kind, actual)
	}

	switch expected.kind {
	case KindNull:
		return ""
	case KindBool:
		if expected.b != actual.b {
			return mismatch(path, expected, actual)
		}
	case KindString:
		if expected.str != actual.str {
			return mismatch(path, expected, actual)
		}
	case KindNumber:
		if !numbersEqual(expected.num, actual.num, tolerance) {
			return mismatch(path, expected, actual)
		}
	case KindSequence:
		if len(expected.seq) != len(actual.seq) {
			return fmt.Sprintf("%s: expected %d elements, got %d (expected %s, got %s)",
				path, len(expected.seq), len(actual.seq), expected, actual)
		}
		for i := range expected.seq {
			if d := diff(fmt.Sprintf("%s[%d]", path, i), expected.seq[i], actual.seq[i], tolerance); d != "" {
				return d
			}
		}
	case KindMapping:
		for _, k := range expected.Keys() {
			got, ok := actual.m[k]
			if !ok {
				return fmt.Sprintf("%s: missing key %q", path, k)
			}
			if d := diff(path+"."+k, expected.m[k], got, tolerance); d != "" {
				return d
			}
		}
		for _, k := range actual.Keys() {
			if _, ok := expected.m[k]; !ok {
				return fmt.Sprintf("%s: unexpected key %q", path, k)
			}
		}
	}
	return ""
}

func mismatch(path string, expected, actual Value) string {
	return fmt.Sprintf("%s: expected %s, got %s", path, expected, actual)
}

func numbersEqual(a, b string, tolerance float64) bool {
	if a == b {
		return true
	}
	if isIntegerLiteral(a) && isIntegerLiteral(b) {
		x, okX := new(big.Int).SetString(a, 10)
		y, okY := new(big.Int).SetString(b, 10)
		if okX && okY {
			return x.Cmp(y) == 0
		}
	}
	x, errX := strconv.ParseFloat(a, 64)
	y, errY := strconv.ParseFloat(b, 64)
	if errX != nil || errY != nil {
		return false
	}
	if x == y {
		return true
	}
	return tolerance > 0 && math.Abs(x-y) <= tolerance
}

func isIntegerLiteral(s string) bool {
	return s != "" && !strings.ContainsAny(s, ".eE")
}
