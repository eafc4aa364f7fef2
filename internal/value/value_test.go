package value

import (
	"strings"
	"testing"
)

func TestParsePreservesStructure(t *testing.T) {
	v, err := Parse([]byte(`{"nums":[1,2,3],"target":9,"name":"two-sum","ok":true,"extra":null}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v.Kind() != KindMapping {
		t.Fatalf("expected mapping, got %s", v.Kind())
	}
	nums, ok := v.Field("nums")
	if !ok || nums.Len() != 3 {
		t.Fatalf("unexpected nums field: %s", nums)
	}
	if got := nums.Index(2).Literal(); got != "3" {
		t.Fatalf("expected literal 3, got %q", got)
	}
	if got := v.String(); got != `{"extra":null,"name":"two-sum","nums":[1,2,3],"ok":true,"target":9}` {
		t.Fatalf("unexpected encoding: %s", got)
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	if _, err := Parse([]byte(`[1] [2]`)); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestLargeIntegersKeepPrecision(t *testing.T) {
	a := MustParse(`12345678901234567890`)
	b := MustParse(`12345678901234567891`)
	if Equal(a, b) {
		t.Fatal("distinct large integers compared equal")
	}
	if a.String() != "12345678901234567890" {
		t.Fatalf("literal changed: %s", a)
	}
}

func TestEqual(t *testing.T) {
	cases := []struct {
		name     string
		expected string
		actual   string
		equal    bool
	}{
		{name: "nested lists", expected: `[[1,6],[8,10],[15,18]]`, actual: `[[1,6],[8,10],[15,18]]`, equal: true},
		{name: "sequence order matters", expected: `[1,2]`, actual: `[2,1]`, equal: false},
		{name: "empty sequences", expected: `[]`, actual: `[]`, equal: true},
		{name: "integer equals float form", expected: `3`, actual: `3.0`, equal: true},
		{name: "exponent form", expected: `1500`, actual: `1.5e3`, equal: true},
		{name: "no implicit float tolerance", expected: `0.3`, actual: `0.30000000000000004`, equal: false},
		{name: "mapping key order ignored", expected: `{"a":1,"b":2}`, actual: `{"b":2,"a":1}`, equal: true},
		{name: "mapping missing key", expected: `{"a":1,"b":2}`, actual: `{"a":1}`, equal: false},
		{name: "mapping extra key", expected: `{"a":1}`, actual: `{"a":1,"b":2}`, equal: false},
		{name: "string vs number", expected: `"1"`, actual: `1`, equal: false},
		{name: "null vs empty sequence", expected: `[]`, actual: `null`, equal: false},
		{name: "bools", expected: `true`, actual: `false`, equal: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Equal(MustParse(tc.expected), MustParse(tc.actual))
			if got != tc.equal {
				t.Fatalf("Equal(%s, %s) = %v, want %v", tc.expected, tc.actual, got, tc.equal)
			}
		})
	}
}

func TestEqualWithinTolerance(t *testing.T) {
	if !EqualWithin(MustParse(`[0.3]`), MustParse(`[0.30000000000000004]`), 1e-9) {
		t.Fatal("expected values within tolerance to be equal")
	}
	if EqualWithin(MustParse(`0.3`), MustParse(`0.4`), 1e-9) {
		t.Fatal("values outside tolerance compared equal")
	}
}

func TestDiffReportsPath(t *testing.T) {
	d := Diff(MustParse(`[[1,6],[8,10]]`), MustParse(`[[1,6],[8,11]]`), 0)
	if !strings.HasPrefix(d, "$[1][1]:") {
		t.Fatalf("unexpected diff: %q", d)
	}
	d = Diff(MustParse(`{"a":{"b":1}}`), MustParse(`{"a":{"c":1}}`), 0)
	if !strings.Contains(d, `missing key "b"`) {
		t.Fatalf("unexpected diff: %q", d)
	}
}

func TestFromAnyGoValues(t *testing.T) {
	v, err := FromAny(map[string]any{"xs": []any{1, int64(2), 3.5, "s", nil, true}})
	if err != nil {
		t.Fatalf("from any: %v", err)
	}
	if !Equal(v, MustParse(`{"xs":[1,2,3.5,"s",null,true]}`)) {
		t.Fatalf("unexpected value: %s", v)
	}
	if _, err := FromAny(struct{}{}); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestZeroValueIsNull(t *testing.T) {
	var v Value
	if !v.IsNull() || v.String() != "null" {
		t.Fatalf("zero value should be null, got %s", v)
	}
}
