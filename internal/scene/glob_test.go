package scene

import (
	"reflect"
	"testing"
)

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"switch.circadian_lighting*", "switch.circadian_lighting", true},
		{"switch.circadian_lighting*", "switch.circadian_lighting_lounge", true},
		{"switch.circadian_lighting*", "switch.lounge", false},
		{"light.*", "light.lounge", true},
		{"light.*", "switch.lounge", false},
		{"*", "anything.at_all", true},
		{"*.lounge", "light.lounge", true},
		{"*.lounge", "light.kitchen", false},
		{"light.?ounge", "light.lounge", true},
		{"light.?ounge", "light.ounge", false},
		{"light.l*e", "light.lounge", true},
		{"light.l*e", "light.lamp", false},
		{"", "", true},
		{"", "x", false},
		{"exact.match", "exact.match", true},
		{"Exact.Match", "exact.match", false},
		{"a*b*c", "axxbyyc", true},
		{"a*b*c", "axxbyy", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.name, func(t *testing.T) {
			if got := MatchPattern(tt.pattern, tt.name); got != tt.want {
				t.Errorf("MatchPattern(%q, %q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
			}
		})
	}
}

func TestSplitPatterns(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b ", []string{"a", "b"}},
		{"switch.circadian_lighting*", []string{"switch.circadian_lighting*"}},
		{"a,,b,", []string{"a", "b"}},
		{"", nil},
		{" , ", nil},
	}

	for _, tt := range tests {
		if got := SplitPatterns(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitPatterns(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMatchesAny(t *testing.T) {
	patterns := []string{"switch.circadian_lighting*", "light.debug_*"}

	if !MatchesAny(patterns, "light.debug_strip") {
		t.Error("expected light.debug_strip to match")
	}
	if MatchesAny(patterns, "light.lounge") {
		t.Error("did not expect light.lounge to match")
	}
	if MatchesAny(nil, "light.lounge") {
		t.Error("empty pattern list must match nothing")
	}
}
