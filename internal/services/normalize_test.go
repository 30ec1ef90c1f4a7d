package services

import (
	"math"
	"testing"
)

func TestParseHours(t *testing.T) {
	cases := []struct {
		in   string
		want float64 // NaN means missing
	}{
		{"4 hr", 4},
		{"3.5", 3.5},
		{"about 12 hours", 12},
		{"6-8 hrs", 6},
		{"10.", 10},
		{"n/a", math.NaN()},
		{"", math.NaN()},
		{"true", math.NaN()},
		{"[4]", 4},
		{`{"min":2,"max":5}`, 2},
	}
	for _, tc := range cases {
		got := ParseHours(tc.in)
		if math.IsNaN(tc.want) {
			if !math.IsNaN(got) {
				t.Fatalf("ParseHours(%q) = %v; want NaN", tc.in, got)
			}
			continue
		}
		if got != tc.want {
			t.Fatalf("ParseHours(%q) = %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestNormalize_OrderTrimAndCoercion(t *testing.T) {
	in := []PendingIdea{
		{ID: 5, Idea: "  Build a todo app ", Hours: "4 hr"},
		{ID: 6, Idea: "Recipe app", Hours: "3.5"},
		{ID: 7, Idea: "Chess engine", Hours: "n/a"},
	}
	out := Normalize(in)
	if len(out) != 3 {
		t.Fatalf("len = %d; want 3", len(out))
	}
	if out[0].ID != 5 || out[0].Idea != "Build a todo app" || out[0].ManualDevHours != 4.0 {
		t.Fatalf("row 0 = %+v", out[0])
	}
	if out[1].ID != 6 || out[1].ManualDevHours != 3.5 {
		t.Fatalf("row 1 = %+v", out[1])
	}
	if out[2].ID != 7 || out[2].HasHours() {
		t.Fatalf("row 2 should keep the record with missing hours: %+v", out[2])
	}
	if len(Normalize(nil)) != 0 {
		t.Fatalf("Normalize(nil) should be empty")
	}
}
