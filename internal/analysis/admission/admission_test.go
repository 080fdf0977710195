package admission

import (
	"strings"
	"testing"
)

func TestShouldRememberKeywordRegardlessOfLength(t *testing.T) {
	for _, keyword := range Keywords() {
		if !ShouldRemember(keyword) {
			t.Fatalf("expected single keyword %q to be admitted", keyword)
		}
		if !ShouldRemember(strings.ToUpper(keyword)) {
			t.Fatalf("expected upper-cased keyword %q to be admitted", keyword)
		}
	}
}

func TestShouldRememberLikePizza(t *testing.T) {
	decision := Evaluate("I like pizza")
	if !decision.Remember {
		t.Fatal("expected input with keyword to be admitted")
	}
	if decision.Keyword != "like" {
		t.Fatalf("expected keyword like, got %q", decision.Keyword)
	}
}

func TestShouldRememberWordCountThreshold(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"the sky is blue", true},
		{"it is raining", true},
		{"ok no", false},
		{"thanks", false},
		{"   ", false},
		{"", false},
		{"ok\tsure\nthen", true},
	}

	for _, tc := range cases {
		if got := ShouldRemember(tc.input); got != tc.want {
			t.Fatalf("ShouldRemember(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestShouldRememberSubstringMatch(t *testing.T) {
	decision := Evaluate("Planets")
	if !decision.Remember || decision.Keyword != "plan" {
		t.Fatalf("expected substring keyword match, got %+v", decision)
	}
}

func TestEvaluateReportsWordCount(t *testing.T) {
	decision := Evaluate("ok no")
	if decision.Remember {
		t.Fatal("expected two keyword-free words to be rejected")
	}
	if decision.WordCount != 2 {
		t.Fatalf("expected word count 2, got %d", decision.WordCount)
	}
}
