package models

import "testing"

func TestNormalizePlate(t *testing.T) {
	cases := map[string]string{
		" 12가 3456 ": "12가3456",
		"ab-123-cd":   "AB123CD",
		"":            "",
	}
	for in, want := range cases {
		if got := NormalizePlate(in); got != want {
			t.Fatalf("NormalizePlate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSimilarPlate(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"12가3456", "12나3456", true},
		{"12가3456", "13가3456", true},
		{"12가3456", "12가3456", false},
		{"12가3456", "13나3456", false},
		{"12가3456", "12가3457", false},
		{"12가3456", "112가3456", false},
		{"3456", "3456", false},
	}
	for _, tc := range cases {
		if got := SimilarPlate(tc.a, tc.b); got != tc.want {
			t.Fatalf("SimilarPlate(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
