package store

import "testing"

func TestFTSQuery(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"blank", "   ", ""},
		{"single term", "call", `"call"`},
		{"multiple terms", "book a call", `"book" "a" "call"`},
		{"quotes stripped", `"call"`, `"call"`},
		{"operators neutralized", "call OR invoice", `"call" "OR" "invoice"`},
		{"only quotes", `" "`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ftsQuery(tt.in); got != tt.want {
				t.Errorf("ftsQuery(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
