package model

import "testing"

func TestParseDirection(t *testing.T) {
	tests := []struct {
		token  string
		want   Direction
		wantOK bool
	}{
		{"Above", Above, true},
		{"Below", Below, true},
		{"ABOVE", Above, true},
		{"below", Below, true},
		{"aBoVe", Above, true},
		{"Up", "", false},
		{"", "", false},
		{"Above ", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseDirection(tt.token)
		if ok != tt.wantOK {
			t.Errorf("ParseDirection(%q) ok = %v, want %v", tt.token, ok, tt.wantOK)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDirection(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}
