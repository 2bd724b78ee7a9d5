package version

import (
	"errors"
	"testing"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		v1   string
		v2   string
		want int
	}{
		{name: "major wins", v1: "2.0", v2: "1.9", want: 1},
		{name: "minor loses", v1: "1.2.0", v2: "1.10.0", want: -1},
		{name: "identical", v1: "1.2.3", v2: "1.2.3", want: 0},
		{name: "longer prefix wins", v1: "1.0.0", v2: "1.0", want: 1},
		{name: "shorter prefix loses", v1: "1.0", v2: "1.0.0", want: -1},
		{name: "numeric before length", v1: "1.2", v2: "1.20", want: -1},
		{name: "leading zero counts as longer", v1: "1.02", v2: "1.2", want: 1},
		{name: "single component", v1: "10", v2: "9", want: 1},
		{name: "first difference decides", v1: "1.3", v2: "1.2.99", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.v1, tt.v2)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Compare(%q, %q) = %d, want %d", tt.v1, tt.v2, got, tt.want)
			}
		})
	}
}

func TestCompare_InvalidComponents(t *testing.T) {
	for _, tc := range [][2]string{
		{"1.x", "1.0"},
		{"1.0", "beta"},
		{"", "1.0"},
		{"1..2", "1.2"},
		{"1.99999999999999999999", "1.0"},
	} {
		if _, err := Compare(tc[0], tc[1]); !errors.Is(err, ErrInvalidVersion) {
			t.Fatalf("Compare(%q, %q): expected ErrInvalidVersion, got %v", tc[0], tc[1], err)
		}
	}
}

func TestIsNewer(t *testing.T) {
	newer, err := IsNewer("1.1.0", "1.0.9")
	if err != nil || !newer {
		t.Fatalf("expected 1.1.0 to be newer than 1.0.9 (newer=%v err=%v)", newer, err)
	}
	newer, err = IsNewer("1.0.0", "1.0.0")
	if err != nil || newer {
		t.Fatalf("expected equal versions not to be newer (newer=%v err=%v)", newer, err)
	}
	if _, err := IsNewer("x", "1.0"); err == nil {
		t.Fatal("expected error for invalid candidate")
	}
}

func TestValid(t *testing.T) {
	if !Valid("1.2.3") {
		t.Fatal("expected 1.2.3 to be valid")
	}
	if Valid("1.2.3-beta") {
		t.Fatal("expected 1.2.3-beta to be invalid")
	}
}

func TestMustCompare_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MustCompare("a", "b")
}
