package internal

import "testing"

func TestParseRAMSize(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"512", 512},
		{"1K", 1 << 10},
		{"4G", 4 << 30},
		{"2T", 2 << 40},
		{"1m", 1 << 20},
	}
	for _, c := range cases {
		got, err := ParseRAMSize(c.in)
		if err != nil {
			t.Fatalf("ParseRAMSize(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseRAMSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseRAMSizeInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "-5", "5X"} {
		if _, err := ParseRAMSize(in); err == nil {
			t.Fatalf("ParseRAMSize(%q): expected error", in)
		}
	}
}
