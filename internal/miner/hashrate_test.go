package miner

import "testing"

func TestFormatHashrate(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0 H/s"},
		{1500, "1.50 KH/s"},
		{12_345_000, "12.3 MH/s"},
		{250_000_000_000, "250 GH/s"},
	}

	for _, tc := range cases {
		if got := FormatHashrate(tc.in); got != tc.want {
			t.Errorf("FormatHashrate(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
