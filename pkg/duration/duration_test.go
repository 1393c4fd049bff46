package duration

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Duration
	}{
		{"week", "1w", Week},
		{"day", "1d", Day},
		{"hours", "12h", 12 * Hour},
		{"minutes", "30m", 30 * Minute},
		{"seconds", "45s", 45 * Second},
		{"combined", "1d2h", Day + 2*Hour},
		{"combined with spaces", "1d 2h 3m 4s", Day + 2*Hour + 3*Minute + 4*Second},
		{"uppercase", "2H30M", 2*Hour + 30*Minute},
		{"repeated unit sums", "1h1h", 2 * Hour},
		{"garbage ignored", "abc1dxyz", Day},
		{"empty", "", 0},
		{"no unit", "10", 0},
		{"unknown unit", "5y", 0},
		{"words", "forever", 0},
		{"zero", "0s", 0},
		{"largest weeks", "15250w", 15250 * Week},
		{"weeks overflow", "15251w", Max},
		{"days overflow", "9999999999d", Max},
		{"sum overflows", "15250w 15250w", Max},
		{"digits out of range", "99999999999999999999s", Max},
		{"max seconds", "9223372036s", 9223372036 * Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Parse(tt.input); got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name  string
		input time.Duration
		want  string
	}{
		{"zero", 0, "0s"},
		{"negative", -time.Hour, "0s"},
		{"sub second", 900 * time.Millisecond, "0s"},
		{"seconds", 45 * Second, "45s"},
		{"minutes", 3*Minute + 4*Second, "3m 4s"},
		{"hours", 2*Hour + 30*Minute, "2h 30m"},
		{"one day", Day, "1d 0h"},
		{"days and hours", Day + 4*Hour + 59*Minute, "1d 4h"},
		{"week", Week, "7d 0h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.input); got != tt.want {
				t.Errorf("Format(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	// Format keeps the two largest units, so a round trip is exact to the
	// resolution of the second unit shown.
	inputs := []string{"1w", "3d", "1d2h", "5h", "5h15m", "90m", "59s", "1d2h3m4s", "2w3d4h"}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			d := Parse(in)
			back := Parse(Format(d))

			resolution := Second
			switch {
			case d >= Day:
				resolution = Hour
			case d >= Hour:
				resolution = Minute
			}
			if diff := d - back; diff < 0 || diff >= resolution {
				t.Errorf("round trip %q: %v -> %q -> %v", in, d, Format(d), back)
			}
		})
	}
}

func TestLooksLikeDuration(t *testing.T) {
	tests := map[string]bool{
		"1d":       true,
		"30m":      true,
		"0":        true,
		"griefing": false,
		"":         false,
		"d1":       false,
	}
	for in, want := range tests {
		if got := LooksLikeDuration(in); got != want {
			t.Errorf("LooksLikeDuration(%q) = %v, want %v", in, got, want)
		}
	}
}
