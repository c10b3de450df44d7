package consumer

import "testing"

func TestSourcesPick(t *testing.T) {
	full := Sources{Small: "s", Medium: "m", Large: "l", XLarge: "xl"}
	tests := []struct {
		name    string
		sources Sources
		width   int
		want    string
	}{
		{"single", Single("one"), 2000, "one"},
		{"single wins", Sources{URL: "one", Small: "s"}, 0, "one"},
		{"empty", Sources{}, 800, ""},
		{"small", full, 0, "s"},
		{"small edge", full, 599, "s"},
		{"medium", full, 600, "m"},
		{"large", full, 1000, "l"},
		{"xlarge", full, 1400, "xl"},
		{"fallback to smaller", Sources{Small: "s", Medium: "m"}, 1500, "m"},
		{"nothing smaller", Sources{Large: "l"}, 700, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sources.Pick(tt.width, DefaultBreakpoints); got != tt.want {
				t.Errorf("Pick(%d) = %q, want %q", tt.width, got, tt.want)
			}
		})
	}
}

func TestSourcesCustomBreakpoints(t *testing.T) {
	s := Sources{Small: "s", Medium: "m"}
	bp := Breakpoints{Medium: 300, Large: 900, XLarge: 1800}
	if got := s.Pick(320, bp); got != "m" {
		t.Errorf("Pick = %q, want m", got)
	}
}
