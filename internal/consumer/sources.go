package consumer

// Breakpoints are the minimum viewport widths, in pixels, at which the
// medium, large and extra large layouts apply. Narrower viewports are small.
type Breakpoints struct {
	Medium int
	Large  int
	XLarge int
}

// DefaultBreakpoints matches the stock theme.
var DefaultBreakpoints = Breakpoints{Medium: 600, Large: 1000, XLarge: 1400}

// Sources is either one URL for every viewport or a URL per layout size.
type Sources struct {
	URL    string `json:"url,omitempty" toml:"url"`
	Small  string `json:"small,omitempty" toml:"small"`
	Medium string `json:"medium,omitempty" toml:"medium"`
	Large  string `json:"large,omitempty" toml:"large"`
	XLarge string `json:"xlarge,omitempty" toml:"xlarge"`
}

// Single returns Sources that always resolve to url.
func Single(url string) Sources {
	return Sources{URL: url}
}

// Responsive reports whether any per-size URL is set.
func (s Sources) Responsive() bool {
	return s.Small != "" || s.Medium != "" || s.Large != "" || s.XLarge != ""
}

// Pick returns the URL for a viewport of the given width. A single URL wins
// over per-size URLs. A missing size falls back to the next smaller one.
func (s Sources) Pick(width int, bp Breakpoints) string {
	if s.URL != "" || !s.Responsive() {
		return s.URL
	}
	sizes := []string{s.Small}
	if width >= bp.Medium {
		sizes = append(sizes, s.Medium)
	}
	if width >= bp.Large {
		sizes = append(sizes, s.Large)
	}
	if width >= bp.XLarge {
		sizes = append(sizes, s.XLarge)
	}
	for i := len(sizes) - 1; i >= 0; i-- {
		if sizes[i] != "" {
			return sizes[i]
		}
	}
	return ""
}
