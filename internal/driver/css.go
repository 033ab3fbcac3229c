package driver

import (
	"regexp"
	"strings"
)

var rgbPattern = regexp.MustCompile(`^rgb\(\s*(\d{1,3})\s*,\s*(\d{1,3})\s*,\s*(\d{1,3})\s*\)$`)

var rgbaPattern = regexp.MustCompile(`^rgba\(\s*(\d{1,3})\s*,\s*(\d{1,3})\s*,\s*(\d{1,3})\s*,\s*([0-9.]+)\s*\)$`)

// normalizeCSSValue reports colors the way WebDriver's "get element CSS
// value" does: opaque rgb() becomes rgba(r, g, b, 1). Everything else is
// returned trimmed.
func normalizeCSSValue(value string) string {
	v := strings.TrimSpace(value)
	if m := rgbPattern.FindStringSubmatch(v); m != nil {
		return "rgba(" + m[1] + ", " + m[2] + ", " + m[3] + ", 1)"
	}
	if m := rgbaPattern.FindStringSubmatch(v); m != nil {
		return "rgba(" + m[1] + ", " + m[2] + ", " + m[3] + ", " + m[4] + ")"
	}
	return v
}
