package ui

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseColorError reports a color specification that could not be parsed.
type ParseColorError struct {
	Given string
}

func (e *ParseColorError) Error() string {
	return fmt.Sprintf("unrecognized color %q: expected a name (black, blue, green, red, cyan, "+
		"magenta, yellow, white), an ANSI-256 index, or an r,g,b triple", e.Given)
}

// Color is a foreground terminal color.
type Color struct {
	seq string
}

var namedColors = map[string]string{
	"black":   "30",
	"red":     "31",
	"green":   "32",
	"yellow":  "33",
	"blue":    "34",
	"magenta": "35",
	"cyan":    "36",
	"white":   "37",
}

// ParseColor accepts a color name, an ANSI-256 index (decimal or 0x hex) or an
// r,g,b triple.
func ParseColor(s string) (Color, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	if code, ok := namedColors[raw]; ok {
		return Color{seq: code}, nil
	}
	parts := strings.Split(raw, ",")
	switch len(parts) {
	case 1:
		n, ok := parseByte(parts[0])
		if !ok {
			return Color{}, &ParseColorError{Given: s}
		}
		return Color{seq: fmt.Sprintf("38;5;%d", n)}, nil
	case 3:
		var rgb [3]uint8
		for i, p := range parts {
			n, ok := parseByte(p)
			if !ok {
				return Color{}, &ParseColorError{Given: s}
			}
			rgb[i] = n
		}
		return Color{seq: fmt.Sprintf("38;2;%d;%d;%d", rgb[0], rgb[1], rgb[2])}, nil
	default:
		return Color{}, &ParseColorError{Given: s}
	}
}

// Wrap surrounds text with the color's escape sequence.
func (c Color) Wrap(text string) string {
	if c.seq == "" {
		return text
	}
	return "\x1b[" + c.seq + "m" + text + "\x1b[0m"
}

func parseByte(s string) (uint8, bool) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") {
		s, base = s[2:], 16
	}
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, base, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}
