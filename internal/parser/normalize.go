package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	compactTimeRe = regexp.MustCompile(`^(\d{2})(\d{2})$`)
	clockTimeRe   = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	meridiemRe    = regexp.MustCompile(`(?i)^(\d{1,2}):(\d{2})(?::\d{2})?\s*(AM|PM)$`)
)

// NormalizeTime rewrites whiteboard time cells into zero-padded 24-hour HH:MM.
// Accepted inputs: "0730", "7:30", "07:30", "7:30 PM", "7:30:00 PM". Anything
// that is not a recognizable time passes through unchanged, since some cells
// legitimately hold free text.
func NormalizeTime(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	if m := compactTimeRe.FindStringSubmatch(trimmed); m != nil {
		if h, _ := strconv.Atoi(m[1]); h < 24 {
			return fmt.Sprintf("%s:%s", m[1], m[2])
		}
		return trimmed
	}

	if m := clockTimeRe.FindStringSubmatch(trimmed); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h < 24 {
			return fmt.Sprintf("%02d:%s", h, m[2])
		}
		return trimmed
	}

	if m := meridiemRe.FindStringSubmatch(trimmed); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h >= 1 && h <= 12 {
			if strings.EqualFold(m[3], "PM") && h != 12 {
				h += 12
			}
			if strings.EqualFold(m[3], "AM") && h == 12 {
				h = 0
			}
			return fmt.Sprintf("%02d:%s", h, m[2])
		}
		return trimmed
	}

	return trimmed
}

// ParseBool interprets a status cell. The whiteboard marks truth several ways
// depending on who filled the cell in; everything else, including empty, is
// false.
func ParseBool(raw string) bool {
	switch strings.TrimSpace(raw) {
	case "✓", "✔":
		return true
	}
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "TRUE", "X":
		return true
	}
	return false
}
