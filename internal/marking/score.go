package marking

import (
	"strconv"
	"strings"
)

// ParseScore extracts an integer score from free-form model output, clamped
// to [0, maxPoints]. Pure and deterministic; returns 0 when no usable number
// is present.
func ParseScore(text string, maxPoints int) int {
	raw, ok := parseRawScore(text)
	if !ok {
		return 0
	}
	if raw < 0 {
		return 0
	}
	if raw > maxPoints {
		return maxPoints
	}
	return raw
}

// parseRawScore returns the unclamped score magnitude. Models often state
// their reasoning before the verdict, so the last digit-bearing token of the
// first line is the most reliable signal.
func parseRawScore(text string) (int, bool) {
	line := strings.TrimSpace(text)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	last := ""
	for _, tok := range strings.Fields(line) {
		if strings.ContainsAny(tok, "0123456789") {
			last = tok
		}
	}
	if last == "" {
		return 0, false
	}

	// "-5" means 5: a negative grade is treated as its magnitude.
	last = strings.TrimPrefix(last, "-")

	// Discard decimal and fraction remainders: "7.9" -> "7", "7/10" -> "7".
	if i := strings.IndexByte(last, '.'); i >= 0 {
		last = last[:i]
	}
	if i := strings.IndexByte(last, '/'); i >= 0 {
		last = last[:i]
	}

	digits := strings.Builder{}
	for _, r := range last {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}

	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0, false
	}
	return n, true
}
