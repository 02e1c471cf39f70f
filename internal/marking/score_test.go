package marking

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseScore(t *testing.T) {
	cases := []struct {
		name      string
		text      string
		maxPoints int
		want      int
	}{
		{name: "plain number", text: "7", maxPoints: 10, want: 7},
		{name: "rightmost token wins", text: "First 3, then 5, finally 8", maxPoints: 10, want: 8},
		{name: "score out of max", text: "The score is 8 out of 10", maxPoints: 10, want: 10},
		{name: "negative sign stripped", text: "-5", maxPoints: 10, want: 5},
		{name: "fraction truncated at slash", text: "7/10", maxPoints: 10, want: 7},
		{name: "decimal truncated at dot", text: "7.9", maxPoints: 10, want: 7},
		{name: "no digits", text: "no numbers here", maxPoints: 10, want: 0},
		{name: "empty", text: "", maxPoints: 10, want: 0},
		{name: "clamped to max", text: "15", maxPoints: 10, want: 10},
		{name: "first line only", text: "8\nsecond line says 3", maxPoints: 10, want: 8},
		{name: "surrounding words", text: "I give this a 6.", maxPoints: 10, want: 6},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ParseScore(tc.text, tc.maxPoints))
		})
	}
}

func TestParseRawScore(t *testing.T) {
	raw, ok := parseRawScore("15")
	require.True(t, ok)
	require.Equal(t, 15, raw, "raw score is not clamped")

	_, ok = parseRawScore("nothing numeric")
	require.False(t, ok)
}
