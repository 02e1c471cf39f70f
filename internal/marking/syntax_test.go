package marking

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckSyntaxAcceptsValidCode(t *testing.T) {
	cases := []struct {
		name string
		code string
	}{
		{name: "simple function", code: "def greet(name):\n    return f\"Hello {name}\""},
		{name: "docstring body", code: "def f():\n    \"docstring\"\n    return 1"},
		{name: "triple quoted string", code: "s = \"\"\"multi\nline\"\"\"\nprint(s)"},
		{name: "bracket continuation", code: "values = [\n    1,\n    2,\n]"},
		{name: "backslash continuation", code: "total = 1 + \\\n    2"},
		{name: "comment with colon", code: "# just a note: nothing else\nx = 1"},
		{name: "if with body", code: "if x > 0:\n    print(x)\nelse:\n    print(-x)"},
		{name: "expression only", code: "print(\"hi\")"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Empty(t, checkSyntax(tc.code))
		})
	}
}

func TestCheckSyntaxRejectsBrokenCode(t *testing.T) {
	cases := []struct {
		name string
		code string
	}{
		{name: "unclosed paren", code: "def func(\n    pass"},
		{name: "unmatched close bracket", code: "x = 1)"},
		{name: "unterminated string", code: "s = \"oops\nprint(s)"},
		{name: "def without colon", code: "def broken()\n    return 1"},
		{name: "header without body", code: "def empty():"},
		{name: "for without colon", code: "for i in range(3)\n    print(i)"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NotEmpty(t, checkSyntax(tc.code))
		})
	}
}
