package marking

import (
	"fmt"
	"strings"
)

// blockKeywords open a suite and must carry a colon on their logical line.
var blockKeywords = map[string]bool{
	"def": true, "class": true, "if": true, "elif": true, "else": true,
	"for": true, "while": true, "try": true, "except": true,
	"finally": true, "with": true,
}

type logicalLine struct {
	indent int
	// skeleton is the line with comments removed and string literals
	// collapsed, so colon/keyword checks cannot be fooled by text content.
	skeleton string
	number   int
}

// checkSyntax runs static checks that catch the submission shapes the
// original pipeline rejected before any oracle call: unbalanced brackets,
// unterminated strings, a block header with no indented body, and compound
// statements missing their colon. It returns an empty string for code that
// passes, otherwise a short description of the first problem found.
func checkSyntax(code string) string {
	lines, problem := scanLogicalLines(code)
	if problem != "" {
		return problem
	}

	for i, line := range lines {
		text := strings.TrimSpace(line.skeleton)
		if text == "" {
			continue
		}

		first := firstWord(text)
		if blockKeywords[first] && !strings.Contains(text, ":") {
			return fmt.Sprintf("line %d: expected ':' after %q statement", line.number, first)
		}

		if strings.HasSuffix(text, ":") && !hasIndentedBody(lines, i) {
			return fmt.Sprintf("line %d: expected an indented block", line.number)
		}
	}

	return ""
}

// scanLogicalLines folds physical lines into logical lines, honoring bracket
// continuations, backslash continuations, and single/triple-quoted strings.
func scanLogicalLines(code string) ([]logicalLine, string) {
	var (
		lines     []logicalLine
		current   strings.Builder
		depth     int
		stack     []rune
		lineNo    = 1
		startLine = 1
		indent    = -1
		inString  bool
		tripleStr bool
		quote     rune
		runes     = []rune(code)
	)

	flush := func() {
		lines = append(lines, logicalLine{
			indent:   maxInt(indent, 0),
			skeleton: current.String(),
			number:   startLine,
		})
		current.Reset()
		indent = -1
		startLine = lineNo
	}

	for i := 0; i < len(runes); i++ {
		c := runes[i]

		if inString {
			if c == '\n' {
				if !tripleStr {
					return nil, fmt.Sprintf("line %d: unterminated string literal", lineNo)
				}
				lineNo++
				continue
			}
			if c == '\\' {
				i++ // escaped char, including a legal backslash-newline
				if i < len(runes) && runes[i] == '\n' {
					lineNo++
				}
				continue
			}
			if c == quote {
				if !tripleStr {
					inString = false
					continue
				}
				if i+2 < len(runes) && runes[i+1] == quote && runes[i+2] == quote {
					i += 2
					inString = false
					tripleStr = false
				}
			}
			continue
		}

		// The indent of a logical line is the leading whitespace of its
		// first physical line, whatever character follows it.
		if indent < 0 && c != '\n' {
			if c == ' ' || c == '\t' {
				current.WriteRune(c)
				continue
			}
			indent = physicalIndent(current.String())
		}

		switch c {
		case '#':
			// Comment runs to end of physical line.
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			i--
		case '\'', '"':
			quote = c
			inString = true
			tripleStr = false
			if i+2 < len(runes) && runes[i+1] == c && runes[i+2] == c {
				tripleStr = true
				i += 2
			}
			current.WriteRune('s')
		case '(', '[', '{':
			depth++
			stack = append(stack, c)
			current.WriteRune(c)
		case ')', ']', '}':
			if depth == 0 || !bracketsMatch(stack[len(stack)-1], c) {
				return nil, fmt.Sprintf("line %d: unmatched %q", lineNo, string(c))
			}
			depth--
			stack = stack[:len(stack)-1]
			current.WriteRune(c)
		case '\\':
			if i+1 < len(runes) && runes[i+1] == '\n' {
				i++
				lineNo++
				current.WriteRune(' ')
				continue
			}
			current.WriteRune(c)
		case '\n':
			lineNo++
			if depth > 0 {
				current.WriteRune(' ')
				continue
			}
			flush()
		default:
			current.WriteRune(c)
		}
	}

	if inString {
		return nil, fmt.Sprintf("line %d: unterminated string literal", startLine)
	}
	if depth > 0 {
		return nil, fmt.Sprintf("%q was never closed", string(stack[len(stack)-1]))
	}
	if current.Len() > 0 {
		flush()
	}

	return lines, ""
}

func hasIndentedBody(lines []logicalLine, idx int) bool {
	for _, next := range lines[idx+1:] {
		if strings.TrimSpace(next.skeleton) == "" {
			continue
		}
		return next.indent > lines[idx].indent
	}
	return false
}

func bracketsMatch(open, close rune) bool {
	switch open {
	case '(':
		return close == ')'
	case '[':
		return close == ']'
	case '{':
		return close == '}'
	}
	return false
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimSuffix(fields[0], ":")
}

func physicalIndent(prefix string) int {
	n := 0
	for _, c := range prefix {
		if c == ' ' {
			n++
		} else if c == '\t' {
			n += 8
		} else {
			break
		}
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
