// scanner/sexpr.go - Light structural parsing of KiCad s-expression files
package scanner

import (
	"regexp"
	"strings"
)

var descrPattern = regexp.MustCompile(`\((?:descr|description)\s+"((?:[^"\\]|\\.)*)"`)

// extractDescription returns the first descr/description string in the file,
// or "" when absent.
func extractDescription(text string) string {
	match := descrPattern.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

// countNodes counts top-of-expression occurrences of "(name" followed by a
// delimiter, e.g. countNodes(text, "pin") for symbol pins. String literals
// are skipped so a pin named "(pad" inside quotes is not miscounted.
func countNodes(text, name string) int {
	count := 0
	inString := false
	escape := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			if escape {
				escape = false
			} else if ch == '\\' {
				escape = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '(':
			rest := text[i+1:]
			if strings.HasPrefix(rest, name) {
				after := len(name)
				if after < len(rest) && (rest[after] == ' ' || rest[after] == '\t' || rest[after] == '\n' || rest[after] == '\r' || rest[after] == '(') {
					count++
				}
			}
		}
	}
	return count
}

