// tables/tables.go - KiCad library table parsing and additive rendering
package tables

import (
	"fmt"
	"regexp"
	"strings"

	"kicomport/internal/errs"
	"kicomport/internal/model"
	"kicomport/pkg/logger"
)

// Default content written when a table file does not exist yet.
const (
	defaultSymbolTable    = "(sym_lib_table\n  (version 7)\n)\n"
	defaultFootprintTable = "(fp_lib_table\n  (version 7)\n)\n"
)

// Allowed plugin type tags per table, per the target tool's grammar.
var allowedTypes = map[model.TableKind]map[string]struct{}{
	model.TableSymbol:    {"KiCad": {}, "Legacy": {}, "Database": {}},
	model.TableFootprint: {"KiCad": {}, "GitHub": {}, "Eagle": {}},
}

var entryNamePattern = regexp.MustCompile(`\(name\s+"((?:[^"\\]|\\.)*)"\)`)

// TableEntry is one library registration to be appended to a table.
type TableEntry struct {
	Name    string
	Type    string
	URI     string
	Options string
	Descr   string
}

// TableEditor renders table entries and merges them into existing table text
// without disturbing pre-existing lines.
type TableEditor interface {
	DefaultTable(table model.TableKind) string
	RenderEntry(table model.TableKind, entry TableEntry) (string, error)
	ParseNames(tableText string) []string
	Merge(table model.TableKind, existing string, entries []TableEntry) (string, error)
}

type tableEditor struct {
	logger logger.Logger
}

// NewTableEditor creates the table editor
func NewTableEditor(logger logger.Logger) TableEditor {
	return &tableEditor{logger: logger}
}

func (e *tableEditor) DefaultTable(table model.TableKind) string {
	if table == model.TableFootprint {
		return defaultFootprintTable
	}
	return defaultSymbolTable
}

// RenderEntry produces one entry line. The options and descr fields are
// always present, quoted, and possibly empty. Entries failing the grammar are
// rejected before any merge.
func (e *tableEditor) RenderEntry(table model.TableKind, entry TableEntry) (string, error) {
	if entry.Name == "" {
		return "", fmt.Errorf("%w: empty entry name", errs.ErrTableRender)
	}
	if strings.ContainsAny(entry.Name, "\"\n()") {
		return "", fmt.Errorf("%w: entry name %q contains reserved characters", errs.ErrTableRender, entry.Name)
	}
	if entry.URI == "" {
		return "", fmt.Errorf("%w: empty uri for entry %s", errs.ErrTableRender, entry.Name)
	}
	allowed, ok := allowedTypes[table]
	if !ok {
		return "", fmt.Errorf("%w: unknown table %s", errs.ErrTableRender, table)
	}
	if _, ok := allowed[entry.Type]; !ok {
		return "", fmt.Errorf("%w: type %q not allowed in %s", errs.ErrTableRender, entry.Type, table)
	}

	return fmt.Sprintf(`  (lib (name %q) (type %q) (uri %s) (options %s) (descr %s))`,
		entry.Name, entry.Type, quote(entry.URI), quote(entry.Options), quote(entry.Descr)), nil
}

// ParseNames returns the entry names already registered in the table text.
func (e *tableEditor) ParseNames(tableText string) []string {
	matches := entryNamePattern.FindAllStringSubmatch(tableText, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, unescape(m[1]))
	}
	return names
}

// Merge appends rendered entries inside the table's root node. Every
// pre-existing line is carried over byte-for-byte; only the new entry lines
// are inserted before the closing parenthesis. Duplicate names, against the
// existing table or within the new entries, are rejected.
func (e *tableEditor) Merge(table model.TableKind, existing string, entries []TableEntry) (string, error) {
	if len(entries) == 0 {
		return existing, nil
	}
	if strings.TrimSpace(existing) == "" {
		existing = e.DefaultTable(table)
	}

	seen := make(map[string]struct{})
	for _, name := range e.ParseNames(existing) {
		seen[name] = struct{}{}
	}

	rendered := make([]string, 0, len(entries))
	for _, entry := range entries {
		if _, dup := seen[entry.Name]; dup {
			return "", fmt.Errorf("%w: %s in %s", errs.ErrDuplicateEntry, entry.Name, table)
		}
		seen[entry.Name] = struct{}{}

		line, err := e.RenderEntry(table, entry)
		if err != nil {
			return "", err
		}
		rendered = append(rendered, line)
	}

	parenIdx, err := closingParen(existing)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", errs.ErrTableRender, table, err)
	}

	// Insert before the line holding the closing parenthesis. When that line
	// also carries other content, break it instead.
	insertAt := strings.LastIndexByte(existing[:parenIdx], '\n') + 1
	linePrefix := ""
	if strings.TrimSpace(existing[insertAt:parenIdx]) != "" {
		insertAt = parenIdx
		linePrefix = "\n"
	}

	var b strings.Builder
	b.WriteString(existing[:insertAt])
	for _, line := range rendered {
		b.WriteString(linePrefix)
		b.WriteString(line)
		if linePrefix == "" {
			b.WriteString("\n")
		}
	}
	b.WriteString(existing[insertAt:])
	return b.String(), nil
}

// closingParen locates the root node's closing parenthesis.
func closingParen(text string) (int, error) {
	open := strings.Index(text, "(")
	if open < 0 {
		return 0, fmt.Errorf("no root node")
	}

	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced root node")
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
