package trace

import (
	"regexp"
	"sort"
	"strings"

	"github.com/fatih/color"
)

var (
	// Field labels: PC, INSTR, REG, MEM
	labelPattern = regexp.MustCompile(`\b(?:PC|INSTR|REG|MEM)\b`)
	// Register identifiers following REG
	regPattern = regexp.MustCompile(`\bREG ([a-z]+[0-9]*)\b`)
	// Hex values
	hexPattern = regexp.MustCompile(`\b0[xX][0-9a-fA-F]+\b`)
	// Diff prefixes such as "-12:" or "+7:"
	diffPrefixPattern = regexp.MustCompile(`^[+-][0-9]+:`)
)

// Highlighter colors the fields of canonical trace lines
type Highlighter struct {
	label, reg, value, removed, added *color.Color
}

type token struct {
	color      *color.Color
	start, end int
}

// NewHighlighter returns a highlighter. A disabled highlighter returns lines unchanged.
func NewHighlighter(enabled bool) *Highlighter {
	h := &Highlighter{
		label:   color.New(color.FgHiBlack),
		reg:     color.New(color.FgCyan),
		value:   color.New(color.FgYellow),
		removed: color.New(color.FgRed, color.Bold),
		added:   color.New(color.FgGreen, color.Bold),
	}

	for _, c := range []*color.Color{h.label, h.reg, h.value, h.removed, h.added} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return h
}

// Highlight returns line with color codes around its fields. Diff lines keep
// their "-n:"/"+n:" prefix, colored as removed/added.
func (h *Highlighter) Highlight(line string) string {
	if line == "" {
		return ""
	}

	var tokens []token

	if m := diffPrefixPattern.FindStringIndex(line); m != nil {
		c := h.added
		if line[0] == '-' {
			c = h.removed
		}
		tokens = append(tokens, token{color: c, start: m[0], end: m[1]})
	}

	for _, m := range regPattern.FindAllStringSubmatchIndex(line, -1) {
		if !overlapsAny(m[2], m[3], tokens) {
			tokens = append(tokens, token{color: h.reg, start: m[2], end: m[3]})
		}
	}

	for _, m := range labelPattern.FindAllStringIndex(line, -1) {
		if !overlapsAny(m[0], m[1], tokens) {
			tokens = append(tokens, token{color: h.label, start: m[0], end: m[1]})
		}
	}

	for _, m := range hexPattern.FindAllStringIndex(line, -1) {
		if !overlapsAny(m[0], m[1], tokens) {
			tokens = append(tokens, token{color: h.value, start: m[0], end: m[1]})
		}
	}

	return buildHighlighted(line, tokens)
}

func overlapsAny(start, end int, tokens []token) bool {
	for _, t := range tokens {
		if start < t.end && end > t.start {
			return true
		}
	}
	return false
}

func buildHighlighted(line string, tokens []token) string {
	if len(tokens) == 0 {
		return line
	}

	sort.Slice(tokens, func(i, j int) bool { return tokens[i].start < tokens[j].start })

	var sb strings.Builder
	pos := 0
	for _, t := range tokens {
		if t.start > pos {
			sb.WriteString(line[pos:t.start])
		}
		sb.WriteString(t.color.Sprint(line[t.start:t.end]))
		pos = t.end
	}

	if pos < len(line) {
		sb.WriteString(line[pos:])
	}

	return sb.String()
}
