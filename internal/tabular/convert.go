package tabular

// convert.go turns raw CSV cells into typed Values.
//
// Source files come from a third-party repository, so cells are cleaned of
// the usual artifacts (surrounding quotes, Excel formula prefixes, stray
// whitespace) before parsing. Numbers are scanned by pgtype.Numeric, which
// handles exponents and arbitrary precision before conversion to float64; dates
// are ISO calendar days.

import (
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// numericRegex validates that a string is a plain decimal or scientific number.
// Thousands separators are rejected: upstream files use the comma as a decimal
// separator in some columns, and guessing would silently corrupt coordinates.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// dateLayouts are tried in order by ParseDate.
var dateLayouts = []string{
	DateLayout,
	"2006/01/02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// CleanCell removes common CSV artifacts from a cell value:
//   - surrounding whitespace
//   - Excel formula prefix (="...")
//   - one matched pair of surrounding double quotes
//
// Apostrophes are left alone: they are part of names and addresses.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if len(s) >= 3 && strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return s
}

// ToPgNumeric converts a cleaned string to pgtype.Numeric.
// Returns invalid for empty or malformed input.
func ToPgNumeric(s string) pgtype.Numeric {
	s = strings.TrimSpace(s)
	if s == "" || !numericRegex.MatchString(s) {
		return pgtype.Numeric{Valid: false}
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{Valid: false}
	}
	return n
}

// ParseNumber parses a numeric cell. ok is false when s is not a number.
func ParseNumber(s string) (Value, bool) {
	n := ToPgNumeric(s)
	if !n.Valid {
		return Value{}, false
	}
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		return Value{}, false
	}
	return Number(f.Float64), true
}

// ToPgDate converts a cleaned string to pgtype.Date.
func ToPgDate(s string) pgtype.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Date{Valid: false}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return pgtype.Date{Time: t, Valid: true}
		}
	}
	return pgtype.Date{Valid: false}
}

// ParseDate parses a date cell. ok is false when s is not a recognised date.
func ParseDate(s string) (Value, bool) {
	d := ToPgDate(s)
	if !d.Valid {
		return Value{}, false
	}
	return Date(d.Time), true
}

// ParseCell converts one raw cell, preferring date, then number, then text.
// Empty cells are null.
func ParseCell(raw string) Value {
	s := CleanCell(raw)
	if s == "" {
		return Null()
	}
	if v, ok := ParseDate(s); ok {
		return v
	}
	if v, ok := ParseNumber(s); ok {
		return v
	}
	return Text(s)
}

// InferColumn converts a whole column at once. A column is typed as dates or
// numbers only when every non-empty cell parses as such; otherwise every cell
// is kept as text, so a single stray value never splits a column's kinds.
func InferColumn(raw []string) []Value {
	cleaned := make([]string, len(raw))
	for i, r := range raw {
		cleaned[i] = CleanCell(r)
	}

	for _, parse := range []func(string) (Value, bool){ParseDate, ParseNumber} {
		if out, ok := parseAll(cleaned, parse); ok {
			return out
		}
	}

	out := make([]Value, len(cleaned))
	for i, s := range cleaned {
		if s != "" {
			out[i] = Text(s)
		}
	}
	return out
}

func parseAll(cells []string, parse func(string) (Value, bool)) ([]Value, bool) {
	out := make([]Value, len(cells))
	seen := false
	for i, s := range cells {
		if s == "" {
			continue
		}
		v, ok := parse(s)
		if !ok {
			return nil, false
		}
		out[i] = v
		seen = true
	}
	return out, seen
}
