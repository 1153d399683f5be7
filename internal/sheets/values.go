package sheets

import (
	"strconv"
	"strings"
)

// CellString returns the trimmed string in column i of a row, or "" when
// the cell is absent or not a string.
func CellString(row []any, i int) string {
	if i >= len(row) {
		return ""
	}
	s, _ := row[i].(string)
	return strings.TrimSpace(s)
}

// CellFloat returns the numeric value in column i of a row. Cells arrive as
// float64 or as formatted strings depending on how the value was entered.
func CellFloat(row []any, i int) (float64, bool) {
	if i >= len(row) {
		return 0, false
	}
	switch v := row[i].(type) {
	case float64:
		return v, true
	case string:
		trimmed := strings.ReplaceAll(strings.TrimSpace(strings.TrimPrefix(v, "$")), ",", "")
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
