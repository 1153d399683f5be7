package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const alertHTML = `
<html><body>
<table class="transaction">
  <tr>
    <td class="date">September 3, 2024</td>
    <td class="details">  WALMART SUPERCENTER #1234   SALT LAKE CITY </td>
    <td class="amount">$1,234.50</td>
  </tr>
</table>
<table class="transaction">
  <tr>
    <td class="date">September 4, 2024</td>
    <td class="details">MAVERIK #12</td>
    <td class="amount">(45.00)</td>
  </tr>
</table>
</body></html>`

func TestExtractor_Parse(t *testing.T) {
	e := New(nil)

	txns, err := e.Parse(alertHTML)
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.Equal(t, "09/03/24", txns[0].Date)
	assert.Equal(t, "WALMART SUPERCENTER #1234 SALT LAKE CITY", txns[0].Details)
	assert.InDelta(t, 1234.50, txns[0].Amount, 0.001)

	assert.Equal(t, "09/04/24", txns[1].Date)
	assert.Equal(t, "MAVERIK #12", txns[1].Details)
	assert.InDelta(t, 45.00, txns[1].Amount, 0.001)
}

func TestExtractor_ParseIdempotent(t *testing.T) {
	e := New(nil)

	first, err := e.Parse(alertHTML)
	require.NoError(t, err)
	second, err := e.Parse(alertHTML)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestExtractor_SkipsMalformedRows(t *testing.T) {
	html := `
<table class="transaction">
  <tr><td class="date">not a date</td><td class="details">SOMEWHERE</td><td class="amount">$5.00</td></tr>
</table>
<table class="transaction">
  <tr><td class="date">May 1, 2024</td><td class="details"></td><td class="amount">$5.00</td></tr>
</table>
<table class="transaction">
  <tr><td class="date">May 1, 2024</td><td class="details">CHEVRON #55</td><td class="amount">abc</td></tr>
</table>
<table class="transaction">
  <tr><td class="date">May 1, 2024</td><td class="details">CHEVRON #55</td><td class="amount">$8.50</td></tr>
</table>`

	e := New(nil)
	txns, err := e.Parse(html)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "CHEVRON #55", txns[0].Details)
}

func TestExtractor_MalformedEmailYieldsNothing(t *testing.T) {
	e := New(nil)

	txns, err := e.Parse("<div>maintenance notice, no transactions here</div>")
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$1,234.50", 1234.50, true},
		{"(45.00)", 45.00, true},
		{"12", 12.00, true},
		{"$8.505", 8.51, true},
		{"", 0, false},
		{"abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseAmount(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 0.001)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"September 3, 2024", "09/03/24", true},
		{"Posted on January 15 2025", "01/15/25", true},
		{"May 12 24", "05/12/24", true},
		{"3 December 1999", "12/03/99", true},
		{"no date here", "", false},
		{"September 2024", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
