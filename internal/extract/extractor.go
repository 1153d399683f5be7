// Package extract parses bank alert email HTML into transactions.
package extract

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/bbirdsall/budgetflow/internal/model"
)

// The alert email lays out one transaction per table.transaction, with
// td.date, td.details and td.amount cells.
const (
	tableClass   = "transaction"
	dateClass    = "date"
	detailsClass = "details"
	amountClass  = "amount"
)

var monthNumbers = map[string]int{
	"january":   1,
	"february":  2,
	"march":     3,
	"april":     4,
	"may":       5,
	"june":      6,
	"july":      7,
	"august":    8,
	"september": 9,
	"october":   10,
	"november":  11,
	"december":  12,
}

var dateTokens = regexp.MustCompile(`[A-Za-z]+|\d{1,4}`)

// Extractor parses one email body into zero or more transactions.
type Extractor struct {
	logger *slog.Logger
}

// New creates an Extractor.
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Parse extracts transactions from the alert HTML. Rows with missing or
// unparseable sub-fields are skipped; a malformed email degrades to zero
// transactions rather than an error, so one bad message never kills a poll
// cycle. Parse has no hidden state: the same input always yields the same
// transaction list.
func (e *Extractor) Parse(rawHTML string) ([]model.Transaction, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parsing alert html: %w", err)
	}

	var txns []model.Transaction
	for _, table := range findAll(doc, "table", tableClass) {
		txn, ok := e.parseRow(table)
		if !ok {
			e.logger.Debug("skipping malformed transaction row")
			continue
		}
		txns = append(txns, txn)
	}

	return txns, nil
}

func (e *Extractor) parseRow(table *html.Node) (model.Transaction, bool) {
	date, ok := ParseDate(cellText(table, dateClass))
	if !ok {
		return model.Transaction{}, false
	}

	details := cellText(table, detailsClass)
	if details == "" {
		return model.Transaction{}, false
	}

	amount, ok := ParseAmount(cellText(table, amountClass))
	if !ok {
		return model.Transaction{}, false
	}

	return model.Transaction{
		Date:    date,
		Details: details,
		Amount:  amount,
	}, true
}

// ParseDate extracts a month name and two numeric tokens (day, year) from
// free text like "September 3, 2024" and formats them MM/DD/YY using the
// last two digits of the year.
func ParseDate(text string) (string, bool) {
	var month, day, year int
	for _, tok := range dateTokens.FindAllString(text, -1) {
		if n, err := strconv.Atoi(tok); err == nil {
			switch {
			case day == 0 && n >= 1 && n <= 31 && len(tok) <= 2:
				day = n
			case year == 0 && len(tok) >= 2:
				year = n
			}
			continue
		}
		if month == 0 {
			if m, ok := monthNumbers[strings.ToLower(tok)]; ok {
				month = m
			}
		}
	}

	if month == 0 || day == 0 || year == 0 {
		return "", false
	}

	return fmt.Sprintf("%02d/%02d/%02d", month, day, year%100), true
}

// ParseAmount normalizes an amount string: currency symbol, parentheses and
// thousands separators are stripped, and the result is rounded to exactly
// two decimal places. Parenthesized amounts are treated as positive
// magnitudes, matching the alert source.
func ParseAmount(text string) (float64, bool) {
	cleaned := strings.NewReplacer("$", "", "(", "", ")", "", ",", "", " ", "").Replace(strings.TrimSpace(text))
	if cleaned == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}

	return math.Round(v*100) / 100, true
}

// cellText returns the collapsed text of the first td with the given class
// under n, or "" if absent.
func cellText(n *html.Node, class string) string {
	cells := findAll(n, "td", class)
	if len(cells) == 0 {
		return ""
	}
	return collapseSpace(textContent(cells[0]))
}

func findAll(n *html.Node, tag, class string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == tag && hasClass(node, class) {
			out = append(out, node)
			// Do not descend into a matched node looking for the same match.
			if tag == "table" {
				return
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
			b.WriteString(" ")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
