package fusion

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// dollars renders v with thousands grouping and cents, e.g. "$12,400.50".
func dollars(v float64) string {
	return printer.Sprintf("$%.2f", v)
}

func wholeDollars(v float64) string {
	return printer.Sprintf("$%.0f", v)
}

// titleStatus turns "data_gap" into "Data Gap".
func titleStatus(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// capList copies at most n items; the result is never nil.
func capList(items []string, n int) []string {
	if len(items) > n {
		items = items[:n]
	}
	return append(make([]string, 0, len(items)), items...)
}
