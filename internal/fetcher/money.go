package fetcher

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/licitatech/pncp-harvester/internal/pncpapi"
)

const (
	objectNotInformed = "Não informado"
	valueNotInformed  = "NÃO INFORMADO"
	objectPrefix      = "Aquisição/Contratação: "
	objectMaxRunes    = 100
)

var ptBR = message.NewPrinter(language.BrazilianPortuguese)

// InferObject derives the object description from the line items: the first
// item's description uppercased, capped at 100 characters, behind a fixed
// prefix. Empty input yields the "not informed" sentinel.
func InferObject(items []pncpapi.Item) string {
	if len(items) == 0 {
		return objectNotInformed
	}
	desc := strings.ToUpper(strings.TrimSpace(items[0].Description))
	if runes := []rune(desc); len(runes) > objectMaxRunes {
		desc = string(runes[:objectMaxRunes])
	}
	return objectPrefix + desc
}

// SumItemTotals adds up every item's total value, treating absent values as 0.
func SumItemTotals(items []pncpapi.Item) float64 {
	var total float64
	for _, it := range items {
		total += it.TotalValue
	}
	return total
}

// FormatCurrency renders a total as a pt-BR currency string, e.g.
// "R$ 1.234,56". A zero total becomes the explicit not-informed marker.
func FormatCurrency(total float64) string {
	if total <= 0 {
		return valueNotInformed
	}
	return ptBR.Sprintf("R$ %v", number.Decimal(total, number.Scale(2)))
}
