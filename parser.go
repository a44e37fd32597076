package main

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Labeled fields as printed on the template, in print order. Each value runs
// until the next label or the end of the text, since region text arrives as
// one concatenated line.
var receiptFieldLabels = []string{
	"Beneficiario",
	"Valor",
	"Entidad",
	"Cuenta",
	"Referencia",
	"Fecha de aplicación",
	"Concepto",
	"Estado",
}

var fieldPatterns = compileFieldPatterns()

func compileFieldPatterns() map[string]*regexp.Regexp {
	alternation := strings.Join(receiptFieldLabels, "|")
	patterns := make(map[string]*regexp.Regexp, len(receiptFieldLabels))
	for _, label := range receiptFieldLabels {
		expr := fmt.Sprintf(`(?i)%s\s*:\s*(.*?)\s*(?:(?:%s)\s*:|$)`, label, alternation)
		patterns[label] = regexp.MustCompile(expr)
	}
	return patterns
}

// textualDatePattern matches the template's localized date form,
// e.g. "27 de Octubre de 2025".
var textualDatePattern = regexp.MustCompile(`(?i)(\d{1,2})\s+de\s+([\p{L}]+)\s+de\s+(\d{4})`)

var spanishMonths = map[string]time.Month{
	"enero":      time.January,
	"febrero":    time.February,
	"marzo":      time.March,
	"abril":      time.April,
	"mayo":       time.May,
	"junio":      time.June,
	"julio":      time.July,
	"agosto":     time.August,
	"septiembre": time.September,
	"setiembre":  time.September,
	"octubre":    time.October,
	"noviembre":  time.November,
	"diciembre":  time.December,
}

// bankEntities is the allow-list of known entities, most specific first so a
// generic prefix never masks a longer name appearing in the same text.
var bankEntities = []string{
	"BANCO CAJA SOCIAL",
	"BANCO DE BOGOTA",
	"BANCO FALABELLA",
	"BANCO BBVA",
	"BANCOLOMBIA",
	"DAVIPLATA",
	"NEQUI",
}

// ParseReceiptText extracts the structured fields from one region's
// concatenated token text. Missing or unparsable fields are left zero-valued;
// the only error is entirely empty input.
func ParseReceiptText(text string) (ParsedReceipt, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ParsedReceipt{}, fmt.Errorf("receipt region contains no text")
	}

	receipt := ParsedReceipt{
		RawText: trimmed,
		Value:   decimal.Zero,
	}

	receipt.Beneficiary = matchField(trimmed, "Beneficiario")
	receipt.Account = matchField(trimmed, "Cuenta")
	receipt.Reference = matchField(trimmed, "Referencia")
	receipt.Concept = matchField(trimmed, "Concepto")
	receipt.PaymentStatus = matchField(trimmed, "Estado")

	if raw := matchField(trimmed, "Valor"); raw != "" {
		receipt.Value = parseMoney(raw)
	}
	if raw := matchField(trimmed, "Fecha de aplicación"); raw != "" {
		receipt.AppliedOn = parseSpanishDate(raw)
	} else {
		receipt.AppliedOn = parseSpanishDate(trimmed)
	}

	receipt.Entity = matchBankEntity(trimmed)

	upper := strings.ToUpper(trimmed)
	if receipt.PaymentStatus == "" && strings.Contains(upper, "PAGO EXITOSO") {
		receipt.PaymentStatus = "PAGO EXITOSO Y ABONADO"
	}
	if receipt.Concept == "" {
		if strings.Contains(upper, "PAGOS") {
			receipt.Concept = "PAGOS"
		} else if strings.Contains(upper, "PAGO") {
			receipt.Concept = "PAGO"
		}
	}

	return receipt, nil
}

func matchField(text, label string) string {
	m := fieldPatterns[label].FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// parseMoney converts the template's money format ("1.234.567,89", optional
// currency sign) to an exact decimal. Thousands separators are periods and
// the decimal separator a comma. Malformed input yields zero, never an error,
// so one bad receipt cannot poison batch totals.
func parseMoney(raw string) decimal.Decimal {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return value
}

// parseSpanishDate parses the localized "27 de Octubre de 2025" form against
// the fixed month table. Any failure yields nil; dates are never inferred.
func parseSpanishDate(raw string) *time.Time {
	m := textualDatePattern.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}

	month, ok := spanishMonths[strings.ToLower(m[2])]
	if !ok {
		return nil
	}

	day := atoiSafe(m[1])
	year := atoiSafe(m[3])
	if day < 1 || day > 31 {
		return nil
	}

	date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if date.Day() != day || date.Month() != month {
		// Normalization moved the date, so the day was out of range for
		// the month (e.g. 31 de Febrero).
		return nil
	}
	return &date
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// matchBankEntity returns the first allow-listed entity found in the text.
// The list is ordered most specific first; the first hit wins.
func matchBankEntity(text string) string {
	upper := strings.ToUpper(text)
	for _, entity := range bankEntities {
		if strings.Contains(upper, entity) {
			return entity
		}
	}
	return ""
}
