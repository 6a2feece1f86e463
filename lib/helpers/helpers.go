package helpers

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func EscapeMarkdownV2(text string) string {
	charactersToEscape := []string{".", "-", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "=", "|", "{", "}", "!"}

	for _, char := range charactersToEscape {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}

// FormatAmount renders an amount with magnitude-dependent precision:
// sub-cent values keep six decimals, sub-unit four, everything else two
// with thousand separators.
func FormatAmount(amount float64) string {
	switch {
	case amount < 0.01:
		return trimZeros(fmt.Sprintf("%.6f", amount))
	case amount < 1:
		return trimZeros(fmt.Sprintf("%.4f", amount))
	default:
		return humanize.CommafWithDigits(amount, 2)
	}
}

// FormatPriceUSD renders a USD price.
func FormatPriceUSD(price float64) string {
	return "$" + FormatAmount(price)
}

// FormatPercent renders a percentage with two decimals.
func FormatPercent(percent float64) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%.2f", percent) + "%"
}

func trimZeros(s string) string {
	return strings.TrimRight(strings.TrimRight(s, "0"), ".")
}
