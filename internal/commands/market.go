package commands

import (
	"fmt"
	"strconv"
	"strings"

	"pricewatch-telegram-bot/internal/pricesource"
	"pricewatch-telegram-bot/lib/helpers"
	"pricewatch-telegram-bot/lib/translation"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	searchResultLimit = 10
	pricesCoinLimit   = 10
	topDefaultLimit   = 10
	topMaxLimit       = 50
)

// CommandSearch lists coins matching a user query.
func (h *Handler) CommandSearch(argument string) (string, error) {
	query := strings.TrimSpace(argument)
	log.Debugf("processing command /search with argument: %s", query)

	if query == "" {
		return translation.Translate("Usage: `/search <query>`, e\\.g\\. `/search bitcoin`\\."), nil
	}

	coins, err := h.Source.SearchCoins(query, searchResultLimit)
	if err != nil {
		return "", errors.Wrap(err, "command /search")
	}
	if len(coins) == 0 {
		return translation.Translate("No coins found matching: `%s`", helpers.EscapeMarkdownV2(query)), nil
	}

	var b strings.Builder
	b.WriteString(translation.Translate("*Search results for %s:*\n", helpers.EscapeMarkdownV2(query)))
	for _, coin := range coins {
		if coin.ID == nil || coin.Name == nil || coin.Symbol == nil {
			continue
		}
		b.WriteString(fmt.Sprintf("▫️ %s \\(%s\\): `%s`\n",
			helpers.EscapeMarkdownV2(*coin.Name),
			helpers.EscapeMarkdownV2(strings.ToUpper(*coin.Symbol)),
			helpers.EscapeMarkdownV2(*coin.ID)))
	}
	b.WriteString(translation.Translate("\nAdd one with `/addcoin <id>`\\."))
	return b.String(), nil
}

// CommandTop lists the top coins by market cap, default 10, capped at 50.
func (h *Handler) CommandTop(argument string) (string, error) {
	log.Debugf("processing command /top with argument: %s", argument)

	limit := topDefaultLimit
	if arg := strings.TrimSpace(argument); arg != "" {
		if n, err := strconv.Atoi(arg); err == nil {
			limit = n
			if limit > topMaxLimit {
				limit = topMaxLimit
			}
			if limit < 1 {
				limit = topDefaultLimit
			}
		}
	}

	tickers, err := h.Source.TopTickers(limit)
	if err != nil {
		return "", errors.Wrap(err, "command /top")
	}

	var b strings.Builder
	b.WriteString(translation.Translate("*Top %d coins by market cap:*\n", len(tickers)))
	for _, ticker := range tickers {
		if ticker.Name == nil || ticker.Symbol == nil || ticker.Rank == nil {
			continue
		}
		line := fmt.Sprintf("▫️ %d\\. %s \\(%s\\)",
			*ticker.Rank,
			helpers.EscapeMarkdownV2(*ticker.Name),
			helpers.EscapeMarkdownV2(strings.ToUpper(*ticker.Symbol)))
		if quote, ok := ticker.Quotes["USD"]; ok && quote.Price != nil {
			line += ": " + helpers.EscapeMarkdownV2(helpers.FormatPriceUSD(*quote.Price))
		}
		b.WriteString(line + "\n")
	}
	return b.String(), nil
}

// CommandPrices shows prices for several coins at once, optionally in
// another quote currency given as the last argument.
func (h *Handler) CommandPrices(argument string) (string, error) {
	log.Debugf("processing command /prices with argument: %s", argument)

	args := strings.Fields(argument)
	if len(args) == 0 {
		return translation.Translate("Usage: `/prices <coin> [coin\\.\\.\\.] [currency]`, e\\.g\\. `/prices btc eth eur`\\."), nil
	}

	quote := "USD"
	if len(args) > 1 {
		last := args[len(args)-1]
		if len(last) == 3 && pricesource.IsSupportedQuote(last) {
			quote = strings.ToUpper(last)
			args = args[:len(args)-1]
		}
	}

	if len(args) > pricesCoinLimit {
		return translation.Translate("Maximum %d coins allowed per request\\.", pricesCoinLimit), nil
	}

	type resolved struct {
		id    string
		label string
	}
	var coins []resolved
	var coinIDs []string
	for _, query := range args {
		coin, err := h.Source.ResolveCoin(query)
		if err != nil || coin.ID == nil {
			coins = append(coins, resolved{label: fmt.Sprintf("%s \\(%s\\)",
				helpers.EscapeMarkdownV2(query), translation.Translate("not found"))})
			continue
		}
		label := *coin.ID
		if coin.Name != nil {
			label = *coin.Name
		}
		coins = append(coins, resolved{id: *coin.ID, label: helpers.EscapeMarkdownV2(label)})
		coinIDs = append(coinIDs, *coin.ID)
	}

	if len(coinIDs) == 0 {
		return translation.Translate("No valid coins found\\."), nil
	}

	prices, err := h.Source.FetchPricesIn(coinIDs, quote)
	if err != nil {
		return "", errors.Wrap(err, "command /prices")
	}

	var b strings.Builder
	b.WriteString(translation.Translate("*Prices \\(%s\\):*\n", quote))
	for _, c := range coins {
		if c.id == "" {
			b.WriteString(fmt.Sprintf("▫️ %s\n", c.label))
			continue
		}
		price, ok := prices[c.id]
		if !ok {
			b.WriteString(fmt.Sprintf("▫️ %s: %s\n", c.label, translation.Translate("price unavailable")))
			continue
		}
		b.WriteString(fmt.Sprintf("▫️ %s: %s\n", c.label, helpers.EscapeMarkdownV2(formatQuoted(price, quote))))
	}
	return b.String(), nil
}

// CommandCurrencies lists the quote currencies /prices understands.
func (h *Handler) CommandCurrencies() string {
	quotes := pricesource.SupportedQuotes()

	var b strings.Builder
	b.WriteString(translation.Translate("*Supported currencies:*\n\n"))
	b.WriteString(helpers.EscapeMarkdownV2(strings.Join(quotes, ", ")))
	b.WriteString("\n\n")
	b.WriteString(translation.Translate("*Usage:*\n" +
		"▫️ `/prices btc eur` \\- Bitcoin in Euros\n" +
		"▫️ `/prices btc eth rub` \\- multiple coins in Rubles"))
	return b.String()
}

func formatQuoted(price float64, quote string) string {
	if quote == "USD" {
		return helpers.FormatPriceUSD(price)
	}
	return helpers.FormatAmount(price) + " " + quote
}
