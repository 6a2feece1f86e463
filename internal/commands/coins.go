package commands

import (
	"fmt"
	"strings"

	"pricewatch-telegram-bot/lib/helpers"
	"pricewatch-telegram-bot/lib/translation"

	log "github.com/sirupsen/logrus"
)

// CommandAddCoin resolves the query to a coin and adds it to the chat's
// watch-set.
func (h *Handler) CommandAddCoin(chatID int64, argument string) string {
	argument = strings.TrimSpace(argument)
	log.Debugf("processing /addcoin for chat %d with argument %q", chatID, argument)

	if argument == "" {
		return translation.Translate("Usage: `/addcoin <coin>`, e\\.g\\. `/addcoin btc`\\.")
	}

	coin, err := h.Source.ResolveCoin(argument)
	if err != nil || coin.ID == nil {
		log.Debugf("coin resolution failed for %q: %v", argument, err)
		return translation.Translate("Coin not found")
	}

	name := *coin.ID
	if coin.Name != nil {
		name = *coin.Name
	}

	if !h.Registry.AddCoin(chatID, *coin.ID) {
		return translation.Translate("*%s* is already on your watch list\\.", helpers.EscapeMarkdownV2(name))
	}

	return translation.Translate("*%s* added to your watch list\\.", helpers.EscapeMarkdownV2(name))
}

// CommandRemoveCoin drops a coin from the chat's watch-set.
func (h *Handler) CommandRemoveCoin(chatID int64, argument string) string {
	argument = strings.TrimSpace(argument)
	log.Debugf("processing /removecoin for chat %d with argument %q", chatID, argument)

	if argument == "" {
		return translation.Translate("Usage: `/removecoin <coin>`\\.")
	}

	// Try the raw argument first so users can paste ids from /mycoins,
	// then fall back to a search.
	coinID := argument
	if !h.Registry.RemoveCoin(chatID, coinID) {
		coin, err := h.Source.ResolveCoin(argument)
		if err != nil || coin.ID == nil || !h.Registry.RemoveCoin(chatID, *coin.ID) {
			return translation.Translate("That coin is not on your watch list\\.")
		}
		coinID = *coin.ID
	}

	return translation.Translate("*%s* removed from your watch list\\.", helpers.EscapeMarkdownV2(coinID))
}

// CommandMyCoins lists the chat's watch-set.
func (h *Handler) CommandMyCoins(chatID int64) string {
	coins := h.Registry.Coins(chatID)
	if len(coins) == 0 {
		return translation.Translate("Your watch list is empty\\. Add coins with /addcoin\\.")
	}

	var b strings.Builder
	b.WriteString(translation.Translate("*Your watched coins:*\n"))
	for _, coinID := range coins {
		b.WriteString(fmt.Sprintf("▫️ %s\n", helpers.EscapeMarkdownV2(coinID)))
	}
	return b.String()
}

// CommandClearCoins empties the chat's watch-set.
func (h *Handler) CommandClearCoins(chatID int64) string {
	log.Debugf("processing /clearcoins for chat %d", chatID)

	if !h.Registry.ClearCoins(chatID) {
		return translation.Translate("Your watch list is already empty\\.")
	}

	return translation.Translate("All coins removed from your watch list\\.")
}
