package commands

import (
	"strconv"
	"strings"

	"pricewatch-telegram-bot/internal/pricesource"
	"pricewatch-telegram-bot/internal/registry"
	"pricewatch-telegram-bot/internal/storage"
	"pricewatch-telegram-bot/lib/helpers"
	"pricewatch-telegram-bot/lib/translation"

	log "github.com/sirupsen/logrus"
)

// Handler executes bot commands against the registry and price source.
// It owns input validation; the registry assumes pre-validated input.
type Handler struct {
	Registry *registry.Registry
	Source   *pricesource.Paprika
	Store    *storage.Store
}

// CommandSubscribe adds the chat to the subscriber list.
func (h *Handler) CommandSubscribe(chatID int64) string {
	log.Debugf("processing /subscribe for chat %d", chatID)

	if !h.Registry.AddSubscriber(chatID) {
		return translation.Translate("You are already subscribed to price alerts\\.")
	}

	return translation.Translate("Subscribed to price alerts\\. Add coins with /addcoin to start monitoring\\.")
}

// CommandUnsubscribe removes the chat and purges its settings.
func (h *Handler) CommandUnsubscribe(chatID int64) string {
	log.Debugf("processing /unsubscribe for chat %d", chatID)

	if !h.Registry.RemoveSubscriber(chatID) {
		return translation.Translate("You are not subscribed\\.")
	}

	return translation.Translate("Unsubscribed\\. Your coins and threshold have been removed\\.")
}

// CommandSettings shows the current threshold, or sets a new one when an
// argument is given. Thresholds must be a percentage in (0, 100].
func (h *Handler) CommandSettings(chatID int64, argument string) string {
	argument = strings.TrimSpace(argument)
	log.Debugf("processing /settings for chat %d with argument %q", chatID, argument)

	if argument == "" {
		threshold := h.Registry.Threshold(chatID)
		suffix := translation.Translate("default")
		if h.Registry.HasCustomThreshold(chatID) {
			suffix = translation.Translate("custom")
		}
		return translation.Translate("Your alert threshold is *%s* \\(%s\\)\\.",
			helpers.EscapeMarkdownV2(helpers.FormatPercent(threshold)), suffix)
	}

	threshold, err := strconv.ParseFloat(argument, 64)
	if err != nil || threshold <= 0 || threshold > 100 {
		return translation.Translate("Please provide a threshold between 0 and 100, e\\.g\\. `/settings 5`\\.")
	}

	h.Registry.SetThreshold(chatID, threshold)
	return translation.Translate("Alert threshold set to *%s*\\.",
		helpers.EscapeMarkdownV2(helpers.FormatPercent(threshold)))
}
