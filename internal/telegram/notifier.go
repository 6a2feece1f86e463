package telegram

import (
	"fmt"

	"pricewatch-telegram-bot/internal/types"
	"pricewatch-telegram-bot/lib/helpers"
	"pricewatch-telegram-bot/lib/translation"
)

// Notify implements the alert engine's notifier contract: it formats a
// price alert and sends it to the user. The engine calls this from its
// own goroutine and never waits on the outcome.
func (b *Bot) Notify(chatID int64, n types.Notification) error {
	arrow := "📉"
	if n.Direction == types.DirectionUp {
		arrow = "📈"
	}

	text := fmt.Sprintf(
		"⚠️ %s ⚠️\n\n"+
			"%s *%s* %s *%s*\n"+
			"📊 %s %s\n\n"+
			"💰 %s %s\n"+
			"%s %s %s",
		translation.Translate("*Price Alert*"),
		arrow,
		helpers.EscapeMarkdownV2(n.CoinName),
		translation.Translate("price changed by"),
		helpers.EscapeMarkdownV2(helpers.FormatPercent(n.ChangePercent)),
		translation.Translate("*Your threshold:*"),
		helpers.EscapeMarkdownV2(helpers.FormatPercent(n.Threshold)),
		translation.Translate("*Current Price:*"),
		helpers.EscapeMarkdownV2(helpers.FormatPriceUSD(n.CurrentPrice)),
		arrow,
		translation.Translate("*Previous Price:*"),
		helpers.EscapeMarkdownV2(helpers.FormatPriceUSD(n.LastPrice)),
	)

	return b.SendMessage(Message{
		ChatID: chatID,
		Text:   text,
	})
}
