package telegram

import (
	"pricewatch-telegram-bot/internal/commands"
	"pricewatch-telegram-bot/lib/translation"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NewBot creates new telegram bot
func NewBot(c BotConfig, handler *commands.Handler) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(c.Token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug

	return &Bot{
		Bot:      bot,
		Config:   c,
		Commands: handler,
	}, nil
}

// GetUpdatesChannel gets new updates
func (b *Bot) GetUpdatesChannel() (tgbotapi.UpdatesChannel, error) {
	updatesConfig := tgbotapi.NewUpdate(0)
	if b.Config.UpdatesTimeout > 0 {
		updatesConfig.Timeout = b.Config.UpdatesTimeout
	}
	return b.Bot.GetUpdatesChan(updatesConfig), nil
}

// SendMessage sends a telegram message
func (b *Bot) SendMessage(m Message) error {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.ReplyToMessageID = m.MessageID
	msg.DisableWebPagePreview = true
	msg.ParseMode = "MarkdownV2"
	_, err := b.Bot.Send(msg)
	return errors.Wrapf(err, "could not send message: %v", m)
}

// HandleUpdate processes Telegram updates
func (b *Bot) HandleUpdate(u tgbotapi.Update) string {
	text := translation.Translate("Command help message")
	log.Debugf("received command: %s", u.Message.Command())

	chatID := u.Message.Chat.ID
	args := u.Message.CommandArguments()

	var err error

	switch u.Message.Command() {
	case "start", "help":
		text = helpText()
	case "subscribe":
		text = b.Commands.CommandSubscribe(chatID)
	case "unsubscribe":
		text = b.Commands.CommandUnsubscribe(chatID)
	case "settings":
		text = b.Commands.CommandSettings(chatID, args)
	case "addcoin":
		text = b.Commands.CommandAddCoin(chatID, args)
	case "removecoin":
		text = b.Commands.CommandRemoveCoin(chatID, args)
	case "mycoins":
		text = b.Commands.CommandMyCoins(chatID)
	case "clearcoins":
		text = b.Commands.CommandClearCoins(chatID)
	case "price":
		if text, err = b.Commands.CommandPrice(args); err != nil {
			text = translation.Translate("Coin not found")
			log.Error(err)
		}
	case "prices":
		if text, err = b.Commands.CommandPrices(args); err != nil {
			text = translation.Translate("Could not fetch prices, please try again later\\.")
			log.Error(err)
		}
	case "search":
		if text, err = b.Commands.CommandSearch(args); err != nil {
			text = translation.Translate("Search failed, please try again later\\.")
			log.Error(err)
		}
	case "top":
		if text, err = b.Commands.CommandTop(args); err != nil {
			text = translation.Translate("Could not fetch tickers, please try again later\\.")
			log.Error(err)
		}
	case "currencies":
		text = b.Commands.CommandCurrencies()
	case "backup":
		if !b.isAdmin(chatID) {
			text = translation.Translate("This command is restricted\\.")
			break
		}
		text = b.Commands.CommandBackup()
	case "restore":
		if !b.isAdmin(chatID) {
			text = translation.Translate("This command is restricted\\.")
			break
		}
		text = b.Commands.CommandRestore(args)
	}

	return text
}

func (b *Bot) isAdmin(chatID int64) bool {
	return b.Config.AdminChatID != 0 && chatID == b.Config.AdminChatID
}

func helpText() string {
	return translation.Translate("*Price alert bot*\n\n" +
		"▫️ /subscribe \\- receive price alerts\n" +
		"▫️ /unsubscribe \\- stop receiving alerts\n" +
		"▫️ /addcoin `<coin>` \\- watch a coin\n" +
		"▫️ /removecoin `<coin>` \\- stop watching a coin\n" +
		"▫️ /mycoins \\- list watched coins\n" +
		"▫️ /clearcoins \\- clear your watch list\n" +
		"▫️ /settings `[percent]` \\- show or set your alert threshold\n" +
		"▫️ /price `<coin>` \\- current price\n" +
		"▫️ /prices `<coin> [coin\\.\\.\\.] [currency]` \\- prices for several coins\n" +
		"▫️ /search `<query>` \\- find a coin\n" +
		"▫️ /top `[n]` \\- top coins by market cap\n" +
		"▫️ /currencies \\- supported quote currencies")
}
