package commands

import (
	"fmt"

	"pricewatch-telegram-bot/lib/helpers"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// CommandPrice returns the current USD and BTC price for a coin.
func (h *Handler) CommandPrice(argument string) (string, error) {
	log.Debugf("processing command /price with argument: %s", argument)

	coin, err := h.Source.ResolveCoin(argument)
	if err != nil || coin.ID == nil {
		return "", errors.Wrap(err, "command /price")
	}

	ticker, err := h.Source.Ticker(*coin.ID)
	if err != nil {
		return "", errors.Wrap(err, "command /price")
	}

	priceUSD := ticker.Quotes["USD"].Price
	priceBTC := ticker.Quotes["BTC"].Price
	if ticker.Name == nil || priceUSD == nil || priceBTC == nil {
		return fmt.Sprintf("This coin is not actively traded and doesn't have a current price\\.\n"+
			"Coin id: %s", helpers.EscapeMarkdownV2(*coin.ID)), nil
	}

	return fmt.Sprintf("*%s price:*\n\n▫️`%.8f` *USD*\n▫️`%.8f` *BTC*",
		helpers.EscapeMarkdownV2(*ticker.Name), *priceUSD, *priceBTC), nil
}
