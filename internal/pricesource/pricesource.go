package pricesource

import (
	"sort"
	"strings"
	"sync"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Source is the price-fetch capability used by the alert engine. A fetch
// returns only the subset of ids it could resolve; missing ids are not
// an error.
type Source interface {
	FetchPrices(coinIDs []string) (map[string]float64, error)
	CoinName(coinID string) string
}

// Paprika fetches prices from the CoinPaprika API. One bulk tickers call
// covers an arbitrary batch of ids, well past the 250-id batches the
// engine produces.
type Paprika struct {
	client *coinpaprika.Client

	mu    sync.RWMutex
	names map[string]string
}

// NewPaprika creates a CoinPaprika-backed price source. A non-empty
// apiKey switches the client to the pro API.
func NewPaprika(apiKey string) *Paprika {
	var client *coinpaprika.Client
	if apiKey != "" {
		client = coinpaprika.NewClient(nil, coinpaprika.WithAPIKey(apiKey))
	} else {
		client = coinpaprika.NewClient(nil)
	}

	return &Paprika{
		client: client,
		names:  make(map[string]string),
	}
}

// supportedQuotes are the quote currencies the CoinPaprika tickers
// endpoint accepts.
var supportedQuotes = []string{
	"USD", "EUR", "GBP", "JPY", "CAD", "AUD", "CHF", "CNY", "RUB", "INR",
	"BRL", "KRW", "MXN", "SEK", "NOK", "DKK", "PLN", "CZK", "HUF", "TRY",
	"ZAR", "THB", "SGD", "HKD", "NZD", "PHP", "MYR", "IDR", "VND", "UAH",
	"ILS", "ARS", "CLP", "COP", "PEN", "BOB", "ISK", "PKR", "TWD", "NGN",
	"BTC", "ETH",
}

// SupportedQuotes returns the quote currencies prices can be shown in.
func SupportedQuotes() []string {
	out := make([]string, len(supportedQuotes))
	copy(out, supportedQuotes)
	return out
}

// IsSupportedQuote reports whether code is a usable quote currency.
func IsSupportedQuote(code string) bool {
	code = strings.ToUpper(code)
	for _, q := range supportedQuotes {
		if q == code {
			return true
		}
	}
	return false
}

// FetchPrices returns the current USD price for each requested coin id
// that the API knows about. Ids absent from the response are simply left
// out of the result.
func (p *Paprika) FetchPrices(coinIDs []string) (map[string]float64, error) {
	return p.FetchPricesIn(coinIDs, "USD")
}

// FetchPricesIn is FetchPrices in an arbitrary supported quote currency.
func (p *Paprika) FetchPricesIn(coinIDs []string, quote string) (map[string]float64, error) {
	if len(coinIDs) == 0 {
		return map[string]float64{}, nil
	}
	quote = strings.ToUpper(quote)

	tickers, err := p.client.Tickers.List(&coinpaprika.TickersOptions{Quotes: quote})
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch tickers")
	}

	requested := make(map[string]struct{}, len(coinIDs))
	for _, id := range coinIDs {
		requested[id] = struct{}{}
	}

	prices := make(map[string]float64, len(coinIDs))
	p.mu.Lock()
	for _, ticker := range tickers {
		if ticker.ID == nil {
			continue
		}
		if _, ok := requested[*ticker.ID]; !ok {
			continue
		}
		q, ok := ticker.Quotes[quote]
		if ok && q.Price != nil {
			prices[*ticker.ID] = *q.Price
		}
		if ticker.Name != nil {
			p.names[*ticker.ID] = *ticker.Name
		}
	}
	p.mu.Unlock()

	log.Debugf("fetched %d/%d %s prices from coinpaprika", len(prices), len(coinIDs), quote)
	return prices, nil
}

// TopTickers returns the top coins by market cap rank.
func (p *Paprika) TopTickers(limit int) ([]*coinpaprika.Ticker, error) {
	tickers, err := p.client.Tickers.List(&coinpaprika.TickersOptions{Quotes: "USD"})
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch tickers")
	}

	ranked := make([]*coinpaprika.Ticker, 0, len(tickers))
	for _, ticker := range tickers {
		if ticker.ID == nil || ticker.Rank == nil || *ticker.Rank < 1 {
			continue
		}
		ranked = append(ranked, ticker)
	}
	sort.Slice(ranked, func(i, j int) bool { return *ranked[i].Rank < *ranked[j].Rank })

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// SearchCoins returns up to limit coins matching a user query, symbol
// matches first.
func (p *Paprika) SearchCoins(query string, limit int) ([]*coinpaprika.Coin, error) {
	searchOpts := &coinpaprika.SearchOptions{
		Query:      query,
		Categories: "currencies",
		Modifier:   "symbol_search",
	}
	result, err := p.client.Search.Search(searchOpts)
	if err != nil || len(result.Currencies) == 0 {
		log.Debugf("no symbol matches for %q, trying name search", query)
		searchOpts = &coinpaprika.SearchOptions{Query: query, Categories: "currencies"}
		result, err = p.client.Search.Search(searchOpts)
		if err != nil {
			return nil, errors.Wrapf(err, "search failed for %q", query)
		}
	}

	coins := result.Currencies
	if len(coins) > limit {
		coins = coins[:limit]
	}
	return coins, nil
}

// CoinName returns the display name last seen for a coin id, falling
// back to the id itself before the first successful fetch.
func (p *Paprika) CoinName(coinID string) string {
	p.mu.RLock()
	name, ok := p.names[coinID]
	p.mu.RUnlock()

	if ok {
		return name
	}
	return coinID
}

// ResolveCoin finds the coin best matching a user query (symbol, name or
// id). Symbol search is tried first, then a plain name search.
func (p *Paprika) ResolveCoin(query string) (*coinpaprika.Coin, error) {
	searchOpts := &coinpaprika.SearchOptions{
		Query:      query,
		Categories: "currencies",
		Modifier:   "symbol_search",
	}
	result, err := p.client.Search.Search(searchOpts)
	if err != nil || len(result.Currencies) == 0 {
		log.Debugf("no symbol match for %q, trying name search", query)
		searchOpts = &coinpaprika.SearchOptions{Query: query, Categories: "currencies"}
		result, err = p.client.Search.Search(searchOpts)
		if err != nil || len(result.Currencies) == 0 {
			return nil, errors.Errorf("invalid coin name, ticker, or symbol: %s", query)
		}
	}

	return result.Currencies[0], nil
}

// Ticker fetches the current ticker for a single coin, used by the
// /price command.
func (p *Paprika) Ticker(coinID string) (*coinpaprika.Ticker, error) {
	ticker, err := p.client.Tickers.GetByID(coinID, &coinpaprika.TickersOptions{Quotes: "USD,BTC"})
	if err != nil {
		return nil, errors.Wrapf(err, "could not fetch ticker for %s", coinID)
	}
	return ticker, nil
}
