package registry

import (
	"sync"

	"pricewatch-telegram-bot/internal/storage"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Registry is the in-memory mirror of the persisted user tables. Every
// mutation writes through to the store synchronously; a failed write is
// logged and the in-memory state stays authoritative for the running
// process.
type Registry struct {
	store            *storage.Store
	defaultThreshold float64

	mu          sync.Mutex
	subscribers []int64
	thresholds  map[int64]float64
	coinSubs    map[int64][]string
	lastPrices  map[string]float64
}

// New loads all tables from the store into memory.
func New(store *storage.Store, defaultThreshold float64) (*Registry, error) {
	r := &Registry{
		store:            store,
		defaultThreshold: defaultThreshold,
	}
	if err := r.Reload(); err != nil {
		return nil, errors.Wrap(err, "could not load registry state")
	}
	return r, nil
}

// Reload replaces the in-memory mirror with the store's current contents.
// Called at startup and after a restore. All four tables come from one
// store snapshot so the mirror is never rebuilt from a half-updated
// document.
func (r *Registry) Reload() error {
	tables, err := r.store.LoadAll()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = tables.Subscribers
	r.thresholds = tables.Thresholds
	r.coinSubs = tables.CoinSubscriptions
	r.lastPrices = tables.LastPrices

	log.Debugf("registry loaded: %d subscribers, %d thresholds, %d watch-sets, %d last prices",
		len(tables.Subscribers), len(tables.Thresholds), len(tables.CoinSubscriptions), len(tables.LastPrices))
	return nil
}

// AddSubscriber subscribes a user. Returns false if already subscribed.
func (r *Registry) AddSubscriber(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.subscribers {
		if id == chatID {
			return false
		}
	}

	r.subscribers = append(r.subscribers, chatID)
	if err := r.store.SaveSubscribers(r.subscribers); err != nil {
		log.Errorf("failed to persist subscribers: %v", err)
	}
	return true
}

// RemoveSubscriber unsubscribes a user and purges their threshold and
// watch-set. Returns false if the user was not subscribed.
func (r *Registry) RemoveSubscriber(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, id := range r.subscribers {
		if id == chatID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}

	r.subscribers = append(r.subscribers[:idx], r.subscribers[idx+1:]...)
	delete(r.thresholds, chatID)
	delete(r.coinSubs, chatID)

	if err := r.store.SaveSubscribers(r.subscribers); err != nil {
		log.Errorf("failed to persist subscribers: %v", err)
	}
	if err := r.store.DeleteThreshold(chatID); err != nil {
		log.Errorf("failed to delete threshold for %d: %v", chatID, err)
	}
	if err := r.store.DeleteCoinSubscriptions(chatID); err != nil {
		log.Errorf("failed to delete coin subscriptions for %d: %v", chatID, err)
	}
	return true
}

// IsSubscribed reports whether a user is in the subscriber list.
func (r *Registry) IsSubscribed(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.subscribers {
		if id == chatID {
			return true
		}
	}
	return false
}

// Subscribers returns a copy of the subscriber list.
func (r *Registry) Subscribers() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]int64, len(r.subscribers))
	copy(out, r.subscribers)
	return out
}

// SetThreshold sets and persists a user's alert threshold. Subscription
// is not required: a threshold set before subscribing stays inert until
// the user subscribes.
func (r *Registry) SetThreshold(chatID int64, threshold float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.thresholds[chatID] = threshold
	if err := r.store.SaveThreshold(chatID, threshold); err != nil {
		log.Errorf("failed to persist threshold for %d: %v", chatID, err)
	}
	return true
}

// Threshold resolves a user's effective threshold: their custom value if
// set, the configured default otherwise. The default is never written
// into the per-user table.
func (r *Registry) Threshold(chatID int64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.thresholds[chatID]; ok {
		return t
	}
	return r.defaultThreshold
}

// HasCustomThreshold reports whether the user has set their own threshold.
func (r *Registry) HasCustomThreshold(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.thresholds[chatID]
	return ok
}

// AddCoin adds a coin to a user's watch-set. Returns false if already
// watched. An unknown user gets a fresh watch-set.
func (r *Registry) AddCoin(chatID int64, coinID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	coins := r.coinSubs[chatID]
	for _, id := range coins {
		if id == coinID {
			return false
		}
	}

	r.coinSubs[chatID] = append(coins, coinID)
	if err := r.store.SaveCoinSubscriptions(chatID, r.coinSubs[chatID]); err != nil {
		log.Errorf("failed to persist coin subscriptions for %d: %v", chatID, err)
	}
	return true
}

// RemoveCoin removes a coin from a user's watch-set. Returns false if
// the coin was not watched.
func (r *Registry) RemoveCoin(chatID int64, coinID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	coins, ok := r.coinSubs[chatID]
	if !ok {
		return false
	}
	idx := -1
	for i, id := range coins {
		if id == coinID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}

	r.coinSubs[chatID] = append(coins[:idx], coins[idx+1:]...)
	if err := r.store.SaveCoinSubscriptions(chatID, r.coinSubs[chatID]); err != nil {
		log.Errorf("failed to persist coin subscriptions for %d: %v", chatID, err)
	}
	return true
}

// ClearCoins empties a user's watch-set. Returns false if the user never
// had a watch-set entry.
func (r *Registry) ClearCoins(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.coinSubs[chatID]; !ok {
		return false
	}

	r.coinSubs[chatID] = []string{}
	if err := r.store.SaveCoinSubscriptions(chatID, r.coinSubs[chatID]); err != nil {
		log.Errorf("failed to persist coin subscriptions for %d: %v", chatID, err)
	}
	return true
}

// Coins returns a copy of a user's watch-set; empty for unknown users.
// A subscriber with no coins gets no monitoring of any kind.
func (r *Registry) Coins(chatID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	coins := r.coinSubs[chatID]
	out := make([]string, len(coins))
	copy(out, coins)
	return out
}

// MonitoredCoins returns the union of all subscribers' watch-sets.
func (r *Registry) MonitoredCoins() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{})
	var monitored []string
	for _, chatID := range r.subscribers {
		for _, coinID := range r.coinSubs[chatID] {
			if _, ok := seen[coinID]; ok {
				continue
			}
			seen[coinID] = struct{}{}
			monitored = append(monitored, coinID)
		}
	}
	return monitored
}

// LastPrices returns a copy of the last observed price per coin.
func (r *Registry) LastPrices() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]float64, len(r.lastPrices))
	for k, v := range r.lastPrices {
		out[k] = v
	}
	return out
}

// SetLastPrices replaces the last-prices table and persists it in one
// write. Called once at the end of every poll cycle.
func (r *Registry) SetLastPrices(prices map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastPrices = prices
	if err := r.store.SaveLastPrices(prices); err != nil {
		log.Errorf("failed to persist last prices: %v", err)
		return err
	}
	return nil
}
