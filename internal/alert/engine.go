package alert

import (
	"math"
	"sync"
	"time"

	"pricewatch-telegram-bot/internal/pricesource"
	"pricewatch-telegram-bot/internal/registry"
	"pricewatch-telegram-bot/internal/types"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// Notifier delivers an alert to one user. Delivery is fire-and-forget
// from the engine's perspective: the poll cycle never waits on it, and a
// failed delivery is logged, not retried.
type Notifier interface {
	Notify(chatID int64, n types.Notification) error
}

// Metrics counts engine activity for the /metrics endpoint.
type Metrics struct {
	CyclesRun      prometheus.Counter
	AlertsSent     prometheus.Counter
	FetchErrors    prometheus.Counter
	DeliveryErrors prometheus.Counter
}

// NewMetrics creates and registers the engine counters.
func NewMetrics() *Metrics {
	m := &Metrics{
		CyclesRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Subsystem: "alert_engine",
			Name:      "cycles_run",
			Help:      "The total number of completed poll cycles",
		}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Subsystem: "alert_engine",
			Name:      "alerts_sent",
			Help:      "The total number of alert notifications delivered",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Subsystem: "alert_engine",
			Name:      "fetch_errors",
			Help:      "The total number of aborted cycles due to price fetch failures",
		}),
		DeliveryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Subsystem: "alert_engine",
			Name:      "delivery_errors",
			Help:      "The total number of failed alert deliveries",
		}),
	}

	prometheus.MustRegister(m.CyclesRun)
	prometheus.MustRegister(m.AlertsSent)
	prometheus.MustRegister(m.FetchErrors)
	prometheus.MustRegister(m.DeliveryErrors)

	return m
}

// Engine runs the poll-diff-notify-persist loop. One cycle at a time: a
// timer tick arriving while a cycle is still running is skipped.
type Engine struct {
	registry *registry.Registry
	source   pricesource.Source
	notifier Notifier
	interval time.Duration
	metrics  *Metrics

	cycleMu    sync.Mutex
	deliveries sync.WaitGroup
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewEngine wires the engine to its collaborators.
func NewEngine(reg *registry.Registry, source pricesource.Source, notifier Notifier, interval time.Duration, metrics *Metrics) *Engine {
	return &Engine{
		registry: reg,
		source:   source,
		notifier: notifier,
		interval: interval,
		metrics:  metrics,
		stop:     make(chan struct{}),
	}
}

// Start launches the background poll loop.
func (e *Engine) Start() {
	go e.run()
	log.Infof("alert engine started, polling every %s", e.interval)
}

// Stop terminates the poll loop. In-flight deliveries are not awaited.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

func (e *Engine) run() {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !e.cycleMu.TryLock() {
				log.Debug("previous poll cycle still running, skipping tick")
				continue
			}
			e.CheckPrices()
			e.cycleMu.Unlock()
		case <-e.stop:
			return
		}
	}
}

// CheckPrices runs one poll cycle: union all watch-sets, fetch current
// prices in one batched call, diff against the last observed prices,
// fan alerts out per user, then persist the updated price table. No
// failure inside a cycle is allowed to kill the loop.
func (e *Engine) CheckPrices() {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic recovered in poll cycle: %v", r)
		}
	}()

	monitored := e.registry.MonitoredCoins()
	if len(monitored) == 0 {
		log.Debug("no coin subscriptions to monitor")
		return
	}

	current, err := e.source.FetchPrices(monitored)
	if err != nil {
		// Whole-batch failure aborts the cycle; retried on the next tick.
		log.Errorf("price fetch failed, skipping cycle: %v", err)
		e.metrics.FetchErrors.Inc()
		return
	}

	lastPrices := e.registry.LastPrices()
	subscribers := e.registry.Subscribers()

	for _, coinID := range monitored {
		currentPrice, ok := current[coinID]
		if !ok {
			// Price unavailable this cycle for this coin only.
			log.Debugf("no price returned for %s", coinID)
			continue
		}

		lastPrice, seen := lastPrices[coinID]
		if seen && lastPrice > 0 {
			change := math.Abs(currentPrice-lastPrice) / lastPrice * 100

			direction := types.DirectionDown
			if currentPrice > lastPrice {
				direction = types.DirectionUp
			}

			for _, chatID := range subscribers {
				if !watches(e.registry.Coins(chatID), coinID) {
					continue
				}

				threshold := e.registry.Threshold(chatID)
				if change >= threshold {
					e.dispatch(types.Notification{
						ChatID:        chatID,
						CoinID:        coinID,
						CoinName:      e.source.CoinName(coinID),
						Direction:     direction,
						CurrentPrice:  currentPrice,
						LastPrice:     lastPrice,
						ChangePercent: change,
						Threshold:     threshold,
					})
				}
			}
		}

		// First observation establishes the baseline; the price is
		// recorded either way.
		lastPrices[coinID] = currentPrice
	}

	if err := e.registry.SetLastPrices(lastPrices); err != nil {
		log.Errorf("failed to persist last prices: %v", err)
	}

	e.metrics.CyclesRun.Inc()
}

// dispatch hands a notification to the notifier without blocking the
// cycle. One user's delivery failure never delays another's.
func (e *Engine) dispatch(n types.Notification) {
	e.deliveries.Add(1)
	go func() {
		defer e.deliveries.Done()
		if err := e.notifier.Notify(n.ChatID, n); err != nil {
			log.Errorf("failed to send alert to %d for %s: %v", n.ChatID, n.CoinID, err)
			e.metrics.DeliveryErrors.Inc()
			return
		}
		e.metrics.AlertsSent.Inc()
		log.Debugf("alert sent to %d for %s (%.2f%%)", n.ChatID, n.CoinID, n.ChangePercent)
	}()
}

func watches(coins []string, coinID string) bool {
	for _, id := range coins {
		if id == coinID {
			return true
		}
	}
	return false
}
