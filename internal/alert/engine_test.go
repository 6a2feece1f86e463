package alert

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pricewatch-telegram-bot/internal/registry"
	"pricewatch-telegram-bot/internal/storage"
	"pricewatch-telegram-bot/internal/types"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeSource struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error
	calls  int
}

func (f *fakeSource) FetchPrices(coinIDs []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]float64)
	for _, id := range coinIDs {
		if p, ok := f.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeSource) CoinName(coinID string) string { return coinID }

func (f *fakeSource) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	mu       sync.Mutex
	sent     []types.Notification
	failFor  map[int64]bool
	attempts int
}

func (f *fakeNotifier) Notify(chatID int64, n types.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failFor[chatID] {
		return errors.New("delivery failed")
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) notifications() []types.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Notification, len(f.sent))
	copy(out, f.sent)
	return out
}

func testMetrics() *Metrics {
	counter := func(name string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name})
	}
	return &Metrics{
		CyclesRun:      counter("cycles_run"),
		AlertsSent:     counter("alerts_sent"),
		FetchErrors:    counter("fetch_errors"),
		DeliveryErrors: counter("delivery_errors"),
	}
}

func newTestEngine(t *testing.T, source *fakeSource, notifier *fakeNotifier) (*Engine, *registry.Registry, *storage.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.New(filepath.Join(dir, "user_data.json"), filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	reg, err := registry.New(store, 5.0)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return NewEngine(reg, source, notifier, 0, testMetrics()), reg, store
}

// runCycle runs one cycle and waits for all fire-and-forget deliveries
// so assertions see the final state.
func runCycle(e *Engine) {
	e.CheckPrices()
	e.deliveries.Wait()
}

func TestBaselineThenAlertThenQuiet(t *testing.T) {
	source := &fakeSource{prices: map[string]float64{"x": 100}}
	notifier := &fakeNotifier{}
	engine, reg, _ := newTestEngine(t, source, notifier)

	reg.AddSubscriber(1)
	reg.AddCoin(1, "x")

	// Cycle 1: first observation establishes the baseline only.
	runCycle(engine)
	if got := notifier.notifications(); len(got) != 0 {
		t.Fatalf("baseline cycle must not alert, got %v", got)
	}
	if reg.LastPrices()["x"] != 100 {
		t.Fatal("baseline price not recorded")
	}

	// Cycle 2: 6% move >= 5% threshold.
	source.prices["x"] = 106
	runCycle(engine)
	got := notifier.notifications()
	if len(got) != 1 {
		t.Fatalf("want 1 alert, got %d", len(got))
	}
	n := got[0]
	if n.ChatID != 1 || n.CoinID != "x" {
		t.Fatalf("wrong alert: %+v", n)
	}
	if n.Direction != types.DirectionUp {
		t.Fatalf("want direction up, got %s", n.Direction)
	}
	if n.LastPrice != 100 || n.CurrentPrice != 106 {
		t.Fatalf("wrong prices: %+v", n)
	}
	if n.ChangePercent < 5.99 || n.ChangePercent > 6.01 {
		t.Fatalf("want ~6%% change, got %v", n.ChangePercent)
	}

	// Cycle 3: ~0.47% move stays quiet but still updates the price.
	source.prices["x"] = 106.5
	runCycle(engine)
	if len(notifier.notifications()) != 1 {
		t.Fatal("sub-threshold move must not alert")
	}
	if reg.LastPrices()["x"] != 106.5 {
		t.Fatal("price not updated on quiet cycle")
	}
}

func TestPerUserThresholds(t *testing.T) {
	source := &fakeSource{prices: map[string]float64{"y": 100}}
	notifier := &fakeNotifier{}
	engine, reg, _ := newTestEngine(t, source, notifier)

	reg.AddSubscriber(1)
	reg.AddSubscriber(2)
	reg.AddCoin(1, "y")
	reg.AddCoin(2, "y")
	reg.SetThreshold(1, 2.0)
	reg.SetThreshold(2, 10.0)

	runCycle(engine) // baseline

	source.prices["y"] = 105 // 5% move
	runCycle(engine)

	got := notifier.notifications()
	if len(got) != 1 {
		t.Fatalf("want exactly 1 alert, got %d", len(got))
	}
	if got[0].ChatID != 1 {
		t.Fatalf("alert went to wrong user: %+v", got[0])
	}
	if got[0].Threshold != 2.0 {
		t.Fatalf("want effective threshold 2.0, got %v", got[0].Threshold)
	}
}

func TestThresholdBoundaryInclusive(t *testing.T) {
	source := &fakeSource{prices: map[string]float64{"x": 100}}
	notifier := &fakeNotifier{}
	engine, reg, _ := newTestEngine(t, source, notifier)

	reg.AddSubscriber(1)
	reg.AddCoin(1, "x")
	reg.SetThreshold(1, 5.0)

	runCycle(engine) // baseline

	// Exactly the threshold fires (>=, not >).
	source.prices["x"] = 105
	runCycle(engine)
	if len(notifier.notifications()) != 1 {
		t.Fatal("change equal to threshold must fire")
	}

	// Just below the threshold does not.
	source.prices["x"] = 105 * 1.0499
	runCycle(engine)
	if len(notifier.notifications()) != 1 {
		t.Fatal("change below threshold must not fire")
	}
}

func TestDirectionDown(t *testing.T) {
	source := &fakeSource{prices: map[string]float64{"x": 100}}
	notifier := &fakeNotifier{}
	engine, reg, _ := newTestEngine(t, source, notifier)

	reg.AddSubscriber(1)
	reg.AddCoin(1, "x")

	runCycle(engine) // baseline

	source.prices["x"] = 90
	runCycle(engine)

	got := notifier.notifications()
	if len(got) != 1 {
		t.Fatalf("want 1 alert, got %d", len(got))
	}
	if got[0].Direction != types.DirectionDown {
		t.Fatalf("want direction down, got %s", got[0].Direction)
	}
}

func TestEmptyWatchSetSkipsCycle(t *testing.T) {
	source := &fakeSource{prices: map[string]float64{"x": 100}}
	notifier := &fakeNotifier{}
	engine, reg, _ := newTestEngine(t, source, notifier)

	// Subscribed with zero coins: no fetch, no alerts, ever.
	reg.AddSubscriber(1)

	runCycle(engine)
	source.prices["x"] = 200
	runCycle(engine)

	if source.fetchCalls() != 0 {
		t.Fatalf("empty union must not fetch, got %d calls", source.fetchCalls())
	}
	if len(notifier.notifications()) != 0 {
		t.Fatal("no watch-set means no alerts")
	}
}

func TestFetchFailureAbortsCycle(t *testing.T) {
	source := &fakeSource{prices: map[string]float64{"x": 100}}
	notifier := &fakeNotifier{}
	engine, reg, store := newTestEngine(t, source, notifier)

	reg.AddSubscriber(1)
	reg.AddCoin(1, "x")

	runCycle(engine) // baseline at 100

	source.err = errors.New("network down")
	source.prices["x"] = 200
	runCycle(engine)

	if len(notifier.notifications()) != 0 {
		t.Fatal("failed fetch must not alert")
	}
	prices, _ := store.LoadLastPrices()
	if prices["x"] != 100 {
		t.Fatalf("last prices changed on failed cycle: %v", prices)
	}

	// Next tick recovers.
	source.err = nil
	runCycle(engine)
	if len(notifier.notifications()) != 1 {
		t.Fatal("cycle after recovery should alert on 100% move")
	}
}

func TestPartialResultTolerated(t *testing.T) {
	source := &fakeSource{prices: map[string]float64{"x": 100, "y": 50}}
	notifier := &fakeNotifier{}
	engine, reg, _ := newTestEngine(t, source, notifier)

	reg.AddSubscriber(1)
	reg.AddCoin(1, "x")
	reg.AddCoin(1, "y")

	runCycle(engine) // baselines for both

	// y goes missing this cycle; x still evaluated.
	delete(source.prices, "y")
	source.prices["x"] = 110
	runCycle(engine)

	got := notifier.notifications()
	if len(got) != 1 || got[0].CoinID != "x" {
		t.Fatalf("want one alert for x, got %v", got)
	}
	if reg.LastPrices()["y"] != 50 {
		t.Fatal("missing coin's last price must be left alone")
	}
}

func TestDeliveryFailureDoesNotBlockOthers(t *testing.T) {
	source := &fakeSource{prices: map[string]float64{"x": 100}}
	notifier := &fakeNotifier{failFor: map[int64]bool{1: true}}
	engine, reg, store := newTestEngine(t, source, notifier)

	reg.AddSubscriber(1)
	reg.AddSubscriber(2)
	reg.AddCoin(1, "x")
	reg.AddCoin(2, "x")

	runCycle(engine) // baseline

	source.prices["x"] = 110
	runCycle(engine)

	got := notifier.notifications()
	if len(got) != 1 || got[0].ChatID != 2 {
		t.Fatalf("user 2 should still be notified, got %v", got)
	}

	// The price-recording step is unaffected by the failed delivery.
	prices, _ := store.LoadLastPrices()
	if prices["x"] != 110 {
		t.Fatalf("last price not recorded: %v", prices)
	}
}

// blockingSource parks the first fetch until released so a cycle can be
// held open across several ticker ticks.
type blockingSource struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (b *blockingSource) FetchPrices(coinIDs []string) (map[string]float64, error) {
	b.mu.Lock()
	b.calls++
	n := b.calls
	b.mu.Unlock()
	if n == 1 {
		close(b.started)
		<-b.release
	}
	return map[string]float64{"x": 100}, nil
}

func (b *blockingSource) CoinName(coinID string) string { return coinID }

func (b *blockingSource) fetchCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func TestCyclesNeverOverlapAndStopTerminates(t *testing.T) {
	source := &blockingSource{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	notifier := &fakeNotifier{}

	dir := t.TempDir()
	store, err := storage.New(filepath.Join(dir, "user_data.json"), filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	reg, err := registry.New(store, 5.0)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	reg.AddSubscriber(1)
	reg.AddCoin(1, "x")

	interval := 10 * time.Millisecond
	engine := NewEngine(reg, source, notifier, interval, testMetrics())
	engine.Start()
	defer engine.Stop()

	select {
	case <-source.started:
	case <-time.After(time.Second):
		t.Fatal("first cycle never started")
	}

	// Several ticks elapse while the first cycle is parked in its
	// fetch; every one of them must be skipped, not run concurrently.
	time.Sleep(5 * interval)
	if got := source.fetchCalls(); got != 1 {
		t.Fatalf("a tick started a cycle while one was running: %d fetches", got)
	}

	// Releasing the fetch lets the loop resume normal cycles.
	close(source.release)
	deadline := time.After(time.Second)
	for source.fetchCalls() < 2 {
		select {
		case <-deadline:
			t.Fatal("loop did not resume after the blocked cycle finished")
		case <-time.After(interval):
		}
	}

	engine.Stop()
	time.Sleep(2 * interval) // let any in-flight cycle finish
	stopped := source.fetchCalls()
	time.Sleep(5 * interval)
	if got := source.fetchCalls(); got != stopped {
		t.Fatalf("cycles kept running after Stop: %d -> %d", stopped, got)
	}
}

func TestUnwatchedUsersNeverNotified(t *testing.T) {
	source := &fakeSource{prices: map[string]float64{"x": 100}}
	notifier := &fakeNotifier{}
	engine, reg, _ := newTestEngine(t, source, notifier)

	reg.AddSubscriber(1)
	reg.AddSubscriber(2)
	reg.AddCoin(1, "x")
	// User 2 watches nothing.

	runCycle(engine)
	source.prices["x"] = 300
	runCycle(engine)

	for _, n := range notifier.notifications() {
		if n.ChatID == 2 {
			t.Fatalf("user with empty watch-set was notified: %+v", n)
		}
	}
}
