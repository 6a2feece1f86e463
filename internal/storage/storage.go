package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// document is the on-disk layout: four logical tables plus metadata.
// Every save replaces a whole table; there are no delta writes.
type document struct {
	Subscribers           []int64             `json:"subscribers"`
	UserAlertThresholds   map[string]float64  `json:"user_alert_thresholds"`
	UserCoinSubscriptions map[string][]string `json:"user_coin_subscriptions"`
	LastPrices            map[string]float64  `json:"last_prices"`
	Metadata              documentMetadata    `json:"metadata"`
}

type documentMetadata struct {
	CreatedAt   string `json:"created_at"`
	LastUpdated string `json:"last_updated"`
}

// Store is durable key-value storage for user data, backed by a single
// JSON document. All access is serialized by one mutex so concurrent
// read-modify-write cycles never lose updates.
type Store struct {
	path      string
	backupDir string
	mu        sync.Mutex
}

// New opens the store at path, creating an empty document if none exists.
func New(path, backupDir string) (*Store, error) {
	s := &Store{
		path:      path,
		backupDir: backupDir,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "could not create storage directory")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		now := time.Now().Format(time.RFC3339)
		doc := &document{
			Subscribers:           []int64{},
			UserAlertThresholds:   map[string]float64{},
			UserCoinSubscriptions: map[string][]string{},
			LastPrices:            map[string]float64{},
			Metadata:              documentMetadata{CreatedAt: now, LastUpdated: now},
		}
		if err := s.write(doc); err != nil {
			return nil, err
		}
		log.Debugf("created new storage document at %s", path)
	}

	return s, nil
}

func (s *Store) read() (*document, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read storage document %s", s.path)
	}

	doc := &document{}
	if err := json.Unmarshal(b, doc); err != nil {
		return nil, errors.Wrapf(err, "could not parse storage document %s", s.path)
	}

	if doc.UserAlertThresholds == nil {
		doc.UserAlertThresholds = map[string]float64{}
	}
	if doc.UserCoinSubscriptions == nil {
		doc.UserCoinSubscriptions = map[string][]string{}
	}
	if doc.LastPrices == nil {
		doc.LastPrices = map[string]float64{}
	}
	if doc.Subscribers == nil {
		doc.Subscribers = []int64{}
	}

	return doc, nil
}

func (s *Store) write(doc *document) error {
	doc.Metadata.LastUpdated = time.Now().Format(time.RFC3339)

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not encode storage document")
	}

	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		return errors.Wrapf(err, "could not write storage document %s", s.path)
	}
	return nil
}

// mutate runs fn against the current document and writes the result back,
// all under the store lock.
func (s *Store) mutate(fn func(*document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	fn(doc)
	return s.write(doc)
}

// Tables is a consistent point-in-time snapshot of all four tables,
// taken under a single lock acquisition.
type Tables struct {
	Subscribers       []int64
	Thresholds        map[int64]float64
	CoinSubscriptions map[int64][]string
	LastPrices        map[string]float64
}

// LoadAll reads every table in one locked read so callers rebuilding an
// in-memory mirror never observe a half-updated document.
func (s *Store) LoadAll() (*Tables, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	t := &Tables{
		Subscribers:       doc.Subscribers,
		Thresholds:        make(map[int64]float64, len(doc.UserAlertThresholds)),
		CoinSubscriptions: make(map[int64][]string, len(doc.UserCoinSubscriptions)),
		LastPrices:        doc.LastPrices,
	}
	for k, v := range doc.UserAlertThresholds {
		chatID, err := parseChatID(k)
		if err != nil {
			log.Errorf("skipping malformed threshold key %q: %v", k, err)
			continue
		}
		t.Thresholds[chatID] = v
	}
	for k, v := range doc.UserCoinSubscriptions {
		chatID, err := parseChatID(k)
		if err != nil {
			log.Errorf("skipping malformed coin subscription key %q: %v", k, err)
			continue
		}
		t.CoinSubscriptions[chatID] = v
	}
	return t, nil
}

// LoadSubscribers returns the subscriber list.
func (s *Store) LoadSubscribers() ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.Subscribers, nil
}

// SaveSubscribers replaces the subscriber list.
func (s *Store) SaveSubscribers(subscribers []int64) error {
	return s.mutate(func(doc *document) {
		doc.Subscribers = subscribers
	})
}

// LoadThresholds returns all per-user alert thresholds keyed by chat ID.
func (s *Store) LoadThresholds() (map[int64]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	thresholds := make(map[int64]float64, len(doc.UserAlertThresholds))
	for k, v := range doc.UserAlertThresholds {
		chatID, err := parseChatID(k)
		if err != nil {
			log.Errorf("skipping malformed threshold key %q: %v", k, err)
			continue
		}
		thresholds[chatID] = v
	}
	return thresholds, nil
}

// SaveThreshold sets the threshold for one user.
func (s *Store) SaveThreshold(chatID int64, threshold float64) error {
	return s.mutate(func(doc *document) {
		doc.UserAlertThresholds[formatChatID(chatID)] = threshold
	})
}

// DeleteThreshold removes a user's threshold entry, if any.
func (s *Store) DeleteThreshold(chatID int64) error {
	return s.mutate(func(doc *document) {
		delete(doc.UserAlertThresholds, formatChatID(chatID))
	})
}

// LoadCoinSubscriptions returns every user's watch-set keyed by chat ID.
func (s *Store) LoadCoinSubscriptions() (map[int64][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	subs := make(map[int64][]string, len(doc.UserCoinSubscriptions))
	for k, v := range doc.UserCoinSubscriptions {
		chatID, err := parseChatID(k)
		if err != nil {
			log.Errorf("skipping malformed coin subscription key %q: %v", k, err)
			continue
		}
		subs[chatID] = v
	}
	return subs, nil
}

// SaveCoinSubscriptions replaces one user's watch-set.
func (s *Store) SaveCoinSubscriptions(chatID int64, coinIDs []string) error {
	return s.mutate(func(doc *document) {
		doc.UserCoinSubscriptions[formatChatID(chatID)] = coinIDs
	})
}

// DeleteCoinSubscriptions removes a user's watch-set entry, if any.
func (s *Store) DeleteCoinSubscriptions(chatID int64) error {
	return s.mutate(func(doc *document) {
		delete(doc.UserCoinSubscriptions, formatChatID(chatID))
	})
}

// LoadLastPrices returns the last observed price per coin.
func (s *Store) LoadLastPrices() (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.LastPrices, nil
}

// SaveLastPrices replaces the last-prices table in one write.
func (s *Store) SaveLastPrices(prices map[string]float64) error {
	return s.mutate(func(doc *document) {
		doc.LastPrices = prices
	})
}

// Backup writes a point-in-time snapshot of the whole document and
// returns its path. Snapshot names carry the capture timestamp.
func (s *Store) Backup() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", errors.Wrap(err, "could not create backup directory")
	}

	doc, err := s.read()
	if err != nil {
		return "", err
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "could not encode backup")
	}

	path := filepath.Join(s.backupDir, fmt.Sprintf("backup_%s.json", time.Now().Format("20060102_150405")))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", errors.Wrapf(err, "could not write backup %s", path)
	}

	log.Infof("backup written to %s", path)
	return path, nil
}

// Restore replaces the document contents with the snapshot at path. It
// replays the snapshot through the regular save path so in-process
// callers observe the restored state on their next load.
func (s *Store) Restore(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "could not read backup %s", path)
	}

	snapshot := &document{}
	if err := json.Unmarshal(b, snapshot); err != nil {
		return errors.Wrapf(err, "could not parse backup %s", path)
	}

	return s.mutate(func(doc *document) {
		if snapshot.Subscribers != nil {
			doc.Subscribers = snapshot.Subscribers
		} else {
			doc.Subscribers = []int64{}
		}
		doc.UserAlertThresholds = snapshot.UserAlertThresholds
		if doc.UserAlertThresholds == nil {
			doc.UserAlertThresholds = map[string]float64{}
		}
		doc.UserCoinSubscriptions = snapshot.UserCoinSubscriptions
		if doc.UserCoinSubscriptions == nil {
			doc.UserCoinSubscriptions = map[string][]string{}
		}
		doc.LastPrices = snapshot.LastPrices
		if doc.LastPrices == nil {
			doc.LastPrices = map[string]float64{}
		}
	})
}

func formatChatID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func parseChatID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
