package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/verte-zerg/vstask/internal/model"
)

const (
	badgerGamePrefix = "game/"
	badgerSummaryKey = "summary"
)

// BadgerConfig holds configuration for a Badger-backed store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM, for tests.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives Badger's internal logs; nil silences them.
	Logger *zap.Logger
}

// KVStore keeps game records in Badger, one key per game.
type KVStore struct {
	db *badger.DB
}

type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...any)   { l.logger.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...any) { l.logger.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...any)    { l.logger.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...any)   { l.logger.Debugf(format, args...) }

// OpenBadger opens a Badger database.
func OpenBadger(cfg BadgerConfig) (*KVStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("%w: badger path is required for a persistent database", ErrUnavailable)
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, unavailable("create badger dir", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, unavailable("open badger", err)
	}
	return &KVStore{db: db}, nil
}

// Close closes the database.
func (s *KVStore) Close() error {
	return s.db.Close()
}

// Create stores a new record under game/<id>. The handle is the game id.
func (s *KVStore) Create(_ context.Context, rec *model.GameRecord) (string, error) {
	data, err := encodeRecord(rec)
	if err != nil {
		return "", err
	}
	key := []byte(badgerGamePrefix + rec.GameID)
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return ErrExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
	if errors.Is(err, ErrExists) {
		return "", err
	}
	if err != nil {
		return "", unavailable("create record", err)
	}
	return rec.GameID, nil
}

// Load reads the record stored for a handle.
func (s *KVStore) Load(_ context.Context, handle string) (*model.GameRecord, error) {
	var rec *model.GameRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, handle)
		return err
	})
	if err != nil {
		return nil, classify("load record", err)
	}
	return rec, nil
}

// Update applies fn inside a single read-write transaction.
func (s *KVStore) Update(_ context.Context, handle string, fn func(*model.GameRecord) error) error {
	var fnErr error
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, handle)
		if err != nil {
			return err
		}
		if fnErr = fn(rec); fnErr != nil {
			return fnErr
		}
		data, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		return txn.Set([]byte(badgerGamePrefix+handle), data)
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return classify("update record", err)
	}
	return nil
}

// List iterates over all game keys and returns records ordered by start time.
func (s *KVStore) List(_ context.Context) ([]model.GameRecord, error) {
	var records []model.GameRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(badgerGamePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				rec, err := decodeRecord(val)
				if err != nil {
					return err
				}
				records = append(records, *rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("list records", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartTime.Before(records[j].StartTime)
	})
	return records, nil
}

// SaveSummary stores the summary under a single key.
func (s *KVStore) SaveSummary(_ context.Context, sum model.Summary) error {
	data, err := encodeSummary(sum)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerSummaryKey), data)
	}); err != nil {
		return unavailable("save summary", err)
	}
	return nil
}

// LoadSummary returns the stored summary, or nil when none exists.
func (s *KVStore) LoadSummary(_ context.Context) (*model.Summary, error) {
	var sum *model.Summary
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerSummaryKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			sum, err = decodeSummary(val)
			return err
		})
	})
	if err != nil {
		return nil, unavailable("load summary", err)
	}
	return sum, nil
}

func getRecord(txn *badger.Txn, handle string) (*model.GameRecord, error) {
	if handle == "" || strings.Contains(handle, "/") {
		return nil, ErrNotFound
	}
	item, err := txn.Get([]byte(badgerGamePrefix + handle))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec *model.GameRecord
	err = item.Value(func(val []byte) error {
		rec, err = decodeRecord(val)
		return err
	})
	return rec, err
}

func classify(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return unavailable(op, err)
}
