package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/verte-zerg/vstask/internal/keylock"
	"github.com/verte-zerg/vstask/internal/model"
)

const (
	recordPrefix    = "game_"
	recordSuffix    = ".json"
	summaryFileName = "stats.json"
)

// DirStore keeps one JSON file per game in a directory.
type DirStore struct {
	dir   string
	locks *keylock.Map
}

// OpenDir prepares a directory-backed store.
func OpenDir(dir string) (*DirStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: logs directory is empty", ErrUnavailable)
	}
	if err := os.MkdirAll(dir, 0o775); err != nil {
		return nil, unavailable("create logs dir", err)
	}
	return &DirStore{dir: dir, locks: keylock.New()}, nil
}

// Close is a no-op; files are closed after every operation.
func (s *DirStore) Close() error {
	return nil
}

// Dir returns the logs directory.
func (s *DirStore) Dir() string {
	return s.dir
}

// RecordPath returns the file path that serves as the handle for a game.
func (s *DirStore) RecordPath(gameID string) string {
	return filepath.Join(s.dir, recordPrefix+gameID+recordSuffix)
}

// Create writes the initial record file. The handle is the file path.
func (s *DirStore) Create(_ context.Context, rec *model.GameRecord) (string, error) {
	path := s.RecordPath(rec.GameID)
	unlock := s.locks.Lock(path)
	defer unlock()

	if _, err := os.Stat(path); err == nil {
		return "", ErrExists
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", unavailable("stat record", err)
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return "", unavailable("write record", err)
	}
	return path, nil
}

// Load reads the record file behind a handle.
func (s *DirStore) Load(_ context.Context, handle string) (*model.GameRecord, error) {
	if !s.owns(handle) {
		return nil, ErrNotFound
	}
	return readRecordFile(handle)
}

// Update reads, mutates and rewrites a record file while holding its lock.
func (s *DirStore) Update(_ context.Context, handle string, fn func(*model.GameRecord) error) error {
	if !s.owns(handle) {
		return ErrNotFound
	}
	unlock := s.locks.Lock(handle)
	defer unlock()

	rec, err := readRecordFile(handle)
	if err != nil {
		return err
	}
	if err := fn(rec); err != nil {
		return err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(handle, data); err != nil {
		return unavailable("write record", err)
	}
	return nil
}

// List decodes every record file ordered by start time.
func (s *DirStore) List(_ context.Context) ([]model.GameRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, unavailable("read logs dir", err)
	}
	records := make([]model.GameRecord, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, recordPrefix) || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		rec, err := readRecordFile(filepath.Join(s.dir, name))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		records = append(records, *rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartTime.Before(records[j].StartTime)
	})
	return records, nil
}

// SaveSummary writes stats.json in the logs directory.
func (s *DirStore) SaveSummary(_ context.Context, sum model.Summary) error {
	data, err := encodeSummary(sum)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(s.dir, summaryFileName), data); err != nil {
		return unavailable("write summary", err)
	}
	return nil
}

// LoadSummary reads stats.json, or returns nil when it does not exist yet.
func (s *DirStore) LoadSummary(_ context.Context) (*model.Summary, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, summaryFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, unavailable("read summary", err)
	}
	sum, err := decodeSummary(data)
	if err != nil {
		return nil, unavailable("read summary", err)
	}
	return sum, nil
}

func (s *DirStore) owns(handle string) bool {
	if filepath.Dir(handle) != filepath.Clean(s.dir) {
		return false
	}
	name := filepath.Base(handle)
	return strings.HasPrefix(name, recordPrefix) && strings.HasSuffix(name, recordSuffix)
}

func readRecordFile(path string) (*model.GameRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, unavailable("read record", err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, unavailable("read record", err)
	}
	return rec, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*"+recordSuffix)
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmpFile.Write(data); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
