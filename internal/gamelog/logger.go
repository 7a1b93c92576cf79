// Package gamelog records participant actions into per-game records.
package gamelog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verte-zerg/vstask/internal/keylock"
	"github.com/verte-zerg/vstask/internal/model"
	"github.com/verte-zerg/vstask/internal/store"
)

var (
	// ErrRecordNotFound indicates the handle no longer resolves to a record.
	ErrRecordNotFound = store.ErrNotFound
	// ErrStorageUnavailable indicates the backing medium failed.
	ErrStorageUnavailable = store.ErrUnavailable
	// ErrAlreadyFinalized indicates the game already has an outcome.
	ErrAlreadyFinalized = errors.New("game already finalized")
)

// Backend persists game records. Update must apply fn atomically for one handle.
type Backend interface {
	Create(ctx context.Context, rec *model.GameRecord) (string, error)
	Load(ctx context.Context, handle string) (*model.GameRecord, error)
	Update(ctx context.Context, handle string, fn func(*model.GameRecord) error) error
}

// Refresher recomputes derived statistics after a game ends.
type Refresher interface {
	Refresh(ctx context.Context) (model.Summary, error)
}

// Observer receives logging events, e.g. for metrics.
type Observer interface {
	ChoiceLogged()
	GameFinalized(correct bool, duration time.Duration)
}

// Logger owns the lifecycle of game records.
type Logger struct {
	backend  Backend
	stats    Refresher
	observer Observer
	locks    *keylock.Map
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Logger.
type Option func(*Logger)

// WithRefresher triggers a statistics refresh after every finalize.
func WithRefresher(r Refresher) Option {
	return func(l *Logger) {
		l.stats = r
	}
}

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(l *Logger) {
		l.observer = o
	}
}

// WithLogger sets the zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Logger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

// WithIDGenerator overrides game id allocation.
func WithIDGenerator(fn func() string) Option {
	return func(l *Logger) {
		l.newID = fn
	}
}

// New returns a Logger writing to backend.
func New(backend Backend, opts ...Option) *Logger {
	l := &Logger{
		backend: backend,
		locks:   keylock.New(),
		logger:  zap.NewNop(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create writes a fresh record and returns the game id and its storage handle.
func (l *Logger) Create(ctx context.Context) (string, string, error) {
	now := l.now().UTC()
	rec := &model.GameRecord{
		GameID:    l.newID(),
		StartTime: now,
		Choices:   []model.Choice{},
		Metadata:  model.RecordMetadata{FileCreated: now},
	}
	handle, err := l.backend.Create(ctx, rec)
	if err != nil {
		l.logger.Error("failed to create game log", zap.String("game_id", rec.GameID), zap.Error(err))
		if errors.Is(err, store.ErrExists) {
			return "", "", fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		return "", "", err
	}
	l.logger.Debug("created game log", zap.String("game_id", rec.GameID), zap.String("handle", handle))
	return rec.GameID, handle, nil
}

// Load returns the current record behind a handle.
func (l *Logger) Load(ctx context.Context, handle string) (*model.GameRecord, error) {
	return l.backend.Load(ctx, handle)
}

// AppendChoice appends a timestamped choice and returns it as stored. It
// never creates a record.
func (l *Logger) AppendChoice(ctx context.Context, handle string, choice model.Choice) (model.Choice, error) {
	unlock := l.locks.Lock(handle)
	defer unlock()

	err := l.backend.Update(ctx, handle, func(rec *model.GameRecord) error {
		if rec.Finalized() {
			return ErrAlreadyFinalized
		}
		if choice.Timestamp.IsZero() {
			choice.Timestamp = l.now().UTC()
		}
		if choice.ChoiceNumber == 0 {
			choice.ChoiceNumber = len(rec.Choices) + 1
		}
		rec.Choices = append(rec.Choices, choice)
		return nil
	})
	if err != nil {
		l.logger.Warn("failed to log choice", zap.String("handle", handle), zap.Error(err))
		return model.Choice{}, err
	}
	l.logger.Debug("logged choice",
		zap.String("handle", handle),
		zap.String("cue", choice.CueName),
		zap.Int("choice_number", choice.ChoiceNumber),
	)
	if l.observer != nil {
		l.observer.ChoiceLogged()
	}
	return choice, nil
}

// Finalize sets the terminal fields exactly once and refreshes statistics.
func (l *Logger) Finalize(ctx context.Context, handle string, final model.FinalChoice) (*model.GameRecord, error) {
	unlock := l.locks.Lock(handle)
	var finalized *model.GameRecord
	err := l.backend.Update(ctx, handle, func(rec *model.GameRecord) error {
		if rec.Finalized() {
			return ErrAlreadyFinalized
		}
		completed := l.now().UTC()
		duration := completed.Sub(rec.StartTime).Seconds()
		success := final.Correct
		rec.FinalChoice = &final
		rec.CompletionTime = &completed
		rec.TotalDuration = &duration
		rec.Success = &success
		snapshot := *rec
		finalized = &snapshot
		return nil
	})
	unlock()
	if err != nil {
		l.logger.Warn("failed to finalize game", zap.String("handle", handle), zap.Error(err))
		return nil, err
	}

	l.logger.Info("game completed",
		zap.String("game_id", finalized.GameID),
		zap.Int("chosen", final.ChosenQuadrant),
		zap.Bool("correct", final.Correct),
		zap.Int("score", final.Score),
	)
	if l.observer != nil {
		l.observer.GameFinalized(final.Correct, time.Duration(*finalized.TotalDuration*float64(time.Second)))
	}
	if l.stats != nil {
		if _, err := l.stats.Refresh(ctx); err != nil {
			l.logger.Error("failed to refresh statistics", zap.Error(err))
		}
	}
	return finalized, nil
}
