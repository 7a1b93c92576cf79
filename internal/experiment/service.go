// Package experiment ties trial generation to game recording for live sessions.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/verte-zerg/vstask/internal/generator"
	"github.com/verte-zerg/vstask/internal/model"
)

// DefaultSessionTTL bounds how long an unfinished session stays resolvable.
const DefaultSessionTTL = 30 * time.Minute

// InvalidQuadrant is recorded when the final answer is not an integer.
const InvalidQuadrant = -1

var (
	// ErrNoActiveGame indicates the game id does not resolve to a live session.
	ErrNoActiveGame = errors.New("no active game session")
	// ErrRoundOutOfRange indicates a round index outside the session.
	ErrRoundOutOfRange = errors.New("round out of range")
	// ErrUnknownCue indicates a choice names a cue that is missing or inactive.
	ErrUnknownCue = errors.New("unknown or inactive cue")
)

// SessionSource produces validated sessions.
type SessionSource interface {
	NewSession(cfg model.SessionConfig) (model.Session, error)
}

// Recorder persists game records.
type Recorder interface {
	Create(ctx context.Context) (gameID, handle string, err error)
	AppendChoice(ctx context.Context, handle string, choice model.Choice) (model.Choice, error)
	Finalize(ctx context.Context, handle string, final model.FinalChoice) (*model.GameRecord, error)
}

// Observer is told about started sessions.
type Observer interface {
	SessionStarted()
}

// ChoiceRequest identifies one selected cue.
type ChoiceRequest struct {
	Round   int    `json:"round"`
	CueName string `json:"cue_name"`
}

// Result is the outcome of a final answer.
type Result struct {
	Chosen  int  `json:"chosen_quadrant"`
	Biased  int  `json:"biased_quadrant"`
	Correct bool `json:"correct"`
	Score   int  `json:"score"`
}

// PublicSession is the client view of a session. The biased quadrant is never included.
type PublicSession struct {
	GameID      string        `json:"game_id"`
	Rounds      int           `json:"n_rounds"`
	Quadrants   int           `json:"n_quadrants"`
	Queues      int           `json:"n_queues"`
	Cues        []model.Round `json:"rounds"`
	Description string        `json:"task_description"`
}

// Public strips server-only fields from a session.
func Public(gameID string, sess model.Session) PublicSession {
	return PublicSession{
		GameID:      gameID,
		Rounds:      sess.Config.Rounds,
		Quadrants:   sess.Config.Quadrants,
		Queues:      sess.Config.Queues,
		Cues:        sess.Rounds,
		Description: sess.Description,
	}
}

type active struct {
	session model.Session
	handle  string
	started time.Time
}

// Service runs experiment sessions.
type Service struct {
	source   SessionSource
	recorder Recorder
	observer Observer
	logger   *zap.Logger
	now      func() time.Time
	ttl      time.Duration

	genMu sync.Mutex

	mu       sync.Mutex
	sessions map[string]*active
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver registers a session observer.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

// WithClock overrides the time source used for session expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithSessionTTL sets how long an unfinished session stays live. Zero disables expiry.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

// NewService returns a Service. source is used from one goroutine at a time.
func NewService(source SessionSource, recorder Recorder, opts ...Option) *Service {
	s := &Service{
		source:   source,
		recorder: recorder,
		logger:   zap.NewNop(),
		now:      time.Now,
		ttl:      DefaultSessionTTL,
		sessions: map[string]*active{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartSession generates a session and creates its record. Generation
// failures abort before anything is written.
func (s *Service) StartSession(ctx context.Context, cfg model.SessionConfig) (string, model.Session, error) {
	s.genMu.Lock()
	sess, err := s.source.NewSession(cfg)
	s.genMu.Unlock()
	if err != nil {
		s.logger.Warn("session generation failed", zap.Any("config", cfg), zap.Error(err))
		return "", model.Session{}, err
	}

	gameID, handle, err := s.recorder.Create(ctx)
	if err != nil {
		return "", model.Session{}, fmt.Errorf("create game record: %w", err)
	}

	now := s.now()
	s.mu.Lock()
	swept := s.sweepLocked(now)
	s.sessions[gameID] = &active{session: sess, handle: handle, started: now}
	s.mu.Unlock()
	if swept > 0 {
		s.logger.Info("expired sessions swept", zap.Int("count", swept))
	}

	if s.observer != nil {
		s.observer.SessionStarted()
	}
	s.logger.Info("session started",
		zap.String("game_id", gameID),
		zap.Int("rounds", cfg.Rounds),
		zap.Int("quadrants", cfg.Quadrants),
		zap.Int("queues", cfg.Queues),
	)
	return gameID, sess, nil
}

// Session returns the live session for a game.
func (s *Service) Session(gameID string) (model.Session, error) {
	a, err := s.lookup(gameID)
	if err != nil {
		return model.Session{}, err
	}
	return a.session, nil
}

// Round returns one round of a live session.
func (s *Service) Round(gameID string, n int) (model.Round, error) {
	a, err := s.lookup(gameID)
	if err != nil {
		return model.Round{}, err
	}
	if n < 0 || n >= len(a.session.Rounds) {
		return model.Round{}, fmt.Errorf("%w: %d of %d", ErrRoundOutOfRange, n, len(a.session.Rounds))
	}
	return a.session.Rounds[n], nil
}

// RecordChoice appends the selected cue to the game record and returns the
// stored choice. Quadrant and color are taken from the generated round, not
// from the caller.
func (s *Service) RecordChoice(ctx context.Context, gameID string, req ChoiceRequest) (model.Choice, error) {
	a, err := s.lookup(gameID)
	if err != nil {
		return model.Choice{}, err
	}
	if req.Round < 0 || req.Round >= len(a.session.Rounds) {
		return model.Choice{}, fmt.Errorf("%w: %d", ErrRoundOutOfRange, req.Round)
	}
	cue, ok := findCue(a.session.Rounds[req.Round], req.CueName)
	if !ok || !cue.Active {
		return model.Choice{}, fmt.Errorf("%w: %q in round %d", ErrUnknownCue, req.CueName, req.Round)
	}
	return s.recorder.AppendChoice(ctx, a.handle, model.Choice{
		Round:    req.Round,
		Quadrant: cue.Quadrant,
		CueName:  cue.Name,
		Color:    cue.Color,
	})
}

// FinalizeSession scores the answer and closes the game. A non-integer answer
// counts as a wrong one rather than being rejected.
func (s *Service) FinalizeSession(ctx context.Context, gameID, rawChoice string) (Result, error) {
	a, err := s.lookup(gameID)
	if err != nil {
		return Result{}, err
	}
	chosen, perr := strconv.Atoi(strings.TrimSpace(rawChoice))
	if perr != nil {
		s.logger.Warn("invalid quadrant choice submitted", zap.String("game_id", gameID), zap.String("raw", rawChoice))
		chosen = InvalidQuadrant
	}
	res := Score(chosen, a.session.BiasedQuadrant)

	_, err = s.recorder.Finalize(ctx, a.handle, model.FinalChoice{
		ChosenQuadrant: res.Chosen,
		Correct:        res.Correct,
		Score:          res.Score,
		BiasedQuadrant: res.Biased,
	})
	if err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	delete(s.sessions, gameID)
	s.mu.Unlock()
	return res, nil
}

// Score evaluates a final answer.
func Score(chosen, biased int) Result {
	correct := chosen == biased
	return Result{
		Chosen:  chosen,
		Biased:  biased,
		Correct: correct,
		Score:   generator.Score(correct),
	}
}

// Active returns the number of live sessions.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// sweepLocked drops every expired session. s.mu must be held.
func (s *Service) sweepLocked(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	n := 0
	for id, a := range s.sessions {
		if now.Sub(a.started) > s.ttl {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

func (s *Service) lookup(gameID string) (*active, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.sessions[gameID]
	if !ok {
		return nil, ErrNoActiveGame
	}
	if s.ttl > 0 && s.now().Sub(a.started) > s.ttl {
		delete(s.sessions, gameID)
		s.logger.Info("session expired", zap.String("game_id", gameID))
		return nil, ErrNoActiveGame
	}
	return a, nil
}

func findCue(r model.Round, name string) (model.Cue, bool) {
	for _, c := range r.Cues {
		if c.Name == name {
			return c, true
		}
	}
	return model.Cue{}, false
}
