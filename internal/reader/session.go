package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yuanying/epubrsvp/internal/layout"
	"github.com/yuanying/epubrsvp/internal/pacing"
	"github.com/yuanying/epubrsvp/internal/settings"
)

// Mode is the reader's view state.
type Mode int

// Reader modes. View is the paginated view; Play and Pause are the RSVP view.
const (
	ModeView Mode = iota
	ModePlay
	ModePause
)

func (m Mode) String() string {
	switch m {
	case ModeView:
		return "view"
	case ModePlay:
		return "play"
	case ModePause:
		return "pause"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Navigation steps.
const (
	SkipWords = 15
	WPMStep   = 20
	MinWPM    = 60
	MaxWPM    = 1500
)

// ErrEmptyBook is returned when a session is opened on a book with no words.
var ErrEmptyBook = errors.New("book has no words")

// PositionStore is the persisted reading position the session reads and
// writes through.
type PositionStore interface {
	Get(ctx context.Context, id string) int
	Set(ctx context.Context, id string, wordIndex int) error
}

// Config configures a Session.
type Config struct {
	BookID    string
	Words     []string
	Positions PositionStore
	Settings  settings.Settings
	Clock     pacing.Clock
	Logger    *slog.Logger
	// MaxChars is the RSVP line width in characters, 0 if unknown.
	MaxChars int
	// OnFrame, if set, receives every frame change. It runs on the pacing
	// goroutine and must not call back into the Session.
	OnFrame func(Frame)
}

// Session is one open book: the current mode and word index, playback and
// the write-through to the position store.
type Session struct {
	ctx       context.Context
	bookID    string
	words     []string
	positions PositionStore
	clock     pacing.Clock
	logger    *slog.Logger
	onFrame   func(Frame)

	// writeMu serializes position writes; held before mu, never inside it.
	writeMu sync.Mutex

	mu       sync.Mutex
	mode     Mode
	index    int
	settings settings.Settings
	maxChars int
	pacer    *pacing.Pacer
	gen      uint64
}

// NewSession opens a session in view mode at the stored position.
func NewSession(ctx context.Context, cfg Config) (*Session, error) {
	if len(cfg.Words) == 0 {
		return nil, ErrEmptyBook
	}
	if cfg.Positions == nil {
		return nil, errors.New("position store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = pacing.SystemClock()
	}
	st := cfg.Settings
	if st.WordsPerMinute == 0 {
		st = settings.Default()
	}

	s := &Session{
		ctx:       context.WithoutCancel(ctx),
		bookID:    cfg.BookID,
		words:     cfg.Words,
		positions: cfg.Positions,
		clock:     clock,
		logger:    logger.With("book_id", cfg.BookID),
		onFrame:   cfg.OnFrame,
		settings:  st,
		maxChars:  cfg.MaxChars,
	}
	s.index = s.clamp(cfg.Positions.Get(ctx, cfg.BookID))
	return s, nil
}

// Mode returns the current mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Index returns the current word index.
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Frame returns the RSVP frame for the current state.
func (s *Session) Frame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameLocked()
}

// Settings returns the session's current settings.
func (s *Session) Settings() settings.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Play switches to the RSVP view and starts playback from the current
// position. The first tick shows the current word.
func (s *Session) Play() error {
	s.mu.Lock()
	if s.mode == ModePlay {
		s.mu.Unlock()
		return nil
	}
	s.mode = ModePlay
	old, err := s.startLocked()
	f := s.frameLocked()
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	s.emit(f)
	return err
}

// Pause stops playback and keeps the RSVP view.
func (s *Session) Pause() {
	s.setMode(ModePause)
}

// Toggle pauses while playing and plays otherwise.
func (s *Session) Toggle() error {
	if s.Mode() == ModePlay {
		s.Pause()
		return nil
	}
	return s.Play()
}

// Back leaves the RSVP view for the paginated view. It reports false when
// the session was already in view mode, meaning the caller should close
// the book.
func (s *Session) Back() bool {
	if s.Mode() == ModeView {
		return false
	}
	s.setMode(ModeView)
	return true
}

// Close stops playback.
func (s *Session) Close() {
	s.mu.Lock()
	s.gen++
	p := s.pacer
	s.pacer = nil
	if s.mode == ModePlay {
		s.mode = ModePause
	}
	s.mu.Unlock()

	if p != nil {
		p.Stop()
	}
}

// Seek moves to word idx, clamped to the book, and persists it.
func (s *Session) Seek(idx int) error {
	s.mu.Lock()
	s.index = s.clamp(idx)
	idx = s.index
	f := s.frameLocked()
	s.mu.Unlock()

	s.emit(f)
	return s.persist(idx)
}

// Skip moves delta words forward or backward.
func (s *Session) Skip(delta int) error {
	return s.Seek(s.Index() + delta)
}

// ClickWord moves to the word at col of row in the paginated view.
func (s *Session) ClickWord(rows []layout.Row, row, col int) error {
	idx, err := ResolveClick(rows, row, col)
	if err != nil {
		return err
	}
	return s.Seek(idx)
}

// SetWPM changes the playback rate, clamped to [MinWPM, MaxWPM]. A running
// pacer restarts at the new rate.
func (s *Session) SetWPM(wpm int) (int, error) {
	s.mu.Lock()
	s.settings.WordsPerMinute = min(max(wpm, MinWPM), MaxWPM)
	wpm = s.settings.WordsPerMinute
	var old *pacing.Pacer
	var err error
	if s.mode == ModePlay {
		old, err = s.startLocked()
	}
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	return wpm, err
}

// AdjustWPM changes the rate by delta.
func (s *Session) AdjustWPM(delta int) (int, error) {
	return s.SetWPM(s.Settings().WordsPerMinute + delta)
}

// SetMaxChars updates the RSVP line width.
func (s *Session) SetMaxChars(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxChars = n
}

func (s *Session) setMode(m Mode) {
	s.mu.Lock()
	s.gen++
	p := s.pacer
	s.pacer = nil
	s.mode = m
	f := s.frameLocked()
	s.mu.Unlock()

	// Stop outside mu: a tick in flight holds the pacer lock and waits on mu.
	if p != nil {
		p.Stop()
	}
	s.emit(f)
}

// startLocked starts a new pacer and returns the one it replaces, which the
// caller stops after releasing mu.
func (s *Session) startLocked() (*pacing.Pacer, error) {
	s.gen++
	old := s.pacer
	s.pacer = nil

	gen := s.gen
	first := true
	p, err := pacing.Start(s.clock, pacing.Period(s.settings.WordsPerMinute), func() (time.Duration, error) {
		return s.tick(gen, &first)
	}, s.logger)
	if err != nil {
		s.mode = ModePause
		return old, err
	}
	s.pacer = p
	return old, nil
}

// tick advances one word. The first tick of a run shows the current word
// without advancing.
func (s *Session) tick(gen uint64, first *bool) (time.Duration, error) {
	s.mu.Lock()
	if gen != s.gen || s.mode != ModePlay {
		s.mu.Unlock()
		return 0, pacing.ErrStop
	}

	if *first {
		*first = false
	} else if s.index+1 >= len(s.words) {
		s.mode = ModePause
		s.pacer = nil
		f := s.frameLocked()
		s.mu.Unlock()
		s.emit(f)
		return 0, pacing.ErrStop
	} else {
		s.index++
	}

	idx := s.index
	var extra time.Duration
	if s.settings.SlowDownOnLongWords {
		extra = pacing.LongWordDelay(s.words[idx])
	}
	f := s.frameLocked()
	s.mu.Unlock()

	if err := s.persist(idx); err != nil {
		s.logger.Warn("failed to persist position", "index", idx, "error", err)
	}
	s.emit(f)
	return extra, nil
}

// persist writes idx unless the position moved on since; the write for the
// newer position is then already pending behind writeMu.
func (s *Session) persist(idx int) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	current := s.index
	s.mu.Unlock()
	if current != idx {
		return nil
	}
	return s.positions.Set(s.ctx, s.bookID, idx)
}

func (s *Session) frameLocked() Frame {
	return DeriveFrame(s.words, s.index, s.mode, FrameOptions{
		MaxChars:       s.maxChars,
		Middle:         s.settings.RenderType == settings.RenderMiddle,
		ShowPrevious:   s.settings.ShowPreviousOnPause,
		WordsPerMinute: s.settings.WordsPerMinute,
	})
}

func (s *Session) emit(f Frame) {
	if s.onFrame != nil {
		s.onFrame(f)
	}
}

func (s *Session) clamp(idx int) int {
	return min(max(idx, 0), len(s.words)-1)
}
