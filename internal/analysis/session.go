package analysis

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/evaltrainer/internal/uci"
)

// Channel is the message boundary to an engine worker process. The
// engine is reached only through Send and the raw line stream; the
// stream closing is how the session observes engine death.
type Channel interface {
	Send(line string) error
	Lines() <-chan string
	Close() error
}

// State is the session lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateAnalyzing
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateAnalyzing:
		return "analyzing"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Config configures a Session.
type Config struct {
	Logger       zerolog.Logger
	MaxMultiPV   int           // upper bound on ranked lines (default 3)
	DefaultDepth int           // depth used when a request specifies no bound (default 18)
	ReadyTimeout time.Duration // handshake deadline before the session fails (default 5s)
	EventBuffer  int           // per-subscriber event channel capacity (default 64)

	// SettleDelay is the pause between sending stop and the next
	// position/go pair. UCI gives no synchronous stop acknowledgment,
	// so this is a best-effort heuristic, not a correctness guarantee;
	// the requestId filter handles whatever still leaks through.
	SettleDelay time.Duration // default 60ms
}

// Status is a point-in-time snapshot of a session. Taking one has no
// side effects.
type Status struct {
	State            State
	CurrentRequestID uint64
	Ready            bool
	FailReason       string
}

// Session drives one engine process on behalf of one caller context.
// At most one request is live at a time; issuing a new one supersedes
// the previous, and events are forwarded to subscribers only while
// their requestId matches the current one.
type Session struct {
	cfg   Config
	log   zerolog.Logger
	dial  func() (Channel, error)
	cache *Cache

	mu          sync.Mutex
	state       State
	ready       bool // uciok seen on the current channel
	failReason  string
	ch          Channel
	lastID      uint64
	currentID   uint64
	currentKey  uint64
	current     *Result
	outstanding int    // go commands sent whose bestmove has not arrived
	goSentFor   uint64 // request id of the most recent go actually sent
	readyTimer  *time.Timer
	closing     bool
	lastActive  time.Time

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	cmdMu sync.Mutex // serializes stop/position/go command sequences
}

// NewSession creates a session that will obtain its engine channel
// from dial on Initialize. The cache may be shared across sessions.
func NewSession(cfg Config, cache *Cache, dial func() (Channel, error)) *Session {
	if cfg.MaxMultiPV <= 0 {
		cfg.MaxMultiPV = 3
	}
	if cfg.DefaultDepth <= 0 {
		cfg.DefaultDepth = 18
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 5 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 60 * time.Millisecond
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if cache == nil {
		cache = NewCache(0)
	}
	return &Session{
		cfg:        cfg,
		log:        cfg.Logger,
		dial:       dial,
		cache:      cache,
		subs:       make(map[int]chan Event),
		lastActive: time.Now(),
	}
}

// Initialize starts the engine process and the UCI handshake. It is
// idempotent: a no-op while initializing or once ready. A failed
// session stays failed until Reinitialize.
func (s *Session) Initialize() error {
	s.mu.Lock()
	switch s.state {
	case StateInitializing, StateReady, StateAnalyzing:
		s.mu.Unlock()
		return nil
	case StateFailed:
		reason := s.failReason
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEngineFailed, reason)
	case StateStopped:
		if s.ch != nil {
			if s.ready {
				// Engine survived the stop, no handshake needed.
				s.state = StateReady
				s.mu.Unlock()
				return nil
			}
			// Stopped before uciok arrived; resume waiting for it.
			s.state = StateInitializing
			if s.readyTimer == nil {
				s.readyTimer = time.AfterFunc(s.cfg.ReadyTimeout, s.readyTimeout)
			}
			s.mu.Unlock()
			return nil
		}
	}

	ch, err := s.dial()
	if err != nil {
		s.state = StateFailed
		s.failReason = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrEngineFailed, err)
	}
	s.ch = ch
	s.state = StateInitializing
	s.readyTimer = time.AfterFunc(s.cfg.ReadyTimeout, s.readyTimeout)
	s.mu.Unlock()

	go s.run(ch)

	if err := ch.Send(uci.Handshake()); err != nil {
		s.fail(fmt.Sprintf("handshake send: %v", err))
		return fmt.Errorf("%w: %v", ErrEngineFailed, err)
	}
	return nil
}

// Reinitialize discards the failed engine and starts a fresh one.
// Restart is an explicit caller decision; the session never does it
// on its own.
func (s *Session) Reinitialize() error {
	s.mu.Lock()
	old := s.ch
	s.ch = nil
	s.state = StateUninitialized
	s.ready = false
	s.failReason = ""
	s.currentID = 0
	s.current = nil
	s.outstanding = 0
	s.goSentFor = 0
	if s.readyTimer != nil {
		s.readyTimer.Stop()
		s.readyTimer = nil
	}
	s.mu.Unlock()

	if old != nil {
		go old.Close()
	}
	return s.Initialize()
}

// StartAnalysis issues a new analysis request. It returns immediately
// with the assigned request id; results arrive on subscriber channels.
// Any in-flight request is superseded. Requests are rejected with
// ErrNotReady before the handshake completes and with ErrEngineFailed
// after a channel failure.
func (s *Session) StartAnalysis(req Request) (uint64, error) {
	s.mu.Lock()
	switch s.state {
	case StateUninitialized, StateInitializing:
		s.mu.Unlock()
		return 0, ErrNotReady
	case StateFailed:
		reason := s.failReason
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrEngineFailed, reason)
	}
	if s.ch == nil {
		// Stopped without a live engine (never initialized, or closed).
		s.mu.Unlock()
		return 0, ErrNotReady
	}
	if !s.ready {
		// Stopped during the handshake; uciok has not arrived yet.
		s.mu.Unlock()
		return 0, ErrNotReady
	}

	s.lastActive = time.Now()
	s.lastID++
	req.ID = s.lastID
	if req.MultiPV < 1 {
		req.MultiPV = 1
	} else if req.MultiPV > s.cfg.MaxMultiPV {
		req.MultiPV = s.cfg.MaxMultiPV
	}
	if !req.Infinite && req.Depth <= 0 && req.MovetimeMs <= 0 {
		req.Depth = s.cfg.DefaultDepth
	}

	key := RequestKey(req)
	s.currentID = req.ID
	s.currentKey = key
	s.current = &Result{RequestID: req.ID, Lines: make(map[int]uci.Info)}
	s.state = StateAnalyzing

	if res, ok := s.cache.Get(key); ok {
		// Hit: deliver the finished result without touching the engine.
		res.RequestID = req.ID
		s.current = nil
		s.state = StateReady
		s.mu.Unlock()
		s.log.Debug().Uint64("req", req.ID).Str("fen", req.FEN).Msg("analysis cache hit")
		s.publish(Event{RequestID: req.ID, Result: res})
		return req.ID, nil
	}

	ch := s.ch
	s.mu.Unlock()

	go s.issue(ch, req)
	return req.ID, nil
}

// issue sends the stop/position/go sequence for req. Sequences from
// concurrent requests never interleave; the whole block runs under
// cmdMu.
func (s *Session) issue(ch Channel, req Request) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	draining := s.outstanding > 0
	s.mu.Unlock()

	if draining {
		if err := ch.Send(uci.Stop()); err != nil {
			s.fail(fmt.Sprintf("stop send: %v", err))
			return
		}
		// Let the previous search drain before position/go.
		time.Sleep(s.cfg.SettleDelay)
	}

	s.mu.Lock()
	superseded := s.currentID != req.ID || s.state != StateAnalyzing
	s.mu.Unlock()
	if superseded {
		return
	}

	if err := ch.Send(uci.Position(req.FEN, req.Moves)); err != nil {
		s.fail(fmt.Sprintf("position send: %v", err))
		return
	}

	var goCmd string
	switch {
	case req.Infinite:
		goCmd = uci.GoInfinite()
	case req.MovetimeMs > 0:
		goCmd = uci.GoMovetime(req.MovetimeMs)
	default:
		goCmd = uci.GoDepth(req.Depth)
	}
	// Bookkeeping before the send, so an info line arriving right
	// after go is never mistaken for a stale one.
	s.mu.Lock()
	s.outstanding++
	s.goSentFor = req.ID
	s.mu.Unlock()

	if err := ch.Send(goCmd); err != nil {
		s.fail(fmt.Sprintf("go send: %v", err))
		return
	}

	s.log.Debug().
		Uint64("req", req.ID).
		Str("fen", req.FEN).
		Int("depth", req.Depth).
		Int("multipv", req.MultiPV).
		Msg("analysis issued")
}

// Stop cancels the current analysis. Cancellation is best-effort: the
// engine may still emit one trailing bestmove, which is discarded when
// it arrives. currentRequestId is retained until that confirmation.
func (s *Session) Stop() error {
	s.mu.Lock()
	switch s.state {
	case StateStopped:
		s.mu.Unlock()
		return ErrAlreadyStopped
	case StateFailed:
		reason := s.failReason
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEngineFailed, reason)
	}
	if s.readyTimer != nil {
		// Stopped mid-handshake; Initialize re-arms the deadline.
		s.readyTimer.Stop()
		s.readyTimer = nil
	}
	s.state = StateStopped
	s.lastActive = time.Now()
	s.current = nil
	ch := s.ch
	pending := s.outstanding > 0
	if !pending {
		s.currentID = 0
	}
	s.mu.Unlock()

	if ch != nil && pending {
		if err := ch.Send(uci.Stop()); err != nil {
			s.fail(fmt.Sprintf("stop send: %v", err))
			return fmt.Errorf("%w: %v", ErrEngineFailed, err)
		}
	}
	return nil
}

// Status reports the current state. No side effects.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:            s.state,
		CurrentRequestID: s.currentID,
		Ready:            s.state == StateReady || s.state == StateAnalyzing,
		FailReason:       s.failReason,
	}
}

// LastActive reports when the session last saw caller activity. Used
// by the registry to reap abandoned sessions.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Subscribe registers an event channel. Events are dropped, not
// queued, when the subscriber falls behind.
func (s *Session) Subscribe() (int, <-chan Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextSub++
	id := s.nextSub
	ch := make(chan Event, s.cfg.EventBuffer)
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (s *Session) Unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// Close tears the session down and releases the engine process.
func (s *Session) Close() {
	s.mu.Lock()
	s.closing = true
	s.state = StateStopped
	ch := s.ch
	s.ch = nil
	if s.readyTimer != nil {
		s.readyTimer.Stop()
		s.readyTimer = nil
	}
	s.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}

	s.subMu.Lock()
	for id, sub := range s.subs {
		delete(s.subs, id)
		close(sub)
	}
	s.subMu.Unlock()
}

// run consumes the raw line stream for the life of one engine process.
func (s *Session) run(ch Channel) {
	for line := range ch.Lines() {
		s.handleLine(ch, line)
	}
	s.channelClosed(ch)
}

func (s *Session) handleLine(ch Channel, line string) {
	ev := uci.Decode(line)
	switch ev.Kind {
	case uci.EventReady:
		s.handleReady(ch)
	case uci.EventInfo:
		s.handleInfo(ev.Info)
	case uci.EventBestMove:
		s.handleBestMove(ev)
	}
	// Unrecognized lines are parse noise, absorbed here.
}

func (s *Session) handleReady(ch Channel) {
	s.mu.Lock()
	if s.ready || s.ch != ch {
		// Duplicate uciok, or a stale line from before Reinitialize.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// cmdMu is held across marking ready and sending the options:
	// StartAnalysis passes only once ready is set, and its stop/
	// position/go sequence then waits behind the option sends.
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	if s.ch != ch {
		s.mu.Unlock()
		return
	}
	s.ready = true
	if s.readyTimer != nil {
		s.readyTimer.Stop()
		s.readyTimer = nil
	}
	// A stop may have landed mid-handshake; the session stays Stopped
	// then, but the engine is ready for the next Initialize.
	if s.state == StateInitializing {
		s.state = StateReady
	}
	s.mu.Unlock()

	// Fixed engine options: single-threaded search, no pondering,
	// bounded MultiPV.
	for _, opt := range []string{
		uci.SetOption("Threads", 1),
		uci.SetOption("Ponder", false),
		uci.SetOption("MultiPV", s.cfg.MaxMultiPV),
	} {
		if err := ch.Send(opt); err != nil {
			s.fail(fmt.Sprintf("setoption send: %v", err))
			return
		}
	}
	s.log.Info().Msg("engine ready")
}

func (s *Session) handleInfo(info uci.Info) {
	s.mu.Lock()
	// Drop updates that cannot belong to the current request: the
	// session is not analyzing, the current go has not been sent yet,
	// or a superseded search is still draining (outstanding > 1).
	if s.state != StateAnalyzing || s.current == nil ||
		s.goSentFor != s.currentID || s.outstanding != 1 {
		s.mu.Unlock()
		return
	}
	s.current.Lines[info.Rank] = info
	id := s.currentID
	s.mu.Unlock()

	s.publish(Event{RequestID: id, Info: &info})
}

func (s *Session) handleBestMove(ev uci.Event) {
	s.mu.Lock()
	if s.outstanding > 0 {
		s.outstanding--
	}

	final := s.state == StateAnalyzing && s.outstanding == 0 &&
		s.goSentFor == s.currentID && s.current != nil
	if !final {
		// Trailing bestmove from a superseded or stopped search.
		if s.state == StateStopped && s.outstanding == 0 {
			s.currentID = 0 // stop confirmed
		}
		s.mu.Unlock()
		return
	}

	s.current.BestMove = ev.Move
	s.current.Ponder = ev.Ponder
	s.current.Complete = true
	res := s.current.Clone()
	key := s.currentKey
	s.current = nil
	s.state = StateReady
	s.mu.Unlock()

	s.cache.Put(key, res)
	s.publish(Event{RequestID: res.RequestID, Result: res})

	s.log.Debug().
		Uint64("req", res.RequestID).
		Str("bestmove", res.BestMove).
		Int("lines", len(res.Lines)).
		Msg("analysis complete")
}

func (s *Session) channelClosed(ch Channel) {
	s.mu.Lock()
	if s.ch != ch && s.ch != nil {
		// A stale reader from before Reinitialize.
		s.mu.Unlock()
		return
	}
	s.ch = nil
	if s.closing || s.state == StateFailed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.fail("engine process exited")
}

func (s *Session) readyTimeout() {
	s.mu.Lock()
	timedOut := s.state == StateInitializing
	s.mu.Unlock()
	if timedOut {
		s.fail("engine ready timeout")
	}
}

// fail moves the session to Failed. Terminal until Reinitialize.
func (s *Session) fail(reason string) {
	s.mu.Lock()
	if s.state == StateFailed {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.ready = false
	s.failReason = reason
	s.current = nil
	ch := s.ch
	s.ch = nil
	if s.readyTimer != nil {
		s.readyTimer.Stop()
		s.readyTimer = nil
	}
	s.mu.Unlock()

	s.log.Error().Str("reason", reason).Msg("session failed")
	if ch != nil {
		go ch.Close()
	}
}

func (s *Session) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, sub := range s.subs {
		select {
		case sub <- ev:
		default:
			// Slow subscriber, drop rather than block the engine reader.
		}
	}
}
