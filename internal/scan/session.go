package scan

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultCooldown is the quiet period after each accepted code.
	DefaultCooldown = 1000 * time.Millisecond

	// DefaultSettleDelay is waited before starting the decoder, so that a
	// session toggled on and off quickly never starts it at all.
	DefaultSettleDelay = 100 * time.Millisecond
)

var (
	ErrMountMissing = errors.New("scanner mount point not found")
	ErrMountInUse   = errors.New("scanner mount point is already in use")
)

// Constraints select the capture device.
type Constraints struct {
	// FacingMode is "environment" for a rear camera, "user" for a front one.
	FacingMode string
}

// DecoderConfig tunes the decoder for one session.
type DecoderConfig struct {
	Mount string
	FPS   int
	// Box is the side length of the square scan region, in pixels.
	Box int
}

// Decoder turns a capture device into a stream of decoded texts.
type Decoder interface {
	// Start blocks until the decoder is ready or has failed. After a nil
	// return, onDecoded may be called from any goroutine until Stop.
	Start(ctx context.Context, c Constraints, cfg DecoderConfig, onDecoded func(text string)) error

	// Stop releases the device. It is called at most once per successful Start.
	Stop(ctx context.Context) error
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces the wall clock used for the settle delay and cooldown.
func WithClock(c clockwork.Clock) Option {
	return func(s *Session) { s.clock = c }
}

func WithCooldown(d time.Duration) Option {
	return func(s *Session) { s.cooldown = d }
}

// WithSettleDelay sets the delay before the decoder is started. Zero disables it.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Session) { s.settle = d }
}

func WithConstraints(c Constraints) Option {
	return func(s *Session) { s.constraints = c }
}

func WithDecoderConfig(cfg DecoderConfig) Option {
	return func(s *Session) { s.decoderConfig = cfg }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// OnDecoded registers the consumer of accepted codes.
func OnDecoded(fn func(text string)) Option {
	return func(s *Session) { s.onDecoded = fn }
}

// OnStateChange registers an observer of state changes.
func OnStateChange(fn func(State)) Option {
	return func(s *Session) { s.onState = fn }
}

// Session owns one Decoder and runs it through the scan state machine.
// All methods are safe for concurrent use.
type Session struct {
	decoder       Decoder
	clock         clockwork.Clock
	cooldown      time.Duration
	settle        time.Duration
	constraints   Constraints
	decoderConfig DecoderConfig
	logger        *slog.Logger
	onDecoded     func(string)
	onState       func(State)

	mu    sync.Mutex
	state State
	// epoch changes on every start and stop; callbacks carrying an older
	// epoch belong to a torn-down run and are dropped.
	epoch  uint64
	cancel context.CancelFunc
	// Each run gets a done channel, closed once its decoder is released or
	// was never started. A run waits for the previous one before Start.
	last      chan struct{}
	held      chan struct{}
	claimed   bool
	coolTimer clockwork.Timer
}

// NewSession creates an idle session around decoder.
func NewSession(decoder Decoder, opts ...Option) *Session {
	s := &Session{
		decoder:       decoder,
		clock:         clockwork.NewRealClock(),
		cooldown:      DefaultCooldown,
		settle:        DefaultSettleDelay,
		constraints:   Constraints{FacingMode: "environment"},
		decoderConfig: DecoderConfig{FPS: 10, Box: 250},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Enable starts an idle session. It returns without waiting for the decoder.
func (s *Session) Enable() {
	s.dispatch(EventEnable{})
}

// Disable returns the session to idle from any state. If the decoder was
// started, it is stopped before Disable returns.
func (s *Session) Disable() {
	s.dispatch(EventDisable{})
}

// followUp collects the work that must run after the lock is released.
type followUp struct {
	stop   chan struct{}
	emit   []string
	notify bool
	state  State
}

func (s *Session) dispatch(ev Event) {
	s.mu.Lock()
	var f followUp
	s.apply(ev, &f)
	s.mu.Unlock()
	s.finish(f)
}

// apply runs one transition and its effects. s.mu must be held.
func (s *Session) apply(ev Event, f *followUp) {
	prev := s.state
	next, effects := Transition(s.state, ev)
	s.state = next
	if next != prev {
		s.logger.Debug("Scan session transition", "from", prev.String(), "to", next.String(), "mount", s.decoderConfig.Mount)
		f.notify = true
		f.state = next
	}

	for _, eff := range effects {
		switch e := eff.(type) {
		case EffectStartDecoder:
			s.startLocked(f)
		case EffectStopDecoder:
			s.stopLocked(f)
		case EffectScheduleCooldown:
			epoch := s.epoch
			s.coolTimer = s.clock.AfterFunc(s.cooldown, func() { s.cooldownElapsed(epoch) })
		case EffectCancelCooldown:
			if s.coolTimer != nil {
				s.coolTimer.Stop()
				s.coolTimer = nil
			}
		case EffectEmitDecoded:
			f.emit = append(f.emit, e.Text)
		}
	}
}

func (s *Session) startLocked(f *followUp) {
	mount := s.decoderConfig.Mount
	if mount == "" {
		s.apply(EventDecoderFailed{Message: ErrMountMissing.Error()}, f)
		return
	}
	if !claimMount(mount, s) {
		s.apply(EventDecoderFailed{Message: ErrMountInUse.Error()}, f)
		return
	}
	s.claimed = true

	ctx, cancel := context.WithCancel(context.Background())
	s.epoch++
	s.cancel = cancel
	prev, done := s.last, make(chan struct{})
	s.last = done
	go s.initialize(ctx, s.epoch, prev, done)
}

func (s *Session) stopLocked(f *followUp) {
	s.epoch++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.coolTimer != nil {
		s.coolTimer.Stop()
		s.coolTimer = nil
	}
	if s.claimed {
		releaseMount(s.decoderConfig.Mount, s)
		s.claimed = false
	}
	if s.held != nil {
		f.stop = s.held
		s.held = nil
	}
}

func (s *Session) finish(f followUp) {
	if f.stop != nil {
		s.stopDecoder()
		close(f.stop)
	}
	// An accepted code is delivered before the cooldown it starts is observed.
	if s.onDecoded != nil {
		for _, text := range f.emit {
			s.onDecoded(text)
		}
	}
	if f.notify && s.onState != nil {
		s.onState(f.state)
	}
}

func (s *Session) initialize(ctx context.Context, epoch uint64, prev, done chan struct{}) {
	if prev != nil {
		<-prev
	}
	if !s.waitSettle(ctx) {
		close(done)
		return
	}

	err := s.decoder.Start(ctx, s.constraints, s.decoderConfig, func(text string) {
		s.decoded(epoch, text)
	})

	s.mu.Lock()
	if ctx.Err() != nil || epoch != s.epoch {
		// Torn down while the decoder was starting; nobody else will stop it.
		s.mu.Unlock()
		if err == nil {
			s.stopDecoder()
		}
		close(done)
		return
	}

	var f followUp
	if err != nil {
		s.logger.Warn("Scanner failed to start", "mount", s.decoderConfig.Mount, "error", err)
		close(done)
		s.apply(EventDecoderFailed{Message: err.Error()}, &f)
	} else {
		s.held = done
		s.apply(EventDecoderReady{}, &f)
	}
	s.mu.Unlock()
	s.finish(f)
}

// waitSettle reports whether the settle delay elapsed before ctx was canceled.
func (s *Session) waitSettle(ctx context.Context) bool {
	if s.settle > 0 {
		t := s.clock.NewTimer(s.settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.Chan():
		}
	}
	return ctx.Err() == nil
}

func (s *Session) decoded(epoch uint64, text string) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	var f followUp
	s.apply(EventDecoded{Text: text}, &f)
	s.mu.Unlock()
	s.finish(f)
}

func (s *Session) cooldownElapsed(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.coolTimer = nil
	var f followUp
	s.apply(EventCooldownElapsed{}, &f)
	s.mu.Unlock()
	s.finish(f)
}

func (s *Session) stopDecoder() {
	if err := s.decoder.Stop(context.Background()); err != nil {
		s.logger.Warn("Failed to stop scanner", "mount", s.decoderConfig.Mount, "error", err)
	}
}

var mounts = struct {
	sync.Mutex
	owners map[string]*Session
}{owners: make(map[string]*Session)}

func claimMount(mount string, s *Session) bool {
	mounts.Lock()
	defer mounts.Unlock()
	if owner, ok := mounts.owners[mount]; ok && owner != s {
		return false
	}
	mounts.owners[mount] = s
	return true
}

func releaseMount(mount string, s *Session) {
	mounts.Lock()
	defer mounts.Unlock()
	if mounts.owners[mount] == s {
		delete(mounts.owners, mount)
	}
}
