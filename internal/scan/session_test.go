package scan

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	tick    = 2 * time.Millisecond
)

type fakeDecoder struct {
	mu       sync.Mutex
	starts   int
	stops    int
	emit     func(string)
	startErr error
	block    chan struct{}
}

func (d *fakeDecoder) Start(_ context.Context, _ Constraints, _ DecoderConfig, onDecoded func(string)) error {
	d.mu.Lock()
	d.starts++
	d.emit = onDecoded
	block, err := d.block, d.startErr
	d.mu.Unlock()
	if block != nil {
		<-block
	}
	return err
}

func (d *fakeDecoder) Stop(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	return nil
}

func (d *fakeDecoder) send(text string) {
	d.mu.Lock()
	fn := d.emit
	d.mu.Unlock()
	if fn != nil {
		fn(text)
	}
}

func (d *fakeDecoder) counts() (starts, stops int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts, d.stops
}

type recorder struct {
	mu    sync.Mutex
	codes []string
}

func (r *recorder) record(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, text)
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.codes...)
}

func newTestSession(t *testing.T, d Decoder, opts ...Option) *Session {
	t.Helper()
	base := []Option{
		WithSettleDelay(0),
		WithDecoderConfig(DecoderConfig{Mount: t.Name()}),
	}
	s := NewSession(d, append(base, opts...)...)
	t.Cleanup(s.Disable)
	return s
}

func waitPhase(t *testing.T, s *Session, p Phase) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State().Phase == p }, waitFor, tick,
		"session never reached %v, state is %v", p, s.State())
}

func TestSession_EnableReachesScanning(t *testing.T) {
	d := &fakeDecoder{}
	var states []Phase
	var mu sync.Mutex
	s := newTestSession(t, d, OnStateChange(func(st State) {
		mu.Lock()
		states = append(states, st.Phase)
		mu.Unlock()
	}))

	s.Enable()
	waitPhase(t, s, PhaseScanning)

	starts, stops := d.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 0, stops)

	// Notifications come from different goroutines, so only membership is stable.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 2
	}, waitFor, tick)
	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []Phase{PhaseInitializing, PhaseScanning}, states)
}

func TestSession_OneDecodePerCooldown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := &fakeDecoder{}
	rec := &recorder{}
	s := newTestSession(t, d, WithClock(clock), OnDecoded(rec.record))

	s.Enable()
	waitPhase(t, s, PhaseScanning)

	for i := 0; i < 5; i++ {
		d.send("9780306406157")
	}
	assert.Equal(t, []string{"9780306406157"}, rec.got())
	assert.Equal(t, PhaseCooldown, s.State().Phase)

	clock.Advance(DefaultCooldown - time.Millisecond)
	assert.Equal(t, PhaseCooldown, s.State().Phase)
	d.send("9780306406157")
	assert.Len(t, rec.got(), 1)

	clock.Advance(time.Millisecond)
	waitPhase(t, s, PhaseScanning)

	for i := 0; i < 3; i++ {
		d.send("9780306406157")
	}
	assert.Equal(t, []string{"9780306406157", "9780306406157"}, rec.got())
}

func TestSession_DecodeWhileInitializingIgnored(t *testing.T) {
	d := &fakeDecoder{block: make(chan struct{})}
	rec := &recorder{}
	s := newTestSession(t, d, OnDecoded(rec.record))

	s.Enable()
	require.Eventually(t, func() bool { starts, _ := d.counts(); return starts == 1 }, waitFor, tick)
	assert.Equal(t, PhaseInitializing, s.State().Phase)

	d.send("0306406152")
	assert.Empty(t, rec.got())

	close(d.block)
	waitPhase(t, s, PhaseScanning)
	assert.Empty(t, rec.got())

	d.send("0306406152")
	assert.Equal(t, []string{"0306406152"}, rec.got())
}

func TestSession_DisableStopsDecoderSynchronously(t *testing.T) {
	d := &fakeDecoder{}
	s := newTestSession(t, d)

	s.Enable()
	waitPhase(t, s, PhaseScanning)

	s.Disable()
	_, stops := d.counts()
	assert.Equal(t, 1, stops)
	assert.Equal(t, PhaseIdle, s.State().Phase)

	s.Disable()
	_, stops = d.counts()
	assert.Equal(t, 1, stops, "second disable must not stop again")
}

func TestSession_DisableDuringInitializationReleasesOnce(t *testing.T) {
	d := &fakeDecoder{block: make(chan struct{})}
	s := newTestSession(t, d)

	s.Enable()
	require.Eventually(t, func() bool { starts, _ := d.counts(); return starts == 1 }, waitFor, tick)

	s.Disable()
	assert.Equal(t, PhaseIdle, s.State().Phase)
	_, stops := d.counts()
	assert.Equal(t, 0, stops, "decoder is not held yet")

	close(d.block)
	require.Eventually(t, func() bool { _, stops := d.counts(); return stops == 1 }, waitFor, tick)
	assert.Never(t, func() bool { _, stops := d.counts(); return stops > 1 }, 50*time.Millisecond, tick)
	assert.Equal(t, PhaseIdle, s.State().Phase)
}

func TestSession_DisableDuringSettleNeverStarts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := &fakeDecoder{}
	s := newTestSession(t, d, WithClock(clock), WithSettleDelay(DefaultSettleDelay))

	s.Enable()
	s.Disable()
	clock.Advance(10 * DefaultSettleDelay)

	assert.Never(t, func() bool { starts, _ := d.counts(); return starts > 0 }, 50*time.Millisecond, tick)
	assert.Equal(t, PhaseIdle, s.State().Phase)
}

func TestSession_DisableDuringCooldownCancelsTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := &fakeDecoder{}
	s := newTestSession(t, d, WithClock(clock))

	s.Enable()
	waitPhase(t, s, PhaseScanning)
	d.send("9780306406157")
	require.Equal(t, PhaseCooldown, s.State().Phase)

	s.Disable()
	clock.Advance(2 * DefaultCooldown)
	assert.Never(t, func() bool { return s.State().Phase != PhaseIdle }, 50*time.Millisecond, tick)

	s.Enable()
	waitPhase(t, s, PhaseScanning)
	starts, stops := d.counts()
	assert.Equal(t, 2, starts)
	assert.Equal(t, 1, stops)
}

func TestSession_StartFailure(t *testing.T) {
	d := &fakeDecoder{startErr: errors.New("camera unavailable")}
	s := newTestSession(t, d)

	s.Enable()
	waitPhase(t, s, PhaseError)
	assert.Equal(t, "camera unavailable", s.State().Message)

	s.Disable()
	assert.Equal(t, PhaseIdle, s.State().Phase)
	_, stops := d.counts()
	assert.Equal(t, 0, stops)
}

func TestSession_MissingMount(t *testing.T) {
	d := &fakeDecoder{}
	s := NewSession(d, WithSettleDelay(0))
	t.Cleanup(s.Disable)

	s.Enable()
	assert.Equal(t, State{Phase: PhaseError, Message: ErrMountMissing.Error()}, s.State())
	starts, _ := d.counts()
	assert.Equal(t, 0, starts)
}

func TestSession_MountIsExclusive(t *testing.T) {
	first := newTestSession(t, &fakeDecoder{})
	second := newTestSession(t, &fakeDecoder{})

	first.Enable()
	waitPhase(t, first, PhaseScanning)

	second.Enable()
	assert.Equal(t, State{Phase: PhaseError, Message: ErrMountInUse.Error()}, second.State())

	first.Disable()
	second.Disable()
	second.Enable()
	waitPhase(t, second, PhaseScanning)
}

func TestSession_WithLineDecoder(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	clock := clockwork.NewFakeClock()
	rec := &recorder{}
	s := newTestSession(t, NewLineDecoder(pr), WithClock(clock), OnDecoded(rec.record))

	s.Enable()
	waitPhase(t, s, PhaseScanning)

	_, err := io.WriteString(pw, "978-0-306-40615-7\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.got()) == 1 }, waitFor, tick)
	assert.Equal(t, "978-0-306-40615-7", rec.got()[0])
}

// gatedDecoder blocks the i-th Start until gates[i] is closed.
type gatedDecoder struct {
	mu        sync.Mutex
	gates     []chan struct{}
	starts    int
	stops     int
	active    int
	maxActive int
	running   bool
}

func (d *gatedDecoder) Start(_ context.Context, _ Constraints, _ DecoderConfig, _ func(string)) error {
	d.mu.Lock()
	var gate chan struct{}
	if d.starts < len(d.gates) {
		gate = d.gates[d.starts]
	}
	d.starts++
	d.active++
	d.maxActive = max(d.maxActive, d.active)
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.active--
	d.running = true
	return nil
}

func (d *gatedDecoder) Stop(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	d.running = false
	return nil
}

func (d *gatedDecoder) snapshot() (starts, stops, maxActive int, running bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts, d.stops, d.maxActive, d.running
}

func TestSession_ReenableWaitsForPendingStart(t *testing.T) {
	first := make(chan struct{})
	d := &gatedDecoder{gates: []chan struct{}{first}}
	s := newTestSession(t, d)

	s.Enable()
	require.Eventually(t, func() bool { starts, _, _, _ := d.snapshot(); return starts == 1 }, waitFor, tick)

	s.Disable()
	s.Enable()
	assert.Equal(t, PhaseInitializing, s.State().Phase)
	assert.Never(t, func() bool { starts, _, _, _ := d.snapshot(); return starts > 1 }, 50*time.Millisecond, tick,
		"second start must wait for the first to return")

	close(first)
	waitPhase(t, s, PhaseScanning)

	starts, stops, maxActive, running := d.snapshot()
	assert.Equal(t, 2, starts)
	assert.Equal(t, 1, stops, "the abandoned start is released once")
	assert.Equal(t, 1, maxActive)
	assert.True(t, running, "the live decoder must still be running")
}

func TestSession_ToggleWhileScanningKeepsOneDecoder(t *testing.T) {
	d := &gatedDecoder{}
	s := newTestSession(t, d)

	s.Enable()
	waitPhase(t, s, PhaseScanning)
	for i := 0; i < 10; i++ {
		s.Disable()
		s.Enable()
	}
	waitPhase(t, s, PhaseScanning)

	starts, stops, maxActive, running := d.snapshot()
	assert.Equal(t, starts-1, stops)
	assert.Equal(t, 1, maxActive)
	assert.True(t, running)
}

func TestSession_DecodeDeliveredBeforeCooldown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := &fakeDecoder{}
	var mu sync.Mutex
	var events []string
	record := func(e string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}
	s := newTestSession(t, d, WithClock(clock),
		OnDecoded(func(text string) { record("decoded " + text) }),
		OnStateChange(func(st State) { record(st.Phase.String()) }),
	)

	s.Enable()
	waitPhase(t, s, PhaseScanning)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, waitFor, tick)

	d.send("0306406152")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"decoded 0306406152", "cooldown"}, events[2:])
}
