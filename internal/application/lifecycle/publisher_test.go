package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/eventring/internal/application/processor"
	"github.com/aescanero/eventring/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// sink is a Deliverer that records event types and can hold or fail delivery.
type sink struct {
	mu     sync.Mutex
	types  []string
	gate   chan struct{}
	failOn string
	got    chan string
}

func newSink() *sink {
	return &sink{got: make(chan string, 64)}
}

func (s *sink) Deliver(_ context.Context, event ports.Event) error {
	if s.gate != nil {
		<-s.gate
	}
	if event.Type == s.failOn {
		return errors.New("application context rejected event")
	}
	s.mu.Lock()
	s.types = append(s.types, event.Type)
	s.mu.Unlock()
	s.got <- event.Type
	return nil
}

func (s *sink) delivered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.types...)
}

func (s *sink) expect(t *testing.T, want ...string) {
	t.Helper()
	for _, w := range want {
		select {
		case got := <-s.got:
			require.Equal(t, w, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", w)
		}
	}
}

func newPublisher(t *testing.T, cfg Config, d ports.Deliverer) (*Publisher, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	p, err := New(cfg, d, zap.New(core), nil)
	require.NoError(t, err)
	return p, logs
}

func typed(typ string) ports.Event {
	return ports.Event{Type: typ}
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Backlog: 0}, newSink(), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Backlog: 4}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDefaults(t *testing.T) {
	p, _ := newPublisher(t, Config{Backlog: 4}, newSink())
	assert.Equal(t, DefaultName, p.Name())
	assert.Equal(t, 0, p.Phase())
	assert.False(t, p.IsAutoStartup())
	assert.False(t, p.IsRunning())
}

func TestPublishRequiresRunning(t *testing.T) {
	s := newSink()
	p, _ := newPublisher(t, Config{Backlog: 4}, s)

	assert.ErrorIs(t, p.PublishEvent(context.Background(), typed("A")), ErrNotRunning)
	assert.ErrorIs(t, p.TryPublishEvent(typed("A")), ErrNotRunning)

	require.NoError(t, p.Start())
	require.NoError(t, p.PublishEvent(context.Background(), typed("A")))
	s.expect(t, "A")
}

// TestBackpressureScenario follows the capacity=4 walkthrough: A..D are delivered
// in order and E is only admitted once A has been consumed.
func TestBackpressureScenario(t *testing.T) {
	s := newSink()
	s.gate = make(chan struct{})
	p, _ := newPublisher(t, Config{Backlog: 4, AutoStartup: true}, s)
	require.True(t, p.IsRunning())

	for _, typ := range []string{"A", "B", "C", "D"} {
		require.NoError(t, p.PublishEvent(context.Background(), typed(typ)))
	}

	admitted := make(chan error, 1)
	go func() {
		admitted <- p.PublishEvent(context.Background(), typed("E"))
	}()

	select {
	case <-admitted:
		t.Fatal("E should block while A..D occupy the ring")
	case <-time.After(50 * time.Millisecond):
	}

	s.gate <- struct{}{}
	s.expect(t, "A")

	select {
	case err := <-admitted:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("E should be admitted after A was consumed")
	}

	close(s.gate)
	s.expect(t, "B", "C", "D", "E")
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, s.delivered())
}

func TestTryPublishWouldBlock(t *testing.T) {
	s := newSink()
	s.gate = make(chan struct{})
	p, _ := newPublisher(t, Config{Backlog: 2, AutoStartup: true}, s)

	require.NoError(t, p.TryPublishEvent(typed("A")))
	require.NoError(t, p.TryPublishEvent(typed("B")))
	assert.ErrorIs(t, p.TryPublishEvent(typed("C")), processor.ErrWouldBlock)
	close(s.gate)
}

func TestStartTwiceKeepsOneSubscription(t *testing.T) {
	s := newSink()
	p, _ := newPublisher(t, Config{Backlog: 8}, s)

	require.NoError(t, p.Start())
	require.NoError(t, p.Start())
	assert.True(t, p.IsRunning())

	for _, typ := range []string{"A", "B", "C"} {
		require.NoError(t, p.PublishEvent(context.Background(), typed(typ)))
	}
	p.Stop()
	require.NoError(t, p.Wait(context.Background()))

	assert.Equal(t, []string{"A", "B", "C"}, s.delivered())
}

func TestStopDrainsAndCompletesOnce(t *testing.T) {
	s := newSink()
	p, logs := newPublisher(t, Config{Backlog: 8, AutoStartup: true}, s)

	for _, typ := range []string{"A", "B", "C"} {
		require.NoError(t, p.PublishEvent(context.Background(), typed(typ)))
	}

	called := false
	p.StopWithCallback(func() { called = true })
	p.Stop()

	assert.True(t, called)
	assert.False(t, p.IsRunning())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Wait(ctx))

	assert.Equal(t, []string{"A", "B", "C"}, s.delivered())
	assert.Equal(t, 1, logs.FilterMessage("event publisher has shutdown").Len())
	assert.ErrorIs(t, p.PublishEvent(context.Background(), typed("D")), ErrNotRunning)
}

func TestStopCallbackRunsBeforeDrain(t *testing.T) {
	s := newSink()
	s.gate = make(chan struct{})
	p, _ := newPublisher(t, Config{Backlog: 4, AutoStartup: true}, s)

	require.NoError(t, p.PublishEvent(context.Background(), typed("A")))
	require.NoError(t, p.PublishEvent(context.Background(), typed("B")))

	var delivered []string
	p.StopWithCallback(func() { delivered = s.delivered() })
	assert.Empty(t, delivered, "callback fires once completion is signaled, not after the drain")

	close(s.gate)
	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, []string{"A", "B"}, s.delivered())
}

func TestStopWhenNotRunningRunsCallback(t *testing.T) {
	p, _ := newPublisher(t, Config{Backlog: 4}, newSink())
	called := false
	p.StopWithCallback(func() { called = true })
	assert.True(t, called)
	assert.False(t, p.IsRunning())
}

func TestDeliveryFailureStopsPublisher(t *testing.T) {
	s := newSink()
	s.failOn = "C"
	p, logs := newPublisher(t, Config{Backlog: 8, AutoStartup: true}, s)

	for _, typ := range []string{"A", "B", "C", "D"} {
		require.NoError(t, p.PublishEvent(context.Background(), typed(typ)))
	}

	err := p.Wait(context.Background())
	var derr *processor.DeliveryError
	require.ErrorAs(t, err, &derr)

	assert.Eventually(t, func() bool { return !p.IsRunning() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"A", "B"}, s.delivered())
	assert.Equal(t, 1, logs.FilterMessage("event delivery failed, publisher stopped").Len())
	assert.Equal(t, 0, logs.FilterMessage("event publisher has shutdown").Len())
	assert.NotEmpty(t, p.Status().LastError)
	assert.ErrorIs(t, p.PublishEvent(context.Background(), typed("E")), ErrNotRunning)

	// A restart resumes delivery with a fresh ring; D is not retried.
	s.failOn = ""
	require.NoError(t, p.Start())
	assert.Empty(t, p.Status().LastError)
	require.NoError(t, p.PublishEvent(context.Background(), typed("F")))
	s.expect(t, "A", "B", "F")
}

func TestRestartAfterStop(t *testing.T) {
	s := newSink()
	p, _ := newPublisher(t, Config{Backlog: 4, AutoStartup: true}, s)

	require.NoError(t, p.PublishEvent(context.Background(), typed("A")))
	p.Stop()
	require.NoError(t, p.Wait(context.Background()))

	require.NoError(t, p.Start())
	require.NoError(t, p.PublishEvent(context.Background(), typed("B")))
	s.expect(t, "A", "B")
	assert.Equal(t, int64(1), p.Status().Processor.Published)
}

func TestPublishStampsEvent(t *testing.T) {
	var got ports.Event
	done := make(chan struct{})
	d := ports.DelivererFunc(func(_ context.Context, e ports.Event) error {
		got = e
		close(done)
		return nil
	})
	p, _ := newPublisher(t, Config{Name: "stamps", Backlog: 2, AutoStartup: true}, d)

	require.NoError(t, p.PublishEvent(context.Background(), typed("A")))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Timestamp.IsZero())
	assert.Equal(t, "stamps", got.Source)
}

func TestDeliveryTimeout(t *testing.T) {
	errCh := make(chan error, 1)
	d := ports.DelivererFunc(func(ctx context.Context, _ ports.Event) error {
		<-ctx.Done()
		errCh <- ctx.Err()
		return ctx.Err()
	})
	p, _ := newPublisher(t, Config{Backlog: 2, AutoStartup: true, DeliveryTimeout: 20 * time.Millisecond}, d)
	require.NoError(t, p.PublishEvent(context.Background(), typed("A")))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery context should time out")
	}
	assert.Eventually(t, func() bool { return !p.IsRunning() }, time.Second, 5*time.Millisecond)
}

// orderedSink holds delivery of "A" until released and tracks how many Deliver
// calls overlap.
type orderedSink struct {
	mu          sync.Mutex
	order       []string
	inFlight    int
	maxInFlight int

	entered chan string
	release chan struct{}
	got     chan string
}

func (s *orderedSink) Deliver(_ context.Context, event ports.Event) error {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.mu.Unlock()

	s.entered <- event.Type
	if event.Type == "A" {
		<-s.release
	}

	s.mu.Lock()
	s.order = append(s.order, event.Type)
	s.inFlight--
	s.mu.Unlock()
	s.got <- event.Type
	return nil
}

func TestRestartWhileDrainingKeepsOneDeliveryLoop(t *testing.T) {
	s := &orderedSink{
		entered: make(chan string, 8),
		release: make(chan struct{}),
		got:     make(chan string, 8),
	}
	p, _ := newPublisher(t, Config{Backlog: 4, AutoStartup: true}, s)

	require.NoError(t, p.PublishEvent(context.Background(), typed("A")))
	require.NoError(t, p.PublishEvent(context.Background(), typed("B")))
	select {
	case typ := <-s.entered:
		require.Equal(t, "A", typ)
	case <-time.After(2 * time.Second):
		t.Fatal("A was not handed to the deliverer")
	}

	// B is still in the old ring when the publisher restarts.
	p.Stop()
	require.NoError(t, p.Start())
	require.NoError(t, p.PublishEvent(context.Background(), typed("C")))
	close(s.release)

	for i := 0; i < 3; i++ {
		select {
		case <-s.got:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, []string{"A", "B", "C"}, s.order)
	assert.Equal(t, 1, s.maxInFlight)
}

func TestStartFromStopCallbackStaysRunning(t *testing.T) {
	s := newSink()
	p, _ := newPublisher(t, Config{Backlog: 4}, s)

	p.StopWithCallback(func() {
		require.NoError(t, p.Start())
	})

	assert.True(t, p.IsRunning())
	require.NoError(t, p.PublishEvent(context.Background(), typed("A")))
	s.expect(t, "A")

	p.Stop()
	require.NoError(t, p.Wait(context.Background()))
	assert.False(t, p.IsRunning())
}
