package analysis

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// testDialer hands out fake channels that complete the handshake on
// their own, like a real engine would.
func testDialer(channels *[]*fakeChannel) func() (Channel, error) {
	return func() (Channel, error) {
		ch := newFakeChannel()
		ch.lines <- "uciok"
		*channels = append(*channels, ch)
		return ch, nil
	}
}

func newTestRegistry(t *testing.T, cfg RegistryConfig) (*Registry, *[]*fakeChannel) {
	t.Helper()
	cfg.Logger = zerolog.Nop()
	if cfg.Session.SettleDelay == 0 {
		cfg.Session = testConfig()
	}
	channels := &[]*fakeChannel{}
	return NewRegistry(cfg, testDialer(channels)), channels
}

func TestRegistryCreateAndGet(t *testing.T) {
	r, _ := newTestRegistry(t, RegistryConfig{})

	id, sess, err := r.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(id) != 12 {
		t.Errorf("session id %q, want 12 characters", id)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}

	got, err := r.Get(id)
	if err != nil || got != sess {
		t.Errorf("Get(%q) = %v, %v, want created session", id, got, err)
	}

	if _, err := r.Get("nosuchsession"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get unknown = %v, want ErrSessionNotFound", err)
	}
}

func TestRegistryCreateFailsWhenDialFails(t *testing.T) {
	cfg := RegistryConfig{Logger: zerolog.Nop(), Session: testConfig()}
	r := NewRegistry(cfg, func() (Channel, error) {
		return nil, errors.New("stockfish not found")
	})

	if _, _, err := r.Create(); !errors.Is(err, ErrEngineFailed) {
		t.Fatalf("Create = %v, want ErrEngineFailed", err)
	}
	if r.Len() != 0 {
		t.Errorf("failed session left registered, Len = %d", r.Len())
	}
}

func TestRegistrySessionLimit(t *testing.T) {
	r, _ := newTestRegistry(t, RegistryConfig{MaxSessions: 1})

	if _, _, err := r.Create(); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, _, err := r.Create(); err == nil {
		t.Fatal("second Create succeeded past the session limit")
	}
}

func TestRegistryScheduleRoutesToSession(t *testing.T) {
	r, channels := newTestRegistry(t, RegistryConfig{})

	id, sess, err := r.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitFor(t, "session ready", func() bool { return sess.Status().Ready })

	if err := r.Schedule(id, Request{FEN: "fen-a", Depth: 9}, 0); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	(*channels)[0].waitSent(t, "go depth 9")

	if err := r.Schedule("nosuchsession", Request{FEN: "fen-a"}, 0); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Schedule unknown = %v, want ErrSessionNotFound", err)
	}
}

func TestRegistryScheduleBeforeHandshake(t *testing.T) {
	cfg := RegistryConfig{Logger: zerolog.Nop(), Session: testConfig()}
	r := NewRegistry(cfg, func() (Channel, error) {
		return newFakeChannel(), nil // never says uciok
	})

	id, _, err := r.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Schedule(id, Request{FEN: "fen-a"}, 0); !errors.Is(err, ErrNotReady) {
		t.Errorf("Schedule before handshake = %v, want ErrNotReady", err)
	}
}

func TestRegistryStop(t *testing.T) {
	r, _ := newTestRegistry(t, RegistryConfig{})

	if err := r.Stop("nosuchsession"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Stop unknown = %v, want ErrSessionNotFound", err)
	}

	id, sess, err := r.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitFor(t, "session ready", func() bool { return sess.Status().Ready })

	if err := r.Stop(id); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := r.Stop(id); !errors.Is(err, ErrAlreadyStopped) {
		t.Errorf("second Stop = %v, want ErrAlreadyStopped", err)
	}
}

func TestRegistryRemove(t *testing.T) {
	r, _ := newTestRegistry(t, RegistryConfig{})

	id, _, err := r.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	r.Remove(id)

	if r.Len() != 0 {
		t.Errorf("Len = %d after Remove, want 0", r.Len())
	}
	if _, err := r.Get(id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get removed = %v, want ErrSessionNotFound", err)
	}
	// Removing twice is harmless.
	r.Remove(id)
}

func TestRegistryReapsIdleSessions(t *testing.T) {
	r, _ := newTestRegistry(t, RegistryConfig{IdleTTL: time.Millisecond})

	id, _, err := r.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	r.reapIdle()

	if _, err := r.Get(id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("idle session survived reaping: Get = %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want bool
	}{
		{ErrSessionNotFound, true},
		{ErrAlreadyStopped, true},
		{ErrNotReady, false},
		{ErrEngineFailed, false},
		{nil, false},
	} {
		if got := IsNotFound(tc.err); got != tc.want {
			t.Errorf("IsNotFound(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
