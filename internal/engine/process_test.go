package engine

import (
	"os/exec"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// cat makes a serviceable fake engine: it echoes every command line
// back on stdout and exits when stdin closes.
func startCat(t *testing.T) *Process {
	t.Helper()
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	p, err := Start("cat", zerolog.Nop())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return p
}

func TestProcessSendAndLines(t *testing.T) {
	p := startCat(t)
	defer p.Close()

	if err := p.Send("uci"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case line := <-p.Lines():
		if line != "uci" {
			t.Errorf("got line %q, want %q", line, "uci")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for echoed line")
	}
}

func TestProcessCloseClosesLines(t *testing.T) {
	p := startCat(t)

	go func() {
		// Drain so the reader can finish.
		for range p.Lines() {
		}
	}()

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := p.Send("go depth 1"); err != ErrClosed {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestStartMissingBinary(t *testing.T) {
	if _, err := Start("/nonexistent/engine-binary", zerolog.Nop()); err == nil {
		t.Fatal("expected error for missing binary")
	}
}
