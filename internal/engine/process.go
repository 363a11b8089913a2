// Package engine owns UCI engine child processes. Each Process wraps
// exactly one engine instance and exposes it as a command writer plus
// an asynchronous stream of raw output lines; no other part of the
// system touches the process directly.
package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by Send after the engine process has exited.
var ErrClosed = errors.New("engine process closed")

const lineBuffer = 256

// Process is a running engine instance. Lines() yields raw stdout
// lines in emission order and is closed when the process exits, which
// is how consumers observe engine death.
type Process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string
	done  chan struct{}
	log   zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// Start launches the engine binary at path and begins streaming its
// output. The caller owns the returned Process and must Close it.
func Start(path string, log zerolog.Logger) (*Process, error) {
	cmd := exec.Command(path)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}

	p := &Process{
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan string, lineBuffer),
		done:  make(chan struct{}),
		log:   log,
	}

	go p.readLoop(stdout)

	log.Debug().Str("path", path).Int("pid", cmd.Process.Pid).Msg("engine started")
	return p, nil
}

// readLoop pumps stdout lines into the channel until the pipe closes,
// then reaps the process.
func (p *Process) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		p.log.Warn().Err(err).Msg("engine stdout read failed")
	}
	close(p.lines)
	_ = p.cmd.Wait()
	close(p.done)

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Send writes one command line to the engine. Commands are never
// interleaved mid-line; concurrent senders are serialized.
func (p *Process) Send(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if _, err := io.WriteString(p.stdin, line+"\n"); err != nil {
		p.closed = true
		return fmt.Errorf("send %q: %w", line, err)
	}
	return nil
}

// Lines returns the raw output line stream. The channel is closed when
// the engine process exits.
func (p *Process) Lines() <-chan string {
	return p.lines
}

// Close asks the engine to quit and reaps it, killing after a grace
// period if it ignores the request.
func (p *Process) Close() error {
	_ = p.Send("quit")

	p.mu.Lock()
	if !p.closed {
		p.closed = true
		_ = p.stdin.Close()
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-time.After(3 * time.Second):
		p.log.Warn().Msg("engine ignored quit, killing")
		_ = p.cmd.Process.Kill()
		<-p.done
		return nil
	}
}
