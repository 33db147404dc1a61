// ABOUTME: Caller-side transport that spawns a child process and talks over its stdio
// ABOUTME: Handles process lifecycle, pipe wiring, backpressure, and graceful termination

package transport

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/jerinthomascarmel/Exp/internal/jsonrpc"
	"github.com/jerinthomascarmel/Exp/internal/logger"
)

// terminationGrace is how long a closed child gets to exit on its own
// before it is killed.
const terminationGrace = 2 * time.Second

// StdioParams describes the child process to spawn.
type StdioParams struct {
	Command string
	Args    []string
	Dir     string
	Env     map[string]string
}

// Stdio spawns a child process and frames messages over its
// stdin/stdout. The child's stderr is inherited untouched so its
// diagnostics land on the parent's stderr.
type Stdio struct {
	params StdioParams

	stateMu sync.Mutex
	started bool
	closed  bool
	cmd     *exec.Cmd
	stdin   io.WriteCloser

	writeMu sync.Mutex

	readBuf   *jsonrpc.ReadBuffer
	cb        callbacks
	recorder  Recorder
	closeOnce sync.Once
}

func NewStdio(params StdioParams) *Stdio {
	return &Stdio{
		params:  params,
		readBuf: jsonrpc.NewReadBuffer(),
	}
}

func (t *Stdio) SetCallbacks(onMessage func(jsonrpc.Message), onError func(error), onClose func()) {
	t.cb = callbacks{onMessage: onMessage, onError: onError, onClose: onClose}
}

func (t *Stdio) SetRecorder(r Recorder) {
	t.recorder = r
}

// Start launches the child process and begins reading its stdout.
// A spawn failure fails Start directly; it does not go through onError.
func (t *Stdio) Start() error {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()

	if t.started {
		return ErrAlreadyStarted
	}

	cmd := exec.Command(t.params.Command, t.params.Args...)
	cmd.Dir = t.params.Dir
	cmd.Env = os.Environ()
	for k, v := range t.params.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	// stderr passes through for diagnostics; stdout carries the protocol
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("failed to start %s: %w", t.params.Command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.started = true

	logger.Debug("spawned %s (pid %d)", t.params.Command, cmd.Process.Pid)

	go t.readLoop(stdout)
	go t.waitLoop()

	return nil
}

// Pid returns the spawned process id, or 0 before Start.
func (t *Stdio) Pid() int {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	if t.cmd == nil || t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// Send frames the message and writes it to the child's stdin. The write
// blocks while the OS pipe buffer is full, which is the backpressure
// signal; messages hit the wire in Send-call order.
func (t *Stdio) Send(msg jsonrpc.Message) error {
	t.stateMu.Lock()
	if !t.started {
		t.stateMu.Unlock()
		return ErrNotStarted
	}
	if t.closed {
		t.stateMu.Unlock()
		return ErrClosed
	}
	stdin := t.stdin
	t.stateMu.Unlock()

	data, err := jsonrpc.Serialize(msg)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := stdin.Write(data); err != nil {
		return fmt.Errorf("writing to child stdin: %w", err)
	}
	t.record(DirectionSend, data)
	return nil
}

// Close requests termination of the child. It is best-effort and does
// not wait for the child to exit; the onClose callback, fired from the
// wait goroutine, is the authoritative completion signal.
func (t *Stdio) Close() error {
	t.stateMu.Lock()
	if !t.started || t.closed {
		t.stateMu.Unlock()
		return nil
	}
	t.closed = true
	cmd := t.cmd
	stdin := t.stdin
	t.stateMu.Unlock()

	t.readBuf.Clear()

	// Closing stdin lets a well-behaved child exit on its own; escalate
	// to interrupt then kill if it lingers.
	if stdin != nil {
		stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		proc := cmd.Process
		go func() {
			_ = proc.Signal(os.Interrupt)
			time.Sleep(terminationGrace)
			_ = proc.Kill()
		}()
	}
	return nil
}

func (t *Stdio) readLoop(stdout io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			t.readBuf.Append(buf[:n])
			t.drain()
		}
		if err != nil {
			if err != io.EOF && !t.isClosed() {
				t.cb.error(fmt.Errorf("reading child stdout: %w", err))
			}
			return
		}
	}
}

// drain delivers every complete buffered message in arrival order
// before returning control to the reader.
func (t *Stdio) drain() {
	for {
		msg, err := t.readBuf.ReadMessage()
		if err != nil {
			t.cb.error(err)
			continue
		}
		if msg == nil {
			return
		}
		if t.recorder != nil {
			if data, serr := jsonrpc.Serialize(msg); serr == nil {
				t.record(DirectionRecv, data)
			}
		}
		t.cb.message(msg)
	}
}

func (t *Stdio) waitLoop() {
	err := t.cmd.Wait()
	if err != nil && !t.isClosed() {
		logger.Debug("child %s exited: %v", t.params.Command, err)
	}
	t.closeOnce.Do(func() {
		t.stateMu.Lock()
		t.closed = true
		t.stateMu.Unlock()
		t.cb.close()
	})
}

func (t *Stdio) isClosed() bool {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.closed
}

func (t *Stdio) record(direction string, payload []byte) {
	if t.recorder != nil {
		t.recorder.Record(direction, payload)
	}
}
