// Package ptytest provides an in-memory pty.Backend that replays scripted
// output, for testing session code without spawning real processes.
package ptytest

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/thiemotorres/spawn/internal/pty"
)

// ErrTerminated is the read error a Process returns after Terminate.
var ErrTerminated = errors.New("ptytest: process terminated")

// Backend is a scripted pty.Backend. Every opened Process emits Script in
// order; if ExitAfterScript is set the stream then ends as if the child had
// exited, otherwise it stays open until Exit or Terminate.
type Backend struct {
	Script          [][]byte
	ExitAfterScript bool

	// OpenErr, when set, makes Open fail.
	OpenErr error

	mu     sync.Mutex
	opened []*Process
	nextID int
}

// Open starts a scripted process.
func (b *Backend) Open(opts pty.StartOptions) (pty.Controller, error) {
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}

	b.mu.Lock()
	b.nextID++
	p := newProcess(opts, 1000+b.nextID)
	b.opened = append(b.opened, p)
	script := b.Script
	exit := b.ExitAfterScript
	b.mu.Unlock()

	if len(script) > 0 || exit {
		go func() {
			for _, chunk := range script {
				if err := p.Emit(chunk); err != nil {
					return
				}
			}
			if exit {
				p.Exit()
			}
		}()
	}
	return p, nil
}

// Opened returns every process opened so far, oldest first.
func (b *Backend) Opened() []*Process {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Process, len(b.opened))
	copy(out, b.opened)
	return out
}

// Last returns the most recently opened process, or nil.
func (b *Backend) Last() *Process {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.opened) == 0 {
		return nil
	}
	return b.opened[len(b.opened)-1]
}

// Process is a fake PTY-backed child. Output written with Emit is delivered
// to Read through a synchronous pipe, so Emit returns only once a reader has
// consumed the bytes.
type Process struct {
	Options pty.StartOptions

	pid int
	r   *io.PipeReader
	w   *io.PipeWriter

	// WriteErr and ResizeErr, when set, make Write and Resize fail.
	WriteErr  error
	ResizeErr error

	mu         sync.Mutex
	input      bytes.Buffer
	sizes      []pty.Size
	terminated int

	done     chan struct{}
	doneOnce sync.Once
}

func newProcess(opts pty.StartOptions, pid int) *Process {
	r, w := io.Pipe()
	return &Process{
		Options: opts,
		pid:     pid,
		r:       r,
		w:       w,
		done:    make(chan struct{}),
	}
}

// Emit makes data available to the next Read calls.
func (p *Process) Emit(data []byte) error {
	_, err := p.w.Write(data)
	return err
}

// Exit ends the output stream with EOF, as a naturally exiting child would.
func (p *Process) Exit() {
	p.w.Close()
	p.doneOnce.Do(func() { close(p.done) })
}

// Read reads emitted output.
func (p *Process) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

// Write records input.
func (p *Process) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.WriteErr != nil {
		return 0, p.WriteErr
	}
	if p.terminated > 0 {
		return 0, io.ErrClosedPipe
	}
	return p.input.Write(b)
}

// Resize records the requested size.
func (p *Process) Resize(size pty.Size) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ResizeErr != nil {
		return p.ResizeErr
	}
	p.sizes = append(p.sizes, size)
	return nil
}

// Terminate ends the output stream with ErrTerminated. Repeated calls are
// counted but otherwise have no effect.
func (p *Process) Terminate() error {
	p.mu.Lock()
	p.terminated++
	p.mu.Unlock()

	p.w.CloseWithError(ErrTerminated)
	p.doneOnce.Do(func() { close(p.done) })
	return nil
}

// PID returns the fake pid.
func (p *Process) PID() int {
	return p.pid
}

// Done is closed after Exit or Terminate.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Input returns everything written to the process so far.
func (p *Process) Input() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.input.Bytes()...)
}

// Sizes returns every size passed to Resize.
func (p *Process) Sizes() []pty.Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pty.Size(nil), p.sizes...)
}

// Terminated reports how many times Terminate was called.
func (p *Process) Terminated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}
