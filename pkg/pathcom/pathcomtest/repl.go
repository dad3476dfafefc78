// Package pathcomtest provides an in-memory pathcom for driver and controller tests.
package pathcomtest

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

const DefaultBanner = "$Y1 PATHCOM - T8344H01 - (01JUL18)\nCOPYRIGHT HEWLETT PACKARD ENTERPRISE\n="

// ErrWouldBlock is returned by Read when a real pathcom would wait for input
var ErrWouldBlock = errors.New("pathcomtest: read with no pending output")

// REPL is a scripted pathcom. Every complete line written to it is recorded as
// a command and answered with Respond(command) followed by the prompt byte.
// EXIT ends the session: further reads return io.EOF.
type REPL struct {
	// ChunkSize limits how many bytes one Read returns; 0 means no limit
	ChunkSize int
	// Respond produces the output for a command, without the prompt
	Respond func(command string) string

	Received []string
	Reads    int

	pending []byte
	partial bytes.Buffer
	exited  bool
}

func NewREPL(banner string, respond func(command string) string) *REPL {
	if respond == nil {
		respond = func(string) string { return "" }
	}
	return &REPL{
		Respond: respond,
		pending: []byte(banner),
	}
}

func (r *REPL) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		if r.exited {
			return 0, io.EOF
		}
		return 0, ErrWouldBlock
	}
	n := len(r.pending)
	if r.ChunkSize > 0 && n > r.ChunkSize {
		n = r.ChunkSize
	}
	n = copy(p, r.pending[:n])
	r.pending = r.pending[n:]
	r.Reads++
	return n, nil
}

func (r *REPL) Write(p []byte) (int, error) {
	if r.exited {
		return 0, io.ErrClosedPipe
	}
	r.partial.Write(p)
	for {
		line, err := r.partial.ReadString('\n')
		if err != nil {
			// keep the incomplete line for the next write
			rest := line
			r.partial.Reset()
			r.partial.WriteString(rest)
			break
		}
		r.handle(strings.TrimSuffix(line, "\n"))
		if r.exited {
			break
		}
	}
	return len(p), nil
}

func (r *REPL) handle(command string) {
	r.Received = append(r.Received, command)
	if strings.EqualFold(strings.TrimSpace(command), "EXIT") {
		r.exited = true
		return
	}
	r.pending = append(r.pending, []byte(r.Respond(command))...)
	r.pending = append(r.pending, '=')
}

// Exited reports whether EXIT has been received
func (r *REPL) Exited() bool {
	return r.exited
}
