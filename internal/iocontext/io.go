// Package iocontext carries the streams a command reads and writes through
// its context, so commands can run against in-memory buffers.
package iocontext

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"
)

// IO holds the input/output streams for commands.
type IO struct {
	Out    io.Writer
	ErrOut io.Writer
	In     io.Reader
}

// DefaultIO returns the process streams.
func DefaultIO() *IO {
	return &IO{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
		In:     os.Stdin,
	}
}

// Buffer is a bytes.Buffer safe for use from several goroutines. Upload
// progress and batch counters write to stderr from request goroutines.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Test returns streams that read stdin from the given string and collect
// output in memory.
func Test(stdin string) (*IO, *Buffer, *Buffer) {
	out, errOut := &Buffer{}, &Buffer{}
	return &IO{Out: out, ErrOut: errOut, In: strings.NewReader(stdin)}, out, errOut
}

type ioKey struct{}

// WithIO adds IO streams to a context.
func WithIO(ctx context.Context, streams *IO) context.Context {
	return context.WithValue(ctx, ioKey{}, streams)
}

// GetIO retrieves IO streams from context. Missing streams, or a nil field,
// fall back to the process streams.
func GetIO(ctx context.Context) *IO {
	streams, ok := ctx.Value(ioKey{}).(*IO)
	if !ok || streams == nil {
		return DefaultIO()
	}
	if streams.Out != nil && streams.ErrOut != nil && streams.In != nil {
		return streams
	}
	def := DefaultIO()
	filled := *streams
	if filled.Out == nil {
		filled.Out = def.Out
	}
	if filled.ErrOut == nil {
		filled.ErrOut = def.ErrOut
	}
	if filled.In == nil {
		filled.In = def.In
	}
	return &filled
}
