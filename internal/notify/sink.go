package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Sink is one delivery channel.
type Sink interface {
	Name() string
	Emit(ctx context.Context, n Notification) error
}

// ConsoleSink writes one line per notification.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink returns a sink writing to w (stdout if nil).
func NewConsoleSink(w io.Writer) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{w: w}
}

func (c *ConsoleSink) Name() string { return "console" }

func (c *ConsoleSink) Emit(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, n.Text())
	return err
}

// SinkFunc adapts a function to Sink.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, n Notification) error
}

func (f SinkFunc) Name() string { return f.SinkName }

func (f SinkFunc) Emit(ctx context.Context, n Notification) error { return f.Fn(ctx, n) }
