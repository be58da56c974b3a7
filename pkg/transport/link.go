// Package transport owns the websocket connection to the master. Each
// Client is one connection attempt; reconnecting means building a new
// Client, never reusing an old one.
package transport

import (
	"context"
	"errors"

	"github.com/dbehnke/wlink-terminal/pkg/protocol"
)

var (
	// ErrClosed is returned when sending on a closed link
	ErrClosed = errors.New("link closed")
	// ErrNotOpen is returned when sending before the link is open
	ErrNotOpen = errors.New("link not open")
	// ErrQueueFull is returned when the outbound queue cannot take a frame
	ErrQueueFull = errors.New("send queue full")
)

// Link is an outbound channel to the master
type Link interface {
	// Send queues a message. Messages are written in call order.
	Send(msg protocol.Message) error
	// SendText queues a raw text frame
	SendText(text string) error
	// Close writes any queued frames, then closes the connection
	Close() error
	// Endpoint returns the URI this link was created for
	Endpoint() string
}

// Handler receives link lifecycle callbacks. Callbacks for one link are
// delivered from a single goroutine, in order: at most one OnOpen, any
// number of OnMessage, then exactly one OnClose.
type Handler interface {
	OnOpen(link Link)
	OnMessage(link Link, msg protocol.Message)
	OnClose(link Link, err error)
}

// Connector builds and starts links
type Connector interface {
	Connect(ctx context.Context, endpoint string, h Handler) Link
}

// ConnectorFunc adapts a function to Connector
type ConnectorFunc func(ctx context.Context, endpoint string, h Handler) Link

// Connect calls f
func (f ConnectorFunc) Connect(ctx context.Context, endpoint string, h Handler) Link {
	return f(ctx, endpoint, h)
}
