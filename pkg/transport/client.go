package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/logger"
	"github.com/dbehnke/wlink-terminal/pkg/protocol"
	"github.com/gorilla/websocket"
)

// State is the lifecycle phase of a Client
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Config holds client settings
type Config struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	QueueSize    int
	ReadLimit    int64
}

// DefaultConfig returns sensible client settings
func DefaultConfig() Config {
	return Config{
		DialTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		QueueSize:    256,
		ReadLimit:    1 << 20,
	}
}

type frame struct {
	kind int
	data []byte
}

// Client is a websocket Link to one master endpoint
type Client struct {
	cfg      Config
	endpoint string
	handler  Handler
	log      *logger.Logger

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	out    chan frame
	closed bool // out has been closed

	writerDone chan struct{}
	done       chan struct{}
}

// NewClient creates a client for endpoint. Nothing happens until Start.
func NewClient(cfg Config, endpoint string, h Handler, log *logger.Logger) *Client {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		cfg:        cfg,
		endpoint:   endpoint,
		handler:    h,
		log:        log.WithComponent("transport"),
		out:        make(chan frame, cfg.QueueSize),
		writerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start dials in the background. The handler receives OnOpen once the
// connection is up and exactly one OnClose when it ends or the dial fails.
// Cancelling ctx closes the link.
func (c *Client) Start(ctx context.Context) {
	go c.run(ctx)
}

// Endpoint returns the URI the client dials
func (c *Client) Endpoint() string {
	return c.endpoint
}

// State returns the current lifecycle phase
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed after OnClose has returned
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Send encodes msg and queues it for the writer
func (c *Client) Send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.enqueue(frame{kind: websocket.TextMessage, data: data})
}

// SendText queues a raw text frame
func (c *Client) SendText(text string) error {
	return c.enqueue(frame{kind: websocket.TextMessage, data: []byte(text)})
}

func (c *Client) enqueue(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != StateOpen {
		return ErrNotOpen
	}
	select {
	case c.out <- f:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting frames. Queued frames are written before the
// connection is closed. Close does not wait for OnClose.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	// a dial in progress sees closed once it returns
	c.closed = true
	close(c.out)
	return nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		c.log.Debug("Dial failed",
			logger.String("endpoint", c.endpoint),
			logger.Error(err))
		c.finish(nil, fmt.Errorf("dial %s: %w", c.endpoint, err))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		c.finish(nil, ErrClosed)
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	if c.cfg.ReadLimit > 0 {
		conn.SetReadLimit(c.cfg.ReadLimit)
	}

	c.log.Info("Connected to master", logger.String("endpoint", c.endpoint))

	go c.writeLoop(conn)

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	c.handler.OnOpen(c)

	err = c.readLoop(conn)

	c.mu.Lock()
	local := c.closed
	if !c.closed {
		c.closed = true
		close(c.out)
	}
	c.mu.Unlock()

	_ = conn.Close()
	<-c.writerDone

	if local || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		err = nil
	}
	c.finish(conn, err)
}

func (c *Client) finish(conn *websocket.Conn, err error) {
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()

	if conn != nil {
		if err != nil {
			c.log.Warn("Connection to master lost",
				logger.String("endpoint", c.endpoint),
				logger.Error(err))
		} else {
			c.log.Info("Connection to master closed", logger.String("endpoint", c.endpoint))
		}
	}
	c.handler.OnClose(c, err)
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.log.Debug("Dropping malformed frame",
				logger.Int("size", len(data)),
				logger.Error(err))
			continue
		}
		c.handler.OnMessage(c, msg)
	}
}

func (c *Client) writeLoop(conn *websocket.Conn) {
	defer close(c.writerDone)

	failed := false
	for f := range c.out {
		if failed {
			continue
		}
		if c.cfg.WriteTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		}
		if err := conn.WriteMessage(f.kind, f.data); err != nil {
			c.log.Debug("Write failed", logger.Error(err))
			failed = true
			_ = conn.Close()
		}
	}

	if !failed {
		// queue drained after Close; say goodbye so the read loop ends
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = conn.Close()
	}
}

// WebsocketConnector builds Clients
type WebsocketConnector struct {
	Config Config
	Logger *logger.Logger
}

// Connect creates and starts a Client
func (w WebsocketConnector) Connect(ctx context.Context, endpoint string, h Handler) Link {
	c := NewClient(w.Config, endpoint, h, w.Logger)
	c.Start(ctx)
	return c
}
