// Package netedge carries wire-codec chunk frames over a gorilla/websocket
// connection: one binary WebSocket message per frame, so message boundaries
// double as frame boundaries.
package netedge

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/speechflow/speechflow/chunk"
	"github.com/speechflow/speechflow/config"
	"github.com/speechflow/speechflow/errs"
	"github.com/speechflow/speechflow/events"
	"github.com/speechflow/speechflow/node"
	"github.com/speechflow/speechflow/wire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn wraps a websocket connection with chunk-level Send/Receive built on
// the wire codec.
type Conn struct {
	ws *websocket.Conn
}

// Dial connects to a SpeechFlow websocket endpoint.
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errs.New("netedge", "dial", errs.Resource, err)
	}
	return &Conn{ws: ws}, nil
}

// Upgrade accepts an incoming HTTP request as a websocket connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errs.New("netedge", "upgrade", errs.Resource, err)
	}
	return &Conn{ws: ws}, nil
}

// Send encodes c as a wire frame and writes it as one binary message. A nil
// chunk sends a zero-length message, the edge's EOF signal.
func (c *Conn) Send(chk *chunk.Chunk) error {
	if chk == nil {
		if err := c.ws.WriteMessage(websocket.BinaryMessage, nil); err != nil {
			return errs.New("netedge", "send", errs.Stream, err)
		}
		return nil
	}
	frame, err := wire.Encode(chk)
	if err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return errs.New("netedge", "send", errs.Stream, err)
	}
	return nil
}

// Receive reads the next binary message and decodes it. A zero-length
// message (or a close frame) is reported as EOF: (nil, nil).
func (c *Conn) Receive() (*chunk.Chunk, error) {
	msgType, data, err := c.ws.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, nil
		}
		return nil, errs.New("netedge", "receive", errs.Stream, err)
	}
	if msgType != websocket.BinaryMessage || len(data) == 0 {
		return nil, nil
	}
	chk, err := wire.Decode(data)
	if err != nil {
		return nil, err
	}
	return chk, nil
}

// Close gracefully closes the connection, sending a close frame with a
// short deadline.
func (c *Conn) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}

func identity(ctx context.Context, in *chunk.Chunk, push func(*chunk.Chunk) bool) error {
	push(in)
	return nil
}

// SourceNode wraps a Conn as a graph source: its declared input kind is
// always chunk.KindNone and it feeds chunks read off the connection into
// the node's own stream.
type SourceNode struct {
	*node.Base
	conn *Conn

	mu     sync.Mutex
	netErr error
}

// NewSourceNode constructs a source node that relays conn's incoming frames
// as outputKind chunks. Open starts the background read loop; Close closes
// the underlying connection.
func NewSourceNode(id string, conn *Conn, outputKind chunk.Kind, cfg *config.Graph, emitter *events.Emitter) (*SourceNode, error) {
	b, err := node.New(id, chunk.KindNone, outputKind, nil, cfg, nil, nil, emitter)
	if err != nil {
		return nil, err
	}
	n := &SourceNode{Base: b, conn: conn}
	b.WithOpen(func(ctx context.Context, b *node.Base) error {
		go func() { _ = b.Stream().Run(ctx, identity) }()
		go n.readLoop(ctx)
		return nil
	})
	b.WithClose(func(ctx context.Context, b *node.Base) error {
		return conn.Close()
	})
	return n, nil
}

// readLoop pulls frames off the connection and feeds them into this node's
// own stream input, where the identity transform started by Open relays
// them to the output side pump reads from.
func (n *SourceNode) readLoop(ctx context.Context) {
	for {
		c, err := n.conn.Receive()
		if err != nil {
			n.mu.Lock()
			n.netErr = err
			n.mu.Unlock()
			_ = n.Stream().Write(ctx, nil)
			return
		}
		if writeErr := n.Stream().Write(ctx, c); writeErr != nil {
			return
		}
		if c == nil {
			return
		}
	}
}

// Err returns the connection-level error (if any) that ended the read loop.
// A graceful EOF from the peer is not an error.
func (n *SourceNode) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.netErr
}

// SinkNode wraps a Conn as a graph sink: its declared output kind is always
// chunk.KindNone, and every chunk written to its input is sent over conn.
type SinkNode struct {
	*node.Base
	conn *Conn
}

// NewSinkNode constructs a sink node accepting inputKind chunks and relaying
// them onto conn, sending the EOF marker and closing the connection on Close.
func NewSinkNode(id string, conn *Conn, inputKind chunk.Kind, cfg *config.Graph, emitter *events.Emitter) (*SinkNode, error) {
	b, err := node.New(id, inputKind, chunk.KindNone, nil, cfg, nil, nil, emitter)
	if err != nil {
		return nil, err
	}
	n := &SinkNode{Base: b, conn: conn}
	b.WithOpen(func(ctx context.Context, b *node.Base) error {
		go func() {
			_ = b.Stream().Run(ctx, func(ctx context.Context, in *chunk.Chunk, push func(*chunk.Chunk) bool) error {
				return conn.Send(in)
			})
		}()
		return nil
	})
	b.WithClose(func(ctx context.Context, b *node.Base) error {
		_ = conn.Send(nil)
		return conn.Close()
	})
	return n, nil
}
