package glitchclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/glitch-server/pkg/glitchdto"
)

// ErrClosed is returned once the connection has gone away.
var ErrClosed = errors.New("glitchclient: connection closed")

// FrameCallback receives every server frame in arrival order.
type FrameCallback func(f glitchdto.Frame)

type callbackEntry struct {
	id       int
	callback FrameCallback
}

// Conn is one player seat. The server drops the seat when the socket closes,
// so Conn does not reconnect.
type Conn struct {
	conn *websocket.Conn

	cbs    []callbackEntry
	nextID int
	cbM    sync.RWMutex

	// frames not yet consumed by Await
	inbox  chan glitchdto.Frame
	done   chan struct{}
	err    error
	errM   sync.Mutex
	closed sync.Once

	pingInterval time.Duration
	wg           sync.WaitGroup
	cancel       context.CancelFunc
}

type DialOption func(*Conn)

// WithPingInterval enables keepalive pings; zero disables them.
func WithPingInterval(d time.Duration) DialOption {
	return func(c *Conn) { c.pingInterval = d }
}

// Dial opens a WebSocket to the gateway at url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts ...DialOption) (*Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	root, rootCancel := context.WithCancel(context.Background())
	c := &Conn{
		conn:         ws,
		inbox:        make(chan glitchdto.Frame, 256),
		done:         make(chan struct{}),
		pingInterval: 30 * time.Second,
		cancel:       rootCancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.wg.Add(1)
	go c.listen(root)
	if c.pingInterval > 0 {
		c.wg.Add(1)
		go c.pingLoop(root)
	}
	return c, nil
}

// Send writes one request frame.
func (c *Conn) Send(ctx context.Context, req glitchdto.Request) error {
	f, err := glitchdto.EncodeRequest(req)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(wctx, c.conn, f)
}

// OnFrame registers cb and returns an id for RemoveCallback.
func (c *Conn) OnFrame(cb FrameCallback) int {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	c.nextID++
	c.cbs = append(c.cbs, callbackEntry{id: c.nextID, callback: cb})
	return c.nextID
}

func (c *Conn) RemoveCallback(id int) {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	for i, e := range c.cbs {
		if e.id == id {
			c.cbs = append(c.cbs[:i], c.cbs[i+1:]...)
			return
		}
	}
}

// Await discards frames until one of the given types arrives. Server error
// frames end the wait with an *ErrorFrame unless they were asked for.
func (c *Conn) Await(ctx context.Context, types ...string) (glitchdto.Frame, error) {
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	for {
		select {
		case f := <-c.inbox:
			if want[f.Type] {
				return f, nil
			}
			if f.Type == glitchdto.TypeError || f.Type == glitchdto.TypeInvalidMove {
				return f, decodeErrorFrame(f)
			}
		case <-c.done:
			return glitchdto.Frame{}, c.closeErr()
		case <-ctx.Done():
			return glitchdto.Frame{}, ctx.Err()
		}
	}
}

// AwaitInto is Await followed by decoding the frame's data into out.
func (c *Conn) AwaitInto(ctx context.Context, typ string, out any) error {
	f, err := c.Await(ctx, typ)
	if err != nil {
		return err
	}
	return json.Unmarshal(f.Data, out)
}

// ErrorFrame is a server-side rejection delivered as error or invalid_move.
type ErrorFrame struct {
	Type    string
	Code    string
	Message string
}

func (e *ErrorFrame) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Code)
}

func decodeErrorFrame(f glitchdto.Frame) error {
	out := &ErrorFrame{Type: f.Type}
	if f.Type == glitchdto.TypeInvalidMove {
		var im glitchdto.InvalidMove
		_ = json.Unmarshal(f.Data, &im)
		out.Code, out.Message = im.Code, im.Reason
		return out
	}
	var e glitchdto.Error
	_ = json.Unmarshal(f.Data, &e)
	out.Code, out.Message = e.Code, e.Message
	return out
}

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.cancel()
	c.wg.Wait()
	return err
}

func (c *Conn) listen(ctx context.Context) {
	defer c.wg.Done()
	for {
		var f glitchdto.Frame
		if err := wsjson.Read(ctx, c.conn, &f); err != nil {
			c.finish(err)
			return
		}

		c.cbM.RLock()
		callbacks := make([]callbackEntry, len(c.cbs))
		copy(callbacks, c.cbs)
		c.cbM.RUnlock()
		for _, entry := range callbacks {
			entry.callback(f)
		}

		select {
		case c.inbox <- f:
		default:
			// nobody is awaiting; keep the newest frames
			select {
			case <-c.inbox:
			default:
			}
			c.inbox <- f
		}
	}
}

func (c *Conn) pingLoop(ctx context.Context) {
	defer c.wg.Done()
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				_ = c.conn.Close(websocket.StatusGoingAway, "ping failed")
				return
			}
		}
	}
}

func (c *Conn) finish(err error) {
	c.closed.Do(func() {
		c.errM.Lock()
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
			c.err = ErrClosed
		} else {
			c.err = fmt.Errorf("%w: %v", ErrClosed, err)
		}
		c.errM.Unlock()
		close(c.done)
	})
}

func (c *Conn) closeErr() error {
	c.errM.Lock()
	defer c.errM.Unlock()
	if c.err == nil {
		return ErrClosed
	}
	return c.err
}
