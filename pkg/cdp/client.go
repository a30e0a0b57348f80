package cdp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/perimetric/pagecov/pkg/logging"
)

const defaultHandshakeTimeout = 10 * time.Second

// envelope is the wire shape of every protocol message. Responses carry the
// id of the originating command; events carry a method and no id.
type envelope struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`
}

type callResult struct {
	result json.RawMessage
	err    error
}

// Client is a websocket-backed Channel bound to one DevTools page target.
type Client struct {
	conn   *websocket.Conn
	logger *logging.Logger

	writeMu sync.Mutex
	seq     atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan callResult

	subsMu sync.RWMutex
	subs   map[string]map[int64]EventHandler
	subSeq int64

	closeOnce sync.Once
	done      chan struct{}
}

var _ Channel = (*Client)(nil)

// Dial connects to a DevTools websocket URL and starts the read loop.
func Dial(ctx context.Context, wsURL string, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: defaultHandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:    conn,
		logger:  logger,
		pending: make(map[int64]chan callResult),
		subs:    make(map[string]map[int64]EventHandler),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Call issues a command and waits for its response.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return err
		}
		rawParams = data
	}

	id := c.seq.Add(1)
	ch := make(chan callResult, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	env := envelope{ID: id, Method: method, Params: rawParams}
	if err := c.write(env); err != nil {
		c.dropPending(id)
		return err
	}
	metricCommandsSent.WithLabelValues(method).Inc()

	select {
	case <-ctx.Done():
		c.dropPending(id)
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if result == nil || len(res.result) == 0 {
			return nil
		}
		return json.Unmarshal(res.result, result)
	}
}

// Subscribe registers an event handler and returns its disposer.
func (c *Client) Subscribe(method string, handler EventHandler) (Subscription, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}

	c.subsMu.Lock()
	c.subSeq++
	id := c.subSeq
	handlers, ok := c.subs[method]
	if !ok {
		handlers = make(map[int64]EventHandler)
		c.subs[method] = handlers
	}
	handlers[id] = handler
	c.subsMu.Unlock()

	return &subscription{client: c, method: method, id: id}, nil
}

// Close tears down the connection. Pending calls fail with ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
		c.failPending(ErrClosed)
	})
	return err
}

func (c *Client) write(env envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

func (c *Client) dropPending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		ch <- callResult{err: err}
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Debug("read loop terminated", slog.String("error", err.Error()))
			}
			return
		}
		switch {
		case env.ID != 0:
			c.dispatchResponse(env)
		case env.Method != "":
			c.dispatchEvent(env)
		}
	}
}

func (c *Client) dispatchResponse(env envelope) {
	c.pendingMu.Lock()
	ch, ok := c.pending[env.ID]
	if ok {
		delete(c.pending, env.ID)
	}
	c.pendingMu.Unlock()
	if !ok {
		// Response for a call abandoned by context cancellation.
		return
	}
	if env.Error != nil {
		ch <- callResult{err: env.Error}
		return
	}
	ch <- callResult{result: env.Result}
}

func (c *Client) dispatchEvent(env envelope) {
	c.subsMu.RLock()
	handlers := make([]EventHandler, 0, len(c.subs[env.Method]))
	for _, h := range c.subs[env.Method] {
		handlers = append(handlers, h)
	}
	c.subsMu.RUnlock()

	metricEventsReceived.WithLabelValues(env.Method).Inc()
	for _, h := range handlers {
		h(env.Params)
	}
}

type subscription struct {
	client *Client
	method string
	id     int64
}

func (s *subscription) Unsubscribe() error {
	s.client.subsMu.Lock()
	defer s.client.subsMu.Unlock()
	handlers, ok := s.client.subs[s.method]
	if !ok {
		return nil
	}
	delete(handlers, s.id)
	if len(handlers) == 0 {
		delete(s.client.subs, s.method)
	}
	return nil
}
