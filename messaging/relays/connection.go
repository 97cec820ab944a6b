package relays

import (
	"context"
	"errors"
	"math"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sasha-s/go-deadlock"
	"meshnostr/engine/library"
)

// connection is the state machine for one relay URL:
// disconnected -> connecting -> connected, back to disconnected on any
// socket failure, with exponential backoff between attempts. DNS failures
// are terminal until RetryRelay resets them.
type connection struct {
	url  string
	pool *Pool

	mu            deadlock.Mutex
	conn          *websocket.Conn
	state         ConnState
	lastError     string
	attempts      int
	nextReconnect time.Time
	permanent     bool
	sent          int64
	received      int64
	queue         *library.Stack

	retryKick chan struct{}
}

func newConnection(url string, pool *Pool) *connection {
	return &connection{
		url:       url,
		pool:      pool,
		state:     StateDisconnected,
		queue:     library.NewEventStack(8),
		retryKick: make(chan struct{}, 1),
	}
}

func (c *connection) run() {
	defer c.pool.wg.Done()
	for {
		if !c.waitForDialWindow() {
			return
		}
		c.setState(StateConnecting)
		conn, err := c.dial()
		if err != nil {
			c.recordFailure(err)
			continue
		}
		c.setConnected(conn)
		library.LogCLI("connected to relay "+c.url, 4)
		c.pool.onRelayConnected(c)
		err = c.readLoop(conn)
		if c.stopped() {
			return
		}
		c.recordFailure(err)
	}
}

// waitForDialWindow blocks until the backoff window has passed, a manual
// retry arrives, or the pool shuts down. Returns false on shutdown and when
// the relay is parked (permanent error or attempt cap) with no retry kick.
func (c *connection) waitForDialWindow() bool {
	for {
		c.mu.Lock()
		parked := c.permanent || c.attempts >= c.pool.cfg.ReconnectMaxAttempts
		wait := time.Until(c.nextReconnect)
		c.mu.Unlock()
		if parked {
			select {
			case <-c.retryKick:
				c.mu.Lock()
				c.attempts = 0
				c.permanent = false
				c.nextReconnect = time.Time{}
				c.mu.Unlock()
				return true
			case <-c.pool.stop:
				return false
			}
		}
		if wait <= 0 {
			return true
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			return true
		case <-c.retryKick:
			timer.Stop()
			c.mu.Lock()
			c.attempts = 0
			c.permanent = false
			c.nextReconnect = time.Time{}
			c.mu.Unlock()
			return true
		case <-c.pool.stop:
			timer.Stop()
			return false
		}
	}
}

func (c *connection) dial() (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.pool.cfg.ConnectTimeout)
	defer cancel()
	//the dial itself is cancellable: shutting the pool down mid-connect
	//must not leak the socket
	go func() {
		select {
		case <-c.pool.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	dialer := websocket.Dialer{HandshakeTimeout: c.pool.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *connection) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return err
		}
		c.mu.Lock()
		c.received++
		c.mu.Unlock()
		//dispatch synchronously so a single relay's events reach handlers
		//in socket-receive order
		c.pool.handleFrame(c, data)
	}
}

// write sends one frame if connected. Errors mark the frame unsent; the
// read loop notices the dead socket and drives the reconnect.
func (c *connection) write(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return &RelayConnectionError{URL: c.url, Err: errors.New("not connected")}
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		conn.Close()
		return &RelayConnectionError{URL: c.url, Err: err}
	}
	c.mu.Lock()
	c.sent++
	c.mu.Unlock()
	return nil
}

func (c *connection) setState(s ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *connection) setConnected(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	c.lastError = ""
	c.nextReconnect = time.Time{}
}

func (c *connection) recordFailure(err error) {
	c.pool.onRelayDisconnected(c)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = nil
	c.state = StateDisconnected
	if err != nil {
		c.lastError = err.Error()
	}
	c.attempts++
	if isDNSFailure(err) {
		//a name that does not resolve will not start resolving by itself
		c.permanent = true
		library.LogCLI("relay "+c.url+" failed DNS resolution, not retrying", 2)
		return
	}
	interval := float64(c.pool.cfg.ReconnectInitialInterval) *
		math.Pow(c.pool.cfg.ReconnectMultiplier, float64(c.attempts-1))
	if interval > float64(c.pool.cfg.ReconnectMaxInterval) {
		interval = float64(c.pool.cfg.ReconnectMaxInterval)
	}
	c.nextReconnect = time.Now().Add(time.Duration(interval))
	if c.attempts >= c.pool.cfg.ReconnectMaxAttempts {
		library.LogCLI("relay "+c.url+" hit the reconnect attempt cap, awaiting manual retry", 2)
	}
}

func (c *connection) closeSocket() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *connection) stopped() bool {
	select {
	case <-c.pool.stop:
		return true
	default:
		return false
	}
}

func (c *connection) kickRetry() {
	select {
	case c.retryKick <- struct{}{}:
	default:
	}
}

func (c *connection) snapshot() RelayStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return RelayStatus{
		URL:               c.url,
		State:             c.state,
		LastError:         c.lastError,
		ReconnectAttempts: c.attempts,
		NextReconnectTime: c.nextReconnect,
		MessagesSent:      c.sent,
		MessagesReceived:  c.received,
		QueuedEvents:      c.queue.Len(),
	}
}

func (c *connection) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

func isDNSFailure(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
