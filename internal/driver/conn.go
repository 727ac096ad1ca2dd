package driver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/edgelink/internal/observability"
	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/danmuck/edgelink/internal/protocol/lavalink3"
	"github.com/gorilla/websocket"
)

const closeWriteWait = time.Second

const frameMalformed = "malformed"

// wsConn is one dialed socket. A reconnect gets a fresh wsConn. done is
// closed once the read loop has delivered its NodeClose.
type wsConn struct {
	ws        *websocket.Conn
	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsConn) close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
		if cerr := c.ws.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	})
	return err
}

func (d *Lavalink3) handshakeHeader() http.Header {
	sess := d.Session()
	sessionID := ""
	if sess.ID != "" && sess.Resume {
		sessionID = sess.ID
	}
	h := http.Header{}
	h.Set("Authorization", d.endpoint.Auth)
	h.Set("User-Id", d.userID)
	h.Set("Client-Name", d.clientName)
	h.Set("Session-Id", sessionID)
	h.Set("User-Agent", d.userAgent())
	return h
}

// Connect dials the node websocket. Frames are delivered to the Handler from
// a read goroutine that outlives ctx; use Disconnect or Close to stop it.
// Connect first waits for the previous socket's NodeClose, so a Handler
// must not call Connect synchronously from NodeClose.
func (d *Lavalink3) Connect(ctx context.Context) error {
	if !d.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) &&
		!d.state.CompareAndSwap(int32(StateClosed), int32(StateConnecting)) {
		return protocol.ErrAlreadyConnected
	}

	d.connMu.Lock()
	prev := d.last
	d.connMu.Unlock()
	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			d.setState(StateClosed)
			return fmt.Errorf("connect %s: previous socket still closing: %w", d.wsURL, ctx.Err())
		}
	}

	d.seedSession(ctx)
	ws, resp, err := d.dialer.DialContext(ctx, d.wsURL, d.handshakeHeader())
	if err != nil {
		d.setState(StateClosed)
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		err = fmt.Errorf("%w: dial %s: %w", protocol.ErrTransport, d.wsURL, err)
		d.handler.NodeError(d, err)
		return err
	}

	c := &wsConn{ws: ws, done: make(chan struct{})}
	d.connMu.Lock()
	d.conn = c
	d.last = c
	d.setState(StateOpen)
	d.connMu.Unlock()

	observability.SetNodeConnected(d.Name(), true)
	d.debug("websocket open %s", d.wsURL)
	d.handler.NodeOnline(d)

	go d.readLoop(context.WithoutCancel(ctx), c)
	return nil
}

func (d *Lavalink3) readLoop(ctx context.Context, c *wsConn) {
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			d.finish(c, err)
			return
		}
		frame, err := lavalink3.NormalizeFrame(raw)
		if err != nil {
			observability.RecordFrame(d.Name(), frameMalformed)
			d.logger.Warn().Err(err).Int("bytes", len(raw)).Msg("dropping malformed frame")
			d.debug("dropped malformed frame: %v", err)
			continue
		}
		observability.RecordFrame(d.Name(), frame.Op)
		if frame.Op == protocol.OpReady && frame.SessionID != "" {
			d.adoptSession(ctx, frame.SessionID)
		}
		d.handler.NodeMessage(d, frame)
	}
}

// finish turns the read error into exactly one NodeClose, preceded by
// NodeError when the socket died without a close handshake.
func (d *Lavalink3) finish(c *wsConn, err error) {
	defer close(c.done)
	code := websocket.CloseAbnormalClosure
	reason := ""
	var ce *websocket.CloseError
	isClose := errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure

	switch {
	case isClose:
		code, reason = ce.Code, ce.Text
	case c.closing.Load():
		code, reason = websocket.CloseNormalClosure, "closed by client"
	default:
		reason = err.Error()
		d.handler.NodeError(d, fmt.Errorf("%w: read %s: %w", protocol.ErrTransport, d.wsURL, err))
	}

	_ = c.ws.Close()
	d.connMu.Lock()
	current := d.conn == c
	if current {
		d.conn = nil
		d.setState(StateClosed)
	}
	d.connMu.Unlock()

	if current {
		observability.SetNodeConnected(d.Name(), false)
	}
	d.debug("websocket closed code=%d reason=%q", code, reason)
	d.handler.NodeClose(d, code, reason)
}

// Disconnect closes the socket. It is safe to call repeatedly and before
// Connect.
func (d *Lavalink3) Disconnect() error {
	d.connMu.Lock()
	c := d.conn
	d.conn = nil
	if c != nil {
		d.setState(StateClosed)
	}
	d.connMu.Unlock()
	if c == nil {
		return nil
	}
	observability.SetNodeConnected(d.Name(), false)
	return c.close()
}
