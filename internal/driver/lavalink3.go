package driver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/danmuck/edgelink/internal/protocol/lavalink3"
	"github.com/danmuck/edgelink/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Lavalink3 drives a node that speaks the v3 wire.
type Lavalink3 struct {
	id         string
	endpoint   protocol.Endpoint
	userID     string
	clientName string
	store      session.Store
	handler    Handler
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     zerolog.Logger
	wsURL      string
	httpURL    string

	state atomic.Int32

	mu      sync.RWMutex
	session protocol.Session

	connMu sync.Mutex
	conn   *wsConn
	// last is the most recently dialed socket, kept until its read loop ends.
	last *wsConn
}

var _ Driver = (*Lavalink3)(nil)

func NewLavalink3(opts Options) (*Lavalink3, error) {
	if err := opts.Endpoint.Validate(); err != nil {
		return nil, err
	}
	d := &Lavalink3{
		id:         uuid.NewString(),
		endpoint:   opts.Endpoint,
		userID:     strings.TrimSpace(opts.UserID),
		clientName: strings.TrimSpace(opts.ClientName),
		store:      opts.Store,
		handler:    opts.Handler,
		httpClient: opts.HTTPClient,
		dialer:     opts.Dialer,
		wsURL:      opts.Endpoint.WebSocketURL(lavalink3.Prefix),
		httpURL:    opts.Endpoint.HTTPURL(lavalink3.Prefix),
		session: protocol.Session{
			Resume:         opts.Resume,
			TimeoutSeconds: opts.ResumeTimeout,
		},
	}
	if d.clientName == "" {
		d.clientName = DefaultClientName()
	}
	if d.handler == nil {
		d.handler = HandlerFuncs{}
	}
	if d.httpClient == nil {
		d.httpClient = http.DefaultClient
	}
	if d.dialer == nil {
		d.dialer = websocket.DefaultDialer
	}
	base := log.Logger
	if opts.Logger != nil {
		base = *opts.Logger
	}
	d.logger = base.With().
		Str("node", d.Name()).
		Str("driver", KindLavalink3).
		Str("driver_id", d.id).
		Logger()
	d.state.Store(int32(StateDisconnected))
	return d, nil
}

func (d *Lavalink3) ID() string { return d.id }

func (d *Lavalink3) Name() string {
	if name := strings.TrimSpace(d.endpoint.Name); name != "" {
		return name
	}
	return d.endpoint.Key()
}

func (d *Lavalink3) Kind() string { return KindLavalink3 }

func (d *Lavalink3) Endpoint() protocol.Endpoint { return d.endpoint }

func (d *Lavalink3) State() State { return State(d.state.Load()) }

func (d *Lavalink3) setState(s State) { d.state.Store(int32(s)) }

func (d *Lavalink3) Session() protocol.Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.session
}

func (d *Lavalink3) userAgent() string {
	if ua := strings.TrimSpace(d.endpoint.UserAgent); ua != "" {
		return ua
	}
	return "edgelink/" + Version
}

// seedSession restores a stored session id before the first connect when
// resume is on and no id is known yet.
func (d *Lavalink3) seedSession(ctx context.Context) {
	if d.store == nil {
		return
	}
	cur := d.Session()
	if !cur.Resume || cur.ID != "" {
		return
	}
	rec, err := d.store.GetSession(ctx, d.endpoint.Key())
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			d.logger.Warn().Err(err).Msg("session store lookup failed")
		}
		return
	}
	if rec.SessionID == "" {
		return
	}
	d.mu.Lock()
	if d.session.ID == "" {
		d.session.ID = rec.SessionID
	}
	d.mu.Unlock()
	d.debug("session restored from store id=%s", rec.SessionID)
}

// adoptSession records the id a ready frame carried and persists it.
func (d *Lavalink3) adoptSession(ctx context.Context, id string) {
	d.mu.Lock()
	d.session.ID = id
	d.mu.Unlock()
	if d.store == nil {
		return
	}
	if err := d.store.SetSession(ctx, d.endpoint.Key(), session.Record{SessionID: id}); err != nil {
		d.logger.Warn().Err(err).Str("session_id", id).Msg("session store write failed")
	}
}

// UpdateSession asks the node to keep sessionID resumable for timeoutSeconds.
func (d *Lavalink3) UpdateSession(ctx context.Context, sessionID string, resume bool, timeoutSeconds int) error {
	if strings.TrimSpace(sessionID) == "" {
		return protocol.ErrSessionNotReady
	}
	req := protocol.Request{
		Method:  http.MethodPatch,
		Path:    "/sessions/" + url.PathEscape(sessionID),
		Headers: map[string]string{"Content-Type": "application/json"},
		Body: map[string]any{
			"resumingKey": sessionID,
			"timeout":     timeoutSeconds,
		},
	}
	if _, err := d.Request(ctx, req); err != nil {
		return err
	}
	d.mu.Lock()
	d.session.Resume = resume
	d.session.TimeoutSeconds = timeoutSeconds
	d.mu.Unlock()
	d.debug("session updated resume=%t timeout=%d", resume, timeoutSeconds)
	return nil
}

// Close drops the connection and forgets the session id. In-flight requests
// finish on their own contexts.
func (d *Lavalink3) Close() error {
	err := d.Disconnect()
	d.mu.Lock()
	d.session.ID = ""
	d.mu.Unlock()
	return err
}

func (d *Lavalink3) debug(format string, args ...any) {
	d.handler.Debug(d, fmt.Sprintf(format, args...))
}
