package node

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/edgelink/internal/config"
	"github.com/danmuck/edgelink/internal/driver"
	"github.com/danmuck/edgelink/internal/observability"
	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/danmuck/edgelink/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const updateSessionTimeout = 10 * time.Second

var (
	ErrManagerClosed = errors.New("node: manager closed")
	ErrUnknownNode   = errors.New("node: unknown node")
)

type Options struct {
	// UserID is used when the config leaves client.user_id empty. A random
	// id is generated when both are empty.
	UserID     string
	Store      session.Store
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *zerolog.Logger
	// Listener also receives every driver event.
	Listener driver.Handler
}

// Status is a point-in-time view of one node.
type Status struct {
	Name       string `json:"name"`
	Driver     string `json:"driver"`
	Endpoint   string `json:"endpoint"`
	State      string `json:"state"`
	SessionID  string `json:"sessionId,omitempty"`
	Resume     bool   `json:"resume"`
	Reconnects int64  `json:"reconnects"`
	LastError  string `json:"lastError,omitempty"`
}

type managed struct {
	cfg        config.NodeConfig
	driver     driver.Driver
	logger     zerolog.Logger
	cancel     context.CancelFunc
	done       chan struct{}
	closed     chan struct{}
	reconnects atomic.Int64

	mu      sync.Mutex
	lastErr string
}

func (n *managed) setErr(err error) {
	n.mu.Lock()
	n.lastErr = err.Error()
	n.mu.Unlock()
}

func (n *managed) status() Status {
	n.mu.Lock()
	lastErr := n.lastErr
	n.mu.Unlock()
	sess := n.driver.Session()
	return Status{
		Name:       n.cfg.Name,
		Driver:     n.driver.Kind(),
		Endpoint:   n.driver.Endpoint().Key(),
		State:      n.driver.State().String(),
		SessionID:  sess.ID,
		Resume:     sess.Resume,
		Reconnects: n.reconnects.Load(),
		LastError:  lastErr,
	}
}

// Manager owns the drivers for every configured node and implements
// driver.Handler for them.
type Manager struct {
	opts   Options
	logger zerolog.Logger
	base   context.Context
	stop   context.CancelFunc

	mu       sync.RWMutex
	userID   string
	client   config.ClientConfig
	sessCfg  session.Config
	nodes    map[string]*managed
	byDriver map[string]*managed
	closed   bool
}

var _ driver.Handler = (*Manager)(nil)

func NewManager(opts Options) *Manager {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	userID := opts.UserID
	if userID == "" {
		userID = uuid.NewString()
	}
	base, stop := context.WithCancel(context.Background())
	return &Manager{
		opts:     opts,
		logger:   logger.With().Str("component", "node_manager").Logger(),
		base:     base,
		stop:     stop,
		userID:   userID,
		sessCfg:  session.DefaultConfig(),
		nodes:    make(map[string]*managed),
		byDriver: make(map[string]*managed),
	}
}

func (m *Manager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userID
}

// Apply reconciles running nodes with cfg. Unchanged nodes keep their
// connection; removed or edited ones are stopped; new ones are started.
// Changes to [client] or [reconnect] restart every node.
func (m *Manager) Apply(cfg config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	sessCfg, err := cfg.SessionConfig()
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if cfg.Client.UserID == "" {
		cfg.Client.UserID = m.userID
	} else {
		m.userID = cfg.Client.UserID
	}
	restartAll := m.client != cfg.Client || m.sessCfg != sessCfg
	m.client = cfg.Client
	m.sessCfg = sessCfg

	want := make(map[string]config.NodeConfig, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		want[n.Name] = n
	}
	var stopping []*managed
	for name, n := range m.nodes {
		next, keep := want[name]
		if keep && !restartAll && next == n.cfg {
			delete(want, name)
			continue
		}
		stopping = append(stopping, n)
		delete(m.nodes, name)
		delete(m.byDriver, n.driver.ID())
	}
	m.mu.Unlock()

	for _, n := range stopping {
		m.stopNode(n)
	}

	names := make([]string, 0, len(want))
	for name := range want {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := m.startNode(cfg, want[name]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) startNode(cfg config.Config, nc config.NodeConfig) error {
	m.mu.RLock()
	sessCfg := m.sessCfg
	m.mu.RUnlock()

	logger := observability.NodeLogger(m.logger, nc.Name, nc.Driver)
	d, err := driver.New(nc.Driver, driver.Options{
		Endpoint:      cfg.Endpoint(nc),
		UserID:        cfg.Client.UserID,
		ClientName:    cfg.Client.ClientName,
		Resume:        sessCfg.Resume,
		ResumeTimeout: int(sessCfg.ResumeTimeout / time.Second),
		Store:         m.opts.Store,
		Handler:       m,
		HTTPClient:    m.opts.HTTPClient,
		Dialer:        m.opts.Dialer,
		Logger:        &logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(m.base)
	n := &managed{
		cfg:    nc,
		driver: d,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
		closed: make(chan struct{}, 1),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return ErrManagerClosed
	}
	m.nodes[nc.Name] = n
	m.byDriver[d.ID()] = n
	m.mu.Unlock()

	logger.Info().Str("endpoint", d.Endpoint().Key()).Msg("node added")
	go m.supervise(ctx, n, sessCfg)
	return nil
}

func (m *Manager) stopNode(n *managed) {
	n.cancel()
	<-n.done
	if err := n.driver.Close(); err != nil {
		n.logger.Warn().Err(err).Msg("node close")
	}
	observability.SetNodeConnected(n.cfg.Name, false)
	n.logger.Info().Msg("node removed")
}

// supervise keeps one node connected until ctx ends or attempts run out.
func (m *Manager) supervise(ctx context.Context, n *managed, cfg session.Config) {
	defer close(n.done)
	backoff := session.NewBackoff(cfg, rand.New(rand.NewSource(time.Now().UnixNano())))

	for {
		if err := n.driver.Connect(ctx); err == nil {
			backoff.Reset()
			select {
			case <-ctx.Done():
				return
			case <-n.closed:
			}
		} else if ctx.Err() != nil {
			return
		}

		delay, ok := backoff.Next()
		if !ok {
			n.logger.Error().Int("attempts", backoff.Attempts()).Msg("reconnect attempts exhausted")
			return
		}
		n.reconnects.Add(1)
		observability.RecordReconnect(n.cfg.Name)
		n.logger.Info().Dur("delay", delay).Int("attempt", backoff.Attempts()).Msg("reconnect scheduled")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *Manager) lookup(d driver.Driver) *managed {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byDriver[d.ID()]
}

func (m *Manager) Get(name string) (driver.Driver, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[name]
	if !ok {
		return nil, false
	}
	return n.driver, true
}

func (m *Manager) Status(name string) (Status, bool) {
	m.mu.RLock()
	n, ok := m.nodes[name]
	m.mu.RUnlock()
	if !ok {
		return Status{}, false
	}
	return n.status(), true
}

// List returns node statuses ordered by name.
func (m *Manager) List() []Status {
	m.mu.RLock()
	nodes := make([]*managed, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	m.mu.RUnlock()

	out := make([]Status, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close stops every node. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	nodes := make([]*managed, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	m.nodes = make(map[string]*managed)
	m.byDriver = make(map[string]*managed)
	m.mu.Unlock()

	m.stop()
	for _, n := range nodes {
		m.stopNode(n)
	}
	return nil
}

func (m *Manager) loggerFor(d driver.Driver) zerolog.Logger {
	if n := m.lookup(d); n != nil {
		return n.logger
	}
	return observability.NodeLogger(m.logger, d.Name(), d.Kind())
}

func (m *Manager) NodeOnline(d driver.Driver) {
	l := m.loggerFor(d)
	l.Info().Msg("node online")
	if m.opts.Listener != nil {
		m.opts.Listener.NodeOnline(d)
	}
}

func (m *Manager) NodeMessage(d driver.Driver, frame protocol.Frame) {
	l := m.loggerFor(d)
	l.Debug().
		Str("op", frame.Op).
		Str("guild", frame.GuildID).
		Str("type", frame.Type).
		Str("reason", frame.Reason).
		Msg("node frame")

	if frame.Op == protocol.OpReady && frame.SessionID != "" {
		l.Info().Str("session_id", frame.SessionID).Bool("resumed", frame.Resumed).Msg("node ready")
		m.mu.RLock()
		cfg := m.sessCfg
		m.mu.RUnlock()
		if cfg.Resume {
			go m.enableResume(d, frame.SessionID, cfg)
		}
	}
	if m.opts.Listener != nil {
		m.opts.Listener.NodeMessage(d, frame)
	}
}

func (m *Manager) enableResume(d driver.Driver, sessionID string, cfg session.Config) {
	ctx, cancel := context.WithTimeout(m.base, updateSessionTimeout)
	defer cancel()
	timeout := int(cfg.ResumeTimeout / time.Second)
	if err := d.UpdateSession(ctx, sessionID, true, timeout); err != nil {
		l := m.loggerFor(d)
		l.Warn().Err(err).Msg("enable resume failed")
		if n := m.lookup(d); n != nil {
			n.setErr(err)
		}
	}
}

func (m *Manager) NodeError(d driver.Driver, err error) {
	l := m.loggerFor(d)
	l.Error().Err(err).Msg("node error")
	if n := m.lookup(d); n != nil {
		n.setErr(err)
	}
	if m.opts.Listener != nil {
		m.opts.Listener.NodeError(d, err)
	}
}

func (m *Manager) NodeClose(d driver.Driver, code int, reason string) {
	l := m.loggerFor(d)
	l.Warn().Int("code", code).Str("reason", reason).Msg("node closed")
	if n := m.lookup(d); n != nil {
		select {
		case n.closed <- struct{}{}:
		default:
		}
	}
	if m.opts.Listener != nil {
		m.opts.Listener.NodeClose(d, code, reason)
	}
}

func (m *Manager) Debug(d driver.Driver, msg string) {
	l := m.loggerFor(d)
	l.Debug().Msg(msg)
	if m.opts.Listener != nil {
		m.opts.Listener.Debug(d, msg)
	}
}
