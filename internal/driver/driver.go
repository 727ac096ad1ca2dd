// Package driver speaks one node wire version per concrete type and exposes
// every version through the same Driver contract.
//
// Ownership boundary:
// - websocket lifecycle and inbound frame normalization
// - REST dispatch with the 204 / 200 / other status policy
// - session id tracking and store seeding
package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/danmuck/edgelink/internal/session"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	Version = "0.1.0"
	Repo    = "https://github.com/danmuck/edgelink"
)

var ErrUnknownKind = errors.New("driver: unknown kind")

// DefaultClientName is sent as Client-Name when Options leaves it empty.
func DefaultClientName() string {
	return fmt.Sprintf("edgelink/%s (%s)", Version, Repo)
}

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Driver is the canonical surface for one node, whatever wire version it
// speaks.
type Driver interface {
	ID() string
	Name() string
	Kind() string
	Endpoint() protocol.Endpoint
	State() State
	Session() protocol.Session

	Connect(ctx context.Context) error
	// Request returns canonical JSON, or nil when the node answered with
	// no usable result.
	Request(ctx context.Context, req protocol.Request) (json.RawMessage, error)
	UpdateSession(ctx context.Context, sessionID string, resume bool, timeoutSeconds int) error
	Disconnect() error
	Close() error
}

type Options struct {
	Endpoint   protocol.Endpoint
	UserID     string
	ClientName string
	// Resume enables Session-Id on connect and seeding from Store.
	Resume        bool
	ResumeTimeout int
	Store         session.Store
	Handler       Handler
	HTTPClient    *http.Client
	Dialer        *websocket.Dialer
	Logger        *zerolog.Logger
}

type Factory func(Options) (Driver, error)

const KindLavalink3 = "lavalink/v3"

var factories = map[string]Factory{
	KindLavalink3: func(opts Options) (Driver, error) { return NewLavalink3(opts) },
}

// New builds the driver registered for kind. An empty kind selects v3.
func New(kind string, opts Options) (Driver, error) {
	if kind == "" {
		kind = KindLavalink3
	}
	f, ok := factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return f(opts)
}

func Kinds() []string {
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Do sends req and decodes the canonical answer into T. A nil *T with a nil
// error means the node had nothing to return.
func Do[T any](ctx context.Context, d Driver, req protocol.Request) (*T, error) {
	raw, err := d.Request(ctx, req)
	if err != nil {
		return nil, err
	}
	if isAbsent(bytes.TrimSpace(raw)) {
		return nil, nil
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode %T: %w", protocol.ErrMalformedPayload, out, err)
	}
	return &out, nil
}
