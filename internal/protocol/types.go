package protocol

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint identifies one node. It is fixed once a driver is built.
type Endpoint struct {
	Name      string
	Host      string
	Port      int
	Secure    bool
	Auth      string
	UserAgent string
}

// Key is the host:port pair sessions are persisted under.
func (e Endpoint) Key() string {
	return net.JoinHostPort(strings.TrimSpace(e.Host), strconv.Itoa(e.Port))
}

func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.Host) == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}
	if e.Port <= 0 || e.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidEndpoint, e.Port)
	}
	return nil
}

// WebSocketURL returns {ws|wss}://host:port/{prefix}/websocket.
func (e Endpoint) WebSocketURL(prefix string) string {
	scheme := "ws"
	if e.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/%s/websocket", scheme, e.Key(), prefix)
}

// HTTPURL returns {http|https}://host:port/{prefix}.
func (e Endpoint) HTTPURL(prefix string) string {
	scheme := "http"
	if e.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, e.Key(), prefix)
}

// Session is the resumable server session a driver currently holds.
type Session struct {
	ID             string
	Resume         bool
	TimeoutSeconds int
}

// Ready reports whether a server-assigned id is known.
func (s Session) Ready() bool {
	return strings.TrimSpace(s.ID) != ""
}
