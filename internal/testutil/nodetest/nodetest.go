// Package nodetest runs an in-process v3 audio node for driver tests: a
// websocket endpoint that records handshakes and pushes frames, plus a REST
// route table that records every request it receives.
package nodetest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/gorilla/websocket"
)

const (
	Auth   = "youshallnotpass"
	prefix = "/v3"
)

// Recorded is one REST request the node received.
type Recorded struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

type Server struct {
	t        testing.TB
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu         sync.Mutex
	conn       *websocket.Conn
	routes     map[string]http.HandlerFunc
	requests   []Recorded
	readyID    string
	resumed    bool
	handshakes chan http.Header
	clientGone chan websocket.CloseError
}

type Option func(*Server)

// WithReadyFrame makes the node send {"op":"ready"} right after each upgrade.
func WithReadyFrame(sessionID string, resumed bool) Option {
	return func(s *Server) {
		s.readyID = sessionID
		s.resumed = resumed
	}
}

func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		t:          t,
		routes:     make(map[string]http.HandlerFunc),
		handshakes: make(chan http.Header, 16),
		clientGone: make(chan websocket.CloseError, 16),
	}
	for _, opt := range opts {
		opt(s)
	}
	mux := http.NewServeMux()
	mux.HandleFunc(prefix+"/websocket", s.serveWebSocket)
	mux.HandleFunc("/", s.serveREST)
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Endpoint points a driver at this node.
func (s *Server) Endpoint(name string) protocol.Endpoint {
	addr := s.srv.Listener.Addr().(*net.TCPAddr)
	return protocol.Endpoint{
		Name:      name,
		Host:      "127.0.0.1",
		Port:      addr.Port,
		Auth:      Auth,
		UserAgent: "nodetest/1.0",
	}
}

func (s *Server) URL() string { return s.srv.URL }

func (s *Server) Close() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	s.srv.CloseClientConnections()
	s.srv.Close()
}

// Handle registers h for method + path, where path excludes the /v3 prefix.
func (s *Server) Handle(method, path string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[method+" "+prefix+path] = h
}

// HandleJSON answers method + path with a fixed status and body.
func (s *Server) HandleJSON(method, path string, status int, body string) {
	s.Handle(method, path, func(w http.ResponseWriter, _ *http.Request) {
		if body != "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func (s *Server) Requests() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Recorded, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) serveREST(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.requests = append(s.requests, Recorded{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Header:   r.Header.Clone(),
		Body:     body,
	})
	h, ok := s.routes[r.Method+" "+r.URL.Path]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != Auth {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	readyID, resumed := s.readyID, s.resumed
	s.mu.Unlock()

	if readyID != "" {
		frame := fmt.Sprintf(`{"op":"ready","resumed":%t,"sessionId":%q}`, resumed, readyID)
		_ = s.write(conn, frame)
	}
	select {
	case s.handshakes <- r.Header.Clone():
	default:
	}

	go s.drain(conn)
}

// drain consumes client frames so close handshakes complete.
func (s *Server) drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				select {
				case s.clientGone <- *ce:
				default:
				}
			}
			return
		}
	}
}

func (s *Server) write(conn *websocket.Conn, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, []byte(raw))
}

func (s *Server) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// WaitConnected blocks until the next websocket upgrade and returns the
// client's handshake headers.
func (s *Server) WaitConnected(timeout time.Duration) http.Header {
	s.t.Helper()
	select {
	case h := <-s.handshakes:
		return h
	case <-time.After(timeout):
		s.t.Fatalf("nodetest: no websocket connection within %v", timeout)
		return nil
	}
}

// WaitClientClose blocks until the client sends a close frame.
func (s *Server) WaitClientClose(timeout time.Duration) websocket.CloseError {
	s.t.Helper()
	select {
	case ce := <-s.clientGone:
		return ce
	case <-time.After(timeout):
		s.t.Fatalf("nodetest: client did not close within %v", timeout)
		return websocket.CloseError{}
	}
}

// Send pushes one raw text frame to the connected client.
func (s *Server) Send(raw string) {
	s.t.Helper()
	conn := s.current()
	if conn == nil {
		s.t.Fatalf("nodetest: send without a connection")
		return
	}
	if err := s.write(conn, raw); err != nil {
		s.t.Fatalf("nodetest: send: %v", err)
	}
}

// SendJSON marshals v and pushes it as a text frame.
func (s *Server) SendJSON(v any) {
	s.t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		s.t.Fatalf("nodetest: marshal frame: %v", err)
	}
	s.Send(string(raw))
}

// CloseConn performs a clean server-initiated close with code and text.
func (s *Server) CloseConn(code int, text string) {
	s.t.Helper()
	conn := s.current()
	if conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, text)
	s.mu.Lock()
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.mu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.t.Fatalf("nodetest: close: %v", err)
	}
}

// Drop kills the TCP connection without a close frame.
func (s *Server) Drop() {
	conn := s.current()
	if conn == nil {
		return
	}
	_ = conn.UnderlyingConn().Close()
}
