package driver

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/danmuck/edgelink/internal/session"
	"github.com/danmuck/edgelink/internal/testutil/nodetest"
)

const waitTimeout = 3 * time.Second

type closeEvent struct {
	code   int
	reason string
}

// recorder captures every driver event and signals each one on events.
type recorder struct {
	mu     sync.Mutex
	online int
	frames []protocol.Frame
	errs   []error
	closes []closeEvent
	debugs []string
	// lifecycle holds online and close events in delivery order.
	lifecycle []string
	events    chan string
}

func newRecorder() *recorder {
	return &recorder{events: make(chan string, 256)}
}

func (r *recorder) signal(kind string) {
	select {
	case r.events <- kind:
	default:
	}
}

func (r *recorder) NodeOnline(Driver) {
	r.mu.Lock()
	r.online++
	r.lifecycle = append(r.lifecycle, "online")
	r.mu.Unlock()
	r.signal("online")
}

func (r *recorder) NodeMessage(_ Driver, frame protocol.Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.mu.Unlock()
	r.signal("message")
}

func (r *recorder) NodeError(_ Driver, err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.signal("error")
}

func (r *recorder) NodeClose(_ Driver, code int, reason string) {
	r.mu.Lock()
	r.closes = append(r.closes, closeEvent{code: code, reason: reason})
	r.lifecycle = append(r.lifecycle, "close")
	r.mu.Unlock()
	r.signal("close")
}

func (r *recorder) Debug(_ Driver, msg string) {
	r.mu.Lock()
	r.debugs = append(r.debugs, msg)
	r.mu.Unlock()
}

// waitFor drains events until kind shows up.
func (r *recorder) waitFor(t *testing.T, kind string) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case got := <-r.events:
			if got == kind {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func (r *recorder) snapshotLifecycle() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lifecycle...)
}

func (r *recorder) snapshotFrames() []protocol.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Frame(nil), r.frames...)
}

func (r *recorder) snapshotErrs() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) snapshotCloses() []closeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]closeEvent(nil), r.closes...)
}

func (r *recorder) resetDebug() {
	r.mu.Lock()
	r.debugs = nil
	r.mu.Unlock()
}

func (r *recorder) snapshotDebug() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.debugs...)
}

func (r *recorder) debugContains(sub string) bool {
	for _, line := range r.snapshotDebug() {
		if strings.Contains(line, sub) {
			return true
		}
	}
	return false
}

type testOption func(*Options)

func withResume(store session.Store) testOption {
	return func(o *Options) {
		o.Resume = true
		o.Store = store
	}
}

func withStore(store session.Store) testOption {
	return func(o *Options) { o.Store = store }
}

func newTestDriver(t *testing.T, node *nodetest.Server, opts ...testOption) (*Lavalink3, *recorder) {
	t.Helper()
	rec := newRecorder()
	o := Options{
		Endpoint:      node.Endpoint("test-node"),
		UserID:        "1234567890",
		ResumeTimeout: 60,
		Handler:       rec,
	}
	for _, opt := range opts {
		opt(&o)
	}
	d, err := NewLavalink3(o)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d, rec
}
