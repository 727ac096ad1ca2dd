package driver

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/danmuck/edgelink/internal/session"
	"github.com/danmuck/edgelink/internal/testutil/nodetest"
	"github.com/danmuck/edgelink/internal/testutil/testlog"
	"github.com/gorilla/websocket"
)

func TestConnectSendsHandshakeHeaders(t *testing.T) {
	testlog.Start(t)
	node := nodetest.New(t)
	d, rec := newTestDriver(t, node)

	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	h := node.WaitConnected(waitTimeout)
	rec.waitFor(t, "online")

	if got := h.Get("Authorization"); got != nodetest.Auth {
		t.Fatalf("authorization=%q", got)
	}
	if got := h.Get("User-Id"); got != "1234567890" {
		t.Fatalf("user-id=%q", got)
	}
	if got := h.Get("Client-Name"); got != DefaultClientName() {
		t.Fatalf("client-name=%q", got)
	}
	if got := h.Get("User-Agent"); got != "nodetest/1.0" {
		t.Fatalf("user-agent=%q", got)
	}
	if got := h.Get("Session-Id"); got != "" {
		t.Fatalf("expected empty Session-Id without a session, got %q", got)
	}
	if d.State() != StateOpen {
		t.Fatalf("state=%s", d.State())
	}
}

func TestConnectSeedsSessionFromStoreWhenResuming(t *testing.T) {
	testlog.Start(t)
	node := nodetest.New(t)
	store := session.NewMemoryStore()
	key := node.Endpoint("x").Key()
	if err := store.SetSession(context.Background(), key, session.Record{SessionID: "stored-1"}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	d, rec := newTestDriver(t, node, withResume(store))

	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	h := node.WaitConnected(waitTimeout)
	rec.waitFor(t, "online")
	if got := h.Get("Session-Id"); got != "stored-1" {
		t.Fatalf("expected stored session on handshake, got %q", got)
	}
	if d.Session().ID != "stored-1" {
		t.Fatalf("session not seeded: %+v", d.Session())
	}
}

func TestConnectIgnoresStoreWithoutResume(t *testing.T) {
	testlog.Start(t)
	node := nodetest.New(t)
	store := session.NewMemoryStore()
	key := node.Endpoint("x").Key()
	_ = store.SetSession(context.Background(), key, session.Record{SessionID: "stored-1"})
	d, rec := newTestDriver(t, node, withStore(store))

	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	h := node.WaitConnected(waitTimeout)
	rec.waitFor(t, "online")
	if got := h.Get("Session-Id"); got != "" {
		t.Fatalf("resume disabled must send empty Session-Id, got %q", got)
	}
	if d.Session().ID != "" {
		t.Fatalf("resume disabled must not seed: %+v", d.Session())
	}
}

func TestReadyFrameAdoptsAndPersistsSession(t *testing.T) {
	testlog.Start(t)
	node := nodetest.New(t, nodetest.WithReadyFrame("abc123", false))
	store := session.NewMemoryStore()
	d, rec := newTestDriver(t, node, withResume(store))

	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	rec.waitFor(t, "message")

	frames := rec.snapshotFrames()
	if len(frames) != 1 || frames[0].Op != protocol.OpReady {
		t.Fatalf("expected one ready frame, got %+v", frames)
	}
	if d.Session().ID != "abc123" {
		t.Fatalf("session not adopted: %+v", d.Session())
	}
	got, err := store.GetSession(context.Background(), d.Endpoint().Key())
	if err != nil || got.SessionID != "abc123" {
		t.Fatalf("session not persisted: %+v err=%v", got, err)
	}
}

func TestInboundReasonNormalized(t *testing.T) {
	testlog.Start(t)
	node := nodetest.New(t)
	d, rec := newTestDriver(t, node)
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	node.WaitConnected(waitTimeout)
	rec.waitFor(t, "online")

	node.Send(`{"op":"event","reason":"LOAD_FAILED"}`)
	rec.waitFor(t, "message")
	node.Send(`{"op":"event","type":"TrackEndEvent","guildId":"42","reason":"FINISHED"}`)
	rec.waitFor(t, "message")

	frames := rec.snapshotFrames()
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Reason != "loadFailed" {
		t.Fatalf("first reason=%q", frames[0].Reason)
	}
	if frames[1].Reason != "finished" || frames[1].GuildID != "42" {
		t.Fatalf("second frame=%+v", frames[1])
	}
}

func TestMalformedFrameIsDropped(t *testing.T) {
	testlog.Start(t)
	node := nodetest.New(t)
	d, rec := newTestDriver(t, node)
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	node.WaitConnected(waitTimeout)
	rec.waitFor(t, "online")

	node.Send(`{not json`)
	node.Send(`{"op":"stats"}`)
	rec.waitFor(t, "message")

	frames := rec.snapshotFrames()
	if len(frames) != 1 || frames[0].Op != protocol.OpStats {
		t.Fatalf("malformed frame must be dropped, got %+v", frames)
	}
	if !rec.debugContains("malformed") {
		t.Fatalf("expected diagnostic for malformed frame, got %v", rec.snapshotDebug())
	}
	if len(rec.snapshotErrs()) != 0 {
		t.Fatalf("malformed frame must not raise NodeError")
	}
	if d.State() != StateOpen {
		t.Fatalf("connection must stay open, state=%s", d.State())
	}
}

func TestServerCloseEmitsSingleClose(t *testing.T) {
	testlog.Start(t)
	node := nodetest.New(t)
	d, rec := newTestDriver(t, node)
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	node.WaitConnected(waitTimeout)
	rec.waitFor(t, "online")

	node.CloseConn(4001, "shutting down")
	rec.waitFor(t, "close")

	closes := rec.snapshotCloses()
	if len(closes) != 1 || closes[0].code != 4001 || closes[0].reason != "shutting down" {
		t.Fatalf("unexpected closes: %+v", closes)
	}
	if len(rec.snapshotErrs()) != 0 {
		t.Fatalf("clean close must not raise NodeError: %v", rec.snapshotErrs())
	}
	if d.State() != StateClosed {
		t.Fatalf("state=%s", d.State())
	}
}

func TestTransportDropEmitsErrorThenClose(t *testing.T) {
	testlog.Start(t)
	node := nodetest.New(t)
	d, rec := newTestDriver(t, node)
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	node.WaitConnected(waitTimeout)
	rec.waitFor(t, "online")

	node.Drop()
	rec.waitFor(t, "error")
	rec.waitFor(t, "close")

	errs := rec.snapshotErrs()
	if len(errs) != 1 || !errors.Is(errs[0], protocol.ErrTransport) {
		t.Fatalf("expected one transport error, got %v", errs)
	}
	closes := rec.snapshotCloses()
	if len(closes) != 1 || closes[0].code != websocket.CloseAbnormalClosure {
		t.Fatalf("expected single 1006 close, got %+v", closes)
	}

	// no frames after close
	time.Sleep(50 * time.Millisecond)
	if n := len(rec.snapshotFrames()); n != 0 {
		t.Fatalf("no frames expected after close, got %d", n)
	}
}

func TestConnectWhileOpenFails(t *testing.T) {
	testlog.Start(t)
	node := nodetest.New(t)
	d, rec := newTestDriver(t, node)
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	rec.waitFor(t, "online")
	if err := d.Connect(context.Background()); !errors.Is(err, protocol.ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
}

func TestConnectDialFailure(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	rec := newRecorder()
	d, err := NewLavalink3(Options{
		Endpoint: protocol.Endpoint{Name: "gone", Host: "127.0.0.1", Port: port, Auth: "x"},
		Handler:  rec,
	})
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	err = d.Connect(context.Background())
	if !errors.Is(err, protocol.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if errs := rec.snapshotErrs(); len(errs) != 1 {
		t.Fatalf("expected NodeError for dial failure, got %v", errs)
	}
	if d.State() != StateClosed {
		t.Fatalf("state=%s", d.State())
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	testlog.Start(t)
	node := nodetest.New(t)
	d, rec := newTestDriver(t, node)

	if err := d.Disconnect(); err != nil {
		t.Fatalf("disconnect before connect: %v", err)
	}
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	node.WaitConnected(waitTimeout)
	rec.waitFor(t, "online")

	if err := d.Disconnect(); err != nil {
		t.Fatalf("first disconnect: %v", err)
	}
	if err := d.Disconnect(); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}
	rec.waitFor(t, "close")
	closes := rec.snapshotCloses()
	if len(closes) != 1 || closes[0].code != websocket.CloseNormalClosure {
		t.Fatalf("expected one normal close, got %+v", closes)
	}
	if len(rec.snapshotErrs()) != 0 {
		t.Fatalf("client close must not raise NodeError: %v", rec.snapshotErrs())
	}
}

func TestReconnectDeliversOldCloseBeforeNewOnline(t *testing.T) {
	testlog.Start(t)
	node := nodetest.New(t)
	d, rec := newTestDriver(t, node)

	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	const cycles = 25
	for i := 0; i < cycles; i++ {
		if err := d.Disconnect(); err != nil {
			t.Fatalf("disconnect %d: %v", i, err)
		}
		if err := d.Connect(context.Background()); err != nil {
			t.Fatalf("connect %d: %v", i, err)
		}
	}

	got := rec.snapshotLifecycle()
	if len(got) != 2*cycles+1 {
		t.Fatalf("expected %d lifecycle events, got %v", 2*cycles+1, got)
	}
	for i, kind := range got {
		want := "online"
		if i%2 == 1 {
			want = "close"
		}
		if kind != want {
			t.Fatalf("event %d=%s want %s: %v", i, kind, want, got)
		}
	}
}

func TestConnectGivesUpWaitingOnPreviousSocket(t *testing.T) {
	testlog.Start(t)
	node := nodetest.New(t)
	d, _ := newTestDriver(t, node)

	stuck := &wsConn{done: make(chan struct{})}
	d.connMu.Lock()
	d.last = stuck
	d.connMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Connect(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if d.State() != StateClosed {
		t.Fatalf("state=%s", d.State())
	}

	close(stuck.done)
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect after previous socket finished: %v", err)
	}
	node.WaitConnected(waitTimeout)
}

func TestReconnectAfterClose(t *testing.T) {
	testlog.Start(t)
	node := nodetest.New(t, nodetest.WithReadyFrame("sess-1", false))
	store := session.NewMemoryStore()
	d, rec := newTestDriver(t, node, withResume(store))

	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	node.WaitConnected(waitTimeout)
	rec.waitFor(t, "message")

	node.CloseConn(websocket.CloseGoingAway, "restart")
	rec.waitFor(t, "close")

	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	h := node.WaitConnected(waitTimeout)
	if got := h.Get("Session-Id"); got != "sess-1" {
		t.Fatalf("reconnect must offer the adopted session, got %q", got)
	}
}

func TestCloseClearsSession(t *testing.T) {
	testlog.Start(t)
	node := nodetest.New(t, nodetest.WithReadyFrame("abc", false))
	d, rec := newTestDriver(t, node)
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	rec.waitFor(t, "message")
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if d.Session().ID != "" {
		t.Fatalf("close must clear session: %+v", d.Session())
	}
	if d.State() != StateClosed {
		t.Fatalf("state=%s", d.State())
	}
}
