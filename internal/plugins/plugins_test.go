package plugins

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/danmuck/edgelink/internal/driver"
	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/danmuck/edgelink/internal/testutil/nodetest"
	"github.com/danmuck/edgelink/internal/testutil/testlog"
)

type stubSource struct {
	name, identify string
	got            string
}

func (s *stubSource) Name() string           { return "stub." + s.name }
func (s *stubSource) SourceName() string     { return s.name }
func (s *stubSource) SourceIdentify() string { return s.identify }
func (s *stubSource) SearchDirect(_ context.Context, query string, _ SearchOptions) (*protocol.LoadResult, error) {
	s.got = query
	res := protocol.EmptyResult()
	return &res, nil
}

type plainPlugin struct{ name string }

func (p plainPlugin) Name() string { return p.name }

func TestRegistryRegisterAndResolve(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	src := &stubSource{name: "bandcamp", identify: "bc"}
	if err := r.Register(src); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(plainPlugin{name: "lyrics"}); err != nil {
		t.Fatalf("register plain: %v", err)
	}
	if err := r.Register(src); !errors.Is(err, ErrPluginExists) {
		t.Fatalf("expected ErrPluginExists, got %v", err)
	}
	if err := r.Register(&stubSource{name: "other", identify: "BC"}); !errors.Is(err, ErrPluginExists) {
		t.Fatalf("alias clash must be rejected, got %v", err)
	}
	if err := r.Register(nil); !errors.Is(err, ErrPluginNil) {
		t.Fatalf("expected ErrPluginNil, got %v", err)
	}

	if got, ok := r.Source("BandCamp"); !ok || got != src {
		t.Fatalf("lookup by name failed")
	}
	if got, ok := r.Source("bc"); !ok || got != src {
		t.Fatalf("lookup by alias failed")
	}
	if names := r.Names(); strings.Join(names, ",") != "lyrics,stub.bandcamp" {
		t.Fatalf("unexpected names %v", names)
	}
	if n := len(r.Sources()); n != 1 {
		t.Fatalf("plain plugins are not sources, got %d", n)
	}

	if _, err := r.Search(context.Background(), "q", SearchOptions{Engine: "bc"}); err != nil || src.got != "q" {
		t.Fatalf("search routed wrong: got=%q err=%v", src.got, err)
	}
	if _, err := r.Search(context.Background(), "q", SearchOptions{Engine: "deezer"}); !errors.Is(err, ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}
}

func TestDefaultRegistrySearchesThroughNode(t *testing.T) {
	testlog.Start(t)
	node := nodetest.New(t)
	node.HandleJSON(http.MethodGet, "/loadtracks", http.StatusOK, `{"loadType":"NO_MATCHES","playlistInfo":{},"tracks":[]}`)
	d, err := driver.New(driver.KindLavalink3, driver.Options{Endpoint: node.Endpoint("plug")})
	if err != nil {
		t.Fatalf("driver: %v", err)
	}

	r, err := NewDefaultRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if n := len(r.Sources()); n != 3 {
		t.Fatalf("expected 3 default sources, got %d", n)
	}
	res, err := r.Search(context.Background(), "lofi beats", SearchOptions{Engine: "sc", Driver: d})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.LoadType != protocol.LoadTypeEmpty {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := node.Requests()[0].RawQuery; got != "identifier=scsearch%3Alofi+beats" {
		t.Fatalf("unexpected identifier %q", got)
	}

	if _, err := r.Search(context.Background(), "x", SearchOptions{Engine: "yt"}); !errors.Is(err, ErrNoDriver) {
		t.Fatalf("expected ErrNoDriver, got %v", err)
	}
}
