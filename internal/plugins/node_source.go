package plugins

import (
	"context"
	"errors"

	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/danmuck/edgelink/internal/rest"
)

var ErrNoDriver = errors.New("source search needs a driver")

// NodeSource searches through a node's /loadtracks with an engine prefix.
type NodeSource struct {
	name     string
	identify string
	prefix   string
}

func NewNodeSource(name, identify, prefix string) *NodeSource {
	return &NodeSource{name: name, identify: identify, prefix: prefix}
}

func (s *NodeSource) Name() string           { return "source." + s.name }
func (s *NodeSource) SourceName() string     { return s.name }
func (s *NodeSource) SourceIdentify() string { return s.identify }
func (s *NodeSource) Prefix() string         { return s.prefix }

func (s *NodeSource) SearchDirect(ctx context.Context, query string, opts SearchOptions) (*protocol.LoadResult, error) {
	if opts.Driver == nil {
		return nil, ErrNoDriver
	}
	return rest.Search(ctx, opts.Driver, query, s.prefix)
}

// DefaultSources are the engines every stock node ships with.
func DefaultSources() []*NodeSource {
	return []*NodeSource{
		NewNodeSource("youtube", "yt", "ytsearch"),
		NewNodeSource("youtubemusic", "ytm", "ytmsearch"),
		NewNodeSource("soundcloud", "sc", "scsearch"),
	}
}

// NewDefaultRegistry returns a registry holding DefaultSources.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	for _, src := range DefaultSources() {
		if err := r.Register(src); err != nil {
			return nil, err
		}
	}
	return r, nil
}
