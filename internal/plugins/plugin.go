package plugins

import (
	"context"

	"github.com/danmuck/edgelink/internal/driver"
	"github.com/danmuck/edgelink/internal/protocol"
)

type Plugin interface {
	Name() string
}

type SearchOptions struct {
	// Engine selects a source by SourceName or SourceIdentify.
	Engine string
	Driver driver.Driver
}

// SourcePlugin resolves search queries for one source.
type SourcePlugin interface {
	Plugin
	// SourceName is the long engine name ("youtube").
	SourceName() string
	// SourceIdentify is the short alias ("yt").
	SourceIdentify() string
	SearchDirect(ctx context.Context, query string, opts SearchOptions) (*protocol.LoadResult, error)
}
