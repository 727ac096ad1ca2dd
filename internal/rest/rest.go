// Package rest holds the typed node REST operations and the dispatch table
// that exposes them by name.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/danmuck/edgelink/internal/driver"
	"github.com/danmuck/edgelink/internal/protocol"
)

// DefaultSearchEngine prefixes bare search queries.
const DefaultSearchEngine = "ytsearch"

func LoadTracks(ctx context.Context, d driver.Driver, identifier string) (*protocol.LoadResult, error) {
	return driver.Do[protocol.LoadResult](ctx, d, protocol.Request{
		Method: http.MethodGet,
		Path:   "/loadtracks",
		Query:  url.Values{"identifier": {identifier}},
	})
}

// SearchIdentifier prefixes query with engine unless it is already a URL.
func SearchIdentifier(query, engine string) string {
	query = strings.TrimSpace(query)
	if IsURL(query) {
		return query
	}
	if engine == "" {
		engine = DefaultSearchEngine
	}
	return engine + ":" + query
}

func IsURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func Search(ctx context.Context, d driver.Driver, query, engine string) (*protocol.LoadResult, error) {
	return LoadTracks(ctx, d, SearchIdentifier(query, engine))
}

func DecodeTrack(ctx context.Context, d driver.Driver, encoded string) (*protocol.Track, error) {
	raw, err := d.Request(ctx, protocol.Request{
		Method: http.MethodGet,
		Path:   "/decodetrack",
		Query:  url.Values{"encodedTrack": {encoded}},
	})
	if err != nil || raw == nil {
		return nil, err
	}
	return decodeTrackBody(raw, encoded)
}

// decodeTrackBody accepts both the bare v3 info object and a full track.
func decodeTrackBody(raw json.RawMessage, encoded string) (*protocol.Track, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: decode track: %w", protocol.ErrMalformedPayload, err)
	}
	if _, ok := probe["info"]; ok {
		var tr protocol.Track
		if err := json.Unmarshal(raw, &tr); err != nil {
			return nil, fmt.Errorf("%w: decode track: %w", protocol.ErrMalformedPayload, err)
		}
		if tr.Encoded == "" {
			tr.Encoded = encoded
		}
		return &tr, nil
	}
	var info protocol.TrackInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("%w: decode track: %w", protocol.ErrMalformedPayload, err)
	}
	return &protocol.Track{Encoded: encoded, Info: info}, nil
}

func DecodeTracks(ctx context.Context, d driver.Driver, encoded []string) ([]protocol.Track, error) {
	body := make([]any, 0, len(encoded))
	for _, e := range encoded {
		body = append(body, e)
	}
	raw, err := d.Request(ctx, protocol.Request{
		Method: http.MethodPost,
		Path:   "/decodetracks",
		Body:   body,
	})
	if err != nil || raw == nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: decode tracks: %w", protocol.ErrMalformedPayload, err)
	}
	out := make([]protocol.Track, 0, len(items))
	for i, item := range items {
		fallback := ""
		if i < len(encoded) {
			fallback = encoded[i]
		}
		tr, err := decodeTrackBody(item, fallback)
		if err != nil {
			return nil, err
		}
		out = append(out, *tr)
	}
	return out, nil
}

func playerPath(guildID string) string {
	return "/sessions/" + protocol.SessionPlaceholder + "/players/" + url.PathEscape(guildID)
}

func Players(ctx context.Context, d driver.Driver) ([]protocol.PlayerState, error) {
	out, err := driver.Do[[]protocol.PlayerState](ctx, d, protocol.Request{
		Method:       http.MethodGet,
		Path:         "/sessions/" + protocol.SessionPlaceholder + "/players",
		UseSessionID: true,
	})
	if err != nil || out == nil {
		return nil, err
	}
	return *out, nil
}

func Player(ctx context.Context, d driver.Driver, guildID string) (*protocol.PlayerState, error) {
	return driver.Do[protocol.PlayerState](ctx, d, protocol.Request{
		Method:       http.MethodGet,
		Path:         playerPath(guildID),
		UseSessionID: true,
	})
}

// UpdatePlayer sends a partial player update. With noReplace the node keeps
// a playing track instead of switching to update.Track.
func UpdatePlayer(ctx context.Context, d driver.Driver, guildID string, update protocol.PlayerUpdate, noReplace bool) (*protocol.PlayerState, error) {
	return driver.Do[protocol.PlayerState](ctx, d, protocol.Request{
		Method:       http.MethodPatch,
		Path:         playerPath(guildID),
		Query:        url.Values{"noReplace": {strconv.FormatBool(noReplace)}},
		Body:         update.Body(),
		UseSessionID: true,
	})
}

func DestroyPlayer(ctx context.Context, d driver.Driver, guildID string) error {
	_, err := d.Request(ctx, protocol.Request{
		Method:       http.MethodDelete,
		Path:         playerPath(guildID),
		UseSessionID: true,
	})
	return err
}

func Info(ctx context.Context, d driver.Driver) (*protocol.NodeInfo, error) {
	return driver.Do[protocol.NodeInfo](ctx, d, protocol.Request{Method: http.MethodGet, Path: "/info"})
}

func Stats(ctx context.Context, d driver.Driver) (*protocol.NodeStats, error) {
	return driver.Do[protocol.NodeStats](ctx, d, protocol.Request{Method: http.MethodGet, Path: "/stats"})
}
