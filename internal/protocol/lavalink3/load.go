package lavalink3

import (
	"encoding/json"
	"fmt"

	"github.com/danmuck/edgelink/internal/protocol"
)

// Wire load-type tokens.
const (
	LoadTrackLoaded    = "TRACK_LOADED"
	LoadPlaylistLoaded = "PLAYLIST_LOADED"
	LoadSearchResult   = "SEARCH_RESULT"
	LoadNoMatches      = "NO_MATCHES"
	LoadFailed         = "LOAD_FAILED"
)

type wireTrackInfo struct {
	Identifier string  `json:"identifier"`
	IsSeekable bool    `json:"isSeekable"`
	Author     string  `json:"author"`
	Length     int64   `json:"length"`
	IsStream   bool    `json:"isStream"`
	Position   int64   `json:"position"`
	Title      string  `json:"title"`
	URI        *string `json:"uri"`
	SourceName string  `json:"sourceName"`
}

// WireTrack is a track as a v3 node sends it. Nodes before 3.7 only fill
// Track; later ones fill both with the same token.
type WireTrack struct {
	Encoded string        `json:"encoded"`
	Track   string        `json:"track"`
	Info    wireTrackInfo `json:"info"`
}

type wirePlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selectedTrack"`
}

type wireException struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

// WireLoadResult is the v3 /loadtracks body.
type WireLoadResult struct {
	LoadType     string            `json:"loadType"`
	PlaylistInfo *wirePlaylistInfo `json:"playlistInfo"`
	Tracks       []WireTrack       `json:"tracks"`
	Exception    *wireException    `json:"exception"`
}

// BuildTrack copies the fixed info field set verbatim. ArtworkURL, ISRC, and
// PluginInfo stay nil.
func BuildTrack(w WireTrack) protocol.Track {
	encoded := w.Encoded
	if encoded == "" {
		encoded = w.Track
	}
	return protocol.Track{
		Encoded: encoded,
		Info: protocol.TrackInfo{
			Identifier: w.Info.Identifier,
			IsSeekable: w.Info.IsSeekable,
			Author:     w.Info.Author,
			Length:     w.Info.Length,
			IsStream:   w.Info.IsStream,
			Position:   w.Info.Position,
			Title:      w.Info.Title,
			URI:        w.Info.URI,
			SourceName: w.Info.SourceName,
		},
	}
}

func buildTracks(in []WireTrack) []protocol.Track {
	out := make([]protocol.Track, 0, len(in))
	for _, w := range in {
		out = append(out, BuildTrack(w))
	}
	return out
}

// ConvertLoadResult decodes a v3 load body into the canonical variant.
func ConvertLoadResult(raw []byte) (protocol.LoadResult, error) {
	var wire WireLoadResult
	if err := json.Unmarshal(raw, &wire); err != nil {
		return protocol.LoadResult{}, fmt.Errorf("%w: load result: %w", protocol.ErrMalformedPayload, err)
	}
	return FromWire(wire)
}

// FromWire maps one wire token onto exactly one canonical tag. Unknown tokens
// are reported, never guessed.
func FromWire(w WireLoadResult) (protocol.LoadResult, error) {
	switch w.LoadType {
	case LoadFailed:
		exc := protocol.Exception{}
		if w.Exception != nil {
			exc = protocol.Exception{
				Message:  w.Exception.Message,
				Severity: w.Exception.Severity,
				Cause:    w.Exception.Cause,
			}
		}
		return protocol.ErrorResult(exc), nil
	case LoadPlaylistLoaded:
		pl := protocol.Playlist{Tracks: buildTracks(w.Tracks)}
		if w.PlaylistInfo != nil {
			pl.Info = protocol.PlaylistInfo{
				Name:          w.PlaylistInfo.Name,
				SelectedTrack: w.PlaylistInfo.SelectedTrack,
			}
		}
		return protocol.PlaylistResult(pl), nil
	case LoadSearchResult:
		return protocol.SearchResult(buildTracks(w.Tracks)), nil
	case LoadTrackLoaded:
		if len(w.Tracks) == 0 {
			return protocol.LoadResult{}, fmt.Errorf("%w: %s without tracks", protocol.ErrMalformedPayload, LoadTrackLoaded)
		}
		return protocol.TrackResult(BuildTrack(w.Tracks[0])), nil
	case LoadNoMatches:
		return protocol.EmptyResult(), nil
	default:
		return protocol.LoadResult{}, fmt.Errorf("%w: %w: %q", protocol.ErrMalformedPayload, protocol.ErrUnknownLoadType, w.LoadType)
	}
}
