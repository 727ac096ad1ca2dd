package protocol

import (
	"encoding/json"
	"fmt"
)

// LoadType tags which LoadResult variant is populated.
type LoadType string

const (
	LoadTypeTrack    LoadType = "track"
	LoadTypePlaylist LoadType = "playlist"
	LoadTypeSearch   LoadType = "search"
	LoadTypeEmpty    LoadType = "empty"
	LoadTypeError    LoadType = "error"
)

// LoadResult is the canonical answer to a track lookup. Exactly one of Track,
// Playlist, Search, or Exception is set, matching LoadType; Empty sets none.
type LoadResult struct {
	LoadType  LoadType
	Track     *Track
	Playlist  *Playlist
	Search    []Track
	Exception *Exception
}

func TrackResult(t Track) LoadResult {
	return LoadResult{LoadType: LoadTypeTrack, Track: &t}
}

func PlaylistResult(p Playlist) LoadResult {
	return LoadResult{LoadType: LoadTypePlaylist, Playlist: &p}
}

func SearchResult(tracks []Track) LoadResult {
	if tracks == nil {
		tracks = []Track{}
	}
	return LoadResult{LoadType: LoadTypeSearch, Search: tracks}
}

func EmptyResult() LoadResult {
	return LoadResult{LoadType: LoadTypeEmpty}
}

func ErrorResult(e Exception) LoadResult {
	return LoadResult{LoadType: LoadTypeError, Exception: &e}
}

// Tracks flattens any track-bearing variant.
func (r LoadResult) Tracks() []Track {
	switch r.LoadType {
	case LoadTypeTrack:
		if r.Track != nil {
			return []Track{*r.Track}
		}
	case LoadTypePlaylist:
		if r.Playlist != nil {
			return r.Playlist.Tracks
		}
	case LoadTypeSearch:
		return r.Search
	}
	return nil
}

func (r LoadResult) Validate() error {
	populated := 0
	if r.Track != nil {
		populated++
	}
	if r.Playlist != nil {
		populated++
	}
	if r.Search != nil {
		populated++
	}
	if r.Exception != nil {
		populated++
	}

	var ok bool
	switch r.LoadType {
	case LoadTypeTrack:
		ok = r.Track != nil
	case LoadTypePlaylist:
		ok = r.Playlist != nil
	case LoadTypeSearch:
		ok = r.Search != nil
	case LoadTypeError:
		ok = r.Exception != nil
	case LoadTypeEmpty:
		return checkPopulated(r.LoadType, populated, 0)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLoadType, r.LoadType)
	}
	if !ok {
		return fmt.Errorf("%w: %s payload missing", ErrInvalidLoadResult, r.LoadType)
	}
	return checkPopulated(r.LoadType, populated, 1)
}

func checkPopulated(lt LoadType, got, want int) error {
	if got != want {
		return fmt.Errorf("%w: %s carries %d payloads", ErrInvalidLoadResult, lt, got)
	}
	return nil
}

type loadEnvelope struct {
	LoadType LoadType        `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

func (r LoadResult) MarshalJSON() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	var data any
	switch r.LoadType {
	case LoadTypeTrack:
		data = r.Track
	case LoadTypePlaylist:
		data = r.Playlist
	case LoadTypeSearch:
		data = r.Search
	case LoadTypeError:
		data = r.Exception
	case LoadTypeEmpty:
		data = struct{}{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(loadEnvelope{LoadType: r.LoadType, Data: raw})
}

func (r *LoadResult) UnmarshalJSON(b []byte) error {
	var env loadEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	out := LoadResult{LoadType: env.LoadType}
	var err error
	switch env.LoadType {
	case LoadTypeTrack:
		out.Track = &Track{}
		err = json.Unmarshal(env.Data, out.Track)
	case LoadTypePlaylist:
		out.Playlist = &Playlist{}
		err = json.Unmarshal(env.Data, out.Playlist)
	case LoadTypeSearch:
		out.Search = []Track{}
		err = json.Unmarshal(env.Data, &out.Search)
	case LoadTypeError:
		out.Exception = &Exception{}
		err = json.Unmarshal(env.Data, out.Exception)
	case LoadTypeEmpty:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLoadType, env.LoadType)
	}
	if err != nil {
		return fmt.Errorf("%w: %s data: %w", ErrMalformedPayload, env.LoadType, err)
	}
	*r = out
	return nil
}
