package lavalink3

import (
	"encoding/json"
	"fmt"

	"github.com/danmuck/edgelink/internal/protocol"
)

// IsPlayerEnvelope reports whether body is a single-player answer carrying an
// embedded encoded track.
func IsPlayerEnvelope(body map[string]any) bool {
	guildID, _ := body["guildId"].(string)
	if guildID == "" {
		return false
	}
	track, ok := body["track"].(map[string]any)
	if !ok {
		return false
	}
	encoded, _ := track["encoded"].(string)
	return encoded != ""
}

// ConvertPlayer rebuilds the embedded track of a player envelope. Bodies that
// are not envelopes come back unchanged.
func ConvertPlayer(body map[string]any) (map[string]any, error) {
	if !IsPlayerEnvelope(body) {
		return body, nil
	}
	raw, err := json.Marshal(body["track"])
	if err != nil {
		return nil, fmt.Errorf("%w: player track: %w", protocol.ErrMalformedPayload, err)
	}
	var wire WireTrack
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: player track: %w", protocol.ErrMalformedPayload, err)
	}

	out := make(map[string]any, len(body))
	for k, v := range body {
		out[k] = v
	}
	out["track"] = BuildTrack(wire)
	return out, nil
}
