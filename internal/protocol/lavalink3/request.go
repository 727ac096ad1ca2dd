package lavalink3

import (
	"bytes"
	"encoding/json"
)

// ConvertRequest rewrites a canonical request body for the v3 wire. A nested
// {"track":{"encoded":X}} becomes a top-level "encodedTrack":X; v3 rejects
// nested track payloads on player updates. Typed bodies are inspected through
// their JSON form. The input is not modified, and bodies without a nested
// encoded track come back as given.
func ConvertRequest(body any) any {
	data, ok := asObject(body)
	if !ok {
		return body
	}
	track, ok := data["track"].(map[string]any)
	if !ok {
		return body
	}
	encoded, ok := track["encoded"]
	if !ok {
		return body
	}

	out := make(map[string]any, len(data))
	for k, v := range data {
		if k == "track" {
			continue
		}
		out[k] = v
	}
	out["encodedTrack"] = encoded
	return out
}

// asObject views body as a JSON object. map[string]any bodies whose track is
// already a map[string]any are used directly; anything else goes through a
// JSON round trip with numbers kept verbatim.
func asObject(body any) (map[string]any, bool) {
	if body == nil {
		return nil, false
	}
	if m, ok := body.(map[string]any); ok {
		switch m["track"].(type) {
		case nil, map[string]any:
			return m, true
		}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, false
	}
	return m, true
}
