package lavalink3

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/danmuck/edgelink/internal/protocol"
)

// NormalizeReason maps v3 end reasons (FINISHED, LOAD_FAILED, ...) onto the
// canonical tokens.
func NormalizeReason(reason string) string {
	if reason == LoadFailed {
		return protocol.ReasonLoadFailed
	}
	return strings.ToLower(reason)
}

// NormalizeFrame parses one inbound text frame and rewrites its reason.
func NormalizeFrame(raw []byte) (protocol.Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return protocol.Frame{}, fmt.Errorf("%w: frame: %w", protocol.ErrMalformedPayload, err)
	}
	if body == nil {
		return protocol.Frame{}, fmt.Errorf("%w: frame is not an object", protocol.ErrMalformedPayload)
	}
	if reason, ok := body["reason"].(string); ok && reason != "" {
		body["reason"] = NormalizeReason(reason)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return protocol.Frame{}, fmt.Errorf("%w: frame: %w", protocol.ErrMalformedPayload, err)
	}
	var frame protocol.Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return protocol.Frame{}, fmt.Errorf("%w: frame fields: %w", protocol.ErrMalformedPayload, err)
	}
	frame.Payload = payload
	return frame, nil
}
