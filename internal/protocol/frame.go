package protocol

import "encoding/json"

const (
	OpReady        = "ready"
	OpPlayerUpdate = "playerUpdate"
	OpStats        = "stats"
	OpEvent        = "event"
)

// Canonical track end reasons.
const (
	ReasonFinished   = "finished"
	ReasonLoadFailed = "loadFailed"
	ReasonStopped    = "stopped"
	ReasonReplaced   = "replaced"
	ReasonCleanup    = "cleanup"
)

// Frame is one normalized inbound websocket message. Payload holds the whole
// normalized JSON object; the typed fields are lifted for routing.
type Frame struct {
	Op        string          `json:"op"`
	GuildID   string          `json:"guildId,omitempty"`
	Type      string          `json:"type,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Resumed   bool            `json:"resumed,omitempty"`
	Payload   json.RawMessage `json:"-"`
}
