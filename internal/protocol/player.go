package protocol

// VoiceState is the voice server handoff forwarded to the node.
type VoiceState struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

// PlayerUpdate builds the canonical update body. Track is sent nested as
// {"track":{"encoded":...}}; legacy drivers lift it before sending.
type PlayerUpdate struct {
	// Track set with a nil Encoded stops playback.
	Track    *UpdateTrack
	Position *int64
	EndTime  *int64
	Volume   *int
	Paused   *bool
	Filters  map[string]any
	Voice    *VoiceState
}

type UpdateTrack struct {
	Encoded *string
}

func (u PlayerUpdate) Body() map[string]any {
	body := map[string]any{}
	if u.Track != nil {
		var encoded any
		if u.Track.Encoded != nil {
			encoded = *u.Track.Encoded
		}
		body["track"] = map[string]any{"encoded": encoded}
	}
	if u.Position != nil {
		body["position"] = *u.Position
	}
	if u.EndTime != nil {
		body["endTime"] = *u.EndTime
	}
	if u.Volume != nil {
		body["volume"] = *u.Volume
	}
	if u.Paused != nil {
		body["paused"] = *u.Paused
	}
	if u.Filters != nil {
		body["filters"] = u.Filters
	}
	if u.Voice != nil {
		body["voice"] = u.Voice
	}
	return body
}

type PlayerStatus struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
	Ping      int   `json:"ping"`
}

type PlayerState struct {
	GuildID string         `json:"guildId"`
	Track   *Track         `json:"track"`
	Volume  int            `json:"volume"`
	Paused  bool           `json:"paused"`
	State   PlayerStatus   `json:"state"`
	Voice   VoiceState     `json:"voice"`
	Filters map[string]any `json:"filters,omitempty"`
}

type NodeVersion struct {
	Semver     string  `json:"semver"`
	Major      int     `json:"major"`
	Minor      int     `json:"minor"`
	Patch      int     `json:"patch"`
	PreRelease *string `json:"preRelease"`
}

type NodeGit struct {
	Branch     string `json:"branch"`
	Commit     string `json:"commit"`
	CommitTime int64  `json:"commitTime"`
}

type NodePlugin struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type NodeInfo struct {
	Version        NodeVersion  `json:"version"`
	BuildTime      int64        `json:"buildTime"`
	Git            NodeGit      `json:"git"`
	JVM            string       `json:"jvm"`
	Lavaplayer     string       `json:"lavaplayer"`
	SourceManagers []string     `json:"sourceManagers"`
	Filters        []string     `json:"filters"`
	Plugins        []NodePlugin `json:"plugins"`
}

type NodeMemory struct {
	Free       int64 `json:"free"`
	Used       int64 `json:"used"`
	Allocated  int64 `json:"allocated"`
	Reservable int64 `json:"reservable"`
}

type NodeCPU struct {
	Cores        int     `json:"cores"`
	SystemLoad   float64 `json:"systemLoad"`
	LavalinkLoad float64 `json:"lavalinkLoad"`
}

type FrameStats struct {
	Sent    int `json:"sent"`
	Nulled  int `json:"nulled"`
	Deficit int `json:"deficit"`
}

type NodeStats struct {
	Players        int         `json:"players"`
	PlayingPlayers int         `json:"playingPlayers"`
	Uptime         int64       `json:"uptime"`
	Memory         NodeMemory  `json:"memory"`
	CPU            NodeCPU     `json:"cpu"`
	FrameStats     *FrameStats `json:"frameStats"`
}
