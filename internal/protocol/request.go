package protocol

import (
	"net/url"
	"strings"
)

// SessionPlaceholder is substituted with the live session id in
// Request.Path when UseSessionID is set.
const SessionPlaceholder = "{sessionId}"

// Request describes one REST call. It is owned by the in-flight call and
// discarded once the driver answers.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Headers map[string]string
	// UseSessionID fails the call with ErrSessionNotReady when no session
	// id is known instead of sending a malformed path.
	UseSessionID bool
}

func (r Request) ResolvePath(sessionID string) string {
	return strings.ReplaceAll(r.Path, SessionPlaceholder, url.PathEscape(sessionID))
}

// Target is the path plus encoded query, used in diagnostics.
func (r Request) Target(path string) string {
	if len(r.Query) == 0 {
		return path
	}
	return path + "?" + r.Query.Encode()
}
