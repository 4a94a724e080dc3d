// Package cdp is a minimal client for the Chromium remote-debugging protocol.
//
// A Session owns one websocket to one debug target for the duration of one
// logical operation. Sessions are never pooled: every call opens its own,
// issues its own enablement handshakes and closes it when done.
package cdp

import "fmt"

// DebugTarget is one inspectable page reachable over a debugging socket.
// It is supplied by discovery and treated as read-only.
type DebugTarget struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	SocketEndpoint string `json:"webSocketDebuggerUrl"`
	Kind           string `json:"type"`
}

func (t DebugTarget) String() string {
	if t.ID == "" {
		return t.SocketEndpoint
	}
	return fmt.Sprintf("%s (%s)", t.ID, t.URL)
}

// IsPage reports whether the target is a page (as opposed to a worker or the browser itself).
func (t DebugTarget) IsPage() bool {
	return t.Kind == "page"
}
