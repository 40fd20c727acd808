// Package typeid issues the prefixed, k-sortable ids handed out on the wire.
package typeid

import "go.jetify.com/typeid/v2"

// ConnectionPrefix tags ids assigned to websocket connections.
const ConnectionPrefix = "conn"

// NewConnectionID returns an id such as conn_01h455vb4pex5vsknk084sn02q.
func NewConnectionID() string {
	return typeid.MustGenerate(ConnectionPrefix).String()
}
