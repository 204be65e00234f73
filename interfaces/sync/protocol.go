// Package sync implements the collaboration protocol: per-connection
// sessions, the connection registry with scoped broadcast, and the TCP and
// WebSocket transports. Wire messages are UTF-8 JSON records tagged with a
// `type` discriminator, newline-delimited on TCP and one record per text
// frame on WebSocket.
package sync

import "mindlink/domain/board"

// Inbound message types.
const (
	TypeLogin          = "login"
	TypeJoin           = "join"
	TypeRequestAddNode = "requestAddNode"
	TypeUpdateNode     = "updateNode"
	TypeDeleteNode     = "deleteNode"
	TypeAddEdge        = "addEdge"
	TypeRemoveEdge     = "removeEdge"
)

// Outbound message types.
const (
	TypeLoginConfirmed    = "loginConfirmed"
	TypeInitialState      = "initialState"
	TypeErrorInitialState = "errorInitialState"
	TypeAdd               = "add"
	TypePeerLeft          = "peerLeft"
)

// Envelope carries only the discriminator, for dispatch before the full
// decode.
type Envelope struct {
	Type string `json:"type"`
}

// Login identifies the connection. The role is client-declared and not
// validated server-side; enforcement is intentionally out of scope here.
type Login struct {
	Type  string `json:"type"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// LoginConfirmed acknowledges a login.
type LoginConfirmed struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Join subscribes the session to a document.
type Join struct {
	Type       string `json:"type"`
	DocumentID string `json:"documentId"`
}

// InitialState pushes the full document snapshot to a joining session.
type InitialState struct {
	Type       string      `json:"type"`
	DocumentID string      `json:"documentId"`
	Document   board.Board `json:"document"`
}

// ErrorInitialState replaces InitialState when the snapshot could not be
// loaded, letting the client fall back to an offline view.
type ErrorInitialState struct {
	Type       string `json:"type"`
	DocumentID string `json:"documentId"`
	Message    string `json:"message"`
}

// RequestAddNode asks the server to create a node. The id is assigned by
// the server; the client waits for the broadcast echo rather than applying
// the node speculatively.
type RequestAddNode struct {
	Type       string `json:"type"`
	DocumentID string `json:"documentId"`
	Email      string `json:"email,omitempty"`
	Title      string `json:"title"`
	Content    string `json:"content,omitempty"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
}

// AddNode is the broadcast result of RequestAddNode, delivered to every
// member of the document including the requester.
type AddNode struct {
	Type        string `json:"type"`
	DocumentID  string `json:"documentId"`
	Email       string `json:"email,omitempty"`
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content,omitempty"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Connections []int  `json:"connections"`
}

// UpdateNode carries a whole-record node replacement. The sender has
// already applied it optimistically, so the relay excludes the sender.
type UpdateNode struct {
	Type        string `json:"type"`
	DocumentID  string `json:"documentId"`
	Email       string `json:"email,omitempty"`
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content,omitempty"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Connections []int  `json:"connections"`
}

// DeleteNode removes a node; broadcast to all members including the
// requester.
type DeleteNode struct {
	Type       string `json:"type"`
	DocumentID string `json:"documentId"`
	ID         int    `json:"id"`
}

// EdgeChange adds or removes a directed edge, per its Type; broadcast to
// all members including the requester.
type EdgeChange struct {
	Type       string `json:"type"`
	DocumentID string `json:"documentId"`
	SourceID   int    `json:"sourceId"`
	TargetID   int    `json:"targetId"`
}

// PeerLeft notifies remaining members that a session disconnected.
type PeerLeft struct {
	Type       string `json:"type"`
	Identity   string `json:"identity"`
	DocumentID string `json:"documentId"`
}
