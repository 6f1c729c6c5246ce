package domain

import "github.com/gorilla/websocket"

// Actions carried in the "action" attribute.
const (
	ActionAssignID           = "assignId"
	ActionServerMsg          = "serverMsg"
	ActionTestTooManyClients = "testTooManyClients"
	ActionHashChange         = "hashChange"
)

// Close codes and reasons the broker uses. Clients treat any other closure as a
// network failure.
const (
	CloseTooManyClients = websocket.ClosePolicyViolation
	CloseMessageTooLong = websocket.CloseMessageTooBig
	CloseShutdown       = websocket.CloseGoingAway

	ReasonTooManyClients = "Too many clients, try again later"
	ReasonMessageTooLong = "Message length too long"
	ReasonShutdown       = "Server shutting down"
)

// AssignID is the first frame every accepted client receives.
type AssignID struct {
	Action string `json:"action"`
	ID     int64  `json:"id"`
}

// NewAssignID builds an identity assignment for id.
func NewAssignID(id int64) AssignID {
	return AssignID{Action: ActionAssignID, ID: id}
}

// Deleted tells remaining clients that a client left.
type Deleted struct {
	Deleted int64 `json:"deleted"`
}

// ServerMsg is a human-readable informational notice. Value may contain simple markup.
type ServerMsg struct {
	Action string `json:"action"`
	Value  string `json:"value"`
}

// NewServerMsg builds an informational notice.
func NewServerMsg(value string) ServerMsg {
	return ServerMsg{Action: ActionServerMsg, Value: value}
}
