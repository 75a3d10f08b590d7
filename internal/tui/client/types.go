// Package client provides WebSocket and HTTP clients for the queuewatch
// server.
package client

import (
	"encoding/json"

	"github.com/gfnviewer/queuewatch/internal/logwatch"
	"github.com/gfnviewer/queuewatch/internal/queue"
	"github.com/gfnviewer/queuewatch/internal/state"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgQueue    MessageType = "queue"
	MsgTracking MessageType = "tracking"
	MsgHealth   MessageType = "health"
)

// WSMessage is the envelope for all WebSocket messages.
type WSMessage struct {
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

type SnapshotPayload struct {
	Status  state.Status  `json:"status"`
	History []queue.Event `json:"history"`
}

type QueuePayload struct {
	Event queue.Event `json:"event"`
	Text  string      `json:"text"`
}

type TrackingPayload struct {
	Status state.Status `json:"status"`
}

type HealthPayload struct {
	Health logwatch.HealthSnapshot `json:"health"`
}

// Identity is the caller as seen by the server.
type Identity struct {
	User string `json:"user"`
	Role string `json:"role"`
}

func (i Identity) IsAdmin() bool { return i.Role == "admin" }
