package ws

import (
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

// WSMessage is the envelope for every server push. Seq increases by one with
// each broadcast. A snapshot carries the seq of the last broadcast before it.
type WSMessage struct {
	Type    MessageType `json:"type"`
	Seq     uint64      `json:"seq"`
	Payload interface{} `json:"payload"`
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
