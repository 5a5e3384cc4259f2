// Package collab shares one settings document between several clients.
// The Hub relays partial patches between the peers of a session over
// server-sent events; the Client is the dashboard side of that channel.
package collab

import (
	"encoding/json"
	"time"

	"bandaid/settings"
)

type MessageType string

const (
	// Snapshot carries the union of every patch so far, sent first to a
	// peer that joins late
	Snapshot MessageType = "snapshot"
	Update   MessageType = "patch"
	Join     MessageType = "join"
	Leave    MessageType = "leave"
)

// Message is one event on a session stream
type Message struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId"`
	PeerID    string          `json:"peerId,omitempty"`
	Patch     *settings.Patch `json:"patch,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

func newMessage(typ MessageType, session, peer string, p *settings.Patch) Message {
	return Message{
		Type:      typ,
		SessionID: session,
		PeerID:    peer,
		Patch:     p,
		Timestamp: time.Now().Unix(),
	}
}

func (m Message) encode() []byte {
	b, _ := json.Marshal(m)
	return b
}
