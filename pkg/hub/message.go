// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
//
// gamepi uses it to push device status and catalog changes to open pages.
package hub

import (
	"encoding/json"
	"time"
)

// Event types sent to clients.
const (
	// EventStatus carries the device status (busy/idle, last result).
	EventStatus = "status"

	// EventCatalog signals that the games directory changed.
	EventCatalog = "catalog"
)

// Event is the JSON envelope written to websocket clients.
type Event struct {
	Type   string    `json:"type"`
	Time   time.Time `json:"time"`
	Status any       `json:"status,omitempty"`
}

// Message is a pre-encoded payload queued for clients.
type Message struct {
	Data []byte
}

// NewEventMessage encodes an event into a message.
func NewEventMessage(eventType string, status any) (Message, error) {
	data, err := json.Marshal(Event{
		Type:   eventType,
		Time:   time.Now(),
		Status: status,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{Data: data}, nil
}
