package types

import "github.com/ethereum/go-ethereum/common"

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Address    common.Address    `json:"address"`
	Attributes map[string]string `json:"attributes"`
}

// EventType satisfies the events.Event interface.
func (e *Event) EventType() string {
	if e == nil {
		return ""
	}
	return e.Type
}

// Clone returns a deep copy so subscribers cannot mutate the recorded log.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	attrs := make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	return &Event{Type: e.Type, Address: e.Address, Attributes: attrs}
}
