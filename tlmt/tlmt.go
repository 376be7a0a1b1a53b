// Package tlmt defines the telemetry boundary. Events identify the
// integration, never the token material.
package tlmt

import (
	"context"
)

type Event struct {
	DistinctID string
	Name       string
	Properties map[string]any
}

// NewEvent builds an event keyed by the owning user id.
func NewEvent(userID, name string, props map[string]any) Event {
	ev := Event{
		DistinctID: userID,
		Name:       name,
		Properties: make(map[string]any, len(props)),
	}

	for k, v := range props {
		ev.Properties[k] = v
	}

	return ev
}

type Telemetry interface {
	Send(ctx context.Context, event Event) error
	Close() error
}
