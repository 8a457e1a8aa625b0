package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// publisher is the part of Client the event adapters need.
type publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Event is the envelope for every message published on the tour bus.
type Event struct {
	Type      string    `json:"type"`
	TourID    string    `json:"tour_id"`
	SessionID string    `json:"session_id,omitempty"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// EventPublisher publishes session and catalogue events as JSON.
type EventPublisher struct {
	pub    publisher
	qos    byte
	origin string
}

// NewEventPublisher creates an EventPublisher. origin identifies this engine
// instance so it can ignore its own catalogue notifications.
func NewEventPublisher(client *Client, origin string) *EventPublisher {
	return &EventPublisher{pub: client, qos: client.DefaultQoS(), origin: origin}
}

// PublishSessionEvent publishes a session event, e.g. "scene.changed".
func (p *EventPublisher) PublishSessionEvent(tourID, sessionID, event string, payload any) error {
	return p.publish(Topics{}.SessionEvent(tourID, sessionID, event), Event{
		Type:      event,
		TourID:    tourID,
		SessionID: sessionID,
		Payload:   payload,
	})
}

// PublishTourChanged announces that a tour was created, updated or deleted.
func (p *EventPublisher) PublishTourChanged(tourID, change string) error {
	return p.publish(Topics{}.TourChanged(tourID), Event{
		Type:   "tour." + change,
		TourID: tourID,
	})
}

// Origin returns the instance identifier stamped on published events.
func (p *EventPublisher) Origin() string {
	return p.origin
}

func (p *EventPublisher) publish(topic string, ev Event) error {
	ev.Origin = p.origin
	ev.Timestamp = time.Now().UTC()
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrPublishFailed, ev.Type, err)
	}
	return p.pub.Publish(topic, data, p.qos, false)
}

// DecodeEvent parses a payload published by EventPublisher.
func DecodeEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	return ev, nil
}
