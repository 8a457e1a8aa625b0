package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every topic the engine publishes.
const TopicPrefix = "tourengine"

// Topics builds tour engine topic names.
//
//	topics := mqtt.Topics{}
//	topics.SessionEvent("tour-1", "sess-9", "scene.changed")
//	// tourengine/tour/tour-1/session/sess-9/scene.changed
type Topics struct{}

// SessionEvent is where a session publishes its events.
func (Topics) SessionEvent(tourID, sessionID, event string) string {
	return fmt.Sprintf("%s/tour/%s/session/%s/%s", TopicPrefix, tourID, sessionID, event)
}

// TourChanged is published when a tour is created, updated or deleted so
// other engine instances can refresh their catalogue cache.
func (Topics) TourChanged(tourID string) string {
	return fmt.Sprintf("%s/tour/%s/changed", TopicPrefix, tourID)
}

// SystemStatus carries the retained online/offline status and the LWT.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AllTourChanges matches every TourChanged topic.
func (Topics) AllTourChanges() string {
	return TopicPrefix + "/tour/+/changed"
}

// AllSessionEvents matches every session event of one tour.
func (Topics) AllSessionEvents(tourID string) string {
	return fmt.Sprintf("%s/tour/%s/session/+/+", TopicPrefix, tourID)
}

// ParseTourChanged extracts the tour id from a TourChanged topic.
func ParseTourChanged(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "tour" || parts[3] != "changed" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}
