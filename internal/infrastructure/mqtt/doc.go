// Package mqtt connects the tour engine to an MQTT broker.
//
// Sessions publish their events (scene changes, measurements, staging
// outcomes) under tourengine/tour/{tourId}/session/{sessionId}/{event}.
// Catalogue edits are announced on tourengine/tour/{tourId}/changed so every
// engine instance behind a load balancer can refresh its tour cache. The
// engine's availability is published retained on tourengine/system/status,
// with a Last Will covering unclean exits.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	events := mqtt.NewEventPublisher(client, cfg.Site.ID)
//	events.PublishSessionEvent(tourID, sessionID, "scene.changed", view)
//
// Publish rejects empty topics, QoS above 2 and payloads over 1MB.
package mqtt
