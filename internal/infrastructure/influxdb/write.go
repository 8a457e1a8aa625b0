package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the engine.
const (
	MeasurementSceneView = "tour_scene_view"
	MeasurementDistance  = "tour_measurement"
	MeasurementStaging   = "tour_staging"
	MeasurementSessions  = "tour_sessions"
)

// WriteSceneView records that a session showed a scene, with how long the
// previous scene was on screen.
func (c *Client) WriteSceneView(tourID, sceneID, roomCategory string, dwell time.Duration) {
	c.writePoint(MeasurementSceneView,
		map[string]string{
			"tour_id":       tourID,
			"scene_id":      sceneID,
			"room_category": roomCategory,
		},
		map[string]any{
			"views":         1,
			"dwell_seconds": dwell.Seconds(),
		},
		time.Now())
}

// WriteMeasurement records a committed distance measurement.
func (c *Client) WriteMeasurement(tourID, sceneID string, meters, pixelsPerMeter float64) {
	c.writePoint(MeasurementDistance,
		map[string]string{
			"tour_id":  tourID,
			"scene_id": sceneID,
		},
		map[string]any{
			"meters":           meters,
			"pixels_per_meter": pixelsPerMeter,
		},
		time.Now())
}

// WriteStagingOutcome records the result of a virtual staging request.
func (c *Client) WriteStagingOutcome(tourID, sceneID, style string, ok bool, took time.Duration) {
	outcome := "succeeded"
	if !ok {
		outcome = "failed"
	}
	c.writePoint(MeasurementStaging,
		map[string]string{
			"tour_id":  tourID,
			"scene_id": sceneID,
			"style":    style,
			"outcome":  outcome,
		},
		map[string]any{
			"duration_ms": took.Milliseconds(),
		},
		time.Now())
}

// WriteActiveSessions records the number of open sessions.
func (c *Client) WriteActiveSessions(siteID string, count int) {
	c.writePoint(MeasurementSessions,
		map[string]string{"site_id": siteID},
		map[string]any{"active": count},
		time.Now())
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
