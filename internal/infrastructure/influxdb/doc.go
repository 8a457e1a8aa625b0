// Package influxdb records tour analytics in InfluxDB.
//
// Points written:
//   - tour_scene_view: one per scene shown, with dwell time on the previous scene
//   - tour_measurement: committed distances and the scale they were taken at
//   - tour_staging: virtual staging outcomes and latency
//   - tour_sessions: periodic count of open sessions
//
// Writes go through the client's non-blocking batch API; they are dropped
// silently while disconnected and batch failures are reported through
// SetOnError.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteSceneView(tourID, sceneID, "kitchen", 12*time.Second)
package influxdb
