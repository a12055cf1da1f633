package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSceneTransition records a published-state flip for a scene.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - sceneID: Scene identifier
//   - slug: URL-safe scene slug (tag, low cardinality)
//   - active: The new published boolean
//
// Example:
//
//	client.WriteSceneTransition("evening", "evening", true)
func (c *Client) WriteSceneTransition(sceneID, slug string, active bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"scene_transitions",
		map[string]string{
			"scene_id": sceneID,
			"slug":     slug,
		},
		map[string]interface{}{
			"active": boolField(active),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSceneCounts records a scene's per-entity match tallies.
//
// Useful for spotting scenes that hover near their activation threshold
// (one entity persistently mismatched) or degrade over time as devices
// drop offline.
//
// Parameters:
//   - sceneID: Scene identifier
//   - matched, mismatched, ignored, excluded: Current tallies
func (c *Client) WriteSceneCounts(sceneID string, matched, mismatched, ignored, excluded int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"scene_counts",
		map[string]string{
			"scene_id": sceneID,
		},
		map[string]interface{}{
			"matched":    matched,
			"mismatched": mismatched,
			"ignored":    ignored,
			"excluded":   excluded,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("engine_stats",
//	    map[string]string{"host": "scenewatch-01"},
//	    map[string]interface{}{"scenes": 12, "entities": 80})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}

// boolField stores booleans as 0/1 so they can be graphed directly.
func boolField(b bool) int {
	if b {
		return 1
	}
	return 0
}
