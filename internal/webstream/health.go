package webstream

import (
	"encoding/json"
	"net/http"

	"github.com/camkit/mjpeg-streamer/internal/framesink"
	"github.com/camkit/mjpeg-streamer/internal/metrics"
)

// HealthHandler reports liveness and basic stream stats as JSON. It is
// served on the metrics listener, off the main routing table.
func HealthHandler(hub *framesink.Hub, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":           "ok",
			"active_clients":   hub.Active(),
			"frames_published": m.FramesPublished.Load(),
		})
	}
}
