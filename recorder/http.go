package recorder

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/alexkolodchuk/maxigauge/generichttp"
)

type historyPayload struct {
	Timestamp []time.Time  `json:"timestamp"`
	Channels  [][]*float64 `json:"channels"`
}

// JSON has no NaN; empty measurements become null
func nanToNull(vals []float64) []*float64 {
	out := make([]*float64, len(vals))
	for i := range vals {
		if !math.IsNaN(vals[i]) {
			v := vals[i]
			out[i] = &v
		}
	}
	return out
}

// RT yields the recorder routes for binding under a node's URL stem
func (r *Recorder) RT() generichttp.RouteTable {
	return generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/history"}: r.HTTPHistory,
		{Method: http.MethodGet, Path: "/latest"}:  r.HTTPLatest,
	}
}

// HTTPHistory returns the buffered scans over HTTP as an object containing
// an array of timestamps and six arrays of values
func (r *Recorder) HTTPHistory(w http.ResponseWriter, req *http.Request) {
	times, chans := r.History()
	payload := historyPayload{Timestamp: times}
	payload.Channels = make([][]*float64, len(chans))
	for i := range chans {
		payload.Channels[i] = nanToNull(chans[i])
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HTTPLatest returns the most recent scan as a JSON array of readings, or
// 204 if the recorder has not completed a scan yet
func (r *Recorder) HTTPLatest(w http.ResponseWriter, req *http.Request) {
	last := r.Latest()
	if last == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(last)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
