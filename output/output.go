// Package output defines the record sinks that recorded pressure scans are
// published to.  Implementations live in the subpackages.
package output

import (
	"math"
	"time"
)

// Record is one (possibly averaged) scan of all six channels.  Channels
// without a usable measurement hold NaN.
type Record struct {
	// Time the scan was taken, or the midpoint of the averaging window
	Time time.Time

	// Pressures indexed by channel-1
	Pressures [6]float64
}

// Valid returns true if channel ch (1..6) holds a usable value
func (r Record) Valid(ch int) bool {
	return !math.IsNaN(r.Pressures[ch-1])
}

// Output is a sink for records
type Output interface {
	// Publish writes one record to the sink
	Publish(Record) error

	// Close flushes and releases the sink
	Close() error
}
