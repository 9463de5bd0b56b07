/*Package recorder contains the machinery for a continuous pressure recorder.

It scans all six channels of a MaxiGauge controller every <interval> and
keeps up to N scans in ring buffers to return over HTTP.  Scans are also
published to the configured sinks, either one record per scan or one
averaged record per LogEvery scans, stamped at the midpoint of the
averaging window.
*/
package recorder

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/alexkolodchuk/maxigauge/output"
	"github.com/alexkolodchuk/maxigauge/tpg"

	"github.com/brandondube/ringo"
	"github.com/prometheus/client_golang/prometheus"
)

// Poller can scan all channels of a gauge controller
type Poller interface {
	Pressures() ([]tpg.PressureReading, error)
}

// Recorder polls a controller on a ticker and fans scans out to ring
// buffers, sinks, and metrics
type Recorder struct {
	poller   Poller
	interval time.Duration
	logEvery int
	outputs  []output.Output

	mu    sync.Mutex
	times ringo.CircleTime
	chans [tpg.NumChannels]ringo.CircleF64
	last  []tpg.PressureReading

	// window holds the scans pending averaging; only touched by the
	// runner goroutine
	window []output.Record

	ticker *time.Ticker
	stop   chan struct{}
	once   sync.Once

	scanErrors prometheus.Counter
}

// New creates a new Recorder and initializes the internal machinery.
// capacity is the depth of the ring buffers.  logEvery <= 1 publishes every
// scan; larger values publish one averaged record per logEvery scans.
func New(p Poller, interval time.Duration, capacity, logEvery int, outs ...output.Output) *Recorder {
	r := &Recorder{
		poller:   p,
		interval: interval,
		logEvery: logEvery,
		outputs:  outs,
		stop:     make(chan struct{}),
	}
	r.times.Init(capacity)
	for i := range r.chans {
		r.chans[i].Init(capacity)
	}
	return r
}

// Start triggers operation of the recorder
func (r *Recorder) Start() {
	r.ticker = time.NewTicker(r.interval)
	go r.runner()
}

// Stop kills the recorder.  It is idempotent and may not be restarted.
func (r *Recorder) Stop() {
	r.once.Do(func() { close(r.stop) })
}

func (r *Recorder) runner() {
	for {
		select {
		case t := <-r.ticker.C:
			r.scan(t)
		case <-r.stop:
			r.ticker.Stop()
			return
		}
	}
}

func (r *Recorder) scan(t time.Time) {
	ps, err := r.poller.Pressures()
	if err != nil {
		log.Printf("error polling gauge controller, %q\n", err)
		if r.scanErrors != nil {
			r.scanErrors.Inc()
		}
		return
	}
	var vals [tpg.NumChannels]float64
	for i, pr := range ps {
		if pr.Status.Usable() {
			vals[i] = pr.Pressure
		} else {
			vals[i] = math.NaN()
		}
	}
	r.mu.Lock()
	r.times.Append(t)
	for i := range r.chans {
		r.chans[i].Append(vals[i])
	}
	r.last = ps
	r.mu.Unlock()

	rec := output.Record{Time: t, Pressures: vals}
	if r.logEvery <= 1 {
		r.publish(rec)
		return
	}
	r.window = append(r.window, rec)
	if len(r.window) == r.logEvery {
		r.publish(averageWindow(r.window))
		r.window = r.window[:0]
	}
}

func (r *Recorder) publish(rec output.Record) {
	for _, out := range r.outputs {
		err := out.Publish(rec)
		if err != nil {
			log.Printf("error publishing record, %q\n", err)
		}
	}
}

// averageWindow reduces a window of scans to one record holding the
// per-channel means, stamped at the midpoint of the window.  A NaN anywhere
// in a channel makes the mean NaN, an incomplete channel is an incomplete
// measurement.
func averageWindow(window []output.Record) output.Record {
	out := output.Record{Time: window[len(window)/2].Time}
	for i := range out.Pressures {
		sum := 0.
		for _, rec := range window {
			sum += rec.Pressures[i]
		}
		out.Pressures[i] = sum / float64(len(window))
	}
	return out
}

// Latest returns a copy of the most recent scan, or nil if none has
// completed yet
func (r *Recorder) Latest() []tpg.PressureReading {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	out := make([]tpg.PressureReading, len(r.last))
	copy(out, r.last)
	return out
}

func (r *Recorder) latestPressure(ch int) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return math.NaN()
	}
	pr := r.last[ch-1]
	if !pr.Status.Usable() {
		return math.NaN()
	}
	return pr.Pressure
}

// History returns copies of the buffered timestamps and per-channel values,
// least to most recent
func (r *Recorder) History() ([]time.Time, [tpg.NumChannels][]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	times := r.times.Contiguous()
	var chans [tpg.NumChannels][]float64
	for i := range r.chans {
		chans[i] = r.chans[i].Contiguous()
	}
	return times, chans
}
