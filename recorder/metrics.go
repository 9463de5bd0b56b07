package recorder

import (
	"strconv"

	"github.com/alexkolodchuk/maxigauge/tpg"

	"github.com/prometheus/client_golang/prometheus"
)

// RegisterMetrics registers one pressure gauge per channel and a scan error
// counter with reg.  node distinguishes multiple controllers on one daemon.
func (r *Recorder) RegisterMetrics(reg prometheus.Registerer, node string) error {
	for i := 0; i < tpg.NumChannels; i++ {
		ch := i + 1
		g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "maxigauge",
			Name:      "pressure",
			Help:      "Pressure on one channel in the controller unit (mbar by default). NaN while the channel has no usable measurement.",
			ConstLabels: prometheus.Labels{
				"node":    node,
				"channel": strconv.Itoa(ch)},
		}, func() float64 { return r.latestPressure(ch) })
		if err := reg.Register(g); err != nil {
			return err
		}
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "maxigauge",
		Name:        "scan_errors_total",
		Help:        "Number of polls of the controller that failed.",
		ConstLabels: prometheus.Labels{"node": node},
	})
	if err := reg.Register(c); err != nil {
		return err
	}
	r.scanErrors = c
	return nil
}
