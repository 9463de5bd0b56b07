package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/alexkolodchuk/maxigauge/generichttp"
	"github.com/alexkolodchuk/maxigauge/generichttp/ascii"
	"github.com/alexkolodchuk/maxigauge/output"
	"github.com/alexkolodchuk/maxigauge/output/console"
	"github.com/alexkolodchuk/maxigauge/output/logfile"
	"github.com/alexkolodchuk/maxigauge/output/mqtt"
	"github.com/alexkolodchuk/maxigauge/recorder"
	"github.com/alexkolodchuk/maxigauge/server/middleware/locker"
	"github.com/alexkolodchuk/maxigauge/tpg"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RecorderSetup configures continuous polling for one node
type RecorderSetup struct {
	// Interval between scans, e.g. "1s"
	Interval string `koanf:"interval" yaml:"Interval"`

	// Capacity is the number of scans held in the ring buffers
	Capacity int `koanf:"capacity" yaml:"Capacity"`

	// LogEvery averages this many scans per published record; 0 or 1
	// publishes every scan
	LogEvery int `koanf:"logevery" yaml:"LogEvery"`

	// Logfile is a path to append records to, empty disables the sink
	Logfile string `koanf:"logfile" yaml:"Logfile"`

	// Console prints records to stdout
	Console bool `koanf:"console" yaml:"Console"`

	// MQTT publishes records to a broker when non-nil
	MQTT *mqtt.Config `koanf:"mqtt" yaml:"MQTT,omitempty"`
}

// NodeSetup holds the args for one controller
type NodeSetup struct {
	// Name labels the node in metrics; defaults to the endpoint
	Name string `koanf:"name" yaml:"Name"`

	// Addr holds the filesystem or network address of the controller,
	// e.g. /dev/ttyUSB0 for RS232 or 192.168.100.187:2113 for a device
	// connected to port 13 on a digi portserver
	Addr string `koanf:"addr" yaml:"Addr"`

	// Endpoint is the URL stem the routes from this node are served on,
	// ex. Endpoint="/dst/tpg" produces routes of /dst/tpg/pressures, etc.
	Endpoint string `koanf:"endpoint" yaml:"Endpoint"`

	// Serial determines if the connection is serial/RS232 (true) or TCP (false)
	Serial bool `koanf:"serial" yaml:"Serial"`

	// Recorder enables continuous polling of this node when non-nil
	Recorder *RecorderSetup `koanf:"recorder" yaml:"Recorder,omitempty"`
}

// Config is a struct that holds the initialization parameters for the
// daemon.  It is populated from the yaml config file.
type Config struct {
	// Addr is the address to listen at
	Addr string `koanf:"addr" yaml:"Addr"`

	// Mock substitutes simulated controllers for all nodes
	Mock bool `koanf:"mock" yaml:"Mock"`

	// Nodes is the list of controllers to set up
	Nodes []NodeSetup `koanf:"nodes" yaml:"Nodes"`
}

func buildOutputs(rs *RecorderSetup) ([]output.Output, error) {
	var outs []output.Output
	if rs.Logfile != "" {
		lf, err := logfile.New(rs.Logfile)
		if err != nil {
			return nil, err
		}
		outs = append(outs, lf)
	}
	if rs.Console {
		outs = append(outs, console.New())
	}
	if rs.MQTT != nil {
		mq, err := mqtt.New(*rs.MQTT)
		if err != nil {
			return nil, err
		}
		outs = append(outs, mq)
	}
	return outs, nil
}

// BuildMux constructs a chi router with a submux per node and returns it
// along with a cleanup function that stops the recorders and closes their
// sinks.
func BuildMux(c Config) (chi.Router, func(), error) {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}
	var cleanups []func()
	cleanup := func() {
		for _, f := range cleanups {
			f()
		}
	}

	for _, node := range c.Nodes {
		var mon tpg.GaugeMonitor
		if c.Mock {
			mon = tpg.NewMockController(node.Addr, node.Serial)
		} else {
			mon = tpg.NewController(node.Addr, node.Serial)
		}
		httper := tpg.NewHTTPWrapper(mon)
		if raw, ok := mon.(ascii.RawCommunicator); ok {
			ascii.InjectRawComm(httper.RT(), raw)
		}

		name := node.Name
		if name == "" {
			name = node.Endpoint
		}

		if node.Recorder != nil {
			rs := node.Recorder
			interval, err := time.ParseDuration(rs.Interval)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("node %s: bad recorder interval: %w", name, err)
			}
			capacity := rs.Capacity
			if capacity == 0 {
				capacity = 3600
			}
			outs, err := buildOutputs(rs)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("node %s: %w", name, err)
			}
			rec := recorder.New(mon, interval, capacity, rs.LogEvery, outs...)
			err = rec.RegisterMetrics(prometheus.DefaultRegisterer, name)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("node %s: %w", name, err)
			}
			for mp, handler := range rec.RT() {
				httper.RouteTable[mp] = handler
			}
			rec.Start()
			cleanups = append(cleanups, func() {
				rec.Stop()
				for _, out := range outs {
					out.Close()
				}
			})
		}

		lock := locker.New()
		locker.Inject(httper, lock)

		// prepare the URL, "dst/tpg" => "/dst/tpg"
		hndlS := generichttp.SubMuxSanitize(node.Endpoint)
		supergraph[hndlS] = httper.RT().Endpoints()

		r := chi.NewRouter()
		r.Use(lock.Check)
		httper.RT().Bind(r)
		root.Mount(hndlS, r)
	}

	root.Handle("/metrics", promhttp.Handler())
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root, cleanup, nil
}
