package tpg

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/alexkolodchuk/maxigauge/generichttp"

	"github.com/go-chi/chi"
)

// GaugeMonitor is the interface a TPG-like controller exposes to the HTTP
// layer and the recorder.  Controller and MockController both satisfy it.
type GaugeMonitor interface {
	// Pressure reads one channel, 1..6
	Pressure(int) (PressureReading, error)

	// Pressures reads all six channels
	Pressures() ([]PressureReading, error)

	// Identification returns the sensor identification string
	Identification() (string, error)

	// ProgramVersion returns the firmware program number
	ProgramVersion() (string, error)

	// Unit returns the pressure unit in use
	Unit() (string, error)

	// DisplayContrast returns the display contrast, 0..20
	DisplayContrast() (int, error)

	// SetDisplayContrast changes the display contrast, 0..20
	SetDisplayContrast(int) error

	// PressedKeys reports the front panel keys pressed since power on
	PressedKeys() ([5]bool, error)

	// ErrorStatus renders the controller error words as text
	ErrorStatus() (string, error)
}

// HTTPWrapper provides HTTP bindings on top of the underlying Go interface.
// The route table must be bound to a router before use.
type HTTPWrapper struct {
	// Monitor is the underlying controller that is wrapped
	Monitor GaugeMonitor

	// RouteTable maps methods and paths to handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table pre-configured
func NewHTTPWrapper(m GaugeMonitor) HTTPWrapper {
	w := HTTPWrapper{Monitor: m}
	rt := generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/pressures"}:        w.HTTPPressures,
		{Method: http.MethodGet, Path: "/pressure/{ch}"}:    w.HTTPPressure,
		{Method: http.MethodGet, Path: "/id"}:               generichttp.GetString(m.Identification),
		{Method: http.MethodGet, Path: "/version"}:          generichttp.GetString(m.ProgramVersion),
		{Method: http.MethodGet, Path: "/unit"}:             generichttp.GetString(m.Unit),
		{Method: http.MethodGet, Path: "/display-contrast"}: generichttp.GetInt(m.DisplayContrast),
		{Method: http.MethodPost, Path: "/display-contrast"}: generichttp.SetInt(
			m.SetDisplayContrast),
		{Method: http.MethodGet, Path: "/keys"}:         w.HTTPKeys,
		{Method: http.MethodGet, Path: "/error-status"}: generichttp.GetString(m.ErrorStatus),
	}
	w.RouteTable = rt
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// HTTPPressures reads all six channels and returns them as a JSON array of
// {channel, status, pressure} objects
func (h HTTPWrapper) HTTPPressures(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Monitor.Pressures()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err = json.NewEncoder(w).Encode(ps)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HTTPPressure reads a single channel plucked from the URL and returns the
// reading as JSON
func (h HTTPWrapper) HTTPPressure(w http.ResponseWriter, r *http.Request) {
	ch, err := strconv.Atoi(chi.URLParam(r, "ch"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	pr, err := h.Monitor.Pressure(ch)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err = json.NewEncoder(w).Encode(pr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HTTPKeys returns the pressed key report as a JSON array of five bools
func (h HTTPWrapper) HTTPKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.Monitor.PressedKeys()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err = json.NewEncoder(w).Encode(keys)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
