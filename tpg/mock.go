package tpg

import (
	"math"
	"math/rand"
	"sync"
)

// MockController simulates a TPG 256A for development without hardware.
// Channels 1 and 2 random walk around a high vacuum pressure, channel 3 is
// switched off, the rest have no sensor attached.
type MockController struct {
	sync.Mutex
	pressures [NumChannels]float64
	statuses  [NumChannels]Status
	contrast  int
}

// NewMockController returns a mock with plausible initial state.  The
// arguments are accepted for signature compatibility with NewController
// and ignored.
func NewMockController(addr string, connectSerial bool) *MockController {
	m := &MockController{contrast: 10}
	m.pressures = [NumChannels]float64{7.2e-6, 4.4e-5, 0, 0, 0, 0}
	m.statuses = [NumChannels]Status{
		StatusOK, StatusOK, StatusSensorOff,
		StatusNoSensor, StatusNoSensor, StatusNoSensor}
	return m
}

func (m *MockController) walk(i int) {
	// multiplicative walk, pressure lives on a log scale
	m.pressures[i] *= math.Pow(1.05, rand.Float64()*2-1)
}

// Pressure reads one mock channel
func (m *MockController) Pressure(channel int) (PressureReading, error) {
	if channel < 1 || channel > NumChannels {
		return PressureReading{}, errBadChannel(channel)
	}
	m.Lock()
	defer m.Unlock()
	i := channel - 1
	if m.statuses[i] == StatusOK {
		m.walk(i)
	}
	return PressureReading{Channel: channel, Status: m.statuses[i], Pressure: m.pressures[i]}, nil
}

// Pressures reads all six mock channels
func (m *MockController) Pressures() ([]PressureReading, error) {
	out := make([]PressureReading, NumChannels)
	for i := 0; i < NumChannels; i++ {
		pr, err := m.Pressure(i + 1)
		if err != nil {
			return out, err
		}
		out[i] = pr
	}
	return out, nil
}

// Identification mimics a controller with two compact gauges attached
func (m *MockController) Identification() (string, error) {
	return "PKR,PKR,noSENSOR,noSENSOR,noSENSOR,noSENSOR", nil
}

// ProgramVersion mimics a recent firmware
func (m *MockController) ProgramVersion() (string, error) {
	return "010100", nil
}

// Unit always reports mbar
func (m *MockController) Unit() (string, error) {
	return "mbar", nil
}

// DisplayContrast returns the stored contrast
func (m *MockController) DisplayContrast() (int, error) {
	m.Lock()
	defer m.Unlock()
	return m.contrast, nil
}

// SetDisplayContrast stores a new contrast
func (m *MockController) SetDisplayContrast(contrast int) error {
	if contrast < 0 || contrast > 20 {
		return errBadContrast(contrast)
	}
	m.Lock()
	defer m.Unlock()
	m.contrast = contrast
	return nil
}

// PressedKeys reports that no keys have been pressed
func (m *MockController) PressedKeys() ([5]bool, error) {
	return [5]bool{}, nil
}

// ErrorStatus reports a healthy controller
func (m *MockController) ErrorStatus() (string, error) {
	return "No error", nil
}
