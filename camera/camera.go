/*Package camera describes the acquisition side of an Orsay camera viewer.

Source is the narrow set of capabilities the frame router reads from a
detector: its settings, its completion flags, and the buffers the driver
fills.  Settings is the typed form of the viewer's configuration tree.

*/
package camera

import (
	"errors"
	"fmt"
)

// Mode is the acquisition mode of the detector
type Mode string

const (
	// ModeCamera acquires full frames which are summed and passed to the predictor
	ModeCamera Mode = "Camera"

	// ModeSPIM acquires a spectral image, one spectrum per scan position
	ModeSPIM Mode = "SPIM"
)

var (
	// ErrBadMode is returned when the mode is neither Camera nor SPIM
	ErrBadMode = errors.New("camera mode must be Camera or SPIM")
)

// ErrBadDimension is returned when a dimension setting is not positive
type ErrBadDimension struct {
	// Name is the name of the setting
	Name string

	// Value is the rejected value
	Value int
}

func (e ErrBadDimension) Error() string {
	return fmt.Sprintf("%s must be at least 1, got %d", e.Name, e.Value)
}

// Settings holds the mode and dimension settings of the viewer
type Settings struct {
	// Model is the camera model, used to name the image record
	Model string `json:"model" yaml:"Model" koanf:"Model"`

	// Mode is the acquisition mode
	Mode Mode `json:"mode" yaml:"Mode" koanf:"Mode"`

	// Nx is the number of pixels along the energy (X) axis
	Nx int `json:"nx" yaml:"Nx" koanf:"Nx"`

	// Ny is the number of pixels along the Y axis
	Ny int `json:"ny" yaml:"Ny" koanf:"Ny"`

	// SpimX is the number of scan positions along X in SPIM mode
	SpimX int `json:"spimX" yaml:"SpimX" koanf:"SpimX"`

	// SpimY is the number of scan positions along Y in SPIM mode
	SpimY int `json:"spimY" yaml:"SpimY" koanf:"SpimY"`
}

// Validate checks that the settings are usable.  It is called at the
// boundary: when the viewer is initialized and whenever the settings change.
func (s Settings) Validate() error {
	switch s.Mode {
	case ModeCamera, ModeSPIM:
	default:
		return ErrBadMode
	}
	dims := []struct {
		name string
		v    int
	}{{"Nx", s.Nx}, {"Ny", s.Ny}, {"SpimX", s.SpimX}, {"SpimY", s.SpimY}}
	for _, d := range dims {
		if d.v < 1 {
			return ErrBadDimension{Name: d.name, Value: d.v}
		}
	}
	return nil
}

// Flags are the completion flags set by the driver when a buffer is ready
type Flags struct {
	// CameraDone is true when the frame buffer holds a complete frame
	CameraDone bool `json:"cameraDone"`

	// SpectrumDone is true when a new spectrum has been accumulated
	SpectrumDone bool `json:"spectrumDone"`

	// SPIMDone is true when the last spectrum of a SPIM sweep has been accumulated
	SPIMDone bool `json:"spimDone"`
}

// Source describes a detector from the point of view of the frame router.
//
// Implementations own the buffers and flags; the router only reads them
// and clears the two SPIM flags after consuming a spectrum.  Nothing here
// is safe for concurrent use, callers must not route concurrently with
// acquisition.
type Source interface {
	// Settings returns the current settings
	Settings() Settings

	// Flags returns the completion flags
	Flags() Flags

	// ClearSpectrumDone sets SpectrumDone to false
	ClearSpectrumDone()

	// ClearSPIMDone sets SPIMDone to false
	ClearSPIMDone()

	// Frame returns the flat camera buffer, strided by Nx
	Frame() []float64

	// SPIM returns the flat spectral image buffer of Nx*SpimY*SpimX elements
	SPIM() []float64

	// Spectrum returns the most recently accumulated spectrum
	Spectrum() []float64
}

// Initializer is a Source that must be brought up before use
type Initializer interface {
	// Initialize initializes the detector.  This may allocate buffers
	// and start the driver.
	Initialize() error

	// Finalize releases the detector
	Finalize() error
}
