// Package orsay provides a simulated Orsay camera for use without hardware.
//
// The simulated detector images a PINEM spectrum: a zero-loss peak flanked
// by sidebands at multiples of the photon energy, the n-th sideband having
// weight J_n(2|g|)^2.  In Camera mode every row of a frame carries the same
// spectrum.  In SPIM mode a raster of SpimX by SpimY positions is swept,
// one spectrum per acquisition, with g falling off from the center of the
// raster.
package orsay

import (
	"context"
	"math"
	"math/rand"

	"github.com/iumi/pinem/camera"
)

// Physics are the parameters of the simulated spectrum
type Physics struct {
	// G is the peak coupling strength
	G float64 `yaml:"G" koanf:"G"`

	// Spacing is the photon energy in pixels.  Zero means Nx/16.
	Spacing float64 `yaml:"Spacing" koanf:"Spacing"`

	// Width is the standard deviation of each peak in pixels.  Zero means Spacing/4.
	Width float64 `yaml:"Width" koanf:"Width"`

	// Counts is the integrated intensity of one spectrum
	Counts float64 `yaml:"Counts" koanf:"Counts"`

	// Noise is the standard deviation of additive gaussian noise, in counts
	Noise float64 `yaml:"Noise" koanf:"Noise"`
}

// Mock is a simulated Orsay camera.  It implements camera.Source and
// camera.Initializer.  It is not safe for concurrent use.
type Mock struct {
	settings camera.Settings
	phys     Physics
	flags    camera.Flags

	frame    []float64
	spim     []float64
	spectrum []float64

	// pos is the index of the next SPIM position
	pos int

	rng         *rand.Rand
	initialized bool
}

// NewMock returns a new simulated camera.  seed seeds the noise generator.
func NewMock(s camera.Settings, p Physics, seed int64) *Mock {
	return &Mock{settings: s, phys: p, rng: rand.New(rand.NewSource(seed))}
}

// Initialize validates the settings and allocates the buffers
func (m *Mock) Initialize() error {
	if err := m.settings.Validate(); err != nil {
		return err
	}
	m.alloc()
	m.initialized = true
	return nil
}

// Finalize releases the buffers
func (m *Mock) Finalize() error {
	m.frame, m.spim, m.spectrum = nil, nil, nil
	m.flags = camera.Flags{}
	m.initialized = false
	return nil
}

func (m *Mock) alloc() {
	s := m.settings
	m.frame = make([]float64, s.Nx*s.Ny)
	m.spim = make([]float64, s.Nx*s.SpimY*s.SpimX)
	m.spectrum = make([]float64, s.Nx)
	m.flags = camera.Flags{}
	m.pos = 0
}

// Settings implements camera.Source
func (m *Mock) Settings() camera.Settings {
	return m.settings
}

// SetSettings validates and applies new settings.  Buffers are reallocated
// and any SPIM sweep in progress is abandoned.
func (m *Mock) SetSettings(s camera.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.settings = s
	if m.initialized {
		m.alloc()
	}
	return nil
}

// Physics returns the simulation parameters
func (m *Mock) Physics() Physics {
	return m.phys
}

// SetPhysics replaces the simulation parameters
func (m *Mock) SetPhysics(p Physics) {
	m.phys = p
}

// Flags implements camera.Source
func (m *Mock) Flags() camera.Flags {
	return m.flags
}

// ClearSpectrumDone implements camera.Source
func (m *Mock) ClearSpectrumDone() {
	m.flags.SpectrumDone = false
}

// ClearSPIMDone implements camera.Source
func (m *Mock) ClearSPIMDone() {
	m.flags.SPIMDone = false
}

// Frame implements camera.Source
func (m *Mock) Frame() []float64 {
	return m.frame
}

// SPIM implements camera.Source
func (m *Mock) SPIM() []float64 {
	return m.spim
}

// Spectrum implements camera.Source
func (m *Mock) Spectrum() []float64 {
	return m.spectrum
}

// Acquire simulates one readout.  In Camera mode a full frame is produced
// and CameraDone is set.  In SPIM mode the spectrum at the next raster
// position is produced and SpectrumDone is set; SPIMDone is set on the
// last position of the sweep, and the following acquisition starts a new
// sweep.
func (m *Mock) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.initialized {
		if err := m.Initialize(); err != nil {
			return err
		}
	}
	s := m.settings
	if s.Mode == camera.ModeCamera {
		line := Spectrum(s.Nx, m.phys.G, m.phys)
		for row := 0; row < s.Ny; row++ {
			for col := 0; col < s.Nx; col++ {
				m.frame[row*s.Nx+col] = m.noisy(line[col])
			}
		}
		m.flags.CameraDone = true
		return nil
	}

	npos := s.SpimX * s.SpimY
	if m.pos >= npos {
		m.pos = 0
		for i := range m.spim {
			m.spim[i] = 0
		}
	}
	y, x := m.pos/s.SpimX, m.pos%s.SpimX
	g := m.phys.G * RasterProfile(x, y, s.SpimX, s.SpimY)
	line := Spectrum(s.Nx, g, m.phys)
	plane := s.SpimY * s.SpimX
	for e := 0; e < s.Nx; e++ {
		v := m.noisy(line[e])
		m.spectrum[e] = v
		m.spim[e*plane+y*s.SpimX+x] = v
	}
	m.pos++
	m.flags.SpectrumDone = true
	m.flags.SPIMDone = m.pos == npos
	return nil
}

func (m *Mock) noisy(v float64) float64 {
	if m.phys.Noise == 0 {
		return v
	}
	return v + m.rng.NormFloat64()*m.phys.Noise
}

// RasterProfile is the relative coupling strength at position (x, y) of a
// w by h raster: a gaussian centered on the raster, one at the center.
func RasterProfile(x, y, w, h int) float64 {
	cx, cy := float64(w-1)/2, float64(h-1)/2
	sx, sy := math.Max(float64(w)/4, 0.5), math.Max(float64(h)/4, 0.5)
	dx, dy := (float64(x)-cx)/sx, (float64(y)-cy)/sy
	return math.Exp(-(dx*dx + dy*dy) / 2)
}

// Spectrum returns an n pixel PINEM spectrum for coupling strength g,
// without noise.  The zero-loss peak sits at pixel n/2.
func Spectrum(n int, g float64, p Physics) []float64 {
	spacing := p.Spacing
	if spacing == 0 {
		spacing = math.Max(float64(n)/16, 1)
	}
	width := p.Width
	if width == 0 {
		width = spacing / 4
	}
	counts := p.Counts
	if counts == 0 {
		counts = 1
	}
	center := float64(n / 2)
	order := int(math.Ceil(float64(n) / 2 / spacing))
	out := make([]float64, n)
	norm := counts / (width * math.Sqrt(2*math.Pi))
	for k := -order; k <= order; k++ {
		j := math.Jn(k, 2*math.Abs(g))
		weight := j * j
		if weight < 1e-12 {
			continue
		}
		mu := center + float64(k)*spacing
		for i := range out {
			d := (float64(i) - mu) / width
			out[i] += weight * norm * math.Exp(-d*d/2)
		}
	}
	return out
}
