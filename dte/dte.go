// Package dte holds the records a viewer hands to its display:
// named arrays with axis metadata, bundled into exports.
package dte

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/iumi/pinem/nd"
)

// Dim is the dimensionality tag of a record
type Dim string

const (
	// Data0D is a scalar record
	Data0D Dim = "Data0D"

	// Data1D is a curve
	Data1D Dim = "Data1D"

	// Data2D is an image
	Data2D Dim = "Data2D"

	// DataND is anything with more than two dimensions
	DataND Dim = "DataND"
)

// DimOf infers the tag from the number of dimensions of an array
func DimOf(a nd.Array) Dim {
	switch a.Ndim() {
	case 0:
		return Data0D
	case 1:
		if a.Size() == 1 {
			return Data0D
		}
		return Data1D
	case 2:
		return Data2D
	default:
		return DataND
	}
}

// Axis describes one axis of a record
type Axis struct {
	// Label is the name of the axis
	Label string `json:"label"`

	// Units of Data
	Units string `json:"units"`

	// Index is the position of the axis in the data's shape
	Index int `json:"index"`

	// Data holds the coordinate of each sample along the axis
	Data []float64 `json:"data"`
}

// PixelAxis returns an axis of pixel indices 0..n-1
func PixelAxis(label string, n, index int) Axis {
	d := make([]float64, n)
	for i := range d {
		d[i] = float64(i)
	}
	return Axis{Label: label, Units: "pixels", Index: index, Data: d}
}

// Record is one named piece of data handed to the display
type Record struct {
	// Name of the record
	Name string `json:"name"`

	// Dim is the dimensionality tag
	Dim Dim `json:"dim"`

	// Labels name each array in Data
	Labels []string `json:"labels,omitempty"`

	// Data holds one or more arrays of the same shape
	Data []nd.Array `json:"data"`

	// Axes describe the axes of the arrays, may be empty
	Axes []Axis `json:"axes,omitempty"`
}

// Export is a bundle of records emitted together
type Export struct {
	// ID uniquely identifies the export
	ID uuid.UUID `json:"id"`

	// Name is the origin of the data, e.g. OrsayCamera
	Name string `json:"name"`

	// Time is when the export was built
	Time time.Time `json:"time"`

	// Records are the contents
	Records []Record `json:"records"`
}

// NewExport builds an export stamped with a fresh ID and the current time
func NewExport(name string, records ...Record) Export {
	return Export{ID: uuid.New(), Name: name, Time: time.Now(), Records: records}
}

// Get returns the first record with the given name
func (e Export) Get(name string) (Record, bool) {
	for _, r := range e.Records {
		if r.Name == name {
			return r, true
		}
	}
	return Record{}, false
}

// Emitter is the display side of a viewer.  Temp receives partial updates,
// Final receives completed data.  Status receives human readable reports.
type Emitter interface {
	Temp(Export)
	Final(Export)
	Status(string)
}

// Multi fans every call out to each of its members in order.  A member
// that panics is logged and skipped; the members after it are still called.
type Multi []Emitter

func (m Multi) each(call string, f func(Emitter)) {
	for _, em := range m {
		func() {
			defer func() {
				if p := recover(); p != nil {
					log.Printf("dte: %T panicked in %s: %v", em, call, p)
				}
			}()
			f(em)
		}()
	}
}

// Temp implements Emitter
func (m Multi) Temp(e Export) {
	m.each("Temp", func(em Emitter) { em.Temp(e) })
}

// Final implements Emitter
func (m Multi) Final(e Export) {
	m.each("Final", func(em Emitter) { em.Final(e) })
}

// Status implements Emitter
func (m Multi) Status(s string) {
	m.each("Status", func(em Emitter) { em.Status(s) })
}
