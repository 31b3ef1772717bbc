// Package nd contains a minimal row-major n-dimensional float64 array.
//
// It covers only the handful of shape manipulations needed to turn a flat
// detector buffer into a frame, spectrum, or spectral image cube:
// reshape, squeeze, at-least-1D and a sum along the leading axis.
package nd

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ErrShape is returned when a buffer cannot be given the requested shape
type ErrShape struct {
	// Len is the number of elements available
	Len int

	// Shape is the shape that was asked for
	Shape []int
}

func (e ErrShape) Error() string {
	return fmt.Sprintf("cannot reshape array of size %d into shape %v", e.Len, e.Shape)
}

// Array is a row-major view over a flat buffer of float64.
// A zero-length Shape is a 0-dimensional (scalar) array holding one element.
type Array struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// size computes the number of elements implied by a shape
func size(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// Reshape returns a view of buf with the given shape.  The buffer is not copied.
func Reshape(buf []float64, shape ...int) (Array, error) {
	for _, s := range shape {
		if s < 0 {
			return Array{}, ErrShape{Len: len(buf), Shape: shape}
		}
	}
	if size(shape) != len(buf) {
		return Array{}, ErrShape{Len: len(buf), Shape: shape}
	}
	shp := make([]int, len(shape))
	copy(shp, shape)
	return Array{Shape: shp, Data: buf}, nil
}

// Scalar returns a 0-dimensional array holding f
func Scalar(f float64) Array {
	return Array{Shape: []int{}, Data: []float64{f}}
}

// Vector returns a 1D array over buf
func Vector(buf []float64) Array {
	return Array{Shape: []int{len(buf)}, Data: buf}
}

// Ndim is the number of dimensions of the array
func (a Array) Ndim() int {
	return len(a.Shape)
}

// Size is the number of elements in the array
func (a Array) Size() int {
	return size(a.Shape)
}

// Squeeze drops every axis of length one
func (a Array) Squeeze() Array {
	shp := make([]int, 0, len(a.Shape))
	for _, s := range a.Shape {
		if s != 1 {
			shp = append(shp, s)
		}
	}
	return Array{Shape: shp, Data: a.Data}
}

// AtLeast1D promotes a 0-dimensional array to shape (1)
func (a Array) AtLeast1D() Array {
	if len(a.Shape) == 0 {
		return Array{Shape: []int{1}, Data: a.Data}
	}
	return a
}

// SumAxis0 sums along the leading axis, returning an array with one fewer dimension.
// A 1D array sums to a 0-dimensional scalar.
func (a Array) SumAxis0() (Array, error) {
	if len(a.Shape) == 0 {
		return Array{}, fmt.Errorf("axis 0 is out of bounds for array of dimension 0")
	}
	n := a.Shape[0]
	rest := a.Shape[1:]
	stride := size(rest)
	out := make([]float64, stride)
	for i := 0; i < n; i++ {
		floats.Add(out, a.Data[i*stride:(i+1)*stride])
	}
	shp := make([]int, len(rest))
	copy(shp, rest)
	return Array{Shape: shp, Data: out}, nil
}

// At returns the element at the given index, which must have Ndim entries
func (a Array) At(idx ...int) float64 {
	off := 0
	for i, ix := range idx {
		off = off*a.Shape[i] + ix
	}
	return a.Data[off]
}

// Max returns the largest element, or zero for an empty array
func (a Array) Max() float64 {
	if len(a.Data) == 0 {
		return 0
	}
	return floats.Max(a.Data)
}

// Min returns the smallest element, or zero for an empty array
func (a Array) Min() float64 {
	if len(a.Data) == 0 {
		return 0
	}
	return floats.Min(a.Data)
}
