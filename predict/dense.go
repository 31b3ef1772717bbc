package predict

import (
	"context"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v2"
)

// LayerSpec is one fully connected layer as stored on disk
type LayerSpec struct {
	// Weights is row major, one row per output
	Weights [][]float64 `yaml:"weights"`

	// Bias has one entry per output
	Bias []float64 `yaml:"bias"`

	// Activation is one of "", "linear", "relu", "sigmoid", "tanh"
	Activation string `yaml:"activation"`
}

// DenseSpec is the on-disk format of a dense network
type DenseSpec struct {
	// Name is informational
	Name string `yaml:"name"`

	// Normalize is applied to the input before the first layer: "", "max", or "sum"
	Normalize string `yaml:"normalize"`

	// Layers are evaluated in order
	Layers []LayerSpec `yaml:"layers"`
}

type layer struct {
	w   *mat.Dense
	b   *mat.VecDense
	act func(float64) float64
}

// Dense is a small fully connected network evaluated in process
type Dense struct {
	Name      string
	normalize string
	layers    []layer
}

func activation(name string) (func(float64) float64, error) {
	switch name {
	case "", "linear":
		return func(x float64) float64 { return x }, nil
	case "relu":
		return func(x float64) float64 { return math.Max(x, 0) }, nil
	case "sigmoid":
		return func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }, nil
	case "tanh":
		return math.Tanh, nil
	default:
		return nil, fmt.Errorf("unknown activation %q", name)
	}
}

// NewDense validates a spec and builds the network
func NewDense(spec DenseSpec) (*Dense, error) {
	switch spec.Normalize {
	case "", "max", "sum":
	default:
		return nil, fmt.Errorf("unknown normalization %q", spec.Normalize)
	}
	if len(spec.Layers) == 0 {
		return nil, fmt.Errorf("model %q has no layers", spec.Name)
	}
	d := &Dense{Name: spec.Name, normalize: spec.Normalize}
	prevOut := 0
	for i, ls := range spec.Layers {
		rows := len(ls.Weights)
		if rows == 0 || len(ls.Weights[0]) == 0 {
			return nil, fmt.Errorf("layer %d has empty weights", i)
		}
		cols := len(ls.Weights[0])
		flat := make([]float64, 0, rows*cols)
		for r, row := range ls.Weights {
			if len(row) != cols {
				return nil, fmt.Errorf("layer %d row %d has %d weights, expected %d", i, r, len(row), cols)
			}
			flat = append(flat, row...)
		}
		if len(ls.Bias) != rows {
			return nil, fmt.Errorf("layer %d has %d biases for %d outputs", i, len(ls.Bias), rows)
		}
		if i > 0 && cols != prevOut {
			return nil, fmt.Errorf("layer %d takes %d inputs but layer %d produces %d", i, cols, i-1, prevOut)
		}
		act, err := activation(ls.Activation)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %v", i, err)
		}
		bias := make([]float64, rows)
		copy(bias, ls.Bias)
		d.layers = append(d.layers, layer{
			w:   mat.NewDense(rows, cols, flat),
			b:   mat.NewVecDense(rows, bias),
			act: act})
		prevOut = rows
	}
	return d, nil
}

// LoadDense reads a DenseSpec from a YAML file
func LoadDense(path string) (*Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	spec := DenseSpec{}
	err = yaml.NewDecoder(f).Decode(&spec)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %v", path, err)
	}
	return NewDense(spec)
}

// Inputs is the length of series the network accepts
func (d *Dense) Inputs() int {
	_, c := d.layers[0].w.Dims()
	return c
}

// Predict implements Predictor
func (d *Dense) Predict(ctx context.Context, series []float64) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(series) != d.Inputs() {
		return nil, fmt.Errorf("model %q expects %d inputs, got %d", d.Name, d.Inputs(), len(series))
	}
	in := make([]float64, len(series))
	copy(in, series)
	var scale float64
	switch d.normalize {
	case "max":
		scale = floats.Max(in)
	case "sum":
		scale = floats.Sum(in)
	}
	if scale != 0 {
		floats.Scale(1/scale, in)
	}
	x := mat.NewVecDense(len(in), in)
	for _, l := range d.layers {
		r, _ := l.w.Dims()
		y := mat.NewVecDense(r, nil)
		y.MulVec(l.w, x)
		y.AddVec(y, l.b)
		for i := 0; i < r; i++ {
			y.SetVec(i, l.act(y.AtVec(i)))
		}
		x = y
	}
	out := make([]float64, x.Len())
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return [][]float64{out}, nil
}
