// Package predict locates pretrained models on disk and evaluates them on
// summed detector series.
package predict

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNoModel is returned when no model file is found
	ErrNoModel = errors.New("no model file found")

	// ErrEmptyPrediction is returned when a model produces no output
	ErrEmptyPrediction = errors.New("model returned an empty prediction")

	// ErrNoServer is returned when a model needs an inference server and none is configured
	ErrNoServer = errors.New("model requires an inference server but none is configured")
)

// Predictor evaluates a model on a 1D series.  The output is a batch of
// output vectors; for a single series the batch has one entry.
type Predictor interface {
	Predict(context.Context, []float64) ([][]float64, error)
}

// PredictorFunc adapts a function to a Predictor
type PredictorFunc func(context.Context, []float64) ([][]float64, error)

// Predict implements Predictor
func (f PredictorFunc) Predict(ctx context.Context, series []float64) ([][]float64, error) {
	return f(ctx, series)
}

// First returns out[0][0], the scalar most models produce
func First(out [][]float64) (float64, error) {
	if len(out) == 0 || len(out[0]) == 0 {
		return 0, ErrEmptyPrediction
	}
	return out[0][0], nil
}

// Options configure how a model file becomes a Predictor
type Options struct {
	// Server is the base URL of an inference server, e.g. http://localhost:8501
	Server string `yaml:"Server" koanf:"Server"`

	// Timeout bounds a single request to the server
	Timeout time.Duration `yaml:"Timeout" koanf:"Timeout"`

	// RateLimit is the maximum number of requests per second to the server.  Zero is unlimited.
	RateLimit float64 `yaml:"RateLimit" koanf:"RateLimit"`
}

// FindModel returns the first file in dir whose extension is ext.
//
// Entries are visited in the order os.ReadDir yields them.  When more than
// one model is present, which one is picked is not a contract.
func FindModel(dir, ext string) (string, error) {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoModel, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("%w: no *%s in %s", ErrNoModel, ext, dir)
}

// Open builds a Predictor from a model file.  YAML files hold a dense
// network evaluated in process; any other file names a model to be
// evaluated by the inference server in opts.
func Open(path string, opts Options) (Predictor, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		d, err := LoadDense(path)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		if opts.Server == "" {
			return nil, fmt.Errorf("%w: %s", ErrNoServer, path)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return NewRemote(opts.Server, name, opts), nil
	}
}
