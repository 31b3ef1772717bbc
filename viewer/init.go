package viewer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/iumi/pinem/camera"
	"github.com/iumi/pinem/dte"
	"github.com/iumi/pinem/predict"
)

// ModelFolder is the folder beside the program that holds pretrained models
const ModelFolder = "cnns"

// Config holds what New needs beyond the source and emitter
type Config struct {
	// Dir is the folder searched for a model.  Empty means DefaultModelDir().
	Dir string `yaml:"Dir" koanf:"Dir"`

	// Ext is the model file extension
	Ext string `yaml:"Ext" koanf:"Ext"`

	// Timeout bounds a single prediction
	Timeout time.Duration `yaml:"Timeout" koanf:"Timeout"`

	// Server and RateLimit are passed to predict.Open
	Server    string  `yaml:"Server" koanf:"Server"`
	RateLimit float64 `yaml:"RateLimit" koanf:"RateLimit"`
}

// DefaultModelDir is the cnns folder next to the running executable
func DefaultModelDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ModelFolder
	}
	return filepath.Join(filepath.Dir(exe), ModelFolder)
}

// New initializes the source if it needs it, validates its settings, then
// loads the first model found and returns a Router over them.
//
// There is no fallback model; a missing or unreadable model is an error.
func New(src camera.Source, em dte.Emitter, cfg Config) (*Router, error) {
	if in, ok := src.(camera.Initializer); ok {
		if err := in.Initialize(); err != nil {
			return nil, fmt.Errorf("initializing detector: %w", err)
		}
	}
	if err := src.Settings().Validate(); err != nil {
		return nil, err
	}
	dir := cfg.Dir
	if dir == "" {
		dir = DefaultModelDir()
	}
	path, err := predict.FindModel(dir, cfg.Ext)
	if err != nil {
		return nil, err
	}
	pred, err := predict.Open(path, predict.Options{Server: cfg.Server, Timeout: cfg.Timeout, RateLimit: cfg.RateLimit})
	if err != nil {
		return nil, fmt.Errorf("loading model %s: %w", path, err)
	}
	return &Router{
		Source:         src,
		Predictor:      pred,
		Emitter:        em,
		PredictTimeout: cfg.Timeout,
		ModelPath:      path}, nil
}
