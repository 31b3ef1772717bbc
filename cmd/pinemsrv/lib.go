package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iumi/pinem/acq"
	"github.com/iumi/pinem/camera"
	"github.com/iumi/pinem/generichttp"
	gcam "github.com/iumi/pinem/generichttp/camera"
	"github.com/iumi/pinem/hub"
	"github.com/iumi/pinem/imgrec"
	"github.com/iumi/pinem/mqttpub"
	"github.com/iumi/pinem/orsay"
	"github.com/iumi/pinem/server/middleware/locker"
	"github.com/iumi/pinem/viewer"
)

// RecorderConfig configures the FITS auto-recorder
type RecorderConfig struct {
	Root    string `yaml:"Root" koanf:"Root"`
	Prefix  string `yaml:"Prefix" koanf:"Prefix"`
	Enabled bool   `yaml:"Enabled" koanf:"Enabled"`
}

// Config is the server configuration
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Endpoint is the URL the viewer is mounted at
	Endpoint string `yaml:"Endpoint" koanf:"Endpoint"`

	// Mock selects the simulated camera
	Mock bool `yaml:"Mock" koanf:"Mock"`

	// Period is the time between acquisitions
	Period time.Duration `yaml:"Period" koanf:"Period"`

	// History is the number of g values kept
	History int `yaml:"History" koanf:"History"`

	// StatusDepth is the number of status reports kept
	StatusDepth int `yaml:"StatusDepth" koanf:"StatusDepth"`

	Camera   camera.Settings `yaml:"Camera" koanf:"Camera"`
	Physics  orsay.Physics   `yaml:"Physics" koanf:"Physics"`
	Model    viewer.Config   `yaml:"Model" koanf:"Model"`
	Recorder RecorderConfig  `yaml:"Recorder" koanf:"Recorder"`
	MQTT     mqttpub.Config  `yaml:"MQTT" koanf:"MQTT"`
}

// DefaultConfig is the configuration used when the file does not say otherwise
func DefaultConfig() Config {
	return Config{
		Addr:        ":8000",
		Endpoint:    "pinem",
		Mock:        true,
		Period:      100 * time.Millisecond,
		History:     1000,
		StatusDepth: 100,
		Camera: camera.Settings{
			Model: "Kuro",
			Mode:  camera.ModeCamera,
			Nx:    256,
			Ny:    1,
			SpimX: 16,
			SpimY: 16},
		Physics: orsay.Physics{G: 1, Counts: 1e4, Noise: 1},
		Model:   viewer.Config{Ext: ".yml", Timeout: 2 * time.Second},
		Recorder: RecorderConfig{
			Prefix: "pinem"},
		MQTT: mqttpub.Config{
			Topic:    "pinem",
			ClientID: "pinemsrv"}}
}

// BuildMux mounts the viewer, its recorder and lock at the configured
// endpoint, plus /endpoints and /metrics at the root
func BuildMux(c Config, hb *hub.Hub, eng *acq.Engine, rec *imgrec.Recorder) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	httper := gcam.NewHTTPViewer(hb, eng)
	imgrec.NewHTTPWrapper(rec).Inject(httper)
	lock := locker.New()
	locker.Inject(httper, lock)

	// prepare the URL, "pinem" => "/pinem"
	hndlS := generichttp.SubMuxSanitize(c.Endpoint)
	supergraph[hndlS] = httper.RT().Endpoints()

	r := chi.NewRouter()
	r.Use(lock.Check)
	httper.RT().Bind(r)
	root.Mount(hndlS, r)

	root.Handle("/metrics", promhttp.Handler())
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root
}

// simulatedSeries is the noise free series the router would hand the
// predictor for one simulated camera frame: a row summed over Ny rows
func simulatedSeries(c Config) []float64 {
	series := orsay.Spectrum(c.Camera.Nx, c.Physics.G, c.Physics)
	for i := range series {
		series[i] *= float64(c.Camera.Ny)
	}
	return series
}

// applyConfig pushes the camera settings and physics of c into the running engine
func applyConfig(ctx context.Context, eng *acq.Engine, dev *orsay.Mock, c Config) error {
	err := eng.SetSettings(ctx, c.Camera)
	if err != nil {
		return err
	}
	return eng.Do(ctx, func() error {
		dev.SetPhysics(c.Physics)
		return nil
	})
}

// reloadOnChange watches the config file and applies camera changes to the engine
func reloadOnChange(ctx context.Context, eng *acq.Engine, dev *orsay.Mock) {
	err := cfgFile.Watch(func(event interface{}, err error) {
		if err != nil {
			log.Println("watching config:", err)
			return
		}
		c, err := loadConfig()
		if err != nil {
			log.Println("reloading config:", err)
			return
		}
		if err = applyConfig(ctx, eng, dev, c); err != nil {
			log.Println("applying reloaded config:", err)
			return
		}
		log.Println("camera settings reloaded from", ConfigFileName)
	})
	if err != nil {
		log.Println("config file will not be watched:", err)
	}
}
