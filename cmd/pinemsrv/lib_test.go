package main

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iumi/pinem/acq"
	"github.com/iumi/pinem/camera"
	"github.com/iumi/pinem/dte"
	"github.com/iumi/pinem/hub"
	"github.com/iumi/pinem/imgrec"
	"github.com/iumi/pinem/nd"
	"github.com/iumi/pinem/orsay"
	"github.com/iumi/pinem/predict"
	"github.com/iumi/pinem/viewer"
)

func TestDefaultConfigIsValid(t *testing.T) {
	c := DefaultConfig()
	if err := c.Camera.Validate(); err != nil {
		t.Error(err)
	}
	if !c.Mock {
		t.Error("default config must use the simulated camera")
	}
}

func TestBuildMuxServesViewerAndEndpoints(t *testing.T) {
	c := DefaultConfig()
	c.Camera.Nx = 32
	hb := hub.New(10, 10)
	dev := orsay.NewMock(c.Camera, c.Physics, 1)
	if err := dev.Initialize(); err != nil {
		t.Fatal(err)
	}
	router := &viewer.Router{
		Source:  dev,
		Emitter: dte.Multi{hb},
		Predictor: predict.PredictorFunc(func(context.Context, []float64) ([][]float64, error) {
			return [][]float64{{0.9}}, nil
		})}
	eng := acq.New(dev, router, time.Hour)
	eng.Step(context.Background())

	mux := BuildMux(c, hb, eng, imgrec.New(t.TempDir(), "pinem", false))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pinem/g", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /pinem/g: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/endpoints", nil))
	graph := map[string][]string{}
	if err := json.NewDecoder(w.Body).Decode(&graph); err != nil {
		t.Fatal(err)
	}
	if len(graph["/pinem"]) == 0 {
		t.Errorf("no endpoints listed for /pinem: %v", graph)
	}
}

func TestSimulatedSeriesMatchesSummedFrame(t *testing.T) {
	c := DefaultConfig()
	c.Camera.Mode = camera.ModeCamera
	c.Camera.Nx, c.Camera.Ny = 32, 3
	c.Physics.Noise = 0
	dev := orsay.NewMock(c.Camera, c.Physics, 1)
	if err := dev.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	frame, err := nd.Reshape(dev.Frame(), c.Camera.Ny, c.Camera.Nx)
	if err != nil {
		t.Fatal(err)
	}
	sum, err := frame.SumAxis0()
	if err != nil {
		t.Fatal(err)
	}
	got := simulatedSeries(c)
	if len(got) != len(sum.Data) {
		t.Fatalf("expected %d values, got %d", len(sum.Data), len(got))
	}
	for i := range got {
		if math.Abs(got[i]-sum.Data[i]) > 1e-9*math.Max(1, math.Abs(sum.Data[i])) {
			t.Fatalf("pixel %d: expected %g, got %g", i, sum.Data[i], got[i])
		}
	}
}
