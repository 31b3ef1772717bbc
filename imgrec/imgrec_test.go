package imgrec

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/astrogo/fitsio"

	"github.com/iumi/pinem/dte"
	"github.com/iumi/pinem/generichttp"
	"github.com/iumi/pinem/nd"
	"github.com/iumi/pinem/viewer"
)

func cameraExport() dte.Export {
	img, _ := nd.Reshape([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	return dte.NewExport(viewer.CameraExport,
		dte.Record{Name: viewer.GRecord, Dim: dte.Data0D, Data: []nd.Array{nd.Vector([]float64{0.8})}},
		dte.Record{Name: "Camera Kuro", Dim: dte.Data2D, Data: []nd.Array{img},
			Axes: []dte.Axis{dte.PixelAxis("X", 3, 1), dte.PixelAxis("Y", 2, 0)}})
}

func TestWriteExportFitsRoundTripsHeader(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteExportFits(buf, cameraExport()); err != nil {
		t.Fatal(err)
	}
	f, err := fitsio.Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	hdr := f.HDU(0).Header()
	axes := hdr.Axes()
	if len(axes) != 2 || axes[0] != 3 || axes[1] != 2 {
		t.Errorf("expected FITS axes [3 2], got %v", axes)
	}
	card := hdr.Get("GPRED")
	if card == nil {
		t.Fatal("GPRED card missing")
	}
	if g, ok := card.Value.(float64); !ok || g != 0.8 {
		t.Errorf("expected GPRED 0.8, got %v", card.Value)
	}
}

func TestWriteExportFitsWithoutImage(t *testing.T) {
	e := dte.NewExport("x", dte.Record{Name: viewer.GRecord})
	if err := WriteExportFits(&bytes.Buffer{}, e); err != ErrNothingToWrite {
		t.Errorf("expected ErrNothingToWrite, got %v", err)
	}
}

func TestRecorderIncrementsInDatedFolder(t *testing.T) {
	root := t.TempDir()
	r := New(root, "pinem", true)
	r.now = func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) }
	r.Final(cameraExport())
	r.Final(cameraExport())
	r.Temp(cameraExport())
	r.Close()
	dir := filepath.Join(root, "2024-03-09")
	for _, fn := range []string{"pinem000001.fits", "pinem000002.fits"} {
		if _, err := os.Stat(filepath.Join(dir, fn)); err != nil {
			t.Errorf("expected %s to exist: %v", fn, err)
		}
	}
	files, _ := os.ReadDir(dir)
	if len(files) != 2 {
		t.Errorf("expected 2 files, temp exports must not be written; got %d", len(files))
	}
}

func TestDisabledRecorderWritesNothing(t *testing.T) {
	root := t.TempDir()
	r := New(root, "pinem", false)
	r.Final(cameraExport())
	r.Close()
	files, _ := os.ReadDir(root)
	if len(files) != 0 {
		t.Errorf("expected nothing written, got %d entries", len(files))
	}
}

func TestFinalDoesNotBlockWhenQueueIsFull(t *testing.T) {
	r := &Recorder{Root: t.TempDir(), Prefix: "pinem", Enabled: true,
		queue: make(chan dte.Export, 1), done: make(chan struct{})}
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			r.Final(cameraExport())
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Final blocked with no writer draining the queue")
	}
	if len(r.queue) != 1 {
		t.Errorf("expected one queued export, got %d", len(r.queue))
	}
}

func TestClosedRecorderIgnoresFinal(t *testing.T) {
	root := t.TempDir()
	r := New(root, "pinem", true)
	r.Close()
	r.Final(cameraExport())
	r.Close()
	files, _ := os.ReadDir(root)
	if len(files) != 0 {
		t.Errorf("expected nothing written after Close, got %d entries", len(files))
	}
}

type table struct{ rt generichttp.RouteTable }

func (t table) RT() generichttp.RouteTable { return t.rt }

func TestHTTPWrapperSetPrefix(t *testing.T) {
	r := New(t.TempDir(), "a", true)
	tbl := table{rt: generichttp.RouteTable{}}
	NewHTTPWrapper(r).Inject(tbl)
	h := tbl.rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}]
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/autowrite/prefix", strings.NewReader(`{"str":"run7_"}`)))
	if w.Code != http.StatusOK || r.Prefix != "run7_" {
		t.Errorf("expected prefix run7_, got %q (%d)", r.Prefix, w.Code)
	}
	if len(tbl.rt) != 6 {
		t.Errorf("expected 6 routes injected, got %d", len(tbl.rt))
	}
}
