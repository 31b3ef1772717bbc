// Package imgrec contains an image recorder used to automatically save final exports to disk as FITS files.
package imgrec

import (
	"encoding/json"
	"errors"
	"fmt"
	"go/types"
	"log"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iumi/pinem/dte"
	"github.com/iumi/pinem/generichttp"
)

var (
	// ErrNothingToWrite is returned when an export holds no image or cube
	ErrNothingToWrite = errors.New("export has no image or spectral image to write")
)

// QueueDepth is the number of final exports that may wait to be written
const QueueDepth = 4

// Recorder records exports with incrementing filenames in yyyy-mm-dd subfolders.
//
// It implements dte.Emitter; only final exports are written.  Final only
// queues the export; a single goroutine started by New does the writing.
// When QueueDepth exports are already waiting, new ones are dropped and logged.
type Recorder struct {
	mu sync.Mutex

	queue  chan dte.Export
	done   chan struct{}
	closed bool

	// counter is the internally incrementing counter
	counter int

	// Root is the root path
	Root string

	// Prefix is the prefix for the filenames
	Prefix string

	// timeFldr is the subfolder with yyyy-mm-dd format.
	timeFldr string

	// Enabled turns writing on and off
	Enabled bool

	// now is swapped in tests
	now func() time.Time
}

// New returns a recorder writing under root with the given filename prefix
func New(root, prefix string, enabled bool) *Recorder {
	r := &Recorder{Root: root, Prefix: prefix, Enabled: enabled, now: time.Now,
		queue: make(chan dte.Export, QueueDepth),
		done:  make(chan struct{})}
	go r.drain()
	return r
}

func (r *Recorder) drain() {
	defer close(r.done)
	for e := range r.queue {
		_, err := r.Write(e)
		if err != nil && err != ErrNothingToWrite {
			log.Println("autowrite:", err)
		}
	}
}

// Close stops accepting exports and waits for the queued ones to be written
func (r *Recorder) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
	return nil
}

// updateFolder checks the current time and updates the folder as needed
func (r *Recorder) updateFolder() {
	now := time.Now()
	if r.now != nil {
		now = r.now()
	}
	y, m, d := now.Year(), now.Month(), now.Day()
	r.timeFldr = fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

// mkDir makes the folder and returns it
func (r *Recorder) mkDir() (string, error) {
	fldr := path.Join(r.Root, r.timeFldr)
	err := os.MkdirAll(fldr, 0777)
	return fldr, err
}

// Write writes an export to the next file in today's folder and returns its path
func (r *Recorder) Write(e dte.Export) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateFolder()
	fldr, err := r.mkDir()
	if err != nil {
		return "", err
	}
	r.incr(fldr)
	fn := path.Join(fldr, fmt.Sprintf("%s%06d.fits", r.Prefix, r.counter))
	fid, err := os.Create(fn)
	if err != nil {
		return "", err
	}
	defer fid.Close()
	err = WriteExportFits(fid, e)
	if err != nil {
		fid.Close()
		os.Remove(fn)
		return "", err
	}
	return fn, nil
}

// incr updates the filename counter by scanning the folder for the highest
// index in use.  If the folder cannot be read the counter is left alone.
func (r *Recorder) incr(dn string) {
	files, err := os.ReadDir(dn)
	if err != nil {
		return
	}
	count := 0
	for _, file := range files {
		// skip directories, non-fits, and wrong prefix
		if file.IsDir() {
			continue
		}
		fn := file.Name()
		if !strings.HasSuffix(fn, ".fits") || !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		bit := strings.TrimPrefix(fn, r.Prefix)
		bit = bit[:len(bit)-5] // pop fits
		n, err := strconv.Atoi(bit)
		if err != nil {
			continue
		}
		if count < n {
			count = n
		}
	}
	r.counter = count + 1
}

// Temp implements dte.Emitter and does nothing
func (r *Recorder) Temp(dte.Export) {}

// Status implements dte.Emitter and does nothing
func (r *Recorder) Status(string) {}

// Final implements dte.Emitter and queues the export for writing if the
// recorder is enabled.  It never blocks on the disk.
func (r *Recorder) Final(e dte.Export) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.Enabled || r.Root == "" || r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		log.Println("autowrite: writer busy, dropped", e.Name)
	}
}

// HTTPWrapper is an HTTP wrapper around an image recorder that allows the folder and prefix to be changed on the fly
//
// it does not implement generichttp.HTTPer, offering an Inject method allowing it to be injected
// into another HTTPer
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

// SetRoot updates the root folder of the recorder
func (h HTTPWrapper) SetRoot(w http.ResponseWriter, r *http.Request) {
	str := generichttp.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec := h.Recorder
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.Root = str.Str
	rec.updateFolder()
	_, err = rec.mkDir()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetRoot gets the recorder's root folder and sends it back as JSON
func (h HTTPWrapper) GetRoot(w http.ResponseWriter, r *http.Request) {
	h.Recorder.mu.Lock()
	root := h.Recorder.Root
	h.Recorder.mu.Unlock()
	hp := generichttp.HumanPayload{T: types.String, String: root}
	hp.EncodeAndRespond(w, r)
}

// SetPrefix updates the filename prefix of the recorder
func (h HTTPWrapper) SetPrefix(w http.ResponseWriter, r *http.Request) {
	str := generichttp.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Recorder.mu.Lock()
	h.Recorder.Prefix = str.Str
	h.Recorder.counter = 0
	h.Recorder.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// GetPrefix gets the recorder's prefix and sends it back as JSON
func (h HTTPWrapper) GetPrefix(w http.ResponseWriter, r *http.Request) {
	h.Recorder.mu.Lock()
	prefix := h.Recorder.Prefix
	h.Recorder.mu.Unlock()
	hp := generichttp.HumanPayload{T: types.String, String: prefix}
	hp.EncodeAndRespond(w, r)
}

// GetEnabled returns the Recorder's Enabled field
func (h HTTPWrapper) GetEnabled(w http.ResponseWriter, r *http.Request) {
	h.Recorder.mu.Lock()
	on := h.Recorder.Enabled
	h.Recorder.mu.Unlock()
	hp := generichttp.HumanPayload{T: types.Bool, Bool: on}
	hp.EncodeAndRespond(w, r)
}

// SetEnabled sets the recorder's Enabled field
func (h HTTPWrapper) SetEnabled(w http.ResponseWriter, r *http.Request) {
	bT := generichttp.BoolT{}
	err := json.NewDecoder(r.Body).Decode(&bT)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Recorder.mu.Lock()
	h.Recorder.Enabled = bT.Bool
	h.Recorder.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// Inject adds GET and POST routes for /autowrite/root, /autowrite/prefix and
// /autowrite/enabled to the HTTPer which manipulate this wrapper's recorder
func (h HTTPWrapper) Inject(other generichttp.HTTPer) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/root"}] = h.SetRoot
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/root"}] = h.GetRoot
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}] = h.SetPrefix
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/prefix"}] = h.GetPrefix
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/enabled"}] = h.SetEnabled
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/enabled"}] = h.GetEnabled
}
