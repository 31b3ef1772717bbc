// Package camera provides a generic HTTP interface to a camera viewer:
// the latest images and g values on the display side, and the detector
// settings on the acquisition side.
package camera

import (
	"context"
	"encoding/json"
	"errors"
	"go/types"
	"image/jpeg"
	"image/png"
	"net/http"
	"strings"
	"time"

	cam "github.com/iumi/pinem/camera"
	"github.com/iumi/pinem/dte"
	"github.com/iumi/pinem/generichttp"
	"github.com/iumi/pinem/hub"
	"github.com/iumi/pinem/imgrec"
	"github.com/iumi/pinem/util"
	"github.com/iumi/pinem/viewer"
)

var (
	// ErrNoData is returned when nothing has been displayed yet
	ErrNoData = errors.New("nothing has been emitted yet")
)

// Display is the read side of the viewer
type Display interface {
	// Latest returns the most recent export with a name, from any channel
	Latest(name string) (dte.Export, bool)

	// LatestFinal returns the most recent final export with a name
	LatestFinal(name string) (dte.Export, bool)

	// G returns the most recent predicted g
	G() (float64, time.Time, bool)

	// GHistory returns the stored g values, oldest first
	GHistory() ([]time.Time, []float64)

	// StatusLog returns the stored status reports, oldest first
	StatusLog() []hub.StatusEntry

	// ServeWS streams exports over a websocket
	ServeWS(http.ResponseWriter, *http.Request)
}

// Controller is the acquisition side of the viewer
type Controller interface {
	// Settings returns the detector settings
	Settings(context.Context) (cam.Settings, error)

	// SetSettings validates and applies detector settings
	SetSettings(context.Context, cam.Settings) error

	// SetMode changes the acquisition mode
	SetMode(context.Context, cam.Mode) error

	// Acquiring reports if acquisition is running
	Acquiring(context.Context) (bool, error)

	// SetAcquiring pauses or resumes acquisition
	SetAcquiring(context.Context, bool) error

	// Grabbed is the number of times the router has run
	Grabbed(context.Context) (int, error)

	// GetPeriod returns the time between acquisitions
	GetPeriod(context.Context) (time.Duration, error)

	// SetPeriod changes the time between acquisitions
	SetPeriod(context.Context, time.Duration) error
}

// HTTPViewer exposes a Display and a Controller over HTTP
type HTTPViewer struct {
	Display    Display
	Controller Controller

	RouteTable generichttp.RouteTable
}

// NewHTTPViewer returns a new HTTP wrapper.  ctl may be nil, in which case
// only the display routes are served.
func NewHTTPViewer(d Display, ctl Controller) HTTPViewer {
	rt := generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/g"}:            GetG(d),
		{Method: http.MethodGet, Path: "/g-history"}:    GetGHistory(d),
		{Method: http.MethodGet, Path: "/export/final"}: GetExport(d.LatestFinal),
		{Method: http.MethodGet, Path: "/export/temp"}:  GetExport(d.Latest),
		{Method: http.MethodGet, Path: "/image"}:        GetImage(d),
		{Method: http.MethodGet, Path: "/spim"}:         GetSPIM(d),
		{Method: http.MethodGet, Path: "/status"}:       GetStatus(d),
		{Method: http.MethodGet, Path: "/stream"}:       d.ServeWS,
	}
	if ctl != nil {
		HTTPController(ctl, rt)
	}
	return HTTPViewer{Display: d, Controller: ctl, RouteTable: rt}
}

// RT satisfies generichttp.HTTPer
func (h HTTPViewer) RT() generichttp.RouteTable {
	return h.RouteTable
}

// HTTPController injects the settings routes of a controller into a route table
func HTTPController(c Controller, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/settings"}] = GetSettings(c)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/settings"}] = SetSettings(c)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/mode"}] = GetMode(c)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/mode"}] = SetMode(c)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/acquire"}] = GetAcquiring(c)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/acquire"}] = SetAcquiring(c)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/grabbed"}] = GetGrabbed(c)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/period"}] = GetPeriod(c)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/period"}] = SetPeriod(c)
}

// GetG returns the most recent g value as json {"f64": g}
func GetG(d Display) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, _, ok := d.G()
		if !ok {
			http.Error(w, ErrNoData.Error(), http.StatusNotFound)
			return
		}
		hp := generichttp.HumanPayload{T: types.Float64, Float: g}
		hp.EncodeAndRespond(w, r)
	}
}

// GetGHistory returns the stored g values with their timestamps
func GetGHistory(d Display) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ts, gs := d.GHistory()
		generichttp.RespondJSON(w, struct {
			Time []time.Time `json:"time"`
			G    []float64   `json:"g"`
		}{ts, gs})
	}
}

// exportName reads the name query parameter, defaulting to the camera export
func exportName(r *http.Request) string {
	name := r.URL.Query().Get("name")
	switch strings.ToLower(name) {
	case "", "camera":
		return viewer.CameraExport
	case "spim":
		return viewer.SPIMExport
	}
	return name
}

// GetExport returns an export as JSON.  The name query parameter selects
// the export, either by its full name or as "camera" or "spim".
func GetExport(fetch func(string) (dte.Export, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := fetch(exportName(r))
		if !ok {
			http.Error(w, ErrNoData.Error(), http.StatusNotFound)
			return
		}
		generichttp.RespondJSON(w, e)
	}
}

// GetImage returns the most recent camera image.
//
// the image format may be specified in a query parameter fmt, one of jpg,
// png, or fits; default to jpg.  jpg and png are scaled to 8 bits between
// the min and max of the frame.
func GetImage(d Display) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := d.LatestFinal(viewer.CameraExport)
		if !ok {
			http.Error(w, ErrNoData.Error(), http.StatusNotFound)
			return
		}
		rec, ok := imgrec.MainArray(e)
		if !ok {
			http.Error(w, ErrNoData.Error(), http.StatusNotFound)
			return
		}
		format := r.URL.Query().Get("fmt")
		if format == "" {
			format = "jpg"
		}
		switch format {
		case "jpg", "jpeg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.WriteHeader(http.StatusOK)
			jpeg.Encode(w, ToGray(rec.Data[0]), nil)
		case "png":
			w.Header().Set("Content-Type", "image/png")
			w.WriteHeader(http.StatusOK)
			png.Encode(w, ToGray(rec.Data[0]))
		case "fits":
			writeFits(w, e, "image.fits")
		default:
			http.Error(w, "fmt must be one of jpg, png, fits", http.StatusBadRequest)
		}
	}
}

// GetSPIM returns the most recent spectral image, complete or not, as a FITS cube
func GetSPIM(d Display) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := d.Latest(viewer.SPIMExport)
		if !ok {
			http.Error(w, ErrNoData.Error(), http.StatusNotFound)
			return
		}
		writeFits(w, e, "spim.fits")
	}
}

func writeFits(w http.ResponseWriter, e dte.Export, fn string) {
	hdr := w.Header()
	hdr.Set("Content-Type", "image/fits")
	hdr.Set("Content-Disposition", "attachment; filename="+fn)
	err := imgrec.WriteExportFits(w, e)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GetStatus returns the recent status reports as a JSON array
func GetStatus(d Display) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generichttp.RespondJSON(w, d.StatusLog())
	}
}

// GetSettings returns the detector settings as JSON
func GetSettings(c Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := c.Settings(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		generichttp.RespondJSON(w, s)
	}
}

// SetSettings applies the settings in the JSON body.  Fields absent from
// the body keep their current value.
func SetSettings(c Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := c.Settings(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		err = json.NewDecoder(r.Body).Decode(&s)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err = s.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = c.SetSettings(r.Context(), s)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetMode returns the acquisition mode as json {"str": mode}
func GetMode(c Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generichttp.GetString(func() (string, error) {
			s, err := c.Settings(r.Context())
			return string(s.Mode), err
		})(w, r)
	}
}

// SetMode sets the acquisition mode from json {"str": mode}
func SetMode(c Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generichttp.SetString(func(str string) error {
			m := cam.Mode(str)
			if m != cam.ModeCamera && m != cam.ModeSPIM {
				return generichttp.BadInput{Err: cam.ErrBadMode}
			}
			return c.SetMode(r.Context(), m)
		})(w, r)
	}
}

// GetAcquiring returns if acquisition is running as json {"bool": on}
func GetAcquiring(c Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generichttp.GetBool(func() (bool, error) {
			return c.Acquiring(r.Context())
		})(w, r)
	}
}

// SetAcquiring pauses or resumes acquisition from json {"bool": on}
func SetAcquiring(c Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generichttp.SetBool(func(on bool) error {
			return c.SetAcquiring(r.Context(), on)
		})(w, r)
	}
}

// GetGrabbed returns the number of router invocations as json {"int": n}
func GetGrabbed(c Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generichttp.GetInt(func() (int, error) {
			return c.Grabbed(r.Context())
		})(w, r)
	}
}

// GetPeriod returns the acquisition period in seconds as json {"f64": secs}
func GetPeriod(c Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generichttp.GetFloat(func() (float64, error) {
			d, err := c.GetPeriod(r.Context())
			return d.Seconds(), err
		})(w, r)
	}
}

// SetPeriod sets the acquisition period.
// it can be provided either as a query parameter period, formatted in a
// way that is parseable by golang/time.ParseDuration, or a json payload with
// key f64, holding the period in seconds.
func SetPeriod(c Controller) http.HandlerFunc {
	set := func(ctx context.Context, d time.Duration) error {
		if d <= 0 {
			return generichttp.BadInput{Err: errors.New("period must be positive")}
		}
		return c.SetPeriod(ctx, d)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Query().Get("period")
		if p == "" {
			generichttp.SetFloat(func(secs float64) error {
				return set(r.Context(), util.SecsToDuration(secs))
			})(w, r)
			return
		}
		d, err := time.ParseDuration(p)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err = set(r.Context(), d); err != nil {
			http.Error(w, err.Error(), generichttp.ErrorStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
