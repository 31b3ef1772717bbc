/*Package viewer routes frames from an Orsay camera to a display, passing
summed camera frames through a pretrained model to estimate the PINEM
coupling strength g.

In Camera mode each completed frame is reshaped to (Ny, Nx), summed along
its first axis and handed to the predictor.  The frame and the predicted g
are emitted together as one final export.

In SPIM mode each completed spectrum triggers an export of the spectral
image cube and the spectrum.  It goes out on the temporary channel while
the sweep is running and on the final channel once the sweep is done.

A Router is not safe for concurrent use.  It must be called from the same
goroutine that drives acquisition, between acquisitions.
*/
package viewer

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/iumi/pinem/camera"
	"github.com/iumi/pinem/dte"
	"github.com/iumi/pinem/nd"
	"github.com/iumi/pinem/predict"
)

const (
	// CameraExport names exports produced in Camera mode
	CameraExport = "OrsayCamera"

	// SPIMExport names exports produced in SPIM mode
	SPIMExport = "OrsaySPIM"

	// GRecord names the predicted g record
	GRecord = "g value"

	// SPIMRecord names the spectral image record
	SPIMRecord = "SPIM"

	// SpectrumRecord names the spectrum record
	SpectrumRecord = "Spectrum"
)

// Kind classifies why an emission failed
type Kind int

const (
	// KindShape means a buffer did not match the dimension settings
	KindShape Kind = iota + 1

	// KindPredict means the predictor failed or returned nothing
	KindPredict

	// KindPanic means routing panicked
	KindPanic
)

func (k Kind) String() string {
	switch k {
	case KindShape:
		return "shape"
	case KindPredict:
		return "predict"
	case KindPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// Failure is the error half of a Result
type Failure struct {
	Kind Kind

	// Err carries a stack trace from github.com/pkg/errors
	Err error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

// Channel is the output channel an export was sent on
type Channel int

const (
	// None means nothing was emitted
	None Channel = iota

	// Temp is the channel for partial updates
	Temp

	// Final is the channel for completed data
	Final
)

func (c Channel) String() string {
	switch c {
	case Temp:
		return "temp"
	case Final:
		return "final"
	default:
		return "none"
	}
}

// Result is what one call to Emit did.  At most one of Export and Failure is set.
type Result struct {
	Channel Channel
	Export  *dte.Export
	Failure *Failure
}

// Observer is notified of what the router does.  Implementations must not block.
type Observer interface {
	Grabbed()
	Emitted(channel string)
	Failed(kind string)
	Predicted(g float64, took time.Duration)
}

// Router turns the buffers of a camera.Source into exports
type Router struct {
	// Source is the detector being read
	Source camera.Source

	// Predictor estimates g from a summed frame
	Predictor predict.Predictor

	// Emitter receives exports and status reports
	Emitter dte.Emitter

	// Observer, if not nil, is told about every call
	Observer Observer

	// PredictTimeout bounds a single prediction.  Zero means no bound beyond the caller's context.
	PredictTimeout time.Duration

	// ModelPath is the model file the predictor was built from
	ModelPath string

	grabbed int
}

// Grabbed is the number of times Emit has been called
func (r *Router) Grabbed() int {
	return r.grabbed
}

// Emit inspects the source's mode and completion flags and emits whatever is ready.
//
// Failures are never returned as errors.  They are reported once on the
// emitter's status channel, nothing is emitted, and the Result carries the
// Failure for the caller's bookkeeping.  The export is built and the flags
// it used are consumed before anything is handed to the emitter.
func (r *Router) Emit(ctx context.Context) Result {
	r.grabbed++
	if r.Observer != nil {
		r.Observer.Grabbed()
	}
	res := r.route(ctx)
	if res.Failure != nil {
		r.Emitter.Status(FormatStatus(res.Failure.Err))
		if r.Observer != nil {
			r.Observer.Failed(res.Failure.Kind.String())
		}
		return res
	}
	switch res.Channel {
	case Temp:
		r.Emitter.Temp(*res.Export)
	case Final:
		r.Emitter.Final(*res.Export)
	default:
		return res
	}
	if r.Observer != nil {
		r.Observer.Emitted(res.Channel.String())
	}
	return res
}

// route builds the export that is ready, if any, and clears the flags it
// consumed.  It emits nothing.  Panics become a KindPanic failure.
func (r *Router) route(ctx context.Context) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{Failure: &Failure{Kind: KindPanic, Err: errors.Errorf("panic: %v", p)}}
		}
	}()

	s := r.Source.Settings()
	flags := r.Source.Flags()
	if s.Mode == camera.ModeCamera {
		if !flags.CameraDone {
			return Result{}
		}
		exp, fail := r.camera(ctx, s)
		if fail != nil {
			return Result{Failure: fail}
		}
		return Result{Channel: Final, Export: &exp}
	}

	if !flags.SpectrumDone {
		return Result{}
	}
	exp, fail := r.spim(s)
	if fail != nil {
		return Result{Failure: fail}
	}
	if !flags.SPIMDone {
		r.Source.ClearSpectrumDone()
		return Result{Channel: Temp, Export: &exp}
	}
	r.Source.ClearSpectrumDone()
	r.Source.ClearSPIMDone()
	return Result{Channel: Final, Export: &exp}
}

// Axes returns the axes of a squeezed (Ny, Nx) frame
func Axes(s camera.Settings) []dte.Axis {
	switch {
	case s.Nx == 1:
		return []dte.Axis{dte.PixelAxis("Y", s.Ny, 0)}
	case s.Ny == 1:
		return []dte.Axis{dte.PixelAxis("X", s.Nx, 0)}
	default:
		return []dte.Axis{dte.PixelAxis("X", s.Nx, 1), dte.PixelAxis("Y", s.Ny, 0)}
	}
}

// snapshot copies a driver owned buffer so exports do not alias it
func snapshot(buf []float64) []float64 {
	out := make([]float64, len(buf))
	copy(out, buf)
	return out
}

func (r *Router) camera(ctx context.Context, s camera.Settings) (dte.Export, *Failure) {
	axes := Axes(s)
	frame, err := nd.Reshape(snapshot(r.Source.Frame()), s.Ny, s.Nx)
	if err != nil {
		return dte.Export{}, &Failure{Kind: KindShape, Err: errors.WithStack(err)}
	}
	summed, err := frame.SumAxis0()
	if err != nil {
		return dte.Export{}, &Failure{Kind: KindShape, Err: errors.WithStack(err)}
	}

	if r.PredictTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.PredictTimeout)
		defer cancel()
	}
	start := time.Now()
	out, err := r.Predictor.Predict(ctx, summed.Data)
	if err != nil {
		return dte.Export{}, &Failure{Kind: KindPredict, Err: errors.WithStack(err)}
	}
	g, err := predict.First(out)
	if err != nil {
		return dte.Export{}, &Failure{Kind: KindPredict, Err: errors.WithStack(err)}
	}
	if r.Observer != nil {
		r.Observer.Predicted(g, time.Since(start))
	}

	img := frame.Squeeze().AtLeast1D()
	exp := dte.NewExport(CameraExport,
		dte.Record{
			Name:   GRecord,
			Dim:    dte.Data0D,
			Labels: []string{"g pred"},
			Data:   []nd.Array{nd.Vector([]float64{g})}},
		dte.Record{
			Name: "Camera " + s.Model,
			Dim:  dte.DimOf(img),
			Data: []nd.Array{img},
			Axes: axes})
	return exp, nil
}

func (r *Router) spim(s camera.Settings) (dte.Export, *Failure) {
	cube, err := nd.Reshape(snapshot(r.Source.SPIM()), s.Nx, s.SpimY, s.SpimX)
	if err != nil {
		return dte.Export{}, &Failure{Kind: KindShape, Err: errors.WithStack(err)}
	}
	exp := dte.NewExport(SPIMExport,
		dte.Record{
			Name: SPIMRecord,
			Dim:  dte.DataND,
			Data: []nd.Array{cube.Squeeze().AtLeast1D()}},
		dte.Record{
			Name: SpectrumRecord,
			Dim:  dte.Data1D,
			Data: []nd.Array{nd.Vector(snapshot(r.Source.Spectrum()))}})
	return exp, nil
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Location returns file:line of where err was raised, or "" if err has no stack.
// For a recovered panic it is the frame that panicked.
func Location(err error) string {
	st, ok := err.(stackTracer)
	if !ok {
		return ""
	}
	frames := st.StackTrace()
	start := 0
	for i, f := range frames {
		if fn := runtime.FuncForPC(uintptr(f) - 1); fn != nil && fn.Name() == "runtime.gopanic" {
			start = i + 1
			break
		}
	}
	for _, f := range frames[start:] {
		fn := runtime.FuncForPC(uintptr(f) - 1)
		if fn != nil && strings.HasPrefix(fn.Name(), "runtime.") {
			continue
		}
		return fmt.Sprintf("%v", f)
	}
	return ""
}

// FormatStatus renders err for the status channel, prefixed with its location
func FormatStatus(err error) string {
	loc := Location(err)
	if loc == "" {
		return err.Error()
	}
	return loc + " " + err.Error()
}
