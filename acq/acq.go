/*Package acq drives acquisition.

An Engine owns a detector and a frame router and runs both from one
goroutine: every tick it acquires, then routes.  Anything else that needs
the detector (reading or changing its settings, pausing) is queued into
that goroutine with Do, so the router never races the driver for the
completion flags.

*/
package acq

import (
	"context"
	"errors"
	"time"

	"github.com/iumi/pinem/camera"
	"github.com/iumi/pinem/viewer"
)

var (
	// ErrStopped is returned by Do once Run has returned
	ErrStopped = errors.New("acquisition engine is stopped")

	// ErrBadPeriod is returned when the acquisition period is not positive
	ErrBadPeriod = errors.New("acquisition period must be positive")
)

// Device is a detector the engine can drive
type Device interface {
	camera.Source

	// Acquire performs one readout, filling buffers and setting flags
	Acquire(context.Context) error

	// SetSettings validates and applies new settings
	SetSettings(camera.Settings) error
}

type request struct {
	fn   func() error
	done chan error
}

// Engine runs acquisition and routing on a single goroutine
type Engine struct {
	// Dev is the detector
	Dev Device

	// Router routes what Dev acquires
	Router *viewer.Router

	// Period is the time between acquisitions
	Period time.Duration

	// OnResult, if not nil, is called on the engine goroutine after every routing
	OnResult func(viewer.Result)

	requests chan request
	stopped  chan struct{}
	paused   bool
	ticker   *time.Ticker
}

// New returns an engine that acquires every period
func New(dev Device, router *viewer.Router, period time.Duration) *Engine {
	return &Engine{
		Dev:      dev,
		Router:   router,
		Period:   period,
		requests: make(chan request),
		stopped:  make(chan struct{})}
}

// Step acquires once and routes the result.  Acquisition errors are
// reported on the router's status channel and nothing is routed.
// Step must only be called from the goroutine running the engine, or
// when the engine is not running.
func (e *Engine) Step(ctx context.Context) viewer.Result {
	if err := e.Dev.Acquire(ctx); err != nil {
		e.Router.Emitter.Status("acquisition: " + err.Error())
		return viewer.Result{}
	}
	res := e.Router.Emit(ctx)
	if e.OnResult != nil {
		e.OnResult(res)
	}
	return res
}

// Run acquires and routes every Period until ctx is done
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.stopped)
	if e.Period <= 0 {
		return ErrBadPeriod
	}
	e.ticker = time.NewTicker(e.Period)
	defer e.ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-e.requests:
			req.done <- req.fn()
		case <-e.ticker.C:
			if e.paused {
				continue
			}
			e.Step(ctx)
		}
	}
}

// Do runs fn on the engine goroutine, between acquisitions, and returns its error
func (e *Engine) Do(ctx context.Context, fn func() error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case e.requests <- req:
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Settings reads the detector settings on the engine goroutine
func (e *Engine) Settings(ctx context.Context) (camera.Settings, error) {
	var s camera.Settings
	err := e.Do(ctx, func() error {
		s = e.Dev.Settings()
		return nil
	})
	return s, err
}

// SetSettings applies new detector settings on the engine goroutine
func (e *Engine) SetSettings(ctx context.Context, s camera.Settings) error {
	return e.Do(ctx, func() error {
		return e.Dev.SetSettings(s)
	})
}

// SetMode changes only the acquisition mode
func (e *Engine) SetMode(ctx context.Context, m camera.Mode) error {
	return e.Do(ctx, func() error {
		s := e.Dev.Settings()
		s.Mode = m
		return e.Dev.SetSettings(s)
	})
}

// SetAcquiring pauses (false) or resumes (true) acquisition
func (e *Engine) SetAcquiring(ctx context.Context, on bool) error {
	return e.Do(ctx, func() error {
		e.paused = !on
		return nil
	})
}

// Acquiring reports if acquisition is running
func (e *Engine) Acquiring(ctx context.Context) (bool, error) {
	var on bool
	err := e.Do(ctx, func() error {
		on = !e.paused
		return nil
	})
	return on, err
}

// Grabbed is the number of times the router has been invoked
func (e *Engine) Grabbed(ctx context.Context) (int, error) {
	var n int
	err := e.Do(ctx, func() error {
		n = e.Router.Grabbed()
		return nil
	})
	return n, err
}

// GetPeriod returns the time between acquisitions
func (e *Engine) GetPeriod(ctx context.Context) (time.Duration, error) {
	var d time.Duration
	err := e.Do(ctx, func() error {
		d = e.Period
		return nil
	})
	return d, err
}

// SetPeriod changes the time between acquisitions
func (e *Engine) SetPeriod(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ErrBadPeriod
	}
	return e.Do(ctx, func() error {
		e.Period = d
		if e.ticker != nil {
			e.ticker.Reset(d)
		}
		return nil
	})
}
