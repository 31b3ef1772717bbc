// Package locker provides an HTTP middleware that lets an operator freeze
// the acquisition controls of a running server.  While locked, requests
// that would change the camera answer 423 (locked); reads keep working so
// the g value and images can still be watched.
package locker

import (
	"net/http"
	"strings"
	"sync"

	"github.com/iumi/pinem/generichttp"
)

// Inject adds GET and POST /lock to a generichttp.HTTPer.  The POST body is
// {"bool": locked}.
func Inject(other generichttp.HTTPer, l *Locker) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/lock"}] = l.HTTPGet
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/lock"}] = l.HTTPSet
}

// Locker is a flag guarding the routes behind Check.  Unlike a sync.Mutex,
// taking it never blocks and requests that hit it are refused, not queued.
type Locker struct {
	mu     sync.RWMutex
	locked bool

	// DoNotProtect holds path substrings that stay reachable while locked,
	// whatever the method.  New puts "lock" in it so the lock can be released.
	DoNotProtect []string

	// ProtectReads refuses GET and HEAD too.  By default reads pass through
	// a locked Locker, so displays keep updating while the settings are
	// frozen.
	ProtectReads bool
}

// New returns an unlocked Locker that leaves the lock routes reachable
// and lets reads through
func New() *Locker {
	return &Locker{DoNotProtect: []string{"lock"}}
}

// Set locks or unlocks
func (l *Locker) Set(locked bool) {
	l.mu.Lock()
	l.locked = locked
	l.mu.Unlock()
}

// Lock the locker
func (l *Locker) Lock() { l.Set(true) }

// Unlock the locker
func (l *Locker) Unlock() { l.Set(false) }

// Locked returns true if the locker is locked
func (l *Locker) Locked() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.locked
}

// guards reports whether r is refused while locked.  Reads are not, unless
// ProtectReads is set.  Paths matching DoNotProtect never are.
func (l *Locker) guards(r *http.Request) bool {
	read := r.Method == http.MethodGet || r.Method == http.MethodHead
	if read && !l.ProtectReads {
		return false
	}
	for _, str := range l.DoNotProtect {
		if strings.Contains(r.URL.Path, str) {
			return false
		}
	}
	return true
}

// Check is an HTTP middleware.  While the locker is locked it answers
// http.StatusLocked to every request it guards and passes the rest down
// the line; while unlocked everything passes.
func (l *Locker) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Locked() && l.guards(r) {
			w.WriteHeader(http.StatusLocked)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPSet locks or unlocks from json {"bool": locked}
func (l *Locker) HTTPSet(w http.ResponseWriter, r *http.Request) {
	generichttp.SetBool(func(b bool) error {
		l.Set(b)
		return nil
	})(w, r)
}

// HTTPGet returns Locked() as json {"bool": locked}
func (l *Locker) HTTPGet(w http.ResponseWriter, r *http.Request) {
	generichttp.GetBool(func() (bool, error) {
		return l.Locked(), nil
	})(w, r)
}
