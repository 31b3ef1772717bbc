package hub

import "time"

// circle is a fixed capacity ring of timestamped values.  It is not concurrent safe.
type circle struct {
	vals   []float64
	times  []time.Time
	cursor int
	filled bool
}

func newCircle(size int) circle {
	if size < 1 {
		size = 1
	}
	return circle{vals: make([]float64, size), times: make([]time.Time, size)}
}

// Append adds a value to the buffer, overwriting the oldest when full
func (c *circle) Append(t time.Time, v float64) {
	if c.cursor == len(c.vals) {
		c.cursor = 0
		c.filled = true
	}
	c.vals[c.cursor] = v
	c.times[c.cursor] = t
	c.cursor++
}

// Len is the number of values held
func (c *circle) Len() int {
	if c.filled {
		return len(c.vals)
	}
	return c.cursor
}

// Head returns the most recent value, false if empty
func (c *circle) Head() (time.Time, float64, bool) {
	if c.Len() == 0 {
		return time.Time{}, 0, false
	}
	return c.times[c.cursor-1], c.vals[c.cursor-1], true
}

// Contiguous copies the values from least to most recent
func (c *circle) Contiguous() ([]time.Time, []float64) {
	n := c.Len()
	ts := make([]time.Time, 0, n)
	vs := make([]float64, 0, n)
	if c.filled {
		ts = append(ts, c.times[c.cursor:]...)
		vs = append(vs, c.vals[c.cursor:]...)
	}
	ts = append(ts, c.times[:c.cursor]...)
	vs = append(vs, c.vals[:c.cursor]...)
	return ts, vs
}

// StatusEntry is one status report
type StatusEntry struct {
	Time time.Time `json:"time"`
	Msg  string    `json:"msg"`
}

// statusLog keeps the most recent status reports
type statusLog struct {
	entries []StatusEntry
	depth   int
}

func (s *statusLog) Append(e StatusEntry) {
	s.entries = append(s.entries, e)
	if len(s.entries) > s.depth {
		s.entries = s.entries[len(s.entries)-s.depth:]
	}
}

func (s *statusLog) Copy() []StatusEntry {
	out := make([]StatusEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
