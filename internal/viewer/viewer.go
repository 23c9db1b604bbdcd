// Package viewer owns the single fullscreen pan-zoom view.
package viewer

import (
	"errors"
	"math"
	"sync"
)

var ErrNotOpen = errors.New("viewer is not open")

type Options struct {
	MinScale float64
	MaxScale float64
	Step     float64
}

var DefaultOptions = Options{MinScale: 0.1, MaxScale: 5, Step: 0.3}

// State is a snapshot of the open view.
type State struct {
	Open     bool    `json:"open"`
	MediaURL string  `json:"media_url,omitempty"`
	RecordID string  `json:"record_id,omitempty"`
	Scale    float64 `json:"scale"`
	Percent  int     `json:"percent"`
}

type handle struct {
	mediaURL string
	recordID string
	scale    float64
}

// Viewer holds at most one live handle. Open destroys the previous handle first.
type Viewer struct {
	mu   sync.Mutex
	opts Options
	cur  *handle
	// destroyed counts torn-down handles.
	destroyed int
}

func New(opts Options) *Viewer {
	if opts.MinScale <= 0 {
		opts.MinScale = DefaultOptions.MinScale
	}
	if opts.MaxScale <= opts.MinScale {
		opts.MaxScale = DefaultOptions.MaxScale
	}
	if opts.Step <= 0 {
		opts.Step = DefaultOptions.Step
	}
	return &Viewer{opts: opts}
}

func (v *Viewer) Open(recordID, mediaURL string) State {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.destroyLocked()
	v.cur = &handle{mediaURL: mediaURL, recordID: recordID, scale: 1}
	return v.stateLocked()
}

func (v *Viewer) ZoomIn() (State, error) { return v.zoom(v.opts.Step) }

func (v *Viewer) ZoomOut() (State, error) { return v.zoom(-v.opts.Step) }

func (v *Viewer) zoom(step float64) (State, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cur == nil {
		return State{}, ErrNotOpen
	}
	s := v.cur.scale * math.Exp(step)
	v.cur.scale = math.Min(v.opts.MaxScale, math.Max(v.opts.MinScale, s))
	return v.stateLocked(), nil
}

func (v *Viewer) Reset() (State, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cur == nil {
		return State{}, ErrNotOpen
	}
	v.cur.scale = 1
	return v.stateLocked(), nil
}

// Close tears down the handle. Closing a closed viewer is a no-op.
func (v *Viewer) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.destroyLocked()
}

func (v *Viewer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

// Destroyed reports how many handles have been torn down.
func (v *Viewer) Destroyed() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.destroyed
}

func (v *Viewer) destroyLocked() {
	if v.cur != nil {
		v.cur = nil
		v.destroyed++
	}
}

func (v *Viewer) stateLocked() State {
	if v.cur == nil {
		return State{}
	}
	return State{
		Open:     true,
		MediaURL: v.cur.mediaURL,
		RecordID: v.cur.recordID,
		Scale:    v.cur.scale,
		Percent:  int(math.Floor(v.cur.scale*100 + 0.5)),
	}
}
