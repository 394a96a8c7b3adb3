package sandbox

import (
	"sync"

	"voxelhud.ai/internal/sim/host"
)

// Display records every overlay per observer. Fail makes Show return an error.
type Display struct {
	mu     sync.Mutex
	shown  map[string][]host.Overlay
	clears map[string]int
	Fail   error
}

var _ host.Display = (*Display)(nil)

func NewDisplay() *Display {
	return &Display{shown: map[string][]host.Overlay{}, clears: map[string]int{}}
}

func (d *Display) Show(observerID string, o host.Overlay) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Fail != nil {
		return d.Fail
	}
	d.shown[observerID] = append(d.shown[observerID], o)
	return nil
}

func (d *Display) Clear(observerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clears[observerID]++
	return nil
}

// Shown returns the overlays presented to an observer, oldest first.
func (d *Display) Shown(observerID string) []host.Overlay {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]host.Overlay(nil), d.shown[observerID]...)
}

// Last returns the most recent overlay, ok=false if none.
func (d *Display) Last(observerID string) (host.Overlay, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.shown[observerID]
	if len(s) == 0 {
		return host.Overlay{}, false
	}
	return s[len(s)-1], true
}

func (d *Display) Clears(observerID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clears[observerID]
}
