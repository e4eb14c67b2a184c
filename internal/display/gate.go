package display

import (
	"fmt"
	"log"
	"sync"
)

// #region screen-on gate

// ScreenOnGate lets window management hold the screen black across a wake
// transition until the first frame is ready to be shown. It is a nested
// hold: the release callback fires exactly once each time the count returns
// to zero, never while the count is above zero.
type ScreenOnGate struct {
	mu         sync.Mutex
	count      int
	onReleased func()
}

// NewScreenOnGate returns a gate that invokes onReleased on each transition
// of the hold count back to zero. The callback runs without the gate mutex.
func NewScreenOnGate(onReleased func()) *ScreenOnGate {
	return &ScreenOnGate{onReleased: onReleased}
}

// Acquire adds one hold.
func (g *ScreenOnGate) Acquire() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.count++
	log.Printf("[DISPLAY] screen-on gate acquired, count=%d", g.count)
}

// Release removes one hold, firing the release callback when the count
// reaches zero. An unbalanced release is logged and clamped.
func (g *ScreenOnGate) Release() {
	g.mu.Lock()
	g.count--
	count := g.count
	if count < 0 {
		log.Printf("[DISPLAY] screen-on gate released more times than acquired; clamping count to zero")
		g.count = 0
	}
	g.mu.Unlock()

	if count == 0 {
		log.Printf("[DISPLAY] screen-on gate released")
		if g.onReleased != nil {
			g.onReleased()
		}
	}
}

// IsHeld reports whether at least one hold is outstanding.
func (g *ScreenOnGate) IsHeld() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count > 0
}

// String describes the gate for dump output.
func (g *ScreenOnGate) String() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("held=%v count=%d", g.count > 0, g.count)
}

// #endregion
