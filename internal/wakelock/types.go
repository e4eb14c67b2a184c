// Package wakelock holds the wake lock entity and the table that tracks
// every outstanding lock. The table is not self-locking: the engine owns it
// and serializes all access under its own mutex.
package wakelock

import (
	"fmt"
	"strings"
)

// #region levels and flags

// Level is the strength of a wake lock.
type Level string

const (
	// LevelPartial keeps the CPU running with no screen demand.
	LevelPartial Level = "partial"
	// LevelScreenDim keeps the screen at least dimmed.
	LevelScreenDim Level = "screen-dim"
	// LevelScreenBright keeps the screen at full brightness.
	LevelScreenBright Level = "screen-bright"
	// LevelFull keeps the screen bright and the button backlight lit.
	LevelFull Level = "full"
	// LevelProximityScreenOff forces the screen off while the proximity
	// sensor reports positive.
	LevelProximityScreenOff Level = "proximity-screen-off"
)

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	switch l {
	case LevelPartial, LevelScreenDim, LevelScreenBright, LevelFull, LevelProximityScreenOff:
		return true
	}
	return false
}

// KeepsScreenOn reports whether the level demands a lit screen.
func (l Level) KeepsScreenOn() bool {
	switch l {
	case LevelScreenDim, LevelScreenBright, LevelFull:
		return true
	}
	return false
}

// Flags modify acquire and release behavior.
type Flags uint32

const (
	// FlagAcquireCausesWakeup wakes the device when a screen-level lock is
	// acquired, instead of waiting for an explicit wake request.
	FlagAcquireCausesWakeup Flags = 1 << iota
	// FlagOnAfterRelease pokes user activity when the lock is released so
	// the screen lingers instead of dimming immediately.
	FlagOnAfterRelease
	// FlagWaitForProximityNegative defers screen turn-on after releasing a
	// proximity lock until the sensor reports negative.
	FlagWaitForProximityNegative
)

// Has reports whether all bits of x are set.
func (f Flags) Has(x Flags) bool { return f&x == x }

// #endregion

// #region work source

// WorkSource attributes a wake lock to the uids doing work on behalf of the
// owner. Order is significant for equality.
type WorkSource []int32

// Equal reports element-wise equality. A nil and an empty source are equal.
func (w WorkSource) Equal(o WorkSource) bool {
	if len(w) != len(o) {
		return false
	}
	for i := range w {
		if w[i] != o[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy, or nil for an empty source.
func (w WorkSource) Clone() WorkSource {
	if len(w) == 0 {
		return nil
	}
	out := make(WorkSource, len(w))
	copy(out, w)
	return out
}

// String renders the source as a uid list.
func (w WorkSource) String() string {
	if len(w) == 0 {
		return "none"
	}
	parts := make([]string, len(w))
	for i, uid := range w {
		parts[i] = fmt.Sprintf("%d", uid)
	}
	return strings.Join(parts, ",")
}

// #endregion

// #region lock

// Lock is one outstanding wake lock. Handle identifies it; package, uid and
// pid identify the owner and are immutable for the life of the handle.
type Lock struct {
	Handle     string
	Level      Level
	Flags      Flags
	Tag        string
	Package    string
	WorkSource WorkSource
	OwnerUID   int32
	OwnerPID   int32

	// notifiedAcquired latches after the first acquired notification so a
	// release never notifies without a matching acquire.
	notifiedAcquired bool
}

// HasSameProperties reports whether an acquire with these parameters would
// leave the lock unchanged.
func (l *Lock) HasSameProperties(level Level, flags Flags, tag string, ws WorkSource, uid, pid int32) bool {
	return l.Level == level &&
		l.Flags == flags &&
		l.Tag == tag &&
		l.WorkSource.Equal(ws) &&
		l.OwnerUID == uid &&
		l.OwnerPID == pid
}

// sameOwner reports whether the immutable owner identity matches.
func (l *Lock) sameOwner(pkg string, uid, pid int32) bool {
	return l.Package == pkg && l.OwnerUID == uid && l.OwnerPID == pid
}

// String describes the lock for dump output.
func (l *Lock) String() string {
	return fmt.Sprintf("%s %q (%s, uid=%d, pid=%d, ws=%s, flags=0x%x)",
		l.Level, l.Tag, l.Package, l.OwnerUID, l.OwnerPID, l.WorkSource, uint32(l.Flags))
}

// #endregion

// #region summary bits

// SummaryBits aggregates the demands of every lock in the table for one
// recompute pass.
type SummaryBits uint32

const (
	// SummaryCPU holds the CPU out of suspend.
	SummaryCPU SummaryBits = 1 << iota
	// SummaryScreenBright demands a fully bright screen.
	SummaryScreenBright
	// SummaryScreenDim demands an at-least-dim screen.
	SummaryScreenDim
	// SummaryButtonBright demands a lit button backlight.
	SummaryButtonBright
	// SummaryProximityScreenOff enables proximity-driven screen off.
	SummaryProximityScreenOff
	// SummaryStayAwake prevents the activity timeout from running.
	SummaryStayAwake
)

// Has reports whether all bits of x are set.
func (s SummaryBits) Has(x SummaryBits) bool { return s&x == x }

// String renders the set bits for logs and dump output.
func (s SummaryBits) String() string {
	if s == 0 {
		return "none"
	}
	var parts []string
	add := func(bit SummaryBits, name string) {
		if s.Has(bit) {
			parts = append(parts, name)
		}
	}
	add(SummaryCPU, "cpu")
	add(SummaryScreenBright, "screen-bright")
	add(SummaryScreenDim, "screen-dim")
	add(SummaryButtonBright, "button-bright")
	add(SummaryProximityScreenOff, "proximity-screen-off")
	add(SummaryStayAwake, "stay-awake")
	return strings.Join(parts, "|")
}

// #endregion
