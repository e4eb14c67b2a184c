package wakelock

import (
	"errors"
	"fmt"
	"io"
	"log"
)

// #region errors and outcomes

// ErrOwnerMismatch is returned when a re-acquire or update names a handle
// that exists but belongs to a different owner identity.
var ErrOwnerMismatch = errors.New("wake lock owner identity mismatch")

// ErrNotFound is returned by update operations on an unknown handle.
var ErrNotFound = errors.New("wake lock not found")

// AcquireOutcome describes what an acquire did to the table.
type AcquireOutcome string

const (
	// AcquireCreated means a new lock entered the table.
	AcquireCreated AcquireOutcome = "created"
	// AcquireUpdated means an existing lock changed properties.
	AcquireUpdated AcquireOutcome = "updated"
	// AcquireUnchanged means the acquire matched the existing lock exactly.
	AcquireUnchanged AcquireOutcome = "unchanged"
)

// #endregion

// #region observer

// Observer sees each lock enter and leave the table. A property update on a
// live lock is reported as a release of the old shape followed by an acquire
// of the new one. Notifications are suppressed until ready() reports true,
// and a release is never reported for a lock whose acquire was suppressed.
type Observer interface {
	OnAcquired(l *Lock)
	OnReleased(l *Lock)
}

// #endregion

// #region table

// Table tracks every outstanding wake lock, in acquisition order.
type Table struct {
	observer Observer
	ready    func() bool
	locks    []*Lock
	index    map[string]*Lock
}

// NewTable returns an empty table. observer may be nil; ready gates
// notifications and may be nil to mean always ready.
func NewTable(observer Observer, ready func() bool) *Table {
	return &Table{
		observer: observer,
		ready:    ready,
		index:    make(map[string]*Lock),
	}
}

// Acquire inserts or refreshes the lock for handle. A repeat acquire with
// identical properties is a no-op; one that changes properties rewrites the
// lock in place, provided the owner identity is unchanged.
func (t *Table) Acquire(handle string, level Level, flags Flags, tag, pkg string, ws WorkSource, uid, pid int32) (AcquireOutcome, *Lock, error) {
	if existing, ok := t.index[handle]; ok {
		if existing.HasSameProperties(level, flags, tag, ws, uid, pid) {
			return AcquireUnchanged, existing, nil
		}
		if !existing.sameOwner(pkg, uid, pid) {
			return "", nil, fmt.Errorf("%w: handle %q held by %s/%d/%d", ErrOwnerMismatch,
				handle, existing.Package, existing.OwnerUID, existing.OwnerPID)
		}
		t.notifyReleased(existing)
		existing.Level = level
		existing.Flags = flags
		existing.Tag = tag
		existing.WorkSource = ws.Clone()
		t.notifyAcquired(existing)
		log.Printf("[WAKELOCK] updated %s", existing)
		return AcquireUpdated, existing, nil
	}

	l := &Lock{
		Handle:     handle,
		Level:      level,
		Flags:      flags,
		Tag:        tag,
		Package:    pkg,
		WorkSource: ws.Clone(),
		OwnerUID:   uid,
		OwnerPID:   pid,
	}
	t.locks = append(t.locks, l)
	t.index[handle] = l
	t.notifyAcquired(l)
	log.Printf("[WAKELOCK] acquired %s", l)
	return AcquireCreated, l, nil
}

// Release removes the lock for handle. An unknown handle is a silent no-op
// reported by the second return value.
func (t *Table) Release(handle string) (*Lock, bool) {
	l, ok := t.index[handle]
	if !ok {
		return nil, false
	}
	delete(t.index, handle)
	for i, cur := range t.locks {
		if cur == l {
			t.locks = append(t.locks[:i], t.locks[i+1:]...)
			break
		}
	}
	t.notifyReleased(l)
	log.Printf("[WAKELOCK] released %s", l)
	return l, true
}

// UpdateWorkSource replaces the work source of a live lock, reporting the
// change to the observer as a release/acquire pair. It returns false with a
// nil error when the new source equals the old one.
func (t *Table) UpdateWorkSource(handle string, ws WorkSource) (bool, error) {
	l, ok := t.index[handle]
	if !ok {
		return false, fmt.Errorf("%w: handle %q", ErrNotFound, handle)
	}
	if l.WorkSource.Equal(ws) {
		return false, nil
	}
	t.notifyReleased(l)
	l.WorkSource = ws.Clone()
	t.notifyAcquired(l)
	return true, nil
}

// Find returns the lock for handle.
func (t *Table) Find(handle string) (*Lock, bool) {
	l, ok := t.index[handle]
	return l, ok
}

// Len returns the number of outstanding locks.
func (t *Table) Len() int { return len(t.locks) }

// CountScreenLocks counts locks whose level demands a lit screen.
func (t *Table) CountScreenLocks() int {
	n := 0
	for _, l := range t.locks {
		if l.Level.KeepsScreenOn() {
			n++
		}
	}
	return n
}

// Summary folds every lock into the demand bits for the given wakefulness.
// Screen demands are inert while asleep; stay-awake only applies while fully
// awake. Any screen demand implies a CPU demand.
func (t *Table) Summary(asleep, awake bool) SummaryBits {
	var s SummaryBits
	for _, l := range t.locks {
		switch l.Level {
		case LevelPartial:
			s |= SummaryCPU
		case LevelFull:
			if !asleep {
				s |= SummaryScreenBright | SummaryButtonBright
				if awake {
					s |= SummaryStayAwake
				}
			}
		case LevelScreenBright:
			if !asleep {
				s |= SummaryScreenBright
				if awake {
					s |= SummaryStayAwake
				}
			}
		case LevelScreenDim:
			if !asleep {
				s |= SummaryScreenDim
				if awake {
					s |= SummaryStayAwake
				}
			}
		case LevelProximityScreenOff:
			if !asleep {
				s |= SummaryProximityScreenOff
			}
		}
	}
	if s&(SummaryScreenBright|SummaryScreenDim) != 0 {
		s |= SummaryCPU
	}
	return s
}

// Dump writes one line per lock in acquisition order.
func (t *Table) Dump(w io.Writer) {
	fmt.Fprintf(w, "Wake Locks: size=%d\n", len(t.locks))
	for _, l := range t.locks {
		fmt.Fprintf(w, "  %s\n", l)
	}
}

func (t *Table) notifyAcquired(l *Lock) {
	if t.observer == nil || (t.ready != nil && !t.ready()) {
		return
	}
	if l.notifiedAcquired {
		return
	}
	l.notifiedAcquired = true
	t.observer.OnAcquired(l)
}

func (t *Table) notifyReleased(l *Lock) {
	if t.observer == nil {
		return
	}
	if !l.notifiedAcquired {
		return
	}
	l.notifiedAcquired = false
	t.observer.OnReleased(l)
}

// #endregion
