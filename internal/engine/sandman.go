package engine

import (
	"log"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/power-coordinator/internal/display"
)

// #region scheduling

// scheduleSandmanLocked queues one sandman run on the worker. The flag makes
// scheduling idempotent: however many recompute passes ask for the sandman
// before it runs, it runs once.
func (e *Engine) scheduleSandmanLocked() {
	if e.sandmanScheduled {
		return
	}
	e.sandmanScheduled = true
	e.worker.Post(e.handleSandman)
}

// #endregion

// #region sandman

// handleSandman reconciles the wakefulness state with the dream host. It
// runs on the worker goroutine; dream host calls are made without the engine
// lock because the host may call back into the engine. Dreams are only ever
// controlled from here, so starts and stops cannot race each other.
func (e *Engine) handleSandman() {
	var startDreaming bool

	e.mu.Lock()
	e.sandmanScheduled = false
	if e.canDreamLocked() && e.wakefulness == WakefulnessNapping {
		e.setWakefulnessLocked(WakefulnessDreaming)
		e.batteryLevelWhenDreamStarted = e.batteryLevel
		e.recomputeLocked()
		startDreaming = true
	}
	e.mu.Unlock()

	isDreaming := false
	if e.cfg.Dreams != nil {
		if startDreaming {
			if err := e.cfg.Dreams.StartDream(); err != nil {
				log.Printf("[SANDMAN] failed to start dream: %v", err)
			}
		}
		isDreaming = e.cfg.Dreams.IsDreaming()
	}

	continueDreaming := false
	e.mu.Lock()
	if startDreaming && isDreaming {
		e.dreamSessionID = uuid.New().String()
		log.Printf("[SANDMAN] dream started (session=%s)", e.dreamSessionID)
		e.notifier.OnDreamStarted(e.dreamSessionID)
	}
	if isDreaming && e.canDreamLocked() && e.wakefulness == WakefulnessDreaming {
		continueDreaming = true
		if e.batteryLevel < e.batteryLevelWhenDreamStarted-DreamBatteryLevelDrainCutoff &&
			!e.isBeingKeptAwakeLocked() {
			log.Printf("[SANDMAN] stopping dream: battery drained from %d to %d",
				e.batteryLevelWhenDreamStarted, e.batteryLevel)
			continueDreaming = false
		}
	}
	if !continueDreaming {
		if e.dreamSessionID != "" {
			log.Printf("[SANDMAN] dream finished (session=%s)", e.dreamSessionID)
			e.notifier.OnDreamStopped(e.dreamSessionID)
			e.dreamSessionID = ""
		}
		e.handleDreamFinishedLocked()
	}
	e.mu.Unlock()

	// Something may have changed above to make the dream start again; if
	// so, another sandman run is already queued behind this one.
	if e.cfg.Dreams != nil && !continueDreaming {
		e.cfg.Dreams.StopDream()
	}
}

// canDreamLocked gates dream entry: dreams must exist and be enabled, the
// screen must not be off, boot must be done, and the device must be powered
// or otherwise kept awake so a dream cannot drain an idle battery.
func (e *Engine) canDreamLocked() bool {
	return e.cfg.DreamsSupported &&
		e.set.dreamsEnabled &&
		e.displayRequest.ScreenState != display.ScreenOff &&
		e.bootCompleted &&
		(e.isPowered || e.isBeingKeptAwakeLocked())
}

// handleDreamFinishedLocked leaves the napping or dreaming state: to sleep
// when nothing demands the screen, back to awake otherwise.
func (e *Engine) handleDreamFinishedLocked() {
	if e.wakefulness != WakefulnessNapping && e.wakefulness != WakefulnessDreaming {
		return
	}
	now := e.now()
	if e.isItBedTimeYetLocked() {
		e.goToSleepNoUpdateLocked(now, SleepReasonTimeout)
	} else {
		e.wakeUpNoUpdateLocked(now)
	}
	e.recomputeLocked()
}

// #endregion
