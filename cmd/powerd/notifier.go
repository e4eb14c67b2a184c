package main

import (
	"fmt"
	"log"
	"sync"

	"github.com/danielpatrickdp/power-coordinator/internal/activity"
	"github.com/danielpatrickdp/power-coordinator/internal/busservice"
	"github.com/danielpatrickdp/power-coordinator/internal/engine"
	"github.com/danielpatrickdp/power-coordinator/internal/eventlog"
	"github.com/danielpatrickdp/power-coordinator/internal/wakelock"
)

// #region notifier

// busNotifier records power transitions in the event log and broadcasts them
// on the bus. Engine hooks run with the engine lock held, so everything is
// handed to a worker goroutine; the hooks themselves only enqueue.
type busNotifier struct {
	events *eventlog.Log
	svc    func() *busservice.Service

	mu          sync.Mutex
	wakefulness engine.Wakefulness

	queue chan func()
	done  chan struct{}
}

func newBusNotifier(events *eventlog.Log, svc func() *busservice.Service) *busNotifier {
	n := &busNotifier{
		events:      events,
		svc:         svc,
		wakefulness: engine.WakefulnessAwake,
		queue:       make(chan func(), 64),
		done:        make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *busNotifier) run() {
	defer close(n.done)
	for task := range n.queue {
		task()
	}
}

// Close drains the queue and stops the worker.
func (n *busNotifier) Close() {
	close(n.queue)
	<-n.done
}

func (n *busNotifier) post(task func()) {
	select {
	case n.queue <- task:
	default:
		// Dropping a log entry beats blocking the engine.
		log.Printf("[NOTIFY] queue full, dropping event")
	}
}

func (n *busNotifier) record(kind, detail string) {
	n.mu.Lock()
	w := n.wakefulness
	n.mu.Unlock()
	n.post(func() {
		err := n.events.Append(eventlog.Entry{Kind: kind, Detail: detail, Wakefulness: string(w)})
		if err != nil {
			log.Printf("[NOTIFY] append %s: %v", kind, err)
		}
	})
}

// #endregion

// #region hooks

func (n *busNotifier) OnWakefulnessChanged(w engine.Wakefulness) {
	n.mu.Lock()
	n.wakefulness = w
	n.mu.Unlock()
	if w == engine.WakefulnessNapping {
		n.record(eventlog.KindNap, "")
	}
	n.post(func() {
		if s := n.svc(); s != nil {
			s.EmitWakefulnessChanged(w)
		}
	})
}

func (n *busNotifier) OnScreenOnChanged(on bool) {
	n.post(func() {
		if s := n.svc(); s != nil {
			s.EmitScreenOnChanged(on)
		}
	})
}

func (n *busNotifier) OnWakeUpStarted() {
	n.record(eventlog.KindWakeUp, "")
}

func (n *busNotifier) OnWakeUpFinished() {}

func (n *busNotifier) OnGoToSleepStarted(reason engine.SleepReason, clearedScreenLocks int) {
	n.record(eventlog.KindGoToSleep,
		fmt.Sprintf("reason=%s cleared_screen_locks=%d", reason, clearedScreenLocks))
}

func (n *busNotifier) OnGoToSleepFinished() {}

func (n *busNotifier) OnDreamStarted(sessionID string) {
	n.record(eventlog.KindDreamStarted, "session="+sessionID)
}

func (n *busNotifier) OnDreamStopped(sessionID string) {
	n.record(eventlog.KindDreamStopped, "session="+sessionID)
}

func (n *busNotifier) OnWirelessChargingStarted(batteryLevel int) {
	n.record(eventlog.KindWirelessCharging, fmt.Sprintf("battery=%d", batteryLevel))
}

func (n *busNotifier) OnUserActivity(event activity.Event, uid int32) {
	n.record(eventlog.KindUserActivity, fmt.Sprintf("event=%s uid=%d", event, uid))
}

func (n *busNotifier) OnWakeLockAcquired(l *wakelock.Lock) {
	log.Printf("[NOTIFY] wake lock acquired: %s", l)
}

func (n *busNotifier) OnWakeLockReleased(l *wakelock.Lock) {
	log.Printf("[NOTIFY] wake lock released: %s", l)
}

// #endregion
