package wakelock

import (
	"errors"
	"strings"
	"testing"
)

type recordingObserver struct {
	events []string
}

func (r *recordingObserver) OnAcquired(l *Lock) { r.events = append(r.events, "acq:"+l.Handle) }
func (r *recordingObserver) OnReleased(l *Lock) { r.events = append(r.events, "rel:"+l.Handle) }

func newTestTable() (*Table, *recordingObserver) {
	obs := &recordingObserver{}
	return NewTable(obs, nil), obs
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	tbl, obs := newTestTable()

	out, l, err := tbl.Acquire("h1", LevelPartial, 0, "sync", "com.example.sync", nil, 1000, 42)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if out != AcquireCreated {
		t.Fatalf("expected created, got %s", out)
	}
	if l.Handle != "h1" || tbl.Len() != 1 {
		t.Fatalf("lock not inserted: %v, len=%d", l, tbl.Len())
	}

	if _, ok := tbl.Release("h1"); !ok {
		t.Fatal("release of live handle failed")
	}
	if tbl.Len() != 0 {
		t.Fatalf("table not empty after release, len=%d", tbl.Len())
	}
	want := []string{"acq:h1", "rel:h1"}
	if strings.Join(obs.events, " ") != strings.Join(want, " ") {
		t.Fatalf("expected %v, got %v", want, obs.events)
	}
}

func TestRepeatAcquireIsIdempotent(t *testing.T) {
	tbl, obs := newTestTable()

	tbl.Acquire("h1", LevelScreenBright, FlagOnAfterRelease, "player", "com.example.video", WorkSource{1000}, 1000, 42)
	out, _, err := tbl.Acquire("h1", LevelScreenBright, FlagOnAfterRelease, "player", "com.example.video", WorkSource{1000}, 1000, 42)
	if err != nil {
		t.Fatalf("repeat Acquire: %v", err)
	}
	if out != AcquireUnchanged {
		t.Fatalf("expected unchanged, got %s", out)
	}
	if len(obs.events) != 1 {
		t.Fatalf("repeat acquire must not re-notify, got %v", obs.events)
	}
}

func TestPropertyChangeNotifiesReleaseThenAcquire(t *testing.T) {
	tbl, obs := newTestTable()

	tbl.Acquire("h1", LevelScreenDim, 0, "reader", "com.example.reader", nil, 1000, 42)
	out, l, err := tbl.Acquire("h1", LevelScreenBright, 0, "reader", "com.example.reader", nil, 1000, 42)
	if err != nil {
		t.Fatalf("update Acquire: %v", err)
	}
	if out != AcquireUpdated {
		t.Fatalf("expected updated, got %s", out)
	}
	if l.Level != LevelScreenBright {
		t.Fatalf("level not rewritten: %s", l.Level)
	}
	want := []string{"acq:h1", "rel:h1", "acq:h1"}
	if strings.Join(obs.events, " ") != strings.Join(want, " ") {
		t.Fatalf("expected %v, got %v", want, obs.events)
	}
	if tbl.Len() != 1 {
		t.Fatalf("update must not duplicate the lock, len=%d", tbl.Len())
	}
}

func TestOwnerMismatchRejected(t *testing.T) {
	tbl, _ := newTestTable()

	tbl.Acquire("h1", LevelPartial, 0, "sync", "com.example.sync", nil, 1000, 42)
	_, _, err := tbl.Acquire("h1", LevelFull, 0, "sync", "com.example.other", nil, 2000, 43)
	if !errors.Is(err, ErrOwnerMismatch) {
		t.Fatalf("expected ErrOwnerMismatch, got %v", err)
	}
}

func TestReleaseUnknownHandleIsSilent(t *testing.T) {
	tbl, obs := newTestTable()
	if _, ok := tbl.Release("nope"); ok {
		t.Fatal("release of unknown handle reported success")
	}
	if len(obs.events) != 0 {
		t.Fatalf("unexpected notifications: %v", obs.events)
	}
}

func TestUpdateWorkSource(t *testing.T) {
	tbl, obs := newTestTable()

	tbl.Acquire("h1", LevelPartial, 0, "sync", "com.example.sync", WorkSource{1000}, 1000, 42)

	changed, err := tbl.UpdateWorkSource("h1", WorkSource{1000})
	if err != nil || changed {
		t.Fatalf("identical source must be a no-op, changed=%v err=%v", changed, err)
	}

	changed, err = tbl.UpdateWorkSource("h1", WorkSource{1000, 2000})
	if err != nil || !changed {
		t.Fatalf("expected change, changed=%v err=%v", changed, err)
	}
	l, _ := tbl.Find("h1")
	if !l.WorkSource.Equal(WorkSource{1000, 2000}) {
		t.Fatalf("work source not updated: %v", l.WorkSource)
	}
	want := []string{"acq:h1", "rel:h1", "acq:h1"}
	if strings.Join(obs.events, " ") != strings.Join(want, " ") {
		t.Fatalf("expected %v, got %v", want, obs.events)
	}

	if _, err := tbl.UpdateWorkSource("nope", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSummaryByWakefulness(t *testing.T) {
	tbl, _ := newTestTable()
	tbl.Acquire("cpu", LevelPartial, 0, "sync", "com.example.sync", nil, 1000, 1)
	tbl.Acquire("scr", LevelScreenBright, 0, "player", "com.example.video", nil, 1000, 2)
	tbl.Acquire("prox", LevelProximityScreenOff, 0, "call", "com.example.phone", nil, 1001, 3)

	awake := tbl.Summary(false, true)
	if !awake.Has(SummaryCPU | SummaryScreenBright | SummaryStayAwake | SummaryProximityScreenOff) {
		t.Fatalf("awake summary missing bits: %s", awake)
	}

	dreaming := tbl.Summary(false, false)
	if dreaming.Has(SummaryStayAwake) {
		t.Fatalf("stay-awake must only apply while awake: %s", dreaming)
	}
	if !dreaming.Has(SummaryScreenBright) {
		t.Fatalf("screen demand should survive while not asleep: %s", dreaming)
	}

	asleep := tbl.Summary(true, false)
	if asleep.Has(SummaryScreenBright) || asleep.Has(SummaryProximityScreenOff) {
		t.Fatalf("screen demands must be inert while asleep: %s", asleep)
	}
	if !asleep.Has(SummaryCPU) {
		t.Fatalf("partial lock must hold the CPU while asleep: %s", asleep)
	}
}

func TestScreenDemandImpliesCPU(t *testing.T) {
	tbl, _ := newTestTable()
	tbl.Acquire("scr", LevelScreenDim, 0, "reader", "com.example.reader", nil, 1000, 1)
	s := tbl.Summary(false, true)
	if !s.Has(SummaryCPU) {
		t.Fatalf("screen demand must imply cpu: %s", s)
	}
}

func TestCountScreenLocks(t *testing.T) {
	tbl, _ := newTestTable()
	tbl.Acquire("a", LevelPartial, 0, "t", "p", nil, 1, 1)
	tbl.Acquire("b", LevelFull, 0, "t", "p", nil, 1, 2)
	tbl.Acquire("c", LevelScreenDim, 0, "t", "p", nil, 1, 3)
	if n := tbl.CountScreenLocks(); n != 2 {
		t.Fatalf("expected 2 screen locks, got %d", n)
	}
}

func TestReadyGateSuppressesNotifications(t *testing.T) {
	obs := &recordingObserver{}
	ready := false
	tbl := NewTable(obs, func() bool { return ready })

	tbl.Acquire("h1", LevelPartial, 0, "boot", "com.example.boot", nil, 1000, 1)
	tbl.Release("h1")
	if len(obs.events) != 0 {
		t.Fatalf("notifications before ready: %v", obs.events)
	}

	ready = true
	tbl.Acquire("h2", LevelPartial, 0, "run", "com.example.run", nil, 1000, 1)
	tbl.Release("h2")
	want := []string{"acq:h2", "rel:h2"}
	if strings.Join(obs.events, " ") != strings.Join(want, " ") {
		t.Fatalf("expected %v, got %v", want, obs.events)
	}
}
