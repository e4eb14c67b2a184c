package suspend

import "testing"

type recordingSink struct {
	events []string
}

func (r *recordingSink) OnBlock(name string)   { r.events = append(r.events, "block:"+name) }
func (r *recordingSink) OnUnblock(name string) { r.events = append(r.events, "unblock:"+name) }

func TestEdgeTransitionsFireOnce(t *testing.T) {
	sink := &recordingSink{}
	b := New("cpu", sink)

	b.Acquire()
	b.Acquire()
	b.Acquire()
	if len(sink.events) != 1 || sink.events[0] != "block:cpu" {
		t.Fatalf("expected single block event, got %v", sink.events)
	}

	b.Release()
	b.Release()
	if len(sink.events) != 1 {
		t.Fatalf("sink fired before count reached zero: %v", sink.events)
	}

	b.Release()
	if len(sink.events) != 2 || sink.events[1] != "unblock:cpu" {
		t.Fatalf("expected unblock event, got %v", sink.events)
	}
	if b.IsHeld() {
		t.Fatal("blocker still held after balanced release")
	}
}

func TestOverReleaseClampsAtZero(t *testing.T) {
	sink := &recordingSink{}
	b := New("display", sink)

	b.Acquire()
	b.Release()
	// Two extra releases must not drive the count negative.
	b.Release()
	b.Release()

	b.Acquire()
	if !b.IsHeld() {
		t.Fatal("acquire after over-release should hold the blocker")
	}
	want := []string{"block:display", "unblock:display", "block:display"}
	if len(sink.events) != len(want) {
		t.Fatalf("expected %v, got %v", want, sink.events)
	}
	for i := range want {
		if sink.events[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], sink.events[i])
		}
	}
}

func TestNilSinkIsSafe(t *testing.T) {
	b := New("cpu", nil)
	b.Acquire()
	if !b.IsHeld() {
		t.Fatal("expected held")
	}
	b.Release()
	if b.IsHeld() {
		t.Fatal("expected released")
	}
}
