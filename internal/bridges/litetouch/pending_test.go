package litetouch

import (
	"errors"
	"testing"
)

func TestPendingTrackerSingleOutstanding(t *testing.T) {
	var tr pendingTracker

	q, err := tr.issue(VerbGetLEDStates, 14, 1)
	if err != nil {
		t.Fatalf("issue() error: %v", err)
	}
	if _, err := tr.issue(VerbGetLEDState, 15, 2); !errors.Is(err, ErrQueryInFlight) {
		t.Errorf("second issue() = %v, want ErrQueryInFlight", err)
	}

	tr.cancel(q)
	if tr.outstanding() {
		t.Error("outstanding() = true after cancel")
	}
	if _, err := tr.issue(VerbGetLEDState, 15, 2); err != nil {
		t.Errorf("issue() after cancel: %v", err)
	}
}

func TestPendingTrackerResolve(t *testing.T) {
	var tr pendingTracker

	q, err := tr.issue(VerbGetLEDStates, 14, 3)
	if err != nil {
		t.Fatalf("issue() error: %v", err)
	}

	// Wrong verb leaves the query outstanding.
	if _, ok := tr.resolve(VerbGetLEDState, 1); ok {
		t.Error("resolve() with mismatched verb returned true")
	}
	if !tr.outstanding() {
		t.Fatal("query cleared by mismatched reply")
	}

	ev, ok := tr.resolve(VerbGetLEDStates, 5)
	if !ok {
		t.Fatal("resolve() returned false")
	}
	if ev.ID() != "014_3" || !ev.State {
		t.Errorf("event = %+v, want 014_3 on", ev)
	}

	res := <-q.result
	if res.err != nil || res.event != ev {
		t.Errorf("waiter got %+v, want %+v", res, ev)
	}
	if tr.outstanding() {
		t.Error("outstanding() = true after resolve")
	}
}

func TestPendingTrackerResolveWithoutQuery(t *testing.T) {
	var tr pendingTracker
	if _, ok := tr.resolve(VerbGetLEDStates, 5); ok {
		t.Error("resolve() without query returned true")
	}
}

func TestPendingTrackerCancelStale(t *testing.T) {
	var tr pendingTracker

	old, _ := tr.issue(VerbGetLEDStates, 1, 1)
	tr.cancel(old)
	current, _ := tr.issue(VerbGetLEDStates, 2, 1)

	// Cancelling a query that already left the slot must not clear the new one.
	tr.cancel(old)
	if !tr.outstanding() {
		t.Fatal("stale cancel cleared the current query")
	}
	tr.cancel(current)
}

func TestPendingTrackerAbandon(t *testing.T) {
	var tr pendingTracker

	q, _ := tr.issue(VerbGetLEDState, 14, 1)
	tr.abandon(ErrClientClosed)

	res := <-q.result
	if !errors.Is(res.err, ErrClientClosed) {
		t.Errorf("waiter error = %v, want ErrClientClosed", res.err)
	}
	if tr.outstanding() {
		t.Error("outstanding() = true after abandon")
	}

	// Abandon with nothing outstanding is a no-op.
	tr.abandon(ErrConnectionLost)
}
