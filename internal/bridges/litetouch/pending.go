package litetouch

import (
	"sync"
	"time"
)

// defaultQueryTimeout bounds how long a caller waits for a query reply.
const defaultQueryTimeout = 3 * time.Second

// queryResult is what a waiting caller receives.
type queryResult struct {
	event Event
	err   error
}

// pendingQuery is the single outstanding query expectation.
//
// A reply carries only a status value, so the keypad and button the caller
// asked about are recorded here and threaded into the resulting Event.
type pendingQuery struct {
	verb   Verb
	keypad int
	button int
	issued time.Time

	// result has capacity 1 and receives exactly one value.
	result chan queryResult
}

// pendingTracker correlates outgoing queries with their replies.
//
// The panel gives replies no correlation id, so at most one query may be
// outstanding per connection. All methods are safe for concurrent use: the
// reader calls resolve and abandon, callers call issue and cancel.
type pendingTracker struct {
	mu      sync.Mutex
	current *pendingQuery
}

// issue records a new outstanding query.
//
// Returns ErrQueryInFlight if another query has not yet resolved or timed out.
func (t *pendingTracker) issue(verb Verb, keypad, button int) (*pendingQuery, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		return nil, ErrQueryInFlight
	}
	q := &pendingQuery{
		verb:   verb,
		keypad: keypad,
		button: button,
		issued: time.Now(),
		result: make(chan queryResult, 1),
	}
	t.current = q
	return q, nil
}

// resolve completes the outstanding query if its verb matches.
//
// It returns the event built from the recorded keypad and button, and false
// when there was nothing to resolve.
func (t *pendingTracker) resolve(verb Verb, status int) (Event, bool) {
	t.mu.Lock()
	q := t.current
	if q == nil || q.verb != verb {
		t.mu.Unlock()
		return Event{}, false
	}
	t.current = nil
	t.mu.Unlock()

	ev := replyEvent(verb, q.keypad, q.button, status)
	q.result <- queryResult{event: ev}
	return ev, true
}

// cancel clears the slot if q is still the outstanding query.
func (t *pendingTracker) cancel(q *pendingQuery) {
	t.mu.Lock()
	if t.current == q {
		t.current = nil
	}
	t.mu.Unlock()
}

// abandon fails the outstanding query, if any, with err.
func (t *pendingTracker) abandon(err error) {
	t.mu.Lock()
	q := t.current
	t.current = nil
	t.mu.Unlock()

	if q != nil {
		q.result <- queryResult{err: err}
	}
}

// outstanding reports whether a query is waiting for its reply.
func (t *pendingTracker) outstanding() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil
}
