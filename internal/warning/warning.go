// Package warning holds the single active collision warning and expires it
// when the backend stops refreshing it.
package warning

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smartroad/telemetry/internal/monitoring"
	"github.com/smartroad/telemetry/internal/roadapi"
	"github.com/smartroad/telemetry/internal/timeutil"
)

// DefaultTTL is how long an activated warning stays visible without being
// replaced or cleared.
const DefaultTTL = 5 * time.Second

// Lifecycle is a two-state machine: cleared or active with exactly one
// warning. Activating while active replaces the warning and restarts the
// expiry countdown. Subscribers receive the new warning on every activation
// and nil on clear or expiry.
type Lifecycle struct {
	clock timeutil.Clock
	ttl   time.Duration

	mu      sync.Mutex
	current *roadapi.CollisionWarning
	seq     uint64
	cancel  chan struct{}

	subMu sync.Mutex
	subs  map[string]func(*roadapi.CollisionWarning)
}

// NewLifecycle creates a cleared lifecycle. A nil clock defaults to the real
// clock; a non-positive ttl defaults to DefaultTTL.
func NewLifecycle(clock timeutil.Clock, ttl time.Duration) *Lifecycle {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Lifecycle{
		clock: clock,
		ttl:   ttl,
		subs:  make(map[string]func(*roadapi.CollisionWarning)),
	}
}

// Activate shows w and arms a fresh expiry countdown, replacing any warning
// currently shown. The previous countdown is cancelled, so the new warning
// always gets the full TTL.
func (l *Lifecycle) Activate(w *roadapi.CollisionWarning) {
	if w == nil {
		return
	}
	shown := *w

	l.mu.Lock()
	l.cancelArmLocked()
	l.current = &shown
	l.seq++
	seq := l.seq
	cancel := make(chan struct{})
	l.cancel = cancel
	timer := l.clock.NewTimer(l.ttl)
	l.mu.Unlock()

	go l.watchExpiry(seq, timer, cancel)
	l.notify(&shown)
}

// Clear removes the active warning immediately. A no-op when already cleared.
func (l *Lifecycle) Clear() {
	l.mu.Lock()
	if l.current == nil {
		l.mu.Unlock()
		return
	}
	l.cancelArmLocked()
	l.current = nil
	l.seq++
	l.mu.Unlock()

	l.notify(nil)
}

// Active returns a copy of the warning currently shown, if any.
func (l *Lifecycle) Active() (roadapi.CollisionWarning, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return roadapi.CollisionWarning{}, false
	}
	return *l.current, true
}

// Subscribe registers fn to run on every transition and returns a token for
// Unsubscribe. fn receives the activated warning, or nil on clear and expiry.
func (l *Lifecycle) Subscribe(fn func(*roadapi.CollisionWarning)) string {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	token := uuid.NewString()
	l.subs[token] = fn
	return token
}

// Unsubscribe removes the subscription with the given token.
func (l *Lifecycle) Unsubscribe(token string) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	delete(l.subs, token)
}

// cancelArmLocked stops the countdown of the current arm, if any. Caller
// holds l.mu.
func (l *Lifecycle) cancelArmLocked() {
	if l.cancel != nil {
		close(l.cancel)
		l.cancel = nil
	}
}

// watchExpiry clears the warning when its countdown fires. A replaced or
// cleared arm is cancelled before the timer fires; the sequence check guards
// the race where both happen at once.
func (l *Lifecycle) watchExpiry(seq uint64, timer timeutil.Timer, cancel <-chan struct{}) {
	select {
	case <-timer.C():
	case <-cancel:
		timer.Stop()
		return
	}

	l.mu.Lock()
	if l.seq != seq || l.current == nil {
		l.mu.Unlock()
		return
	}
	l.current = nil
	l.cancel = nil
	l.mu.Unlock()

	monitoring.Logf("warning: expired after %v without refresh", l.ttl)
	l.notify(nil)
}

func (l *Lifecycle) notify(w *roadapi.CollisionWarning) {
	l.subMu.Lock()
	fns := make([]func(*roadapi.CollisionWarning), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.subMu.Unlock()

	for _, fn := range fns {
		invokeSub(fn, w)
	}
}

// invokeSub shields the lifecycle from subscriber panics.
func invokeSub(fn func(*roadapi.CollisionWarning), w *roadapi.CollisionWarning) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("warning: subscriber panicked: %v", r)
		}
	}()
	fn(w)
}
