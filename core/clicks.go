package core

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/swissblade/internal/eventbus"
	"pkt.systems/swissblade/internal/logx"
	"pkt.systems/swissblade/internal/persist"
	"pkt.systems/swissblade/schema"
)

// persistedClicks is the on-disk click tracker form; session counts are never stored.
type persistedClicks struct {
	Lifetime int64 `json:"lifetime"`
	Persist  *bool `json:"persist,omitempty"`
}

// ClickTracker counts clicks for the current session and across sessions.
type ClickTracker struct {
	mu    sync.Mutex
	state schema.ClickTrackerState
	blob  *blob
	bus   *eventbus.Bus
	log   pslog.Logger
}

// NewClickTracker constructs a tracker, restoring the lifetime count when persisted.
func NewClickTracker(deps Deps) *ClickTracker {
	t := &ClickTracker{
		state: schema.ClickTrackerState{Persist: true},
		blob:  newBlob(deps.Backend, persist.KeyClickTracker, false),
		bus:   deps.Bus,
		log:   deps.logger().With("store", "clicks"),
	}
	var loaded persistedClicks
	if ok, err := t.blob.load(&loaded); err != nil {
		t.log.Warn("clicks load failed", "err", err)
	} else if ok {
		t.apply(loaded)
	}
	return t
}

// State returns the current counters.
func (t *ClickTracker) State() schema.ClickTrackerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Increment bumps both counters. Non-positive amounts are ignored.
func (t *ClickTracker) Increment(ctx context.Context, amount int64) (schema.ClickTrackerState, error) {
	if amount <= 0 {
		return t.State(), nil
	}
	return t.mutate(ctx, "increment", false, func(st *schema.ClickTrackerState) {
		st.Lifetime += amount
		st.Session += amount
	})
}

// ResetSession zeroes the session counter.
func (t *ClickTracker) ResetSession(ctx context.Context) (schema.ClickTrackerState, error) {
	return t.mutate(ctx, "reset", false, func(st *schema.ClickTrackerState) {
		st.Session = 0
	})
}

// SetPersist toggles persistence of the lifetime counter. The flag itself is always stored.
func (t *ClickTracker) SetPersist(ctx context.Context, enabled bool) (schema.ClickTrackerState, error) {
	return t.mutate(ctx, "persist", true, func(st *schema.ClickTrackerState) {
		st.Persist = enabled
	})
}

// Subscribe calls listener with the current state and then with every change
// until the returned function is called.
func (t *ClickTracker) Subscribe(listener func(schema.ClickTrackerState)) func() {
	if t.bus == nil {
		listener(t.State())
		return func() {}
	}
	ch, cancel := t.bus.Subscribe(eventbus.EventClicks)
	listener(t.State())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range ch {
			listener(event.Clicks)
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// Reload restores persisted counters when they changed underneath the tracker.
func (t *ClickTracker) Reload() (bool, error) {
	var loaded persistedClicks
	changed, err := t.blob.reload(&loaded)
	if err != nil || !changed {
		return false, err
	}
	t.mu.Lock()
	t.apply(loaded)
	state := t.state
	t.mu.Unlock()
	t.bus.OnClicks(state)
	return true, nil
}

func (t *ClickTracker) apply(loaded persistedClicks) {
	if loaded.Persist != nil {
		t.state.Persist = *loaded.Persist
	}
	if loaded.Lifetime > 0 {
		t.state.Lifetime = loaded.Lifetime
	}
}

func (t *ClickTracker) mutate(ctx context.Context, op string, alwaysSave bool, fn func(*schema.ClickTrackerState)) (schema.ClickTrackerState, error) {
	t.mu.Lock()
	next := t.state
	fn(&next)
	if next.Persist || alwaysSave {
		flag := next.Persist
		if err := t.blob.save(persistedClicks{Lifetime: next.Lifetime, Persist: &flag}); err != nil {
			t.mu.Unlock()
			logx.Ctx(ctx).Warn("clicks save failed", "op", op, "err", err)
			return schema.ClickTrackerState{}, err
		}
	}
	t.state = next
	t.mu.Unlock()
	t.log.Trace("clicks mutate ok", "op", op, "lifetime", next.Lifetime, "session", next.Session)
	t.bus.OnClicks(next)
	return next, nil
}
