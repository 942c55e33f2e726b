package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/swissblade/schema"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventClicks carries click tracker state changes.
	EventClicks EventType = "clicks"
	// EventTabs carries tab store snapshots.
	EventTabs EventType = "tabs"
	// EventSettings carries settings changes.
	EventSettings EventType = "settings"
	// EventDeploy carries deploy roulette state changes.
	EventDeploy EventType = "deploy"
)

// Event represents a state change emitted by the stores.
type Event struct {
	Type     EventType
	Clicks   schema.ClickTrackerState
	Tabs     schema.TabsSnapshot
	Settings schema.Settings
	Deploy   schema.DeployState
}

// Bus fans events out to per-type subscribers.
type Bus struct {
	mu    sync.Mutex
	subs  map[EventType]map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[EventType]map[chan Event]struct{}),
		log:   logger,
		depth: 64,
	}
}

// Subscribe registers a subscriber for an event type and returns a channel + cancel.
func (b *Bus) Subscribe(eventType EventType) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	typeSubs := b.subs[eventType]
	if typeSubs == nil {
		typeSubs = make(map[chan Event]struct{})
		b.subs[eventType] = typeSubs
	}
	typeSubs[ch] = struct{}{}
	count := len(typeSubs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.With("event", eventType).Debug("eventbus subscribe", "subs", count)
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[eventType]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, eventType)
				}
			}
			b.mu.Unlock()
			close(ch)
			if b.log != nil {
				b.log.With("event", eventType).Debug("eventbus unsubscribe")
			}
		})
	}
}

// Subscribers reports how many subscribers listen for an event type.
func (b *Bus) Subscribers(eventType EventType) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[eventType])
}

// OnClicks publishes a click tracker state.
func (b *Bus) OnClicks(state schema.ClickTrackerState) {
	b.Publish(Event{Type: EventClicks, Clicks: state})
}

// OnTabs publishes a tab snapshot.
func (b *Bus) OnTabs(snapshot schema.TabsSnapshot) {
	b.Publish(Event{Type: EventTabs, Tabs: snapshot})
}

// OnSettings publishes settings.
func (b *Bus) OnSettings(settings schema.Settings) {
	b.Publish(Event{Type: EventSettings, Settings: settings})
}

// OnDeploy publishes deploy roulette state.
func (b *Bus) OnDeploy(state schema.DeployState) {
	b.Publish(Event{Type: EventDeploy, Deploy: state})
}

// Publish delivers the event to every subscriber of its type without blocking.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}
	// Sends happen under the lock so cancel cannot close a channel mid-send.
	b.mu.Lock()
	dropped := 0
	for sub := range b.subs[event.Type] {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 && b.log != nil {
		b.log.With("event", event.Type).Trace("eventbus dropped", "count", dropped)
	}
}
