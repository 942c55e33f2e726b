package core

import (
	"context"
	"strings"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/swissblade/internal/eventbus"
	"pkt.systems/swissblade/internal/logx"
	"pkt.systems/swissblade/internal/persist"
	"pkt.systems/swissblade/schema"
)

// TabStore holds the ordered list of open tabs and the active selection.
type TabStore struct {
	mu        sync.Mutex
	state     schema.TabsSnapshot
	blob      *blob
	bus       *eventbus.Bus
	log       pslog.Logger
	knownTool func(schema.ToolID) bool
}

// NewTabStore constructs a tab store and loads any persisted snapshot.
func NewTabStore(deps Deps) *TabStore {
	s := &TabStore{
		blob:      newBlob(deps.Backend, persist.KeyTabs, true),
		bus:       deps.Bus,
		log:       deps.logger().With("store", "tabs"),
		knownTool: deps.KnownTool,
	}
	var loaded schema.TabsSnapshot
	if ok, err := s.blob.load(&loaded); err != nil {
		s.log.Warn("tabs load failed", "err", err)
	} else if ok {
		s.state = sanitizeTabs(loaded)
		s.log.Debug("tabs load ok", "tabs", len(s.state.Tabs))
	}
	return s
}

// Snapshot returns a copy of the current tabs and active id.
func (s *TabStore) Snapshot() schema.TabsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTabs(s.state)
}

// Get returns the tab with the given id.
func (s *TabStore) Get(id schema.TabID) (schema.Tab, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := indexOfTab(s.state.Tabs, id)
	if idx < 0 {
		return schema.Tab{}, false
	}
	return s.state.Tabs[idx].Clone(), true
}

// AddTab appends a new tab for the tool and activates it.
func (s *TabStore) AddTab(ctx context.Context, toolID schema.ToolID, title string) (schema.TabID, error) {
	if err := s.validateTool(toolID); err != nil {
		return "", err
	}
	var id schema.TabID
	err := s.mutate(ctx, "add", func(st *schema.TabsSnapshot) error {
		id = appendTab(st, toolID, title)
		return nil
	})
	if err != nil {
		return "", err
	}
	logx.WithToolTab(ctx, toolID, id).Info("tabs tab added")
	return id, nil
}

// OpenOrFocusTab activates the existing tab for the tool, or adds one when none exists.
func (s *TabStore) OpenOrFocusTab(ctx context.Context, toolID schema.ToolID, title string) (schema.TabID, error) {
	if err := s.validateTool(toolID); err != nil {
		return "", err
	}
	var id schema.TabID
	err := s.mutate(ctx, "open", func(st *schema.TabsSnapshot) error {
		for _, tab := range st.Tabs {
			if tab.ToolID == toolID {
				id = tab.ID
				st.ActiveTabID = tabIDPtr(id)
				return nil
			}
		}
		id = appendTab(st, toolID, title)
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// RemoveTab closes a tab. Removing the active tab activates the tab now at the
// same index, else the one before it, else nothing.
func (s *TabStore) RemoveTab(ctx context.Context, id schema.TabID) error {
	return s.mutate(ctx, "remove", func(st *schema.TabsSnapshot) error {
		idx := indexOfTab(st.Tabs, id)
		if idx < 0 {
			return schema.ErrTabNotFound
		}
		remaining := make([]schema.Tab, 0, len(st.Tabs)-1)
		remaining = append(remaining, st.Tabs[:idx]...)
		remaining = append(remaining, st.Tabs[idx+1:]...)
		if st.Active() == id {
			switch {
			case idx < len(remaining):
				st.ActiveTabID = tabIDPtr(remaining[idx].ID)
			case idx-1 >= 0 && idx-1 < len(remaining):
				st.ActiveTabID = tabIDPtr(remaining[idx-1].ID)
			default:
				st.ActiveTabID = nil
			}
		}
		st.Tabs = remaining
		return nil
	})
}

// SetActiveTab selects a tab.
func (s *TabStore) SetActiveTab(ctx context.Context, id schema.TabID) error {
	return s.mutate(ctx, "activate", func(st *schema.TabsSnapshot) error {
		if indexOfTab(st.Tabs, id) < 0 {
			return schema.ErrTabNotFound
		}
		st.ActiveTabID = tabIDPtr(id)
		return nil
	})
}

// UpdateTabState shallow-merges values into the tab's state.
func (s *TabStore) UpdateTabState(ctx context.Context, id schema.TabID, values map[string]any) error {
	return s.mutate(ctx, "state", func(st *schema.TabsSnapshot) error {
		idx := indexOfTab(st.Tabs, id)
		if idx < 0 {
			return schema.ErrTabNotFound
		}
		merged := make(map[string]any, len(st.Tabs[idx].State)+len(values))
		for k, v := range st.Tabs[idx].State {
			merged[k] = v
		}
		for k, v := range values {
			merged[k] = v
		}
		st.Tabs[idx].State = merged
		return nil
	})
}

// UpdateTabTitle renames a tab.
func (s *TabStore) UpdateTabTitle(ctx context.Context, id schema.TabID, title string) error {
	return s.mutate(ctx, "title", func(st *schema.TabsSnapshot) error {
		idx := indexOfTab(st.Tabs, id)
		if idx < 0 {
			return schema.ErrTabNotFound
		}
		st.Tabs[idx].Title = title
		return nil
	})
}

// Reload re-reads the persisted snapshot when it changed underneath the store.
func (s *TabStore) Reload() (bool, error) {
	var loaded schema.TabsSnapshot
	changed, err := s.blob.reload(&loaded)
	if err != nil || !changed {
		return false, err
	}
	s.mu.Lock()
	s.state = sanitizeTabs(loaded)
	snapshot := cloneTabs(s.state)
	s.mu.Unlock()
	s.log.Debug("tabs reload ok", "tabs", len(snapshot.Tabs))
	s.bus.OnTabs(snapshot)
	return true, nil
}

func (s *TabStore) mutate(ctx context.Context, op string, fn func(*schema.TabsSnapshot) error) error {
	s.mu.Lock()
	next := cloneTabs(s.state)
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.blob.save(next); err != nil {
		s.mu.Unlock()
		logx.Ctx(ctx).Warn("tabs save failed", "op", op, "err", err)
		return err
	}
	s.state = next
	snapshot := cloneTabs(next)
	s.mu.Unlock()
	s.log.Trace("tabs mutate ok", "op", op, "tabs", len(snapshot.Tabs), "active", snapshot.Active())
	s.bus.OnTabs(snapshot)
	return nil
}

func (s *TabStore) validateTool(toolID schema.ToolID) error {
	if err := schema.ValidateToolID(toolID); err != nil {
		return err
	}
	if s.knownTool != nil && !s.knownTool(toolID) {
		return schema.ErrUnknownTool
	}
	return nil
}

func appendTab(st *schema.TabsSnapshot, toolID schema.ToolID, title string) schema.TabID {
	id := newTabID(toolID)
	title = strings.TrimSpace(title)
	if title == "" {
		title = string(toolID)
	}
	st.Tabs = append(st.Tabs, schema.Tab{ID: id, ToolID: toolID, Title: title})
	st.ActiveTabID = tabIDPtr(id)
	return id
}

func indexOfTab(tabs []schema.Tab, id schema.TabID) int {
	for i, tab := range tabs {
		if tab.ID == id {
			return i
		}
	}
	return -1
}

func tabIDPtr(id schema.TabID) *schema.TabID {
	return &id
}

func cloneTabs(in schema.TabsSnapshot) schema.TabsSnapshot {
	out := schema.TabsSnapshot{Tabs: make([]schema.Tab, 0, len(in.Tabs))}
	for _, tab := range in.Tabs {
		out.Tabs = append(out.Tabs, tab.Clone())
	}
	if in.ActiveTabID != nil {
		out.ActiveTabID = tabIDPtr(*in.ActiveTabID)
	}
	return out
}

// sanitizeTabs drops duplicate or empty ids and clears a dangling active id.
func sanitizeTabs(in schema.TabsSnapshot) schema.TabsSnapshot {
	seen := make(map[schema.TabID]struct{}, len(in.Tabs))
	out := schema.TabsSnapshot{Tabs: make([]schema.Tab, 0, len(in.Tabs))}
	for _, tab := range in.Tabs {
		if tab.ID == "" {
			continue
		}
		if _, dup := seen[tab.ID]; dup {
			continue
		}
		seen[tab.ID] = struct{}{}
		out.Tabs = append(out.Tabs, tab.Clone())
	}
	if in.ActiveTabID != nil {
		if _, ok := seen[*in.ActiveTabID]; ok {
			out.ActiveTabID = tabIDPtr(*in.ActiveTabID)
		}
	}
	return out
}
