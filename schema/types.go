package schema

import "encoding/json"

// TabID identifies an open tab.
type TabID string

// ToolID identifies a tool in the catalog.
type ToolID string

// ThemeName identifies a UI theme.
type ThemeName string

// Tab binds an open tool instance to its on-screen state.
type Tab struct {
	ID     TabID          `json:"id"`
	ToolID ToolID         `json:"toolId"`
	Title  string         `json:"title"`
	State  map[string]any `json:"state,omitempty"`
}

// Clone returns a deep-enough copy of the tab for handing out of a store.
func (t Tab) Clone() Tab {
	out := t
	if t.State != nil {
		out.State = cloneState(t.State)
	}
	return out
}

// TabsSnapshot is the persisted and transport view of the tab store.
type TabsSnapshot struct {
	Tabs        []Tab  `json:"tabs"`
	ActiveTabID *TabID `json:"activeTabId"`
}

// Active returns the active tab id or an empty id when none is selected.
func (s TabsSnapshot) Active() TabID {
	if s.ActiveTabID == nil {
		return ""
	}
	return *s.ActiveTabID
}

// BossMode holds the panic-key overlay preferences.
type BossMode struct {
	IsActive bool   `json:"isActive"`
	PanicKey string `json:"panicKey"`
}

// Settings holds user preferences.
type Settings struct {
	Theme            ThemeName `json:"theme"`
	Language         string    `json:"language"`
	SidebarCollapsed bool      `json:"sidebarCollapsed"`
	BossMode         BossMode  `json:"bossMode"`
}

// SettingsPatch carries a partial settings update; nil fields are left untouched.
type SettingsPatch struct {
	Theme            *string `json:"theme,omitempty"`
	Language         *string `json:"language,omitempty"`
	SidebarCollapsed *bool   `json:"sidebarCollapsed,omitempty"`
	BossModeActive   *bool   `json:"bossModeActive,omitempty"`
	PanicKey         *string `json:"panicKey,omitempty"`
}

// ClickTrackerState reports the click counters.
type ClickTrackerState struct {
	Lifetime int64 `json:"lifetime"`
	Session  int64 `json:"session"`
	Persist  bool  `json:"persist"`
}

// SpinOutcome is the result of a deploy roulette spin.
type SpinOutcome string

const (
	// SpinDeploy means the deploy went ahead.
	SpinDeploy SpinOutcome = "deploy"
	// SpinRickroll means the deploy was replaced by a rickroll.
	SpinRickroll SpinOutcome = "rickroll"
)

// Valid reports whether the outcome is known.
func (o SpinOutcome) Valid() bool {
	return o == SpinDeploy || o == SpinRickroll
}

// SpinResult records one roulette spin.
type SpinResult struct {
	ID        string      `json:"id"`
	Timestamp string      `json:"timestamp"`
	Result    SpinOutcome `json:"result"`
	Survived  bool        `json:"survived"`
}

// DeployStats holds cumulative roulette counters.
type DeployStats struct {
	Deploys   int `json:"deploys"`
	Rickrolls int `json:"rickrolls"`
}

// DeployState is the persisted deploy roulette state.
type DeployState struct {
	History       []SpinResult `json:"history"`
	Stats         DeployStats  `json:"stats"`
	Directory     string       `json:"directory"`
	DeployCommand string       `json:"deployCommand"`
}

// DeployHistoryMax bounds the roulette history.
const DeployHistoryMax = 10

func cloneState(in map[string]any) map[string]any {
	data, err := json.Marshal(in)
	if err != nil {
		out := make(map[string]any, len(in))
		for k, v := range in {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return in
	}
	return out
}
