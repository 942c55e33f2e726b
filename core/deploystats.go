package core

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/swissblade/internal/eventbus"
	"pkt.systems/swissblade/internal/logx"
	"pkt.systems/swissblade/internal/persist"
	"pkt.systems/swissblade/schema"
)

// Deploy roulette defaults.
const (
	DefaultDeployDirectory = "./"
	DefaultDeployCommand   = "npm run deploy:staging"
	// DeployOdds is the probability that a spin deploys instead of rickrolling.
	DeployOdds = 0.6
)

// Float64Source yields values in [0, 1).
type Float64Source interface {
	Float64() float64
}

// DeployStatsStore tracks deploy roulette spins and configuration.
type DeployStatsStore struct {
	mu    sync.Mutex
	state schema.DeployState
	blob  *blob
	bus   *eventbus.Bus
	log   pslog.Logger
	now   func() time.Time
}

// DefaultDeployState returns an empty roulette state.
func DefaultDeployState() schema.DeployState {
	return schema.DeployState{
		History:       []schema.SpinResult{},
		Directory:     DefaultDeployDirectory,
		DeployCommand: DefaultDeployCommand,
	}
}

// NewDeployStatsStore constructs the store and loads persisted stats.
func NewDeployStatsStore(deps Deps) *DeployStatsStore {
	s := &DeployStatsStore{
		state: DefaultDeployState(),
		blob:  newBlob(deps.Backend, persist.KeyDeployStats, true),
		bus:   deps.Bus,
		log:   deps.logger().With("store", "deploy"),
		now:   deps.now,
	}
	loaded := DefaultDeployState()
	if ok, err := s.blob.load(&loaded); err != nil {
		s.log.Warn("deploy load failed", "err", err)
	} else if ok {
		s.state = normalizeDeployState(loaded)
	}
	return s
}

// State returns a copy of the roulette state.
func (s *DeployStatsStore) State() schema.DeployState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneDeployState(s.state)
}

// AddResult records a spin outcome, newest first, keeping the most recent entries.
func (s *DeployStatsStore) AddResult(ctx context.Context, outcome schema.SpinOutcome) (schema.SpinResult, error) {
	if !outcome.Valid() {
		return schema.SpinResult{}, schema.ErrInvalidOutcome
	}
	var result schema.SpinResult
	err := s.mutate(ctx, "result", func(st *schema.DeployState) {
		now := s.now()
		ms := now.UnixMilli()
		if len(st.History) > 0 {
			if last, err := strconv.ParseInt(st.History[0].ID, 10, 64); err == nil && last >= ms {
				ms = last + 1
			}
		}
		result = schema.SpinResult{
			ID:        strconv.FormatInt(ms, 10),
			Timestamp: now.Format("15:04:05"),
			Result:    outcome,
			Survived:  outcome == schema.SpinDeploy,
		}
		history := make([]schema.SpinResult, 0, schema.DeployHistoryMax)
		history = append(history, result)
		keep := min(len(st.History), schema.DeployHistoryMax-1)
		history = append(history, st.History[:keep]...)
		st.History = history
		if outcome == schema.SpinDeploy {
			st.Stats.Deploys++
		} else {
			st.Stats.Rickrolls++
		}
	})
	if err != nil {
		return schema.SpinResult{}, err
	}
	logx.Ctx(ctx).Info("deploy spin recorded", "result", result.Result)
	return result, nil
}

// Spin draws an outcome from rng and records it.
func (s *DeployStatsStore) Spin(ctx context.Context, rng Float64Source) (schema.SpinResult, error) {
	outcome := schema.SpinRickroll
	if rng.Float64() < DeployOdds {
		outcome = schema.SpinDeploy
	}
	return s.AddResult(ctx, outcome)
}

// SetDirectory sets the working directory for the deploy command.
func (s *DeployStatsStore) SetDirectory(ctx context.Context, dir string) error {
	return s.mutate(ctx, "directory", func(st *schema.DeployState) {
		st.Directory = dir
	})
}

// SetDeployCommand sets the command to run on a surviving spin.
func (s *DeployStatsStore) SetDeployCommand(ctx context.Context, command string) error {
	return s.mutate(ctx, "command", func(st *schema.DeployState) {
		st.DeployCommand = command
	})
}

// ClearHistory drops the spin history but keeps the counters.
func (s *DeployStatsStore) ClearHistory(ctx context.Context) error {
	return s.mutate(ctx, "clear", func(st *schema.DeployState) {
		st.History = []schema.SpinResult{}
	})
}

// ResetStats zeroes the counters and clears the history.
func (s *DeployStatsStore) ResetStats(ctx context.Context) error {
	return s.mutate(ctx, "reset", func(st *schema.DeployState) {
		st.Stats = schema.DeployStats{}
		st.History = []schema.SpinResult{}
	})
}

// SurvivalRate returns the percentage of spins that deployed.
func (s *DeployStatsStore) SurvivalRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.state.Stats.Deploys + s.state.Stats.Rickrolls
	if total == 0 {
		return 0
	}
	return float64(s.state.Stats.Deploys) / float64(total) * 100
}

// Reload re-reads persisted stats when they changed underneath the store.
func (s *DeployStatsStore) Reload() (bool, error) {
	loaded := DefaultDeployState()
	changed, err := s.blob.reload(&loaded)
	if err != nil || !changed {
		return false, err
	}
	next := normalizeDeployState(loaded)
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	s.bus.OnDeploy(cloneDeployState(next))
	return true, nil
}

func (s *DeployStatsStore) mutate(ctx context.Context, op string, fn func(*schema.DeployState)) error {
	s.mu.Lock()
	next := cloneDeployState(s.state)
	fn(&next)
	if err := s.blob.save(next); err != nil {
		s.mu.Unlock()
		logx.Ctx(ctx).Warn("deploy save failed", "op", op, "err", err)
		return err
	}
	s.state = next
	snapshot := cloneDeployState(next)
	s.mu.Unlock()
	s.log.Trace("deploy mutate ok", "op", op, "history", len(snapshot.History))
	s.bus.OnDeploy(snapshot)
	return nil
}

func cloneDeployState(in schema.DeployState) schema.DeployState {
	out := in
	out.History = append([]schema.SpinResult{}, in.History...)
	return out
}

func normalizeDeployState(in schema.DeployState) schema.DeployState {
	out := cloneDeployState(in)
	if len(out.History) > schema.DeployHistoryMax {
		out.History = out.History[:schema.DeployHistoryMax]
	}
	if strings.TrimSpace(out.Directory) == "" {
		out.Directory = DefaultDeployDirectory
	}
	if strings.TrimSpace(out.DeployCommand) == "" {
		out.DeployCommand = DefaultDeployCommand
	}
	if out.Stats.Deploys < 0 {
		out.Stats.Deploys = 0
	}
	if out.Stats.Rickrolls < 0 {
		out.Stats.Rickrolls = 0
	}
	return out
}
