package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"

	"pkt.systems/swissblade/core"
	"pkt.systems/swissblade/internal/catalog"
	"pkt.systems/swissblade/internal/logx"
	"pkt.systems/swissblade/internal/toolkit"
	"pkt.systems/swissblade/schema"
)

// Launcher opens the deploy command in a terminal.
type Launcher interface {
	Launch(ctx context.Context, directory, command string) (string, error)
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// Server serves the JSON API.
type Server struct {
	cfg      Config
	service  *core.Service
	tools    *toolkit.Toolkit
	launcher Launcher
	rng      core.Float64Source
	basePath string
}

// Option customises a Server.
type Option func(*Server)

// WithRand sets the source used for roulette spins.
func WithRand(rng core.Float64Source) Option {
	return func(s *Server) { s.rng = rng }
}

// NewServer constructs an HTTP server over the stores and tools.
func NewServer(cfg Config, service *core.Service, tools *toolkit.Toolkit, launcher Launcher, opts ...Option) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s := &Server{
		cfg:      cfg,
		service:  service,
		tools:    tools,
		launcher: launcher,
		rng:      globalRand{},
		basePath: normalizeBasePath(cfg.BasePath),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/proxy", s.handleProxy)
	mux.HandleFunc("POST /api/cert-check", s.handleCertCheck)
	mux.HandleFunc("POST /api/whistle", s.handleWhistle)

	mux.HandleFunc("GET /api/tabs", s.handleTabs)
	mux.HandleFunc("POST /api/tabs", s.handleAddTab)
	mux.HandleFunc("POST /api/tabs/open", s.handleOpenTab)
	mux.HandleFunc("POST /api/tabs/activate", s.handleActivateTab)
	mux.HandleFunc("POST /api/tabs/close", s.handleCloseTab)
	mux.HandleFunc("POST /api/tabs/state", s.handleTabState)
	mux.HandleFunc("POST /api/tabs/title", s.handleTabTitle)

	mux.HandleFunc("GET /api/settings", s.handleSettings)
	mux.HandleFunc("PUT /api/settings", s.handleUpdateSettings)

	mux.HandleFunc("GET /api/clicks", s.handleClicks)
	mux.HandleFunc("POST /api/clicks", s.handleIncrementClicks)
	mux.HandleFunc("POST /api/clicks/reset", s.handleResetClicks)
	mux.HandleFunc("POST /api/clicks/persist", s.handlePersistClicks)
	mux.HandleFunc("GET /api/clicks/stream", s.handleClickStream)

	mux.HandleFunc("GET /api/deploy", s.handleDeploy)
	mux.HandleFunc("POST /api/deploy/spin", s.handleDeploySpin)
	mux.HandleFunc("POST /api/deploy/result", s.handleDeployResult)
	mux.HandleFunc("POST /api/deploy/config", s.handleDeployConfig)
	mux.HandleFunc("POST /api/deploy/clear", s.handleDeployClear)
	mux.HandleFunc("POST /api/deploy/reset", s.handleDeployReset)
	mux.HandleFunc("POST /api/deploy/run", s.handleDeployRun)

	mux.HandleFunc("GET /api/tools", s.handleTools)
	mux.HandleFunc("POST /api/tools/{id}", s.handleRunTool)
	mux.HandleFunc("GET /api/ports", s.handlePortScan)
	mux.HandleFunc("GET /api/ports/{port}", s.handlePort)

	var handler http.Handler = mux
	handler = s.limitBody(handler)
	handler = withRequestLogging(handler)
	return mountAt(s.basePath, handler)
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	var req schema.ProxyRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.tools.Relay().Do(r.Context(), req)
	if err != nil {
		logx.Ctx(r.Context()).Warn("http proxy failed", "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCertCheck(w http.ResponseWriter, r *http.Request) {
	var req schema.CertCheckRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}
	log := logx.WithTarget(logx.Ctx(r.Context()), req.Host, req.Port)
	payload, err := s.tools.Certs().Check(r.Context(), req)
	if err != nil {
		log.Warn("http cert check failed", "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleWhistle(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.WhistleEnabled || s.tools.Whistle() == nil {
		http.NotFound(w, r)
		return
	}
	var req schema.WhistleRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}
	log := logx.WithTarget(logx.Ctx(r.Context()), req.Host, req.Port).With("mode", req.Mode)
	out, err := s.tools.Whistle().Run(r.Context(), req)
	if err != nil {
		log.Warn("http whistle failed", "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type tabRequest struct {
	ID     schema.TabID   `json:"id,omitempty"`
	ToolID schema.ToolID  `json:"toolId,omitempty"`
	Title  *string        `json:"title,omitempty"`
	State  map[string]any `json:"state,omitempty"`
}

type tabResponse struct {
	ID schema.TabID `json:"id,omitempty"`
	schema.TabsSnapshot
}

func (s *Server) handleTabs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Tabs.Snapshot())
}

func (s *Server) handleAddTab(w http.ResponseWriter, r *http.Request) {
	s.openTab(w, r, s.service.Tabs.AddTab)
}

func (s *Server) handleOpenTab(w http.ResponseWriter, r *http.Request) {
	s.openTab(w, r, s.service.Tabs.OpenOrFocusTab)
}

func (s *Server) openTab(w http.ResponseWriter, r *http.Request, open func(context.Context, schema.ToolID, string) (schema.TabID, error)) {
	var req tabRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}
	title := ""
	if req.Title != nil {
		title = *req.Title
	} else if tool, ok := catalog.Lookup(req.ToolID); ok {
		title = tool.Title
	}
	id, err := open(r.Context(), req.ToolID, title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tabResponse{ID: id, TabsSnapshot: s.service.Tabs.Snapshot()})
}

func (s *Server) handleActivateTab(w http.ResponseWriter, r *http.Request) {
	s.tabMutation(w, r, func(ctx context.Context, req tabRequest) error {
		return s.service.Tabs.SetActiveTab(ctx, req.ID)
	})
}

func (s *Server) handleCloseTab(w http.ResponseWriter, r *http.Request) {
	s.tabMutation(w, r, func(ctx context.Context, req tabRequest) error {
		return s.service.Tabs.RemoveTab(ctx, req.ID)
	})
}

func (s *Server) handleTabState(w http.ResponseWriter, r *http.Request) {
	s.tabMutation(w, r, func(ctx context.Context, req tabRequest) error {
		return s.service.Tabs.UpdateTabState(ctx, req.ID, req.State)
	})
}

func (s *Server) handleTabTitle(w http.ResponseWriter, r *http.Request) {
	s.tabMutation(w, r, func(ctx context.Context, req tabRequest) error {
		if req.Title == nil {
			return fmt.Errorf("%w: title is required", schema.ErrInvalidRequest)
		}
		return s.service.Tabs.UpdateTabTitle(ctx, req.ID, *req.Title)
	})
}

func (s *Server) tabMutation(w http.ResponseWriter, r *http.Request, fn func(context.Context, tabRequest) error) {
	var req tabRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ID == "" {
		writeError(w, fmt.Errorf("%w: id is required", schema.ErrInvalidRequest))
		return
	}
	ctx := logx.ContextWithTab(r.Context(), req.ID)
	if err := fn(ctx, req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tabResponse{ID: req.ID, TabsSnapshot: s.service.Tabs.Snapshot()})
}

func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Settings.Get())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch schema.SettingsPatch
	if err := decodeJSON(r.Body, &patch); err != nil {
		writeError(w, err)
		return
	}
	settings, err := s.service.Settings.Update(r.Context(), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleClicks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, clickPayload(s.service.Clicks.State()))
}

type clickResponse struct {
	schema.ClickTrackerState
	Stats core.ClickStats `json:"stats"`
}

func clickPayload(state schema.ClickTrackerState) clickResponse {
	return clickResponse{ClickTrackerState: state, Stats: core.ComputeClickStats(state.Lifetime)}
}

func (s *Server) handleIncrementClicks(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Amount int64 `json:"amount"`
	}{Amount: 1}
	body, err := readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if body != nil {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err))
			return
		}
	}
	state, err := s.service.Clicks.Increment(r.Context(), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clickPayload(state))
}

func (s *Server) handleResetClicks(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.Clicks.ResetSession(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clickPayload(state))
}

func (s *Server) handlePersistClicks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Persist *bool `json:"persist"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Persist == nil {
		writeError(w, fmt.Errorf("%w: persist is required", schema.ErrInvalidRequest))
		return
	}
	state, err := s.service.Clicks.SetPersist(r.Context(), *req.Persist)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clickPayload(state))
}

func (s *Server) handleDeploy(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deployPayload())
}

type deployResponse struct {
	schema.DeployState
	SurvivalRate float64            `json:"survivalRate"`
	Last         *schema.SpinResult `json:"last,omitempty"`
}

func (s *Server) deployPayload() deployResponse {
	return deployResponse{
		DeployState:  s.service.Deploy.State(),
		SurvivalRate: s.service.Deploy.SurvivalRate(),
	}
}

func (s *Server) handleDeploySpin(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Deploy.Spin(r.Context(), s.rng)
	if err != nil {
		writeError(w, err)
		return
	}
	out := s.deployPayload()
	out.Last = &result
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeployResult(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Result schema.SpinOutcome `json:"result"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := s.service.Deploy.AddResult(r.Context(), req.Result)
	if err != nil {
		writeError(w, err)
		return
	}
	out := s.deployPayload()
	out.Last = &result
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeployConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Directory     *string `json:"directory"`
		DeployCommand *string `json:"deployCommand"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Directory != nil {
		if err := s.service.Deploy.SetDirectory(r.Context(), *req.Directory); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.DeployCommand != nil {
		if err := s.service.Deploy.SetDeployCommand(r.Context(), *req.DeployCommand); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.deployPayload())
}

func (s *Server) handleDeployClear(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Deploy.ClearHistory(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deployPayload())
}

func (s *Server) handleDeployReset(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Deploy.ResetStats(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deployPayload())
}

func (s *Server) handleDeployRun(w http.ResponseWriter, r *http.Request) {
	if s.launcher == nil {
		http.NotFound(w, r)
		return
	}
	state := s.service.Deploy.State()
	log := logx.Ctx(r.Context()).With("directory", state.Directory)
	message, err := s.launcher.Launch(r.Context(), state.Directory, state.DeployCommand)
	if err != nil {
		log.Warn("http deploy launch failed", "err", err)
		writeError(w, err)
		return
	}
	log.Info("http deploy launched")
	writeJSON(w, http.StatusOK, map[string]any{"message": message})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": catalog.Search(r.URL.Query().Get("q"))})
}

func (s *Server) handleRunTool(w http.ResponseWriter, r *http.Request) {
	id := schema.ToolID(r.PathValue("id"))
	body, err := readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := s.tools.Run(r.Context(), id, body)
	if err != nil {
		logx.WithTool(r.Context(), id).Debug("http tool failed", "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePort(w http.ResponseWriter, r *http.Request) {
	port, err := parsePort(r.PathValue("port"))
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := s.tools.Ports().Check(r.Context(), port)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handlePortScan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parsePort(q.Get("from"))
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := parsePort(q.Get("to"))
	if err != nil {
		writeError(w, err)
		return
	}
	ports, err := s.tools.Ports().Scan(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ports": ports})
}

func parsePort(value string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", schema.ErrInvalidPort, value)
	}
	return port, nil
}
