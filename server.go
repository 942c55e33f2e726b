package swissblade

import (
	"context"
	"errors"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
	"pkt.systems/pslog"
	"pkt.systems/swissblade/core"
	"pkt.systems/swissblade/httpapi"
	"pkt.systems/swissblade/internal/persist"
	"pkt.systems/swissblade/internal/toolkit"
	"pkt.systems/swissblade/sshserver"
)

// Server composes the HTTP API, the SSH terminal UI and the state watcher.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	HTTP httpapi.Config
	// Listener is used instead of HTTP.Addr when set.
	Listener net.Listener
	// SSH serves the terminal UI when SSH.Addr or SSHListener is set.
	SSH         sshserver.Config
	SSHListener net.Listener
	// WatchDir reloads stores when state files under it change. Empty disables watching.
	WatchDir string
}

func (c ServerConfig) sshEnabled() bool {
	return c.SSHListener != nil || c.SSH.Addr != ""
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	Service  *core.Service
	Tools    *toolkit.Toolkit
	Launcher httpapi.Launcher
}

// New constructs a composable swissblade server.
func New(cfg ServerConfig, deps ServerDeps) (Server, error) {
	if deps.Service == nil {
		return nil, errors.New("service dependency is required")
	}
	if deps.Tools == nil {
		return nil, errors.New("toolkit dependency is required")
	}
	if cfg.Listener == nil && cfg.HTTP.Addr == "" {
		return nil, errors.New("http address is required")
	}
	srv := &compositeServer{
		cfg:     cfg,
		service: deps.Service,
		httpSrv: httpapi.NewServer(cfg.HTTP, deps.Service, deps.Tools, deps.Launcher),
	}
	if cfg.sshEnabled() {
		srv.sshSrv = &sshserver.Server{
			Addr:               cfg.SSH.Addr,
			HostKeyPath:        cfg.SSH.HostKeyPath,
			AuthorizedKeysPath: cfg.SSH.AuthorizedKeysPath,
			Listener:           cfg.SSHListener,
			Service:            deps.Service,
			Tools:              deps.Tools,
		}
	}
	return srv, nil
}

type compositeServer struct {
	cfg     ServerConfig
	service *core.Service
	httpSrv *httpapi.Server
	sshSrv  *sshserver.Server
	logger  pslog.Logger

	mu      sync.Mutex
	group   *errgroup.Group
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	var watcher *persist.Watcher
	if s.cfg.WatchDir != "" {
		w, err := persist.NewWatcher(s.cfg.WatchDir, 0, pslog.Ctx(ctx))
		if err != nil {
			s.mu.Unlock()
			return err
		}
		watcher = w
	}
	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	s.group = group
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true
	s.logger = pslog.Ctx(ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http_addr", s.listenAddr(),
		"http_base_path", s.cfg.HTTP.BasePath,
		"ssh", s.sshSrv != nil,
		"ssh_addr", s.cfg.SSH.Addr,
		"watch_dir", s.cfg.WatchDir,
		"whistle", s.cfg.HTTP.WhistleEnabled,
	)
	group.Go(func() error {
		var err error
		if s.cfg.Listener != nil {
			err = httpapi.Serve(groupCtx, s.cfg.Listener, s.httpSrv.Handler())
		} else {
			err = httpapi.ListenAndServe(groupCtx, s.cfg.HTTP.Addr, s.httpSrv.Handler())
		}
		if err != nil {
			log.Error("http server failed", "err", err)
		}
		return err
	})
	if s.sshSrv != nil {
		group.Go(func() error {
			if err := s.sshSrv.ListenAndServe(groupCtx); err != nil {
				log.Error("ssh server failed", "err", err)
				return err
			}
			return nil
		})
	}
	if watcher != nil {
		group.Go(func() error {
			err := s.service.Watch(groupCtx, watcher)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("state watcher failed", "err", err)
				return err
			}
			return nil
		})
	}
	go func() {
		err := group.Wait()
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		cancel()
		close(s.done)
	}()
	return nil
}

func (s *compositeServer) listenAddr() string {
	if s.cfg.Listener != nil {
		return s.cfg.Listener.Addr().String()
	}
	return s.cfg.HTTP.Addr
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	done := s.done
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}
	<-done
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	cancel()
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		log.Info("server stopped")
		return nil
	}
}
