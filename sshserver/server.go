// Package sshserver serves the terminal UI to SSH clients.
package sshserver

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	gliderssh "github.com/gliderlabs/ssh"
	"github.com/muesli/termenv"
	"golang.org/x/crypto/ssh"

	"pkt.systems/pslog"
	"pkt.systems/swissblade/core"
	"pkt.systems/swissblade/internal/toolkit"
	"pkt.systems/swissblade/internal/tui"
)

// Server exposes the terminal UI over SSH.
type Server struct {
	Addr               string
	HostKeyPath        string
	AuthorizedKeysPath string
	Listener           net.Listener
	Service            *core.Service
	Tools              *toolkit.Toolkit
	logger             pslog.Logger
}

// ListenAndServe starts the SSH server and shuts down on context cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.Service == nil || s.Tools == nil {
		return errors.New("ssh server requires a service and a toolkit")
	}
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	signer, err := EnsureHostKey(s.HostKeyPath)
	if err != nil {
		return err
	}

	server := &gliderssh.Server{
		Addr:             s.Addr,
		Handler:          s.handleSession,
		PublicKeyHandler: s.handlePublicKey,
	}
	server.AddHostKey(signer)

	errCh := make(chan error, 1)
	go func() {
		if s.Listener != nil {
			errCh <- server.Serve(s.Listener)
			return
		}
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		if errors.Is(err, gliderssh.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// handlePublicKey rereads the authorized keys file so edits apply without a restart.
func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
	log := s.logger.With("user", ctx.User(), "remote", remoteAddr(ctx), "fingerprint", ssh.FingerprintSHA256(key))
	allowed, err := LoadAuthorizedKeys(s.AuthorizedKeysPath)
	if err != nil {
		log.Warn("ssh pubkey rejected", "err", err)
		return false
	}
	for _, candidate := range allowed {
		if gliderssh.KeysEqual(candidate, key) {
			log.Info("ssh pubkey accepted")
			return true
		}
	}
	log.Warn("ssh pubkey rejected", "reason", "no matching key", "authorized_keys", len(allowed))
	return false
}

func remoteAddr(ctx gliderssh.Context) string {
	if ctx == nil || ctx.RemoteAddr() == nil {
		return ""
	}
	return ctx.RemoteAddr().String()
}

func (s *Server) handleSession(sess gliderssh.Session) {
	log := s.logger.With("user", sess.User(), "remote", sess.RemoteAddr().String())
	if id := sess.Context().SessionID(); id != "" {
		log = log.With("ssh_session", id)
	}
	pty, winCh, ok := sess.Pty()
	if !ok {
		log.Info("ssh session rejected", "reason", "pty required")
		_, _ = io.WriteString(sess, "pty required\n")
		_ = sess.Exit(1)
		return
	}

	ctx, cancel := context.WithCancel(pslog.ContextWithLogger(sess.Context(), log))
	defer cancel()

	renderer := lipgloss.NewRenderer(sess)
	renderer.SetColorProfile(profileFor(pty.Term))
	renderer.SetHasDarkBackground(true)

	program, release, err := tui.NewProgram(ctx, tui.Options{
		Service:  s.Service,
		Tools:    s.Tools,
		Input:    sess,
		Output:   sess,
		Renderer: renderer,
	})
	if err != nil {
		log.Error("ssh session failed", "err", err)
		_ = sess.Exit(1)
		return
	}
	defer release()
	go func() {
		for win := range winCh {
			program.Send(tea.WindowSizeMsg{Width: win.Width, Height: win.Height})
		}
	}()

	log.Info("ssh session opened", "term", pty.Term)
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Warn("ssh session ended with error", "err", err)
	}
	log.Info("ssh session closed")
	_ = sess.Exit(0)
}

// profileFor picks a color profile from the client's TERM.
func profileFor(term string) termenv.Profile {
	term = strings.ToLower(term)
	switch {
	case term == "" || term == "dumb":
		return termenv.Ascii
	case strings.Contains(term, "truecolor"), strings.Contains(term, "24bit"), strings.Contains(term, "direct"):
		return termenv.TrueColor
	case strings.Contains(term, "256color"):
		return termenv.ANSI256
	default:
		return termenv.ANSI
	}
}
