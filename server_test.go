package swissblade

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"pkt.systems/pslog"
	"pkt.systems/swissblade/httpapi"
	"pkt.systems/swissblade/internal/appconfig"
	"pkt.systems/swissblade/internal/persist"
	"pkt.systems/swissblade/schema"
	"pkt.systems/swissblade/sshserver"
)

func testConfig(t *testing.T) appconfig.Config {
	t.Helper()
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	dir := t.TempDir()
	cfg.StateDir = filepath.Join(dir, "state")
	cfg.State.SQLitePath = filepath.Join(dir, "state.db")
	cfg.HTTP.Addr = "127.0.0.1:0"
	return cfg
}

func openTestApp(t *testing.T, cfg appconfig.Config) *App {
	t.Helper()
	app, err := OpenApp(cfg, pslog.Ctx(context.Background()))
	if err != nil {
		t.Fatalf("open app: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func startServer(t *testing.T, app *App) (string, Server) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	cfg := app.ServerConfig()
	cfg.Listener = ln
	srv, err := New(cfg, app.ServerDeps())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return "http://" + ln.Addr().String(), srv
}

func TestServerServesAPIAndStops(t *testing.T) {
	app := openTestApp(t, testConfig(t))
	base, srv := startServer(t, app)

	resp, err := http.Post(base+"/api/tabs", "application/json", strings.NewReader(`{"toolId":"cron-generator"}`))
	if err != nil {
		t.Fatalf("post tab: %v", err)
	}
	var snapshot struct {
		ID   schema.TabID `json:"id"`
		Tabs []schema.Tab `json:"tabs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if len(snapshot.Tabs) != 1 || snapshot.Tabs[0].Title != "Cron Generator" {
		t.Fatalf("unexpected tabs %+v", snapshot.Tabs)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := srv.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Fatalf("expected second start to fail")
	}
}

func TestServerWatcherReloadsExternalWrites(t *testing.T) {
	cfg := testConfig(t)
	app := openTestApp(t, cfg)
	startServer(t, app)

	data := []byte(`{"lifetime":42,"persist":true}`)
	path := filepath.Join(cfg.StateDir, persist.KeyClickTracker+".json")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(200 * time.Millisecond)
		if app.Service.Clicks.State().Lifetime == 42 {
			return
		}
	}
	t.Fatalf("expected watcher to reload click tracker, got %+v", app.Service.Clicks.State())
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(ServerConfig{HTTP: httpapi.Config{Addr: "127.0.0.1:0"}}, ServerDeps{}); err == nil {
		t.Fatalf("expected missing service error")
	}
	app := openTestApp(t, testConfig(t))
	deps := app.ServerDeps()
	if _, err := New(ServerConfig{}, deps); err == nil {
		t.Fatalf("expected missing address error")
	}
	srv, err := New(app.ServerConfig(), deps)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := srv.Wait(); err == nil {
		t.Fatalf("expected wait before start to fail")
	}
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("stop before start: %v", err)
	}
}

func TestAppWiring(t *testing.T) {
	cfg := testConfig(t)
	cfg.State.Backend = appconfig.BackendSQLite
	cfg.Whistle.Enabled = true
	cfg.UI.DefaultTheme = "dark"
	app := openTestApp(t, cfg)

	if _, err := os.Stat(cfg.State.SQLitePath); err != nil {
		t.Fatalf("expected sqlite database: %v", err)
	}
	server := app.ServerConfig()
	if server.WatchDir != "" {
		t.Fatalf("expected no watcher for sqlite, got %q", server.WatchDir)
	}
	if !server.HTTP.WhistleEnabled || app.Tools.Whistle() == nil {
		t.Fatalf("expected whistle enabled")
	}
	if got := app.Service.Settings.Get().Theme; got != "dark" {
		t.Fatalf("expected configured default theme, got %q", got)
	}
	if app.Tools.Relay() == nil || app.Tools.Certs().Timeout != 8*time.Second {
		t.Fatalf("unexpected toolkit wiring")
	}
	if server.SSH.Addr != "" {
		t.Fatalf("expected ssh disabled by default, got %+v", server.SSH)
	}
	app.Config.SSH = appconfig.SSHConfig{Enabled: true, Addr: "127.0.0.1:0", HostKeyPath: "/tmp/key", AuthorizedKeysPath: "/tmp/keys"}
	if got := app.ServerConfig().SSH; got.Addr != "127.0.0.1:0" || got.HostKeyPath != "/tmp/key" || got.AuthorizedKeysPath != "/tmp/keys" {
		t.Fatalf("unexpected ssh config %+v", got)
	}
}

func TestOpenBackendRejectsUnknown(t *testing.T) {
	cfg := testConfig(t)
	cfg.State.Backend = "etcd"
	if _, err := OpenBackend(cfg, nil); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}

func TestServerRunsSSHFrontEnd(t *testing.T) {
	app := openTestApp(t, testConfig(t))
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	dir := t.TempDir()
	keysPath := filepath.Join(dir, "authorized_keys")
	if err := os.WriteFile(keysPath, ssh.MarshalAuthorizedKey(signer.PublicKey()), 0o600); err != nil {
		t.Fatalf("write keys: %v", err)
	}
	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	sshLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	cfg := app.ServerConfig()
	cfg.Listener = httpLn
	cfg.SSHListener = sshLn
	cfg.SSH = sshserver.Config{HostKeyPath: filepath.Join(dir, "host_ed25519"), AuthorizedKeysPath: keysPath}
	srv, err := New(cfg, app.ServerDeps())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	client, err := ssh.Dial("tcp", sshLn.Addr().String(), &ssh.ClientConfig{
		User:            "blade",
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	if err != nil {
		t.Fatalf("ssh dial: %v", err)
	}
	_ = client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := srv.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}
