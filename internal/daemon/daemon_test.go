package daemon

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/msgsync/internal/api"
	"github.com/matheus3301/msgsync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// shortTempDir keeps socket paths under the 104-char Unix socket limit on macOS.
func shortTempDir(t *testing.T, pattern string) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", pattern)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

// fakeSite answers the web service calls the daemon makes.
func fakeSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.PostForm.Get("wsfunction") {
		case "core_message_send_instant_messages":
			_, _ = fmt.Fprintf(w, `[{"msgid":501,"text":%q,"timecreated":1700000000}]`, r.PostForm.Get("messages[0][text]"))
		default:
			_, _ = fmt.Fprint(w, `{"exception":"webservice_access_exception","errorcode":"accessexception","message":"not allowed"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir, siteURL string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	cfg := &config.Config{
		DefaultSite: "school",
		Sites: map[string]config.SiteConfig{
			"school": {URL: siteURL, Token: "secret", UserID: 1},
		},
	}
	if err := config.Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDaemonLifecycle(t *testing.T) {
	tmpDir := shortTempDir(t, "msgsync-test-*")
	site := fakeSite(t)
	p := Params{
		SiteID:     "school",
		ConfigPath: writeConfig(t, tmpDir, site.URL),
		DataDir:    filepath.Join(tmpDir, "data"),
	}

	app := fx.New(Module(p), fx.NopLogger)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = app.Stop(context.Background()) }()

	info, err := os.Stat(p.socketPath())
	if err != nil {
		t.Fatalf("socket not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket perm = %o, want 600", perm)
	}

	conn, err := api.Dial(p.socketPath())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()
	client := api.NewClient(conn)

	st, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status error = %v", err)
	}
	if st.SiteID != "school" || st.UserID != 1 {
		t.Errorf("status = %+v, want site school user 1", st)
	}
	if st.Queued != 0 {
		t.Errorf("queued = %d, want 0", st.Queued)
	}

	reply, err := client.Submit(ctx, api.SubmitRequest{Target: "user:42", Text: "hello"})
	if err != nil {
		t.Fatalf("Submit error = %v", err)
	}
	if !reply.Sent || reply.MessageID != 501 {
		t.Errorf("submit = %+v, want sent as 501", reply)
	}

	queued, err := client.ListQueued(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(queued) != 0 {
		t.Errorf("expected empty queue, got %d", len(queued))
	}
}

// TestSecondDaemonRefused verifies the site lock keeps a second daemon from
// opening the same queue database.
func TestSecondDaemonRefused(t *testing.T) {
	tmpDir := shortTempDir(t, "msgsync-lock-*")
	site := fakeSite(t)
	p := Params{
		SiteID:     "school",
		ConfigPath: writeConfig(t, tmpDir, site.URL),
		DataDir:    filepath.Join(tmpDir, "data"),
	}

	first := fx.New(Module(p), fx.NopLogger)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("start first: %v", err)
	}
	defer func() { _ = first.Stop(context.Background()) }()

	p2 := p
	p2.SocketPath = filepath.Join(tmpDir, "other.sock")
	second := fx.New(Module(p2), fx.NopLogger)
	err := second.Err()
	if err == nil {
		t.Fatal("second daemon started while the site lock was held")
	}
	if !strings.Contains(err.Error(), "site school already served") {
		t.Errorf("err = %v, want the lock holder reported", err)
	}
}

func TestMissingSiteFailsWiring(t *testing.T) {
	tmpDir := shortTempDir(t, "msgsync-fx-*")
	p := Params{
		SiteID:     "elsewhere",
		ConfigPath: writeConfig(t, tmpDir, "http://127.0.0.1:1"),
		DataDir:    filepath.Join(tmpDir, "data"),
	}
	app := fx.New(Module(p), fx.NopLogger)
	if app.Err() == nil {
		t.Fatal("expected wiring error for an unconfigured site")
	}
}

// TestNewServerUsesParams verifies NewServer binds the overridden socket.
// Regression: a bare `string` param caused fx to fail with "missing type: string".
func TestNewServerUsesParams(t *testing.T) {
	tmpDir := shortTempDir(t, "msgsync-srv-*")
	socketPath := filepath.Join(tmpDir, "d.sock")

	srv, err := NewServer(Params{SiteID: "fxtest", SocketPath: socketPath}, zap.NewNop(), api.NewService(api.Deps{}))
	if err != nil {
		t.Fatalf("NewServer() with Params failed: %v", err)
	}
	if _, statErr := os.Stat(socketPath); statErr != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, statErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	srv.Stop(ctx)
	if _, statErr := os.Stat(socketPath); !os.IsNotExist(statErr) {
		t.Errorf("socket left behind after Stop: %v", statErr)
	}
}
