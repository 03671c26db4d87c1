package appctx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/kayteedberserker/feedsync/internal/config"
	"github.com/kayteedberserker/feedsync/internal/data"
	"github.com/kayteedberserker/feedsync/internal/output"
	"github.com/kayteedberserker/feedsync/internal/store"
)

func newTestApp(t *testing.T, baseURL string) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.BaseURL = baseURL
	cfg.PollInterval = 0

	var stdout, stderr bytes.Buffer
	app, err := NewApp(context.Background(), cfg, Options{
		Store:  store.NewMemory(),
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app, &stdout
}

func TestNewApp(t *testing.T) {
	app, _ := newTestApp(t, "http://localhost:9/api")

	if app.Logger == nil || app.Tiers == nil || app.Ledger == nil || app.Client == nil {
		t.Fatalf("app not fully initialized: %+v", app)
	}
	if app.Metrics == nil || app.Realm == nil || app.Output == nil {
		t.Fatalf("app not fully initialized: %+v", app)
	}
}

func TestNewAppInvalidBaseURL(t *testing.T) {
	cfg := config.Default()
	cfg.BaseURL = "not a url"
	_, err := NewApp(context.Background(), cfg, Options{Store: store.NewMemory()})
	if err == nil {
		t.Fatal("expected error")
	}
	if output.AsError(err).Code != output.CodeUsage {
		t.Errorf("Code = %q, want %q", output.AsError(err).Code, output.CodeUsage)
	}
}

func TestNewAppStorageFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Store = "tape"
	_, err := NewApp(context.Background(), cfg, Options{})
	if output.AsError(err).ExitCode() != output.ExitStorage {
		t.Errorf("exit code = %d, want %d", output.AsError(err).ExitCode(), output.ExitStorage)
	}
}

func TestWithAppAndFromContext(t *testing.T) {
	app, _ := newTestApp(t, "http://localhost:9/api")

	ctx := WithApp(context.Background(), app)
	if FromContext(ctx) != app {
		t.Error("FromContext did not retrieve the same app")
	}
	if FromContext(context.Background()) != nil {
		t.Error("expected nil from empty context")
	}
}

func TestApplyFlagsJSON(t *testing.T) {
	app, _ := newTestApp(t, "http://localhost:9/api")
	app.Flags.JSON = true

	var buf bytes.Buffer
	if err := app.ApplyFlags(&buf); err != nil {
		t.Fatalf("ApplyFlags: %v", err)
	}
	if err := app.OK(map[string]any{"id": "a"}); err != nil {
		t.Fatalf("OK: %v", err)
	}

	var resp map[string]any
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("expected JSON envelope, got %q", buf.String())
	}
	if resp["ok"] != true {
		t.Errorf("envelope = %v", resp)
	}
}

func TestApplyFlagsJQ(t *testing.T) {
	app, _ := newTestApp(t, "http://localhost:9/api")
	app.Flags.JQ = ".data.id"

	var buf bytes.Buffer
	if err := app.ApplyFlags(&buf); err != nil {
		t.Fatalf("ApplyFlags: %v", err)
	}
	_ = app.OK(map[string]any{"id": "a"})
	if buf.String() != "a\n" {
		t.Errorf("output = %q, want %q", buf.String(), "a\n")
	}
}

func TestApplyFlagsInvalidJQ(t *testing.T) {
	app, _ := newTestApp(t, "http://localhost:9/api")
	app.Flags.JQ = ".["
	if err := app.ApplyFlags(nil); output.AsError(err).Code != output.CodeUsage {
		t.Errorf("ApplyFlags error = %v, want usage error", err)
	}
}

func TestTargetKey(t *testing.T) {
	k, err := Target{Resource: data.ResourcePosts, Query: url.Values{"category": {"art"}}}.Key()
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if k.Feed() != "posts/?category=art" {
		t.Errorf("Feed() = %q", k.Feed())
	}

	if _, err := (Target{Resource: "Bad Name"}).Key(); err == nil {
		t.Error("expected error for invalid resource")
	}
}

func TestOpenFeedIsSharedPerTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"id":"a"},{"id":"b"}]}`))
	}))
	defer srv.Close()
	app, _ := newTestApp(t, srv.URL)

	target := Target{Resource: data.ResourceAuthor, ID: "kay"}
	f1, err := app.OpenFeed(target)
	if err != nil {
		t.Fatalf("OpenFeed: %v", err)
	}
	f2, _ := app.OpenFeed(target)
	if f1 != f2 {
		t.Error("expected the same feed for the same target")
	}

	other, _ := app.OpenFeed(Target{Resource: data.ResourceClan, ID: "kay"})
	if other == f1 {
		t.Error("expected a distinct feed for a distinct target")
	}

	f1.Mount(context.Background())
	f1.Wait()
	snap := f1.Snapshot()
	if len(snap.Items) != 2 || snap.State != data.Online {
		t.Errorf("snapshot = %+v", snap)
	}
}
