package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/S1monlol/notionCanvas/internal/config"
	"github.com/S1monlol/notionCanvas/internal/models"
)

const testFeed = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//Test//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:a1\r\nDTSTAMP:20240220T120000Z\r\nDTSTART:20240301T235900Z\r\n" +
	"SUMMARY:Quiz 2 [MATH-201]\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:a2\r\nDTSTAMP:20240220T120000Z\r\nDTSTART:20240302T235900Z\r\n" +
	"SUMMARY:Club meeting\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type upstream struct {
	mu      sync.Mutex
	creates int
	token   string
}

func startUpstream(t *testing.T) (*upstream, *httptest.Server) {
	t.Helper()
	u := &upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /feed.ics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(testFeed))
	})
	mux.HandleFunc("GET /v1/databases/db-1", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.token = r.Header.Get("Authorization")
		u.mu.Unlock()
		_, _ = w.Write([]byte(`{"object":"database","id":"db-1","properties":{
			"Name":{"id":"title","name":"Name","type":"title","title":{}},
			"Due Date":{"id":"due","name":"Due Date","type":"date","date":{}},
			"Class":{"id":"cls","name":"Class","type":"rich_text","rich_text":{}}
		}}`))
	})
	mux.HandleFunc("POST /v1/databases/db-1/query", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"object":"list","results":[],"has_more":false}`))
	})
	mux.HandleFunc("POST /v1/pages", func(w http.ResponseWriter, _ *http.Request) {
		u.mu.Lock()
		u.creates++
		u.mu.Unlock()
		_, _ = w.Write([]byte(`{"object":"page","id":"page-1","properties":{}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return u, srv
}

func writeConfig(t *testing.T, classes ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notioncanvas.yaml")
	cfg := config.DefaultConfig()
	cfg.Classes = models.CategoriesFromNames(classes)
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return path
}

func setEnv(t *testing.T, base string) {
	t.Helper()
	t.Setenv("NOTION_API_KEY", "secret_cli")
	t.Setenv("NOTION_BASE_URL", base)
	t.Setenv("NOTION_DATABASE_ID", "db-1")
	t.Setenv("CANVAS_CALENDAR_URL", base+"/feed.ics")
	t.Setenv("NOTION_MAX_RETRIES", "-1")
	t.Setenv("LOG_LEVEL", "error")
}

func TestImportCommandPrintsReport(t *testing.T) {
	up, srv := startUpstream(t)
	setEnv(t, srv.URL)
	path := writeConfig(t, "MATH-201")

	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	if err := app.Run([]string{"notioncanvas", "--config", path, "import", "--once", "--json"}); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	var report models.Report
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode report %q: %v", out.String(), err)
	}
	if !report.OK || report.CreatedCount != 1 || report.SkippedCount != 1 || report.TotalEvents != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if up.creates != 1 {
		t.Fatalf("expected one create call, got %d", up.creates)
	}
	if up.token != "Bearer secret_cli" {
		t.Fatalf("expected the configured token upstream, got %q", up.token)
	}
}

func TestImportCommandDryRunWritesNothing(t *testing.T) {
	up, srv := startUpstream(t)
	setEnv(t, srv.URL)
	path := writeConfig(t, "MATH-201")

	app := newApp()
	app.Writer = io.Discard
	if err := app.Run([]string{"notioncanvas", "--config", path, "import", "--once", "--dry-run"}); err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if up.creates != 0 {
		t.Fatalf("dry run must not create pages, got %d", up.creates)
	}
}

func TestImportCommandPreconditions(t *testing.T) {
	_, srv := startUpstream(t)

	setEnv(t, srv.URL)
	t.Setenv("NOTION_API_KEY", "")
	app := newApp()
	err := app.Run([]string{"notioncanvas", "--config", writeConfig(t, "MATH-201"), "import", "--once"})
	if err == nil || !strings.Contains(err.Error(), "NOTION_API_KEY") {
		t.Fatalf("expected a missing key error, got %v", err)
	}

	t.Setenv("NOTION_API_KEY", "secret_cli")
	app = newApp()
	err = app.Run([]string{"notioncanvas", "--config", writeConfig(t), "import", "--once"})
	if err == nil || !strings.Contains(err.Error(), "no classes configured") {
		t.Fatalf("expected a missing classes error, got %v", err)
	}
}

func TestResetRequiresConfirmation(t *testing.T) {
	for _, name := range []string{"reset", "delete", "deleteAll"} {
		app := newApp()
		err := app.Run([]string{"notioncanvas", "--config", filepath.Join(t.TempDir(), "none.yaml"), name})
		if err == nil || !strings.Contains(err.Error(), "--yes") {
			t.Fatalf("%s: expected a confirmation error, got %v", name, err)
		}
	}
}

func TestInitWritesDefaultsOnce(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	path := filepath.Join(t.TempDir(), "notioncanvas.yaml")

	if err := newApp().Run([]string{"notioncanvas", "--config", path, "init"}); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if cfg.Properties.DueDate != "Due Date" || cfg.Store.DSN != "memory://" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}

	if err := newApp().Run([]string{"notioncanvas", "--config", path, "init"}); err == nil {
		t.Fatalf("expected init to refuse overwriting")
	}
	if err := newApp().Run([]string{"notioncanvas", "--config", path, "init", "--force"}); err != nil {
		t.Fatalf("init --force failed: %v", err)
	}
}

func TestSetupLoggerLevels(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		level   string
		enabled slog.Level
		muted   slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 1},
		{"INFO", slog.LevelInfo, slog.LevelDebug},
		{"warn", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
		{"", slog.LevelInfo, slog.LevelDebug},
	}
	for _, tc := range cases {
		logger := setupLogger(tc.level)
		if !logger.Enabled(ctx, tc.enabled) || logger.Enabled(ctx, tc.muted) {
			t.Fatalf("level %q: unexpected enablement", tc.level)
		}
	}
}

func TestRunWatchStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := runWatch(ctx, discardLogger(), time.Hour, func(context.Context) error {
		calls++
		cancel()
		return errors.New("cycle failed")
	})
	if err != nil {
		t.Fatalf("expected a clean stop, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one immediate run, got %d", calls)
	}

	if err := runWatch(context.Background(), discardLogger(), 0, nil); err == nil {
		t.Fatalf("expected a zero interval to be rejected")
	}
}

func TestRunScheduledRejectsInvalidSchedule(t *testing.T) {
	err := runScheduled(context.Background(), discardLogger(), "every tuesday", func(context.Context) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "invalid schedule") {
		t.Fatalf("expected an invalid schedule error, got %v", err)
	}
}

func TestRunScheduledStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := runScheduled(ctx, discardLogger(), "*/5 * * * *", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected a clean stop, got %v", err)
	}
}
