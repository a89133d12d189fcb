package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/S1monlol/notionCanvas/internal/calendar"
	"github.com/S1monlol/notionCanvas/internal/config"
	"github.com/S1monlol/notionCanvas/internal/httpapi"
	"github.com/S1monlol/notionCanvas/internal/notion"
	"github.com/S1monlol/notionCanvas/internal/store"
	"github.com/S1monlol/notionCanvas/internal/syncer"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "notioncanvas",
		Usage: "Sync Canvas assignment deadlines into a Notion database.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   config.DefaultPath,
				EnvVars: []string{"NOTIONCANVAS_CONFIG"},
				Usage:   "Path to the YAML config file.",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			importCommand(),
			resetCommand(),
			authCommand(),
			initCommand(),
		},
	}
}

// loadConfig reads the config file, applies environment overrides and
// returns a logger at the configured level.
func loadConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	logger := setupLogger(os.Getenv("LOG_LEVEL"))
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	cfg.ApplyEnv(logger)
	return cfg, setupLogger(cfg.LogLevel), nil
}

func notionClient(cfg *config.Config, token string) *notion.Client {
	return notion.NewClient(notion.ClientOptions{
		BaseURL:    cfg.Notion.BaseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: cfg.Notion.Timeout},
		APIVersion: cfg.Notion.APIVersion,
		MaxRetries: cfg.Notion.MaxRetries,
	})
}

func newFetcher(cfg *config.Config, logger *slog.Logger) *calendar.Fetcher {
	return calendar.NewFetcher(logger, calendar.FetcherOptions{
		Timeout:  cfg.Calendar.Timeout,
		Username: cfg.Calendar.Username,
		Password: cfg.Calendar.Password,
	})
}

func schemaOptions(cfg *config.Config) syncer.SchemaOptions {
	return syncer.SchemaOptions{
		TitleProperty:    cfg.Properties.Title,
		CategoryProperty: cfg.Properties.Category,
		DueDateProperty:  cfg.Properties.DueDate,
		LinkProperties:   cfg.Properties.Link,
	}
}

// newSyncer builds a syncer for the CLI's own integration token.
func newSyncer(cfg *config.Config, logger *slog.Logger, dryRun bool) (*syncer.Syncer, error) {
	if cfg.Notion.APIKey == "" {
		return nil, errors.New("NOTION_API_KEY environment variable not set")
	}
	if cfg.DatabaseID == "" {
		return nil, errors.New("NOTION_DATABASE_ID environment variable not set")
	}
	if len(cfg.Classes) == 0 {
		return nil, errors.New("no classes configured, add them under 'classes' in the config file")
	}
	return syncer.NewSyncer(logger, notionClient(cfg, cfg.Notion.APIKey), newFetcher(cfg, logger), syncer.Options{
		DryRun: dryRun,
		Schema: schemaOptions(cfg),
	})
}

func newOAuth(cfg *config.Config) (*notion.OAuth, error) {
	return notion.NewOAuth(cfg.Notion.BaseURL, cfg.Notion.ClientID, cfg.Notion.ClientSecret, cfg.Notion.RedirectURI)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API.",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}

			st, err := store.BuildFromDSN(cfg.Store.DSN)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()

			oauth, err := newOAuth(cfg)
			if err != nil {
				logger.Warn("OAuth routes disabled.", "reason", err)
			}
			handler, err := httpapi.NewServer(logger, st, httpapi.ServerConfig{
				NotionBaseURL:    cfg.Notion.BaseURL,
				NotionAPIVersion: cfg.Notion.APIVersion,
				NotionMaxRetries: cfg.Notion.MaxRetries,
				NotionHTTPClient: &http.Client{Timeout: cfg.Notion.Timeout},
				Fetcher:          newFetcher(cfg, logger),
				OAuth:            oauth,
				Schema:           schemaOptions(cfg),
			})
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{Addr: cfg.Listen, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("Listening.", "addr", cfg.Listen)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			logger.Info("Shutting down.")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown failed: %w", err)
			}
			return nil
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import calendar deadlines into the configured database.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "Run the import once and exit, ignoring any configured schedule."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be written without making changes."},
			&cli.IntFlag{Name: "watch", Value: 300, Usage: "Run the import every N seconds."},
			&cli.StringFlag{Name: "schedule", Usage: "Run the import on a cron schedule, e.g. '*/30 * * * *'."},
			&cli.BoolFlag{Name: "json", Usage: "Print each report as JSON to stdout."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.Bool("dry-run") {
				logger.Info("Performing a dry run. No changes will be made.")
			}
			if cfg.Calendar.URL == "" {
				return errors.New("CANVAS_CALENDAR_URL environment variable not set")
			}

			s, err := newSyncer(cfg, logger, c.Bool("dry-run"))
			if err != nil {
				return fmt.Errorf("failed to create syncer: %w", err)
			}
			req := syncer.ImportRequest{
				CalendarURL: cfg.Calendar.URL,
				DatabaseID:  cfg.DatabaseID,
				Categories:  cfg.Classes,
			}
			run := func(ctx context.Context) error {
				report, err := s.Import(ctx, req)
				if err != nil {
					return err
				}
				if c.Bool("json") {
					return printJSON(c.App.Writer, report)
				}
				return nil
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			schedule := c.String("schedule")
			if schedule == "" {
				schedule = cfg.Schedule
			}
			switch {
			case c.Bool("once"):
				logger.Info("Running a single import.")
				return run(ctx)
			case c.IsSet("watch"):
				return runWatch(ctx, logger, time.Duration(c.Int("watch"))*time.Second, run)
			case schedule != "":
				return runScheduled(ctx, logger, schedule, run)
			default:
				logger.Info("Running a single import.")
				return run(ctx)
			}
		},
	}
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:    "reset",
		Aliases: []string{"delete", "deleteAll"},
		Usage:   "Archive every row belonging to a configured class.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Usage: "Confirm archiving. There is no undo."},
			&cli.BoolFlag{Name: "dry-run", Usage: "List the rows that would be archived."},
			&cli.BoolFlag{Name: "json", Usage: "Print the report as JSON to stdout."},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("yes") && !c.Bool("dry-run") {
				return errors.New("refusing to archive rows without --yes")
			}
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			s, err := newSyncer(cfg, logger, c.Bool("dry-run"))
			if err != nil {
				return fmt.Errorf("failed to create syncer: %w", err)
			}
			report, err := s.Reset(c.Context, cfg.DatabaseID, cfg.Classes)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, report)
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d of %d rows could not be archived", len(report.Failed), len(report.Failed)+len(report.Archived))
			}
			return nil
		},
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize a Notion workspace and store the resulting token.",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger.Info("Starting Notion authorization flow.")

			oauth, err := newOAuth(cfg)
			if err != nil {
				return fmt.Errorf("failed to get notion oauth config: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", oauth.AuthCodeURL("cli"))

			fmt.Fprint(c.App.Writer, "Enter Authorization Code: ")
			reader := bufio.NewReader(c.App.Reader)
			code, _ := reader.ReadString('\n')
			code = strings.TrimSpace(code)
			if code == "" {
				return errors.New("no authorization code entered")
			}

			grant, err := oauth.Exchange(c.Context, code)
			if err != nil {
				return fmt.Errorf("unable to exchange authorization code: %w", err)
			}
			me, err := notionClient(cfg, grant.AccessToken).Me(c.Context)
			if err != nil {
				return fmt.Errorf("unable to fetch user information: %w", err)
			}

			st, err := store.BuildFromDSN(cfg.Store.DSN)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()
			user, err := st.FindOrCreateUser(c.Context, store.Identity{
				NotionUserID:  me.OwnerID(),
				AccessToken:   grant.AccessToken,
				WorkspaceID:   grant.WorkspaceID,
				WorkspaceName: grant.WorkspaceName,
			})
			if err != nil {
				return fmt.Errorf("failed to save user: %w", err)
			}

			logger.Info("Successfully authorized workspace.", "user_id", user.ID, "workspace", user.WorkspaceName)
			fmt.Fprintf(c.App.Writer, "\nNOTION_API_KEY=%s\n", grant.AccessToken)
			return nil
		},
	}
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a default config file.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file."},
		},
		Action: func(c *cli.Context) error {
			path := c.String("config")
			if _, err := os.Stat(path); err == nil && !c.Bool("force") {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			setupLogger(os.Getenv("LOG_LEVEL")).Info("Wrote default config.", "path", path)
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
