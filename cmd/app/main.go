package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/gitsee/internal"
	"github.com/starford/gitsee/internal/cache"
	"github.com/starford/gitsee/internal/hooks"
	"github.com/starford/gitsee/internal/ledger"
	"github.com/starford/gitsee/internal/mcpserver"
	"github.com/starford/gitsee/internal/reconciler"
	"github.com/starford/gitsee/internal/scanner"
	"github.com/starford/gitsee/internal/stats"
	pkgconfig "github.com/starford/gitsee/pkg/config"
)

// loadConfig parses the config file over the built-in defaults. A
// missing file just leaves the defaults in place.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

// install scans the configured roots (or the given paths) and installs
// reporting hooks into every repository found.
func install(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := slog.Default()
	db, err := ledger.Open(cfg.Data.DBPath())
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer db.Close()

	roots := cmd.Args().Slice()
	if len(roots) == 0 {
		roots = cfg.Scanner.Roots
	}
	if len(roots) == 0 {
		return fmt.Errorf("no scan roots: pass paths as arguments or set scanner.roots")
	}

	sc := scanner.New(cfg.Scanner.MaxDepth)
	repos, err := sc.Scan(ctx, roots)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	installer := hooks.NewInstaller(cfg.Hooks.ServerURL, cfg.Auth.Token, logger)
	installed := 0
	for _, info := range repos {
		if err := installer.Install(info.Path); err != nil {
			logger.Warn("install failed", slog.String("repo", info.Path), slog.String("error", err.Error()))
			continue
		}
		if _, err := db.AddRepo(ledger.MonitoredRepo{
			RepoPath:      info.Path,
			RepoName:      info.Name,
			RemoteURL:     info.RemoteURL,
			CurrentBranch: info.CurrentBranch,
			IsMonitored:   true,
		}); err != nil {
			logger.Warn("register failed", slog.String("repo", info.Path), slog.String("error", err.Error()))
			continue
		}
		installed++
	}

	fmt.Printf("found %d repositories, installed hooks into %d\n", len(repos), installed)
	return nil
}

// sync runs one reconciliation cycle and exits.
func sync(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := ledger.Open(cfg.Data.DBPath())
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer db.Close()

	if err := os.MkdirAll(cfg.Data.BackupsDir(), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	cacheStore := cache.NewStore(cfg.Data.CachePath())
	snaps := cache.NewSnapshots(cfg.Data.CachePath(), cfg.Data.BackupsDir(), cfg.Reconcile.Retain)
	recon := reconciler.New(db, cacheStore, snaps, cfg.Reconcile.Interval, slog.Default())

	if err := recon.RunOnce(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	fmt.Println("cache synchronized")
	return nil
}

// restore rewrites the cache document from a backup snapshot.
func restore(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	snaps := cache.NewSnapshots(cfg.Data.CachePath(), cfg.Data.BackupsDir(), cfg.Reconcile.Retain)
	name := cmd.String("name")
	if err := snaps.Restore(name); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if name == "" {
		name = "latest snapshot"
	}
	fmt.Printf("cache restored from %s\n", name)
	return nil
}

// purge deletes ledger records older than the retention window and
// reconciles so the cache reflects the trimmed ledger.
func purge(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	days := int(cmd.Int("days"))
	if days < 1 {
		return fmt.Errorf("purge: --days must be at least 1")
	}

	db, err := ledger.Open(cfg.Data.DBPath())
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer db.Close()

	n, err := db.PurgeOlderThan(days)
	if err != nil {
		return fmt.Errorf("purge: %w", err)
	}

	if err := os.MkdirAll(cfg.Data.BackupsDir(), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	cacheStore := cache.NewStore(cfg.Data.CachePath())
	snaps := cache.NewSnapshots(cfg.Data.CachePath(), cfg.Data.BackupsDir(), cfg.Reconcile.Retain)
	if err := reconciler.New(db, cacheStore, snaps, cfg.Reconcile.Interval, slog.Default()).RunOnce(); err != nil {
		return fmt.Errorf("reconcile after purge: %w", err)
	}

	fmt.Printf("purged %d records older than %d days\n", n, days)
	return nil
}

// mcpServe starts the MCP stdio server over the ledger.
func mcpServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := ledger.Open(cfg.Data.DBPath())
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer db.Close()

	return mcpserver.New(db, stats.NewService(db)).ServeStdio()
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:   "gitsee",
		Usage:  "Git activity tracker with a SQLite ledger, JSON cache and reconciliation",
		Action: serve,
		Flags:  []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP server (default)",
				Action: serve,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:      "install",
				Usage:     "Scan for repositories and install reporting hooks",
				ArgsUsage: "[paths...]",
				Action:    install,
				Flags:     []cli.Flag{configFlag},
			},
			{
				Name:   "sync",
				Usage:  "Rebuild the cache document from the ledger once",
				Action: sync,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:   "restore",
				Usage:  "Restore the cache document from a backup snapshot",
				Action: restore,
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  "name",
						Usage: "Snapshot filename (empty for latest)",
					},
				},
			},
			{
				Name:   "purge",
				Usage:  "Delete ledger records older than the given number of days",
				Action: purge,
				Flags: []cli.Flag{
					configFlag,
					&cli.IntFlag{
						Name:  "days",
						Usage: "Retention window in days",
						Value: 365,
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: mcpServe,
				Flags:  []cli.Flag{configFlag},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
