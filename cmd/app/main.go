package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/quire/internal"
	pkgconfig "github.com/starford/quire/pkg/config"
)

const defaultConfigPath = "config/config.yaml"

func loadConfig(cmd *cli.Command) (*internal.Config, []internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadIfExists(configPath, cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithConfigPath(configPath),
	}
	return cfg, opts, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	_, opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func syncOnce(ctx context.Context, cmd *cli.Command) error {
	_, opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Sync(ctx, opts...)
}

func export(ctx context.Context, cmd *cli.Command) error {
	_, opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Export(ctx, cmd.String("out"), opts...)
}

func settings(_ context.Context, cmd *cli.Command) error {
	cfg, opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var s internal.Settings
	if cmd.IsSet("provider") {
		v := cmd.String("provider")
		s.Provider = &v
	}
	if cmd.IsSet("folder") {
		v := cmd.String("folder")
		s.Folder = &v
	}
	if cmd.IsSet("hook") {
		v := cmd.String("hook")
		s.HookScript = &v
	}
	if cmd.IsSet("base-url") {
		v := cmd.String("base-url")
		s.BaseURL = &v
	}
	if cmd.IsSet("filter-secrets") {
		v := cmd.Bool("filter-secrets")
		s.FilterSecrets = &v
	}
	if cmd.IsSet("hook-timeout") {
		v := cmd.Duration("hook-timeout")
		s.HookTimeout = &v
	}

	if !s.Empty() {
		if err := internal.UpdateSettings(s, opts...); err != nil {
			return err
		}
	}

	sc := cfg.Sync
	fmt.Printf("provider:       %s\nfolder:         %s\nhook_script:    %s\nbase_url:       %s\nfilter_secrets: %t\nhook_timeout:   %s\n",
		sc.Provider, sc.Folder, sc.HookScript, sc.BaseURL, sc.FilterSecrets, sc.HookTimeout)
	return nil
}

func detect(_ context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("usage: quire detect <file>")
	}
	_, err := internal.Detect(path, os.Stdout)
	return err
}

func history(ctx context.Context, cmd *cli.Command) error {
	_, opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.History(ctx, os.Stdout, int(cmd.Int("limit")), opts...)
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	_, opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:   "quire",
		Usage:  "Local-first notes with folder sync, publish hooks, and a local preview",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: defaultConfigPath,
				Value:       defaultConfigPath,
				Sources:     cli.EnvVars("QUIRE_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Sync on change and serve the mirror on localhost (default)",
				Action: serve,
			},
			{
				Name:   "sync",
				Usage:  "Reconcile every note into the mirror and run the sync_all hook",
				Action: syncOnce,
			},
			{
				Name:   "export",
				Usage:  "Write a standalone HTML viewer of all notes",
				Action: export,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file", Value: "quire.html"},
				},
			},
			{
				Name:   "settings",
				Usage:  "Show or change sync settings; changes are saved immediately",
				Action: settings,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "provider", Usage: "none or folder"},
					&cli.StringFlag{Name: "folder", Usage: "Mirror folder path"},
					&cli.StringFlag{Name: "hook", Usage: "Publish hook executable (empty to remove)"},
					&cli.StringFlag{Name: "base-url", Usage: "Public base URL for image links"},
					&cli.BoolFlag{Name: "filter-secrets", Usage: "Redact secrets before syncing"},
					&cli.DurationFlag{Name: "hook-timeout", Usage: "Publish hook timeout (0 = 30s)"},
				},
			},
			{
				Name:      "detect",
				Usage:     "List the kinds of secrets found in a file",
				ArgsUsage: "<file>",
				Action:    detect,
			},
			{
				Name:   "history",
				Usage:  "Show recent publish hook runs",
				Action: history,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Number of entries", Value: 20},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve sync tools over the Model Context Protocol on stdio",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
