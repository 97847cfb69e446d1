package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bizwatch/bizrelay/internal/api"
	"github.com/bizwatch/bizrelay/internal/config"
	"github.com/bizwatch/bizrelay/internal/metrics"
	"github.com/bizwatch/bizrelay/internal/models"
	"github.com/bizwatch/bizrelay/internal/provider"
	"github.com/bizwatch/bizrelay/internal/provider/bizradar"
	"github.com/bizwatch/bizrelay/internal/relay"
	"github.com/bizwatch/bizrelay/internal/storage"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "bizrelay",
		Short: "bizrelay — business-monitoring webhook relay",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(tenantCmd(&configPath))
	rootCmd.AddCommand(statsCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bizrelay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("database migrations completed")

			metrics.Register()

			var client *bizradar.Client
			var monitor relay.SubjectMonitor
			if pcfg, ok := cfg.Providers[bizradar.ProviderName]; ok && pcfg.APIBaseURL != "" {
				client = bizradar.NewClient(pcfg.APIBaseURL, pcfg.APIKey, pcfg.APITimeout)
				monitor = client
				log.Info().Str("base_url", pcfg.APIBaseURL).Msg("bizradar API client configured")
			} else {
				log.Warn().Msg("bizradar API not configured, monitoring alerts will be stored unactionable")
			}

			registry := provider.NewRegistry(bizradar.New(client, log))

			dispatcher := relay.NewDispatcher(store, cfg.Delivery, log)
			pool := relay.NewPool(cfg.Delivery.FanoutWorkers, log)
			secrets := func(name string) string { return cfg.Providers[name].Secret }
			service := relay.NewService(registry, store, store, dispatcher, secrets, pool, log)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx, service.FanOut)

			sweeper := relay.NewSweeper(store, dispatcher, cfg.Delivery, cfg.Retention, log)
			sweeper.Start(ctx)

			server := api.NewServer(cfg.Server, store, service, monitor, log)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Int("fanout_workers", cfg.Delivery.FanoutWorkers).
				Strs("providers", registry.Names()).
				Str("storage", cfg.Storage.Driver).
				Msg("bizrelay is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}

			sweeper.Stop()
			pool.Stop()

			log.Info().Msg("bizrelay stopped")
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			log.Info().Msg("migrations completed successfully")
			return nil
		},
	}
}

func tenantCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			now := time.Now().UTC()
			tenant := &models.Tenant{
				ID:        models.NewID("tn"),
				Name:      name,
				APIKey:    models.NewAPIKey(),
				CreatedAt: now,
				UpdatedAt: now,
			}

			if err := store.CreateTenant(context.Background(), tenant); err != nil {
				return fmt.Errorf("failed to create tenant: %w", err)
			}

			out, _ := json.MarshalIndent(tenant, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	createCmd.Flags().String("name", "", "tenant name")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			tenants, err := store.ListTenants(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list tenants: %w", err)
			}

			if len(tenants) == 0 {
				fmt.Println("No tenants found.")
				return nil
			}

			for _, t := range tenants {
				fmt.Printf("  %s  %s  (created %s)\n", t.ID, t.Name, t.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.AddCommand(createCmd, listCmd)
	return cmd
}

func statsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show relay stats for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return fmt.Errorf("usage: bizrelay stats <tenant_id>")
			}

			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := store.GetStats(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			out, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("bizrelay v%s\n", version)
		},
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func setupStorage(cfg config.StorageConfig, log zerolog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "sqlite":
		log.Info().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		return storage.NewSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func storeFromConfig(configPath string) (storage.Storage, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg.Logging)
	store, err := setupStorage(cfg.Storage, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, func() { store.Close() }, nil
}
