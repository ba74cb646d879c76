package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Simplici0/margins/internal/config"
	"github.com/Simplici0/margins/internal/costplan"
	"github.com/Simplici0/margins/internal/db"
	"github.com/Simplici0/margins/internal/logger"
	"github.com/Simplici0/margins/internal/margin"
	"github.com/Simplici0/margins/internal/migrations"
	"github.com/Simplici0/margins/internal/seed"
	"github.com/Simplici0/margins/internal/store"
)

const serviceName = "margins"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every command needs: configuration, a logger and the
// database.
type app struct {
	cfg config.Config
	log *zap.Logger
	db  *sql.DB
}

func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, serviceName)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, db: database}, nil
}

func (a *app) close() {
	_ = a.db.Close()
	_ = a.log.Sync()
}

func (a *app) catalog() (*margin.Catalog, error) {
	if a.cfg.MarginTypesFile != "" {
		return margin.LoadCatalog(a.cfg.MarginTypesFile)
	}
	return margin.DefaultCatalog()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Margin ledger for cost plans",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newSeedCmd(),
	)

	return root
}

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.IsDev() {
				if err := migrations.Up(a.db); err != nil {
					return err
				}
			}

			cat, err := a.catalog()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := newService(ctx, a.db, cat, a.cfg, a.log)
			if err != nil {
				return err
			}

			if addr == "" {
				addr = ":" + a.cfg.Port
			}
			return serve(ctx, addr, newServer(svc, a.log, a.cfg.APIToken), a.log)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default :$PORT)")

	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			if err := migrations.Up(a.db); err != nil {
				return err
			}
			v, err := migrations.Version(a.db)
			if err != nil {
				return err
			}
			a.log.Info("database migrated", zap.Int64("version", v))
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the margin type catalog and default units of measure",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			cat, err := a.catalog()
			if err != nil {
				return err
			}
			stats, err := seed.Run(a.db, seed.Config{Catalog: cat})
			if err != nil {
				return err
			}
			a.log.Info("seed completed", zap.Int("inserts", stats.Inserts))
			return nil
		},
	}
}

// newService seeds the catalog, resolves the system margin types and wires
// the ledger service on top of the database.
func newService(ctx context.Context, database *sql.DB, cat *margin.Catalog, cfg config.Config, log *zap.Logger) (*costplan.Service, error) {
	stats, err := seed.Run(database, seed.Config{Catalog: cat})
	if err != nil {
		return nil, err
	}
	if stats.Inserts > 0 {
		log.Info("startup seed applied", zap.Int("inserts", stats.Inserts))
	}

	registry, err := costplan.LoadRegistry(ctx, store.NewRepos(database).Types, cat)
	if err != nil {
		return nil, err
	}

	opts := costplan.Options{Digits: cfg.PriceDigits, Policy: cfg.MinimumMarginPolicy}
	return costplan.NewService(db.NewUnitOfWork(database), store.NewRepos, registry, opts, log), nil
}

func serve(ctx context.Context, addr string, srv *server, log *zap.Logger) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
