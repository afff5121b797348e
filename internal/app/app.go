package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"sugarwatch/internal/alerting"
	"sugarwatch/internal/config"
	"sugarwatch/internal/etl"
	"sugarwatch/internal/fetcher"
	"sugarwatch/internal/scheduler"
	"sugarwatch/internal/server"
	"sugarwatch/internal/service"
	"sugarwatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetchers() (fetcher.SugarFetcher, fetcher.FXFetcher, fetcher.FreightFetcher) {
	src := a.Config.Sources

	sugar := fetcher.NewSugar(fetcher.SugarOptions{
		BaseURL:   src.Sugar.BaseURL,
		Symbol:    src.Sugar.Symbol,
		Timeout:   src.Sugar.RequestTimeout,
		UserAgent: src.Sugar.UserAgent,
	}, a.Logger)

	fx := fetcher.NewFX(fetcher.FXOptions{
		BaseURL:      src.FX.BaseURL,
		Currency:     src.FX.Currency,
		FallbackRate: src.FX.FallbackRate,
		Timeout:      src.FX.RequestTimeout,
		UserAgent:    src.FX.UserAgent,
	}, a.Logger)

	freight := fetcher.NewFreight(fetcher.FreightOptions{
		BaseURL:   src.Freight.BaseURL,
		Symbol:    src.Freight.Symbol,
		Timeout:   src.Freight.RequestTimeout,
		UserAgent: src.Freight.UserAgent,
	}, a.Logger)

	return sugar, fx, freight
}

func (a *App) newPipeline(store *storage.Store) *etl.Pipeline {
	sugar, fx, freight := a.newFetchers()
	return etl.NewPipeline(sugar, fx, freight, store, etl.Options{
		FXWindowDays:  a.Config.Sources.FX.WindowDays,
		RetentionDays: a.Config.ETL.RetentionDays,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, *pgxpool.Pool, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, pool, closer, nil
}

func (a *App) newService(pipeline service.Runner, sched *scheduler.Scheduler, store *storage.Store) *service.Service {
	return service.New(pipeline, sched, store, store, a.newNotifier(), service.Options{
		CronSpec:        a.Config.Scheduler.CronSpec,
		Location:        a.Config.Location(),
		CatchupOnStart:  a.Config.Scheduler.CatchupOnStart,
		AdvisoryLockKey: a.Config.Scheduler.AdvisoryLockKey,
	}, a.Logger)
}

// Run executes the long-running service: startup catch-up, daily cron, and
// the query/trigger HTTP API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, pool, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if a.Config.Database.RunMigrations {
		if err := storage.RunMigrations(ctx, pool); err != nil {
			return err
		}
	}

	sched := scheduler.New(a.Config.Location(), a.Logger)
	pipeline := a.newPipeline(store)
	svc := a.newService(pipeline, sched, store)

	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	srv := server.New(a.Config.Server, store, svc, store.Ping, a.Logger)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	a.Logger.Info().Msg("sugarwatch started")

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			a.Logger.Error().Err(err).Msg("http server terminated")
			return err
		}
	}

	if err := srv.Shutdown(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("http server shutdown failed")
	}

	a.Logger.Info().Msg("sugarwatch stopped")
	return nil
}

// ExportOptions hold parameters for exporting stored history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
