package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/liuran001/MuzmoBot-Go/bot/config"
	"github.com/liuran001/MuzmoBot-Go/bot/db"
	"github.com/liuran001/MuzmoBot-Go/bot/id3"
	logpkg "github.com/liuran001/MuzmoBot-Go/bot/logger"
	"github.com/liuran001/MuzmoBot-Go/bot/metrics"
	"github.com/liuran001/MuzmoBot-Go/bot/muzmo"
	"github.com/liuran001/MuzmoBot-Go/bot/pipeline"
	"github.com/liuran001/MuzmoBot-Go/bot/rank"
	"github.com/liuran001/MuzmoBot-Go/bot/session"
	"github.com/liuran001/MuzmoBot-Go/bot/telegram"
	"github.com/liuran001/MuzmoBot-Go/bot/telegram/handler"
	"github.com/liuran001/MuzmoBot-Go/bot/transfer"
	"github.com/liuran001/MuzmoBot-Go/bot/worker"
	"github.com/mymmrac/telego"
)

// App wires all application dependencies.
type App struct {
	Config   *config.Config
	Logger   *logpkg.Logger
	DB       *db.Repository
	Pool     *worker.Pool
	Limiter  *worker.Limiter
	Muzmo    *muzmo.Client
	Pipeline *pipeline.Service
	Telegram *telegram.Bot
	Transfer *transfer.Controller
	Build    BuildInfo

	router  *handler.Router
	metrics *metrics.Server
	polling chan struct{}
}

// BuildInfo provides build-time metadata.
type BuildInfo struct {
	RuntimeVer string
	BinVersion string
	CommitSHA  string
	BuildTime  string
	BuildArch  string
}

// New builds the application container.
func New(ctx context.Context, configPath string, build BuildInfo) (*App, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logpkg.New(logpkg.Options{
		Level:     conf.GetString("LogLevel"),
		Format:    conf.GetString("LogFormat"),
		AddSource: conf.GetBool("LogSource"),
		Dir:       conf.GetString("LogDir"),
	})
	if err != nil {
		return nil, err
	}

	gormLogger := logpkg.NewGormLogger(log.Slog(), conf.GetString("GormLogLevel"))
	databasePath := strings.TrimSpace(conf.GetString("Database"))
	if databasePath == "" {
		databasePath = "cache.db"
	}
	repo, err := db.NewSQLiteRepository(databasePath, gormLogger)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}
	if err := repo.ConfigurePool(conf.GetInt("DBMaxOpenConns"), conf.GetInt("DBMaxIdleConns"), conf.GetSeconds("DBConnMaxLifetimeSec")); err != nil {
		return nil, fmt.Errorf("configure db pool: %w", err)
	}

	pool := worker.New(conf.GetInt("WorkerPoolSize"))
	limiter := worker.NewLimiter(conf.GetInt("TransferConcurrency"))

	client, err := muzmo.New(muzmo.Options{
		BaseURL:       conf.GetString("BaseURL"),
		UserAgent:     conf.GetString("UserAgent"),
		SearchTimeout: conf.GetSeconds("SearchTimeout"),
		SearchRetries: conf.GetInt("SearchRetries"),
		Limiter:       limiter,
		Logger:        log.With("component", "muzmo"),
	})
	if err != nil {
		return nil, fmt.Errorf("init muzmo client: %w", err)
	}
	resolver := muzmo.NewResolver(client,
		conf.GetInt("ResolveMaxAttempts"),
		time.Duration(conf.GetInt("ResolveRetryDelayMs"))*time.Millisecond,
		log.With("component", "resolver"),
	)
	ranker := rank.New(pool, conf.GetInt("RankPartitions"), log.With("component", "rank"))
	sessions := session.New(time.Duration(conf.GetInt("SessionTTLMinutes"))*time.Minute, conf.GetInt("SessionCapacity"))

	transferLog := log.With("component", "transfer")
	controller := transfer.New(transfer.Options{
		SizeLimit:   conf.GetMegabytes("FILE_SIZE_LIMIT"),
		DirectLimit: conf.GetMegabytes("DirectSendLimitMB"),
		ChunkSize:   conf.GetInt("ChunkSizeKB") * 1024,
		CacheDir:    conf.GetString("CacheDir"),
		Timeout:     conf.GetSeconds("TransferTimeout"),
		UserAgent:   conf.GetString("UserAgent"),
		Limiter:     limiter,
		Tagger:      id3.NewID3Service(log),
		Progress: func(written, total int64) {
			transferLog.Debug("staging progress", "written", written, "total", total)
		},
		Logger: transferLog,
	})

	service := pipeline.New(client, ranker, resolver, controller, sessions, repo, log.With("component", "pipeline"), pipeline.Options{
		Pages:          conf.GetInt("PAGES_SCANNING"),
		Results:        conf.GetInt("SEARCH_RESULTS"),
		MinQueryLength: conf.GetInt("MinQueryLength"),
	})

	tele, err := telegram.New(conf, log)
	if err != nil {
		return nil, fmt.Errorf("init telegram: %w", err)
	}

	return &App{
		Config:   conf,
		Logger:   log,
		DB:       repo,
		Pool:     pool,
		Limiter:  limiter,
		Muzmo:    client,
		Pipeline: service,
		Telegram: tele,
		Transfer: controller,
		Build:    build,
	}, nil
}

// Start registers handlers and begins long polling in the background.
func (a *App) Start(ctx context.Context) error {
	if addr := strings.TrimSpace(a.Config.GetString("MetricsListen")); addr != "" {
		srv, err := metrics.Start(addr, a.Logger)
		if err != nil {
			return fmt.Errorf("start metrics listener: %w", err)
		}
		a.metrics = srv
		a.Logger.Info("metrics listener started", "addr", srv.Addr())
	}

	meCtx, cancel := telegram.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	me, err := a.Telegram.GetMe(meCtx)
	if err != nil {
		a.Logger.Error("getMe failed", "error", err)
	}
	botName := ""
	if me != nil {
		botName = me.Username
	}

	rateLimiter := telegram.NewRateLimiter(a.Config.GetFloat64("RateLimitPerSecond"), a.Config.GetInt("RateLimitBurst"))
	rateLimiter.SetLogger(a.Logger)

	handlerLog := a.Logger.With("component", "handler")
	a.router = &handler.Router{
		Start:  &handler.StartHandler{RateLimiter: rateLimiter},
		Help:   &handler.HelpHandler{SiteURL: a.Muzmo.BaseURL().String(), RateLimiter: rateLimiter},
		About:  &handler.AboutHandler{RuntimeVer: a.Build.RuntimeVer, BinVersion: a.Build.BinVersion, CommitSHA: a.Build.CommitSHA, BuildTime: a.Build.BuildTime, BuildArch: a.Build.BuildArch, RateLimiter: rateLimiter},
		Status: &handler.StatusHandler{Repo: a.DB, RateLimiter: rateLimiter},
		Search: &handler.SearchHandler{Pipeline: a.Pipeline, SiteURL: a.Muzmo.BaseURL().String(), RateLimiter: rateLimiter, Logger: handlerLog},
		Callback: &handler.SelectHandler{
			Pipeline:    a.Pipeline,
			UploadBot:   a.Telegram.UploadClient(),
			RateLimiter: rateLimiter,
			Logger:      handlerLog,
		},
		BotName:     botName,
		MaxInFlight: int64(a.Config.GetInt("MaxConcurrentUpdates")),
		Logger:      handlerLog,
	}

	if err := a.Telegram.Client().SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: []telego.BotCommand{
			{Command: "start", Description: "Начать"},
			{Command: "help", Description: "Справка"},
			{Command: "search", Description: "Найти песню"},
			{Command: "status", Description: "Статистика"},
			{Command: "about", Description: "О боте"},
		},
	}); err != nil {
		a.Logger.Warn("failed to set bot commands", "error", err)
	}

	a.polling = make(chan struct{})
	go func() {
		defer close(a.polling)
		if err := a.Telegram.Start(ctx, a.router.UpdateHandler(a.Telegram.Client())); err != nil {
			a.Logger.Error("telegram polling failed", "error", err)
		}
	}()
	return nil
}

// Shutdown waits for running handlers and releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if a.polling != nil {
		select {
		case <-a.polling:
		case <-ctx.Done():
		}
	}
	if a.router != nil {
		if err := a.router.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait for handlers: %w", err))
		}
	}

	if err := a.metrics.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop metrics listener: %w", err))
	}

	if a.Pool != nil {
		if err := a.Pool.Shutdown(ctx); err != nil {
			a.Pool.StopNow()
			errs = append(errs, fmt.Errorf("shutdown worker pool: %w", err))
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error("failed to close database", "error", err)
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	if a.Logger != nil {
		if err := a.Logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close logger: %w", err))
		}
	}

	return errors.Join(errs...)
}
