package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"example.com/shopcatalog/internal/catalog"
	"example.com/shopcatalog/internal/config"
	"example.com/shopcatalog/internal/eventlog"
	"example.com/shopcatalog/internal/ingest"
	"example.com/shopcatalog/internal/logger"
	"example.com/shopcatalog/internal/metrics"
	spg "example.com/shopcatalog/internal/storage/postgres"
	transport "example.com/shopcatalog/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.GetLogger().WithError(err).Fatal("config")
	}

	lg := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, MaxAgeDays: 7})
	logger.SetGlobal(lg)
	log := lg.WithComponent("main")
	log.WithFields(logger.Fields{
		"port":     cfg.Port,
		"postgres": cfg.PostgresDSN != "",
		"kinds":    cfg.ListingKinds,
		"featured": cfg.FeaturedLimit,
	}).Info("config loaded")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		log.WithError(err).Fatal("metrics register")
	}

	var (
		evlog eventlog.Log
		db    *spg.DB
	)
	if cfg.PostgresDSN == "" {
		evlog = eventlog.NewMemory()
		log.Warn("POSTGRES_DSN not set; events are kept in memory only")
	} else {
		db, err = spg.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.WithError(err).Fatal("db connect")
		}
		defer db.Close()
		log.Info("db: connected")

		if err := db.RunMigrations(ctx, "migrations"); err != nil {
			log.WithError(err).Fatal("migration")
		}
		log.Info("db: migrations applied")
		evlog = db
	}

	// The ingest loop outlives the signal context: it stops only after the
	// server has finished the requests that may still enqueue.
	ingestCtx, stopIngest := context.WithCancel(context.Background())
	defer stopIngest()
	ingestor := ingest.NewIngestor(evlog, cfg.QueueMaxSize, cfg.BatchMaxSize, cfg.BatchMaxWait, m, lg.WithComponent("ingest"))
	ingestor.Start(ingestCtx)
	log.WithFields(logger.Fields{
		"queue": cfg.QueueMaxSize,
		"batch": cfg.BatchMaxSize,
		"wait":  cfg.BatchMaxWait.String(),
	}).Info("ingest: started")

	deps := &transport.ServerDeps{
		Cfg:      cfg,
		Ingestor: ingestor,
		Log:      evlog,
		DB:       db,
		Assembler: catalog.NewAssembler(
			catalog.WithKinds(cfg.ListingKinds...),
			catalog.WithMetrics(m),
			catalog.WithLogger(lg.WithComponent("catalog")),
		),
		Metrics:  m,
		Gatherer: reg,
		Logger:   lg.WithComponent("api"),
		Now:      func() time.Time { return time.Now().UTC() },
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           deps.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infof("listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server")
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	stopIngest()
	<-ingestor.Done()
	log.Info("stopped")
}
