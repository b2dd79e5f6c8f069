package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/client"
	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/config"
	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/db"
	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/http"
	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/pairing"
	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/repository"
	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/service"
	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/whatsapp"
)

func main() {
	log.Info().Msg("starting deployment service...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("insecure configuration")
	}
	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Audit log is optional; keep the interfaces nil when it is off
	var (
		recorder    service.DeploymentRecorder
		deployments http.DeploymentStore
	)
	if cfg.Database.URL != "" {
		pool, err := db.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		if err := db.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}

		repo := repository.NewDeploymentRepository(pool)
		recorder = repo
		deployments = repo
	} else {
		log.Warn().Msg("DATABASE_URL not set, deployment audit log disabled")
	}

	// Provisioning
	panelClient := client.NewPanelClient(cfg.Panel.URL, cfg.Panel.APIKey, cfg.Panel.Timeout)
	selector := service.NewAllocationSelector(panelClient, cfg.Panel.ScanAllNodes)
	provisionService := service.NewProvisionService(cfg.Panel, panelClient, selector, recorder)

	// Pairing
	store, err := whatsapp.NewStore(cfg.WhatsApp.SessionsDir, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare session store")
	}
	manager := pairing.NewManager(
		pairing.NewMemoryRegistry(),
		store,
		whatsapp.NewDialer(whatsapp.DefaultDisplayName, log.Logger),
		pairing.Options{
			Timeout:    cfg.Pairing.Timeout,
			CodeDelay:  cfg.Pairing.CodeDelay,
			LinkWindow: cfg.Pairing.LinkWindow,
		},
	)

	server := http.NewServer(cfg, http.NewHandler(provisionService, manager, deployments))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Run)
	g.Go(func() error {
		return manager.RunSweeper(gctx, cfg.Pairing.SweepInterval, cfg.Pairing.MaxAge)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// closing sessions first releases handlers blocked in Pair
		if err := manager.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("pairing shutdown")
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("service stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("service exited")
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
