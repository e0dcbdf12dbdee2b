package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cimillas/adboard/config"
	"github.com/cimillas/adboard/internal/app"
	"github.com/cimillas/adboard/internal/clock"
	adkafka "github.com/cimillas/adboard/internal/kafka"
	"github.com/cimillas/adboard/internal/metrics"
	"github.com/cimillas/adboard/internal/storage/postgres"
	transporthttp "github.com/cimillas/adboard/internal/transport/http"
	"github.com/cimillas/adboard/migrations"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "adboard-feed").Logger()

	cfg, err := config.Load(os.Getenv("ADBOARD_CONFIG"))
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to db")
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Fatal().Err(err).Msg("db ping")
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	clk := clock.NewSystem()
	listingRepo := postgres.NewListingRepository(pool)
	feedRepo := postgres.NewFeedRepository(pool)
	ledgerRepo := postgres.NewLedgerRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)

	feedSvc := app.NewFeedService(feedRepo, clk, logger)
	listingSvc := app.NewListingService(listingRepo, ledgerRepo, clk, app.WithListingTTL(cfg.Listing.TTL))
	grantSvc := app.NewGrantService(ledgerRepo, listingRepo, clk, logger)
	paymentSvc := app.NewPaymentService(paymentRepo, clk, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/feed", transporthttp.HandleFeed(feedSvc, cfg.Feed.DefaultLimit))
	mux.Handle("/listings", transporthttp.HandleSubmitListing(listingSvc))
	mux.Handle("/listings/", transporthttp.ListingSubresources(listingSvc, grantSvc, grantSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.Server.CORSOrigins, mux), logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		logger.Info().Int("port", cfg.Server.Port).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Kafka.Enabled {
		consumer := adkafka.NewConsumer(adkafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, paymentSvc, logger)

		g.Go(func() error {
			logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("payment consumer starting")
			defer func() {
				if err := consumer.Close(); err != nil {
					logger.Error().Err(err).Msg("close payment consumer")
				}
			}()
			return consumer.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("service error")
	}
	logger.Info().Msg("service stopped")
}
