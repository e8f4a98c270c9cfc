package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/consultdesk/messaging-service/internal/call"
	"github.com/consultdesk/messaging-service/internal/client/feed"
	"github.com/consultdesk/messaging-service/internal/client/rooms"
	"github.com/consultdesk/messaging-service/internal/config"
	"github.com/consultdesk/messaging-service/internal/infra"
	"github.com/consultdesk/messaging-service/internal/metrics"
	"github.com/consultdesk/messaging-service/internal/pkg/jwt"
	"github.com/consultdesk/messaging-service/internal/pkg/tx"
	"github.com/consultdesk/messaging-service/internal/pkg/validator"
	"github.com/consultdesk/messaging-service/internal/realtime"
	db "github.com/consultdesk/messaging-service/internal/repository/postgres"
	"github.com/consultdesk/messaging-service/internal/rest"
)

func main() {
	cfg := config.MustLoad()
	logger := logger_lib.New(cfg.Logger.Host, cfg.Logger.Port, cfg.Service.Name, cfg.Platform.Env)

	dbRepo := db.New(cfg)
	defer dbRepo.Close()

	roomsClient := rooms.New(cfg)
	defer roomsClient.Close()

	jwtGenerator := jwt.New(cfg.Realtime.JWTSecret)

	feedClient := feed.New(cfg, jwtGenerator)
	defer feedClient.Close()

	vldtr := validator.New()
	m := metrics.New()

	coordinator := call.New(cfg, dbRepo, roomsClient, logger, m)

	sessions := realtime.NewManager(
		dbRepo,
		realtime.SubscriberFunc(func(ctx context.Context, userID, conversationID string) (realtime.Subscription, error) {
			return feedClient.Subscribe(ctx, userID, conversationID)
		}),
		realtime.Config{},
		m,
	)

	handler := rest.New(dbRepo, feedClient, coordinator, sessions, vldtr, jwtGenerator, cfg.Calls.CronSecret)

	router := chi.NewRouter()
	router.Handle("/metrics", m.Handler())
	router.Post("/api/calls/cleanup", func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), config.KeyLogger, logger)
		handler.Cleanup(w, r.WithContext(ctx))
	})

	router.Group(func(authed chi.Router) {
		authed.Use(func(next http.Handler) http.Handler {
			return infra.AuthInterceptorHTTP(next, cfg.Service.JWTSecret)
		})
		authed.Use(func(next http.Handler) http.Handler {
			return infra.LoggerHTTP(next, logger)
		})
		authed.Use(func(next http.Handler) http.Handler {
			return tx.TxMiddlewareHTTP(dbRepo)(next)
		})

		rest.AttachRoutes(handler, authed)
	})

	stopSweeper, err := call.StartSweeper(context.Background(), coordinator, cfg.Calls.SweepCron)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to start call sweeper: %v", err))
	} else {
		defer stopSweeper()
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Service.Port),
		Handler: router,
	}

	g, _ := errgroup.WithContext(context.Background())

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("server error: %v", err))
	}
}
