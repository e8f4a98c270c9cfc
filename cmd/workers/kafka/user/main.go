package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/segmentio/kafka-go"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/consultdesk/messaging-service/internal/config"
	"github.com/consultdesk/messaging-service/internal/databus/user"
	"github.com/consultdesk/messaging-service/internal/repository/postgres"
)

const userProfileConsumerGroupID = "messaging-profile-updater"

func main() {
	cfg := config.MustLoad()
	logger := logger_lib.New(cfg.Logger.Host, cfg.Logger.Port, cfg.Service.Name, cfg.Platform.Env)

	dbRepo := postgres.New(cfg)
	defer dbRepo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{fmt.Sprintf("%s:%s", cfg.Kafka.Host, cfg.Kafka.Port)},
		Topic:   cfg.Kafka.UserTopic,
		GroupID: userProfileConsumerGroupID,
	})
	defer reader.Close() //nolint:errcheck // .

	userHandler := user.New(dbRepo)

	for {
		message, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error(fmt.Sprintf("failed to fetch message: %v", err))
			continue
		}

		if err := userHandler.Handle(ctx, message.Value); err != nil {
			// skip the poison message after logging, the offset still advances
			logger.Error(fmt.Sprintf("failed to handle user profile event: %v", err))
		}

		if err := reader.CommitMessages(ctx, message); err != nil {
			logger.Error(fmt.Sprintf("failed to commit offset: %v", err))
		}
	}
}
