// Worker consumes provisioning events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, PROVISIONING_KAFKA_TOPIC, KAFKA_GROUP_ID and LOKI_URL.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"nova-workspace/backend/internal/config"
	"nova-workspace/backend/internal/logging"
	"nova-workspace/backend/internal/telemetry/loki"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type eventPusher interface {
	PushEventJSON(ctx context.Context, rawJSON []byte) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		logger.Fatal("worker: KAFKA_BROKERS is required")
	}
	if cfg.LokiURL == "" {
		logger.Fatal("worker: LOKI_URL is required")
	}

	topic := cfg.ProvisioningTopic
	if topic == "" {
		topic = "nova-provisioning"
	}
	groupID := cfg.KafkaGroupID
	if groupID == "" {
		groupID = "nova-provisioning-worker"
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info("worker: shutting down...")
		cancel()
	}()

	logger.Info("worker: consuming", zap.String("topic", topic), zap.String("group", groupID), zap.String("loki", cfg.LokiURL))
	consume(ctx, reader, loki.NewClient(cfg.LokiURL, "nova"), logger)
	logger.Info("worker: stopped")
}

// consume pushes every message to Loki until ctx is done. Read and push failures are logged and skipped.
func consume(ctx context.Context, reader messageReader, pusher eventPusher, logger *zap.Logger) {
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("worker: kafka read error", zap.Error(err))
			continue
		}

		pushCtx, pushCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := pusher.PushEventJSON(pushCtx, msg.Value); err != nil {
			logger.Warn("worker: loki push failed", zap.String("key", string(msg.Key)), zap.Error(err))
		}
		pushCancel()
	}
}
