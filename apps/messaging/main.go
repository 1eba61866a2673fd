package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mahaj/dupahar-dm/pkg/config"
	"github.com/mahaj/dupahar-dm/pkg/events"
	"github.com/mahaj/dupahar-dm/pkg/logging"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString("messaging: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, closer, err := logging.New("messaging", cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	if !cfg.KafkaEnabled() {
		return errors.New("KAFKA_BROKERS is required")
	}
	if cfg.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}

	p := &projector{activity: events.NewActivity(rdb), log: log}
	consumer := events.NewConsumer(events.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID), p.handle, log)
	defer consumer.Close()

	log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("Starting Kafka Consumer")
	consumer.Run(ctx)
	return nil
}
