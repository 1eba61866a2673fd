package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mahaj/dupahar-dm/pkg/auth"
	"github.com/mahaj/dupahar-dm/pkg/config"
	"github.com/mahaj/dupahar-dm/pkg/events"
	"github.com/mahaj/dupahar-dm/pkg/gateway"
	"github.com/mahaj/dupahar-dm/pkg/logging"
	"github.com/mahaj/dupahar-dm/pkg/presence"
	"github.com/mahaj/dupahar-dm/pkg/snowflake"
	"github.com/mahaj/dupahar-dm/pkg/store"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString("gateway: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, closer, err := logging.New("gateway", cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg, log)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer st.Close()

	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := gateway.Options{
		Store:            st,
		Tokens:           auth.NewSigner(cfg.JWTSecret, cfg.TokenTTL),
		IDs:              node,
		Metrics:          gateway.NewMetrics(reg),
		QueueSize:        cfg.SendQueueSize,
		MaxContentLength: cfg.MaxContentLength,
		PersistTimeout:   cfg.PersistTimeout,
		Log:              log,
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		mirror := presence.NewRedisMirror(rdb, log.With().Str("component", "presence-mirror").Logger())
		if err := mirror.Reset(ctx); err != nil {
			log.Warn().Err(err).Msg("Could not reset presence set, continuing")
		}
		go mirror.Run(ctx)
		opts.Mirror = mirror
	}

	if cfg.KafkaEnabled() {
		pub := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, log))
		defer pub.Close()
		opts.Publisher = pub
	}

	hub := gateway.NewHub(opts)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(ctx, hub, log, w, r)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: cfg.GatewayAddr, Handler: mux}
	return serve(ctx, srv, log)
}

func serve(ctx context.Context, srv *http.Server, log zerolog.Logger) error {
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Gateway service starting")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info().Msg("Shutting down")
	return srv.Shutdown(shutdown)
}
