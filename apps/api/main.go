package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/mahaj/dupahar-dm/pkg/auth"
	"github.com/mahaj/dupahar-dm/pkg/config"
	"github.com/mahaj/dupahar-dm/pkg/events"
	"github.com/mahaj/dupahar-dm/pkg/logging"
	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/mahaj/dupahar-dm/pkg/presence"
	"github.com/mahaj/dupahar-dm/pkg/store"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// API serves the HTTP side of the system: login, history, conversations and
// presence reads. Presence and activity are optional and answer 503 without
// Redis.
type API struct {
	store    store.MessageStore
	signer   *auth.Signer
	presence presence.SetClient
	activity *events.Activity
	validate *validator.Validate
	log      zerolog.Logger
}

func NewAPI(st store.MessageStore, signer *auth.Signer, log zerolog.Logger) *API {
	return &API{store: st, signer: signer, validate: model.NewValidator(), log: log}
}

// WithRedis enables the presence and activity endpoints.
func (a *API) WithRedis(set presence.SetClient, activity *events.Activity) *API {
	a.presence = set
	a.activity = activity
	return a
}

func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()

	// Public endpoint
	mux.HandleFunc("POST /login", a.Login)

	// Protected endpoints
	mux.Handle("GET /history", a.AuthMiddleware(http.HandlerFunc(a.History)))
	mux.Handle("GET /conversations", a.AuthMiddleware(http.HandlerFunc(a.Conversations)))
	mux.Handle("POST /conversations/read", a.AuthMiddleware(http.HandlerFunc(a.MarkRead)))
	mux.Handle("GET /presence", a.AuthMiddleware(http.HandlerFunc(a.Presence)))
	mux.Handle("GET /users/{id}/activity", a.AuthMiddleware(http.HandlerFunc(a.Activity)))

	return CORSMiddleware(mux)
}

func CORSMiddleware(next http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}), // Allow all for dev
		handlers.AllowedMethods([]string{"POST", "GET", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "X-CSRF-Token", "Authorization"}),
	)(next)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString("api: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, closer, err := logging.New("api", cfg.LogLevel, cfg.LogFile)
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

	api := NewAPI(st, auth.NewSigner(cfg.JWTSecret, cfg.TokenTTL), log)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		api.WithRedis(rdb, events.NewActivity(rdb))
	}

	access := log.With().Str("component", "access").Logger()
	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           handlers.CombinedLoggingHandler(access, api.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.StoreDriver).Msg("API service starting")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdown)
}
