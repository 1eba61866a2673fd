package store

import (
	"context"

	"github.com/mahaj/dupahar-dm/pkg/config"
	"github.com/mahaj/dupahar-dm/pkg/db"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Open builds the backend selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg config.Config, log zerolog.Logger) (MessageStore, error) {
	log = log.With().Str("driver", cfg.StoreDriver).Logger()

	switch cfg.StoreDriver {
	case "memory":
		log.Warn().Msg("Using in-memory message store, history is lost on restart")
		return NewMemory(), nil
	case "badger":
		log.Info().Str("path", cfg.BadgerPath).Msg("Opening badger message store")
		return OpenBadger(cfg.BadgerPath)
	case "scylla":
		log.Info().Strs("hosts", cfg.ScyllaHosts).Str("keyspace", cfg.ScyllaKeyspace).Msg("Connecting to ScyllaDB")
		session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
		if err != nil {
			return nil, err
		}
		return NewScylla(session), nil
	case "mongo":
		log.Info().Str("database", cfg.MongoDatabase).Msg("Connecting to MongoDB")
		return OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case "postgres":
		log.Info().Msg("Connecting to Postgres")
		return OpenPostgres(ctx, cfg.PostgresURL)
	}
	return nil, errors.Errorf("unknown store driver %q", cfg.StoreDriver)
}
