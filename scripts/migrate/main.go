package main

import (
	"flag"
	"os"
	"strings"

	"github.com/mahaj/dupahar-dm/pkg/config"
	"github.com/mahaj/dupahar-dm/pkg/db"
	"github.com/mahaj/dupahar-dm/pkg/logging"
)

func main() {
	drop := flag.Bool("drop", false, "drop the message tables instead of creating them")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	log, closer, err := logging.New("migrate", cfg.LogLevel, "")
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	hosts := cfg.ScyllaHosts
	log.Info().Str("hosts", strings.Join(hosts, ",")).Str("keyspace", cfg.ScyllaKeyspace).Bool("drop", *drop).Msg("Migrating")

	if !*drop {
		if err := db.EnsureKeyspace(hosts, cfg.ScyllaKeyspace); err != nil {
			log.Fatal().Err(err).Msg("Failed to create keyspace")
		}
	}

	session, err := db.NewSession(hosts, cfg.ScyllaKeyspace)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to ScyllaDB")
	}
	defer session.Close()

	if *drop {
		if err := session.DropSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to drop tables")
		}
		log.Info().Msg("Tables dropped successfully")
		return
	}
	if err := session.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to create tables")
	}
	log.Info().Msg("Tables created successfully")
}
