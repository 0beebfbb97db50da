// Command import loads the data files of the previous PIN banking
// application into the configured account store.
//
//	import -users data/users.json -transactions data/transactions.json
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"pin-ledger/config"
	"pin-ledger/internal/adapter/storage"
	"pin-ledger/internal/legacy"
	"pin-ledger/internal/service"
	"pin-ledger/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file (default ./config.yaml)")
		usersPath  = flag.String("users", "data/users.json", "legacy users file")
		txPath     = flag.String("transactions", "data/transactions.json", "legacy transactions file")
		zone       = flag.String("tz", "Local", "time zone of legacy transaction dates")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	loc, err := time.LoadLocation(*zone)
	if err != nil {
		log.Fatal().Err(err).Str("tz", *zone).Msg("Unknown time zone")
	}

	data, err := readLegacy(*usersPath, *txPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read legacy files")
	}

	ctx := context.Background()
	backend, err := storage.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open account store")
	}

	importer := legacy.NewImporter(backend.Store, legacy.Options{
		Location: loc,
		ValidateID: func(id string) error {
			return service.ValidateAccountID(id, cfg.Ledger.MaxAccountIDLength)
		},
	}, log)

	res, err := importer.Import(ctx, data)
	if closeErr := backend.Store.Close(); closeErr != nil {
		log.Error().Err(closeErr).Msg("Failed to close account store")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed, nothing was written")
	}

	log.Info().
		Int("accounts", res.Accounts).
		Int("entries", res.Entries).
		Strs("skipped_users", res.SkippedUsers).
		Int("skipped_entries", res.SkippedEntries).
		Msg("Legacy import complete")
}

func readLegacy(usersPath, txPath string) (*legacy.Data, error) {
	users, err := os.Open(usersPath)
	if err != nil {
		return nil, err
	}
	defer users.Close()

	txs, err := os.Open(txPath)
	if err != nil {
		return nil, err
	}
	defer txs.Close()

	return legacy.Decode(users, txs)
}
