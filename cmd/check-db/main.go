// Package main is a diagnostic tool for the postgres registry store. It
// connects with the server's configuration, prints the schema version and a
// summary of every record with its ledger sizes, and verifies the event hash
// chain. It exits non-zero on any failure, so it can gate a deployment on a
// reachable, consistent database.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aibom-registry/aibom-registry/internal/config"
	"github.com/aibom-registry/aibom-registry/internal/db"
	"github.com/aibom-registry/aibom-registry/internal/db/repositories"
	"github.com/aibom-registry/aibom-registry/internal/registry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Registry.Store != config.StorePostgres {
		return fmt.Errorf("registry.store is %q; check-db only inspects postgres", cfg.Registry.Store)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		return err
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return err
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)

	resolver, err := cfg.Registry.NewResolver()
	if err != nil {
		return err
	}
	reg := registry.New(repositories.NewRegistryStore(sqlx.NewDb(database, "postgres")), resolver)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	records, err := reg.ListAllRecords(ctx)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	fmt.Println("\n=== RECORDS ===")
	for _, rec := range records {
		subs, err := reg.Submissions(ctx, rec.ModelID)
		if err != nil {
			return err
		}
		vulns, err := reg.Vulnerabilities(ctx, rec.ModelID)
		if err != nil {
			return err
		}
		advs, err := reg.Advisories(ctx, rec.ModelID)
		if err != nil {
			return err
		}
		fmt.Printf("Model %d: owner=%s status=%s submissions=%d vulnerabilities=%d advisories=%d\n",
			rec.ModelID, rec.Owner, rec.Status, len(subs), len(vulns), len(advs))
	}
	if len(records) == 0 {
		fmt.Println("No records found")
	}

	fmt.Println("\n=== EVENT LOG ===")
	n, err := reg.VerifyEvents(ctx)
	if err != nil {
		return fmt.Errorf("event chain is broken: %w", err)
	}
	head, err := reg.EventHead(ctx)
	if err != nil {
		return err
	}
	if head == nil {
		fmt.Println("Event log is empty")
		return nil
	}
	fmt.Printf("%d events verified, head sequence=%d hash=%s\n", n, head.Sequence, head.Hash)
	return nil
}
