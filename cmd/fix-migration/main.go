// Package main repairs a dirty migration state in the registry database.
// golang-migrate marks a version dirty when a migration is interrupted, and
// the server then refuses to start. This tool connects with the server's
// configuration, reports the schema version, and clears the dirty flag so the
// next startup retries the migration.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/aibom-registry/aibom-registry/internal/config"
	"github.com/aibom-registry/aibom-registry/internal/db"
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
		return fmt.Errorf("registry.store is %q; migrations only apply to postgres", cfg.Registry.Store)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		return err
	}
	defer database.Close()
	log.Println("Connected to database successfully")

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return err
	}
	log.Printf("Current migration state: version=%d, dirty=%v", version, dirty)

	fixed, err := db.ClearDirty(database)
	if err != nil {
		return err
	}
	if !fixed {
		log.Println("Migration state is already clean")
		return nil
	}

	version, dirty, err = db.GetMigrationVersion(database)
	if err != nil {
		return err
	}
	log.Printf("Migration state fixed: version=%d, dirty=%v", version, dirty)
	return nil
}
