package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/quartermaster/internal/database"
)

// openDatabases opens and migrates the two databases. rental.db runs the
// ledger profile (synchronous FULL, immediate transactions); cache.db runs
// the cache profile (synchronous OFF).
func (c *Container) openDatabases() error {
	rentalDB, err := database.New(database.Config{
		Path:    filepath.Join(c.Config.DataDir, "rental.db"),
		Profile: database.ProfileLedger,
		Name:    "rental",
	})
	if err != nil {
		return fmt.Errorf("failed to open rental database: %w", err)
	}
	if err := rentalDB.Migrate(); err != nil {
		rentalDB.Close()
		return fmt.Errorf("failed to migrate rental database: %w", err)
	}
	c.RentalDB = rentalDB

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(c.Config.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		rentalDB.Close()
		return fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := cacheDB.Migrate(); err != nil {
		cacheDB.Close()
		rentalDB.Close()
		return fmt.Errorf("failed to migrate cache database: %w", err)
	}
	c.CacheDB = cacheDB

	c.Log.Info().
		Str("rental_db", rentalDB.Path()).
		Str("cache_db", cacheDB.Path()).
		Msg("Databases opened")

	return nil
}
