package di

import (
	"github.com/aristath/quartermaster/internal/cache"
	"github.com/aristath/quartermaster/internal/modules/catalog"
	"github.com/aristath/quartermaster/internal/modules/customers"
	"github.com/aristath/quartermaster/internal/modules/inventory"
	"github.com/aristath/quartermaster/internal/modules/journal"
	"github.com/aristath/quartermaster/internal/modules/transactions"
)

// buildRepositories wires the event bus, journal and all data-access
// components on top of the open databases.
func (c *Container) buildRepositories() error {
	rentalConn := c.RentalDB.Conn()
	cacheConn := c.CacheDB.Conn()

	c.EventBus = journal.NewBus(c.Log)
	c.Journal = journal.New(rentalConn, c.EventBus, c.Log)

	c.Ledger = inventory.NewLedger(rentalConn, c.Log)
	c.Store = transactions.NewStore(rentalConn, c.Journal, c.Log)
	c.CatalogRepo = catalog.NewRepository(rentalConn, c.Log)
	c.CustomerRepo = customers.NewRepository(rentalConn, c.Log)

	c.Cache = cache.NewStore(cacheConn, c.Log)
	c.JobHistory = cache.NewJobHistory(cacheConn, c.Log)

	return nil
}
