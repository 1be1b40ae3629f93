package di

import (
	"github.com/aristath/quartermaster/internal/modules/purchasing"
	"github.com/aristath/quartermaster/internal/modules/rental"
)

// buildServices constructs the two engines on top of the repositories. Both
// share the rental.db connection so every operation runs as one transaction
// against the same store.
func (c *Container) buildServices() error {
	location := c.Config.Location()
	rentalConn := c.RentalDB.Conn()

	c.RentalService = rental.NewService(
		rentalConn,
		c.Ledger,
		c.Store,
		c.Journal,
		c.CatalogRepo,
		c.CustomerRepo,
		c.Cache,
		c.Config.Engine,
		location,
		c.Log,
	)

	c.PurchasingService = purchasing.NewService(
		rentalConn,
		c.Ledger,
		c.Store,
		c.Journal,
		c.CatalogRepo,
		c.Cache,
		c.Config.Engine,
		location,
		c.Log,
	)

	return nil
}
