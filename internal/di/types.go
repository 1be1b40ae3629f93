// Package di wires the application in stages: databases, then repositories,
// then services, then background jobs. Construction is explicit; nothing
// reaches for globals.
package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/cache"
	"github.com/aristath/quartermaster/internal/config"
	"github.com/aristath/quartermaster/internal/database"
	"github.com/aristath/quartermaster/internal/modules/catalog"
	"github.com/aristath/quartermaster/internal/modules/customers"
	"github.com/aristath/quartermaster/internal/modules/inventory"
	"github.com/aristath/quartermaster/internal/modules/journal"
	"github.com/aristath/quartermaster/internal/modules/purchasing"
	"github.com/aristath/quartermaster/internal/modules/rental"
	"github.com/aristath/quartermaster/internal/modules/transactions"
	"github.com/aristath/quartermaster/internal/scheduler"
)

// Container holds every constructed component. Fields are populated by the
// wiring stages in wire.go.
type Container struct {
	Log    zerolog.Logger
	Config *config.Config

	// Databases
	RentalDB *database.DB // ledger profile: transactions, stock, journal
	CacheDB  *database.DB // cache profile: availability snapshots, job history

	// Event plumbing
	EventBus *journal.Bus
	Journal  *journal.Journal

	// Repositories
	Ledger       *inventory.Ledger
	Store        *transactions.Store
	CatalogRepo  *catalog.Repository
	CustomerRepo *customers.Repository
	Cache        *cache.Store
	JobHistory   *cache.JobHistory

	// Services
	RentalService     *rental.Service
	PurchasingService *purchasing.Service

	// Background jobs
	Scheduler *scheduler.Scheduler
}
