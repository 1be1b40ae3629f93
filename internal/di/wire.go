package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/config"
)

// New builds the full container. Stages run in dependency order; a failure
// at any stage closes whatever was already opened.
func New(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c := &Container{
		Log:    log,
		Config: cfg,
	}

	if err := c.openDatabases(); err != nil {
		return nil, err
	}
	if err := c.buildRepositories(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.buildServices(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.buildJobs(); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// Close releases everything the container owns.
func (c *Container) Close() error {
	var firstErr error

	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.CacheDB != nil {
		if err := c.CacheDB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close cache database: %w", err)
		}
	}
	if c.RentalDB != nil {
		if err := c.RentalDB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close rental database: %w", err)
		}
	}

	return firstErr
}
