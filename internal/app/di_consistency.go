package app

import (
	"fmt"

	consistencyHTTP "github.com/allisson/billingsync/internal/consistency/http"
	consistencyRepository "github.com/allisson/billingsync/internal/consistency/repository"
	consistencyUseCase "github.com/allisson/billingsync/internal/consistency/usecase"
)

// UnresolvedEventRepository returns the unresolved event repository for the configured driver.
func (c *Container) UnresolvedEventRepository() (consistencyUseCase.UnresolvedEventRepository, error) {
	var err error
	c.unresolvedEventRepositoryInit.Do(func() {
		c.unresolvedEventRepository, err = c.initUnresolvedEventRepository()
		if err != nil {
			c.initErrors["unresolvedEventRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["unresolvedEventRepository"]; exists {
		return nil, storedErr
	}
	return c.unresolvedEventRepository, nil
}

// BillingProfileRepairRepository returns the repair queue repository for the configured driver.
func (c *Container) BillingProfileRepairRepository() (consistencyUseCase.BillingProfileRepairRepository, error) {
	var err error
	c.repairRepositoryInit.Do(func() {
		c.repairRepository, err = c.initBillingProfileRepairRepository()
		if err != nil {
			c.initErrors["repairRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["repairRepository"]; exists {
		return nil, storedErr
	}
	return c.repairRepository, nil
}

// ConsistencyStore returns the consistency store.
func (c *Container) ConsistencyStore() (consistencyUseCase.ConsistencyStore, error) {
	var err error
	c.consistencyStoreInit.Do(func() {
		c.consistencyStore, err = c.initConsistencyStore()
		if err != nil {
			c.initErrors["consistencyStore"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["consistencyStore"]; exists {
		return nil, storedErr
	}
	return c.consistencyStore, nil
}

// ConsistencyHTTPHandler builds the operator consistency handler.
func (c *Container) ConsistencyHTTPHandler() (*consistencyHTTP.ConsistencyHandler, error) {
	store, err := c.ConsistencyStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get consistency store for consistency handler: %w", err)
	}
	return consistencyHTTP.NewConsistencyHandler(store, c.Logger()), nil
}

func (c *Container) initUnresolvedEventRepository() (consistencyUseCase.UnresolvedEventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for unresolved event repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return consistencyRepository.NewPostgreSQLUnresolvedEventRepository(db), nil
	case "mysql":
		return consistencyRepository.NewMySQLUnresolvedEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initBillingProfileRepairRepository() (consistencyUseCase.BillingProfileRepairRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for repair repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return consistencyRepository.NewPostgreSQLBillingProfileRepairRepository(db), nil
	case "mysql":
		return consistencyRepository.NewMySQLBillingProfileRepairRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initConsistencyStore() (consistencyUseCase.ConsistencyStore, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for consistency store: %w", err)
	}
	unresolvedRepo, err := c.UnresolvedEventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get unresolved event repository for consistency store: %w", err)
	}
	repairRepo, err := c.BillingProfileRepairRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get repair repository for consistency store: %w", err)
	}

	store := consistencyUseCase.NewConsistencyStore(
		txManager,
		unresolvedRepo,
		repairRepo,
		c.StoreExecutor(),
		c.Logger(),
	)

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for consistency store: %w", err)
		}
		store = consistencyUseCase.NewConsistencyStoreWithMetrics(store, businessMetrics)
	}

	return store, nil
}
