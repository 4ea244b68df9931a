package app

import (
	"fmt"

	billingRepository "github.com/allisson/billingsync/internal/billing/repository"
	billingUseCase "github.com/allisson/billingsync/internal/billing/usecase"
	"github.com/allisson/billingsync/internal/worker"
)

// BillingProfileRepository returns the billing profile repository for the configured driver.
func (c *Container) BillingProfileRepository() (billingUseCase.BillingProfileRepository, error) {
	var err error
	c.billingProfileRepositoryInit.Do(func() {
		c.billingProfileRepository, err = c.initBillingProfileRepository()
		if err != nil {
			c.initErrors["billingProfileRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["billingProfileRepository"]; exists {
		return nil, storedErr
	}
	return c.billingProfileRepository, nil
}

// ProfileUseCase returns the billing profile use case.
func (c *Container) ProfileUseCase() (billingUseCase.ProfileUseCase, error) {
	var err error
	c.profileUseCaseInit.Do(func() {
		c.profileUseCase, err = c.initProfileUseCase()
		if err != nil {
			c.initErrors["profileUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["profileUseCase"]; exists {
		return nil, storedErr
	}
	return c.profileUseCase, nil
}

// WebhookHandlers returns the checkout and invoice event handlers.
func (c *Container) WebhookHandlers() (*billingUseCase.WebhookHandlers, error) {
	var err error
	c.webhookHandlersInit.Do(func() {
		c.webhookHandlers, err = c.initWebhookHandlers()
		if err != nil {
			c.initErrors["webhookHandlers"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["webhookHandlers"]; exists {
		return nil, storedErr
	}
	return c.webhookHandlers, nil
}

// RepairWorker returns the billing profile repair worker.
func (c *Container) RepairWorker() (*billingUseCase.RepairWorker, error) {
	var err error
	c.repairWorkerInit.Do(func() {
		c.repairWorker, err = c.initRepairWorker()
		if err != nil {
			c.initErrors["repairWorker"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["repairWorker"]; exists {
		return nil, storedErr
	}
	return c.repairWorker, nil
}

func (c *Container) initBillingProfileRepository() (billingUseCase.BillingProfileRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for billing profile repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return billingRepository.NewPostgreSQLBillingProfileRepository(db), nil
	case "mysql":
		return billingRepository.NewMySQLBillingProfileRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initProfileUseCase() (billingUseCase.ProfileUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for profile use case: %w", err)
	}
	repo, err := c.BillingProfileRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get billing profile repository for profile use case: %w", err)
	}

	useCase := billingUseCase.NewProfileUseCase(txManager, repo, c.StoreExecutor(), c.Logger())

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for profile use case: %w", err)
		}
		useCase = billingUseCase.NewProfileUseCaseWithMetrics(useCase, businessMetrics)
	}

	return useCase, nil
}

func (c *Container) initWebhookHandlers() (*billingUseCase.WebhookHandlers, error) {
	profiles, err := c.ProfileUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get profile use case for webhook handlers: %w", err)
	}
	store, err := c.ConsistencyStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get consistency store for webhook handlers: %w", err)
	}
	return billingUseCase.NewWebhookHandlers(profiles, store, c.Logger()), nil
}

func (c *Container) initRepairWorker() (*billingUseCase.RepairWorker, error) {
	store, err := c.ConsistencyStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get consistency store for repair worker: %w", err)
	}
	profiles, err := c.ProfileUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get profile use case for repair worker: %w", err)
	}
	alerts, err := c.AlertRecorder()
	if err != nil {
		return nil, fmt.Errorf("failed to get alert recorder for repair worker: %w", err)
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for repair worker: %w", err)
	}

	return billingUseCase.NewRepairWorker(
		billingUseCase.RepairWorkerConfig{
			Poll: worker.Config{
				Name:             billingUseCase.RepairWorkerName,
				BasePollInterval: c.config.BillingRepairPollInterval,
				MaxPollInterval:  c.config.BillingRepairMaxPollInterval,
				BackoffFactor:    c.config.BillingRepairBackoffFactor,
			},
			MaxPerRun:   c.config.BillingRepairMaxPerRun,
			MaxAttempts: c.config.BillingRepairMaxAttempts,
			ScanLimit:   c.config.BillingRepairScanLimit,
		},
		store,
		profiles,
		alerts,
		businessMetrics,
		c.Logger(),
	), nil
}
