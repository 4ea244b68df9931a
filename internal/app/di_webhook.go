package app

import (
	"fmt"

	"github.com/allisson/billingsync/internal/processor"
	"github.com/allisson/billingsync/internal/worker"
	webhookHTTP "github.com/allisson/billingsync/internal/webhook/http"
	webhookRepository "github.com/allisson/billingsync/internal/webhook/repository"
	webhookUseCase "github.com/allisson/billingsync/internal/webhook/usecase"
)

// PaymentProcessor returns the Stripe client. Secrets are decrypted through the configured
// KMS key first when STRIPE_SECRETS_KMS_KEY_URI is set.
func (c *Container) PaymentProcessor() (processor.Client, error) {
	var err error
	c.paymentProcessorInit.Do(func() {
		c.paymentProcessor, err = c.initPaymentProcessor()
		if err != nil {
			c.initErrors["paymentProcessor"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["paymentProcessor"]; exists {
		return nil, storedErr
	}
	return c.paymentProcessor, nil
}

// WebhookEventRepository returns the webhook event repository for the configured driver.
func (c *Container) WebhookEventRepository() (webhookUseCase.WebhookEventRepository, error) {
	var err error
	c.webhookEventRepositoryInit.Do(func() {
		c.webhookEventRepository, err = c.initWebhookEventRepository()
		if err != nil {
			c.initErrors["webhookEventRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["webhookEventRepository"]; exists {
		return nil, storedErr
	}
	return c.webhookEventRepository, nil
}

// WebhookLedger returns the webhook ledger.
func (c *Container) WebhookLedger() (webhookUseCase.WebhookLedger, error) {
	var err error
	c.webhookLedgerInit.Do(func() {
		c.webhookLedger, err = c.initWebhookLedger()
		if err != nil {
			c.initErrors["webhookLedger"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["webhookLedger"]; exists {
		return nil, storedErr
	}
	return c.webhookLedger, nil
}

// Dispatcher returns the event dispatcher shared by the receiver and the reconciliation worker.
func (c *Container) Dispatcher() (*webhookUseCase.Dispatcher, error) {
	var err error
	c.dispatcherInit.Do(func() {
		c.dispatcher, err = c.initDispatcher()
		if err != nil {
			c.initErrors["dispatcher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["dispatcher"]; exists {
		return nil, storedErr
	}
	return c.dispatcher, nil
}

// ReconciliationWorker returns the webhook reconciliation worker.
func (c *Container) ReconciliationWorker() (*webhookUseCase.ReconciliationWorker, error) {
	var err error
	c.reconciliationWorkerInit.Do(func() {
		c.reconciliationWorker, err = c.initReconciliationWorker()
		if err != nil {
			c.initErrors["reconciliationWorker"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["reconciliationWorker"]; exists {
		return nil, storedErr
	}
	return c.reconciliationWorker, nil
}

// WebhookHTTPHandler builds the webhook receiver handler.
func (c *Container) WebhookHTTPHandler() (*webhookHTTP.WebhookHandler, error) {
	client, err := c.PaymentProcessor()
	if err != nil {
		return nil, fmt.Errorf("failed to get payment processor for webhook handler: %w", err)
	}
	dispatcher, err := c.Dispatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatcher for webhook handler: %w", err)
	}
	ledger, err := c.WebhookLedger()
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook ledger for webhook handler: %w", err)
	}
	return webhookHTTP.NewWebhookHandler(client, dispatcher, ledger, c.Logger()), nil
}

func (c *Container) initPaymentProcessor() (processor.Client, error) {
	secrets, err := processor.DecryptSecrets(
		c.ctx,
		c.config.StripeSecretsKMSKeyURI,
		c.config.StripeSecretKey,
		c.config.StripeWebhookSecret,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt stripe secrets: %w", err)
	}
	return processor.NewStripeClient(processor.StripeConfig{
		SecretKey:       secrets[0],
		WebhookSecret:   secrets[1],
		RateLimitPerSec: c.config.StripeAPIRateLimitPerSec,
		RateLimitBurst:  c.config.StripeAPIRateLimitBurst,
	}, c.Logger()), nil
}

func (c *Container) initWebhookEventRepository() (webhookUseCase.WebhookEventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for webhook event repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return webhookRepository.NewPostgreSQLWebhookEventRepository(db), nil
	case "mysql":
		return webhookRepository.NewMySQLWebhookEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initWebhookLedger() (webhookUseCase.WebhookLedger, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for webhook ledger: %w", err)
	}
	repo, err := c.WebhookEventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook event repository for webhook ledger: %w", err)
	}

	ledger := webhookUseCase.NewWebhookLedger(
		txManager,
		repo,
		c.StoreExecutor(),
		c.config.WebhookProcessingTTL,
		c.Logger(),
	)

	if c.config.WebhookLedgerCacheEnabled {
		client, err := c.RedisClient()
		if err != nil {
			return nil, fmt.Errorf("failed to get redis client for webhook ledger cache: %w", err)
		}
		cache := webhookRepository.NewRedisProcessedCache(client, "", c.config.WebhookLedgerCacheTTL)
		ledger = webhookUseCase.NewCachedWebhookLedger(ledger, cache, c.Logger())
	}

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for webhook ledger: %w", err)
		}
		ledger = webhookUseCase.NewWebhookLedgerWithMetrics(ledger, businessMetrics)
	}

	return ledger, nil
}

func (c *Container) initDispatcher() (*webhookUseCase.Dispatcher, error) {
	ledger, err := c.WebhookLedger()
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook ledger for dispatcher: %w", err)
	}
	handlers, err := c.WebhookHandlers()
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook handlers for dispatcher: %w", err)
	}
	return webhookUseCase.NewDispatcher(ledger, handlers, c.Logger()), nil
}

func (c *Container) initReconciliationWorker() (*webhookUseCase.ReconciliationWorker, error) {
	client, err := c.PaymentProcessor()
	if err != nil {
		return nil, fmt.Errorf("failed to get payment processor for reconciliation worker: %w", err)
	}
	dispatcher, err := c.Dispatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatcher for reconciliation worker: %w", err)
	}
	ledger, err := c.WebhookLedger()
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook ledger for reconciliation worker: %w", err)
	}
	store, err := c.ConsistencyStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get consistency store for reconciliation worker: %w", err)
	}
	alerts, err := c.AlertRecorder()
	if err != nil {
		return nil, fmt.Errorf("failed to get alert recorder for reconciliation worker: %w", err)
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for reconciliation worker: %w", err)
	}

	return webhookUseCase.NewReconciliationWorker(
		webhookUseCase.ReconciliationConfig{
			Poll: worker.Config{
				Name:             webhookUseCase.ReconciliationWorkerName,
				BasePollInterval: c.config.WebhookReconcilePollInterval,
				MaxPollInterval:  c.config.WebhookReconcileMaxPollInterval,
				BackoffFactor:    c.config.WebhookReconcileBackoffFactor,
			},
			Lookback: c.config.WebhookReconcileLookback,
		},
		client,
		dispatcher,
		ledger,
		store,
		alerts,
		businessMetrics,
		c.Logger(),
	), nil
}
