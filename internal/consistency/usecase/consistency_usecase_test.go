package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	consistencyDomain "github.com/allisson/billingsync/internal/consistency/domain"
	apperrors "github.com/allisson/billingsync/internal/errors"
	"github.com/allisson/billingsync/internal/resilience"
)

// passthroughTxManager runs fn without a real transaction.
type passthroughTxManager struct{}

func (passthroughTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// memoryRepairRepository is an in-memory BillingProfileRepairRepository.
type memoryRepairRepository struct {
	mu      sync.Mutex
	repairs map[string]consistencyDomain.BillingProfileRepair
}

func newMemoryRepairRepository() *memoryRepairRepository {
	return &memoryRepairRepository{repairs: make(map[string]consistencyDomain.BillingProfileRepair)}
}

func (m *memoryRepairRepository) Create(_ context.Context, repair *consistencyDomain.BillingProfileRepair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.repairs[repair.RepairKey]; ok {
		return consistencyDomain.ErrRepairAlreadyExists
	}
	m.repairs[repair.RepairKey] = *repair
	return nil
}

func (m *memoryRepairRepository) Update(_ context.Context, repair *consistencyDomain.BillingProfileRepair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repairs[repair.RepairKey] = *repair
	return nil
}

func (m *memoryRepairRepository) GetByRepairKey(
	_ context.Context,
	repairKey string,
) (*consistencyDomain.BillingProfileRepair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	repair, ok := m.repairs[repairKey]
	if !ok {
		return nil, consistencyDomain.ErrRepairNotFound
	}
	return &repair, nil
}

func (m *memoryRepairRepository) GetByRepairKeyForUpdate(
	ctx context.Context,
	repairKey string,
) (*consistencyDomain.BillingProfileRepair, error) {
	return m.GetByRepairKey(ctx, repairKey)
}

func (m *memoryRepairRepository) ListByStatus(
	_ context.Context,
	status consistencyDomain.RepairStatus,
	limit int,
) ([]*consistencyDomain.BillingProfileRepair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	repairs := make([]*consistencyDomain.BillingProfileRepair, 0)
	for _, repair := range m.repairs {
		if repair.Status == status {
			r := repair
			repairs = append(repairs, &r)
		}
	}
	sort.Slice(repairs, func(i, j int) bool { return repairs[i].UpdatedAt.Before(repairs[j].UpdatedAt) })
	if len(repairs) > limit {
		repairs = repairs[:limit]
	}
	return repairs, nil
}

func (m *memoryRepairRepository) put(repair consistencyDomain.BillingProfileRepair) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repairs[repair.RepairKey] = repair
}

func (m *memoryRepairRepository) get(t *testing.T, repairKey string) consistencyDomain.BillingProfileRepair {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	repair, ok := m.repairs[repairKey]
	require.True(t, ok, "repair %s not stored", repairKey)
	return repair
}

type mockUnresolvedEventRepository struct {
	mock.Mock
}

func (m *mockUnresolvedEventRepository) Upsert(ctx context.Context, event *consistencyDomain.UnresolvedPaymentEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockUnresolvedEventRepository) ListOpen(
	ctx context.Context,
	limit int,
) ([]*consistencyDomain.UnresolvedPaymentEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*consistencyDomain.UnresolvedPaymentEvent), args.Error(1)
}

func (m *mockUnresolvedEventRepository) GetSummary(
	ctx context.Context,
	now time.Time,
) (*consistencyDomain.UnresolvedSummary, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*consistencyDomain.UnresolvedSummary), args.Error(1)
}

type mockRepairRepository struct {
	mock.Mock
}

func (m *mockRepairRepository) Create(ctx context.Context, repair *consistencyDomain.BillingProfileRepair) error {
	return m.Called(ctx, repair).Error(0)
}

func (m *mockRepairRepository) Update(ctx context.Context, repair *consistencyDomain.BillingProfileRepair) error {
	return m.Called(ctx, repair).Error(0)
}

func (m *mockRepairRepository) GetByRepairKey(
	ctx context.Context,
	repairKey string,
) (*consistencyDomain.BillingProfileRepair, error) {
	args := m.Called(ctx, repairKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*consistencyDomain.BillingProfileRepair), args.Error(1)
}

func (m *mockRepairRepository) GetByRepairKeyForUpdate(
	ctx context.Context,
	repairKey string,
) (*consistencyDomain.BillingProfileRepair, error) {
	args := m.Called(ctx, repairKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*consistencyDomain.BillingProfileRepair), args.Error(1)
}

func (m *mockRepairRepository) ListByStatus(
	ctx context.Context,
	status consistencyDomain.RepairStatus,
	limit int,
) ([]*consistencyDomain.BillingProfileRepair, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*consistencyDomain.BillingProfileRepair), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func (c *fixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(
	unresolved UnresolvedEventRepository,
	repairs BillingProfileRepairRepository,
	clock *fixedClock,
) *consistencyStore {
	store := NewConsistencyStore(
		passthroughTxManager{},
		unresolved,
		repairs,
		resilience.Direct(),
		discardLogger(),
	).(*consistencyStore)
	store.now = clock.Now
	return store
}

func strPtr(s string) *string { return &s }

func invoiceRepairInput() consistencyDomain.EnqueueBillingProfileRepairInput {
	return consistencyDomain.EnqueueBillingProfileRepairInput{
		RepairKey:            "sub_42:inv_7",
		Source:               consistencyDomain.RepairSourceInvoice,
		UserID:               "user_1",
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: strPtr("sub_42"),
		PlanTier:             strPtr("pro"),
		EventID:              strPtr("evt_1"),
		ReferenceID:          strPtr("sub_42:inv_7"),
	}
}

func TestConsistencyStore_RecordUnresolvedEvent(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}

	t.Run("Success", func(t *testing.T) {
		unresolved := &mockUnresolvedEventRepository{}
		store := newTestStore(unresolved, newMemoryRepairRepository(), clock)

		unresolved.On("Upsert", mock.Anything, mock.MatchedBy(func(e *consistencyDomain.UnresolvedPaymentEvent) bool {
			return e.EventID == "evt_1" &&
				e.Status == consistencyDomain.UnresolvedEventStatusOpen &&
				e.LastSeenAt.Equal(clock.now) &&
				e.Metadata["customer"] == "cus_1"
		})).Return(nil).Once()

		err := store.RecordUnresolvedEvent(ctx, consistencyDomain.RecordUnresolvedEventInput{
			EventID:   "evt_1",
			EventType: "invoice.paid",
			Reason:    "customer_not_linked",
			Metadata:  map[string]string{"customer": "cus_1"},
		})
		require.NoError(t, err)
		unresolved.AssertExpectations(t)
	})

	t.Run("Error_InvalidInput", func(t *testing.T) {
		unresolved := &mockUnresolvedEventRepository{}
		store := newTestStore(unresolved, newMemoryRepairRepository(), clock)

		err := store.RecordUnresolvedEvent(ctx, consistencyDomain.RecordUnresolvedEventInput{})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		unresolved.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	})
}

func TestConsistencyStore_GetUnresolvedSummary(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}

	t.Run("Success", func(t *testing.T) {
		unresolved := &mockUnresolvedEventRepository{}
		store := newTestStore(unresolved, newMemoryRepairRepository(), clock)

		age := 3 * time.Hour
		unresolved.On("GetSummary", mock.Anything, clock.now).
			Return(&consistencyDomain.UnresolvedSummary{OpenCount: 4, OldestOpenAge: &age}, nil).
			Once()

		summary := store.GetUnresolvedSummary(ctx)
		assert.Equal(t, int64(4), summary.OpenCount)
		require.NotNil(t, summary.OldestOpenAge)
		assert.Equal(t, age, *summary.OldestOpenAge)
	})

	t.Run("ReadFailure_YieldsEmptySummary", func(t *testing.T) {
		unresolved := &mockUnresolvedEventRepository{}
		store := newTestStore(unresolved, newMemoryRepairRepository(), clock)

		unresolved.On("GetSummary", mock.Anything, clock.now).
			Return(nil, errors.New("connection refused")).
			Once()

		summary := store.GetUnresolvedSummary(ctx)
		assert.Equal(t, int64(0), summary.OpenCount)
		assert.Nil(t, summary.OldestOpenAge)
	})
}

func TestConsistencyStore_EnqueueBillingProfileRepair(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesPendingTask", func(t *testing.T) {
		clock := &fixedClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
		repairs := newMemoryRepairRepository()
		store := newTestStore(&mockUnresolvedEventRepository{}, repairs, clock)

		require.NoError(t, store.EnqueueBillingProfileRepair(ctx, invoiceRepairInput()))

		repair := repairs.get(t, "sub_42:inv_7")
		assert.Equal(t, consistencyDomain.RepairStatusPending, repair.Status)
		assert.Equal(t, 0, repair.Attempts)
		assert.NotEqual(t, uuid.Nil, repair.ID)
		assert.Equal(t, clock.now, repair.CreatedAt)
		assert.Equal(t, "pro", *repair.PlanTier)
	})

	t.Run("RefreshesOpenTaskAndKeepsAttempts", func(t *testing.T) {
		clock := &fixedClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
		repairs := newMemoryRepairRepository()
		store := newTestStore(&mockUnresolvedEventRepository{}, repairs, clock)

		started := clock.now
		repairs.put(consistencyDomain.BillingProfileRepair{
			RepairKey:           "sub_42:inv_7",
			Status:              consistencyDomain.RepairStatusProcessing,
			Source:              consistencyDomain.RepairSourceInvoice,
			UserID:              "user_1",
			StripeCustomerID:    "cus_old",
			PlanTier:            strPtr("starter"),
			SubscriptionPriceID: strPtr("price_1"),
			Attempts:            2,
			LastError:           strPtr("db down"),
			ProcessingStartedAt: &started,
			CreatedAt:           started,
			UpdatedAt:           started,
		})
		clock.Advance(time.Minute)

		require.NoError(t, store.EnqueueBillingProfileRepair(ctx, invoiceRepairInput()))

		repair := repairs.get(t, "sub_42:inv_7")
		assert.Equal(t, consistencyDomain.RepairStatusPending, repair.Status)
		assert.Equal(t, 2, repair.Attempts)
		assert.Nil(t, repair.LastError)
		assert.Nil(t, repair.ProcessingStartedAt)
		assert.Equal(t, "cus_1", repair.StripeCustomerID)
		assert.Equal(t, "pro", *repair.PlanTier)
		assert.Equal(t, "price_1", *repair.SubscriptionPriceID)
		assert.Equal(t, clock.now, repair.UpdatedAt)
		assert.Equal(t, started, repair.CreatedAt)
	})

	t.Run("ResolvedTaskIsNotResurrected", func(t *testing.T) {
		clock := &fixedClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
		repairs := newMemoryRepairRepository()
		store := newTestStore(&mockUnresolvedEventRepository{}, repairs, clock)

		resolvedAt := clock.now
		original := consistencyDomain.BillingProfileRepair{
			RepairKey:        "sub_42:inv_7",
			Status:           consistencyDomain.RepairStatusResolved,
			Source:           consistencyDomain.RepairSourceInvoice,
			UserID:           "user_1",
			StripeCustomerID: "cus_old",
			Attempts:         1,
			ResolvedAt:       &resolvedAt,
			CreatedAt:        resolvedAt,
			UpdatedAt:        resolvedAt,
		}
		repairs.put(original)
		clock.Advance(time.Hour)

		require.NoError(t, store.EnqueueBillingProfileRepair(ctx, invoiceRepairInput()))
		require.NoError(t, store.EnqueueBillingProfileRepair(ctx, invoiceRepairInput()))

		assert.Equal(t, original, repairs.get(t, "sub_42:inv_7"))
	})

	t.Run("ConcurrentInsertIsRetriedAsRefresh", func(t *testing.T) {
		clock := &fixedClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
		repairs := &mockRepairRepository{}
		store := newTestStore(&mockUnresolvedEventRepository{}, repairs, clock)

		existing := &consistencyDomain.BillingProfileRepair{
			RepairKey: "sub_42:inv_7",
			Status:    consistencyDomain.RepairStatusPending,
		}
		repairs.On("GetByRepairKeyForUpdate", mock.Anything, "sub_42:inv_7").
			Return(nil, consistencyDomain.ErrRepairNotFound).Once()
		repairs.On("Create", mock.Anything, mock.Anything).
			Return(consistencyDomain.ErrRepairAlreadyExists).Once()
		repairs.On("GetByRepairKeyForUpdate", mock.Anything, "sub_42:inv_7").
			Return(existing, nil).Once()
		repairs.On("Update", mock.Anything, existing).Return(nil).Once()

		require.NoError(t, store.EnqueueBillingProfileRepair(ctx, invoiceRepairInput()))
		repairs.AssertExpectations(t)
		assert.Equal(t, "cus_1", existing.StripeCustomerID)
	})

	t.Run("Error_InvalidInput", func(t *testing.T) {
		clock := &fixedClock{now: time.Now()}
		repairs := &mockRepairRepository{}
		store := newTestStore(&mockUnresolvedEventRepository{}, repairs, clock)

		input := invoiceRepairInput()
		input.StripeCustomerID = "user_1"
		err := store.EnqueueBillingProfileRepair(ctx, input)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		repairs.AssertNotCalled(t, "GetByRepairKeyForUpdate", mock.Anything, mock.Anything)
	})
}

func TestConsistencyStore_ClaimNextBillingProfileRepair(t *testing.T) {
	ctx := context.Background()

	t.Run("ClaimsOldestPending", func(t *testing.T) {
		clock := &fixedClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
		repairs := newMemoryRepairRepository()
		store := newTestStore(&mockUnresolvedEventRepository{}, repairs, clock)

		repairs.put(consistencyDomain.BillingProfileRepair{
			RepairKey: "newer", Status: consistencyDomain.RepairStatusPending, UpdatedAt: clock.now.Add(-time.Minute),
		})
		repairs.put(consistencyDomain.BillingProfileRepair{
			RepairKey: "older", Status: consistencyDomain.RepairStatusPending, UpdatedAt: clock.now.Add(-time.Hour),
		})

		claimed, err := store.ClaimNextBillingProfileRepair(ctx, 3, 25)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.Equal(t, "older", claimed.RepairKey)
		assert.Equal(t, consistencyDomain.RepairStatusProcessing, claimed.Status)
		require.NotNil(t, claimed.ProcessingStartedAt)
		assert.Equal(t, clock.now, *claimed.ProcessingStartedAt)
		assert.Equal(t, consistencyDomain.RepairStatusProcessing, repairs.get(t, "older").Status)
		assert.Equal(t, consistencyDomain.RepairStatusPending, repairs.get(t, "newer").Status)
	})

	t.Run("EscalatesOverBudgetCandidateAndContinues", func(t *testing.T) {
		clock := &fixedClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
		repairs := newMemoryRepairRepository()
		store := newTestStore(&mockUnresolvedEventRepository{}, repairs, clock)

		repairs.put(consistencyDomain.BillingProfileRepair{
			RepairKey: "exhausted", Status: consistencyDomain.RepairStatusPending, Attempts: 3,
			UpdatedAt: clock.now.Add(-time.Hour),
		})
		repairs.put(consistencyDomain.BillingProfileRepair{
			RepairKey: "fresh", Status: consistencyDomain.RepairStatusPending, Attempts: 1,
			UpdatedAt: clock.now.Add(-time.Minute),
		})

		claimed, err := store.ClaimNextBillingProfileRepair(ctx, 3, 25)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.Equal(t, "fresh", claimed.RepairKey)

		exhausted := repairs.get(t, "exhausted")
		assert.Equal(t, consistencyDomain.RepairStatusEscalated, exhausted.Status)
		assert.Equal(t, 3, exhausted.Attempts)
		require.NotNil(t, exhausted.EscalatedAt)
		require.NotNil(t, exhausted.LastError)
	})

	t.Run("SkipsCandidateClaimedElsewhere", func(t *testing.T) {
		clock := &fixedClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
		repairs := &mockRepairRepository{}
		store := newTestStore(&mockUnresolvedEventRepository{}, repairs, clock)

		scanned := []*consistencyDomain.BillingProfileRepair{
			{RepairKey: "raced", Status: consistencyDomain.RepairStatusPending},
			{RepairKey: "deadlocked", Status: consistencyDomain.RepairStatusPending},
			{RepairKey: "free", Status: consistencyDomain.RepairStatusPending},
		}
		repairs.On("ListByStatus", mock.Anything, consistencyDomain.RepairStatusPending, 25).Return(scanned, nil).Once()
		repairs.On("GetByRepairKeyForUpdate", mock.Anything, "raced").
			Return(&consistencyDomain.BillingProfileRepair{
				RepairKey: "raced",
				Status:    consistencyDomain.RepairStatusProcessing,
			}, nil).Once()
		repairs.On("GetByRepairKeyForUpdate", mock.Anything, "deadlocked").
			Return(nil, apperrors.Wrap(&mysql.MySQLError{Number: 1213}, "failed to get billing profile repair")).
			Once()
		repairs.On("GetByRepairKeyForUpdate", mock.Anything, "free").
			Return(&consistencyDomain.BillingProfileRepair{
				RepairKey: "free",
				Status:    consistencyDomain.RepairStatusPending,
			}, nil).Once()
		repairs.On("Update", mock.Anything, mock.MatchedBy(func(r *consistencyDomain.BillingProfileRepair) bool {
			return r.RepairKey == "free" && r.Status == consistencyDomain.RepairStatusProcessing
		})).Return(nil).Once()

		claimed, err := store.ClaimNextBillingProfileRepair(ctx, 3, 25)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.Equal(t, "free", claimed.RepairKey)
		repairs.AssertExpectations(t)
	})

	t.Run("SkipsListedKeys", func(t *testing.T) {
		clock := &fixedClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
		repairs := newMemoryRepairRepository()
		store := newTestStore(&mockUnresolvedEventRepository{}, repairs, clock)

		repairs.put(consistencyDomain.BillingProfileRepair{
			RepairKey: "released", Status: consistencyDomain.RepairStatusPending, Attempts: 1,
			UpdatedAt: clock.now.Add(-time.Hour),
		})
		repairs.put(consistencyDomain.BillingProfileRepair{
			RepairKey: "next", Status: consistencyDomain.RepairStatusPending,
			UpdatedAt: clock.now.Add(-time.Minute),
		})

		claimed, err := store.ClaimNextBillingProfileRepair(ctx, 3, 25, "released")
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.Equal(t, "next", claimed.RepairKey)
		assert.Equal(t, consistencyDomain.RepairStatusPending, repairs.get(t, "released").Status)

		claimed, err = store.ClaimNextBillingProfileRepair(ctx, 3, 25, "released")
		require.NoError(t, err)
		assert.Nil(t, claimed)
	})

	t.Run("NothingPending", func(t *testing.T) {
		clock := &fixedClock{now: time.Now()}
		store := newTestStore(&mockUnresolvedEventRepository{}, newMemoryRepairRepository(), clock)

		claimed, err := store.ClaimNextBillingProfileRepair(ctx, 3, 25)
		require.NoError(t, err)
		assert.Nil(t, claimed)
	})

	t.Run("Error_ScanFailure", func(t *testing.T) {
		clock := &fixedClock{now: time.Now()}
		repairs := &mockRepairRepository{}
		store := newTestStore(&mockUnresolvedEventRepository{}, repairs, clock)

		repairs.On("ListByStatus", mock.Anything, consistencyDomain.RepairStatusPending, 10).
			Return(nil, errors.New("connection reset")).Once()

		claimed, err := store.ClaimNextBillingProfileRepair(ctx, 3, 10)
		assert.Error(t, err)
		assert.Nil(t, claimed)
	})
}

func TestConsistencyStore_Transitions(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}

	newProcessing := func(repairs *memoryRepairRepository, attempts int) {
		started := clock.now
		repairs.put(consistencyDomain.BillingProfileRepair{
			RepairKey:           "k",
			Status:              consistencyDomain.RepairStatusProcessing,
			Attempts:            attempts,
			ProcessingStartedAt: &started,
			UpdatedAt:           started,
		})
	}

	t.Run("Resolve", func(t *testing.T) {
		repairs := newMemoryRepairRepository()
		store := newTestStore(&mockUnresolvedEventRepository{}, repairs, clock)
		newProcessing(repairs, 1)

		require.NoError(t, store.MarkBillingProfileRepairResolved(ctx, "k"))
		repair := repairs.get(t, "k")
		assert.Equal(t, consistencyDomain.RepairStatusResolved, repair.Status)
		assert.NotNil(t, repair.ResolvedAt)
		assert.Nil(t, repair.ProcessingStartedAt)
		assert.Equal(t, 1, repair.Attempts)
	})

	t.Run("ReleaseForRetry", func(t *testing.T) {
		repairs := newMemoryRepairRepository()
		store := newTestStore(&mockUnresolvedEventRepository{}, repairs, clock)
		newProcessing(repairs, 1)

		require.NoError(t, store.ReleaseBillingProfileRepairForRetry(ctx, "k", errors.New("db down")))
		repair := repairs.get(t, "k")
		assert.Equal(t, consistencyDomain.RepairStatusPending, repair.Status)
		assert.Equal(t, 2, repair.Attempts)
		assert.Equal(t, "db down", *repair.LastError)
		assert.Nil(t, repair.ProcessingStartedAt)
	})

	t.Run("Escalate", func(t *testing.T) {
		repairs := newMemoryRepairRepository()
		store := newTestStore(&mockUnresolvedEventRepository{}, repairs, clock)
		newProcessing(repairs, 2)

		require.NoError(t, store.MarkBillingProfileRepairEscalated(ctx, "k", errors.New("db down")))
		repair := repairs.get(t, "k")
		assert.Equal(t, consistencyDomain.RepairStatusEscalated, repair.Status)
		assert.Equal(t, 3, repair.Attempts)
		assert.NotNil(t, repair.EscalatedAt)

		claimed, err := store.ClaimNextBillingProfileRepair(ctx, 10, 25)
		require.NoError(t, err)
		assert.Nil(t, claimed)
	})

	t.Run("ResolvedIsTerminal", func(t *testing.T) {
		repairs := newMemoryRepairRepository()
		store := newTestStore(&mockUnresolvedEventRepository{}, repairs, clock)
		repairs.put(consistencyDomain.BillingProfileRepair{RepairKey: "k", Status: consistencyDomain.RepairStatusResolved})

		require.NoError(t, store.ReleaseBillingProfileRepairForRetry(ctx, "k", errors.New("late")))
		repair := repairs.get(t, "k")
		assert.Equal(t, consistencyDomain.RepairStatusResolved, repair.Status)
		assert.Equal(t, 0, repair.Attempts)
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		store := newTestStore(&mockUnresolvedEventRepository{}, newMemoryRepairRepository(), clock)
		err := store.MarkBillingProfileRepairResolved(ctx, "missing")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestConsistencyStore_ResolveBillingProfileRepairManually(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}

	t.Run("Success", func(t *testing.T) {
		repairs := newMemoryRepairRepository()
		store := newTestStore(&mockUnresolvedEventRepository{}, repairs, clock)
		repairs.put(consistencyDomain.BillingProfileRepair{
			RepairKey: "k", Status: consistencyDomain.RepairStatusEscalated, Attempts: 5,
		})

		repair, err := store.ResolveBillingProfileRepairManually(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, consistencyDomain.RepairStatusResolved, repair.Status)
		assert.Equal(t, 5, repair.Attempts)
		assert.Equal(t, consistencyDomain.RepairStatusResolved, repairs.get(t, "k").Status)
	})

	t.Run("Error_NotEscalated", func(t *testing.T) {
		repairs := newMemoryRepairRepository()
		store := newTestStore(&mockUnresolvedEventRepository{}, repairs, clock)
		repairs.put(consistencyDomain.BillingProfileRepair{RepairKey: "k", Status: consistencyDomain.RepairStatusPending})

		_, err := store.ResolveBillingProfileRepairManually(ctx, "k")
		assert.ErrorIs(t, err, consistencyDomain.ErrRepairNotEscalated)
		assert.ErrorIs(t, err, apperrors.ErrConflict)
		assert.Equal(t, consistencyDomain.RepairStatusPending, repairs.get(t, "k").Status)
	})
}

func TestConsistencyStore_ListBillingProfileRepairs(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{now: time.Now()}
	repairs := newMemoryRepairRepository()
	store := newTestStore(&mockUnresolvedEventRepository{}, repairs, clock)
	repairs.put(consistencyDomain.BillingProfileRepair{RepairKey: "a", Status: consistencyDomain.RepairStatusEscalated})
	repairs.put(consistencyDomain.BillingProfileRepair{RepairKey: "b", Status: consistencyDomain.RepairStatusPending})

	escalated, err := store.ListBillingProfileRepairs(ctx, consistencyDomain.RepairStatusEscalated, 10)
	require.NoError(t, err)
	require.Len(t, escalated, 1)
	assert.Equal(t, "a", escalated[0].RepairKey)

	_, err = store.ListBillingProfileRepairs(ctx, "bogus", 10)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
