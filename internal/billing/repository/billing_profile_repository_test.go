package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billingDomain "github.com/allisson/billingsync/internal/billing/domain"
	"github.com/allisson/billingsync/internal/database"
	"github.com/allisson/billingsync/internal/testutil"
)

type billingProfileRepository interface {
	Get(ctx context.Context, userID string) (*billingDomain.BillingProfile, error)
	GetForUpdate(ctx context.Context, userID string) (*billingDomain.BillingProfile, error)
	GetByCustomerID(ctx context.Context, customerID string) (*billingDomain.BillingProfile, error)
	Create(ctx context.Context, profile *billingDomain.BillingProfile) error
	Update(ctx context.Context, profile *billingDomain.BillingProfile) error
}

func forEachDriver(t *testing.T, fn func(t *testing.T, db *sql.DB, repo billingProfileRepository)) {
	t.Run("postgresql", func(t *testing.T) {
		db := testutil.SetupPostgresDB(t)
		defer testutil.TeardownDB(t, db)
		defer testutil.CleanupPostgresDB(t, db)
		fn(t, db, NewPostgreSQLBillingProfileRepository(db))
	})
	t.Run("mysql", func(t *testing.T) {
		db := testutil.SetupMySQLDB(t)
		defer testutil.TeardownDB(t, db)
		defer testutil.CleanupMySQLDB(t, db)
		fn(t, db, NewMySQLBillingProfileRepository(db))
	})
}

func strPtr(s string) *string {
	return &s
}

func newProfile(userID, customerID string, at time.Time) *billingDomain.BillingProfile {
	return &billingDomain.BillingProfile{
		UserID:           userID,
		StripeCustomerID: customerID,
		StripeLivemode:   true,
		PlanTier:         strPtr("pro"),
		CreatedAt:        at,
		UpdatedAt:        at,
	}
}

func TestBillingProfileRepository_CreateAndGet(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *sql.DB, repo billingProfileRepository) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		require.NoError(t, repo.Create(ctx, newProfile("user_1", "cus_1", now)))

		got, err := repo.Get(ctx, "user_1")
		require.NoError(t, err)
		assert.Equal(t, "cus_1", got.StripeCustomerID)
		assert.True(t, got.StripeLivemode)
		require.NotNil(t, got.PlanTier)
		assert.Equal(t, "pro", *got.PlanTier)
		assert.Nil(t, got.StripeSubscriptionID)

		err = repo.Create(ctx, newProfile("user_1", "cus_2", now))
		assert.ErrorIs(t, err, billingDomain.ErrBillingProfileAlreadyExists)

		_, err = repo.Get(ctx, "user_missing")
		assert.ErrorIs(t, err, billingDomain.ErrBillingProfileNotFound)
	})
}

func TestBillingProfileRepository_UpdateInTx(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *sql.DB, repo billingProfileRepository) {
		ctx := context.Background()
		txManager := database.NewTxManager(db)
		now := time.Now().UTC().Truncate(time.Second)

		require.NoError(t, repo.Create(ctx, newProfile("user_1", "cus_1", now.Add(-time.Hour))))

		err := txManager.WithTx(ctx, func(ctx context.Context) error {
			profile, err := repo.GetForUpdate(ctx, "user_1")
			if err != nil {
				return err
			}
			billingDomain.ProfileUpdate{
				StripeCustomerID:     "cus_1",
				StripeLivemode:       true,
				StripeSubscriptionID: strPtr("sub_1"),
			}.Apply(profile, now)
			return repo.Update(ctx, profile)
		})
		require.NoError(t, err)

		got, err := repo.Get(ctx, "user_1")
		require.NoError(t, err)
		require.NotNil(t, got.StripeSubscriptionID)
		assert.Equal(t, "sub_1", *got.StripeSubscriptionID)
		require.NotNil(t, got.PlanTier)
		assert.Equal(t, "pro", *got.PlanTier)
		assert.WithinDuration(t, now, got.UpdatedAt, time.Second)
	})
}

func TestBillingProfileRepository_GetByCustomerID(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *sql.DB, repo billingProfileRepository) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		require.NoError(t, repo.Create(ctx, newProfile("user_old", "cus_shared", now.Add(-time.Hour))))
		require.NoError(t, repo.Create(ctx, newProfile("user_new", "cus_shared", now)))

		got, err := repo.GetByCustomerID(ctx, "cus_shared")
		require.NoError(t, err)
		assert.Equal(t, "user_new", got.UserID)

		_, err = repo.GetByCustomerID(ctx, "cus_unknown")
		assert.ErrorIs(t, err, billingDomain.ErrBillingProfileNotFound)
	})
}

func TestBillingProfileRepository_CreateConflictMapping(t *testing.T) {
	tests := []struct {
		name    string
		newRepo func(db *sql.DB) billingProfileRepository
		err     error
		wantErr error
	}{
		{
			name:    "postgresql unique violation",
			newRepo: func(db *sql.DB) billingProfileRepository { return NewPostgreSQLBillingProfileRepository(db) },
			err:     &pq.Error{Code: "23505"},
			wantErr: billingDomain.ErrBillingProfileAlreadyExists,
		},
		{
			name:    "mysql duplicate entry",
			newRepo: func(db *sql.DB) billingProfileRepository { return NewMySQLBillingProfileRepository(db) },
			err:     &mysql.MySQLError{Number: 1062},
			wantErr: billingDomain.ErrBillingProfileAlreadyExists,
		},
		{
			name:    "mysql deadlock on racing insert",
			newRepo: func(db *sql.DB) billingProfileRepository { return NewMySQLBillingProfileRepository(db) },
			err:     &mysql.MySQLError{Number: 1213},
			wantErr: billingDomain.ErrBillingProfileAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer func() { _ = db.Close() }()

			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO billing_profiles")).WillReturnError(tt.err)

			err = tt.newRepo(db).Create(context.Background(), newProfile("user_1", "cus_1", time.Now()))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("driver failure is wrapped", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO billing_profiles")).
			WillReturnError(errors.New("connection reset"))

		err = NewPostgreSQLBillingProfileRepository(db).
			Create(context.Background(), newProfile("user_1", "cus_1", time.Now()))
		require.Error(t, err)
		assert.NotErrorIs(t, err, billingDomain.ErrBillingProfileAlreadyExists)
		assert.Contains(t, err.Error(), "failed to create billing profile")
	})
}
