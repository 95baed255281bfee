package repositories_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/riskgate/internal/database/dbtest"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	tenants  *repositories.TenantRepository
	accounts *repositories.AccountRepository
	tenant   *models.Tenant
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Setup(t)

	f := &fixture{
		tenants:  repositories.NewTenantRepository(db),
		accounts: repositories.NewAccountRepository(db),
	}

	tenant, err := f.tenants.Create(context.Background(), &models.Tenant{KeyHash: "hash-1", Fields: []string{"email", "team"}})
	require.NoError(t, err)
	f.tenant = tenant
	return f
}

func (f *fixture) signUp(t *testing.T, email string, unique ...string) *models.Account {
	t.Helper()
	key := "mfa-" + email
	a, err := f.accounts.Create(context.Background(), &models.Account{
		TenantID:     f.tenant.ID,
		PasswordHash: "hash",
		Details:      map[string]string{"email": email, "team": "ops"},
		Counters:     models.AttemptCounters{TotalLogins: 1, MFAKey: &key},
	}, unique, models.Observation{
		Location:   models.Location{Latitude: 51.5, Longitude: -0.12},
		Device:     "laptop",
		ObservedAt: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return a
}

func TestAccountRepository_CreateAndFind(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	alice := f.signUp(t, "alice@example.com", "email")
	f.signUp(t, "bob@example.com", "email")

	found, err := f.accounts.Find(ctx, f.tenant.ID, models.MatchIdentifier("email", "alice@example.com"))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, alice.ID, found[0].ID)
	assert.Equal(t, 1, found[0].Counters.TotalLogins)
	require.NotNil(t, found[0].Counters.MFAKey)

	byID, err := f.accounts.Find(ctx, f.tenant.ID, models.MatchIdentifier("id", alice.ID))
	require.NoError(t, err)
	assert.Len(t, byID, 1)

	team, err := f.accounts.Find(ctx, f.tenant.ID, models.AccountMatch{Details: map[string]string{"team": "ops"}})
	require.NoError(t, err)
	assert.Len(t, team, 2)

	all, err := f.accounts.Find(ctx, f.tenant.ID, models.AccountMatch{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAccountRepository_UniqueIdentifierConflict(t *testing.T) {
	f := setup(t)

	f.signUp(t, "alice@example.com", "email")

	_, err := f.accounts.Create(context.Background(), &models.Account{
		TenantID:     f.tenant.ID,
		PasswordHash: "hash",
		Details:      map[string]string{"email": "alice@example.com"},
	}, []string{"email"}, models.Observation{Device: "phone", ObservedAt: time.Now()})

	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAccountRepository_TransitionCommitsAtomically(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.signUp(t, "alice@example.com")

	obs := models.Observation{Location: models.Location{Latitude: 48.85, Longitude: 2.35}, Device: "phone", ObservedAt: time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)}

	// a failing transition leaves nothing behind
	boom := errors.New("boom")
	err := f.accounts.WithAccountLock(ctx, f.tenant.ID, alice.ID, func(tx repositories.AccountTx) error {
		require.NoError(t, tx.AppendObservation(ctx, obs))
		c, _ := tx.ReadCounters(ctx)
		c.RecordFailure()
		require.NoError(t, tx.WriteCounters(ctx, c))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = f.accounts.WithAccountLock(ctx, f.tenant.ID, alice.ID, func(tx repositories.AccountTx) error {
		h, err := tx.FetchHistory(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, h.Len())
		assert.Equal(t, 0, tx.Account().Counters.Attempts)

		require.NoError(t, tx.AppendObservation(ctx, obs))
		c, _ := tx.ReadCounters(ctx)
		c.Reset()
		return tx.WriteCounters(ctx, c)
	})
	require.NoError(t, err)

	err = f.accounts.WithAccountLock(ctx, f.tenant.ID, alice.ID, func(tx repositories.AccountTx) error {
		h, err := tx.FetchHistory(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, h.Len())
		assert.Equal(t, "phone", h.Devices[1])
		assert.Equal(t, []int{0}, h.AttemptCounts)
		assert.Equal(t, 2, tx.Account().Counters.TotalLogins)
		return nil
	})
	require.NoError(t, err)
}

func TestAccountRepository_ConcurrentTransitionsSerialize(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.signUp(t, "alice@example.com")

	const workers = 8
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.accounts.WithAccountLock(ctx, f.tenant.ID, alice.ID, func(tx repositories.AccountTx) error {
				c, _ := tx.ReadCounters(ctx)
				c.RecordFailure()
				if err := tx.AppendObservation(ctx, models.Observation{Device: "d", ObservedAt: time.Now().Add(time.Duration(i) * time.Second)}); err != nil {
					return err
				}
				return tx.WriteCounters(ctx, c)
			})
		}()
	}
	wg.Wait()

	found, err := f.accounts.Find(ctx, f.tenant.ID, models.MatchIdentifier("id", alice.ID))
	require.NoError(t, err)
	assert.Equal(t, workers, found[0].Counters.Attempts)
}

func TestAccountRepository_UpdateAndDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.signUp(t, "alice@example.com", "email")
	bob := f.signUp(t, "bob@example.com", "email")

	attempts := 3
	updated, err := f.accounts.Update(ctx, f.tenant.ID, alice.ID, models.AccountPatch{
		Details:  map[string]string{"team": "dev"},
		Attempts: &attempts,
	})
	require.NoError(t, err)
	assert.Equal(t, "dev", updated.Details["team"])
	assert.Equal(t, "alice@example.com", updated.Details["email"])
	assert.Equal(t, 3, updated.Counters.Attempts)

	_, err = f.accounts.Update(ctx, f.tenant.ID, bob.ID, models.AccountPatch{Details: map[string]string{"email": "alice@example.com"}})
	assert.ErrorIs(t, err, models.ErrConflict)

	n, err := f.accounts.Delete(ctx, f.tenant.ID, models.MatchIdentifier("email", "alice@example.com"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.accounts.Delete(ctx, f.tenant.ID, models.MatchIdentifier("email", "alice@example.com"))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAccountRepository_DeleteObservationsBefore(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.signUp(t, "alice@example.com")

	n, err := f.accounts.DeleteObservationsBefore(ctx, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTenantRepository_Fields(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.signUp(t, "alice@example.com", "email")

	got, err := f.tenants.GetByKeyHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "team"}, got.Fields)

	tenant, err := f.tenants.AddField(ctx, f.tenant.ID, "phone")
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "team", "phone"}, tenant.Fields)

	_, err = f.tenants.AddField(ctx, f.tenant.ID, "phone")
	assert.ErrorIs(t, err, models.ErrConflict)

	tenant, err = f.tenants.RemoveField(ctx, f.tenant.ID, "email")
	require.NoError(t, err)
	assert.Equal(t, []string{"team", "phone"}, tenant.Fields)

	found, err := f.accounts.Find(ctx, f.tenant.ID, models.MatchIdentifier("id", alice.ID))
	require.NoError(t, err)
	assert.NotContains(t, found[0].Details, "email")

	_, err = f.tenants.RemoveField(ctx, f.tenant.ID, "email")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.tenants.GetByKeyHash(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
