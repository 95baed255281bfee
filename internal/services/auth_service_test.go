package services

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "service-test-secret-0123456789abcdef"

var berlin = models.Location{Latitude: 52.52, Longitude: 13.405}

func newTestAuthService(store *memAccountStore, classifier risk.Classifier, locator LocationResolver) (*AuthService, *auth.TokenManager) {
	tm := auth.NewTokenManager(testSecret, 15*time.Minute)
	engine := risk.NewEngine(classifier, testLogger())
	svc := NewAuthService(store, engine, testHasher, tm, locator, nil, testLogger(), testAuditLogger())
	return svc, tm
}

var quietClassifier = risk.ClassifierFunc(func(risk.Features) (bool, error) { return false, nil })

func loginAttempt() AttemptContext {
	loc := berlin
	return AttemptContext{
		Location:  &loc,
		Device:    "Mozilla/5.0 (Macintosh) Safari",
		ClientIP:  net.ParseIP("203.0.113.10"),
		UserAgent: "Mozilla/5.0 (Macintosh) Safari",
	}
}

func TestAuthService_SignUp_Success(t *testing.T) {
	store := newMemAccountStore()
	svc, _ := newTestAuthService(store, quietClassifier, nil)
	tenant := NewTestTenant("email", "username")

	result, err := svc.SignUp(context.Background(), tenant, SignUpInput{
		Password:          testPassword,
		Details:           map[string]string{"email": "ana@example.com", "username": "ana"},
		UniqueIdentifiers: []string{"email"},
		Attempt:           loginAttempt(),
	})

	require.NoError(t, err)
	require.NotEmpty(t, result.MFAKey)

	account, history := store.get(t, result.Account.ID)
	assert.Equal(t, 0, account.Counters.Attempts)
	assert.Equal(t, 1, account.Counters.TotalLogins)
	assert.Empty(t, account.Counters.AllAttempts)
	require.NotNil(t, account.Counters.MFAKey)
	assert.Equal(t, result.MFAKey, *account.Counters.MFAKey)
	require.Len(t, history, 1)
	assert.Equal(t, berlin, history[0].Location)

	ok, err := testHasher.ComparePassword(account.PasswordHash, testPassword)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthService_SignUp_Validation(t *testing.T) {
	tests := []struct {
		name    string
		input   SignUpInput
		wantErr error
	}{
		{
			name:    "unknown field",
			input:   SignUpInput{Password: testPassword, Details: map[string]string{"phone": "1"}, Attempt: loginAttempt()},
			wantErr: models.ErrBadRequest,
		},
		{
			name:    "reserved field",
			input:   SignUpInput{Password: testPassword, Details: map[string]string{"mfa_key": "x"}, Attempt: loginAttempt()},
			wantErr: models.ErrReservedField,
		},
		{
			name: "unique identifier not in details",
			input: SignUpInput{
				Password:          testPassword,
				Details:           map[string]string{"username": "ana"},
				UniqueIdentifiers: []string{"email"},
				Attempt:           loginAttempt(),
			},
			wantErr: models.ErrBadRequest,
		},
		{
			name:    "short password",
			input:   SignUpInput{Password: "short", Details: map[string]string{"email": "a@b.c"}, Attempt: loginAttempt()},
			wantErr: models.ErrBadRequest,
		},
		{
			name:    "no location and no geoip",
			input:   SignUpInput{Password: testPassword, Details: map[string]string{"email": "a@b.c"}},
			wantErr: models.ErrLocationUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemAccountStore()
			svc, _ := newTestAuthService(store, quietClassifier, nil)

			result, err := svc.SignUp(context.Background(), NewTestTenant("email", "username"), tt.input)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, result)
			accounts, _ := store.Find(context.Background(), "tenant-1", models.AccountMatch{})
			assert.Empty(t, accounts)
		})
	}
}

func TestAuthService_SignUp_DuplicateUniqueIdentifier(t *testing.T) {
	store := newMemAccountStore()
	svc, _ := newTestAuthService(store, quietClassifier, nil)
	tenant := NewTestTenant("email")
	in := SignUpInput{
		Password:          testPassword,
		Details:           map[string]string{"email": "ana@example.com"},
		UniqueIdentifiers: []string{"email"},
		Attempt:           loginAttempt(),
	}

	_, err := svc.SignUp(context.Background(), tenant, in)
	require.NoError(t, err)

	_, err = svc.SignUp(context.Background(), tenant, in)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAuthService_SignUp_ResolvesLocationFromIP(t *testing.T) {
	store := newMemAccountStore()
	var lookedUp net.IP
	locator := &MockLocationResolver{
		LocateFunc: func(ip net.IP) (models.Location, error) {
			lookedUp = ip
			return models.Location{Latitude: 48.85, Longitude: 2.35}, nil
		},
	}
	svc, _ := newTestAuthService(store, quietClassifier, locator)

	attempt := loginAttempt()
	attempt.Location = nil
	result, err := svc.SignUp(context.Background(), NewTestTenant("email"), SignUpInput{
		Password: testPassword,
		Details:  map[string]string{"email": "ana@example.com"},
		Attempt:  attempt,
	})

	require.NoError(t, err)
	assert.Equal(t, "203.0.113.10", lookedUp.String())
	_, history := store.get(t, result.Account.ID)
	assert.Equal(t, models.Location{Latitude: 48.85, Longitude: 2.35}, history[0].Location)
}

func TestAuthService_Login_WrongPassword_RecordsFailure(t *testing.T) {
	store := newMemAccountStore()
	svc, _ := newTestAuthService(store, quietClassifier, nil)
	tenant := NewTestTenant("email")
	acct := store.seed(t, tenant.ID, map[string]string{"email": "ana@example.com"}, testPassword,
		models.AttemptCounters{TotalLogins: 1}, dailyObservations(1))

	result, err := svc.Login(context.Background(), tenant, LoginInput{
		Details:  map[string]string{"email": "ana@example.com"},
		Password: "not-the-password",
		Attempt:  loginAttempt(),
	})

	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Nil(t, result)

	account, history := store.get(t, acct.ID)
	assert.Equal(t, 1, account.Counters.Attempts)
	assert.Equal(t, 1, account.Counters.TotalLogins)
	assert.Len(t, history, 2)
}

func TestAuthService_Login_UnknownAccount(t *testing.T) {
	store := newMemAccountStore()
	svc, _ := newTestAuthService(store, quietClassifier, nil)

	result, err := svc.Login(context.Background(), NewTestTenant("email"), LoginInput{
		Details:  map[string]string{"email": "nobody@example.com"},
		Password: testPassword,
		Attempt:  loginAttempt(),
	})

	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Nil(t, result)
}

func TestAuthService_Login_RequiresDetails(t *testing.T) {
	svc, _ := newTestAuthService(newMemAccountStore(), quietClassifier, nil)

	_, err := svc.Login(context.Background(), NewTestTenant("email"), LoginInput{Password: testPassword, Attempt: loginAttempt()})

	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestAuthService_Login_ShortHistoryAllows(t *testing.T) {
	store := newMemAccountStore()
	svc, tm := newTestAuthService(store, quietClassifier, nil)
	tenant := NewTestTenant("email")
	acct := store.seed(t, tenant.ID, map[string]string{"email": "ana@example.com"}, testPassword,
		models.AttemptCounters{TotalLogins: 1, AllAttempts: []int{}}, dailyObservations(1))

	result, err := svc.Login(context.Background(), tenant, LoginInput{
		Details:  map[string]string{"email": "ana@example.com"},
		Password: testPassword,
		Attempt:  loginAttempt(),
	})

	require.NoError(t, err)
	assert.Equal(t, risk.OutcomeAllow, result.Outcome)
	assert.False(t, result.Evaluated)
	require.NotEmpty(t, result.SessionToken)

	claims, err := tm.ValidateToken(result.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, claims.AccountID)
	assert.Equal(t, tenant.ID, claims.TenantID)
	assert.Equal(t, models.SessionMethodPassword, claims.Method)

	account, history := store.get(t, acct.ID)
	assert.Equal(t, 0, account.Counters.Attempts)
	assert.Equal(t, 2, account.Counters.TotalLogins)
	assert.Equal(t, []int{0}, account.Counters.AllAttempts)
	assert.Len(t, history, 2)
}

func TestAuthService_Login_FamiliarPatternAllows(t *testing.T) {
	store := newMemAccountStore()
	svc, _ := newTestAuthService(store, quietClassifier, nil)
	history := dailyObservations(5)
	svc.now = func() time.Time { return history[4].ObservedAt.AddDate(0, 0, 1) }
	tenant := NewTestTenant("email")
	acct := store.seed(t, tenant.ID, map[string]string{"email": "ana@example.com"}, testPassword,
		models.AttemptCounters{TotalLogins: 5, AllAttempts: []int{0, 0, 0, 0}}, history)

	result, err := svc.Login(context.Background(), tenant, LoginInput{
		Details:  map[string]string{"email": "ana@example.com"},
		Password: testPassword,
		Attempt:  loginAttempt(),
	})

	require.NoError(t, err)
	assert.Equal(t, risk.OutcomeAllow, result.Outcome)
	assert.True(t, result.Evaluated)
	assert.Equal(t, 0, result.TrustCount)

	account, stored := store.get(t, acct.ID)
	assert.Equal(t, 6, account.Counters.TotalLogins)
	assert.Len(t, stored, 6)
}

func TestAuthService_Login_ResetAppendsStreak(t *testing.T) {
	store := newMemAccountStore()
	svc, _ := newTestAuthService(store, quietClassifier, nil)
	tenant := NewTestTenant("email")
	acct := store.seed(t, tenant.ID, map[string]string{"email": "ana@example.com"}, testPassword,
		models.AttemptCounters{TotalLogins: 1}, dailyObservations(1))
	ctx := context.Background()
	details := map[string]string{"email": "ana@example.com"}

	for range 2 {
		_, err := svc.Login(ctx, tenant, LoginInput{Details: details, Password: "wrong-password", Attempt: loginAttempt()})
		require.ErrorIs(t, err, models.ErrInvalidCredentials)
	}

	result, err := svc.Login(ctx, tenant, LoginInput{Details: details, Password: testPassword, Attempt: loginAttempt()})
	require.NoError(t, err)
	assert.Equal(t, risk.OutcomeAllow, result.Outcome)

	account, history := store.get(t, acct.ID)
	assert.Equal(t, 0, account.Counters.Attempts)
	assert.Equal(t, []int{2}, account.Counters.AllAttempts)
	assert.Equal(t, 2, account.Counters.TotalLogins)
	assert.Len(t, history, 4)
}

func TestAuthService_Login_LockedOutRequiresMFA(t *testing.T) {
	store := newMemAccountStore()
	svc, _ := newTestAuthService(store, quietClassifier, nil)
	tenant := NewTestTenant("email")
	acct := store.seed(t, tenant.ID, map[string]string{"email": "ana@example.com"}, testPassword,
		models.AttemptCounters{TotalLogins: 1}, dailyObservations(1))
	ctx := context.Background()
	details := map[string]string{"email": "ana@example.com"}

	for range models.LockoutThreshold {
		_, err := svc.Login(ctx, tenant, LoginInput{Details: details, Password: "wrong-password", Attempt: loginAttempt()})
		require.ErrorIs(t, err, models.ErrInvalidCredentials)
	}

	result, err := svc.Login(ctx, tenant, LoginInput{Details: details, Password: testPassword, Attempt: loginAttempt()})

	require.NoError(t, err)
	assert.Equal(t, risk.OutcomeMFARequired, result.Outcome)
	assert.Empty(t, result.SessionToken)

	account, history := store.get(t, acct.ID)
	assert.Equal(t, models.LockoutThreshold, account.Counters.Attempts)
	assert.Equal(t, 1, account.Counters.TotalLogins)
	assert.Empty(t, account.Counters.AllAttempts)
	assert.Len(t, history, 1+models.LockoutThreshold+1)
}

func TestAuthService_Login_ClassifierUnavailableFailsClosed(t *testing.T) {
	store := newMemAccountStore()
	svc, _ := newTestAuthService(store, risk.Unavailable(nil), nil)
	history := dailyObservations(3)
	svc.now = func() time.Time { return history[2].ObservedAt.AddDate(0, 0, 1) }
	tenant := NewTestTenant("email")
	acct := store.seed(t, tenant.ID, map[string]string{"email": "ana@example.com"}, testPassword,
		models.AttemptCounters{TotalLogins: 3, AllAttempts: []int{0, 0}}, history)

	result, err := svc.Login(context.Background(), tenant, LoginInput{
		Details:  map[string]string{"email": "ana@example.com"},
		Password: testPassword,
		Attempt:  loginAttempt(),
	})

	require.NoError(t, err)
	assert.Equal(t, risk.OutcomeMFARequired, result.Outcome)
	assert.True(t, result.FailedClosed)
	assert.Empty(t, result.SessionToken)

	account, stored := store.get(t, acct.ID)
	assert.Equal(t, 3, account.Counters.TotalLogins)
	assert.Len(t, stored, 4)
}

func TestAuthService_Login_SharedDetailsTriesEveryCandidate(t *testing.T) {
	store := newMemAccountStore()
	svc, _ := newTestAuthService(store, quietClassifier, nil)
	tenant := NewTestTenant("team")
	details := map[string]string{"team": "blue"}
	first := store.seed(t, tenant.ID, details, "first-account-pass", models.AttemptCounters{TotalLogins: 1}, dailyObservations(1))
	second := store.seed(t, tenant.ID, details, testPassword, models.AttemptCounters{TotalLogins: 1}, dailyObservations(1))

	result, err := svc.Login(context.Background(), tenant, LoginInput{Details: details, Password: testPassword, Attempt: loginAttempt()})

	require.NoError(t, err)
	assert.Equal(t, second.ID, result.AccountID)

	firstAcct, _ := store.get(t, first.ID)
	assert.Equal(t, 1, firstAcct.Counters.Attempts)
	secondAcct, _ := store.get(t, second.ID)
	assert.Equal(t, 0, secondAcct.Counters.Attempts)
	assert.Equal(t, 2, secondAcct.Counters.TotalLogins)
}

func TestAuthService_Login_ConcurrentAttemptsAppendInOrder(t *testing.T) {
	store := newMemAccountStore()
	gated := newGatedAccountStore(store)
	tenant := NewTestTenant("email")
	acct := store.seed(t, tenant.ID, map[string]string{"email": "ana@example.com"}, testPassword,
		models.AttemptCounters{TotalLogins: 1, AllAttempts: []int{}}, dailyObservations(1))

	tm := auth.NewTokenManager(testSecret, 15*time.Minute)
	svc := NewAuthService(gated, risk.NewEngine(quietClassifier, testLogger()), testHasher, tm, nil, nil, testLogger(), testAuditLogger())

	var clockMu sync.Mutex
	tick := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}

	in := LoginInput{
		Details:  map[string]string{"email": "ana@example.com"},
		Password: testPassword,
		Attempt:  loginAttempt(),
	}

	// the first login reads the clock, then waits at the lock while a second
	// login completes
	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.Login(context.Background(), tenant, in)
		firstDone <- err
	}()
	<-gated.waiting

	_, err := svc.Login(context.Background(), tenant, in)
	require.NoError(t, err)

	close(gated.release)
	require.NoError(t, <-firstDone)

	_, history := store.get(t, acct.ID)
	require.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].ObservedAt.Before(history[i-1].ObservedAt),
			"history out of order at %d: %s before %s", i, history[i].ObservedAt, history[i-1].ObservedAt)
	}
}

func TestAuthService_Login_StoreUnavailablePropagates(t *testing.T) {
	store := newMemAccountStore()
	store.FindErr = models.ErrStoreUnavailable
	svc, _ := newTestAuthService(store, quietClassifier, nil)

	_, err := svc.Login(context.Background(), NewTestTenant("email"), LoginInput{
		Details:  map[string]string{"email": "ana@example.com"},
		Password: testPassword,
		Attempt:  loginAttempt(),
	})

	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestAuthService_Login_FailedWriteCommitsNothing(t *testing.T) {
	store := newMemAccountStore()
	svc, _ := newTestAuthService(store, quietClassifier, nil)
	tenant := NewTestTenant("email")
	acct := store.seed(t, tenant.ID, map[string]string{"email": "ana@example.com"}, testPassword,
		models.AttemptCounters{TotalLogins: 1}, dailyObservations(1))
	store.WriteErr = models.ErrStoreUnavailable

	_, err := svc.Login(context.Background(), tenant, LoginInput{
		Details:  map[string]string{"email": "ana@example.com"},
		Password: testPassword,
		Attempt:  loginAttempt(),
	})

	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	account, history := store.get(t, acct.ID)
	assert.Equal(t, 1, account.Counters.TotalLogins)
	assert.Len(t, history, 1)
}

func TestAuthService_VerifyMFA_Accepted(t *testing.T) {
	store := newMemAccountStore()
	svc, tm := newTestAuthService(store, quietClassifier, nil)
	tenant := NewTestTenant("email")
	key := "old-key"
	acct := store.seed(t, tenant.ID, map[string]string{"email": "ana@example.com"}, testPassword,
		models.AttemptCounters{Attempts: 6, TotalLogins: 3, AllAttempts: []int{1}, MFAKey: &key}, dailyObservations(1))

	result, err := svc.VerifyMFA(context.Background(), tenant, MFAInput{Identifier: "email", Value: "ana@example.com", MFAKey: "old-key"})

	require.NoError(t, err)
	assert.Equal(t, acct.ID, result.AccountID)
	assert.NotEmpty(t, result.NewMFAKey)
	assert.NotEqual(t, "old-key", result.NewMFAKey)

	claims, err := tm.ValidateToken(result.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, models.SessionMethodMFA, claims.Method)

	account, history := store.get(t, acct.ID)
	assert.Equal(t, 0, account.Counters.Attempts)
	assert.Equal(t, 4, account.Counters.TotalLogins)
	assert.Equal(t, []int{1, 6}, account.Counters.AllAttempts)
	assert.Equal(t, result.NewMFAKey, *account.Counters.MFAKey)
	assert.Len(t, history, 1)
}

func TestAuthService_VerifyMFA_ByID(t *testing.T) {
	store := newMemAccountStore()
	svc, _ := newTestAuthService(store, quietClassifier, nil)
	tenant := NewTestTenant("email")
	key := "old-key"
	acct := store.seed(t, tenant.ID, map[string]string{"email": "ana@example.com"}, testPassword,
		models.AttemptCounters{MFAKey: &key}, dailyObservations(1))

	result, err := svc.VerifyMFA(context.Background(), tenant, MFAInput{Identifier: "id", Value: acct.ID, MFAKey: key})

	require.NoError(t, err)
	assert.Equal(t, acct.ID, result.AccountID)
}

func TestAuthService_VerifyMFA_WrongKeyChangesNothing(t *testing.T) {
	store := newMemAccountStore()
	svc, _ := newTestAuthService(store, quietClassifier, nil)
	tenant := NewTestTenant("email")
	key := "old-key"
	acct := store.seed(t, tenant.ID, map[string]string{"email": "ana@example.com"}, testPassword,
		models.AttemptCounters{Attempts: 2, TotalLogins: 3, MFAKey: &key}, dailyObservations(1))

	result, err := svc.VerifyMFA(context.Background(), tenant, MFAInput{Identifier: "email", Value: "ana@example.com", MFAKey: "guess"})

	assert.ErrorIs(t, err, models.ErrMFAKeyRejected)
	assert.Nil(t, result)

	account, _ := store.get(t, acct.ID)
	assert.Equal(t, 2, account.Counters.Attempts)
	assert.Equal(t, 3, account.Counters.TotalLogins)
	assert.Equal(t, "old-key", *account.Counters.MFAKey)
}

func TestAuthService_VerifyMFA_Ambiguous(t *testing.T) {
	store := newMemAccountStore()
	svc, _ := newTestAuthService(store, quietClassifier, nil)
	tenant := NewTestTenant("team")
	key := "shared"
	store.seed(t, tenant.ID, map[string]string{"team": "blue"}, testPassword, models.AttemptCounters{MFAKey: &key}, dailyObservations(1))
	store.seed(t, tenant.ID, map[string]string{"team": "blue"}, testPassword, models.AttemptCounters{MFAKey: &key}, dailyObservations(1))

	_, err := svc.VerifyMFA(context.Background(), tenant, MFAInput{Identifier: "team", Value: "blue", MFAKey: key})
	assert.ErrorIs(t, err, models.ErrAmbiguousAccount)

	_, err = svc.VerifyMFA(context.Background(), tenant, MFAInput{Identifier: "team", Value: "red", MFAKey: key})
	assert.ErrorIs(t, err, models.ErrAmbiguousAccount)
}

func TestAuthService_VerifyMFA_UnknownIdentifier(t *testing.T) {
	svc, _ := newTestAuthService(newMemAccountStore(), quietClassifier, nil)

	_, err := svc.VerifyMFA(context.Background(), NewTestTenant("email"), MFAInput{Identifier: "phone", Value: "1", MFAKey: "k"})
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = svc.VerifyMFA(context.Background(), NewTestTenant("email"), MFAInput{Identifier: "attempts", Value: "1", MFAKey: "k"})
	assert.ErrorIs(t, err, models.ErrReservedField)
}
