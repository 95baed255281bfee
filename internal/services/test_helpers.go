package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/repositories"
	pkgauth "github.com/BradenHooton/riskgate/pkg/auth"
	pkglogger "github.com/BradenHooton/riskgate/pkg/logger"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct-horse-battery"

// testHasher uses bcrypt's minimum cost to keep tests fast
var testHasher = pkgauth.NewPasswordHasher(4)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(testLogger())
}

// NewTestTenant creates a tenant declaring the given fields
func NewTestTenant(fields ...string) *models.Tenant {
	return &models.Tenant{
		ID:        "tenant-1",
		KeyHash:   "hash",
		Fields:    fields,
		CreatedAt: time.Now(),
	}
}

// MockTenantRepository implements TenantRepository for testing
type MockTenantRepository struct {
	CreateFunc       func(ctx context.Context, tenant *models.Tenant) (*models.Tenant, error)
	GetByKeyHashFunc func(ctx context.Context, keyHash string) (*models.Tenant, error)
	AddFieldFunc     func(ctx context.Context, tenantID, name string) (*models.Tenant, error)
	RemoveFieldFunc  func(ctx context.Context, tenantID, name string) (*models.Tenant, error)
}

func (m *MockTenantRepository) Create(ctx context.Context, tenant *models.Tenant) (*models.Tenant, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tenant)
	}
	out := *tenant
	out.ID = "tenant-1"
	return &out, nil
}

func (m *MockTenantRepository) GetByKeyHash(ctx context.Context, keyHash string) (*models.Tenant, error) {
	if m.GetByKeyHashFunc != nil {
		return m.GetByKeyHashFunc(ctx, keyHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockTenantRepository) AddField(ctx context.Context, tenantID, name string) (*models.Tenant, error) {
	if m.AddFieldFunc != nil {
		return m.AddFieldFunc(ctx, tenantID, name)
	}
	return nil, models.ErrInternalServer
}

func (m *MockTenantRepository) RemoveField(ctx context.Context, tenantID, name string) (*models.Tenant, error) {
	if m.RemoveFieldFunc != nil {
		return m.RemoveFieldFunc(ctx, tenantID, name)
	}
	return nil, models.ErrInternalServer
}

// MockAccountRepository implements AccountRepository for testing
type MockAccountRepository struct {
	FindFunc   func(ctx context.Context, tenantID string, match models.AccountMatch) ([]*models.Account, error)
	UpdateFunc func(ctx context.Context, tenantID, accountID string, patch models.AccountPatch) (*models.Account, error)
	DeleteFunc func(ctx context.Context, tenantID string, match models.AccountMatch) (int64, error)
}

func (m *MockAccountRepository) Find(ctx context.Context, tenantID string, match models.AccountMatch) ([]*models.Account, error) {
	if m.FindFunc != nil {
		return m.FindFunc(ctx, tenantID, match)
	}
	return []*models.Account{}, nil
}

func (m *MockAccountRepository) Update(ctx context.Context, tenantID, accountID string, patch models.AccountPatch) (*models.Account, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tenantID, accountID, patch)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountRepository) Delete(ctx context.Context, tenantID string, match models.AccountMatch) (int64, error) {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, tenantID, match)
	}
	return 0, models.ErrNotFound
}

// MockLocationResolver implements LocationResolver for testing
type MockLocationResolver struct {
	LocateFunc func(ip net.IP) (models.Location, error)
}

func (m *MockLocationResolver) Locate(ip net.IP) (models.Location, error) {
	if m.LocateFunc != nil {
		return m.LocateFunc(ip)
	}
	return models.Location{}, models.ErrLocationUnavailable
}

// memAccountStore is an in-memory AccountStore. WithAccountLock serialises
// transitions and commits a transition's writes only when it succeeds.
type memAccountStore struct {
	mu       sync.Mutex
	accounts []*memAccount
	nextID   int

	FindErr  error
	LockErr  error
	WriteErr error // returned by every WriteCounters
}

type memAccount struct {
	account models.Account
	history []models.Observation
}

func newMemAccountStore() *memAccountStore {
	return &memAccountStore{}
}

func cloneAccount(a models.Account) *models.Account {
	a.Details = maps.Clone(a.Details)
	a.Counters = a.Counters.Clone()
	return &a
}

func (m *memAccountStore) Create(ctx context.Context, account *models.Account, uniqueIdentifiers []string, first models.Observation) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, name := range uniqueIdentifiers {
		for _, existing := range m.accounts {
			if existing.account.TenantID == account.TenantID && existing.account.Details[name] == account.Details[name] {
				return nil, models.ErrConflict
			}
		}
	}

	m.nextID++
	stored := cloneAccount(*account)
	stored.ID = fmt.Sprintf("acct-%d", m.nextID)
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.accounts = append(m.accounts, &memAccount{account: *stored, history: []models.Observation{first}})

	return cloneAccount(*stored), nil
}

func (m *memAccountStore) Find(ctx context.Context, tenantID string, match models.AccountMatch) ([]*models.Account, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []*models.Account{}
	for _, entry := range m.accounts {
		a := entry.account
		if a.TenantID != tenantID || (match.ID != "" && a.ID != match.ID) {
			continue
		}
		matched := true
		for k, v := range match.Details {
			if got, ok := a.Details[k]; !ok || got != v {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, cloneAccount(a))
		}
	}
	return out, nil
}

func (m *memAccountStore) WithAccountLock(ctx context.Context, tenantID, accountID string, fn func(repositories.AccountTx) error) error {
	if m.LockErr != nil {
		return m.LockErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.accounts {
		if entry.account.TenantID != tenantID || entry.account.ID != accountID {
			continue
		}
		tx := &memTx{
			store:   m,
			account: cloneAccount(entry.account),
			history: slices.Clone(entry.history),
		}
		if err := fn(tx); err != nil {
			return err
		}
		entry.account = *tx.account
		entry.history = tx.history
		return nil
	}
	return models.ErrNotFound
}

// gatedAccountStore holds the first WithAccountLock call at the gate until
// release is closed, letting later calls run ahead of it
type gatedAccountStore struct {
	*memAccountStore
	once    sync.Once
	waiting chan struct{}
	release chan struct{}
}

func newGatedAccountStore(store *memAccountStore) *gatedAccountStore {
	return &gatedAccountStore{
		memAccountStore: store,
		waiting:         make(chan struct{}),
		release:         make(chan struct{}),
	}
}

func (g *gatedAccountStore) WithAccountLock(ctx context.Context, tenantID, accountID string, fn func(repositories.AccountTx) error) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.waiting)
		<-g.release
	}
	return g.memAccountStore.WithAccountLock(ctx, tenantID, accountID, fn)
}

// get returns a snapshot of an account and its history
func (m *memAccountStore) get(t *testing.T, accountID string) (*models.Account, []models.Observation) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.accounts {
		if entry.account.ID == accountID {
			return cloneAccount(entry.account), slices.Clone(entry.history)
		}
	}
	require.FailNow(t, "account not found", accountID)
	return nil, nil
}

// seed stores an account with a known password, counters and history
func (m *memAccountStore) seed(t *testing.T, tenantID string, details map[string]string, password string, counters models.AttemptCounters, history []models.Observation) *models.Account {
	t.Helper()
	require.NotEmpty(t, history)

	hash, err := testHasher.HashPassword(password)
	require.NoError(t, err)

	created, err := m.Create(context.Background(), &models.Account{
		TenantID:     tenantID,
		PasswordHash: hash,
		Details:      details,
		Counters:     counters,
	}, nil, history[0])
	require.NoError(t, err)

	m.mu.Lock()
	m.accounts[len(m.accounts)-1].history = slices.Clone(history)
	m.mu.Unlock()
	return created
}

type memTx struct {
	store   *memAccountStore
	account *models.Account
	history []models.Observation
}

func (tx *memTx) Account() *models.Account {
	return tx.account
}

func (tx *memTx) FetchHistory(context.Context) (models.LoginHistory, error) {
	h := models.LoginHistory{AttemptCounts: slices.Clone(tx.account.Counters.AllAttempts)}
	for _, obs := range tx.history {
		h.Locations = append(h.Locations, obs.Location)
		h.Devices = append(h.Devices, obs.Device)
		h.LoginTimes = append(h.LoginTimes, obs.ObservedAt)
	}
	return h, nil
}

func (tx *memTx) AppendObservation(_ context.Context, obs models.Observation) error {
	tx.history = append(tx.history, obs)
	return nil
}

func (tx *memTx) ReadCounters(context.Context) (models.AttemptCounters, error) {
	return tx.account.Counters.Clone(), nil
}

func (tx *memTx) WriteCounters(_ context.Context, c models.AttemptCounters) error {
	if tx.store.WriteErr != nil {
		return tx.store.WriteErr
	}
	tx.account.Counters = c.Clone()
	return nil
}

// dailyObservations returns n logins from the same place and device, one a
// day at 09:00 UTC starting 2024-03-01
func dailyObservations(n int) []models.Observation {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	out := make([]models.Observation, n)
	for i := range out {
		out[i] = models.Observation{
			Location:   models.Location{Latitude: 52.52, Longitude: 13.405},
			Device:     "Mozilla/5.0 (Macintosh) Safari",
			ObservedAt: start.AddDate(0, 0, i),
		}
	}
	return out
}
