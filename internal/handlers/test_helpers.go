package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/services"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithTenantContext adds an authenticated tenant to the request context
func WithTenantContext(req *http.Request, tenant *models.Tenant) *http.Request {
	return req.WithContext(auth.WithTenant(req.Context(), tenant))
}

// WithURLParam sets a chi URL parameter on the request
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// NewTestTenant creates a tenant declaring the given fields
func NewTestTenant(fields ...string) *models.Tenant {
	return &models.Tenant{ID: "tenant-1", Fields: fields}
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	SignUpFunc    func(ctx context.Context, tenant *models.Tenant, in services.SignUpInput) (*services.SignUpResult, error)
	LoginFunc     func(ctx context.Context, tenant *models.Tenant, in services.LoginInput) (*services.LoginResult, error)
	VerifyMFAFunc func(ctx context.Context, tenant *models.Tenant, in services.MFAInput) (*services.MFAResult, error)
}

func (m *MockAuthService) SignUp(ctx context.Context, tenant *models.Tenant, in services.SignUpInput) (*services.SignUpResult, error) {
	if m.SignUpFunc != nil {
		return m.SignUpFunc(ctx, tenant, in)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Login(ctx context.Context, tenant *models.Tenant, in services.LoginInput) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, tenant, in)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockAuthService) VerifyMFA(ctx context.Context, tenant *models.Tenant, in services.MFAInput) (*services.MFAResult, error) {
	if m.VerifyMFAFunc != nil {
		return m.VerifyMFAFunc(ctx, tenant, in)
	}
	return nil, models.ErrMFAKeyRejected
}

// MockTenantService implements TenantServiceInterface for testing
type MockTenantService struct {
	CreateFunc      func(ctx context.Context, fields []string) (*models.Tenant, string, error)
	AddFieldFunc    func(ctx context.Context, tenant *models.Tenant, name string) (*models.Tenant, error)
	RemoveFieldFunc func(ctx context.Context, tenant *models.Tenant, name string) (*models.Tenant, error)
}

func (m *MockTenantService) Create(ctx context.Context, fields []string) (*models.Tenant, string, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, fields)
	}
	return nil, "", models.ErrInternalServer
}

func (m *MockTenantService) AddField(ctx context.Context, tenant *models.Tenant, name string) (*models.Tenant, error) {
	if m.AddFieldFunc != nil {
		return m.AddFieldFunc(ctx, tenant, name)
	}
	return nil, models.ErrInternalServer
}

func (m *MockTenantService) RemoveField(ctx context.Context, tenant *models.Tenant, name string) (*models.Tenant, error) {
	if m.RemoveFieldFunc != nil {
		return m.RemoveFieldFunc(ctx, tenant, name)
	}
	return nil, models.ErrInternalServer
}

// MockUserService implements UserServiceInterface for testing
type MockUserService struct {
	LookupFunc func(ctx context.Context, tenant *models.Tenant, identifier, value string) ([]*models.Account, error)
	ListFunc   func(ctx context.Context, tenant *models.Tenant) ([]*models.Account, error)
	UpdateFunc func(ctx context.Context, tenant *models.Tenant, in services.UpdateInput) ([]*models.Account, error)
	DeleteFunc func(ctx context.Context, tenant *models.Tenant, identifier, value string) (int64, error)
}

func (m *MockUserService) Lookup(ctx context.Context, tenant *models.Tenant, identifier, value string) ([]*models.Account, error) {
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, tenant, identifier, value)
	}
	return []*models.Account{}, nil
}

func (m *MockUserService) List(ctx context.Context, tenant *models.Tenant) ([]*models.Account, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, tenant)
	}
	return []*models.Account{}, nil
}

func (m *MockUserService) Update(ctx context.Context, tenant *models.Tenant, in services.UpdateInput) ([]*models.Account, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tenant, in)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserService) Delete(ctx context.Context, tenant *models.Tenant, identifier, value string) (int64, error) {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, tenant, identifier, value)
	}
	return 0, models.ErrNotFound
}

// MockHealthChecker implements HealthChecker for testing
type MockHealthChecker struct {
	HealthCheckFunc func(ctx context.Context) error
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc != nil {
		return m.HealthCheckFunc(ctx)
	}
	return nil
}
