package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/metrics"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/repositories"
	"github.com/BradenHooton/riskgate/internal/risk"
	pkgauth "github.com/BradenHooton/riskgate/pkg/auth"
	pkglogger "github.com/BradenHooton/riskgate/pkg/logger"
)

// AccountStore is the persistence the login state machine runs against
type AccountStore interface {
	Create(ctx context.Context, account *models.Account, uniqueIdentifiers []string, first models.Observation) (*models.Account, error)
	Find(ctx context.Context, tenantID string, match models.AccountMatch) ([]*models.Account, error)
	WithAccountLock(ctx context.Context, tenantID, accountID string, fn func(repositories.AccountTx) error) error
}

// RiskEvaluator decides whether a password-verified attempt is admitted
type RiskEvaluator interface {
	EvaluateLogin(ctx context.Context, history models.LoginHistory, currAttempts int, passwordOK bool) (risk.Decision, error)
}

// PasswordHasher hashes and checks account passwords
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePassword(hashedPassword, password string) (bool, error)
}

// LocationResolver maps a client IP to coordinates
type LocationResolver interface {
	Locate(ip net.IP) (models.Location, error)
}

// SessionIssuer mints the token handed out on an admitted login
type SessionIssuer interface {
	IssueSession(tenantID, accountID, method string) (string, time.Time, error)
}

// AttemptContext describes where a sign-up or login comes from
type AttemptContext struct {
	Location  *models.Location // nil asks for a GeoIP lookup of ClientIP
	Device    string           // falls back to UserAgent when empty
	ClientIP  net.IP
	UserAgent string
}

func (a AttemptContext) ip() string {
	if a.ClientIP == nil {
		return ""
	}
	return a.ClientIP.String()
}

type SignUpInput struct {
	Password          string
	Details           map[string]string
	UniqueIdentifiers []string
	Attempt           AttemptContext
}

type SignUpResult struct {
	Account *models.Account
	MFAKey  string
}

type LoginInput struct {
	Details  map[string]string
	Password string
	Attempt  AttemptContext
}

// LoginResult is returned for a login whose password matched. SessionToken
// is only set when Outcome is ALLOW.
type LoginResult struct {
	AccountID    string
	Outcome      risk.Outcome
	Verdict      risk.Verdict
	TrustCount   int
	Evaluated    bool
	FailedClosed bool
	SessionToken string
	ExpiresAt    time.Time
}

type MFAInput struct {
	Identifier string
	Value      string
	MFAKey     string
	Attempt    AttemptContext
}

type MFAResult struct {
	AccountID    string
	NewMFAKey    string
	SessionToken string
	ExpiresAt    time.Time
}

// AuthService runs sign-up, risk-gated login and MFA verification
type AuthService struct {
	accounts    AccountStore
	engine      RiskEvaluator
	hasher      PasswordHasher
	sessions    SessionIssuer
	locator     LocationResolver
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
	newMFAKey   func() (string, error)
}

// NewAuthService creates a new AuthService. locator may be nil when no GeoIP
// database is configured.
func NewAuthService(
	accounts AccountStore,
	engine RiskEvaluator,
	hasher PasswordHasher,
	sessions SessionIssuer,
	locator LocationResolver,
	timing *auth.TimingDelay,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		accounts:    accounts,
		engine:      engine,
		hasher:      hasher,
		sessions:    sessions,
		locator:     locator,
		timing:      timing,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
		newMFAKey:   pkgauth.GenerateMFAKey,
	}
}

// observe builds the history entry for an attempt
func (s *AuthService) observe(attempt AttemptContext) (models.Observation, error) {
	var loc models.Location
	if attempt.Location != nil {
		loc = *attempt.Location
	} else {
		if s.locator == nil {
			return models.Observation{}, models.ErrLocationUnavailable
		}
		resolved, err := s.locator.Locate(attempt.ClientIP)
		if err != nil {
			return models.Observation{}, err
		}
		loc = resolved
	}

	device := strings.TrimSpace(attempt.Device)
	if device == "" {
		device = attempt.UserAgent
	}

	return models.Observation{
		Location:   loc,
		Device:     device,
		ObservedAt: s.now().UTC(),
	}, nil
}

// SignUp creates an account with its first history entry and MFA key. No
// risk evaluation takes place.
func (s *AuthService) SignUp(ctx context.Context, tenant *models.Tenant, in SignUpInput) (*SignUpResult, error) {
	if err := validateDetailKeys(tenant, in.Details); err != nil {
		return nil, err
	}
	for _, name := range in.UniqueIdentifiers {
		if _, ok := in.Details[name]; !ok {
			return nil, fmt.Errorf("%w: unique identifier %q missing from details", models.ErrBadRequest, name)
		}
	}

	hash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, pkgauth.ErrPasswordPolicy) {
			return nil, fmt.Errorf("%w: password must be %d to %d characters",
				models.ErrBadRequest, pkgauth.MinPasswordLen, pkgauth.MaxPasswordLen)
		}
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	obs, err := s.observe(in.Attempt)
	if err != nil {
		return nil, err
	}

	key, err := s.newMFAKey()
	if err != nil {
		s.logger.Error("failed to generate mfa key", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	account := &models.Account{
		TenantID:     tenant.ID,
		PasswordHash: hash,
		Details:      in.Details,
		Counters: models.AttemptCounters{
			TotalLogins: 1,
			AllAttempts: []int{},
			MFAKey:      &key,
		},
	}

	created, err := s.accounts.Create(ctx, account, in.UniqueIdentifiers, obs)
	if err != nil {
		return nil, mapStoreError(s.logger, "create account", err)
	}

	s.logger.Info("account signed up", slog.String("tenant_id", tenant.ID), slog.String("account_id", created.ID))
	s.auditLogger.LogAccountAction(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventSignUp,
		TenantID:  tenant.ID,
		AccountID: created.ID,
		IPAddress: in.Attempt.ip(),
		UserAgent: in.Attempt.UserAgent,
		Success:   true,
	})

	return &SignUpResult{Account: created, MFAKey: key}, nil
}

// Login looks the account up by its details and runs the risk-gated password
// check. Every candidate whose password does not match gets a failure
// recorded; the first that matches is evaluated. ErrInvalidCredentials is
// returned when no candidate matches.
func (s *AuthService) Login(ctx context.Context, tenant *models.Tenant, in LoginInput) (*LoginResult, error) {
	start := time.Now()

	if len(in.Details) == 0 {
		return nil, fmt.Errorf("%w: details must identify the account", models.ErrBadRequest)
	}
	if err := validateDetailKeys(tenant, in.Details); err != nil {
		return nil, err
	}

	obs, err := s.observe(in.Attempt)
	if err != nil {
		return nil, err
	}

	candidates, err := s.accounts.Find(ctx, tenant.ID, models.AccountMatch{Details: in.Details})
	if err != nil {
		return nil, mapStoreError(s.logger, "find login candidates", err)
	}

	for _, candidate := range candidates {
		result, err := s.attempt(ctx, tenant.ID, candidate.ID, in.Password, obs)
		if errors.Is(err, models.ErrNotFound) {
			// deleted between lookup and lock
			continue
		}
		if err != nil {
			return nil, mapStoreError(s.logger, "login transition", err)
		}

		if result == nil {
			s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
				EventType:     pkglogger.EventPasswordMismatch,
				TenantID:      tenant.ID,
				AccountID:     candidate.ID,
				IPAddress:     in.Attempt.ip(),
				UserAgent:     in.Attempt.UserAgent,
				FailureReason: "invalid_credentials",
			})
			continue
		}

		return s.finishLogin(ctx, tenant, in.Attempt, result)
	}

	metrics.LoginOutcomes.WithLabelValues("invalid_credentials").Inc()
	s.logger.Info("login failed: invalid credentials", slog.String("tenant_id", tenant.ID))
	s.timing.WaitFrom(ctx, start, false)
	return nil, models.ErrInvalidCredentials
}

// attempt runs one login transition under the account lock. A nil result
// means the password did not match and the failure was recorded. The
// observation is stamped while the lock is held so concurrent attempts append
// in time order.
func (s *AuthService) attempt(ctx context.Context, tenantID, accountID, password string, obs models.Observation) (*LoginResult, error) {
	var result *LoginResult

	err := s.accounts.WithAccountLock(ctx, tenantID, accountID, func(tx repositories.AccountTx) error {
		result = nil
		account := tx.Account()
		obs.ObservedAt = s.now().UTC()

		ok, err := s.hasher.ComparePassword(account.PasswordHash, password)
		if err != nil {
			return err
		}

		counters, err := tx.ReadCounters(ctx)
		if err != nil {
			return err
		}

		if !ok {
			counters.RecordFailure()
			if err := tx.AppendObservation(ctx, obs); err != nil {
				return err
			}
			return tx.WriteCounters(ctx, counters)
		}

		history, err := tx.FetchHistory(ctx)
		if err != nil {
			return err
		}

		evalStart := time.Now()
		decision, err := s.engine.EvaluateLogin(ctx, history.WithCurrent(obs), counters.Attempts, true)
		if err != nil {
			return err
		}
		if decision.Evaluated {
			metrics.RecordEvaluation(decision.Verdict.Signals(), decision.FailedClosed, time.Since(evalStart))
		}

		if err := tx.AppendObservation(ctx, obs); err != nil {
			return err
		}
		if decision.Outcome == risk.OutcomeAllow {
			counters.Reset()
			if err := tx.WriteCounters(ctx, counters); err != nil {
				return err
			}
		}

		result = &LoginResult{
			AccountID:    account.ID,
			Outcome:      decision.Outcome,
			Verdict:      decision.Verdict,
			TrustCount:   decision.Verdict.TrustCount(),
			Evaluated:    decision.Evaluated,
			FailedClosed: decision.FailedClosed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *AuthService) finishLogin(ctx context.Context, tenant *models.Tenant, attempt AttemptContext, result *LoginResult) (*LoginResult, error) {
	event := pkglogger.AuditEvent{
		TenantID:  tenant.ID,
		AccountID: result.AccountID,
		IPAddress: attempt.ip(),
		UserAgent: attempt.UserAgent,
		Metadata: map[string]string{
			"trust_count": fmt.Sprint(result.TrustCount),
		},
	}

	if result.Outcome != risk.OutcomeAllow {
		metrics.LoginOutcomes.WithLabelValues("mfa_required").Inc()
		s.logger.Info("login escalated to mfa",
			slog.String("account_id", result.AccountID),
			slog.Int("trust_count", result.TrustCount),
			slog.Bool("failed_closed", result.FailedClosed))
		event.EventType = pkglogger.EventMFARequired
		event.FailureReason = "risk_escalation"
		if result.FailedClosed {
			event.FailureReason = "classifier_unavailable"
		}
		s.auditLogger.LogAuthAttempt(ctx, event)
		return result, nil
	}

	token, expiresAt, err := s.sessions.IssueSession(tenant.ID, result.AccountID, models.SessionMethodPassword)
	if err != nil {
		s.logger.Error("failed to issue session token", slog.String("account_id", result.AccountID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	result.SessionToken = token
	result.ExpiresAt = expiresAt

	metrics.LoginOutcomes.WithLabelValues("allow").Inc()
	s.logger.Info("login allowed", slog.String("account_id", result.AccountID))
	event.EventType = pkglogger.EventLoginAllowed
	event.Success = true
	s.auditLogger.LogAuthAttempt(ctx, event)

	return result, nil
}

// VerifyMFA checks a provided MFA key for the single account named by
// identifier and value. A correct key closes the failure streak, rotates the
// key and opens a session; a wrong one changes nothing.
func (s *AuthService) VerifyMFA(ctx context.Context, tenant *models.Tenant, in MFAInput) (*MFAResult, error) {
	start := time.Now()

	if err := validateIdentifier(tenant, in.Identifier); err != nil {
		return nil, err
	}

	event := pkglogger.AuditEvent{
		EventType: pkglogger.EventMFARejected,
		TenantID:  tenant.ID,
		IPAddress: in.Attempt.ip(),
		UserAgent: in.Attempt.UserAgent,
	}

	matches, err := s.accounts.Find(ctx, tenant.ID, models.MatchIdentifier(in.Identifier, in.Value))
	if err != nil {
		return nil, mapStoreError(s.logger, "find mfa account", err)
	}
	if len(matches) != 1 {
		return nil, s.rejectMFA(ctx, start, event, "ambiguous", models.ErrAmbiguousAccount)
	}
	accountID := matches[0].ID
	event.AccountID = accountID

	var newKey string
	err = s.accounts.WithAccountLock(ctx, tenant.ID, accountID, func(tx repositories.AccountTx) error {
		newKey = ""
		counters, err := tx.ReadCounters(ctx)
		if err != nil {
			return err
		}

		res, err := risk.VerifyMFA(counters.MFAKey, in.MFAKey, s.newMFAKey)
		if err != nil {
			return err
		}
		if !res.Accepted {
			return nil
		}

		counters.Reset()
		counters.RotateMFAKey(res.NewKey)
		if err := tx.WriteCounters(ctx, counters); err != nil {
			return err
		}
		newKey = res.NewKey
		return nil
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil, s.rejectMFA(ctx, start, event, "ambiguous", models.ErrAmbiguousAccount)
	}
	if err != nil {
		return nil, mapStoreError(s.logger, "mfa transition", err)
	}
	if newKey == "" {
		return nil, s.rejectMFA(ctx, start, event, "rejected", models.ErrMFAKeyRejected)
	}

	token, expiresAt, err := s.sessions.IssueSession(tenant.ID, accountID, models.SessionMethodMFA)
	if err != nil {
		s.logger.Error("failed to issue session token", slog.String("account_id", accountID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	metrics.MFAVerifications.WithLabelValues("accepted").Inc()
	s.logger.Info("mfa verified", slog.String("account_id", accountID))
	event.EventType = pkglogger.EventMFAVerified
	event.Success = true
	s.auditLogger.LogAuthAttempt(ctx, event)

	return &MFAResult{
		AccountID:    accountID,
		NewMFAKey:    newKey,
		SessionToken: token,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *AuthService) rejectMFA(ctx context.Context, start time.Time, event pkglogger.AuditEvent, result string, err error) error {
	metrics.MFAVerifications.WithLabelValues(result).Inc()
	event.FailureReason = result
	s.auditLogger.LogAuthAttempt(ctx, event)
	s.timing.WaitFrom(ctx, start, false)
	return err
}
