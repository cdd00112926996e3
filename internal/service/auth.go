// Package service contains application services for authentication, administration and payroll.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/and161185/acme-accounts/internal/audit"
	pkgcrypto "github.com/and161185/acme-accounts/internal/crypto"
	"github.com/and161185/acme-accounts/internal/errs"
	"github.com/and161185/acme-accounts/internal/limiter"
	"github.com/and161185/acme-accounts/internal/model"
	"github.com/and161185/acme-accounts/internal/password"
	"github.com/and161185/acme-accounts/internal/repository"
)

// Thresholds of the brute-force protection.
const (
	// AuditAttemptsLimit is the last failure count that still produces LOGIN_FAILED.
	AuditAttemptsLimit = 5
	// LockAtAttempt is the failure count that triggers BRUTE_FORCE and the automatic lock.
	LockAtAttempt = 5
)

// Fixed audit values.
const (
	AnonymousSubject   = "Anonymous"
	PathSignup         = "/api/auth/signup"
	PathChangePassword = "/api/auth/changepass"
)

// DefaultEmailPattern restricts signups to the corporate domain.
var DefaultEmailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@acme\.com$`)

// AuthService defines authentication and self-service account operations.
type AuthService interface {
	// Authenticate verifies credentials for a request to path.
	Authenticate(ctx context.Context, email, pass, path string) (model.Principal, error)
	// ResolveToken maps a bearer token to a principal, rejecting locked accounts.
	ResolveToken(ctx context.Context, token string) (model.Principal, error)
	// Signup registers an account.
	Signup(ctx context.Context, req SignupRequest) (model.Account, error)
	// ChangePassword replaces the principal's password.
	ChangePassword(ctx context.Context, p model.Principal, newPassword string) error
	// IssueToken signs an access token for the principal.
	IssueToken(p model.Principal) (model.Tokens, error)
}

// SignupRequest carries signup input.
type SignupRequest struct {
	Name     string
	Lastname string
	Email    string
	Password string
}

// Metrics receives authentication counters.
type Metrics interface {
	LoginSucceeded()
	LoginFailed()
	AccountLocked()
}

type nopMetrics struct{}

func (nopMetrics) LoginSucceeded() {}
func (nopMetrics) LoginFailed()    {}
func (nopMetrics) AccountLocked()  {}

type AuthServiceImpl struct {
	accounts repository.AccountRepository
	verifier pkgcrypto.Verifier
	tracker  limiter.Tracker
	audit    audit.Recorder
	policy   *password.Policy

	emailPattern *regexp.Regexp
	signKey      []byte
	accessTTL    time.Duration
	log          *zap.Logger
	metrics      Metrics

	// signupMu serializes count-then-create so only one first account becomes administrator.
	signupMu sync.Mutex

	dummyOnce sync.Once
	dummyHash string
}

// AuthOption customizes AuthServiceImpl.
type AuthOption func(*AuthServiceImpl)

// WithPasswordPolicy replaces the default password policy.
func WithPasswordPolicy(p *password.Policy) AuthOption {
	return func(s *AuthServiceImpl) { s.policy = p }
}

// WithEmailPattern replaces DefaultEmailPattern.
func WithEmailPattern(re *regexp.Regexp) AuthOption {
	return func(s *AuthServiceImpl) { s.emailPattern = re }
}

// WithTokens enables IssueToken and ResolveToken.
func WithTokens(signKey []byte, accessTTL time.Duration) AuthOption {
	return func(s *AuthServiceImpl) { s.signKey, s.accessTTL = signKey, accessTTL }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) AuthOption {
	return func(s *AuthServiceImpl) { s.log = log }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) AuthOption {
	return func(s *AuthServiceImpl) { s.metrics = m }
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(
	accounts repository.AccountRepository,
	verifier pkgcrypto.Verifier,
	tracker limiter.Tracker,
	rec audit.Recorder,
	opts ...AuthOption,
) *AuthServiceImpl {
	s := &AuthServiceImpl{
		accounts:     accounts,
		verifier:     verifier,
		tracker:      tracker,
		audit:        rec,
		policy:       password.NewPolicy(nil),
		emailPattern: DefaultEmailPattern,
		accessTTL:    15 * time.Minute,
		log:          zap.NewNop(),
		metrics:      nopMetrics{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NormalizeEmail lower-cases and trims an identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Authenticate checks the lock state, then the credential, then updates the
// attempt tracker and the audit log.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, email, pass, path string) (model.Principal, error) {
	identity := NormalizeEmail(email)

	acc, err := s.accounts.GetByEmail(ctx, identity)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		acc = nil
	case err != nil:
		return model.Principal{}, err
	}

	if (acc != nil && acc.Locked) || s.tracker.IsBlocked(identity) {
		return model.Principal{}, errs.ErrAccountLocked
	}

	if acc != nil && s.verifier.Matches(pass, acc.PwdHash) {
		s.tracker.Reset(identity)
		s.metrics.LoginSucceeded()
		return principalOf(acc), nil
	}
	s.metrics.LoginFailed()

	if acc == nil {
		// same cost as a real check so response time does not reveal the account
		_ = s.verifier.Matches(pass, s.dummy())
		// unknown identities are audited but never tracked, so they cannot evict real entries
		if s.tracker.Count(identity) <= AuditAttemptsLimit {
			if err := s.audit.Record(ctx, model.ActionLoginFailed, identity, path, path); err != nil {
				s.log.Warn("audit login failure", zap.String("email", identity), zap.Error(err))
			}
		}
		return model.Principal{}, errs.ErrInvalidCredential
	}
	if acc.IsAdministrator() {
		return model.Principal{}, errs.ErrInvalidCredential
	}

	n := s.tracker.Increment(identity)
	if n <= AuditAttemptsLimit {
		if err := s.audit.Record(ctx, model.ActionLoginFailed, identity, path, path); err != nil {
			s.log.Warn("audit login failure", zap.String("email", identity), zap.Error(err))
		}
	}
	if n == LockAtAttempt {
		if err := s.audit.Record(ctx, model.ActionBruteForce, identity, path, path); err != nil {
			s.log.Warn("audit brute force", zap.String("email", identity), zap.Error(err))
		}
		// best-effort: the tracker already blocks the identity if the lock is not persisted
		if err := s.lockAfterBruteForce(ctx, acc.Email, n, path); err != nil {
			s.log.Warn("auto-lock failed", zap.String("email", identity), zap.Error(err))
		}
	}
	return model.Principal{}, errs.ErrInvalidCredential
}

// lockAfterBruteForce touches only the lock columns; the account loaded before the
// credential check may be stale by now.
func (s *AuthServiceImpl) lockAfterBruteForce(ctx context.Context, email string, attempts int, path string) error {
	if err := s.accounts.SetLocked(ctx, email, true, attempts); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrAccountNotFound
		}
		return err
	}
	s.metrics.AccountLocked()
	return s.audit.Record(ctx, model.ActionLockUser, email, "Lock user "+email, path)
}

func (s *AuthServiceImpl) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.verifier.Hash("not-a-real-password")
		if err != nil {
			s.log.Warn("dummy hash", zap.Error(err))
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// Signup validates input, stores the account and records CREATE_USER.
// The first account ever stored is the administrator.
func (s *AuthServiceImpl) Signup(ctx context.Context, req SignupRequest) (model.Account, error) {
	email := NormalizeEmail(req.Email)
	name, lastname := strings.TrimSpace(req.Name), strings.TrimSpace(req.Lastname)
	if name == "" || lastname == "" || email == "" {
		return model.Account{}, fmt.Errorf("%w: name, lastname and email are required", errs.ErrValidation)
	}
	if !s.emailPattern.MatchString(email) {
		return model.Account{}, errs.ErrInvalidEmail
	}
	if len(req.Password) < password.MinLength {
		return model.Account{}, errs.ErrPasswordTooShort
	}

	s.signupMu.Lock()
	acc, err := s.createAccount(ctx, email, name, lastname, req.Password)
	s.signupMu.Unlock()
	if err != nil {
		return model.Account{}, err
	}

	if err := s.audit.Record(ctx, model.ActionCreateUser, AnonymousSubject, email, PathSignup); err != nil {
		return model.Account{}, err
	}
	return *acc, nil
}

func (s *AuthServiceImpl) createAccount(ctx context.Context, email, name, lastname, plain string) (*model.Account, error) {
	_, err := s.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, errs.ErrEmailAlreadyRegistered
	case !errors.Is(err, errs.ErrNotFound):
		return nil, err
	}
	if err := s.policy.Check(plain); err != nil {
		return nil, err
	}

	n, err := s.accounts.Count(ctx)
	if err != nil {
		return nil, err
	}
	role := model.RoleUser
	if n == 0 {
		role = model.RoleAdministrator
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	hash, err := s.verifier.Hash(plain)
	if err != nil {
		return nil, err
	}
	acc := &model.Account{
		ID:        id,
		Email:     email,
		Name:      name,
		Lastname:  lastname,
		PwdHash:   hash,
		Roles:     []model.Role{role},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return nil, errs.ErrEmailAlreadyRegistered
		}
		return nil, err
	}
	s.log.Info("account created", zap.String("email", email), zap.String("role", string(role)))
	return acc, nil
}

// ChangePassword enforces the password policy and rejects reuse of the current password.
func (s *AuthServiceImpl) ChangePassword(ctx context.Context, p model.Principal, newPassword string) error {
	if err := s.policy.Check(newPassword); err != nil {
		return err
	}
	email := NormalizeEmail(p.Email)
	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrAccountNotFound
		}
		return err
	}
	if s.verifier.Matches(newPassword, acc.PwdHash) {
		return errs.ErrPasswordUnchanged
	}
	hash, err := s.verifier.Hash(newPassword)
	if err != nil {
		return err
	}
	acc.PwdHash = hash
	if err := s.accounts.Update(ctx, acc); err != nil {
		return err
	}
	return s.audit.Record(ctx, model.ActionChangePassword, email, email, PathChangePassword)
}

// IssueToken creates a signed HS256 JWT whose subject is the principal's email.
func (s *AuthServiceImpl) IssueToken(p model.Principal) (model.Tokens, error) {
	if len(s.signKey) == 0 {
		return model.Tokens{}, errors.New("token signing disabled")
	}
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   p.Email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}

// ResolveToken verifies an HS256 token and reloads the account so that a lock
// applied after issuance takes effect immediately.
func (s *AuthServiceImpl) ResolveToken(ctx context.Context, token string) (model.Principal, error) {
	if len(s.signKey) == 0 {
		return model.Principal{}, errs.ErrInvalidCredential
	}
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	}, jwt.WithLeeway(30*time.Second))
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return model.Principal{}, errs.ErrInvalidCredential
	}

	acc, err := s.accounts.GetByEmail(ctx, NormalizeEmail(claims.Subject))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Principal{}, errs.ErrInvalidCredential
		}
		return model.Principal{}, err
	}
	if acc.Locked {
		return model.Principal{}, errs.ErrAccountLocked
	}
	return principalOf(acc), nil
}

func principalOf(a *model.Account) model.Principal {
	return model.Principal{
		AccountID: a.ID,
		Email:     a.Email,
		Roles:     append([]model.Role(nil), a.Roles...),
	}
}
