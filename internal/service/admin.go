package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/acme-accounts/internal/audit"
	"github.com/and161185/acme-accounts/internal/errs"
	"github.com/and161185/acme-accounts/internal/limiter"
	"github.com/and161185/acme-accounts/internal/model"
	"github.com/and161185/acme-accounts/internal/rbac"
	"github.com/and161185/acme-accounts/internal/repository"
)

// Audit paths of administrative operations.
const (
	PathAdminRole   = "/api/admin/user/role"
	PathAdminAccess = "/api/admin/user/access"
	PathAdminUser   = "/api/admin/user"
)

// Operation verbs accepted by UpdateRole and UpdateAccess.
const (
	OpGrant  = "GRANT"
	OpRemove = "REMOVE"
	OpLock   = "LOCK"
	OpUnlock = "UNLOCK"
)

// AdminService defines administrative account operations. actor is the email
// of the administrator performing the call.
type AdminService interface {
	ListAccounts(ctx context.Context) ([]model.Account, error)
	UpdateRole(ctx context.Context, actor string, req ChangeRoleRequest) (model.Account, error)
	GrantRole(ctx context.Context, actor, target string, role model.Role) (model.Account, error)
	RemoveRole(ctx context.Context, actor, target string, role model.Role) (model.Account, error)
	UpdateAccess(ctx context.Context, actor string, req ChangeAccessRequest) (model.Account, error)
	Lock(ctx context.Context, actor, target string) (model.Account, error)
	Unlock(ctx context.Context, actor, target string) (model.Account, error)
	DeleteAccount(ctx context.Context, actor, target string) error
}

// ChangeRoleRequest is a GRANT or REMOVE of one role.
type ChangeRoleRequest struct {
	Email     string
	Role      string
	Operation string
}

// ChangeAccessRequest is a LOCK or UNLOCK.
type ChangeAccessRequest struct {
	Email     string
	Operation string
}

type AdminServiceImpl struct {
	accounts repository.AccountRepository
	tracker  limiter.Tracker
	audit    audit.Recorder
	log      *zap.Logger
}

// NewAdminService constructs AdminService.
func NewAdminService(accounts repository.AccountRepository, tracker limiter.Tracker, rec audit.Recorder, log *zap.Logger) *AdminServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminServiceImpl{accounts: accounts, tracker: tracker, audit: rec, log: log}
}

// ListAccounts returns all accounts in creation order.
func (s *AdminServiceImpl) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.accounts.List(ctx)
}

// UpdateRole parses the role and verb, then grants or removes.
func (s *AdminServiceImpl) UpdateRole(ctx context.Context, actor string, req ChangeRoleRequest) (model.Account, error) {
	role, ok := model.ParseRole(req.Role)
	if !ok {
		return model.Account{}, errs.ErrRoleNotFound
	}
	switch strings.ToUpper(strings.TrimSpace(req.Operation)) {
	case OpGrant:
		return s.GrantRole(ctx, actor, req.Email, role)
	case OpRemove:
		return s.RemoveRole(ctx, actor, req.Email, role)
	default:
		return model.Account{}, errs.ErrInvalidOperation
	}
}

// GrantRole adds role unless it would mix administrative and business roles.
// Granting a role the account already holds is accepted and audited.
func (s *AdminServiceImpl) GrantRole(ctx context.Context, actor, target string, role model.Role) (model.Account, error) {
	acc, err := s.load(ctx, target)
	if err != nil {
		return model.Account{}, err
	}
	if !rbac.CanGrant(acc, role) {
		return model.Account{}, errs.ErrInvalidRoleCombination
	}
	if !acc.HasRole(role) {
		acc.Roles = append(acc.Roles, role)
	}
	if err := s.accounts.Update(ctx, acc); err != nil {
		return model.Account{}, err
	}
	obj := "Grant role " + string(role) + " to " + acc.Email
	if err := s.audit.Record(ctx, model.ActionGrantRole, subjectOf(actor, acc.Email), obj, PathAdminRole); err != nil {
		return model.Account{}, err
	}
	return *acc, nil
}

// RemoveRole drops a business role, keeping at least one role on the account.
func (s *AdminServiceImpl) RemoveRole(ctx context.Context, actor, target string, role model.Role) (model.Account, error) {
	acc, err := s.load(ctx, target)
	if err != nil {
		return model.Account{}, err
	}
	switch {
	case rbac.IsAdministratorRole(role):
		return model.Account{}, errs.ErrCannotRemoveAdministrator
	case !acc.HasRole(role):
		return model.Account{}, errs.ErrRoleNotPresent
	case len(acc.Roles) == 1:
		return model.Account{}, errs.ErrLastRole
	}
	acc.Roles = slices.DeleteFunc(acc.Roles, func(r model.Role) bool { return r == role })
	if err := s.accounts.Update(ctx, acc); err != nil {
		return model.Account{}, err
	}
	obj := "Remove role " + string(role) + " from " + acc.Email
	if err := s.audit.Record(ctx, model.ActionRemoveRole, subjectOf(actor, acc.Email), obj, PathAdminRole); err != nil {
		return model.Account{}, err
	}
	return *acc, nil
}

// UpdateAccess parses the verb, then locks or unlocks.
func (s *AdminServiceImpl) UpdateAccess(ctx context.Context, actor string, req ChangeAccessRequest) (model.Account, error) {
	switch strings.ToUpper(strings.TrimSpace(req.Operation)) {
	case OpLock:
		return s.Lock(ctx, actor, req.Email)
	case OpUnlock:
		return s.Unlock(ctx, actor, req.Email)
	default:
		return model.Account{}, errs.ErrInvalidOperation
	}
}

// Lock sets the persistent lock flag.
func (s *AdminServiceImpl) Lock(ctx context.Context, actor, target string) (model.Account, error) {
	return s.setLocked(ctx, actor, target, true)
}

// Unlock clears the lock flag and forgets tracked failures.
func (s *AdminServiceImpl) Unlock(ctx context.Context, actor, target string) (model.Account, error) {
	return s.setLocked(ctx, actor, target, false)
}

func (s *AdminServiceImpl) setLocked(ctx context.Context, actor, target string, locked bool) (model.Account, error) {
	acc, err := s.load(ctx, target)
	if err != nil {
		return model.Account{}, err
	}
	if acc.IsAdministrator() {
		return model.Account{}, errs.ErrCannotLockAdministrator
	}
	attempts := acc.FailedAttempts
	if !locked {
		attempts = 0
	}
	if err := s.accounts.SetLocked(ctx, acc.Email, locked, attempts); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Account{}, errs.ErrAccountNotFound
		}
		return model.Account{}, err
	}
	acc.Locked, acc.FailedAttempts = locked, attempts

	action, obj := model.ActionLockUser, "Lock user "+acc.Email
	if !locked {
		s.tracker.Reset(acc.Email)
		action, obj = model.ActionUnlockUser, "Unlock user "+acc.Email
	}
	if err := s.audit.Record(ctx, action, subjectOf(actor, acc.Email), obj, PathAdminAccess); err != nil {
		return model.Account{}, err
	}
	s.log.Info("account access changed", zap.String("email", acc.Email), zap.Bool("locked", locked))
	return *acc, nil
}

// DeleteAccount removes a non-administrator account and its payments.
func (s *AdminServiceImpl) DeleteAccount(ctx context.Context, actor, target string) error {
	acc, err := s.load(ctx, target)
	if err != nil {
		return err
	}
	if acc.IsAdministrator() {
		return errs.ErrCannotDeleteAdministrator
	}
	if err := s.accounts.Delete(ctx, acc.Email); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrAccountNotFound
		}
		return err
	}
	s.tracker.Reset(acc.Email)
	return s.audit.Record(ctx, model.ActionDeleteUser, subjectOf(actor, acc.Email), acc.Email, PathAdminUser)
}

func (s *AdminServiceImpl) load(ctx context.Context, email string) (*model.Account, error) {
	acc, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrAccountNotFound
		}
		return nil, err
	}
	return acc, nil
}

// subjectOf falls back to the target when no actor is known.
func subjectOf(actor, target string) string {
	if a := NormalizeEmail(actor); a != "" {
		return a
	}
	return target
}
