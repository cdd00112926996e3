package service

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/and161185/acme-accounts/internal/errs"
	"github.com/and161185/acme-accounts/internal/limiter"
	"github.com/and161185/acme-accounts/internal/model"
)

const actor = "root@acme.com"

type adminFixture struct {
	accounts *fakeAccounts
	tracker  *limiter.Memory
	audit    *fakeAudit
	svc      *AdminServiceImpl
}

func newAdminFixture(t *testing.T, accs ...*model.Account) *adminFixture {
	t.Helper()
	all := append([]*model.Account{user(actor, model.RoleAdministrator)}, accs...)
	f := &adminFixture{
		accounts: newFakeAccounts(all...),
		tracker:  limiter.NewMemory(100, time.Hour),
		audit:    &fakeAudit{},
	}
	f.svc = NewAdminService(f.accounts, f.tracker, f.audit, zaptest.NewLogger(t))
	return f
}

func TestAdmin_GrantRole(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t, user("ann@acme.com"))
	ctx := context.Background()

	acc, err := f.svc.GrantRole(ctx, actor, "ANN@acme.com", model.RoleAccountant)
	if err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	if !acc.HasRole(model.RoleAccountant) || !acc.HasRole(model.RoleUser) {
		t.Fatalf("roles: %v", acc.Roles)
	}
	ev := f.audit.last()
	if ev.Action != model.ActionGrantRole || ev.Subject != actor ||
		ev.Object != "Grant role ACCOUNTANT to ann@acme.com" || ev.Path != PathAdminRole {
		t.Fatalf("unexpected GRANT_ROLE: %+v", ev)
	}

	if _, err := f.svc.GrantRole(ctx, actor, "ann@acme.com", model.RoleAdministrator); !errors.Is(err, errs.ErrInvalidRoleCombination) {
		t.Fatalf("want ErrInvalidRoleCombination, got %v", err)
	}
	if _, err := f.svc.GrantRole(ctx, actor, actor, model.RoleAuditor); !errors.Is(err, errs.ErrInvalidRoleCombination) {
		t.Fatalf("want ErrInvalidRoleCombination for admin, got %v", err)
	}
	if _, err := f.svc.GrantRole(ctx, actor, "nobody@acme.com", model.RoleAuditor); !errors.Is(err, errs.ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
	if f.audit.count(model.ActionGrantRole) != 1 {
		t.Fatalf("rejected grants must not be audited")
	}
}

func TestAdmin_GrantRole_AlreadyHeld(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t, user("ann@acme.com"))

	acc, err := f.svc.GrantRole(context.Background(), actor, "ann@acme.com", model.RoleUser)
	if err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	if len(acc.Roles) != 1 {
		t.Fatalf("role must not be duplicated: %v", acc.Roles)
	}
}

func TestAdmin_RemoveRole(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t,
		user("ann@acme.com", model.RoleUser, model.RoleAuditor),
		user("bob@acme.com"),
	)
	ctx := context.Background()

	cases := []struct {
		name   string
		target string
		role   model.Role
		want   error
	}{
		{"administrator role", actor, model.RoleAdministrator, errs.ErrCannotRemoveAdministrator},
		{"administrator role on business user", "bob@acme.com", model.RoleAdministrator, errs.ErrCannotRemoveAdministrator},
		{"not held", "bob@acme.com", model.RoleAccountant, errs.ErrRoleNotPresent},
		{"last role", "bob@acme.com", model.RoleUser, errs.ErrLastRole},
		{"missing account", "x@acme.com", model.RoleUser, errs.ErrAccountNotFound},
	}
	for _, tc := range cases {
		if _, err := f.svc.RemoveRole(ctx, actor, tc.target, tc.role); !errors.Is(err, tc.want) {
			t.Fatalf("%s: want %v, got %v", tc.name, tc.want, err)
		}
	}

	acc, err := f.svc.RemoveRole(ctx, actor, "ann@acme.com", model.RoleAuditor)
	if err != nil {
		t.Fatalf("RemoveRole: %v", err)
	}
	if acc.HasRole(model.RoleAuditor) || len(acc.Roles) != 1 {
		t.Fatalf("roles: %v", acc.Roles)
	}
	if ev := f.audit.last(); ev.Action != model.ActionRemoveRole || ev.Object != "Remove role AUDITOR from ann@acme.com" {
		t.Fatalf("unexpected REMOVE_ROLE: %+v", ev)
	}
	if got := f.audit.actions(); got != "REMOVE_ROLE" {
		t.Fatalf("only the successful removal is audited, got %s", got)
	}
}

func TestAdmin_UpdateRole_Parsing(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t, user("ann@acme.com"))
	ctx := context.Background()

	if _, err := f.svc.UpdateRole(ctx, actor, ChangeRoleRequest{Email: "ann@acme.com", Role: "MANAGER", Operation: "GRANT"}); !errors.Is(err, errs.ErrRoleNotFound) {
		t.Fatalf("want ErrRoleNotFound, got %v", err)
	}
	if _, err := f.svc.UpdateRole(ctx, actor, ChangeRoleRequest{Email: "ann@acme.com", Role: "AUDITOR", Operation: "PROMOTE"}); !errors.Is(err, errs.ErrInvalidOperation) {
		t.Fatalf("want ErrInvalidOperation, got %v", err)
	}
	before := slices.Clone(f.accounts.get("ann@acme.com").Roles)
	acc, err := f.svc.UpdateRole(ctx, actor, ChangeRoleRequest{Email: "ann@acme.com", Role: "ROLE_AUDITOR", Operation: "grant"})
	if err != nil || !acc.HasRole(model.RoleAuditor) {
		t.Fatalf("UpdateRole grant: %v %v", acc.Roles, err)
	}
	acc, err = f.svc.UpdateRole(ctx, actor, ChangeRoleRequest{Email: "ann@acme.com", Role: "auditor", Operation: "REMOVE"})
	if err != nil || acc.HasRole(model.RoleAuditor) {
		t.Fatalf("UpdateRole remove: %v %v", acc.Roles, err)
	}
	if !slices.Equal(acc.Roles, before) || !slices.Equal(f.accounts.get("ann@acme.com").Roles, before) {
		t.Fatalf("grant then remove changed roles: %v, want %v", acc.Roles, before)
	}
}

func TestAdmin_LockUnlock(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t, user("ann@acme.com"))
	ctx := context.Background()

	acc, err := f.svc.Lock(ctx, actor, "ann@acme.com")
	if err != nil || !acc.Locked {
		t.Fatalf("Lock: %+v %v", acc, err)
	}
	if ev := f.audit.last(); ev.Action != model.ActionLockUser || ev.Subject != actor ||
		ev.Object != "Lock user ann@acme.com" || ev.Path != PathAdminAccess {
		t.Fatalf("unexpected LOCK_USER: %+v", ev)
	}

	for i := 0; i < 5; i++ {
		f.tracker.Increment("ann@acme.com")
	}
	acc, err = f.svc.Unlock(ctx, "", "ann@acme.com")
	if err != nil || acc.Locked {
		t.Fatalf("Unlock: %+v %v", acc, err)
	}
	if f.tracker.Count("ann@acme.com") != 0 {
		t.Fatalf("unlock must clear the attempt counter")
	}
	if ev := f.audit.last(); ev.Action != model.ActionUnlockUser || ev.Subject != "ann@acme.com" || ev.Object != "Unlock user ann@acme.com" {
		t.Fatalf("unexpected UNLOCK_USER: %+v", ev)
	}

	if _, err := f.svc.Lock(ctx, actor, actor); !errors.Is(err, errs.ErrCannotLockAdministrator) {
		t.Fatalf("want ErrCannotLockAdministrator, got %v", err)
	}
	if _, err := f.svc.Unlock(ctx, actor, actor); !errors.Is(err, errs.ErrCannotLockAdministrator) {
		t.Fatalf("want ErrCannotLockAdministrator on unlock, got %v", err)
	}
	if _, err := f.svc.UpdateAccess(ctx, actor, ChangeAccessRequest{Email: "ann@acme.com", Operation: "BAN"}); !errors.Is(err, errs.ErrInvalidOperation) {
		t.Fatalf("want ErrInvalidOperation, got %v", err)
	}
	if acc, err := f.svc.UpdateAccess(ctx, actor, ChangeAccessRequest{Email: "ann@acme.com", Operation: "lock"}); err != nil || !acc.Locked {
		t.Fatalf("UpdateAccess lock: %v", err)
	}
}

func TestAdmin_PersistFailureSkipsAudit(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t, user("ann@acme.com"))
	f.tracker.Increment("ann@acme.com")
	f.accounts.updateErr = errors.New("db down")
	ctx := context.Background()

	if _, err := f.svc.Unlock(ctx, actor, "ann@acme.com"); err == nil {
		t.Fatalf("want persistence error")
	}
	if _, err := f.svc.GrantRole(ctx, actor, "ann@acme.com", model.RoleAuditor); err == nil {
		t.Fatalf("want persistence error")
	}
	if f.audit.actions() != "" {
		t.Fatalf("failed mutations must not be audited: %s", f.audit.actions())
	}
	if f.tracker.Count("ann@acme.com") != 1 {
		t.Fatalf("failed unlock must not reset the counter")
	}
}

func TestAdmin_DeleteAccount(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t, user("ann@acme.com"))
	ctx := context.Background()

	if err := f.svc.DeleteAccount(ctx, actor, actor); !errors.Is(err, errs.ErrCannotDeleteAdministrator) {
		t.Fatalf("want ErrCannotDeleteAdministrator, got %v", err)
	}
	if err := f.svc.DeleteAccount(ctx, actor, "ghost@acme.com"); !errors.Is(err, errs.ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
	if err := f.svc.DeleteAccount(ctx, actor, "Ann@acme.com"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if f.accounts.get("ann@acme.com") != nil {
		t.Fatalf("account still present")
	}
	if ev := f.audit.last(); ev.Action != model.ActionDeleteUser || ev.Subject != actor ||
		ev.Object != "ann@acme.com" || ev.Path != PathAdminUser {
		t.Fatalf("unexpected DELETE_USER: %+v", ev)
	}

	list, err := f.svc.ListAccounts(ctx)
	if err != nil || len(list) != 1 || list[0].Email != actor {
		t.Fatalf("ListAccounts: %v %v", list, err)
	}
}
