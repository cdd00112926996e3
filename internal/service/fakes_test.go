package service

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/acme-accounts/internal/audit"
	pkgcrypto "github.com/and161185/acme-accounts/internal/crypto"
	"github.com/and161185/acme-accounts/internal/errs"
	"github.com/and161185/acme-accounts/internal/model"
	"github.com/and161185/acme-accounts/internal/repository"
)

type fakeAccounts struct {
	mu      sync.Mutex
	byEmail map[string]*model.Account
	order   []string

	getErr    error
	updateErr error
	countErr  error

	updates int

	// afterGet runs once per GetByEmail, outside the lock.
	afterGet func(email string)
}

var _ repository.AccountRepository = (*fakeAccounts)(nil)

func newFakeAccounts(accs ...*model.Account) *fakeAccounts {
	f := &fakeAccounts{byEmail: map[string]*model.Account{}}
	for _, a := range accs {
		cpy := *a
		if cpy.ID == uuid.Nil {
			cpy.ID = uuid.Must(uuid.NewV4())
		}
		f.byEmail[a.Email] = &cpy
		f.order = append(f.order, a.Email)
	}
	return f
}

func (f *fakeAccounts) Create(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byEmail[a.Email]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *a
	cpy.Roles = slices.Clone(a.Roles)
	f.byEmail[a.Email] = &cpy
	f.order = append(f.order, a.Email)
	return nil
}

func (f *fakeAccounts) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	acc, err := f.lookup(email)
	if hook := f.afterGet; hook != nil {
		hook(email)
	}
	return acc, err
}

func (f *fakeAccounts) lookup(email string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cpy := *a
	cpy.Roles = slices.Clone(a.Roles)
	return &cpy, nil
}

func (f *fakeAccounts) Update(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.byEmail[a.Email]; !ok {
		return errs.ErrNotFound
	}
	cpy := *a
	cpy.Roles = slices.Clone(a.Roles)
	f.byEmail[a.Email] = &cpy
	f.updates++
	return nil
}

func (f *fakeAccounts) SetLocked(_ context.Context, email string, locked bool, attempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	a, ok := f.byEmail[email]
	if !ok {
		return errs.ErrNotFound
	}
	a.Locked, a.FailedAttempts = locked, attempts
	f.updates++
	return nil
}

func (f *fakeAccounts) Delete(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[email]; !ok {
		return errs.ErrNotFound
	}
	delete(f.byEmail, email)
	f.order = slices.DeleteFunc(f.order, func(e string) bool { return e == email })
	return nil
}

func (f *fakeAccounts) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byEmail), f.countErr
}

func (f *fakeAccounts) List(context.Context) ([]model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Account, 0, len(f.order))
	for _, e := range f.order {
		out = append(out, *f.byEmail[e])
	}
	return out, nil
}

func (f *fakeAccounts) get(email string) *model.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byEmail[email]
}

// fakeVerifier stores "h:" + plaintext and counts Matches calls.
type fakeVerifier struct {
	mu      sync.Mutex
	matches int
}

var _ pkgcrypto.Verifier = (*fakeVerifier)(nil)

func (v *fakeVerifier) Hash(plain string) (string, error) { return "h:" + plain, nil }

func (v *fakeVerifier) Matches(plain, enc string) bool {
	v.mu.Lock()
	v.matches++
	v.mu.Unlock()
	return enc == "h:"+plain
}

func (v *fakeVerifier) calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.matches
}

type fakeAudit struct {
	mu     sync.Mutex
	events []model.SecurityEvent
	err    error
}

var _ audit.Recorder = (*fakeAudit)(nil)

func (a *fakeAudit) Record(_ context.Context, action model.Action, subject, object, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, model.SecurityEvent{
		ID: int64(len(a.events) + 1), Action: action, Subject: subject, Object: object, Path: path,
	})
	return nil
}

func (a *fakeAudit) List(context.Context) ([]model.SecurityEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.events), nil
}

func (a *fakeAudit) count(action model.Action) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.events {
		if e.Action == action {
			n++
		}
	}
	return n
}

func (a *fakeAudit) actions() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	parts := make([]string, 0, len(a.events))
	for _, e := range a.events {
		parts = append(parts, string(e.Action))
	}
	return strings.Join(parts, ",")
}

func (a *fakeAudit) last() model.SecurityEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.events) == 0 {
		return model.SecurityEvent{}
	}
	return a.events[len(a.events)-1]
}

type fakePayments struct {
	mu       sync.Mutex
	rows     []model.Payment
	batchErr error
}

var _ repository.PaymentRepository = (*fakePayments)(nil)

func (p *fakePayments) InsertBatch(_ context.Context, ps []model.Payment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.batchErr != nil {
		return p.batchErr
	}
	p.rows = append(p.rows, ps...)
	return nil
}

func (p *fakePayments) Upsert(_ context.Context, pm model.Payment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.rows {
		if p.rows[i].AccountID == pm.AccountID && p.rows[i].Period == pm.Period {
			p.rows[i].Salary = pm.Salary
			return nil
		}
	}
	p.rows = append(p.rows, pm)
	return nil
}

func (p *fakePayments) ListByAccount(_ context.Context, id uuid.UUID, period string) ([]model.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.Payment
	for i := len(p.rows) - 1; i >= 0; i-- {
		r := p.rows[i]
		if r.AccountID == id && (period == "" || r.Period == period) {
			out = append(out, r)
		}
	}
	return out, nil
}

func user(email string, roles ...model.Role) *model.Account {
	if len(roles) == 0 {
		roles = []model.Role{model.RoleUser}
	}
	return &model.Account{
		ID:       uuid.Must(uuid.NewV4()),
		Email:    email,
		Name:     "N",
		Lastname: "L",
		PwdHash:  "h:correct-password",
		Roles:    roles,
	}
}
