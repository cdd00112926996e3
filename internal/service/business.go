package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/acme-accounts/internal/errs"
	"github.com/and161185/acme-accounts/internal/model"
	"github.com/and161185/acme-accounts/internal/repository"
)

var periodPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])-\d{4}$`)

// BusinessService defines payroll and audit-log read operations.
type BusinessService interface {
	// Upload inserts a batch of payments atomically.
	Upload(ctx context.Context, in []PaymentInput) error
	// ChangeSalary sets the salary of one employee for one period.
	ChangeSalary(ctx context.Context, in PaymentInput) error
	// Payroll returns the principal's payslips, optionally for a single period.
	Payroll(ctx context.Context, p model.Principal, period string) ([]Payslip, error)
	// Events returns the security event log.
	Events(ctx context.Context) ([]model.SecurityEvent, error)
}

// PaymentInput is a payment as submitted by an accountant.
type PaymentInput struct {
	Employee string
	Period   string
	Salary   int64
}

// Payslip is a payment joined with the employee's name.
type Payslip struct {
	Name     string
	Lastname string
	Period   string
	Salary   int64
}

// EventLister reads the security event log.
type EventLister interface {
	List(ctx context.Context) ([]model.SecurityEvent, error)
}

type BusinessServiceImpl struct {
	accounts repository.AccountRepository
	payments repository.PaymentRepository
	events   EventLister
	maxBatch int
}

// NewBusinessService constructs BusinessService with batch limits.
func NewBusinessService(accounts repository.AccountRepository, payments repository.PaymentRepository, events EventLister, maxBatch int) *BusinessServiceImpl {
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &BusinessServiceImpl{accounts: accounts, payments: payments, events: events, maxBatch: maxBatch}
}

// ValidPeriod reports whether s is "MM-YYYY".
func ValidPeriod(s string) bool { return periodPattern.MatchString(s) }

// Upload validates every payment, resolves employees and inserts the batch.
// Validation rules:
// - period is MM-YYYY, salary >= 0
// - every employee is registered
// - no (employee, period) pair repeats within the batch
func (s *BusinessServiceImpl) Upload(ctx context.Context, in []PaymentInput) error {
	if len(in) == 0 {
		return nil
	}
	if len(in) > s.maxBatch {
		return fmt.Errorf("%w: batch too large (%d > %d)", errs.ErrValidation, len(in), s.maxBatch)
	}

	seen := make(map[string]struct{}, len(in))
	for i := range in {
		in[i].Employee = NormalizeEmail(in[i].Employee)
		if err := validatePayment(in[i]); err != nil {
			return fmt.Errorf("payment[%d]: %w", i, err)
		}
		key := in[i].Employee + "|" + in[i].Period
		if _, dup := seen[key]; dup {
			return fmt.Errorf("payment[%d] %s %s: %w", i, in[i].Employee, in[i].Period, errs.ErrDuplicatePeriod)
		}
		seen[key] = struct{}{}
	}

	ids := map[string]uuid.UUID{}
	var missing []string
	for _, p := range in {
		if _, ok := ids[p.Employee]; ok || slices.Contains(missing, p.Employee) {
			continue
		}
		acc, err := s.accounts.GetByEmail(ctx, p.Employee)
		switch {
		case errors.Is(err, errs.ErrNotFound):
			missing = append(missing, p.Employee)
		case err != nil:
			return err
		default:
			ids[p.Employee] = acc.ID
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", errs.ErrUnknownEmployee, strings.Join(missing, ", "))
	}

	batch := make([]model.Payment, 0, len(in))
	for _, p := range in {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		batch = append(batch, model.Payment{ID: id, AccountID: ids[p.Employee], Employee: p.Employee, Period: p.Period, Salary: p.Salary})
	}
	return s.payments.InsertBatch(ctx, batch)
}

// ChangeSalary upserts a single payment.
func (s *BusinessServiceImpl) ChangeSalary(ctx context.Context, in PaymentInput) error {
	in.Employee = NormalizeEmail(in.Employee)
	if err := validatePayment(in); err != nil {
		return err
	}
	acc, err := s.accounts.GetByEmail(ctx, in.Employee)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrAccountNotFound
		}
		return err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	return s.payments.Upsert(ctx, model.Payment{ID: id, AccountID: acc.ID, Employee: acc.Email, Period: in.Period, Salary: in.Salary})
}

// Payroll lists the principal's payments newest first.
func (s *BusinessServiceImpl) Payroll(ctx context.Context, p model.Principal, period string) ([]Payslip, error) {
	if period != "" && !ValidPeriod(period) {
		return nil, fmt.Errorf("%w: period must be MM-YYYY", errs.ErrInvalidPayment)
	}
	acc, err := s.accounts.GetByEmail(ctx, NormalizeEmail(p.Email))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrAccountNotFound
		}
		return nil, err
	}
	ps, err := s.payments.ListByAccount(ctx, acc.ID, period)
	if err != nil {
		return nil, err
	}
	out := make([]Payslip, 0, len(ps))
	for _, pm := range ps {
		out = append(out, Payslip{Name: acc.Name, Lastname: acc.Lastname, Period: pm.Period, Salary: pm.Salary})
	}
	return out, nil
}

// Events returns the full security event log.
func (s *BusinessServiceImpl) Events(ctx context.Context) ([]model.SecurityEvent, error) {
	return s.events.List(ctx)
}

func validatePayment(p PaymentInput) error {
	if p.Employee == "" {
		return fmt.Errorf("%w: employee is required", errs.ErrInvalidPayment)
	}
	if !ValidPeriod(p.Period) {
		return fmt.Errorf("%w: period must be MM-YYYY", errs.ErrInvalidPayment)
	}
	if p.Salary < 0 {
		return fmt.Errorf("%w: salary must be non negative", errs.ErrInvalidPayment)
	}
	return nil
}
