// Package convert maps domain types to HTTP response bodies.
package convert

import (
	"fmt"
	"sort"
	"time"

	"github.com/and161185/acme-accounts/internal/model"
	"github.com/and161185/acme-accounts/internal/service"
)

// Account is the public view of an account. The password hash is never exposed.
type Account struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Lastname string   `json:"lastname"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// Status is a one-line confirmation.
type Status struct {
	Status string `json:"status"`
}

// UserStatus confirms an operation on a named user.
type UserStatus struct {
	User   string `json:"user"`
	Status string `json:"status"`
}

// Payslip is a formatted payroll entry.
type Payslip struct {
	Name     string `json:"name"`
	Lastname string `json:"lastname"`
	Period   string `json:"period"`
	Salary   string `json:"salary"`
}

// Event is a security event as listed to auditors.
type Event struct {
	ID      int64  `json:"id"`
	Date    string `json:"date"`
	Action  string `json:"action"`
	Subject string `json:"subject"`
	Object  string `json:"object"`
	Path    string `json:"path"`
}

// ToAccount renders roles as sorted "ROLE_<NAME>".
func ToAccount(a model.Account) Account {
	roles := make([]string, 0, len(a.Roles))
	for _, r := range a.Roles {
		roles = append(roles, "ROLE_"+string(r))
	}
	sort.Strings(roles)
	return Account{ID: a.ID.String(), Name: a.Name, Lastname: a.Lastname, Email: a.Email, Roles: roles}
}

// ToAccounts converts a slice, never returning nil.
func ToAccounts(in []model.Account) []Account {
	out := make([]Account, 0, len(in))
	for _, a := range in {
		out = append(out, ToAccount(a))
	}
	return out
}

// ToPayslip formats the period as "January-2024" and cents as dollars and cents.
func ToPayslip(p service.Payslip) Payslip {
	return Payslip{Name: p.Name, Lastname: p.Lastname, Period: FormatPeriod(p.Period), Salary: FormatSalary(p.Salary)}
}

// ToPayslips converts a slice, never returning nil.
func ToPayslips(in []service.Payslip) []Payslip {
	out := make([]Payslip, 0, len(in))
	for _, p := range in {
		out = append(out, ToPayslip(p))
	}
	return out
}

// FormatPeriod turns "01-2024" into "January-2024"; unparsable input is returned as is.
func FormatPeriod(period string) string {
	t, err := time.Parse("01-2006", period)
	if err != nil {
		return period
	}
	return t.Format("January-2006")
}

// FormatSalary renders cents as "N dollar(s) M cent(s)".
func FormatSalary(cents int64) string {
	return fmt.Sprintf("%d dollar(s) %d cent(s)", cents/100, cents%100)
}

// ToEvent dates events by calendar day.
func ToEvent(e model.SecurityEvent) Event {
	return Event{
		ID:      e.ID,
		Date:    e.Date.UTC().Format(time.DateOnly),
		Action:  string(e.Action),
		Subject: e.Subject,
		Object:  e.Object,
		Path:    e.Path,
	}
}

// ToEvents converts a slice, never returning nil.
func ToEvents(in []model.SecurityEvent) []Event {
	out := make([]Event, 0, len(in))
	for _, e := range in {
		out = append(out, ToEvent(e))
	}
	return out
}

// EmailStatus confirms a change to the caller's own account.
type EmailStatus struct {
	Email  string `json:"email"`
	Status string `json:"status"`
}

// Token is an issued bearer token.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

// ToToken formats the expiry as RFC 3339.
func ToToken(t model.Tokens) Token {
	return Token{AccessToken: t.AccessToken, ExpiresAt: t.ExpiresAt.UTC().Format(time.RFC3339)}
}
