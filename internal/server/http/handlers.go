package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/and161185/acme-accounts/internal/convert"
	"github.com/and161185/acme-accounts/internal/errs"
	"github.com/and161185/acme-accounts/internal/service"
)

const maxBody = 1 << 20

type signupRequest struct {
	Name     string `json:"name"`
	Lastname string `json:"lastname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	NewPassword string `json:"new_password"`
}

type paymentRequest struct {
	Employee string `json:"employee"`
	Period   string `json:"period"`
	Salary   int64  `json:"salary"`
}

type roleRequest struct {
	User      string `json:"user"`
	Role      string `json:"role"`
	Operation string `json:"operation"`
}

type accessRequest struct {
	User      string `json:"user"`
	Operation string `json:"operation"`
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body", errs.ErrValidation)
	}
	return nil
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	acc, err := s.auth.Signup(r.Context(), service.SignupRequest{
		Name: req.Name, Lastname: req.Lastname, Email: req.Email, Password: req.Password,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToAccount(acc))
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromCtx(r.Context())
	var req changePasswordRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if err := s.auth.ChangePassword(r.Context(), p, req.NewPassword); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.EmailStatus{Email: p.Email, Status: "The password has been updated successfully"})
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromCtx(r.Context())
	tok, err := s.auth.IssueToken(p)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToToken(tok))
}

// payroll returns a single object when a period is requested and found, a list otherwise.
func (s *Server) payroll(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromCtx(r.Context())
	period := r.URL.Query().Get("period")
	slips, err := s.business.Payroll(r.Context(), p, period)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	out := convert.ToPayslips(slips)
	if period != "" && len(out) == 1 {
		writeJSON(w, http.StatusOK, out[0])
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) uploadPayments(w http.ResponseWriter, r *http.Request) {
	var req []paymentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	in := make([]service.PaymentInput, 0, len(req))
	for _, p := range req {
		in = append(in, service.PaymentInput{Employee: p.Employee, Period: p.Period, Salary: p.Salary})
	}
	if err := s.business.Upload(r.Context(), in); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.Status{Status: "Added successfully!"})
}

func (s *Server) changeSalary(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	err := s.business.ChangeSalary(r.Context(), service.PaymentInput{Employee: req.Employee, Period: req.Period, Salary: req.Salary})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.Status{Status: "Updated successfully!"})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	accs, err := s.admin.ListAccounts(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToAccounts(accs))
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromCtx(r.Context())
	email := service.NormalizeEmail(chi.URLParam(r, "email"))
	if err := s.admin.DeleteAccount(r.Context(), p.Email, email); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.UserStatus{User: email, Status: "Deleted successfully!"})
}

func (s *Server) changeRole(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromCtx(r.Context())
	var req roleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	acc, err := s.admin.UpdateRole(r.Context(), p.Email, service.ChangeRoleRequest{
		Email: req.User, Role: req.Role, Operation: req.Operation,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToAccount(acc))
}

func (s *Server) changeAccess(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromCtx(r.Context())
	var req accessRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	acc, err := s.admin.UpdateAccess(r.Context(), p.Email, service.ChangeAccessRequest{
		Email: req.User, Operation: req.Operation,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	verb := "unlocked"
	if acc.Locked {
		verb = "locked"
	}
	writeJSON(w, http.StatusOK, convert.Status{Status: fmt.Sprintf("User %s %s!", acc.Email, verb)})
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	evs, err := s.business.Events(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToEvents(evs))
}
