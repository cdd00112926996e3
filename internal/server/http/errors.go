package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/acme-accounts/internal/errs"
)

// errorBody is the payload of every non-2xx response.
type errorBody struct {
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Path      string `json:"path"`
}

type mapping struct {
	err     error
	status  int
	message string // empty means err.Error()
}

// mappings is checked in order with errors.Is.
var mappings = []mapping{
	{errs.ErrAccountLocked, http.StatusUnauthorized, "User account is locked"},
	{errs.ErrInvalidCredential, http.StatusUnauthorized, "Unauthorized!"},
	{errs.ErrAccessDenied, http.StatusForbidden, "Access Denied!"},
	{errs.ErrEmailAlreadyRegistered, http.StatusBadRequest, "User exist!"},
	{errs.ErrInvalidEmail, http.StatusBadRequest, "Email must end with <@acme.com>"},
	{errs.ErrBreachedPassword, http.StatusBadRequest, "The password is in the hacker's database!"},
	{errs.ErrPasswordTooShort, http.StatusBadRequest, "Password length must be 12 chars minimum!"},
	{errs.ErrPasswordUnchanged, http.StatusBadRequest, "The passwords must be different!"},
	{errs.ErrAccountNotFound, http.StatusNotFound, "User not found!"},
	{errs.ErrRoleNotFound, http.StatusNotFound, "Role not found!"},
	{errs.ErrInvalidOperation, http.StatusBadRequest, "Wrong operation"},
	{errs.ErrInvalidRoleCombination, http.StatusBadRequest, "The user cannot combine administrative and business roles!"},
	{errs.ErrCannotRemoveAdministrator, http.StatusBadRequest, "Can't remove ADMINISTRATOR role!"},
	{errs.ErrRoleNotPresent, http.StatusBadRequest, "The user does not have a role!"},
	{errs.ErrLastRole, http.StatusBadRequest, "The user must have at least one role!"},
	{errs.ErrCannotLockAdministrator, http.StatusBadRequest, "Can't lock the ADMINISTRATOR!"},
	{errs.ErrCannotDeleteAdministrator, http.StatusBadRequest, "Can't remove ADMINISTRATOR role!"},
	{errs.ErrInvalidPayment, http.StatusBadRequest, ""},
	{errs.ErrUnknownEmployee, http.StatusBadRequest, ""},
	{errs.ErrDuplicatePeriod, http.StatusBadRequest, ""},
	{errs.ErrValidation, http.StatusBadRequest, ""},
	{errs.ErrNotFound, http.StatusNotFound, "Not found"},
}

// statusOf maps an error to an HTTP status and a client-facing message.
func statusOf(err error) (int, string) {
	for _, m := range mappings {
		if errors.Is(err, m.err) {
			if m.message == "" {
				return m.status, err.Error()
			}
			return m.status, m.message
		}
	}
	return http.StatusInternalServerError, "Internal error"
}

func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status, msg := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeErrorStatus(w, r, status, msg)
}

func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorBody{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   msg,
		Path:      r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
