package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const (
	idInsufficientFunds = "InsufficientFundsError"
	idNotFound          = "NotFoundError"
	idUnauthorized      = "UnauthorizedError"
	idDuplicateID       = "DuplicateIdError"
)

var (
	ErrNotFound  = errors.New("ledger account not found")
	ErrNameTaken = errors.New("ledger rejected account name")
)

// Error is an error reply from the ledger or the payment protocol service.
type Error struct {
	StatusCode int    `json:"-"`
	ID         string `json:"id"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("ledger responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("ledger responded with status %d: %s: %s", e.StatusCode, e.ID, e.Message)
}

// Temporary reports whether the failure is on the remote side rather than in the request.
func (e *Error) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// NameTaken reports the ledger's reply to creating an account under an existing name.
func (e *Error) NameTaken() bool {
	return e.StatusCode == http.StatusConflict || e.ID == idDuplicateID
}

// DecodeError reads an error body of a non-2xx response. The body is best effort;
// a reply without a JSON error object still yields an *Error carrying the status.
func DecodeError(resp *http.Response) error {
	e := &Error{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && len(body) > 0 {
		_ = json.Unmarshal(body, e)
	}
	return e
}

func IsInsufficientFunds(err error) bool {
	var le *Error
	return errors.As(err, &le) && le.ID == idInsufficientFunds
}

// countsAsFailure decides which errors open the circuit: transport failures and 5xx replies.
func countsAsFailure(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Temporary()
	}
	return true
}
