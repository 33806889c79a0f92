package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyReconciled = errors.New("bank entry already reconciled")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrNoMatchingEntry   = errors.New("no matching bank entry")
	ErrInvalidView       = errors.New("invalid view, expected real or declared")
	ErrInvalidDate       = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidMonth      = errors.New("invalid month, expected YYYY-MM")
	ErrEntryNotFound     = errors.New("journal entry not found")
	ErrInvalidField      = errors.New("invalid journal field")
	ErrInvalidAction     = errors.New("invalid sync action")
)

// AlreadyReconciledError is returned when an operation would touch a bank entry
// that has been pointed against the statement. Its message is shown to the operator as is.
type AlreadyReconciledError struct {
	Date    string
	EntryId string
}

func (e *AlreadyReconciledError) Error() string {
	return fmt.Sprintf("the bank entry of %s (%s) is already reconciled and cannot be changed", e.Date, e.EntryId)
}

func (e *AlreadyReconciledError) Is(target error) bool {
	return target == ErrAlreadyReconciled
}
