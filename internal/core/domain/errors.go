package domain

import "errors"

// Ledger error kinds. Every failure returned by the account store or the
// ledger service matches exactly one of these with errors.Is.
var (
	ErrAlreadyExists     = errors.New("account already exists")
	ErrNotFound          = errors.New("account not found")
	ErrWrongPin          = errors.New("wrong pin")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSameAccount       = errors.New("source and destination account are the same")
	ErrInvalidPin        = errors.New("pin does not satisfy policy")
	ErrInvalidAccountID  = errors.New("invalid account id")
	ErrStorageFailure    = errors.New("storage failure")
)

// StorageFailure tags err as ErrStorageFailure unless it already carries a
// ledger error kind.
func StorageFailure(err error) error {
	if err == nil || IsKind(err) {
		return err
	}
	return errors.Join(ErrStorageFailure, err)
}

// IsKind reports whether err matches one of the ledger error kinds.
func IsKind(err error) bool {
	for _, k := range []error{
		ErrAlreadyExists, ErrNotFound, ErrWrongPin, ErrInvalidAmount,
		ErrInsufficientFunds, ErrSameAccount, ErrInvalidPin,
		ErrInvalidAccountID, ErrStorageFailure,
	} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
