package service

import (
	"pin-ledger/internal/core/domain"
)

// ValidateAccountID accepts 1..maxLen characters of [A-Za-z0-9_.-].
// Ids are case sensitive and never normalized.
func ValidateAccountID(id string, maxLen int) error {
	if id == "" || len(id) > maxLen {
		return domain.ErrInvalidAccountID
	}
	for i := 0; i < len(id); i++ {
		if !isIDChar(id[i]) {
			return domain.ErrInvalidAccountID
		}
	}
	return nil
}

// ValidatePin accepts exactly length ASCII digits.
func ValidatePin(pin string, length int) error {
	if len(pin) != length {
		return domain.ErrInvalidPin
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return domain.ErrInvalidPin
		}
	}
	return nil
}

func isIDChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '.', c == '-':
		return true
	}
	return false
}
