package dto

import (
	"errors"
	"regexp"

	"pin-ledger/internal/core/domain"
	"pin-ledger/pkg/apperror"
	"pin-ledger/pkg/money"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	accountIDRe = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
	pinDigitsRe = regexp.MustCompile(`^[0-9]+$`)
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("account_id", validateAccountID)
		_ = v.RegisterValidation("pin_digits", validatePinDigits)
	}
}

// validateAccountID allows alphanumeric, underscore, dash, and dot. Length
// is enforced by the ledger, which knows the configured limit.
func validateAccountID(fl validator.FieldLevel) bool {
	return accountIDRe.MatchString(fl.Field().String())
}

// validatePinDigits allows ASCII digits only.
func validatePinDigits(fl validator.FieldLevel) bool {
	return pinDigitsRe.MatchString(fl.Field().String())
}

// BindError converts a request binding failure into the AppError the client
// sees. Account id and PIN rule violations map to their ledger error kinds,
// malformed amounts to an invalid amount.
func BindError(err error) *apperror.AppError {
	if errors.Is(err, money.ErrMalformed) || errors.Is(err, money.ErrPrecision) || errors.Is(err, money.ErrOverflow) {
		return apperror.ErrInvalidAmount()
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Tag() {
		case "account_id":
			return apperror.FromDomain(domain.ErrInvalidAccountID)
		case "pin_digits":
			return apperror.FromDomain(domain.ErrInvalidPin)
		case "required":
			// A missing id or PIN breaks the same rule as a malformed one.
			switch verrs[0].Field() {
			case "ID":
				return apperror.FromDomain(domain.ErrInvalidAccountID)
			case "Pin":
				return apperror.FromDomain(domain.ErrInvalidPin)
			}
		}
		return apperror.Validation(verrs[0].Field() + " failed " + verrs[0].Tag() + " validation")
	}
	return apperror.Validation("malformed request body")
}
