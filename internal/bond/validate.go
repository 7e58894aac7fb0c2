package bond

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

const (
	// DefaultMaxMaturityYears bounds how far out a maturity may be set.
	DefaultMaxMaturityYears = 10

	maxIssuerNameLen = 64
)

// Env is the non-form context the validators read: the clock, the maturity
// horizon, and the wallet balance of the chosen collateral token. A nil
// CollateralBalance means the balance has not loaded.
type Env struct {
	Now               time.Time
	MaxMaturityYears  int
	CollateralBalance *decimal.Decimal
}

func (e Env) maxYears() int {
	if e.MaxMaturityYears <= 0 {
		return DefaultMaxMaturityYears
	}
	return e.MaxMaturityYears
}

// FieldErrors is the set of failures found for a group of fields, in field
// order. It matches domain.ErrValidation under errors.Is.
type FieldErrors []*domain.ValidationError

func (fe FieldErrors) Error() string {
	msgs := make([]string, 0, len(fe))
	for _, e := range fe {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (fe FieldErrors) Unwrap() error { return domain.ErrValidation }

// ByField indexes the failures by field name for inline display.
func (fe FieldErrors) ByField() map[domain.Field]string {
	out := make(map[domain.Field]string, len(fe))
	for _, e := range fe {
		if _, seen := out[e.Field]; !seen {
			out[e.Field] = e.Reason
		}
	}
	return out
}

// FieldsFor lists every field a variant requires before submission.
func FieldsFor(v domain.Variant) []domain.Field {
	fields := []domain.Field{
		domain.FieldIssuerName,
		domain.FieldAmountOfBonds,
		domain.FieldBorrowToken,
		domain.FieldMaturityDate,
		domain.FieldCollateralToken,
		domain.FieldAmountOfCollateral,
	}
	if v == domain.VariantConvertible {
		fields = append(fields, domain.FieldAmountOfConvertible)
	}
	return fields
}

// Check validates fields in order and returns every failure, or nil.
func Check(fields []domain.Field, form domain.FormState, env Env) error {
	var errs FieldErrors
	for _, f := range fields {
		if err := ValidateField(f, form, env); err != nil {
			if ve, ok := err.(*domain.ValidationError); ok {
				errs = append(errs, ve)
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateForSubmit is the schema check run immediately before the creation
// call is issued.
func ValidateForSubmit(v domain.Variant, form domain.FormState, env Env) error {
	return Check(FieldsFor(v), form, env)
}

// ValidateField applies the rules of a single field to the current snapshot.
// It returns nil when the field is valid.
func ValidateField(f domain.Field, form domain.FormState, env Env) error {
	switch f {
	case domain.FieldIssuerName:
		name := form.Get(f)
		if name == "" {
			return domain.Invalid(f, "required")
		}
		if utf8.RuneCountInString(name) > maxIssuerNameLen {
			return domain.Invalid(f, "too long")
		}
		return nil

	case domain.FieldAmountOfBonds:
		return positiveAmount(f, form)

	case domain.FieldBorrowToken:
		return requiredAddress(f, form)

	case domain.FieldMaturityDate:
		return validateMaturity(form, env)

	case domain.FieldCollateralToken:
		if err := requiredAddress(f, form); err != nil {
			return err
		}
		collateral, _ := form.Address(domain.FieldCollateralToken)
		if borrow, ok := form.Address(domain.FieldBorrowToken); ok && borrow == collateral {
			return domain.Invalid(f, "must differ")
		}
		return nil

	case domain.FieldAmountOfCollateral:
		if err := positiveAmount(f, form); err != nil {
			return err
		}
		amount, _ := form.Decimal(f)
		if env.CollateralBalance == nil {
			return domain.Invalid(f, "balance unavailable")
		}
		if amount.GreaterThan(*env.CollateralBalance) {
			return domain.Invalid(f, "cannot exceed balance")
		}
		return nil

	case domain.FieldAmountOfConvertible:
		if err := positiveAmount(f, form); err != nil {
			return err
		}
		convertible, _ := form.Decimal(f)
		if collateral, ok := form.Decimal(domain.FieldAmountOfCollateral); ok && convertible.GreaterThan(collateral) {
			return domain.Invalid(f, "cannot exceed collateral amount")
		}
		return nil
	}
	return domain.Invalid(f, "unknown field")
}

func validateMaturity(form domain.FormState, env Env) error {
	f := domain.FieldMaturityDate
	if form.Get(f) == "" {
		return domain.Invalid(f, "required")
	}
	maturity, ok := form.Maturity()
	if !ok {
		return domain.Invalid(f, "invalid date")
	}
	if !maturity.After(env.Now) {
		return domain.Invalid(f, "must be in the future")
	}
	if years := env.maxYears(); !maturity.Before(env.Now.AddDate(years, 0, 0)) {
		return domain.Invalid(f, fmt.Sprintf("must be within %d years", years))
	}
	return nil
}

func positiveAmount(f domain.Field, form domain.FormState) error {
	if form.Get(f) == "" {
		return domain.Invalid(f, "required")
	}
	d, ok := form.Decimal(f)
	if !ok {
		return domain.Invalid(f, "not a number")
	}
	if !d.IsPositive() {
		return domain.Invalid(f, "must be greater than 0")
	}
	return nil
}

func requiredAddress(f domain.Field, form domain.FormState) error {
	if form.Get(f) == "" {
		return domain.Invalid(f, "required")
	}
	if _, ok := form.Address(f); !ok {
		return domain.Invalid(f, "invalid address")
	}
	return nil
}

// ValidateActionAmount checks an amount for a bond action against the
// holder's balance of the token being spent.
func ValidateActionAmount(amount decimal.Decimal, balance *decimal.Decimal) error {
	const f = domain.Field("amount")
	if !amount.IsPositive() {
		return domain.Invalid(f, "must be greater than 0")
	}
	if balance == nil {
		return domain.Invalid(f, "balance unavailable")
	}
	if amount.GreaterThan(*balance) {
		return domain.Invalid(f, "cannot exceed balance")
	}
	return nil
}
