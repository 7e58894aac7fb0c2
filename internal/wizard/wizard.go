// Package wizard implements the multi-step bond creation form: an ordered set
// of steps, validation-gated forward movement, and a summary panel that
// reveals one section per completed step.
package wizard

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondwizard/internal/bond"
	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// Step is one page of the wizard and the fields it must validate before the
// user may advance.
type Step struct {
	Name   string         `json:"name"`
	Fields []domain.Field `json:"fields"`
}

const (
	StepSetup         = "Setup product"
	StepCollateral    = "Choose collateral"
	StepConvertible   = "Set convertibility"
	StepConfirmCreate = "Confirm creation"
)

// Steps returns the step sequence for a variant: three steps for simple
// bonds, four for convertible bonds.
func Steps(v domain.Variant) []Step {
	steps := []Step{
		{Name: StepSetup, Fields: []domain.Field{
			domain.FieldIssuerName,
			domain.FieldAmountOfBonds,
			domain.FieldBorrowToken,
			domain.FieldMaturityDate,
		}},
		{Name: StepCollateral, Fields: []domain.Field{
			domain.FieldCollateralToken,
			domain.FieldAmountOfCollateral,
		}},
	}
	if v == domain.VariantConvertible {
		steps = append(steps, Step{Name: StepConvertible, Fields: []domain.Field{
			domain.FieldAmountOfConvertible,
		}})
	}
	return append(steps, Step{Name: StepConfirmCreate})
}

// Option configures a Wizard.
type Option func(*Wizard)

// WithClock overrides the time source used by maturity validation.
func WithClock(now func() time.Time) Option {
	return func(w *Wizard) { w.now = now }
}

// WithMaxMaturityYears overrides the maturity horizon.
func WithMaxMaturityYears(years int) Option {
	return func(w *Wizard) { w.maxYears = years }
}

// Wizard holds the form state of one bond creation session. It is not safe
// for concurrent use; callers serialise access.
type Wizard struct {
	variant  domain.Variant
	steps    []Step
	current  int
	form     domain.FormState
	inputs   bond.Inputs
	balance  *decimal.Decimal
	summary  bond.Summary
	now      func() time.Time
	maxYears int
}

// New starts a wizard for variant at step 0.
func New(v domain.Variant, opts ...Option) (*Wizard, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("wizard: unknown variant %q", v)
	}
	w := &Wizard{
		variant:  v,
		steps:    Steps(v),
		form:     domain.FormState{},
		now:      time.Now,
		maxYears: bond.DefaultMaxMaturityYears,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.recompute()
	return w, nil
}

// Variant returns the product variant.
func (w *Wizard) Variant() domain.Variant { return w.variant }

// Current returns the index of the active step.
func (w *Wizard) Current() int { return w.current }

// StepCount returns N.
func (w *Wizard) StepCount() int { return len(w.steps) }

// Step returns the active step.
func (w *Wizard) Step() Step { return w.steps[w.current] }

// IsFinal reports whether the wizard is on the confirmation step, where the
// transaction sequencer takes over.
func (w *Wizard) IsFinal() bool { return w.current == len(w.steps)-1 }

// Form returns a copy of the current form state.
func (w *Wizard) Form() domain.FormState { return w.form.Clone() }

// Inputs returns the external values last supplied.
func (w *Wizard) Inputs() bond.Inputs { return w.inputs }

// Set stores a raw field value and recomputes the summary.
func (w *Wizard) Set(f domain.Field, value string) error {
	if err := w.accepts(f); err != nil {
		return err
	}
	w.form[f] = value
	w.recompute()
	return nil
}

// SetAll stores a batch of raw values. Every key is checked first, so a
// rejected batch leaves the form untouched; the failures come back as
// bond.FieldErrors ordered by field name.
func (w *Wizard) SetAll(values map[domain.Field]string) error {
	if err := w.CheckFields(values); err != nil {
		return err
	}
	for f, v := range values {
		w.form[f] = v
	}
	w.recompute()
	return nil
}

// CheckFields reports which keys of values this wizard would refuse.
func (w *Wizard) CheckFields(values map[domain.Field]string) error {
	var errs bond.FieldErrors
	for f := range values {
		if err := w.accepts(f); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return errs
}

func (w *Wizard) accepts(f domain.Field) *domain.ValidationError {
	if !domain.IsKnownField(f) {
		return &domain.ValidationError{Field: f, Reason: "unknown field"}
	}
	if f == domain.FieldAmountOfConvertible && w.variant != domain.VariantConvertible {
		return &domain.ValidationError{Field: f, Reason: "not used by simple bonds"}
	}
	return nil
}

// SetInputs supplies token metadata and the collateral quote.
func (w *Wizard) SetInputs(in bond.Inputs) {
	w.inputs = in
	w.recompute()
}

// SetCollateralBalance supplies the wallet balance of the collateral token;
// nil marks it as not loaded.
func (w *Wizard) SetCollateralBalance(balance *decimal.Decimal) {
	w.balance = balance
}

// Env returns the validation environment as of now.
func (w *Wizard) Env() bond.Env {
	return bond.Env{
		Now:               w.now(),
		MaxMaturityYears:  w.maxYears,
		CollateralBalance: w.balance,
	}
}

// ValidateStep checks the fields of the active step.
func (w *Wizard) ValidateStep() error {
	return bond.Check(w.steps[w.current].Fields, w.form, w.Env())
}

// Next advances one step when the active step validates. On failure the step
// index is left unchanged and the validation error is returned.
func (w *Wizard) Next() error {
	if w.IsFinal() {
		return fmt.Errorf("wizard: already on final step: %w", domain.ErrStepLocked)
	}
	if err := w.ValidateStep(); err != nil {
		return err
	}
	w.current++
	w.recompute()
	return nil
}

// Back moves one step back. It is always allowed and a no-op on step 0.
func (w *Wizard) Back() {
	if w.current > 0 {
		w.current--
	}
	w.recompute()
}

// ValidateForSubmit runs the full pre-submission schema check.
func (w *Wizard) ValidateForSubmit() error {
	return bond.ValidateForSubmit(w.variant, w.form, w.Env())
}

func (w *Wizard) recompute() {
	w.summary = bond.Summarize(w.variant, w.form, w.inputs)
}
