package wizard

import (
	"github.com/alanyoungcy/bondwizard/internal/bond"
	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// Item is one labelled row in a summary section.
type Item struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Section groups the summary rows contributed by one step.
type Section struct {
	Step  string `json:"step"`
	Items []Item `json:"items"`
}

// View is the renderable state of the wizard.
type View struct {
	Variant     domain.Variant    `json:"variant"`
	CurrentStep int               `json:"current_step"`
	Steps       []Step            `json:"steps"`
	Final       bool              `json:"final"`
	Form        map[string]string `json:"form"`
	Summary     bond.Summary      `json:"summary"`
	Sections    []Section         `json:"sections"`
}

// View renders the wizard. Sections for steps 0..current are included, so
// advancing only ever adds sections.
func (w *Wizard) View() View {
	form := make(map[string]string, len(w.form))
	for k, v := range w.form {
		form[string(k)] = v
	}
	sections := make([]Section, 0, w.current+1)
	for i := 0; i <= w.current; i++ {
		sections = append(sections, w.section(w.steps[i].Name))
	}
	return View{
		Variant:     w.variant,
		CurrentStep: w.current,
		Steps:       w.steps,
		Final:       w.IsFinal(),
		Form:        form,
		Summary:     w.summary,
		Sections:    sections,
	}
}

func (w *Wizard) value(f domain.Field) string {
	if v := w.form.Get(f); v != "" {
		return v
	}
	return bond.Placeholder
}

func symbolOf(meta *domain.TokenMeta) string {
	if meta == nil || meta.Symbol == "" {
		return bond.Placeholder
	}
	return meta.Symbol
}

func (w *Wizard) section(step string) Section {
	s := w.summary
	switch step {
	case StepSetup:
		return Section{Step: step, Items: []Item{
			{Label: "Issuer", Value: w.value(domain.FieldIssuerName)},
			{Label: "Bond name", Value: s.Name},
			{Label: "Number of bonds", Value: w.value(domain.FieldAmountOfBonds)},
			{Label: "Borrow token", Value: symbolOf(w.inputs.BorrowToken)},
			{Label: "Maturity date", Value: w.value(domain.FieldMaturityDate)},
		}}
	case StepCollateral:
		return Section{Step: step, Items: []Item{
			{Label: "Collateral token", Value: symbolOf(w.inputs.CollateralToken)},
			{Label: "Collateral amount", Value: w.value(domain.FieldAmountOfCollateral)},
			{Label: "Collateral value", Value: s.CollateralValueUSD},
			{Label: "Collateralization ratio", Value: s.CollateralizationRatio},
		}}
	case StepConvertible:
		return Section{Step: step, Items: []Item{
			{Label: "Convertible amount", Value: w.value(domain.FieldAmountOfConvertible)},
			{Label: "Convertible value", Value: s.ConvertibleValueUSD},
			{Label: "Strike price", Value: s.StrikePrice},
		}}
	default:
		return Section{Step: step, Items: []Item{
			{Label: "Bond symbol", Value: s.Symbol},
		}}
	}
}
