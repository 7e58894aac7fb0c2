// Package bond holds the pure rules of bond creation: derived display values
// (collateralization ratio, strike price, naming) and the field validators
// that gate the wizard.
package bond

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// Placeholder is rendered for any value that cannot be computed yet.
const Placeholder = "-"

var hundred = decimal.NewFromInt(100)

// CollateralizationRatio returns collateral value over bond face value as a
// percentage: amountOfCollateral * price / amountOfBonds * 100. It is not
// computable when amountOfBonds is not positive or the quote is unavailable.
func CollateralizationRatio(amountOfCollateral, amountOfBonds decimal.Decimal, q domain.Quote) (decimal.Decimal, bool) {
	if !q.Available || !amountOfBonds.IsPositive() {
		return decimal.Zero, false
	}
	return amountOfCollateral.Mul(q.USD).Div(amountOfBonds).Mul(hundred), true
}

// CollateralValueUSD values amount of a token at quote q.
func CollateralValueUSD(amount decimal.Decimal, q domain.Quote) (decimal.Decimal, bool) {
	if !q.Available {
		return decimal.Zero, false
	}
	return amount.Mul(q.USD), true
}

// StrikePrice is the face value given up per collateral token received on
// conversion: amountOfBonds / amountOfConvertible.
func StrikePrice(amountOfBonds, amountOfConvertible decimal.Decimal) (decimal.Decimal, bool) {
	if !amountOfConvertible.IsPositive() || !amountOfBonds.IsPositive() {
		return decimal.Zero, false
	}
	return amountOfBonds.Div(amountOfConvertible), true
}

// productTag is the fixed symbol component for each variant.
func productTag(v domain.Variant) string {
	if v == domain.VariantConvertible {
		return "CONVERT"
	}
	return "SIMPLE"
}

// maturityToken renders the maturity as e.g. "AUG2027".
func maturityToken(t time.Time) string {
	return strings.ToUpper(t.UTC().Format("Jan2006"))
}

// BondSymbol joins the symbol components with "-":
// COLLATERAL-TAG-MATURITY[-STRIKEC]-BORROW. The strike suffix is only present
// for convertible bonds with a computable strike.
func BondSymbol(v domain.Variant, collateralSymbol, borrowSymbol string, maturity time.Time, strike decimal.Decimal, strikeOK bool) string {
	parts := []string{
		strings.ToUpper(collateralSymbol),
		productTag(v),
		maturityToken(maturity),
	}
	if v == domain.VariantConvertible && strikeOK {
		parts = append(parts, strike.Round(4).String()+"C")
	}
	parts = append(parts, strings.ToUpper(borrowSymbol))
	return strings.Join(parts, "-")
}

// BondName renders the human-readable bond name.
func BondName(issuer string, v domain.Variant, maturity time.Time) string {
	kind := "Simple"
	if v == domain.VariantConvertible {
		kind = "Convertible"
	}
	return strings.TrimSpace(issuer) + " " + kind + " Bond " + maturity.UTC().Format("2006-01-02")
}

// FormatRatio renders a ratio as "1000%" or the placeholder.
func FormatRatio(d decimal.Decimal, ok bool) string {
	if !ok {
		return Placeholder
	}
	return d.Round(2).String() + "%"
}

// FormatAmount renders a plain decimal or the placeholder.
func FormatAmount(d decimal.Decimal, ok bool) string {
	if !ok {
		return Placeholder
	}
	return d.Round(6).String()
}

// FormatUSD renders "$1,234.56" or the placeholder.
func FormatUSD(d decimal.Decimal, ok bool) string {
	if !ok {
		return Placeholder
	}
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String() + "." + frac
}

// Inputs are the external values the summary depends on. Nil metadata means
// it has not loaded yet.
type Inputs struct {
	CollateralToken *domain.TokenMeta
	BorrowToken     *domain.TokenMeta
	CollateralQuote domain.Quote
}

// Summary is the read-only projection shown next to the wizard. It is
// recomputed from the form on every change and never edited directly.
type Summary struct {
	Name                   string `json:"name"`
	Symbol                 string `json:"symbol"`
	CollateralizationRatio string `json:"collateralization_ratio"`
	StrikePrice            string `json:"strike_price"`
	CollateralValueUSD     string `json:"collateral_value_usd"`
	ConvertibleValueUSD    string `json:"convertible_value_usd"`
}

// Summarize computes the Summary for a form snapshot.
func Summarize(v domain.Variant, form domain.FormState, in Inputs) Summary {
	bonds, bondsOK := form.Decimal(domain.FieldAmountOfBonds)
	collateral, collateralOK := form.Decimal(domain.FieldAmountOfCollateral)
	convertible, convertibleOK := form.Decimal(domain.FieldAmountOfConvertible)
	maturity, maturityOK := form.Maturity()

	s := Summary{
		Name:                   Placeholder,
		Symbol:                 Placeholder,
		CollateralizationRatio: Placeholder,
		StrikePrice:            Placeholder,
		CollateralValueUSD:     Placeholder,
		ConvertibleValueUSD:    Placeholder,
	}

	if issuer := form.Get(domain.FieldIssuerName); issuer != "" && maturityOK {
		s.Name = BondName(issuer, v, maturity)
	}

	strike, strikeOK := decimal.Zero, false
	if v == domain.VariantConvertible && bondsOK && convertibleOK {
		strike, strikeOK = StrikePrice(bonds, convertible)
		s.StrikePrice = FormatAmount(strike, strikeOK)
	}

	if in.CollateralToken != nil && in.BorrowToken != nil && maturityOK {
		s.Symbol = BondSymbol(v, in.CollateralToken.Symbol, in.BorrowToken.Symbol, maturity, strike, strikeOK)
	}

	if collateralOK {
		s.CollateralValueUSD = FormatUSD(CollateralValueUSD(collateral, in.CollateralQuote))
		if bondsOK {
			s.CollateralizationRatio = FormatRatio(CollateralizationRatio(collateral, bonds, in.CollateralQuote))
		}
	}
	if v == domain.VariantConvertible && convertibleOK {
		s.ConvertibleValueUSD = FormatUSD(CollateralValueUSD(convertible, in.CollateralQuote))
	}
	return s
}
