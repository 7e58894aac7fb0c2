package bond

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCollateralizationRatio(t *testing.T) {
	testcases := []struct {
		name       string
		collateral string
		bonds      string
		quote      domain.Quote
		want       string
	}{
		{
			name:       "USDC collateral at par",
			collateral: "1000",
			bonds:      "100",
			quote:      domain.QuoteOf(dec("1.0")),
			want:       "1000%",
		},
		{
			name:       "fractional price",
			collateral: "3",
			bonds:      "2",
			quote:      domain.QuoteOf(dec("0.5")),
			want:       "75%",
		},
		{
			name:       "zero bonds is not computable",
			collateral: "1000",
			bonds:      "0",
			quote:      domain.QuoteOf(dec("1")),
			want:       Placeholder,
		},
		{
			name:       "missing quote is not computable",
			collateral: "1000",
			bonds:      "100",
			quote:      domain.Quote{},
			want:       Placeholder,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			got := FormatRatio(CollateralizationRatio(dec(tc.collateral), dec(tc.bonds), tc.quote))
			require.Equal(t, tc.want, got)
			require.NotContains(t, got, "NaN")
			require.NotContains(t, got, "Inf")
		})
	}
}

func TestCollateralizationRatioMatchesFormula(t *testing.T) {
	for _, c := range []struct{ collateral, bonds, price string }{
		{"1000", "100", "1"},
		{"12.5", "7", "1834.22"},
		{"0.000001", "3", "64000"},
	} {
		collateral, bonds, price := dec(c.collateral), dec(c.bonds), dec(c.price)
		got, ok := CollateralizationRatio(collateral, bonds, domain.QuoteOf(price))
		require.True(t, ok)
		want := collateral.Mul(price).Div(bonds).Mul(decimal.NewFromInt(100))
		require.True(t, want.Equal(got), "want %s got %s", want, got)
	}
}

func TestStrikePrice(t *testing.T) {
	strike, ok := StrikePrice(dec("1000"), dec("40"))
	require.True(t, ok)
	require.True(t, strike.Equal(dec("25")))

	_, ok = StrikePrice(dec("1000"), decimal.Zero)
	require.False(t, ok)
}

func TestBondSymbolAndName(t *testing.T) {
	maturity := time.Date(2027, 8, 15, 0, 0, 0, 0, time.UTC)

	require.Equal(t, "UNI-CONVERT-AUG2027-25C-USDC",
		BondSymbol(domain.VariantConvertible, "uni", "usdc", maturity, dec("25"), true))
	require.Equal(t, "UNI-CONVERT-AUG2027-USDC",
		BondSymbol(domain.VariantConvertible, "uni", "usdc", maturity, decimal.Zero, false))
	require.Equal(t, "WETH-SIMPLE-AUG2027-DAI",
		BondSymbol(domain.VariantSimple, "weth", "dai", maturity, dec("25"), true))

	require.Equal(t, "Arbor Convertible Bond 2027-08-15", BondName(" Arbor ", domain.VariantConvertible, maturity))
	require.Equal(t, "Arbor Simple Bond 2027-08-15", BondName("Arbor", domain.VariantSimple, maturity))
}

func TestFormatUSD(t *testing.T) {
	require.Equal(t, "$1,234,567.50", FormatUSD(dec("1234567.5"), true))
	require.Equal(t, "$999.00", FormatUSD(dec("999"), true))
	require.Equal(t, "-$1,000.10", FormatUSD(dec("-1000.1"), true))
	require.Equal(t, Placeholder, FormatUSD(decimal.Zero, false))
}

func TestSummarize(t *testing.T) {
	form := domain.FormState{
		domain.FieldIssuerName:          "Arbor",
		domain.FieldAmountOfBonds:       "100",
		domain.FieldMaturityDate:        "2027-08-15",
		domain.FieldAmountOfCollateral:  "1000",
		domain.FieldAmountOfConvertible: "50",
	}

	t.Run("metadata and quote loaded", func(t *testing.T) {
		s := Summarize(domain.VariantConvertible, form, Inputs{
			CollateralToken: &domain.TokenMeta{Symbol: "usdc", Decimals: 6},
			BorrowToken:     &domain.TokenMeta{Symbol: "dai", Decimals: 18},
			CollateralQuote: domain.QuoteOf(dec("1")),
		})
		require.Equal(t, "Arbor Convertible Bond 2027-08-15", s.Name)
		require.Equal(t, "USDC-CONVERT-AUG2027-2C-DAI", s.Symbol)
		require.Equal(t, "1000%", s.CollateralizationRatio)
		require.Equal(t, "2", s.StrikePrice)
		require.Equal(t, "$1,000.00", s.CollateralValueUSD)
		require.Equal(t, "$50.00", s.ConvertibleValueUSD)
	})

	t.Run("pending external data degrades to placeholders", func(t *testing.T) {
		s := Summarize(domain.VariantSimple, form, Inputs{})
		require.Equal(t, "Arbor Simple Bond 2027-08-15", s.Name)
		require.Equal(t, Placeholder, s.Symbol)
		require.Equal(t, Placeholder, s.CollateralizationRatio)
		require.Equal(t, Placeholder, s.CollateralValueUSD)
		require.Equal(t, Placeholder, s.StrikePrice)
	})
}

func TestBaseUnits(t *testing.T) {
	units, err := ToBaseUnits(dec("1000.5"), 6)
	require.NoError(t, err)
	require.Equal(t, "1000500000", units.String())
	require.True(t, FromBaseUnits(units, 6).Equal(dec("1000.5")))

	_, err = ToBaseUnits(dec("0.0000001"), 6)
	require.Error(t, err)
}
