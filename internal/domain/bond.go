package domain

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Variant selects the bond product being created.
type Variant string

const (
	VariantSimple      Variant = "simple"
	VariantConvertible Variant = "convertible"
)

// Valid reports whether v is a known product variant.
func (v Variant) Valid() bool {
	return v == VariantSimple || v == VariantConvertible
}

// Field names a single wizard input.
type Field string

const (
	FieldIssuerName          Field = "issuerName"
	FieldAmountOfBonds       Field = "amountOfBonds"
	FieldBorrowToken         Field = "borrowToken"
	FieldMaturityDate        Field = "maturityDate"
	FieldCollateralToken     Field = "collateralToken"
	FieldAmountOfCollateral  Field = "amountOfCollateral"
	FieldAmountOfConvertible Field = "amountOfConvertible"
)

// KnownFields lists every field the wizard accepts, in form order.
var KnownFields = []Field{
	FieldIssuerName,
	FieldAmountOfBonds,
	FieldBorrowToken,
	FieldMaturityDate,
	FieldCollateralToken,
	FieldAmountOfCollateral,
	FieldAmountOfConvertible,
}

// IsKnownField reports whether f is one of KnownFields.
func IsKnownField(f Field) bool {
	for _, k := range KnownFields {
		if k == f {
			return true
		}
	}
	return false
}

// FormState holds the raw user input of one wizard session, keyed by field.
// Values are kept as typed text so that parse failures surface as validation
// errors rather than being lost at decode time.
type FormState map[Field]string

// Get returns the trimmed value of f.
func (s FormState) Get(f Field) string {
	return strings.TrimSpace(s[f])
}

// Clone returns an independent copy.
func (s FormState) Clone() FormState {
	out := make(FormState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Decimal parses f as a decimal amount.
func (s FormState) Decimal(f Field) (decimal.Decimal, bool) {
	raw := s.Get(f)
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Address parses f as a hex address.
func (s FormState) Address(f Field) (common.Address, bool) {
	raw := s.Get(f)
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// maturityLayouts are the accepted maturity date encodings.
var maturityLayouts = []string{"2006-01-02", time.RFC3339}

// Maturity parses the maturity date field.
func (s FormState) Maturity() (time.Time, bool) {
	raw := s.Get(FieldMaturityDate)
	for _, layout := range maturityLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// BondParams are the on-chain arguments of a bond creation call. Amounts are in
// token base units.
type BondParams struct {
	Name                   string
	Symbol                 string
	Maturity               time.Time
	PaymentToken           common.Address
	CollateralToken        common.Address
	CollateralTokenAmount  *big.Int
	ConvertibleTokenAmount *big.Int
	Bonds                  *big.Int
}

// BondAction is an operation against an existing bond.
type BondAction string

const (
	ActionPay      BondAction = "pay"
	ActionWithdraw BondAction = "withdraw"
	ActionConvert  BondAction = "convert"
	ActionRedeem   BondAction = "redeem"
)

// Valid reports whether a is a supported action.
func (a BondAction) Valid() bool {
	switch a {
	case ActionPay, ActionWithdraw, ActionConvert, ActionRedeem:
		return true
	}
	return false
}

// BondDetail is a bond record as published by the indexer.
type BondDetail struct {
	ID               common.Address
	Name             string
	Symbol           string
	Owner            common.Address
	Type             string
	State            string
	Maturity         time.Time
	PaymentToken     TokenMeta
	CollateralToken  TokenMeta
	CollateralRatio  *big.Int
	ConvertibleRatio *big.Int
	MaxSupply        *big.Int
	CreatedAt        time.Time
}

// IssuanceStatus tracks a submitted bond creation.
type IssuanceStatus string

const (
	IssuancePending   IssuanceStatus = "pending"
	IssuanceConfirmed IssuanceStatus = "confirmed"
	IssuanceFailed    IssuanceStatus = "failed"
)

// Issuance records one bond creation attempt made through the wizard.
type Issuance struct {
	ID        string
	SessionID string
	Owner     string
	Variant   Variant
	Name      string
	Symbol    string
	TxHash    string
	Status    IssuanceStatus
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
