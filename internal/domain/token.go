package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// TokenMeta is the ERC-20 metadata the wizard needs for display and unit
// conversion.
type TokenMeta struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// Quote is a best-effort USD price. A zero-value Quote is unavailable.
type Quote struct {
	USD       decimal.Decimal
	Available bool
	At        time.Time
}

// QuoteOf builds an available quote.
func QuoteOf(usd decimal.Decimal) Quote {
	return Quote{USD: usd, Available: true}
}

// TokenMetadataSource resolves token metadata; it returns ErrDataUnavailable
// while metadata cannot be loaded.
type TokenMetadataSource interface {
	TokenMeta(ctx context.Context, token common.Address) (TokenMeta, error)
}

// PriceSource resolves USD quotes for tokens.
type PriceSource interface {
	Quote(ctx context.Context, token common.Address) (Quote, error)
}

// BalanceSource reads token balances of a wallet.
type BalanceSource interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// TxHandle is a submitted transaction awaiting inclusion.
type TxHandle interface {
	Hash() common.Hash
	// Wait blocks until the receipt is available or ctx ends. A reverted
	// receipt is reported as a *TxError of kind TxReverted.
	Wait(ctx context.Context) (*types.Receipt, error)
}

// Wallet is the provider used to submit bond transactions. Submission errors
// that represent a declined request are reported as *TxError of kind
// TxRejected.
type Wallet interface {
	BalanceSource
	Address() common.Address
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (TxHandle, error)
	CreateBond(ctx context.Context, params BondParams) (TxHandle, error)
	BondAction(ctx context.Context, bond common.Address, action BondAction, amount *big.Int) (TxHandle, error)
}
