package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// TokenReader reads ERC-20 metadata and balances with eth_call.
type TokenReader struct {
	backend Backend
}

// NewTokenReader creates a TokenReader.
func NewTokenReader(backend Backend) *TokenReader {
	return &TokenReader{backend: backend}
}

// TokenMeta returns the symbol and decimals of token. Call failures are
// reported as domain.ErrDataUnavailable.
func (r *TokenReader) TokenMeta(ctx context.Context, token common.Address) (domain.TokenMeta, error) {
	decimals, err := r.decimals(ctx, token)
	if err != nil {
		return domain.TokenMeta{}, fmt.Errorf("chain: decimals of %s: %w: %v", token.Hex(), domain.ErrDataUnavailable, err)
	}
	symbol, err := r.symbol(ctx, token)
	if err != nil {
		return domain.TokenMeta{}, fmt.Errorf("chain: symbol of %s: %w: %v", token.Hex(), domain.ErrDataUnavailable, err)
	}
	return domain.TokenMeta{Address: token, Symbol: symbol, Decimals: decimals}, nil
}

// BalanceOf returns owner's balance of token in base units.
func (r *TokenReader) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return r.uint256(ctx, token, "balanceOf", owner)
}

// Allowance returns the amount spender may move on behalf of owner.
func (r *TokenReader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return r.uint256(ctx, token, "allowance", owner, spender)
}

func (r *TokenReader) uint256(ctx context.Context, token common.Address, method string, args ...any) (*big.Int, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	out, err := call(ctx, r.backend, token, data)
	if err != nil {
		return nil, fmt.Errorf("chain: %s on %s: %w", method, token.Hex(), err)
	}
	vals, err := erc20ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: %s returned %T", method, vals[0])
	}
	return v, nil
}

func (r *TokenReader) decimals(ctx context.Context, token common.Address) (uint8, error) {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	out, err := call(ctx, r.backend, token, data)
	if err != nil {
		return 0, err
	}
	vals, err := erc20ABI.Unpack("decimals", out)
	if err != nil {
		return 0, err
	}
	d, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals returned %T", vals[0])
	}
	return d, nil
}

func (r *TokenReader) symbol(ctx context.Context, token common.Address) (string, error) {
	data, err := erc20ABI.Pack("symbol")
	if err != nil {
		return "", err
	}
	out, err := call(ctx, r.backend, token, data)
	if err != nil {
		return "", err
	}
	if vals, err := erc20ABI.Unpack("symbol", out); err == nil {
		if s, ok := vals[0].(string); ok {
			return s, nil
		}
	}
	vals, err := erc20Bytes32ABI.Unpack("symbol", out)
	if err != nil {
		return "", err
	}
	raw, ok := vals[0].([32]byte)
	if !ok {
		return "", fmt.Errorf("symbol returned %T", vals[0])
	}
	return strings.TrimRight(string(raw[:]), "\x00"), nil
}
