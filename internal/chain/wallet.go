package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// TxSigner signs transactions for the wallet's chain.
type TxSigner interface {
	Address() common.Address
	ChainID() *big.Int
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// WalletConfig tunes transaction submission.
type WalletConfig struct {
	BondFactory  common.Address
	PollInterval time.Duration
	// GasBufferPct is added on top of the node's gas estimate.
	GasBufferPct uint64
}

// Wallet submits bond transactions from a locally held key. It implements
// domain.Wallet.
type Wallet struct {
	*TokenReader

	backend Backend
	signer  TxSigner
	cfg     WalletConfig
	logger  *slog.Logger

	// nonces are handed out under mu so concurrent sessions never reuse one.
	mu sync.Mutex
}

// NewWallet creates a Wallet.
func NewWallet(backend Backend, signer TxSigner, cfg WalletConfig, logger *slog.Logger) *Wallet {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.GasBufferPct == 0 {
		cfg.GasBufferPct = 20
	}
	return &Wallet{
		TokenReader: NewTokenReader(backend),
		backend:     backend,
		signer:      signer,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "wallet")),
	}
}

// Address returns the issuer address.
func (w *Wallet) Address() common.Address { return w.signer.Address() }

// BondFactory returns the factory address approvals for creation target.
func (w *Wallet) BondFactory() common.Address { return w.cfg.BondFactory }

// Approve grants spender an allowance of amount on token.
func (w *Wallet) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (domain.TxHandle, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack approve: %w", err)
	}
	return w.send(ctx, token, data)
}

// CreateBond calls the bond factory.
func (w *Wallet) CreateBond(ctx context.Context, p domain.BondParams) (domain.TxHandle, error) {
	if w.cfg.BondFactory == (common.Address{}) {
		return nil, errors.New("chain: bond factory address not configured")
	}
	data, err := bondFactoryABI.Pack("createBond",
		p.Name,
		p.Symbol,
		big.NewInt(p.Maturity.Unix()),
		p.PaymentToken,
		p.CollateralToken,
		p.CollateralTokenAmount,
		p.ConvertibleTokenAmount,
		p.Bonds,
	)
	if err != nil {
		return nil, fmt.Errorf("chain: pack createBond: %w", err)
	}
	return w.send(ctx, w.cfg.BondFactory, data)
}

// BondAction calls pay, withdrawExcessCollateral, convert or redeem on a
// bond contract.
func (w *Wallet) BondAction(ctx context.Context, bond common.Address, action domain.BondAction, amount *big.Int) (domain.TxHandle, error) {
	var (
		data []byte
		err  error
	)
	switch action {
	case domain.ActionPay:
		data, err = bondABI.Pack("pay", amount)
	case domain.ActionWithdraw:
		data, err = bondABI.Pack("withdrawExcessCollateral", amount, w.Address())
	case domain.ActionConvert:
		data, err = bondABI.Pack("convert", amount)
	case domain.ActionRedeem:
		data, err = bondABI.Pack("redeem", amount)
	default:
		return nil, fmt.Errorf("chain: unknown bond action %q", action)
	}
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", action, err)
	}
	return w.send(ctx, bond, data)
}

// send builds, signs and broadcasts an EIP-1559 transaction.
func (w *Wallet) send(ctx context.Context, to common.Address, data []byte) (domain.TxHandle, error) {
	from := w.Address()

	gas, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return nil, classify(err)
	}
	gas += gas * w.cfg.GasBufferPct / 100

	tip, err := w.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: gas tip: %w", err)
	}
	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: head: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(baseFee(head), big.NewInt(2)))

	w.mu.Lock()
	defer w.mu.Unlock()

	nonce, err := w.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("chain: nonce: %w", err)
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   w.signer.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      data,
	})
	signed, err := w.signer.SignTx(tx)
	if err != nil {
		return nil, classify(err)
	}
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return nil, classify(err)
	}

	w.logger.InfoContext(ctx, "transaction sent",
		slog.String("to", to.Hex()),
		slog.String("tx_hash", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", gas),
	)
	return &pendingTx{hash: signed.Hash(), backend: w.backend, interval: w.cfg.PollInterval}, nil
}

func baseFee(h *types.Header) *big.Int {
	if h == nil || h.BaseFee == nil {
		return big.NewInt(0)
	}
	return h.BaseFee
}

var rejectionMarkers = []string{"user rejected", "user denied", "request denied", "rejected by user", "signing declined"}

// classify maps provider errors onto *domain.TxError, keeping the raw
// message. Reverts found while estimating gas are reported as reverts.
func classify(err error) error {
	var txErr *domain.TxError
	if errors.As(err, &txErr) {
		return err
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, m := range rejectionMarkers {
		if strings.Contains(lower, m) {
			return &domain.TxError{Kind: domain.TxRejected, Message: msg}
		}
	}
	if strings.Contains(lower, "execution reverted") {
		return &domain.TxError{Kind: domain.TxReverted, Message: msg}
	}
	return &domain.TxError{Kind: domain.TxRejected, Message: msg}
}
