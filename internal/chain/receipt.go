package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// pendingTx polls for the receipt of a broadcast transaction.
type pendingTx struct {
	hash     common.Hash
	backend  Backend
	interval time.Duration
}

func (p *pendingTx) Hash() common.Hash { return p.hash }

// Wait polls until the receipt appears. There is no deadline beyond ctx.
func (p *pendingTx) Wait(ctx context.Context) (*types.Receipt, error) {
	return WaitReceipt(ctx, p.backend, p.hash, p.interval)
}

// WaitReceipt polls backend for the receipt of hash every interval. A
// receipt with failed status is returned together with a revert *TxError.
func WaitReceipt(ctx context.Context, backend Backend, hash common.Hash, interval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, &domain.TxError{
					Kind:    domain.TxReverted,
					Message: fmt.Sprintf("transaction %s reverted", hash.Hex()),
				}
			}
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("chain: fetch receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
