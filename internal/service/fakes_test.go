package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

var (
	usdc     = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	dai      = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	owner    = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	factory  = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	bondAddr = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
	testNow  = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseUnits(whole int64, decimals int) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}

type fakeHandle struct {
	hash    common.Hash
	receipt *types.Receipt
	err     error
	wait    func(ctx context.Context) error
}

func (h *fakeHandle) Hash() common.Hash { return h.hash }

func (h *fakeHandle) Wait(ctx context.Context) (*types.Receipt, error) {
	if h.wait != nil {
		if err := h.wait(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.receipt, h.err
}

type holding struct {
	token, holder common.Address
}

type fakeWallet struct {
	mu        sync.Mutex
	balances  map[holding]*big.Int
	allowance *big.Int
	createErr error
	actionErr error
	revert    bool
	wait      func(ctx context.Context) error
	created   []domain.BondParams
	actions   []domain.BondAction
	approvals int
	nonce     int64
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{balances: map[holding]*big.Int{}, allowance: big.NewInt(0)}
}

func (w *fakeWallet) setBalance(token, holder common.Address, amount *big.Int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[holding{token, holder}] = amount
}

func (w *fakeWallet) Address() common.Address { return owner }

func (w *fakeWallet) BalanceOf(_ context.Context, token, holder common.Address) (*big.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok := w.balances[holding{token, holder}]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (w *fakeWallet) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return new(big.Int).Set(w.allowance), nil
}

func (w *fakeWallet) Approve(_ context.Context, _, _ common.Address, amount *big.Int) (domain.TxHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.approvals++
	w.allowance = new(big.Int).Set(amount)
	return w.handle(), nil
}

func (w *fakeWallet) CreateBond(_ context.Context, p domain.BondParams) (domain.TxHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.createErr != nil {
		return nil, w.createErr
	}
	w.created = append(w.created, p)
	return w.handle(), nil
}

func (w *fakeWallet) BondAction(_ context.Context, _ common.Address, action domain.BondAction, _ *big.Int) (domain.TxHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.actionErr != nil {
		return nil, w.actionErr
	}
	w.actions = append(w.actions, action)
	return w.handle(), nil
}

// handle is called with w.mu held.
func (w *fakeWallet) handle() *fakeHandle {
	w.nonce++
	hash := common.BigToHash(big.NewInt(w.nonce))
	status := types.ReceiptStatusSuccessful
	if w.revert {
		status = types.ReceiptStatusFailed
	}
	return &fakeHandle{
		hash:    hash,
		receipt: &types.Receipt{Status: status, TxHash: hash, BlockNumber: big.NewInt(100 + w.nonce)},
		wait:    w.wait,
	}
}

type fakeTokens struct {
	mu    sync.Mutex
	metas map[common.Address]domain.TokenMeta
	calls int
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{metas: map[common.Address]domain.TokenMeta{
		usdc:     {Address: usdc, Symbol: "USDC", Decimals: 6},
		dai:      {Address: dai, Symbol: "DAI", Decimals: 18},
		bondAddr: {Address: bondAddr, Symbol: "BOND", Decimals: 18},
	}}
}

func (f *fakeTokens) TokenMeta(_ context.Context, token common.Address) (domain.TokenMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	meta, ok := f.metas[token]
	if !ok {
		return domain.TokenMeta{}, domain.ErrDataUnavailable
	}
	return meta, nil
}

type fakePrices map[common.Address]decimal.Decimal

func (f fakePrices) Quote(_ context.Context, token common.Address) (domain.Quote, error) {
	p, ok := f[token]
	if !ok {
		return domain.Quote{}, domain.ErrDataUnavailable
	}
	return domain.QuoteOf(p), nil
}

type fakeIssuances struct {
	mu   sync.Mutex
	byID map[string]domain.Issuance
}

func newFakeIssuances() *fakeIssuances {
	return &fakeIssuances{byID: map[string]domain.Issuance{}}
}

func (f *fakeIssuances) Create(_ context.Context, iss domain.Issuance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[iss.ID]; ok {
		return domain.ErrAlreadyExists
	}
	f.byID[iss.ID] = iss
	return nil
}

func (f *fakeIssuances) UpdateStatus(_ context.Context, id string, status domain.IssuanceStatus, txHash, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	iss, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	iss.Status, iss.Error = status, errMsg
	if txHash != "" {
		iss.TxHash = txHash
	}
	f.byID[id] = iss
	return nil
}

func (f *fakeIssuances) GetByID(_ context.Context, id string) (domain.Issuance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	iss, ok := f.byID[id]
	if !ok {
		return domain.Issuance{}, domain.ErrNotFound
	}
	return iss, nil
}

func (f *fakeIssuances) ListByOwner(_ context.Context, owner string, _ domain.ListOpts) ([]domain.Issuance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Issuance
	for _, iss := range f.byID {
		if strings.EqualFold(iss.Owner, owner) {
			out = append(out, iss)
		}
	}
	return out, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (f *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, domain.AuditEntry{ID: int64(len(f.entries) + 1), Event: event, Detail: detail})
	return nil
}

func (f *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AuditEntry(nil), f.entries...), nil
}

func (f *fakeAudit) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Event)
	}
	return out
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streams   map[string][][]byte
	expiries  map[string]time.Duration
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		published: map[string][][]byte{},
		streams:   map[string][][]byte{},
		expiries:  map[string]time.Duration{},
	}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan domain.Message, error) {
	return nil, fmt.Errorf("fake bus: subscribe not supported")
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

func (b *fakeBus) StreamRange(_ context.Context, stream string, count int64) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.StreamMessage
	for i, p := range b.streams[stream] {
		if int64(i) >= count {
			break
		}
		out = append(out, domain.StreamMessage{ID: fmt.Sprintf("%d-0", i+1), Payload: p})
	}
	return out, nil
}

func (b *fakeBus) Expire(_ context.Context, key string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expiries[key] = ttl
	return nil
}

func (b *fakeBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[channel])
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocks() *fakeLocks { return &fakeLocks{held: map[string]bool{}} }

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}
