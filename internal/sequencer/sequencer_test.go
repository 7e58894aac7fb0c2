package sequencer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

var (
	tokenAddr   = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	ownerAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	factoryAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

type mockHandle struct {
	hash    common.Hash
	status  uint64
	err     error
	release chan struct{}
}

func (h *mockHandle) Hash() common.Hash { return h.hash }

func (h *mockHandle) Wait(ctx context.Context) (*types.Receipt, error) {
	if h.release != nil {
		select {
		case <-h.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if h.err != nil {
		return nil, h.err
	}
	return &types.Receipt{Status: h.status, TxHash: h.hash, BlockNumber: big.NewInt(42)}, nil
}

type mockWallet struct {
	mu         sync.Mutex
	allowance  *big.Int
	approveErr error
	approves   int
	handle     *mockHandle
}

func (w *mockWallet) Address() common.Address { return ownerAddr }

func (w *mockWallet) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (w *mockWallet) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	return w.allowance, nil
}

func (w *mockWallet) Approve(context.Context, common.Address, common.Address, *big.Int) (domain.TxHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.approves++
	if w.approveErr != nil {
		return nil, w.approveErr
	}
	return &mockHandle{hash: common.HexToHash("0xaa"), status: types.ReceiptStatusSuccessful}, nil
}

func (w *mockWallet) CreateBond(context.Context, domain.BondParams) (domain.TxHandle, error) {
	return w.handle, nil
}

func (w *mockWallet) BondAction(context.Context, common.Address, domain.BondAction, *big.Int) (domain.TxHandle, error) {
	return w.handle, nil
}

type creator struct {
	calls  int
	handle *mockHandle
	err    error
}

func (c *creator) call(context.Context) (domain.TxHandle, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.handle, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSequence(w *mockWallet, c *creator, check func() error) *Sequencer {
	approval := &Approval{Token: tokenAddr, Owner: ownerAddr, Spender: factoryAddr, Amount: big.NewInt(1_000_000)}
	return New(w, approval, Action{Name: "create", Call: c.call, Check: check}, testLogger())
}

func okHandle() *mockHandle {
	return &mockHandle{hash: common.HexToHash("0xbb"), status: types.ReceiptStatusSuccessful}
}

func TestPrepareSkipsApproveWhenAllowanceSuffices(t *testing.T) {
	testcases := []struct {
		name      string
		allowance int64
		required  bool
		next      string
	}{
		{name: "allowance below amount", allowance: 999_999, required: true, next: StepApprove},
		{name: "allowance equal to amount", allowance: 1_000_000, required: false, next: "create"},
		{name: "allowance above amount", allowance: 5_000_000, required: false, next: "create"},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSequence(&mockWallet{allowance: big.NewInt(tc.allowance)}, &creator{handle: okHandle()}, nil)
			require.NoError(t, s.Prepare(context.Background()))
			require.Equal(t, tc.required, s.Steps()[0].Required)
			require.Equal(t, tc.next, s.Next())
		})
	}
}

func TestRunFullSequence(t *testing.T) {
	w := &mockWallet{allowance: big.NewInt(0)}
	c := &creator{handle: okHandle()}
	s := newSequence(w, c, nil)
	require.NoError(t, s.Prepare(context.Background()))

	var states []State
	s.Observe(func(ev Event) {
		if ev.Step == "create" {
			states = append(states, ev.State)
		}
	})

	_, err := s.Run(context.Background(), "create")
	require.ErrorIs(t, err, domain.ErrStepLocked)
	require.Equal(t, 0, c.calls)

	out, err := s.Run(context.Background(), StepApprove)
	require.NoError(t, err)
	require.Equal(t, OutcomeConfirmed, out.Kind)

	out, err = s.Run(context.Background(), "create")
	require.NoError(t, err)
	require.Equal(t, OutcomeConfirmed, out.Kind)
	require.Equal(t, common.HexToHash("0xbb"), out.Receipt.TxHash)
	require.True(t, s.Done())
	require.Equal(t, []State{StateWalletConfirmPending, StateChainConfirmPending, StateConfirmed}, states)

	_, err = s.Run(context.Background(), "create")
	require.ErrorIs(t, err, domain.ErrStepLocked)
}

func TestUserRejectionReturnsToIdle(t *testing.T) {
	w := &mockWallet{
		allowance:  big.NewInt(0),
		approveErr: &domain.TxError{Kind: domain.TxRejected, Message: "User denied transaction signature"},
	}
	s := newSequence(w, &creator{handle: okHandle()}, nil)
	require.NoError(t, s.Prepare(context.Background()))

	var states []State
	s.Observe(func(ev Event) { states = append(states, ev.State) })

	out, err := s.Run(context.Background(), StepApprove)
	require.NoError(t, err)
	require.Equal(t, OutcomeRejected, out.Kind)
	require.ErrorIs(t, out.Err, domain.ErrUserRejected)
	require.Equal(t, "User denied transaction signature", out.Reason())

	steps := s.Steps()
	require.Equal(t, StateIdle, steps[0].State)
	require.Equal(t, "User denied transaction signature", steps[0].Err)
	require.Equal(t, []State{StateWalletConfirmPending, StateFailed, StateIdle}, states)
	require.False(t, s.Pending())

	_, err = s.Run(context.Background(), "create")
	require.ErrorIs(t, err, domain.ErrStepLocked)

	// retry after the wallet recovers clears the message
	w.approveErr = nil
	out, err = s.Run(context.Background(), StepApprove)
	require.NoError(t, err)
	require.Equal(t, OutcomeConfirmed, out.Kind)
	require.Empty(t, s.Steps()[0].Err)
	require.Equal(t, 2, w.approves)
}

func TestRevertedReceipt(t *testing.T) {
	testcases := []struct {
		name   string
		handle *mockHandle
	}{
		{
			name:   "failed status",
			handle: &mockHandle{hash: common.HexToHash("0xcc"), status: types.ReceiptStatusFailed},
		},
		{
			name: "provider revert error",
			handle: &mockHandle{
				hash: common.HexToHash("0xcc"),
				err:  &domain.TxError{Kind: domain.TxReverted, Message: "execution reverted: maturity too far"},
			},
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSequence(&mockWallet{allowance: big.NewInt(10_000_000)}, &creator{handle: tc.handle}, nil)
			require.NoError(t, s.Prepare(context.Background()))

			out, err := s.Run(context.Background(), "create")
			require.NoError(t, err)
			require.Equal(t, OutcomeRejected, out.Kind)
			require.ErrorIs(t, out.Err, domain.ErrChainReverted)

			create := s.Steps()[1]
			require.Equal(t, StateIdle, create.State)
			require.Equal(t, common.HexToHash("0xcc"), create.TxHash)
			require.NotEmpty(t, create.Err)
		})
	}
}

func TestPlainSubmitErrorIsTreatedAsDecline(t *testing.T) {
	c := &creator{err: errors.New("insufficient funds for gas")}
	s := newSequence(&mockWallet{allowance: big.NewInt(10_000_000)}, c, nil)
	require.NoError(t, s.Prepare(context.Background()))

	out, err := s.Run(context.Background(), "create")
	require.NoError(t, err)
	require.ErrorIs(t, out.Err, domain.ErrUserRejected)
	require.Equal(t, "insufficient funds for gas", s.Steps()[1].Err)
}

func TestPreSubmitCheckBlocksCall(t *testing.T) {
	c := &creator{handle: okHandle()}
	check := func() error { return domain.Invalid(domain.FieldMaturityDate, "must be in the future") }
	s := newSequence(&mockWallet{allowance: big.NewInt(10_000_000)}, c, check)
	require.NoError(t, s.Prepare(context.Background()))

	_, err := s.Run(context.Background(), "create")
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Equal(t, 0, c.calls)
	require.Equal(t, StateIdle, s.Steps()[1].State)
	require.False(t, s.Pending())
}

func TestRunWhileBusy(t *testing.T) {
	handle := okHandle()
	handle.release = make(chan struct{})
	s := newSequence(&mockWallet{allowance: big.NewInt(10_000_000)}, &creator{handle: handle}, nil)
	require.NoError(t, s.Prepare(context.Background()))

	pending := make(chan struct{})
	s.Observe(func(ev Event) {
		if ev.State == StateChainConfirmPending {
			close(pending)
		}
	})

	done := make(chan Outcome)
	go func() {
		out, _ := s.Run(context.Background(), "create")
		done <- out
	}()

	<-pending
	require.True(t, s.Pending())
	_, err := s.Run(context.Background(), "create")
	require.ErrorIs(t, err, domain.ErrSequenceBusy)

	close(handle.release)
	out := <-done
	require.Equal(t, OutcomeConfirmed, out.Kind)
	require.False(t, s.Pending())
}

func TestCancelledContextKeepsBroadcastStep(t *testing.T) {
	handle := okHandle()
	handle.release = make(chan struct{})
	c := &creator{handle: handle}
	s := newSequence(&mockWallet{allowance: big.NewInt(10_000_000)}, c, nil)
	require.NoError(t, s.Prepare(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	s.Observe(func(ev Event) {
		if ev.State == StateChainConfirmPending {
			cancel()
		}
	})

	_, err := s.Run(ctx, "create")
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, domain.ErrTxUnconfirmed)
	require.Equal(t, StateChainConfirmPending, s.Steps()[1].State)
	require.Equal(t, handle.hash, s.Steps()[1].TxHash)
	require.True(t, s.Pending())
	require.False(t, s.InFlight())

	close(handle.release)
	out, err := s.Run(context.Background(), "create")
	require.NoError(t, err)
	require.Equal(t, OutcomeConfirmed, out.Kind)
	require.Equal(t, 1, c.calls)
	require.Equal(t, StateConfirmed, s.Steps()[1].State)
	require.False(t, s.Pending())
}

func TestReceiptFetchErrorResumesWithoutResubmit(t *testing.T) {
	testcases := []struct {
		name   string
		status uint64
		want   OutcomeKind
		state  State
	}{
		{name: "receipt succeeds on retry", status: types.ReceiptStatusSuccessful, want: OutcomeConfirmed, state: StateConfirmed},
		{name: "receipt reverts on retry", status: types.ReceiptStatusFailed, want: OutcomeRejected, state: StateIdle},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			handle := &mockHandle{hash: common.HexToHash("0xcc"), status: tc.status, err: errors.New("dial tcp: connection refused")}
			c := &creator{handle: handle}
			s := newSequence(&mockWallet{allowance: big.NewInt(10_000_000)}, c, nil)
			require.NoError(t, s.Prepare(context.Background()))

			_, err := s.Run(context.Background(), "create")
			require.ErrorIs(t, err, domain.ErrTxUnconfirmed)
			require.Equal(t, StateChainConfirmPending, s.Steps()[1].State)
			require.Equal(t, handle.hash, s.Steps()[1].TxHash)
			require.True(t, s.Pending())

			handle.err = nil
			out, err := s.Run(context.Background(), "create")
			require.NoError(t, err)
			require.Equal(t, tc.want, out.Kind)
			require.Equal(t, 1, c.calls)
			require.Equal(t, tc.state, s.Steps()[1].State)
			require.Equal(t, handle.hash, s.Steps()[1].TxHash)
			require.False(t, s.Pending())
		})
	}
}

func TestUnknownStep(t *testing.T) {
	s := New(&mockWallet{}, nil, Action{Name: "redeem", Call: (&creator{handle: okHandle()}).call}, testLogger())
	require.NoError(t, s.Prepare(context.Background()))
	_, err := s.Run(context.Background(), "mint")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Len(t, s.Steps(), 1)
}
