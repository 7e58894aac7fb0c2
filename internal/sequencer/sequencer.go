// Package sequencer drives the ordered on-chain steps of a bond operation
// (token approval followed by the creation or action call) through the
// wallet-confirmation and chain-confirmation states.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// State is the lifecycle position of a single step.
type State string

const (
	StateIdle                 State = "idle"
	StateWalletConfirmPending State = "wallet_confirm_pending"
	StateChainConfirmPending  State = "chain_confirm_pending"
	StateConfirmed            State = "confirmed"
	StateFailed               State = "failed"
)

// StepApprove is the name of the optional allowance step.
const StepApprove = "approve"

// Step is the externally visible state of one transaction in the sequence.
// Err holds the raw provider message of the last failure until the step is
// retried.
type Step struct {
	Name     string      `json:"name"`
	Required bool        `json:"required"`
	State    State       `json:"state"`
	TxHash   common.Hash `json:"tx_hash"`
	Err      string      `json:"error,omitempty"`
}

// Call submits a transaction through the wallet.
type Call func(ctx context.Context) (domain.TxHandle, error)

// Action is the final step of a sequence.
type Action struct {
	Name string
	Call Call
	// Check runs immediately before Call; a non-nil error prevents
	// submission.
	Check func() error
}

// Approval describes the ERC-20 allowance the final action needs. Amount is
// already in token base units.
type Approval struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address
	Amount  *big.Int
}

// OutcomeKind tags an Outcome.
type OutcomeKind string

const (
	OutcomeConfirmed OutcomeKind = "confirmed"
	OutcomeRejected  OutcomeKind = "rejected"
)

// Outcome is the result of awaiting one step: either a receipt or the
// reason the transaction did not go through.
type Outcome struct {
	Kind    OutcomeKind
	Receipt *types.Receipt
	// Err is a *domain.TxError when Kind is OutcomeRejected.
	Err error
}

// Reason returns the raw failure message, or "" for a confirmed outcome.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Event is emitted on every state transition.
type Event struct {
	Step   string      `json:"step"`
	State  State       `json:"state"`
	TxHash common.Hash `json:"tx_hash"`
	Err    string      `json:"error,omitempty"`
	At     time.Time   `json:"at"`
}

// Observer receives transition events. Observers are called synchronously
// and must not call back into the sequencer.
type Observer func(Event)

type step struct {
	Step
	call  Call
	check func() error
	// handle is the broadcast transaction while its receipt is unresolved.
	handle domain.TxHandle
}

// Sequencer runs one approval-then-action sequence. It is safe for
// concurrent use; at most one step is in flight at a time.
type Sequencer struct {
	mu        sync.Mutex
	wallet    domain.Wallet
	approval  *Approval
	steps     []*step
	pending   bool
	observers []Observer
	logger    *slog.Logger
}

// New builds a sequence ending in action. When approval is non-nil an
// approve step precedes the action; Prepare may later mark it as not
// required.
func New(wallet domain.Wallet, approval *Approval, action Action, logger *slog.Logger) *Sequencer {
	s := &Sequencer{
		wallet:   wallet,
		approval: approval,
		logger:   logger.With(slog.String("component", "sequencer")),
	}
	if approval != nil {
		s.steps = append(s.steps, &step{
			Step: Step{Name: StepApprove, Required: true, State: StateIdle},
			call: func(ctx context.Context) (domain.TxHandle, error) {
				return wallet.Approve(ctx, approval.Token, approval.Spender, approval.Amount)
			},
		})
	}
	s.steps = append(s.steps, &step{
		Step:  Step{Name: action.Name, Required: true, State: StateIdle},
		call:  action.Call,
		check: action.Check,
	})
	return s
}

// Observe registers an observer for subsequent transitions.
func (s *Sequencer) Observe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Prepare reads the current allowance and skips the approve step when it
// already covers the required amount.
func (s *Sequencer) Prepare(ctx context.Context) error {
	if s.approval == nil {
		return nil
	}
	a := s.approval
	allowance, err := s.wallet.Allowance(ctx, a.Token, a.Owner, a.Spender)
	if err != nil {
		return fmt.Errorf("sequencer: read allowance: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	approve := s.steps[0]
	if approve.State == StateConfirmed {
		return nil
	}
	approve.Required = allowance.Cmp(a.Amount) < 0
	s.logger.DebugContext(ctx, "allowance checked",
		slog.String("token", a.Token.Hex()),
		slog.String("allowance", allowance.String()),
		slog.String("required", a.Amount.String()),
		slog.Bool("approve_required", approve.Required),
	)
	return nil
}

// Steps returns a snapshot of every step in order.
func (s *Sequencer) Steps() []Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Step, len(s.steps))
	for i, st := range s.steps {
		out[i] = st.Step
	}
	return out
}

// Pending reports whether a step is awaiting wallet or chain confirmation,
// including a broadcast transaction whose receipt wait was interrupted.
func (s *Sequencer) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending {
		return true
	}
	for _, st := range s.steps {
		if st.handle != nil {
			return true
		}
	}
	return false
}

// InFlight reports whether a Run call is currently executing.
func (s *Sequencer) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Done reports whether every required step is confirmed.
func (s *Sequencer) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.steps {
		if st.Required && st.State != StateConfirmed {
			return false
		}
	}
	return true
}

// Next returns the name of the first required step that is not yet
// confirmed, or "" when the sequence is done.
func (s *Sequencer) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.steps {
		if st.Required && st.State != StateConfirmed {
			return st.Name
		}
	}
	return ""
}

// Run submits the named step and waits for its outcome. A returned error
// means the step was refused before any wallet call was made (busy, locked,
// failed pre-submit check), the context ended, or the receipt of a broadcast
// transaction could not be fetched. In the last two cases the step stays
// ChainConfirmPending with its hash, the error wraps
// domain.ErrTxUnconfirmed, and running the step again waits on the same
// transaction instead of submitting a new one. Declines and reverts are
// reported through the Outcome, after which the step is Idle again with
// the message retained.
func (s *Sequencer) Run(ctx context.Context, name string) (Outcome, error) {
	st, handle, err := s.begin(name)
	if err != nil {
		return Outcome{}, err
	}

	if handle == nil {
		handle, err = st.call(ctx)
		if err != nil {
			return s.fail(ctx, st, err)
		}
		s.mu.Lock()
		st.handle = handle
		s.mu.Unlock()
		s.transition(st, StateChainConfirmPending, handle.Hash(), "")
	} else {
		s.logger.InfoContext(ctx, "resuming receipt wait",
			slog.String("step", st.Name),
			slog.String("tx_hash", handle.Hash().Hex()),
		)
	}

	receipt, err := handle.Wait(ctx)
	if err == nil && receipt.Status == types.ReceiptStatusFailed {
		err = &domain.TxError{Kind: domain.TxReverted, Message: "execution reverted"}
	}
	if err != nil {
		var txErr *domain.TxError
		if !errors.As(err, &txErr) || ctx.Err() != nil {
			return s.interrupt(ctx, st, handle, err)
		}
		return s.fail(ctx, st, err)
	}

	s.mu.Lock()
	st.handle = nil
	s.mu.Unlock()
	s.transition(st, StateConfirmed, receipt.TxHash, "")
	s.release()
	s.logger.InfoContext(ctx, "step confirmed",
		slog.String("step", st.Name),
		slog.String("tx_hash", receipt.TxHash.Hex()),
		slog.Uint64("block", receipt.BlockNumber.Uint64()),
	)
	return Outcome{Kind: OutcomeConfirmed, Receipt: receipt}, nil
}

// begin performs every refusal check and, on success, marks the sequencer
// busy. A step with a broadcast transaction is returned with its handle and
// keeps its state; any other step moves to WalletConfirmPending.
func (s *Sequencer) begin(name string) (*step, domain.TxHandle, error) {
	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return nil, nil, domain.ErrSequenceBusy
	}
	var target *step
	for _, st := range s.steps {
		if st.Name == name {
			target = st
			break
		}
		if st.Required && st.State != StateConfirmed {
			s.mu.Unlock()
			return nil, nil, fmt.Errorf("sequencer: %s waits on %s: %w", name, st.Name, domain.ErrStepLocked)
		}
	}
	if target == nil {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("sequencer: step %q: %w", name, domain.ErrNotFound)
	}
	if !target.Required || target.State == StateConfirmed {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("sequencer: step %q is not runnable: %w", name, domain.ErrStepLocked)
	}
	if target.handle != nil {
		s.pending = true
		s.mu.Unlock()
		return target, target.handle, nil
	}
	if target.check != nil {
		if err := target.check(); err != nil {
			s.mu.Unlock()
			return nil, nil, err
		}
	}
	s.pending = true
	s.mu.Unlock()

	s.transition(target, StateWalletConfirmPending, common.Hash{}, "")
	return target, nil, nil
}

func (s *Sequencer) fail(ctx context.Context, st *step, err error) (Outcome, error) {
	defer s.release()

	if ctxErr := ctx.Err(); ctxErr != nil {
		s.transition(st, StateIdle, common.Hash{}, "")
		return Outcome{}, ctxErr
	}

	txErr := classify(err)
	s.logger.WarnContext(ctx, "step failed",
		slog.String("step", st.Name),
		slog.String("kind", string(txErr.Kind)),
		slog.String("error", txErr.Message),
	)
	s.mu.Lock()
	hash := st.TxHash
	s.mu.Unlock()
	s.transition(st, StateFailed, hash, txErr.Message)
	s.mu.Lock()
	st.handle = nil
	s.mu.Unlock()
	s.transition(st, StateIdle, hash, txErr.Message)
	return Outcome{Kind: OutcomeRejected, Err: txErr}, nil
}

// interrupt leaves a broadcast step ChainConfirmPending with its hash and
// handle so a later Run resumes the receipt wait.
func (s *Sequencer) interrupt(ctx context.Context, st *step, handle domain.TxHandle, err error) (Outcome, error) {
	defer s.release()
	s.logger.WarnContext(ctx, "receipt wait interrupted",
		slog.String("step", st.Name),
		slog.String("tx_hash", handle.Hash().Hex()),
		slog.String("error", err.Error()),
	)
	return Outcome{}, fmt.Errorf("sequencer: %s tx %s: %w: %w", st.Name, handle.Hash().Hex(), domain.ErrTxUnconfirmed, err)
}

func (s *Sequencer) release() {
	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()
}

func (s *Sequencer) transition(st *step, state State, hash common.Hash, msg string) {
	s.mu.Lock()
	st.State = state
	st.TxHash = hash
	st.Err = msg
	ev := Event{Step: st.Name, State: state, TxHash: hash, Err: msg, At: time.Now().UTC()}
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		o(ev)
	}
}

// classify keeps a provider *TxError as is and treats any other submission
// failure as a decline carrying the raw message.
func classify(err error) *domain.TxError {
	var txErr *domain.TxError
	if errors.As(err, &txErr) {
		return txErr
	}
	return &domain.TxError{Kind: domain.TxRejected, Message: err.Error()}
}
