package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondwizard/internal/bond"
	"github.com/alanyoungcy/bondwizard/internal/domain"
	"github.com/alanyoungcy/bondwizard/internal/notify"
	"github.com/alanyoungcy/bondwizard/internal/sequencer"
)

// BondIndex reads bond records from the indexer.
type BondIndex interface {
	FetchBonds(ctx context.Context, owner string, first int) ([]domain.BondDetail, error)
	FetchBond(ctx context.Context, id string) (domain.BondDetail, error)
}

// ActionRequest asks for one action against an existing bond. Amount is in
// whole units of the token the action spends.
type ActionRequest struct {
	Bond   string
	Action domain.BondAction
	Amount decimal.Decimal
}

// ActionResult is the final state of an action's sequence.
type ActionResult struct {
	Bond     string                `json:"bond"`
	Action   domain.BondAction     `json:"action"`
	Steps    []sequencer.Step      `json:"steps"`
	Outcome  sequencer.OutcomeKind `json:"outcome"`
	Reason   string                `json:"reason,omitempty"`
	TxHashes []string              `json:"tx_hashes,omitempty"`
}

const maxBondsPerOwner = 100

// ActionService runs pay, withdraw, convert and redeem against bonds the
// indexer knows about. Each request drives its own sequencer to completion:
// pay approves the payment token first, the other actions are a single
// call.
type ActionService struct {
	wallet   domain.Wallet
	index    BondIndex
	tokens   domain.TokenMetadataSource
	audit    domain.AuditStore
	locks    domain.LockManager
	bus      domain.SignalBus
	notifier Notifier
	lockTTL  time.Duration
	logger   *slog.Logger
}

// NewActionService creates an ActionService.
func NewActionService(
	wallet domain.Wallet,
	index BondIndex,
	tokens domain.TokenMetadataSource,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ActionService {
	return &ActionService{
		wallet:  wallet,
		index:   index,
		tokens:  tokens,
		audit:   audit,
		lockTTL: 10 * time.Minute,
		logger:  logger.With(slog.String("component", "action_service")),
	}
}

// WithLocks serialises actions per bond across replicas.
func (s *ActionService) WithLocks(locks domain.LockManager, ttl time.Duration) *ActionService {
	s.locks = locks
	if ttl > 0 {
		s.lockTTL = ttl
	}
	return s
}

// WithEvents publishes action transitions on bus.
func (s *ActionService) WithEvents(bus domain.SignalBus) *ActionService {
	s.bus = bus
	return s
}

// WithNotifier attaches operator notifications.
func (s *ActionService) WithNotifier(n Notifier) *ActionService {
	s.notifier = n
	return s
}

// ActionChannel is the pub/sub channel of a bond's action transitions.
func ActionChannel(bondID string) string { return "ch:action:" + strings.ToLower(bondID) }

// Bonds lists the bonds owned by owner.
func (s *ActionService) Bonds(ctx context.Context, owner string) ([]domain.BondDetail, error) {
	if owner != "" && !common.IsHexAddress(owner) {
		return nil, domain.Invalid("owner", "invalid address")
	}
	bonds, err := s.index.FetchBonds(ctx, strings.ToLower(owner), maxBondsPerOwner)
	if err != nil {
		return nil, fmt.Errorf("action_service: list bonds: %w", err)
	}
	return bonds, nil
}

// Bond returns one bond record.
func (s *ActionService) Bond(ctx context.Context, id string) (domain.BondDetail, error) {
	if !common.IsHexAddress(id) {
		return domain.BondDetail{}, domain.Invalid("bond", "invalid address")
	}
	b, err := s.index.FetchBond(ctx, strings.ToLower(id))
	if err != nil {
		return domain.BondDetail{}, fmt.Errorf("action_service: bond %s: %w", id, err)
	}
	return b, nil
}

// Execute validates the amount against the relevant balance and runs the
// action's sequence. A declined or reverted transaction is reported in the
// result, not as an error.
func (s *ActionService) Execute(ctx context.Context, req ActionRequest) (ActionResult, error) {
	if !req.Action.Valid() {
		return ActionResult{}, domain.Invalid("action", "unknown action")
	}
	b, err := s.Bond(ctx, req.Bond)
	if err != nil {
		return ActionResult{}, err
	}

	owner := s.wallet.Address()
	spend, holder, err := s.spendToken(ctx, b, req.Action, owner)
	if err != nil {
		return ActionResult{}, err
	}
	units, err := bond.ToBaseUnits(req.Amount, spend.Decimals)
	if err != nil {
		return ActionResult{}, domain.Invalid("amount", err.Error())
	}

	balance := func() *decimal.Decimal {
		raw, err := s.wallet.BalanceOf(ctx, spend.Address, holder)
		if err != nil {
			s.logger.WarnContext(ctx, "balance unavailable",
				slog.String("token", spend.Address.Hex()),
				slog.String("error", err.Error()),
			)
			return nil
		}
		d := bond.FromBaseUnits(raw, spend.Decimals)
		return &d
	}
	if err := bond.ValidateActionAmount(req.Amount, balance()); err != nil {
		return ActionResult{}, err
	}

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "bond:"+strings.ToLower(req.Bond), s.lockTTL)
		if err != nil {
			return ActionResult{}, fmt.Errorf("action_service: lock bond: %w", err)
		}
		defer unlock()
	}

	var approval *sequencer.Approval
	if req.Action == domain.ActionPay {
		approval = &sequencer.Approval{Token: spend.Address, Owner: owner, Spender: b.ID, Amount: units}
	}
	seq := sequencer.New(s.wallet, approval, sequencer.Action{
		Name: string(req.Action),
		Call: func(ctx context.Context) (domain.TxHandle, error) {
			return s.wallet.BondAction(ctx, b.ID, req.Action, new(big.Int).Set(units))
		},
		Check: func() error { return bond.ValidateActionAmount(req.Amount, balance()) },
	}, s.logger)
	seq.Observe(s.observer(b.ID))

	if err := seq.Prepare(ctx); err != nil {
		return ActionResult{}, fmt.Errorf("action_service: %w", err)
	}

	outcome := sequencer.Outcome{Kind: sequencer.OutcomeConfirmed}
	for step := seq.Next(); step != ""; step = seq.Next() {
		outcome, err = seq.Run(ctx, step)
		if err != nil {
			return ActionResult{}, err
		}
		if outcome.Kind != sequencer.OutcomeConfirmed {
			break
		}
	}

	res := ActionResult{
		Bond:    b.ID.Hex(),
		Action:  req.Action,
		Steps:   seq.Steps(),
		Outcome: outcome.Kind,
		Reason:  outcome.Reason(),
	}
	for _, st := range res.Steps {
		if st.TxHash != (common.Hash{}) {
			res.TxHashes = append(res.TxHashes, st.TxHash.Hex())
		}
	}
	s.record(ctx, req, res)
	return res, nil
}

// spendToken returns the token an action is measured in and whose balance
// bounds it: the payment token of the owner for pay, the collateral held by
// the bond for withdraw, and the owner's bond tokens for convert and redeem.
func (s *ActionService) spendToken(ctx context.Context, b domain.BondDetail, action domain.BondAction, owner common.Address) (domain.TokenMeta, common.Address, error) {
	var (
		token  common.Address
		holder = owner
	)
	switch action {
	case domain.ActionPay:
		token = b.PaymentToken.Address
	case domain.ActionWithdraw:
		token, holder = b.CollateralToken.Address, b.ID
	default:
		token = b.ID
	}
	meta, err := s.tokens.TokenMeta(ctx, token)
	if err != nil {
		return domain.TokenMeta{}, common.Address{}, fmt.Errorf("action_service: token %s: %w", token.Hex(), err)
	}
	return meta, holder, nil
}

func (s *ActionService) observer(bondID common.Address) sequencer.Observer {
	return func(ev sequencer.Event) {
		if s.bus == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		payload, _ := json.Marshal(struct {
			Bond string `json:"bond"`
			sequencer.Event
		}{Bond: bondID.Hex(), Event: ev})
		if err := s.bus.Publish(ctx, ActionChannel(bondID.Hex()), payload); err != nil {
			s.logger.WarnContext(ctx, "publish action event failed", slog.String("error", err.Error()))
		}
	}
}

func (s *ActionService) record(ctx context.Context, req ActionRequest, res ActionResult) {
	detail := map[string]any{
		"bond":      res.Bond,
		"action":    string(res.Action),
		"amount":    req.Amount.String(),
		"outcome":   string(res.Outcome),
		"tx_hashes": res.TxHashes,
	}
	if res.Reason != "" {
		detail["reason"] = res.Reason
	}
	if err := s.audit.Log(ctx, notify.EventBondAction, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}

	if s.notifier != nil {
		msg := fmt.Sprintf("%s %s on %s: %s", res.Action, req.Amount.String(), res.Bond, res.Outcome)
		if res.Reason != "" {
			msg += "\nreason: " + res.Reason
		}
		if err := s.notifier.Notify(ctx, notify.EventBondAction, "Bond action", msg); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "bond action finished",
		slog.String("bond", res.Bond),
		slog.String("action", string(res.Action)),
		slog.String("outcome", string(res.Outcome)),
	)
}
