package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondwizard/internal/bond"
	"github.com/alanyoungcy/bondwizard/internal/domain"
	"github.com/alanyoungcy/bondwizard/internal/notify"
	"github.com/alanyoungcy/bondwizard/internal/sequencer"
	"github.com/alanyoungcy/bondwizard/internal/wizard"
)

// StepCreate is the name of the bond creation step.
const StepCreate = "create"

// bondDecimals is the precision of every bond token minted by the factory.
const bondDecimals = 18

// Notifier delivers issuance outcomes to operators.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// EventLog keeps a replayable per-session event history next to the
// pub/sub fan-out.
type EventLog interface {
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRange(ctx context.Context, stream string, count int64) ([]domain.StreamMessage, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// WizardConfig holds the wizard session settings.
type WizardConfig struct {
	BondFactory      common.Address
	MaxMaturityYears int
	SessionTTL       time.Duration
	LockTTL          time.Duration
}

// SessionView is the JSON shape of a wizard session.
type SessionView struct {
	ID         string           `json:"id"`
	Owner      string           `json:"owner"`
	Wizard     wizard.View      `json:"wizard"`
	Sequence   []sequencer.Step `json:"sequence,omitempty"`
	NextStep   string           `json:"next_step,omitempty"`
	Pending    bool             `json:"pending"`
	IssuanceID string           `json:"issuance_id,omitempty"`
}

// StepResult is the outcome of running one sequence step.
type StepResult struct {
	Session SessionView           `json:"session"`
	Outcome sequencer.OutcomeKind `json:"outcome"`
	Reason  string                `json:"reason,omitempty"`
}

// prepared is a sequence built from a validated form snapshot. The
// pre-submit check validates that same snapshot against the latest
// collateral balance.
type prepared struct {
	seq        *sequencer.Sequencer
	form       domain.FormState
	collateral domain.TokenMeta
	balance    atomic.Pointer[decimal.Decimal]
	issuanceID string
}

type session struct {
	id      string
	owner   common.Address
	mu      sync.Mutex
	wiz     *wizard.Wizard
	prep    *prepared
	last    string
	touched time.Time
}

// WizardService owns the in-process wizard sessions and drives their
// transaction sequences.
type WizardService struct {
	mu       sync.RWMutex
	sessions map[string]*session

	wallet    domain.Wallet
	tokens    domain.TokenMetadataSource
	prices    domain.PriceSource
	issuances domain.IssuanceStore
	audit     domain.AuditStore
	locks     domain.LockManager
	bus       domain.SignalBus
	events    EventLog
	notifier  Notifier
	cfg       WizardConfig
	now       func() time.Time
	logger    *slog.Logger
}

// NewWizardService creates a WizardService. locks, bus, events and notifier
// may be nil.
func NewWizardService(
	wallet domain.Wallet,
	tokens domain.TokenMetadataSource,
	prices domain.PriceSource,
	issuances domain.IssuanceStore,
	audit domain.AuditStore,
	cfg WizardConfig,
	logger *slog.Logger,
) *WizardService {
	if cfg.MaxMaturityYears <= 0 {
		cfg.MaxMaturityYears = bond.DefaultMaxMaturityYears
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &WizardService{
		sessions:  make(map[string]*session),
		wallet:    wallet,
		tokens:    tokens,
		prices:    prices,
		issuances: issuances,
		audit:     audit,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "wizard_service")),
	}
}

// WithLocks guards step runs with a distributed lock per session.
func (s *WizardService) WithLocks(locks domain.LockManager) *WizardService {
	s.locks = locks
	return s
}

// WithEvents publishes sequence transitions on bus and appends them to log.
func (s *WizardService) WithEvents(bus domain.SignalBus, log EventLog) *WizardService {
	s.bus = bus
	s.events = log
	return s
}

// WithNotifier attaches operator notifications.
func (s *WizardService) WithNotifier(n Notifier) *WizardService {
	s.notifier = n
	return s
}

// SequenceChannel is the pub/sub channel of a session's transitions.
func SequenceChannel(sessionID string) string { return "ch:sequence:" + sessionID }

func sequenceStream(sessionID string) string { return "stream:sequence:" + sessionID }

// Create starts a session. owner, when given, must be the wallet address.
func (s *WizardService) Create(ctx context.Context, variant domain.Variant, owner string) (SessionView, error) {
	addr := s.wallet.Address()
	if owner != "" && !strings.EqualFold(owner, addr.Hex()) {
		return SessionView{}, fmt.Errorf("wizard_service: owner %s is not the signing wallet: %w", owner, domain.ErrUnauthorized)
	}
	wiz, err := wizard.New(variant,
		wizard.WithClock(s.now),
		wizard.WithMaxMaturityYears(s.cfg.MaxMaturityYears),
	)
	if err != nil {
		return SessionView{}, fmt.Errorf("wizard_service: %w", domain.Invalid("variant", err.Error()))
	}

	sess := &session{id: uuid.NewString(), owner: addr, wiz: wiz, touched: s.now()}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "wizard session created",
		slog.String("session", sess.id),
		slog.String("variant", string(variant)),
	)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.view(sess), nil
}

// Get returns the current session state.
func (s *WizardService) Get(_ context.Context, id string) (SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.view(sess), nil
}

// SetFields applies raw field values in one batch and reloads the token
// metadata, quote and balance the summary depends on. Editing drops a
// prepared sequence. A batch with any refused key changes nothing.
func (s *WizardService) SetFields(ctx context.Context, id string, values map[domain.Field]string) (SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.wiz.CheckFields(values); err != nil {
		return s.view(sess), err
	}
	if err := s.invalidate(sess); err != nil {
		return s.view(sess), err
	}
	if err := sess.wiz.SetAll(values); err != nil {
		return s.view(sess), err
	}
	s.refreshInputs(ctx, sess)
	return s.view(sess), nil
}

// Next advances when the active step validates. A validation failure is
// returned alongside the unchanged view.
func (s *WizardService) Next(ctx context.Context, id string) (SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	s.refreshInputs(ctx, sess)
	err = sess.wiz.Next()
	return s.view(sess), err
}

// Back moves one step back. Navigation is refused only while a transaction
// is in flight.
func (s *WizardService) Back(_ context.Context, id string) (SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.invalidate(sess); err != nil {
		return s.view(sess), err
	}
	sess.wiz.Back()
	return s.view(sess), nil
}

// Prepare validates the form for submission, builds the approve-then-create
// sequence and checks the current allowance.
func (s *WizardService) Prepare(ctx context.Context, id string) (SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.invalidate(sess); err != nil {
		return s.view(sess), err
	}
	if !sess.wiz.IsFinal() {
		return s.view(sess), fmt.Errorf("wizard_service: prepare before confirmation step: %w", domain.ErrStepLocked)
	}

	s.refreshInputs(ctx, sess)
	if err := sess.wiz.ValidateForSubmit(); err != nil {
		return s.view(sess), err
	}
	in := sess.wiz.Inputs()
	if in.CollateralToken == nil || in.BorrowToken == nil {
		return s.view(sess), fmt.Errorf("wizard_service: token metadata: %w", domain.ErrDataUnavailable)
	}

	form := sess.wiz.Form()
	params, err := s.buildParams(sess.wiz, form, in)
	if err != nil {
		return s.view(sess), err
	}

	p := &prepared{form: form, collateral: *in.CollateralToken}
	p.balance.Store(sess.wiz.Env().CollateralBalance)

	variant := sess.wiz.Variant()
	p.seq = sequencer.New(s.wallet,
		&sequencer.Approval{
			Token:   params.CollateralToken,
			Owner:   sess.owner,
			Spender: s.cfg.BondFactory,
			Amount:  params.CollateralTokenAmount,
		},
		sequencer.Action{
			Name: StepCreate,
			Call: func(ctx context.Context) (domain.TxHandle, error) {
				return s.wallet.CreateBond(ctx, params)
			},
			Check: func() error {
				return bond.ValidateForSubmit(variant, p.form, bond.Env{
					Now:               s.now(),
					MaxMaturityYears:  s.cfg.MaxMaturityYears,
					CollateralBalance: p.balance.Load(),
				})
			},
		},
		s.logger,
	)
	p.seq.Observe(s.observer(sess, p, params))

	if err := p.seq.Prepare(ctx); err != nil {
		return s.view(sess), fmt.Errorf("wizard_service: %w", err)
	}
	sess.prep = p
	return s.view(sess), nil
}

// RunStep submits one step of the prepared sequence and waits for its
// outcome. The session stays readable while the step is in flight. When the
// receipt wait is interrupted the step keeps its hash, and running it again
// resumes the wait without submitting a second transaction.
func (s *WizardService) RunStep(ctx context.Context, id, step string) (StepResult, error) {
	sess, err := s.session(id)
	if err != nil {
		return StepResult{}, err
	}

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "wizard:"+id, s.cfg.LockTTL)
		if err != nil {
			return StepResult{}, fmt.Errorf("wizard_service: lock session: %w", err)
		}
		defer unlock()
	}

	sess.mu.Lock()
	p := sess.prep
	sess.mu.Unlock()
	if p == nil {
		return StepResult{}, fmt.Errorf("wizard_service: sequence not prepared: %w", domain.ErrStepLocked)
	}

	if step == StepCreate {
		p.balance.Store(s.collateralBalance(ctx, p.collateral, sess.owner))
	}

	outcome, err := p.seq.Run(ctx, step)
	if err != nil {
		if step == StepCreate && errors.Is(err, domain.ErrTxUnconfirmed) {
			s.abandon(ctx, sess, p, err)
		}
		return StepResult{}, err
	}
	if step == StepCreate {
		s.recordOutcome(ctx, sess, p, outcome)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return StepResult{Session: s.view(sess), Outcome: outcome.Kind, Reason: outcome.Reason()}, nil
}

// Events returns up to count recorded transitions of a session, oldest
// first.
func (s *WizardService) Events(ctx context.Context, id string, count int64) ([]json.RawMessage, error) {
	if _, err := s.session(id); err != nil {
		return nil, err
	}
	if s.events == nil {
		return []json.RawMessage{}, nil
	}
	msgs, err := s.events.StreamRange(ctx, sequenceStream(id), count)
	if err != nil {
		return nil, fmt.Errorf("wizard_service: events: %w", err)
	}
	out := make([]json.RawMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, json.RawMessage(m.Payload))
	}
	return out, nil
}

// Discard removes a session unless a transaction is in flight.
func (s *WizardService) Discard(ctx context.Context, id string) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	busy := sess.prep != nil && sess.prep.seq.InFlight()
	sess.mu.Unlock()
	if busy {
		return fmt.Errorf("wizard_service: discard %s: %w", id, domain.ErrSequenceBusy)
	}

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	s.logger.InfoContext(ctx, "wizard session discarded", slog.String("session", id))
	return nil
}

// Sweep drops sessions idle for longer than the session TTL and returns how
// many were removed. Sessions with a transaction in flight are kept.
func (s *WizardService) Sweep() int {
	cutoff := s.now().Add(-s.cfg.SessionTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		stale := sess.touched.Before(cutoff) && (sess.prep == nil || !sess.prep.seq.InFlight())
		sess.mu.Unlock()
		if stale {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps idle sessions until ctx ends.
func (s *WizardService) Run(ctx context.Context) error {
	ticker := time.NewTicker(max(s.cfg.SessionTTL/4, time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.InfoContext(ctx, "expired wizard sessions", slog.Int("removed", n))
			}
		}
	}
}

// Count returns the number of live sessions.
func (s *WizardService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Issuance returns one issuance record.
func (s *WizardService) Issuance(ctx context.Context, id string) (domain.Issuance, error) {
	iss, err := s.issuances.GetByID(ctx, id)
	if err != nil {
		return domain.Issuance{}, fmt.Errorf("wizard_service: issuance %s: %w", id, err)
	}
	return iss, nil
}

// Issuances lists the records of an owner, newest first.
func (s *WizardService) Issuances(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Issuance, error) {
	list, err := s.issuances.ListByOwner(ctx, owner, opts)
	if err != nil {
		return nil, fmt.Errorf("wizard_service: list issuances: %w", err)
	}
	return list, nil
}

func (s *WizardService) session(id string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("wizard_service: session %s: %w", id, domain.ErrNotFound)
	}
	sess.mu.Lock()
	sess.touched = s.now()
	sess.mu.Unlock()
	return sess, nil
}

// invalidate drops a prepared sequence before the form changes. Caller
// holds sess.mu.
func (s *WizardService) invalidate(sess *session) error {
	if sess.prep == nil {
		return nil
	}
	if sess.prep.seq.Pending() {
		return fmt.Errorf("wizard_service: session %s: %w", sess.id, domain.ErrSequenceBusy)
	}
	if sess.prep.seq.Done() {
		return fmt.Errorf("wizard_service: session %s bond: %w", sess.id, domain.ErrAlreadyExists)
	}
	sess.prep = nil
	return nil
}

// view renders a session. Caller holds sess.mu.
func (s *WizardService) view(sess *session) SessionView {
	v := SessionView{
		ID:         sess.id,
		Owner:      sess.owner.Hex(),
		Wizard:     sess.wiz.View(),
		IssuanceID: sess.last,
	}
	if sess.prep != nil {
		v.Sequence = sess.prep.seq.Steps()
		v.NextStep = sess.prep.seq.Next()
		v.Pending = sess.prep.seq.Pending()
	}
	return v
}

// refreshInputs reloads the external values for the chosen tokens. Load
// failures leave the value unset, which renders as a placeholder and, for
// the balance, blocks the collateral step. Caller holds sess.mu.
func (s *WizardService) refreshInputs(ctx context.Context, sess *session) {
	form := sess.wiz.Form()
	var (
		in      bond.Inputs
		balance *decimal.Decimal
	)
	if addr, ok := form.Address(domain.FieldBorrowToken); ok {
		in.BorrowToken = s.tokenMeta(ctx, addr)
	}
	if addr, ok := form.Address(domain.FieldCollateralToken); ok {
		in.CollateralToken = s.tokenMeta(ctx, addr)
		if q, err := s.prices.Quote(ctx, addr); err == nil {
			in.CollateralQuote = q
		}
		if in.CollateralToken != nil {
			balance = s.collateralBalance(ctx, *in.CollateralToken, sess.owner)
		}
	}
	sess.wiz.SetInputs(in)
	sess.wiz.SetCollateralBalance(balance)
}

func (s *WizardService) tokenMeta(ctx context.Context, addr common.Address) *domain.TokenMeta {
	meta, err := s.tokens.TokenMeta(ctx, addr)
	if err != nil {
		s.logger.DebugContext(ctx, "token metadata unavailable",
			slog.String("token", addr.Hex()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return &meta
}

func (s *WizardService) collateralBalance(ctx context.Context, token domain.TokenMeta, owner common.Address) *decimal.Decimal {
	raw, err := s.wallet.BalanceOf(ctx, token.Address, owner)
	if err != nil {
		s.logger.WarnContext(ctx, "collateral balance unavailable",
			slog.String("token", token.Address.Hex()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	d := bond.FromBaseUnits(raw, token.Decimals)
	return &d
}

func (s *WizardService) buildParams(wiz *wizard.Wizard, form domain.FormState, in bond.Inputs) (domain.BondParams, error) {
	summary := wiz.View().Summary
	if summary.Symbol == bond.Placeholder || summary.Name == bond.Placeholder {
		return domain.BondParams{}, fmt.Errorf("wizard_service: bond naming: %w", domain.ErrDataUnavailable)
	}
	maturity, _ := form.Maturity()
	bonds, _ := form.Decimal(domain.FieldAmountOfBonds)
	collateral, _ := form.Decimal(domain.FieldAmountOfCollateral)
	convertible := decimal.Zero
	if wiz.Variant() == domain.VariantConvertible {
		convertible, _ = form.Decimal(domain.FieldAmountOfConvertible)
	}

	bondUnits, err := bond.ToBaseUnits(bonds, bondDecimals)
	if err != nil {
		return domain.BondParams{}, domain.Invalid(domain.FieldAmountOfBonds, err.Error())
	}
	collateralUnits, err := bond.ToBaseUnits(collateral, in.CollateralToken.Decimals)
	if err != nil {
		return domain.BondParams{}, domain.Invalid(domain.FieldAmountOfCollateral, err.Error())
	}
	convertibleUnits, err := bond.ToBaseUnits(convertible, in.CollateralToken.Decimals)
	if err != nil {
		return domain.BondParams{}, domain.Invalid(domain.FieldAmountOfConvertible, err.Error())
	}

	return domain.BondParams{
		Name:                   summary.Name,
		Symbol:                 summary.Symbol,
		Maturity:               maturity,
		PaymentToken:           in.BorrowToken.Address,
		CollateralToken:        in.CollateralToken.Address,
		CollateralTokenAmount:  collateralUnits,
		ConvertibleTokenAmount: convertibleUnits,
		Bonds:                  bondUnits,
	}, nil
}

type sequenceEvent struct {
	Session string `json:"session"`
	sequencer.Event
}

// observer publishes every transition and opens the pending issuance record
// once the creation transaction has a hash.
func (s *WizardService) observer(sess *session, p *prepared, params domain.BondParams) sequencer.Observer {
	return func(ev sequencer.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.publish(ctx, sess.id, ev)

		if ev.Step != StepCreate || ev.State != sequencer.StateChainConfirmPending {
			return
		}
		now := s.now().UTC()
		iss := domain.Issuance{
			ID:        uuid.NewString(),
			SessionID: sess.id,
			Owner:     sess.owner.Hex(),
			Variant:   sess.wiz.Variant(),
			Name:      params.Name,
			Symbol:    params.Symbol,
			TxHash:    ev.TxHash.Hex(),
			Status:    domain.IssuancePending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.issuances.Create(ctx, iss); err != nil {
			s.logger.ErrorContext(ctx, "record issuance failed",
				slog.String("session", sess.id),
				slog.String("error", err.Error()),
			)
			return
		}
		sess.mu.Lock()
		p.issuanceID = iss.ID
		sess.last = iss.ID
		sess.mu.Unlock()
	}
}

func (s *WizardService) publish(ctx context.Context, sessionID string, ev sequencer.Event) {
	payload, _ := json.Marshal(sequenceEvent{Session: sessionID, Event: ev})
	if s.bus != nil {
		if err := s.bus.Publish(ctx, SequenceChannel(sessionID), payload); err != nil {
			s.logger.WarnContext(ctx, "publish sequence event failed",
				slog.String("session", sessionID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.events != nil {
		stream := sequenceStream(sessionID)
		if err := s.events.StreamAppend(ctx, stream, payload); err != nil {
			s.logger.WarnContext(ctx, "append sequence event failed",
				slog.String("session", sessionID),
				slog.String("error", err.Error()),
			)
			return
		}
		_ = s.events.Expire(ctx, stream, s.cfg.SessionTTL)
	}
}

// abandon marks the open issuance failed when the creation receipt could not
// be awaited. The record keeps its hash and stays attached to the sequence,
// so a resumed wait can still settle it.
func (s *WizardService) abandon(ctx context.Context, sess *session, p *prepared, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	sess.mu.Lock()
	issID := p.issuanceID
	sess.mu.Unlock()
	if issID == "" {
		return
	}
	var hash string
	for _, st := range p.seq.Steps() {
		if st.Name == StepCreate && st.TxHash != (common.Hash{}) {
			hash = st.TxHash.Hex()
		}
	}
	if err := s.issuances.UpdateStatus(ctx, issID, domain.IssuanceFailed, hash, "abandoned: "+cause.Error()); err != nil {
		s.logger.ErrorContext(ctx, "mark issuance abandoned failed",
			slog.String("issuance", issID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.WarnContext(ctx, "issuance abandoned",
		slog.String("session", sess.id),
		slog.String("issuance", issID),
		slog.String("tx_hash", hash),
	)
}

// recordOutcome closes the issuance record of a creation attempt and tells
// operators about it.
func (s *WizardService) recordOutcome(ctx context.Context, sess *session, p *prepared, outcome sequencer.Outcome) {
	sess.mu.Lock()
	issID := p.issuanceID
	p.issuanceID = ""
	variant := sess.wiz.Variant()
	sess.mu.Unlock()

	var (
		hash   string
		status = domain.IssuanceFailed
		event  = notify.EventBondFailed
		title  = "Bond creation failed"
	)
	for _, st := range p.seq.Steps() {
		if st.Name == StepCreate && st.TxHash != (common.Hash{}) {
			hash = st.TxHash.Hex()
		}
	}
	if outcome.Kind == sequencer.OutcomeConfirmed {
		status, event, title = domain.IssuanceConfirmed, notify.EventBondCreated, "Bond created"
	}

	var err error
	if issID != "" {
		err = s.issuances.UpdateStatus(ctx, issID, status, hash, outcome.Reason())
	} else {
		now := s.now().UTC()
		issID = uuid.NewString()
		err = s.issuances.Create(ctx, domain.Issuance{
			ID:        issID,
			SessionID: sess.id,
			Owner:     sess.owner.Hex(),
			Variant:   variant,
			Status:    status,
			Error:     outcome.Reason(),
			CreatedAt: now,
			UpdatedAt: now,
		})
		sess.mu.Lock()
		sess.last = issID
		sess.mu.Unlock()
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "update issuance failed",
			slog.String("issuance", issID),
			slog.String("error", err.Error()),
		)
	}

	detail := map[string]any{
		"session":  sess.id,
		"issuance": issID,
		"owner":    sess.owner.Hex(),
		"variant":  string(variant),
		"tx_hash":  hash,
	}
	if reason := outcome.Reason(); reason != "" {
		detail["reason"] = reason
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}

	if s.notifier != nil {
		msg := fmt.Sprintf("session %s\nissuance %s", sess.id, issID)
		if hash != "" {
			msg += "\ntx " + hash
		}
		if reason := outcome.Reason(); reason != "" {
			msg += "\nreason: " + reason
		}
		if err := s.notifier.Notify(ctx, event, title, msg); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "bond creation finished",
		slog.String("session", sess.id),
		slog.String("issuance", issID),
		slog.String("status", string(status)),
		slog.String("tx_hash", hash),
	)
}
