package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondwizard/internal/domain"
	"github.com/alanyoungcy/bondwizard/internal/notify"
	"github.com/alanyoungcy/bondwizard/internal/sequencer"
	"github.com/alanyoungcy/bondwizard/internal/wizard"
)

type wizardFixture struct {
	svc       *WizardService
	wallet    *fakeWallet
	issuances *fakeIssuances
	audit     *fakeAudit
	bus       *fakeBus
	locks     *fakeLocks
	notifier  *fakeNotifier
	now       *time.Time
}

func newWizardFixture(t *testing.T) *wizardFixture {
	t.Helper()
	f := &wizardFixture{
		wallet:    newFakeWallet(),
		issuances: newFakeIssuances(),
		audit:     &fakeAudit{},
		bus:       newFakeBus(),
		locks:     newFakeLocks(),
		notifier:  &fakeNotifier{},
	}
	now := testNow
	f.now = &now
	f.wallet.setBalance(usdc, owner, baseUnits(5000, 6))

	f.svc = NewWizardService(f.wallet, newFakeTokens(), fakePrices{usdc: decimal.NewFromInt(1)},
		f.issuances, f.audit,
		WizardConfig{BondFactory: factory, SessionTTL: time.Hour},
		discardLogger(),
	).WithLocks(f.locks).WithEvents(f.bus, f.bus).WithNotifier(f.notifier)
	f.svc.now = func() time.Time { return *f.now }
	return f
}

// walkToConfirm fills every step of a convertible wizard and advances to
// the confirmation step.
func (f *wizardFixture) walkToConfirm(t *testing.T) SessionView {
	t.Helper()
	ctx := t.Context()
	v, err := f.svc.Create(ctx, domain.VariantConvertible, "")
	require.NoError(t, err)

	steps := []map[domain.Field]string{
		{
			domain.FieldIssuerName:    "Arbor",
			domain.FieldAmountOfBonds: "100",
			domain.FieldBorrowToken:   dai.Hex(),
			domain.FieldMaturityDate:  "2027-08-15",
		},
		{
			domain.FieldCollateralToken:    usdc.Hex(),
			domain.FieldAmountOfCollateral: "1000",
		},
		{
			domain.FieldAmountOfConvertible: "50",
		},
	}
	for i, fields := range steps {
		_, err := f.svc.SetFields(ctx, v.ID, fields)
		require.NoError(t, err)
		v, err = f.svc.Next(ctx, v.ID)
		require.NoError(t, err)
		require.Equal(t, i+1, v.Wizard.CurrentStep)
	}
	require.True(t, v.Wizard.Final)
	return v
}

func TestWizardServiceCreate(t *testing.T) {
	f := newWizardFixture(t)
	ctx := t.Context()

	testcases := []struct {
		name    string
		variant domain.Variant
		owner   string
		wantErr error
		steps   int
	}{
		{name: "simple", variant: domain.VariantSimple, steps: 3},
		{name: "convertible with owner", variant: domain.VariantConvertible, owner: owner.Hex(), steps: 4},
		{name: "unknown variant", variant: "perpetual", wantErr: domain.ErrValidation},
		{name: "foreign owner", variant: domain.VariantSimple, owner: dai.Hex(), wantErr: domain.ErrUnauthorized},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := f.svc.Create(ctx, tc.variant, tc.owner)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, v.Wizard.Steps, tc.steps)
			require.Equal(t, owner.Hex(), v.Owner)
			require.Empty(t, v.Sequence)
		})
	}

	_, err := f.svc.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWizardServiceSetFieldsRejectsWholeBatch(t *testing.T) {
	f := newWizardFixture(t)
	ctx := t.Context()
	v, err := f.svc.Create(ctx, domain.VariantSimple, "")
	require.NoError(t, err)

	v, err = f.svc.SetFields(ctx, v.ID, map[domain.Field]string{
		domain.FieldIssuerName:          "Arbor",
		domain.FieldAmountOfBonds:       "100",
		domain.FieldAmountOfConvertible: "10",
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Empty(t, v.Wizard.Form[string(domain.FieldIssuerName)])
	require.Empty(t, v.Wizard.Form[string(domain.FieldAmountOfBonds)])

	v, err = f.svc.Get(ctx, v.ID)
	require.NoError(t, err)
	require.Empty(t, v.Wizard.Form[string(domain.FieldIssuerName)])
}

func TestWizardServiceNextOnFinalStep(t *testing.T) {
	f := newWizardFixture(t)
	v := f.walkToConfirm(t)

	v, err := f.svc.Next(t.Context(), v.ID)
	require.ErrorIs(t, err, domain.ErrStepLocked)
	require.True(t, v.Wizard.Final)
}

func TestWizardServiceNextBlockedByValidation(t *testing.T) {
	f := newWizardFixture(t)
	ctx := t.Context()
	v, err := f.svc.Create(ctx, domain.VariantSimple, "")
	require.NoError(t, err)

	_, err = f.svc.SetFields(ctx, v.ID, map[domain.Field]string{
		domain.FieldIssuerName:    "Arbor",
		domain.FieldAmountOfBonds: "100",
		domain.FieldBorrowToken:   dai.Hex(),
		domain.FieldMaturityDate:  "2020-01-01",
	})
	require.NoError(t, err)

	v, err = f.svc.Next(ctx, v.ID)
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Equal(t, 0, v.Wizard.CurrentStep)

	_, err = f.svc.SetFields(ctx, v.ID, map[domain.Field]string{domain.FieldAmountOfConvertible: "1"})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestWizardServiceCollateralBalanceGatesStep(t *testing.T) {
	f := newWizardFixture(t)
	ctx := t.Context()
	f.wallet.setBalance(usdc, owner, baseUnits(999, 6))

	v, err := f.svc.Create(ctx, domain.VariantSimple, "")
	require.NoError(t, err)
	_, err = f.svc.SetFields(ctx, v.ID, map[domain.Field]string{
		domain.FieldIssuerName:    "Arbor",
		domain.FieldAmountOfBonds: "100",
		domain.FieldBorrowToken:   dai.Hex(),
		domain.FieldMaturityDate:  "2027-08-15",
	})
	require.NoError(t, err)
	_, err = f.svc.Next(ctx, v.ID)
	require.NoError(t, err)

	v, err = f.svc.SetFields(ctx, v.ID, map[domain.Field]string{
		domain.FieldCollateralToken:    usdc.Hex(),
		domain.FieldAmountOfCollateral: "1000",
	})
	require.NoError(t, err)
	require.Equal(t, "1000%", v.Wizard.Summary.CollateralizationRatio)
	require.Equal(t, "USDC-SIMPLE-AUG2027-DAI", v.Wizard.Summary.Symbol)

	_, err = f.svc.Next(ctx, v.ID)
	require.ErrorIs(t, err, domain.ErrValidation)
	require.ErrorContains(t, err, "cannot exceed balance")

	f.wallet.setBalance(usdc, owner, baseUnits(1000, 6))
	v, err = f.svc.Next(ctx, v.ID)
	require.NoError(t, err)
	require.True(t, v.Wizard.Final)
}

func TestWizardServiceFullSequence(t *testing.T) {
	f := newWizardFixture(t)
	ctx := t.Context()
	v := f.walkToConfirm(t)

	_, err := f.svc.RunStep(ctx, v.ID, StepCreate)
	require.ErrorIs(t, err, domain.ErrStepLocked, "nothing prepared yet")

	v, err = f.svc.Prepare(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, v.Sequence, 2)
	require.True(t, v.Sequence[0].Required)
	require.Equal(t, sequencer.StepApprove, v.NextStep)

	_, err = f.svc.RunStep(ctx, v.ID, StepCreate)
	require.ErrorIs(t, err, domain.ErrStepLocked)

	res, err := f.svc.RunStep(ctx, v.ID, sequencer.StepApprove)
	require.NoError(t, err)
	require.Equal(t, sequencer.OutcomeConfirmed, res.Outcome)
	require.Equal(t, StepCreate, res.Session.NextStep)

	res, err = f.svc.RunStep(ctx, v.ID, StepCreate)
	require.NoError(t, err)
	require.Equal(t, sequencer.OutcomeConfirmed, res.Outcome)
	require.Empty(t, res.Session.NextStep)
	require.NotEmpty(t, res.Session.IssuanceID)

	require.Len(t, f.wallet.created, 1)
	p := f.wallet.created[0]
	require.Equal(t, "Arbor Convertible Bond 2027-08-15", p.Name)
	require.Equal(t, "USDC-CONVERT-AUG2027-2C-DAI", p.Symbol)
	require.Equal(t, baseUnits(1000, 6).String(), p.CollateralTokenAmount.String())
	require.Equal(t, baseUnits(50, 6).String(), p.ConvertibleTokenAmount.String())
	require.Equal(t, baseUnits(100, 18).String(), p.Bonds.String())
	require.Equal(t, dai, p.PaymentToken)

	iss, err := f.svc.Issuance(ctx, res.Session.IssuanceID)
	require.NoError(t, err)
	require.Equal(t, domain.IssuanceConfirmed, iss.Status)
	require.Equal(t, res.Session.Sequence[1].TxHash.Hex(), iss.TxHash)

	list, err := f.svc.Issuances(ctx, owner.Hex(), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.Equal(t, []string{notify.EventBondCreated}, f.audit.events())
	require.Equal(t, []string{notify.EventBondCreated}, f.notifier.events)

	// Three transitions per step: wallet, chain, confirmed.
	require.Equal(t, 6, f.bus.count(SequenceChannel(v.ID)))
	events, err := f.svc.Events(ctx, v.ID, 100)
	require.NoError(t, err)
	require.Len(t, events, 6)
	var last struct {
		Session string          `json:"session"`
		Step    string          `json:"step"`
		State   sequencer.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal(events[5], &last))
	require.Equal(t, v.ID, last.Session)
	require.Equal(t, StepCreate, last.Step)
	require.Equal(t, sequencer.StateConfirmed, last.State)

	_, err = f.svc.SetFields(ctx, v.ID, map[domain.Field]string{domain.FieldIssuerName: "Other"})
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestWizardServiceSkipsApprovalWhenAllowanceCovers(t *testing.T) {
	f := newWizardFixture(t)
	f.wallet.allowance = baseUnits(1000, 6)
	v := f.walkToConfirm(t)

	v, err := f.svc.Prepare(t.Context(), v.ID)
	require.NoError(t, err)
	require.False(t, v.Sequence[0].Required)
	require.Equal(t, StepCreate, v.NextStep)
}

func TestWizardServiceRejectionThenRetry(t *testing.T) {
	f := newWizardFixture(t)
	f.wallet.allowance = baseUnits(1000, 6)
	ctx := t.Context()
	v := f.walkToConfirm(t)
	_, err := f.svc.Prepare(ctx, v.ID)
	require.NoError(t, err)

	f.wallet.createErr = &domain.TxError{Kind: domain.TxRejected, Message: "MetaMask Tx Signature: User denied transaction signature."}
	res, err := f.svc.RunStep(ctx, v.ID, StepCreate)
	require.NoError(t, err)
	require.Equal(t, sequencer.OutcomeRejected, res.Outcome)
	require.Equal(t, "MetaMask Tx Signature: User denied transaction signature.", res.Reason)
	require.Equal(t, sequencer.StateIdle, res.Session.Sequence[1].State)
	require.Equal(t, res.Reason, res.Session.Sequence[1].Err)

	failed, err := f.svc.Issuance(ctx, res.Session.IssuanceID)
	require.NoError(t, err)
	require.Equal(t, domain.IssuanceFailed, failed.Status)
	require.Empty(t, failed.TxHash)

	f.wallet.createErr = nil
	res, err = f.svc.RunStep(ctx, v.ID, StepCreate)
	require.NoError(t, err)
	require.Equal(t, sequencer.OutcomeConfirmed, res.Outcome)
	require.NotEqual(t, failed.ID, res.Session.IssuanceID)

	require.Equal(t, []string{notify.EventBondFailed, notify.EventBondCreated}, f.audit.events())
}

func TestWizardServiceRevertKeepsHash(t *testing.T) {
	f := newWizardFixture(t)
	f.wallet.allowance = baseUnits(1000, 6)
	f.wallet.revert = true
	ctx := t.Context()
	v := f.walkToConfirm(t)
	_, err := f.svc.Prepare(ctx, v.ID)
	require.NoError(t, err)

	res, err := f.svc.RunStep(ctx, v.ID, StepCreate)
	require.NoError(t, err)
	require.Equal(t, sequencer.OutcomeRejected, res.Outcome)
	require.Equal(t, "execution reverted", res.Reason)

	iss, err := f.svc.Issuance(ctx, res.Session.IssuanceID)
	require.NoError(t, err)
	require.Equal(t, domain.IssuanceFailed, iss.Status)
	require.NotEmpty(t, iss.TxHash)
	require.Equal(t, "execution reverted", iss.Error)
}

func TestWizardServiceInterruptedReceiptResumes(t *testing.T) {
	f := newWizardFixture(t)
	f.wallet.allowance = baseUnits(1000, 6)
	v := f.walkToConfirm(t)
	_, err := f.svc.Prepare(t.Context(), v.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	var waits atomic.Int32
	f.wallet.wait = func(ctx context.Context) error {
		if waits.Add(1) == 1 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	_, err = f.svc.RunStep(ctx, v.ID, StepCreate)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, domain.ErrTxUnconfirmed)

	v, err = f.svc.Get(t.Context(), v.ID)
	require.NoError(t, err)
	require.Equal(t, sequencer.StateChainConfirmPending, v.Sequence[1].State)
	hash := v.Sequence[1].TxHash.Hex()
	require.NotEqual(t, common.Hash{}.Hex(), hash)
	require.True(t, v.Pending)

	iss, err := f.svc.Issuance(t.Context(), v.IssuanceID)
	require.NoError(t, err)
	require.Equal(t, domain.IssuanceFailed, iss.Status)
	require.Equal(t, hash, iss.TxHash)
	require.True(t, strings.HasPrefix(iss.Error, "abandoned: "))

	_, err = f.svc.Prepare(t.Context(), v.ID)
	require.ErrorIs(t, err, domain.ErrSequenceBusy, "re-preparing would submit a second bond")

	res, err := f.svc.RunStep(t.Context(), v.ID, StepCreate)
	require.NoError(t, err)
	require.Equal(t, sequencer.OutcomeConfirmed, res.Outcome)
	require.Len(t, f.wallet.created, 1)
	require.Equal(t, iss.ID, res.Session.IssuanceID)

	iss, err = f.svc.Issuance(t.Context(), iss.ID)
	require.NoError(t, err)
	require.Equal(t, domain.IssuanceConfirmed, iss.Status)
	require.Equal(t, hash, iss.TxHash)
	require.Empty(t, iss.Error)
}

func TestWizardServicePreSubmitCheck(t *testing.T) {
	f := newWizardFixture(t)
	f.wallet.allowance = baseUnits(1000, 6)
	ctx := t.Context()
	v := f.walkToConfirm(t)
	_, err := f.svc.Prepare(ctx, v.ID)
	require.NoError(t, err)

	f.wallet.setBalance(usdc, owner, baseUnits(10, 6))
	_, err = f.svc.RunStep(ctx, v.ID, StepCreate)
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Empty(t, f.wallet.created)

	v, err = f.svc.Get(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, sequencer.StateIdle, v.Sequence[1].State)
}

func TestWizardServiceLockAndPrepareGuards(t *testing.T) {
	f := newWizardFixture(t)
	ctx := t.Context()

	v, err := f.svc.Create(ctx, domain.VariantSimple, "")
	require.NoError(t, err)
	_, err = f.svc.Prepare(ctx, v.ID)
	require.ErrorIs(t, err, domain.ErrStepLocked)

	v = f.walkToConfirm(t)
	_, err = f.svc.Prepare(ctx, v.ID)
	require.NoError(t, err)

	unlock, err := f.locks.Acquire(ctx, "wizard:"+v.ID, time.Minute)
	require.NoError(t, err)
	_, err = f.svc.RunStep(ctx, v.ID, sequencer.StepApprove)
	require.ErrorIs(t, err, domain.ErrLockHeld)
	unlock()

	// Going back drops the prepared sequence.
	v, err = f.svc.Back(ctx, v.ID)
	require.NoError(t, err)
	require.Empty(t, v.Sequence)
	require.Equal(t, 2, v.Wizard.CurrentStep)
}

func TestWizardServiceDiscardAndSweep(t *testing.T) {
	f := newWizardFixture(t)
	ctx := t.Context()

	a, err := f.svc.Create(ctx, domain.VariantSimple, "")
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, domain.VariantSimple, "")
	require.NoError(t, err)
	require.Equal(t, 2, f.svc.Count())

	require.NoError(t, f.svc.Discard(ctx, a.ID))
	require.ErrorIs(t, f.svc.Discard(ctx, a.ID), domain.ErrNotFound)

	*f.now = testNow.Add(30 * time.Minute)
	require.Zero(t, f.svc.Sweep())
	_, err = f.svc.Get(ctx, b.ID)
	require.NoError(t, err)

	*f.now = testNow.Add(2 * time.Hour)
	require.Equal(t, 1, f.svc.Sweep())
	require.Zero(t, f.svc.Count())
}

func TestWizardViewSectionsGrow(t *testing.T) {
	f := newWizardFixture(t)
	v := f.walkToConfirm(t)
	require.Len(t, v.Wizard.Sections, 4)
	require.Equal(t, wizard.StepConfirmCreate, v.Wizard.Sections[3].Step)
}
