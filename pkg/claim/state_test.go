package claim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptogift-wallets/giftclaim/pkg/models"
)

func outcomeOf(state models.ClaimState, reason models.FailureReason, recheckable bool) models.ClaimOutcome {
	o := models.ClaimOutcome{State: state, Reason: reason, Recheckable: recheckable, Message: MessageFor(state, reason)}
	if state != models.ClaimFailed || reason == models.ReasonReverted {
		o.TransactionHash = &hashABC
	}
	return o
}

func TestStateMachineHappyPath(t *testing.T) {
	m := NewStateMachine()
	assert.Equal(t, AwaitingInput, m.State())

	require.NoError(t, m.Begin())
	assert.Equal(t, Submitting, m.State())
	require.NoError(t, m.Apply(outcomeOf(models.ClaimSuccess, models.ReasonNone, false)))
	assert.Equal(t, Succeeded, m.State())

	assert.ErrorIs(t, m.Begin(), ErrInvalidTransition)
	assert.ErrorIs(t, m.Dismiss(), ErrInvalidTransition)
	assert.False(t, m.CanRecheck())

	snap := m.Snapshot()
	require.Len(t, snap.History, 2)
	assert.Equal(t, AwaitingInput, snap.History[0].From)
	assert.Equal(t, Succeeded, snap.History[1].To)
}

func TestStateMachineErrorReturnsToInput(t *testing.T) {
	m := NewStateMachine()
	require.NoError(t, m.Begin())
	require.NoError(t, m.Apply(outcomeOf(models.ClaimFailed, models.ReasonUserRejected, false)))
	assert.Equal(t, Errored, m.State())

	snap := m.Snapshot()
	require.NotNil(t, snap.Message)
	assert.NotEmpty(t, snap.Message.NextAction)
	assert.False(t, snap.Recheckable)

	require.NoError(t, m.Dismiss())
	assert.Equal(t, AwaitingInput, m.State())
	require.NoError(t, m.Begin(), "a failed claim may be retried")
}

func TestStateMachineRetryFromError(t *testing.T) {
	m := NewStateMachine()
	require.NoError(t, m.Begin())
	require.NoError(t, m.Apply(outcomeOf(models.ClaimFailed, models.ReasonTransportRetryable, false)))
	require.NoError(t, m.Begin())
	assert.Equal(t, Submitting, m.State())
	assert.Nil(t, m.Snapshot().Message)
}

func TestStateMachinePendingNeverResubmits(t *testing.T) {
	m := NewStateMachine()
	require.NoError(t, m.Begin())
	require.NoError(t, m.Apply(outcomeOf(models.ClaimPendingConfirmation, models.ReasonConfirmationUnknown, true)))
	assert.Equal(t, PendingConfirmation, m.State())

	snap := m.Snapshot()
	assert.True(t, snap.Informational)
	assert.True(t, snap.Recheckable)
	require.NotNil(t, snap.TransactionHash)

	assert.ErrorIs(t, m.Begin(), ErrInvalidTransition)
	require.NoError(t, m.Dismiss())
	assert.Equal(t, AwaitingInput, m.State())
	assert.ErrorIs(t, m.Begin(), ErrInvalidTransition, "a sent transaction is never resubmitted")
	assert.True(t, m.Snapshot().Informational)

	require.NoError(t, m.ApplyRecheck(outcomeOf(models.ClaimSuccess, models.ReasonNone, false)))
	assert.Equal(t, Succeeded, m.State())
}

func TestStateMachineRecheckAmbiguous(t *testing.T) {
	m := NewStateMachine()
	assert.ErrorIs(t, m.ApplyRecheck(outcomeOf(models.ClaimSuccess, models.ReasonNone, false)), ErrInvalidTransition)

	require.NoError(t, m.Begin())
	require.NoError(t, m.Apply(outcomeOf(models.ClaimFailed, models.ReasonAmbiguousFailure, true)))
	assert.True(t, m.CanRecheck())

	require.NoError(t, m.ApplyRecheck(outcomeOf(models.ClaimPendingConfirmation, models.ReasonConfirmationUnknown, true)))
	assert.Equal(t, PendingConfirmation, m.State())
}

func TestStateMachineApplyRequiresSubmission(t *testing.T) {
	m := NewStateMachine()
	assert.ErrorIs(t, m.Apply(outcomeOf(models.ClaimSuccess, models.ReasonNone, false)), ErrInvalidTransition)
}

func TestMessagesAreComplete(t *testing.T) {
	reasons := []models.FailureReason{
		models.ReasonUserRejected,
		models.ReasonInsufficientResources,
		models.ReasonTransportRetryable,
		models.ReasonAmbiguousFailure,
		models.ReasonClaimRejected,
		models.ReasonWalletUnavailable,
		models.ReasonReverted,
		models.ReasonInvalidRequest,
		models.ReasonDropped,
	}
	for _, r := range reasons {
		msg := MessageFor(models.ClaimFailed, r)
		assert.NotEmpty(t, msg.WhatHappened, r)
		assert.NotEmpty(t, msg.Safety, r)
		assert.NotEmpty(t, msg.NextAction, r)
	}
	assert.NotEmpty(t, MessageFor(models.ClaimPendingConfirmation, models.ReasonConfirmationUnknown).NextAction)
	assert.Equal(t, MessageFor(models.ClaimFailed, models.ReasonAmbiguousFailure), MessageFor(models.ClaimFailed, models.ReasonSideEffectFailure))
}

func TestStateMachineDroppedAllowsNewSubmission(t *testing.T) {
	m := NewStateMachine()
	require.NoError(t, m.Begin())
	require.NoError(t, m.Apply(outcomeOf(models.ClaimPendingConfirmation, models.ReasonConfirmationUnknown, true)))
	assert.ErrorIs(t, m.Begin(), ErrInvalidTransition)

	dropped := outcomeOf(models.ClaimFailed, models.ReasonDropped, false)
	dropped.TransactionHash = &hashABC
	require.NoError(t, m.ApplyRecheck(dropped))
	assert.Equal(t, Errored, m.State())
	assert.Nil(t, m.Snapshot().TransactionHash)
	assert.False(t, m.CanRecheck())

	require.NoError(t, m.Begin(), "a dropped transaction can be replaced")
}
