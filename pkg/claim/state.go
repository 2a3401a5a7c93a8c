package claim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptogift-wallets/giftclaim/pkg/models"
)

// ErrInvalidTransition is returned when an event is not allowed in the current state
var ErrInvalidTransition = errors.New("invalid claim state transition")

// State is a UI-visible claim state
type State string

const (
	AwaitingInput       State = "awaiting_input"
	Submitting          State = "submitting"
	Succeeded           State = "succeeded"
	PendingConfirmation State = "pending_confirmation"
	Errored             State = "error"
)

// Transition is one entry of the state history
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Snapshot is what the UI renders
type Snapshot struct {
	State           State               `json:"state"`
	Message         *models.UserMessage `json:"message,omitempty"`
	Informational   bool                `json:"informational"`
	Recheckable     bool                `json:"recheckable"`
	TransactionHash *common.Hash        `json:"transactionHash,omitempty"`
	History         []Transition        `json:"history"`
}

// StateMachine holds the UI state of one claim. It moves only on orchestrator outcomes.
type StateMachine struct {
	mu          sync.Mutex
	state       State
	message     *models.UserMessage
	recheckable bool
	// sentHash is kept once a transaction exists so it is never resubmitted
	sentHash *common.Hash
	history  []Transition
	now      func() time.Time
}

// NewStateMachine starts in AwaitingInput
func NewStateMachine() *StateMachine {
	return &StateMachine{state: AwaitingInput, now: time.Now}
}

// State returns the current state
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Begin moves to Submitting. It is refused once a transaction exists for the claim.
func (m *StateMachine) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != AwaitingInput && m.state != Errored {
		return fmt.Errorf("%w: cannot submit from %s", ErrInvalidTransition, m.state)
	}
	if m.sentHash != nil {
		return fmt.Errorf("%w: transaction %s already sent, check its status instead", ErrInvalidTransition, m.sentHash.Hex())
	}
	m.message = nil
	m.recheckable = false
	m.move(Submitting)
	return nil
}

// Apply moves out of Submitting according to the outcome
func (m *StateMachine) Apply(outcome models.ClaimOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Submitting {
		return fmt.Errorf("%w: no submission running in %s", ErrInvalidTransition, m.state)
	}
	m.settle(outcome)
	return nil
}

// ApplyRecheck applies the outcome of a manual status check
func (m *StateMachine) ApplyRecheck(outcome models.ClaimOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.canRecheck() {
		return fmt.Errorf("%w: nothing to check in %s", ErrInvalidTransition, m.state)
	}
	m.settle(outcome)
	return nil
}

// CanRecheck reports whether a manual status check is offered
func (m *StateMachine) CanRecheck() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canRecheck()
}

// Dismiss returns control to AwaitingInput from Errored or PendingConfirmation, keeping the message
func (m *StateMachine) Dismiss() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Errored && m.state != PendingConfirmation {
		return fmt.Errorf("%w: cannot dismiss %s", ErrInvalidTransition, m.state)
	}
	m.move(AwaitingInput)
	return nil
}

// Snapshot returns a copy of the current state
func (m *StateMachine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		State:           m.state,
		Message:         m.message,
		Informational:   m.state == PendingConfirmation || (m.state == AwaitingInput && m.sentHash != nil),
		Recheckable:     m.canRecheck(),
		TransactionHash: m.sentHash,
		History:         append([]Transition(nil), m.history...),
	}
	return s
}

func (m *StateMachine) canRecheck() bool {
	switch m.state {
	case PendingConfirmation:
		return true
	case Errored, AwaitingInput:
		return m.recheckable
	}
	return false
}

func (m *StateMachine) settle(outcome models.ClaimOutcome) {
	msg := outcome.Message
	m.message = &msg
	m.recheckable = outcome.Recheckable
	switch {
	case outcome.Reason == models.ReasonReverted || outcome.Reason == models.ReasonDropped:
		// the transaction can no longer transfer the gift
		m.sentHash = nil
	case outcome.TransactionHash != nil:
		h := *outcome.TransactionHash
		m.sentHash = &h
	}

	switch outcome.State {
	case models.ClaimSuccess:
		m.move(Succeeded)
	case models.ClaimPendingConfirmation:
		m.move(PendingConfirmation)
	default:
		m.move(Errored)
	}
}

func (m *StateMachine) move(to State) {
	m.history = append(m.history, Transition{From: m.state, To: to, At: m.now()})
	m.state = to
}
