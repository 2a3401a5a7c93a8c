package submitter

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/cryptogift-wallets/giftclaim/pkg/models"
)

var (
	// ErrAlreadySent is returned when a second attempt would reach Sent for the same request
	ErrAlreadySent = errors.New("a transaction was already sent for this claim")
	// ErrAttemptFinished is returned when an attempt outcome is set twice
	ErrAttemptFinished = errors.New("attempt outcome already set")
)

// Completion is the final outcome of one attempt
type Completion struct {
	EndpointID string
	Outcome    models.AttemptOutcome
	Kind       models.FailureReason
	Hash       *common.Hash
	Adopted    bool
	Err        error
}

// AttemptLog is the append-only record of submission attempts for one claim.
// An entry is written once when it starts and once when its outcome is known.
type AttemptLog struct {
	mu      sync.Mutex
	entries []models.TransactionAttempt
	sent    bool
	now     func() time.Time
}

// NewAttemptLog creates an empty log
func NewAttemptLog() *AttemptLog {
	return &AttemptLog{now: time.Now}
}

// Start appends a pending attempt and returns its id
func (l *AttemptLog) Start(timeout time.Duration) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := uuid.NewString()
	l.entries = append(l.entries, models.TransactionAttempt{
		ID:           id,
		AttemptIndex: len(l.entries),
		StartedAt:    l.now(),
		Timeout:      timeout,
		Outcome:      models.AttemptPending,
	})
	return id
}

// Finish sets the outcome of a pending attempt. Only one attempt per log may reach Sent.
func (l *AttemptLog) Finish(id string, c Completion) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.entries {
		e := &l.entries[i]
		if e.ID != id {
			continue
		}
		if e.Outcome != models.AttemptPending {
			return ErrAttemptFinished
		}
		if c.Outcome == models.AttemptSent {
			if l.sent {
				return ErrAlreadySent
			}
			if c.Hash == nil {
				return fmt.Errorf("sent attempt %d has no transaction hash", e.AttemptIndex)
			}
			l.sent = true
		}

		e.EndpointID = c.EndpointID
		e.FinishedAt = l.now()
		e.Outcome = c.Outcome
		e.FailureKind = c.Kind
		e.Adopted = c.Adopted
		if c.Hash != nil {
			h := *c.Hash
			e.TransactionHash = &h
		}
		if c.Err != nil {
			e.Error = c.Err.Error()
		}
		return nil
	}
	return fmt.Errorf("unknown attempt %s", id)
}

// Entries returns a copy of every attempt in order
func (l *AttemptLog) Entries() []models.TransactionAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.TransactionAttempt(nil), l.entries...)
}

// Last returns a copy of the most recent attempt
func (l *AttemptLog) Last() (models.TransactionAttempt, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return models.TransactionAttempt{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// HasSent reports whether an attempt reached Sent
func (l *AttemptLog) HasSent() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent
}

// Len returns the number of attempts
func (l *AttemptLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
