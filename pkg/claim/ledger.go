package claim

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptogift-wallets/giftclaim/pkg/models"
)

// DefaultSubmissionRetention is how long a sent claim blocks a new submission for the same gift
const DefaultSubmissionRetention = 24 * time.Hour

// ErrAlreadySubmitted is returned when a claim transaction was already sent for the gift and
// claimant. The caller should recheck the existing transaction instead.
var ErrAlreadySubmitted = errors.New("a claim transaction was already sent for this gift")

// Submission is a claim whose transaction reached the network
type Submission struct {
	AssetID  string
	Claimant common.Address
	// Outcome is the latest known outcome, carrying the transaction hash
	Outcome models.ClaimOutcome
	At      time.Time
}

// AlreadySubmittedError carries the earlier submission so the caller can route to Recheck
type AlreadySubmittedError struct {
	Submission Submission
}

func (e *AlreadySubmittedError) Error() string {
	return fmt.Sprintf("%v: asset %s, tx %s", ErrAlreadySubmitted, e.Submission.AssetID, e.Submission.Outcome.TransactionHash.Hex())
}

func (e *AlreadySubmittedError) Unwrap() error {
	return ErrAlreadySubmitted
}

type submissionKey struct {
	assetID  string
	claimant common.Address
}

// submissionLedger remembers sent transactions across sessions
type submissionLedger struct {
	mu        sync.Mutex
	entries   map[submissionKey]Submission
	retention time.Duration
	now       func() time.Time
}

func newSubmissionLedger(retention time.Duration) *submissionLedger {
	if retention <= 0 {
		retention = DefaultSubmissionRetention
	}
	return &submissionLedger{
		entries:   make(map[submissionKey]Submission),
		retention: retention,
		now:       time.Now,
	}
}

func keyOf(assetID string, claimant common.Address) submissionKey {
	return submissionKey{assetID: strings.TrimSpace(assetID), claimant: claimant}
}

func (l *submissionLedger) get(assetID string, claimant common.Address) (Submission, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := keyOf(assetID, claimant)
	sub, ok := l.entries[key]
	if !ok {
		return Submission{}, false
	}
	if l.now().Sub(sub.At) > l.retention {
		delete(l.entries, key)
		return Submission{}, false
	}
	return sub, true
}

// record stores an outcome that carries a live transaction hash
func (l *submissionLedger) record(assetID string, claimant common.Address, outcome models.ClaimOutcome) {
	if outcome.TransactionHash == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, sub := range l.entries {
		if now.Sub(sub.At) > l.retention {
			delete(l.entries, key)
		}
	}
	hash := *outcome.TransactionHash
	outcome.TransactionHash = &hash
	l.entries[keyOf(assetID, claimant)] = Submission{
		AssetID:  strings.TrimSpace(assetID),
		Claimant: claimant,
		Outcome:  outcome,
		At:       now,
	}
}

func (l *submissionLedger) forget(assetID string, claimant common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, keyOf(assetID, claimant))
}

// remember updates the ledger from an outcome. A reverted or dropped transaction frees the
// gift for a new claim.
func (l *submissionLedger) remember(assetID string, claimant common.Address, outcome models.ClaimOutcome) {
	switch {
	case outcome.Reason == models.ReasonReverted || outcome.Reason == models.ReasonDropped:
		l.forget(assetID, claimant)
	case outcome.TransactionHash != nil:
		l.record(assetID, claimant, outcome)
	}
}
