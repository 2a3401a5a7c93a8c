package server

import (
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/cryptogift-wallets/giftclaim/pkg/claim"
	"github.com/cryptogift-wallets/giftclaim/pkg/config"
	"github.com/cryptogift-wallets/giftclaim/pkg/device"
	"github.com/cryptogift-wallets/giftclaim/pkg/models"
)

const defaultSessionTTL = 24 * time.Hour

// Session is one claim as seen by the frontend
type Session struct {
	ID        string
	CreatedAt time.Time
	// Claim has its secrets removed; only the fields needed for a recheck remain
	Claim   models.ClaimRequest
	Profile device.Profile

	mu      sync.Mutex
	outcome *models.ClaimOutcome
	machine *claim.StateMachine
}

// SessionView is the JSON form of a session
type SessionView struct {
	ID        string               `json:"id"`
	CreatedAt time.Time            `json:"createdAt"`
	Profile   string               `json:"profile"`
	Outcome   *models.ClaimOutcome `json:"outcome,omitempty"`
	UI        claim.Snapshot       `json:"ui"`

	// ExplorerURL links the claim transaction once one is known
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

func (s *Session) view(chainID int64) SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := SessionView{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Profile:   s.Profile.String(),
		Outcome:   s.outcome,
		UI:        s.machine.Snapshot(),
	}
	if s.outcome != nil && s.outcome.TransactionHash != nil {
		v.ExplorerURL = config.TransactionURL(chainID, s.outcome.TransactionHash.Hex())
	}
	return v
}

// SessionStore keeps sessions in memory
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionStore creates a store; sessions older than ttl are dropped on insert
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create stores a new session for req
func (st *SessionStore) Create(req models.ClaimRequest, profile device.Profile) *Session {
	redacted := req
	redacted.UnlockSecret = ""
	redacted.SecretSalt = ""
	redacted.EducationProof = nil

	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: st.now(),
		Claim:     redacted,
		Profile:   profile,
		machine:   claim.NewStateMachine(),
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.prune()
	st.sessions[sess.ID] = sess
	return sess
}

// Adopt stores a session for a claim submitted elsewhere, already settled with outcome
func (st *SessionStore) Adopt(req models.ClaimRequest, profile device.Profile, outcome models.ClaimOutcome) *Session {
	sess := st.Create(req, profile)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.machine.Begin(); err == nil {
		_ = sess.machine.Apply(outcome)
	}
	sess.outcome = &outcome
	return sess
}

// FindByClaim returns the newest session whose claim sent a transaction for the asset and claimant
func (st *SessionStore) FindByClaim(assetID string, claimant common.Address) (*Session, bool) {
	assetID = strings.TrimSpace(assetID)
	st.mu.RLock()
	defer st.mu.RUnlock()

	var found *Session
	for _, sess := range st.sessions {
		if strings.TrimSpace(sess.Claim.AssetID) != assetID || sess.Claim.ClaimantAddress != claimant {
			continue
		}
		sess.mu.Lock()
		sent := sess.outcome != nil && sess.outcome.TransactionHash != nil
		sess.mu.Unlock()
		if sent && (found == nil || sess.CreatedAt.After(found.CreatedAt)) {
			found = sess
		}
	}
	return found, found != nil
}

// Get returns a session by id
func (st *SessionStore) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	sess, ok := st.sessions[id]
	return sess, ok
}

// Delete removes a session
func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len returns the number of stored sessions
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

func (st *SessionStore) prune() {
	cutoff := st.now().Add(-st.ttl)
	for id, sess := range st.sessions {
		if sess.CreatedAt.Before(cutoff) {
			delete(st.sessions, id)
		}
	}
}
