package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/cryptogift-wallets/giftclaim/pkg/claim"
	"github.com/cryptogift-wallets/giftclaim/pkg/device"
	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
	"github.com/cryptogift-wallets/giftclaim/pkg/models"
)

const maxClaimBodyBytes = 64 << 10

// claimBody is the POST /api/v1/claims payload
type claimBody struct {
	models.ClaimRequest
	// Constrained overrides the profile detected from the User-Agent
	Constrained *bool `json:"constrained,omitempty"`
}

func (s *Server) createClaim(w http.ResponseWriter, r *http.Request) {
	var body claimBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxClaimBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile := device.FromUserAgent(r.UserAgent())
	if body.Constrained != nil {
		profile = device.Standard
		if *body.Constrained {
			profile = device.Constrained
		}
	}

	sess := s.sessions.Create(body.ClaimRequest, profile)
	sess.mu.Lock()
	if err := sess.machine.Begin(); err != nil {
		sess.mu.Unlock()
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	sess.mu.Unlock()

	s.logger.InfoWith(logger.HTTP, "Claim %s for asset %s started (%s profile)", sess.ID, body.AssetID, profile)
	outcome, err := s.claims.Claim(r.Context(), body.ClaimRequest, s.wallet, profile)
	if errors.Is(err, claim.ErrClaimInFlight) {
		s.sessions.Delete(sess.ID)
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	var already *claim.AlreadySubmittedError
	if errors.As(err, &already) {
		s.sessions.Delete(sess.ID)
		existing, ok := s.sessions.FindByClaim(body.AssetID, body.ClaimantAddress)
		if !ok {
			existing = s.sessions.Adopt(body.ClaimRequest, profile, already.Submission.Outcome)
		}
		s.logger.NoticeWith(logger.HTTP, "Claim for asset %s already sent, returning session %s", body.AssetID, existing.ID)
		writeJSON(w, http.StatusConflict, existing.view(s.opts.ChainID))
		return
	}
	if err != nil {
		s.sessions.Delete(sess.ID)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sess.mu.Lock()
	sess.outcome = &outcome
	if err := sess.machine.Apply(outcome); err != nil {
		s.logger.ErrorWith(logger.HTTP, "Claim %s: %v", sess.ID, err)
	}
	sess.mu.Unlock()

	writeJSON(w, http.StatusOK, sess.view(s.opts.ChainID))
}

func (s *Server) getClaim(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "claim not found")
		return
	}
	writeJSON(w, http.StatusOK, sess.view(s.opts.ChainID))
}

// dismissClaim closes the error or pending notice and returns the session to input. A sent
// transaction stays attached, so a new submission is still refused.
func (s *Server) dismissClaim(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "claim not found")
		return
	}

	sess.mu.Lock()
	err := sess.machine.Dismiss()
	sess.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess.view(s.opts.ChainID))
}

// recheckClaim re-queries confirmation of a pending or ambiguous claim. It never resubmits.
func (s *Server) recheckClaim(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "claim not found")
		return
	}

	sess.mu.Lock()
	if !sess.machine.CanRecheck() || sess.outcome == nil {
		sess.mu.Unlock()
		writeError(w, http.StatusConflict, "this claim has nothing to check")
		return
	}
	prev := *sess.outcome
	in := claim.RecheckInput{
		Claim:           sess.Claim,
		InternalClaimID: prev.InternalClaimID,
		TransactionHash: prev.TransactionHash,
		Asset:           prev.Asset,
		Profile:         sess.Profile,
		Handle:          s.wallet,
	}

	outcome := s.claims.Recheck(r.Context(), in)
	if outcome.Attempts == nil {
		outcome.Attempts = prev.Attempts
	}
	sess.outcome = &outcome
	if err := sess.machine.ApplyRecheck(outcome); err != nil {
		s.logger.ErrorWith(logger.HTTP, "Claim %s recheck: %v", sess.ID, err)
	}
	sess.mu.Unlock()

	writeJSON(w, http.StatusOK, sess.view(s.opts.ChainID))
}
