package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/ballot/internal/service"
)

const msgVoteConfirmed = "Vote confirmed successfully!"

// ElectionHandler serves the ballot, vote submission and the voter registry.
type ElectionHandler struct {
	ledger   *service.VoteLedger
	election *service.ElectionService
	logger   *slog.Logger
}

func NewElectionHandler(ledger *service.VoteLedger, election *service.ElectionService, logger *slog.Logger) *ElectionHandler {
	return &ElectionHandler{ledger: ledger, election: election, logger: logger}
}

// HandleListCandidates returns every candidate with its running tally.
//
// HTTP: GET /api/candidates
func (h *ElectionHandler) HandleListCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.election.ListCandidates(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, candidates)
}

// HandleSubmitVote casts the session user's vote.
//
// HTTP: POST /api/submit  {"userId","candidateId"}
//
// A second vote from the same identity is a 400 with code
// "duplicate_vote", not a 500.
func (h *ElectionHandler) HandleSubmitVote(w http.ResponseWriter, r *http.Request) {
	var req submitVoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	voterID, err := actingUser(r, req.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if _, err := h.ledger.SubmitVote(r.Context(), voterID, req.CandidateID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, msgVoteConfirmed)
}

// HandleListVoters returns the public list of people who have voted.
//
// HTTP: GET /api/voters
func (h *ElectionHandler) HandleListVoters(w http.ResponseWriter, r *http.Request) {
	voters, err := h.election.ListVoters(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, voters)
}
