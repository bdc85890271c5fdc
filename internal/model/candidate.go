package model

import "time"

// Candidate is one option on the ballot.
//
// VoteCount is a denormalised running tally. It only ever moves up by one per
// recorded vote, or is recomputed from the votes table by reconciliation.
type Candidate struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	PhotoURL           string    `json:"photoUrl"`
	ExternalProfileURL string    `json:"externalProfileUrl"`
	VoteCount          int64     `json:"voteCount"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Vote is the ledger row. VoterID is unique across all votes.
type Vote struct {
	ID          string    `json:"id"`
	VoterID     string    `json:"voterId"`
	CandidateID string    `json:"candidateId"`
	CastAt      time.Time `json:"castAt"`
}

// Session is a server-side login session referenced by the session cookie.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
