// Package model defines the data structures used throughout the application.
package model

import "time"

// Identity is a registered voter account.
//
// An identity is created either by local sign-up (email + password) or on the
// first OAuth login through Google or LinkedIn. Both kinds live in the same
// table and the email is unique across all of them.
//
// HIDDEN FIELDS:
// The credential hash, the external auth id and the reset token are tagged
// `json:"-"` so an Identity can be written straight into a response without
// leaking secrets.
//
// VOTE FLAGS:
// HasVoted and VotedFor are derived from the votes table. They are written in
// the same transaction as the vote row and can be rebuilt by reconciliation.
type Identity struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	ExternalProfileURL string     `json:"externalProfileUrl"`
	HasVoted           bool       `json:"hasVoted"`
	VotedFor           string     `json:"votedFor,omitempty"`
	CredentialHash     string     `json:"-"`
	ExternalAuthID     string     `json:"-"` // "<provider>:<subject>", empty for local accounts
	ResetTokenHash     string     `json:"-"` // sha256 hex of the emailed token
	ResetTokenExpiry   *time.Time `json:"-"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// HasPassword reports whether the identity can log in locally.
func (i *Identity) HasPassword() bool {
	return i.CredentialHash != ""
}

// Voter is the public registry entry for an identity that has voted.
type Voter struct {
	Name               string `json:"name"`
	ExternalProfileURL string `json:"externalProfileUrl"`
}
