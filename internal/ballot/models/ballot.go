// Package models holds the ballot domain types: the candidate roster and
// the vote ledger entries.
package models

import (
	"strings"
	"time"

	id "ballotgate/pkg/domain"
)

// MinCandidateAge is the minimum age for standing in the election,
// enforced on applications and on direct roster entry alike.
const MinCandidateAge = 25

// Candidate is one roster entry. Party is stored normalized; Seq orders
// candidates by roster admission and breaks tally ties. IdentityID is nil
// for candidates an admin entered directly rather than via an approved
// application.
type Candidate struct {
	ID         id.CandidateID `json:"id"`
	IdentityID *id.IdentityID `json:"identity_id,omitempty"`
	Name       string         `json:"name"`
	Party      string         `json:"party"`
	Age        int            `json:"age"`
	Manifesto  string         `json:"manifesto"`
	VoteCount  int64          `json:"vote_count"`
	Seq        int64          `json:"-"`
	CreatedAt  time.Time      `json:"created_at"`
}

// CandidateSummary is the public roster projection. It carries no vote
// data and no link back to the underlying identity.
type CandidateSummary struct {
	ID    id.CandidateID `json:"id"`
	Name  string         `json:"name"`
	Party string         `json:"party"`
	Age   int            `json:"age"`
}

func (c *Candidate) Summary() CandidateSummary {
	return CandidateSummary{ID: c.ID, Name: c.Name, Party: c.Party, Age: c.Age}
}

// Vote is one ledger entry. VoterID is the primary key: the ledger itself
// enforces one vote per identity.
type Vote struct {
	VoterID     id.IdentityID  `json:"voter_id"`
	CandidateID id.CandidateID `json:"candidate_id"`
	CastAt      time.Time      `json:"cast_at"`
}

// TallyRow is one line of the published result.
type TallyRow struct {
	CandidateID id.CandidateID `json:"candidate_id"`
	Name        string         `json:"name"`
	Party       string         `json:"party"`
	VoteCount   int64          `json:"vote_count"`
}

// NormalizeParty maps party names onto their canonical form so that
// "  Green Party " and "green party" denote the same party.
func NormalizeParty(party string) string {
	return strings.ToLower(strings.TrimSpace(party))
}

func (c *Candidate) Clone() *Candidate {
	clone := *c
	if c.IdentityID != nil {
		identityID := *c.IdentityID
		clone.IdentityID = &identityID
	}
	return &clone
}
