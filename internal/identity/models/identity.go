// Package models defines the identity record and its sub-state. One record
// per registered person; it is created at signup, mutated throughout its
// life, and never deleted.
package models

import (
	"time"

	id "ballotgate/pkg/domain"
)

// Role of an identity. Exactly one admin may ever exist.
const (
	RoleVoter = "voter"
	RoleAdmin = "admin"
)

// ApplicationStatus is the candidacy state machine position. Transitions:
// none -(apply)-> pending -(approve)-> approved, which is terminal, or
// pending -(reject)-> rejected, from which the identity may apply again.
const (
	ApplicationNone     = "none"
	ApplicationPending  = "pending"
	ApplicationApproved = "approved"
	ApplicationRejected = "rejected"
)

// Identity is a registered person: voter or admin.
type Identity struct {
	ID      id.IdentityID
	Name    string
	Age     int
	Email   string
	Mobile  string
	Address string

	// NationalIDHash is the one-way hash of the government identifier;
	// only the last four characters are kept in clear for display.
	NationalIDHash   string
	NationalIDLast4  string
	CredentialDigest string
	Role             string

	Verified     bool
	OTPCode      string
	OTPExpiresAt time.Time

	// HasVoted is monotonic: false to true at most once, never reset.
	HasVoted bool

	// Candidacy sub-state.
	Applicant         bool
	ApplicationStatus string
	Party             string
	Manifesto         string
	AppliedAt         *time.Time
	DecidedAt         *time.Time

	// Biometric sub-state.
	FaceTemplate       []float64
	FaceRegistered     bool
	LastFaceVerifiedAt *time.Time

	CreatedAt time.Time
}

// RegistrationRequest is the signup input.
type RegistrationRequest struct {
	Name       string `json:"name"`
	Age        int    `json:"age"`
	Email      string `json:"email"`
	Mobile     string `json:"mobile"`
	Address    string `json:"address"`
	NationalID string `json:"national_id"`
	Secret     string `json:"password"`
	Role       string `json:"role,omitempty"`
}

// RegistrationResult is returned on successful signup; the identity still
// has to confirm the one-time code before it can authenticate.
type RegistrationResult struct {
	IdentityID id.IdentityID `json:"identity_id"`
	Email      string        `json:"email"`
}

// AuthResult is returned by code confirmation and authentication.
type AuthResult struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// ProfileView is the identity's own view of its record. Digests and the
// biometric template never appear here.
type ProfileView struct {
	IdentityID        id.IdentityID `json:"identity_id"`
	Name              string        `json:"name"`
	Age               int           `json:"age"`
	Email             string        `json:"email"`
	Mobile            string        `json:"mobile"`
	NationalIDLast4   string        `json:"national_id_last4"`
	Role              string        `json:"role"`
	HasVoted          bool          `json:"has_voted"`
	ApplicationStatus string        `json:"application_status"`
	Party             string        `json:"party,omitempty"`
	FaceRegistered    bool          `json:"face_registered"`
}

// ApplicationView is the admin's view of one candidacy application.
type ApplicationView struct {
	ApplicationID   id.IdentityID `json:"application_id"`
	Name            string        `json:"name"`
	Age             int           `json:"age"`
	NationalIDLast4 string        `json:"national_id_last4"`
	Party           string        `json:"party"`
	Manifesto       string        `json:"manifesto"`
	Status          string        `json:"status"`
	AppliedAt       *time.Time    `json:"applied_at,omitempty"`
	DecidedAt       *time.Time    `json:"decided_at,omitempty"`
}

// Clone returns a deep copy so in-memory stores never hand out aliased
// records.
func (i *Identity) Clone() *Identity {
	out := *i
	if i.FaceTemplate != nil {
		out.FaceTemplate = append([]float64(nil), i.FaceTemplate...)
	}
	if i.AppliedAt != nil {
		t := *i.AppliedAt
		out.AppliedAt = &t
	}
	if i.DecidedAt != nil {
		t := *i.DecidedAt
		out.DecidedAt = &t
	}
	if i.LastFaceVerifiedAt != nil {
		t := *i.LastFaceVerifiedAt
		out.LastFaceVerifiedAt = &t
	}
	return &out
}

// Profile converts the record into its owner-facing view.
func (i *Identity) Profile() ProfileView {
	return ProfileView{
		IdentityID:        i.ID,
		Name:              i.Name,
		Age:               i.Age,
		Email:             i.Email,
		Mobile:            i.Mobile,
		NationalIDLast4:   i.NationalIDLast4,
		Role:              i.Role,
		HasVoted:          i.HasVoted,
		ApplicationStatus: i.ApplicationStatus,
		Party:             i.Party,
		FaceRegistered:    i.FaceRegistered,
	}
}

// Application converts the record into the admin-facing application view.
func (i *Identity) Application() ApplicationView {
	return ApplicationView{
		ApplicationID:   i.ID,
		Name:            i.Name,
		Age:             i.Age,
		NationalIDLast4: i.NationalIDLast4,
		Party:           i.Party,
		Manifesto:       i.Manifesto,
		Status:          i.ApplicationStatus,
		AppliedAt:       i.AppliedAt,
		DecidedAt:       i.DecidedAt,
	}
}
