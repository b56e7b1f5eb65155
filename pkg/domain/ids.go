// Package domain defines the typed identifiers shared across features.
// Using distinct types keeps an identity id from being passed where a
// candidate id is expected.
package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"

	dErrors "ballotgate/pkg/domain-errors"
)

type (
	// IdentityID identifies a registered person (voter or admin).
	IdentityID uuid.UUID

	// CandidateID identifies an entry on the ballot roster.
	CandidateID uuid.UUID
)

func NewIdentityID() IdentityID { return IdentityID(uuid.New()) }

func NewCandidateID() CandidateID { return CandidateID(uuid.New()) }

// ParseIdentityID parses the canonical string form. An error means the input
// was never a valid identity id, not that the identity is unknown.
func ParseIdentityID(s string) (IdentityID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return IdentityID{}, err
	}
	return IdentityID(u), nil
}

func ParseCandidateID(s string) (CandidateID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return CandidateID{}, err
	}
	return CandidateID(u), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "id is not a valid uuid")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "id must not be the nil uuid")
	}
	return u, nil
}

func (id IdentityID) String() string { return uuid.UUID(id).String() }
func (id IdentityID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id CandidateID) String() string { return uuid.UUID(id).String() }
func (id CandidateID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// Defined types do not inherit uuid.UUID's marshaling or database methods,
// so each id type carries its own.

func (id IdentityID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *IdentityID) UnmarshalText(data []byte) error {
	parsed, err := ParseIdentityID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id IdentityID) Value() (driver.Value, error) { return id.String(), nil }

func (id *IdentityID) Scan(src any) error {
	var u uuid.UUID
	if err := u.Scan(src); err != nil {
		return fmt.Errorf("scan identity id: %w", err)
	}
	*id = IdentityID(u)
	return nil
}

func (id CandidateID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *CandidateID) UnmarshalText(data []byte) error {
	parsed, err := ParseCandidateID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id CandidateID) Value() (driver.Value, error) { return id.String(), nil }

func (id *CandidateID) Scan(src any) error {
	var u uuid.UUID
	if err := u.Scan(src); err != nil {
		return fmt.Errorf("scan candidate id: %w", err)
	}
	*id = CandidateID(u)
	return nil
}
