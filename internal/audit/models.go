// Package audit mirrors biometric events to an external, non-authoritative
// ledger. Events are appended to a durable outbox and relayed in the
// background; a mirror outage never blocks enrollment or verification.
package audit

import (
	"time"

	id "ballotgate/pkg/domain"
)

// Actions mirrored to the external ledger.
const (
	ActionFaceEnrolled = "face_enrolled"
	ActionFaceVerified = "face_verified"
)

// Event is one mirrored fact. PayloadHash is a one-way hash of the
// biometric payload; the template itself never leaves the registry.
type Event struct {
	ID          int64
	IdentityID  id.IdentityID
	Action      string
	PayloadHash string
	OccurredAt  time.Time
	RelayedAt   *time.Time
}
