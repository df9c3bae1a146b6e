// Package couples manages the link records that authorize merge operations.
// A merge is only ever allowed for two partners joined by an active link
// owned by the requesting therapist.
package couples

import (
	"time"

	id "attune/pkg/domain"
)

// LinkStatus tracks the lifecycle of a couple link.
type LinkStatus string

const (
	// StatusPending means the link was created but the second partner has
	// not confirmed with the invite code yet. Merges are not allowed.
	StatusPending LinkStatus = "pending"

	// StatusActive means both partners are confirmed under the owning
	// therapist. Merges are allowed.
	StatusActive LinkStatus = "active"

	// StatusRevoked means consent was withdrawn. Merges are not allowed and
	// the status is terminal.
	StatusRevoked LinkStatus = "revoked"
)

// Link pairs two clients under one therapist.
type Link struct {
	ID          id.CoupleID
	PartnerA    id.ClientID
	PartnerB    id.ClientID
	TherapistID id.TherapistID
	Status      LinkStatus
	// InviteCodeHash is the bcrypt hash of the partner confirmation code.
	// The plaintext code is returned once at creation and never stored.
	InviteCodeHash string
	CreatedAt      time.Time
	ActivatedAt    *time.Time
	RevokedAt      *time.Time
}

// Includes reports whether the client is one of the linked partners.
func (l Link) Includes(clientID id.ClientID) bool {
	return l.PartnerA == clientID || l.PartnerB == clientID
}

// MergeAllowed reports whether the link currently authorizes merges.
func (l Link) MergeAllowed() bool {
	return l.Status == StatusActive
}
