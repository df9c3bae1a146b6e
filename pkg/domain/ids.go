// Package domain holds shared identifier and value types. Typed UUIDs keep
// the compiler from mixing up the many party identifiers a merge touches.
package domain

import (
	"github.com/google/uuid"

	dErrors "attune/pkg/domain-errors"
)

// Typed identifiers. Construct via the Parse functions at trust boundaries;
// direct casting bypasses validation.
type (
	// TherapistID identifies the clinician who owns couple links.
	TherapistID uuid.UUID

	// ClientID identifies an individual client (one partner of a couple).
	ClientID uuid.UUID

	// CoupleID identifies the link record pairing two clients under one
	// therapist. It gates merge operations.
	CoupleID uuid.UUID

	// SessionID identifies the therapy session a merge is requested for.
	SessionID uuid.UUID
)

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be nil")
	}
	return u, nil
}

// ParseTherapistID constructs a TherapistID from external input.
func ParseTherapistID(s string) (TherapistID, error) {
	u, err := parseUUID(s, "therapist")
	return TherapistID(u), err
}

// ParseClientID constructs a ClientID from external input.
func ParseClientID(s string) (ClientID, error) {
	u, err := parseUUID(s, "client")
	return ClientID(u), err
}

// ParseCoupleID constructs a CoupleID from external input.
func ParseCoupleID(s string) (CoupleID, error) {
	u, err := parseUUID(s, "couple")
	return CoupleID(u), err
}

// ParseSessionID constructs a SessionID from external input.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session")
	return SessionID(u), err
}

func (id TherapistID) String() string { return uuid.UUID(id).String() }
func (id ClientID) String() string    { return uuid.UUID(id).String() }
func (id CoupleID) String() string    { return uuid.UUID(id).String() }
func (id SessionID) String() string   { return uuid.UUID(id).String() }

func (id TherapistID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ClientID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id CoupleID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// NewCoupleID mints a fresh couple identifier.
func NewCoupleID() CoupleID { return CoupleID(uuid.New()) }
