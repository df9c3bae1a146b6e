package couples

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// inviteCodeBytes gives 80 bits of entropy, enough for a short-lived
// single-use confirmation code.
const inviteCodeBytes = 10

var inviteEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewInviteCode generates a random partner confirmation code and its bcrypt
// hash. The plaintext is shown to the therapist once; only the hash is
// persisted.
func NewInviteCode() (code, hash string, err error) {
	buf := make([]byte, inviteCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate invite code: %w", err)
	}
	code = inviteEncoding.EncodeToString(buf)

	hashed, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hash invite code: %w", err)
	}
	return code, string(hashed), nil
}

// VerifyInviteCode reports whether the code matches the stored hash.
func VerifyInviteCode(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
