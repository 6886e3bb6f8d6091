// Registering as a TEACHER requires a shared enrollment code. Only its bcrypt
// hash is configured (TEACHER_ENROLLMENT_CODE_HASH), so the plaintext never
// sits in the environment or the logs.
//
// Hash format (the full output of bcrypt.GenerateFromPassword):
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost
//	 version

package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used by HashCode.
const DefaultCost = 12

// HashCode hashes a plaintext enrollment code. cmd/devtoken uses it to
// produce the configured hash.
func HashCode(code string, cost int) (string, error) {
	if code == "" {
		return "", errors.New("auth: enrollment code is empty")
	}
	if len(code) > 72 {
		// bcrypt silently truncates longer input.
		return "", errors.New("auth: enrollment code must be 72 bytes or fewer")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing enrollment code: %w", err)
	}
	return string(hashed), nil
}

// EnrollmentCode verifies teacher enrollment codes against a bcrypt hash.
// The zero value (no hash configured) rejects every code.
type EnrollmentCode struct {
	hash []byte
}

// NewEnrollmentCode checks that hash is a bcrypt hash. An empty hash yields
// a verifier that rejects everything, which disables teacher registration.
func NewEnrollmentCode(hash string) (*EnrollmentCode, error) {
	if hash == "" {
		return &EnrollmentCode{}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("auth: teacher enrollment code hash is not a bcrypt hash: %w", err)
	}
	return &EnrollmentCode{hash: []byte(hash)}, nil
}

// VerifyTeacherCode reports whether code matches. The comparison is constant
// time inside bcrypt.
func (e *EnrollmentCode) VerifyTeacherCode(code string) bool {
	if len(e.hash) == 0 || code == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(e.hash, []byte(code)) == nil
}
