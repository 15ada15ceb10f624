package service

import (
	"golang.org/x/crypto/bcrypt"
)

// dummyPassword seeds the digest used for the timing mitigation. It is hashed
// once at construction with the same cost as real digests so a dummy verify
// costs the same as a real one.
const dummyPassword = "high-entropy-dummy-password-3f9c"

type PasswordHasher struct {
	cost        int
	dummyDigest []byte
}

func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), cost)
	if err != nil {
		return nil, err
	}

	return &PasswordHasher{cost: cost, dummyDigest: dummy}, nil
}

func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

func (h *PasswordHasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// VerifyDummy burns a full bcrypt comparison against the fixed digest.
// Callers run it when no identity was found so "email not found" and
// "email found, password wrong" take the same time.
func (h *PasswordHasher) VerifyDummy(plaintext string) {
	_ = bcrypt.CompareHashAndPassword(h.dummyDigest, []byte(plaintext))
}
