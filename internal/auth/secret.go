package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

func HashSecret(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Secret is the shared cron secret exchanged for trigger tokens. Hash wins
// over Plain when both are configured.
type Secret struct {
	Hash  string
	Plain string
}

func (s Secret) Configured() bool { return s.Hash != "" || s.Plain != "" }

func (s Secret) Compare(candidate string) error {
	switch {
	case s.Hash != "":
		if bcrypt.CompareHashAndPassword([]byte(s.Hash), []byte(candidate)) != nil {
			return ErrUnauthorized
		}
		return nil
	case s.Plain != "":
		if subtle.ConstantTimeCompare([]byte(s.Plain), []byte(candidate)) != 1 {
			return ErrUnauthorized
		}
		return nil
	}
	return ErrUnauthorized
}
