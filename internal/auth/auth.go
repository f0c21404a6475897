// Package auth resolves and validates the control gateway shared secret.
//
// Resolution never consults process globals directly: callers pass the
// environment, config store and filesystem accessors in SecretSources.
package auth

import (
	"crypto/subtle"
	"errors"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator validates a presented secret.
type Validator interface {
	Validate(token string) error
}

// StaticToken validates against one shared secret.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}
