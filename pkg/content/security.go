package content

import (
	"crypto/subtle"
	"fmt"
	"maps"
)

// StaticSecurityProvider authenticates against a fixed user table.
type StaticSecurityProvider struct {
	users map[string]string
}

// NewStaticSecurityProvider returns a provider for users, keyed by user name
// with the password as value.
func NewStaticSecurityProvider(users map[string]string) *StaticSecurityProvider {
	return &StaticSecurityProvider{users: maps.Clone(users)}
}

func (p *StaticSecurityProvider) Authenticate(user, password string) error {
	want, ok := p.users[user]
	if !ok {
		return fmt.Errorf("%w: unknown user %q", ErrLoginFailed, user)
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(password)) != 1 {
		return fmt.Errorf("%w: bad credentials for %q", ErrLoginFailed, user)
	}
	return nil
}
