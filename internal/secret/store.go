package secret

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// SecretStore provides a pluggable interface for reading sensitive data such
// as Page Store access tokens. Implementations: macOS Keychain and process
// environment.
type SecretStore interface {
	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)
}

// EnvStore reads secrets from environment variables. Keys are upper-cased and
// dashes and dots become underscores, then Prefix is prepended.
type EnvStore struct {
	Prefix string
}

// Get returns the value of the variable for key.
func (e EnvStore) Get(key string) ([]byte, error) {
	name := e.Prefix + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
	return []byte(os.Getenv(name)), nil
}

// TokenSource reads the access token from a SecretStore on every call, so a
// rotated secret is picked up without a restart.
type TokenSource struct {
	Store SecretStore
	Key   string
}

// Token returns the current token. A missing secret is an error.
func (t TokenSource) Token(context.Context) (string, error) {
	val, err := t.Store.Get(t.Key)
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", t.Key, err)
	}
	tok := strings.TrimSpace(string(val))
	if tok == "" {
		return "", fmt.Errorf("secret %s is empty", t.Key)
	}
	return tok, nil
}
