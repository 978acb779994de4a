package secret

import "fmt"

// SecretStore provides a pluggable interface for storing sensitive data
// such as database passwords. The environment backend is the default;
// the macOS Keychain backend is available for desktop use.
type SecretStore interface {
	// Set stores a secret value under the given key.
	Set(key string, value []byte) error

	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)

	// Delete removes the secret for the given key.
	Delete(key string) error
}

// New returns the store for backend ("env" or "keychain").
func New(backend string) (SecretStore, error) {
	switch backend {
	case "", "env":
		return NewEnvStore(), nil
	case "keychain":
		return NewKeychainStore(), nil
	}
	return nil, fmt.Errorf("unknown secret backend %q", backend)
}

// Password resolves a password: an inline value wins, otherwise key is
// looked up in the store. An empty key yields an empty password.
func Password(store SecretStore, inline, key string) (string, error) {
	if inline != "" || key == "" {
		return inline, nil
	}
	v, err := store.Get(key)
	if err != nil {
		return "", fmt.Errorf("secret %q: %w", key, err)
	}
	if len(v) == 0 {
		return "", fmt.Errorf("secret %q is not set", key)
	}
	return string(v), nil
}
