package secret

import "os"

// EnvStore implements SecretStore over process environment variables.
// Keys are variable names.
type EnvStore struct{}

func NewEnvStore() *EnvStore { return &EnvStore{} }

func (EnvStore) Set(key string, value []byte) error { return os.Setenv(key, string(value)) }

func (EnvStore) Get(key string) ([]byte, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

func (EnvStore) Delete(key string) error { return os.Unsetenv(key) }
