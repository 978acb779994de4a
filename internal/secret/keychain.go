package secret

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const keychainService = "sqlnosql"

// keychainNotFound is the exit status of `security` for a missing item.
const keychainNotFound = 44

// KeychainStore implements SecretStore using the macOS Keychain
// via the `security` CLI tool. Keys are account names under the
// sqlnosql service.
type KeychainStore struct {
	// bin is the security executable.
	bin string
}

func NewKeychainStore() *KeychainStore {
	return &KeychainStore{bin: "security"}
}

// Set stores or updates a secret.
func (k *KeychainStore) Set(key string, value []byte) error {
	cmd := exec.Command(k.bin, "add-generic-password",
		"-a", key, "-s", keychainService, "-w", string(value), "-U")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("keychain set: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Get returns nil, nil when the item does not exist.
func (k *KeychainStore) Get(key string) ([]byte, error) {
	out, err := exec.Command(k.bin, "find-generic-password",
		"-a", key, "-s", keychainService, "-w").Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == keychainNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain get: %w", err)
	}
	return []byte(strings.TrimSpace(string(out))), nil
}

// Delete removes a secret; a missing item is not an error.
func (k *KeychainStore) Delete(key string) error {
	err := exec.Command(k.bin, "delete-generic-password",
		"-a", key, "-s", keychainService).Run()
	var exitErr *exec.ExitError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.ExitCode() == keychainNotFound) {
		return fmt.Errorf("keychain delete: %w", err)
	}
	return nil
}
