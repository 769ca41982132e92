package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
)

// KeyringConfig selects and configures the platform keyring.
type KeyringConfig struct {
	// Backend is empty for the platform default, "memory" for a process-local
	// store, or a keyring backend name such as "file" or "keychain".
	Backend      string
	Service      string
	FileDir      string
	FilePassword string
}

// KeyringStore adapts a keyring.Keyring to Store.
type KeyringStore struct {
	ring keyring.Keyring
}

// NewKeyringStore wraps an already opened keyring.
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

// NewMemoryStore returns an empty in-process store. Nothing survives the
// process, so it is only suitable for tests and throwaway databases.
func NewMemoryStore() *KeyringStore {
	return NewKeyringStore(keyring.NewArrayKeyring(nil))
}

// OpenKeyring opens the keyring described by cfg.
func OpenKeyring(cfg KeyringConfig) (*KeyringStore, error) {
	if cfg.Backend == "memory" {
		return NewMemoryStore(), nil
	}

	service := cfg.Service
	if service == "" {
		service = Account
	}

	kc := keyring.Config{
		ServiceName:              service,
		KeychainTrustApplication: true,
		FileDir:                  cfg.FileDir,
	}
	if cfg.Backend != "" {
		kc.AllowedBackends = []keyring.BackendType{keyring.BackendType(cfg.Backend)}
	}
	kc.FilePasswordFunc = noFilePassword
	if cfg.FilePassword != "" {
		kc.FilePasswordFunc = keyring.FixedStringPrompt(cfg.FilePassword)
	}
	if cfg.Backend == string(keyring.FileBackend) && cfg.FileDir != "" {
		if err := os.MkdirAll(filepath.Clean(cfg.FileDir), 0o700); err != nil {
			return nil, fmt.Errorf("%w: create keyring dir: %v", ErrSecretUnavailable, err)
		}
	}

	ring, err := keyring.Open(kc)
	if err != nil {
		return nil, fmt.Errorf("%w: open keyring: %v", ErrSecretUnavailable, err)
	}
	return NewKeyringStore(ring), nil
}

// noFilePassword refuses to unlock the file backend when no password is
// configured. keyring.Open may fall back to that backend on its own.
func noFilePassword(string) (string, error) {
	return "", fmt.Errorf("%w: file keyring needs keyring.file_password", ErrSecretUnavailable)
}

// Get implements Store.
func (s *KeyringStore) Get(name string) (string, bool, error) {
	item, err := s.ring.Get(name)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(item.Data), true, nil
}

// Set implements Store. The account is kept as the item label.
func (s *KeyringStore) Set(name, account, value string) error {
	return s.ring.Set(keyring.Item{
		Key:         name,
		Data:        []byte(value),
		Label:       account,
		Description: "datavault encryption secret",
	})
}
