// Package secrets provisions the long-lived passphrase and salt that every
// encrypted note field depends on.
//
// The values live in an external secure store and are created lazily on
// first use. Once created they must never change: a new passphrase or salt
// derives a different key and every previously written field becomes
// unreadable.
package secrets

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
)

const (
	// PassphraseName is the secure store entry holding the passphrase.
	PassphraseName = "datavault_encryption_passphrase"
	// SaltName is the secure store entry holding the PBKDF2 salt.
	SaltName = "datavault_pbkdf2_salt"
	// Account is the owner recorded alongside both entries.
	Account = "datavault"

	PassphraseLength = 64
	SaltLength       = 32

	// Alphabet excludes ':' so a secret can never be confused with a packed field.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*()-_=+[]{}<>?.,~"
)

// ErrSecretUnavailable is returned when the secure store cannot be read or
// written. Callers must abort; there is no fallback key.
var ErrSecretUnavailable = errors.New("secret unavailable")

// Store is the secure store capability. Get reports found=false for a
// missing entry; err is reserved for store failures.
type Store interface {
	Get(name string) (value string, found bool, err error)
	Set(name, account, value string) error
}

// Material is the passphrase/salt pair keys are derived from.
type Material struct {
	Passphrase string
	Salt       string
}

// provisionMu guards the read-check-create-write sequence for every
// Provisioner in the process, so two first callers cannot each persist a
// different secret.
var provisionMu sync.Mutex

// Provisioner obtains or creates secret material in a Store.
type Provisioner struct {
	store  Store
	logger *slog.Logger
	random func(n int) (string, error)
}

// NewProvisioner returns a Provisioner backed by store.
func NewProvisioner(store Store, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		store:  store,
		logger: logger,
		random: RandomString,
	}
}

// Passphrase returns the stored passphrase, creating it on first use.
func (p *Provisioner) Passphrase() (string, error) {
	return p.getOrCreate(PassphraseName, PassphraseLength)
}

// Salt returns the stored salt, creating it on first use.
func (p *Provisioner) Salt() (string, error) {
	return p.getOrCreate(SaltName, SaltLength)
}

// Material returns both values.
func (p *Provisioner) Material() (Material, error) {
	passphrase, err := p.Passphrase()
	if err != nil {
		return Material{}, err
	}
	salt, err := p.Salt()
	if err != nil {
		return Material{}, err
	}
	return Material{Passphrase: passphrase, Salt: salt}, nil
}

// Status reports which entries already exist without creating anything.
type Status struct {
	PassphrasePresent bool
	SaltPresent       bool
}

// Status inspects the store.
func (p *Provisioner) Status() (Status, error) {
	var st Status
	var err error
	if _, st.PassphrasePresent, err = p.store.Get(PassphraseName); err != nil {
		return Status{}, fmt.Errorf("%w: read %s: %v", ErrSecretUnavailable, PassphraseName, err)
	}
	if _, st.SaltPresent, err = p.store.Get(SaltName); err != nil {
		return Status{}, fmt.Errorf("%w: read %s: %v", ErrSecretUnavailable, SaltName, err)
	}
	return st, nil
}

func (p *Provisioner) getOrCreate(name string, length int) (string, error) {
	provisionMu.Lock()
	defer provisionMu.Unlock()

	value, found, err := p.store.Get(name)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrSecretUnavailable, name, err)
	}
	if found {
		return value, nil
	}

	value, err = p.random(length)
	if err != nil {
		return "", fmt.Errorf("%w: generate %s: %v", ErrSecretUnavailable, name, err)
	}
	if err := p.store.Set(name, Account, value); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", ErrSecretUnavailable, name, err)
	}

	p.logger.Info("created secret", "name", name)
	return value, nil
}

// RandomString draws n characters uniformly from Alphabet using crypto/rand.
func RandomString(n int) (string, error) {
	limit := big.NewInt(int64(len(Alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = Alphabet[idx.Int64()]
	}
	return string(out), nil
}
