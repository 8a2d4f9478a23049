// Package storage seals and opens passphrase-protected data with age and
// writes files atomically.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"filippo.io/age"
	"filippo.io/age/armor"
)

const (
	// ageHeader is the prefix of Age-encrypted files
	ageHeader = "age-encryption.org"

	// MinPassphraseLength is the shortest passphrase accepted for sealing
	MinPassphraseLength = 8
)

var (
	// ErrLocked is returned when encrypted data is read without a passphrase
	ErrLocked = errors.New("data is encrypted but no passphrase is set")

	// ErrIncorrectPassphrase is returned when the passphrase does not open the data
	ErrIncorrectPassphrase = errors.New("incorrect passphrase")

	// ErrPassphraseTooShort is returned when sealing with a passphrase under
	// MinPassphraseLength
	ErrPassphraseTooShort = fmt.Errorf("passphrase must be at least %d characters", MinPassphraseLength)
)

// Vault provides transparent access to age-encrypted data. A vault without a
// passphrase passes plaintext through and refuses encrypted input.
type Vault struct {
	mu         sync.RWMutex
	identity   *age.ScryptIdentity
	recipient  *age.ScryptRecipient
	workFactor int
}

// NewVault creates a vault. An empty passphrase leaves it locked.
func NewVault(passphrase string) (*Vault, error) {
	v := &Vault{}
	if passphrase == "" {
		return v, nil
	}
	if err := v.Unlock(passphrase); err != nil {
		return nil, err
	}
	return v, nil
}

// Unlock sets the passphrase used to open and seal data
func (v *Vault) Unlock(passphrase string) error {
	identity, recipient, err := keys(passphrase, v.workFactor)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.identity = identity
	v.recipient = recipient
	return nil
}

// IsUnlocked returns true if a passphrase is set
func (v *Vault) IsUnlocked() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.identity != nil
}

// Open returns data unchanged unless it is age-encrypted, in which case it is
// decrypted with the vault's passphrase
func (v *Vault) Open(data []byte) ([]byte, error) {
	if !IsEncrypted(data) {
		return data, nil
	}

	v.mu.RLock()
	identity := v.identity
	v.mu.RUnlock()

	if identity == nil {
		return nil, ErrLocked
	}
	return open(data, identity)
}

// Seal encrypts data with the vault's passphrase
func (v *Vault) Seal(data []byte, armored bool) ([]byte, error) {
	v.mu.RLock()
	recipient := v.recipient
	v.mu.RUnlock()

	if recipient == nil {
		return nil, ErrLocked
	}
	return seal(data, recipient, armored)
}

// WriteFile writes a file atomically. With sealed set the content is
// encrypted as binary age while it is written.
func (v *Vault) WriteFile(path string, data []byte, perm os.FileMode, sealed bool) error {
	if !sealed {
		return atomicWrite(path, perm, func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		})
	}

	v.mu.RLock()
	recipient := v.recipient
	v.mu.RUnlock()
	if recipient == nil {
		return ErrLocked
	}

	return atomicWrite(path, perm, func(w io.Writer) error {
		sw, err := newSealWriter(w, recipient, false)
		if err != nil {
			return err
		}
		if _, err := sw.Write(data); err != nil {
			return err
		}
		return sw.Close()
	})
}

// SealWithPassphrase encrypts data with a one-off passphrase
func SealWithPassphrase(data []byte, passphrase string, armored bool) ([]byte, error) {
	_, recipient, err := keys(passphrase, 0)
	if err != nil {
		return nil, err
	}
	return seal(data, recipient, armored)
}

// OpenWithPassphrase decrypts data with a one-off passphrase. Plaintext is
// returned unchanged.
func OpenWithPassphrase(data []byte, passphrase string) ([]byte, error) {
	if !IsEncrypted(data) {
		return data, nil
	}
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}
	return open(data, identity)
}

// IsEncrypted reports whether data is binary or armored age output
func IsEncrypted(data []byte) bool {
	return isAgeEncrypted(data) || isArmored(data)
}

func keys(passphrase string, workFactor int) (*age.ScryptIdentity, *age.ScryptRecipient, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, nil, ErrPassphraseTooShort
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create identity: %w", err)
	}
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create recipient: %w", err)
	}
	if workFactor > 0 {
		recipient.SetWorkFactor(workFactor)
	}
	return identity, recipient, nil
}

// atomicWrite fills a temp file next to path and renames it into place
func atomicWrite(path string, perm os.FileMode, fill func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// isAgeEncrypted checks if data starts with the Age encryption header
func isAgeEncrypted(data []byte) bool {
	return len(data) > len(ageHeader) && string(data[:len(ageHeader)]) == ageHeader
}

func isArmored(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte(armor.Header))
}
