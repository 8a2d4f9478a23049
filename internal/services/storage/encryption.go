package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// sealWriter encrypts everything written to it. Close flushes the age
// payload and then the armor trailer, in that order.
type sealWriter struct {
	payload io.WriteCloser
	armor   io.WriteCloser
}

func newSealWriter(dst io.Writer, recipient age.Recipient, armored bool) (*sealWriter, error) {
	sw := &sealWriter{}
	if armored {
		sw.armor = armor.NewWriter(dst)
		dst = sw.armor
	}

	payload, err := age.Encrypt(dst, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt: %w", err)
	}
	sw.payload = payload
	return sw, nil
}

func (sw *sealWriter) Write(p []byte) (int, error) {
	return sw.payload.Write(p)
}

func (sw *sealWriter) Close() error {
	if err := sw.payload.Close(); err != nil {
		return fmt.Errorf("failed to encrypt: %w", err)
	}
	if sw.armor != nil {
		return sw.armor.Close()
	}
	return nil
}

func seal(data []byte, recipient age.Recipient, armored bool) ([]byte, error) {
	var buf bytes.Buffer
	sw, err := newSealWriter(&buf, recipient, armored)
	if err != nil {
		return nil, err
	}
	if _, err := sw.Write(data); err != nil {
		return nil, fmt.Errorf("failed to encrypt: %w", err)
	}
	if err := sw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// open decrypts binary or armored age data. A passphrase mismatch is
// reported as ErrIncorrectPassphrase.
func open(data []byte, identity age.Identity) ([]byte, error) {
	var src io.Reader = bytes.NewReader(data)
	if isArmored(data) {
		src = armor.NewReader(src)
	}

	r, err := age.Decrypt(src, identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, ErrIncorrectPassphrase
		}
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plain, nil
}
