package secrets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// GenerateIdentity creates an X25519 key pair and writes it to path with 0600.
// It does nothing if the file already exists.
func GenerateIdentity(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generate age identity: %w", err)
	}
	content := fmt.Sprintf("# created by hypauto\n# public key: %s\n%s\n",
		identity.Recipient().String(), identity.String())

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write age key: %w", err)
	}
	return nil
}

// LoadIdentity reads the first X25519 identity from path.
func LoadIdentity(path string) (*age.X25519Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open age key: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse age identities: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in %s", path)
	}
	id, ok := identities[0].(*age.X25519Identity)
	if !ok {
		return nil, fmt.Errorf("unexpected identity type in %s", path)
	}
	return id, nil
}

// AgeStore keeps the PIN age-encrypted in a file, keyed by a local identity.
type AgeStore struct {
	identityPath string
	pinPath      string
}

// NewAgeStore returns a store using the identity at identityPath and the
// ciphertext at pinPath.
func NewAgeStore(identityPath, pinPath string) *AgeStore {
	return &AgeStore{identityPath: identityPath, pinPath: pinPath}
}

// SetPIN encrypts pin to the store's identity, creating the identity if needed.
func (s *AgeStore) SetPIN(pin string) error {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return fmt.Errorf("empty PIN")
	}
	if err := GenerateIdentity(s.identityPath); err != nil {
		return err
	}
	id, err := LoadIdentity(s.identityPath)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, id.Recipient())
	if err != nil {
		return fmt.Errorf("age encrypt init: %w", err)
	}
	if _, err := io.WriteString(w, pin); err != nil {
		return fmt.Errorf("age encrypt write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("age encrypt close: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.pinPath), 0o755); err != nil {
		return fmt.Errorf("create PIN directory: %w", err)
	}
	tmp := s.pinPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write PIN: %w", err)
	}
	return os.Rename(tmp, s.pinPath)
}

// PIN decrypts the stored PIN. It returns ErrNoPIN when nothing was stored.
func (s *AgeStore) PIN(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.pinPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoPIN
		}
		return "", fmt.Errorf("read PIN: %w", err)
	}
	id, err := LoadIdentity(s.identityPath)
	if err != nil {
		return "", err
	}
	r, err := age.Decrypt(bytes.NewReader(data), id)
	if err != nil {
		return "", fmt.Errorf("age decrypt: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read decrypted: %w", err)
	}
	return string(plain), nil
}

// Clear removes the stored PIN. The identity is kept.
func (s *AgeStore) Clear() error {
	if err := os.Remove(s.pinPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
