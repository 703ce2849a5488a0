package secrets

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgeStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewAgeStore(filepath.Join(dir, "identity.txt"), filepath.Join(dir, "pin.age"))
	ctx := context.Background()

	_, err := s.PIN(ctx)
	assert.True(t, errors.Is(err, ErrNoPIN))

	require.NoError(t, s.SetPIN(" 123456 "))
	pin, err := s.PIN(ctx)
	require.NoError(t, err)
	assert.Equal(t, "123456", pin)

	raw, err := os.ReadFile(filepath.Join(dir, "pin.age"))
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("123456")), "PIN must not be stored in plaintext")

	info, err := os.Stat(filepath.Join(dir, "identity.txt"))
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	require.NoError(t, s.Clear())
	_, err = s.PIN(ctx)
	assert.True(t, errors.Is(err, ErrNoPIN))
	require.NoError(t, s.Clear(), "clearing twice is fine")
}

func TestAgeStore_RejectsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := NewAgeStore(filepath.Join(dir, "id"), filepath.Join(dir, "pin"))
	assert.Error(t, s.SetPIN("   "))
}

func TestGenerateIdentity_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.txt")
	require.NoError(t, GenerateIdentity(path))
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, GenerateIdentity(path))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

type fixed struct {
	pin string
	err error
}

func (f fixed) PIN(context.Context) (string, error) { return f.pin, f.err }

func TestChain(t *testing.T) {
	ctx := context.Background()
	t.Setenv(PINEnv, "")

	pin, err := Chain{EnvProvider{}, fixed{pin: "4321"}}.PIN(ctx)
	require.NoError(t, err)
	assert.Equal(t, "4321", pin)

	t.Setenv(PINEnv, "9999")
	pin, err = Chain{EnvProvider{}, fixed{pin: "4321"}}.PIN(ctx)
	require.NoError(t, err)
	assert.Equal(t, "9999", pin)

	_, err = Chain{fixed{err: ErrNoPIN}}.PIN(ctx)
	assert.True(t, errors.Is(err, ErrNoPIN))

	boom := errors.New("keyring locked")
	_, err = Chain{fixed{err: boom}, fixed{pin: "1"}}.PIN(ctx)
	assert.True(t, errors.Is(err, boom))
}
