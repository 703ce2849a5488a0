// Package secrets supplies the e-signature PIN without ever keeping it in
// plaintext on disk.
package secrets

import (
	"context"
	"errors"
	"os"
	"strings"
)

// ErrNoPIN is returned when a provider has no PIN to offer.
var ErrNoPIN = errors.New("no PIN configured")

// PINEnv is the environment variable read by EnvProvider.
const PINEnv = "HYPAUTO_PIN"

// SecretProvider hands out the PIN on demand.
type SecretProvider interface {
	PIN(ctx context.Context) (string, error)
}

// EnvProvider reads the PIN from HYPAUTO_PIN.
type EnvProvider struct{}

func (EnvProvider) PIN(ctx context.Context) (string, error) {
	if v := strings.TrimSpace(os.Getenv(PINEnv)); v != "" {
		return v, nil
	}
	return "", ErrNoPIN
}

// Chain asks each provider in turn and returns the first PIN found.
type Chain []SecretProvider

func (c Chain) PIN(ctx context.Context) (string, error) {
	for _, p := range c {
		pin, err := p.PIN(ctx)
		if err == nil && pin != "" {
			return pin, nil
		}
		if err != nil && !errors.Is(err, ErrNoPIN) {
			return "", err
		}
	}
	return "", ErrNoPIN
}
