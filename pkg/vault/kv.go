package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// KV is the key-value collaborator the vault persists into. The catalog's
// config table satisfies it.
type KV interface {
	GetConfig(ctx context.Context, key string) (value string, found bool, err error)
	SetConfig(ctx context.Context, key, value string) error
}

// KeyringKV stores vault entries in the operating system keychain
type KeyringKV struct {
	Service string
}

// NewKeyringKV checks that a keychain is reachable before returning
func NewKeyringKV(service string) (*KeyringKV, error) {
	const probe = "availability_probe"
	if err := keyring.Set(service, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(service, probe)

	return &KeyringKV{Service: service}, nil
}

func (k *KeyringKV) GetConfig(ctx context.Context, key string) (string, bool, error) {
	v, err := keyring.Get(k.Service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s from keyring: %w", key, err)
	}
	return v, true, nil
}

func (k *KeyringKV) SetConfig(ctx context.Context, key, value string) error {
	if err := keyring.Set(k.Service, key, value); err != nil {
		return fmt.Errorf("failed to store %s in keyring: %w", key, err)
	}
	return nil
}

// MemoryKV is an in-memory KV for tests
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string]string

	// Error injection for testing
	GetError error
	SetError error
}

// NewMemoryKV creates an empty in-memory store
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string]string)}
}

func (m *MemoryKV) GetConfig(ctx context.Context, key string) (string, bool, error) {
	if m.GetError != nil {
		return "", false, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryKV) SetConfig(ctx context.Context, key, value string) error {
	if m.SetError != nil {
		return m.SetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}
