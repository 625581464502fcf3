package vault

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	errs "feedharvest/pkg/errors"
	"feedharvest/pkg/models"
)

// Cookies maps cookie names to values as exported from a browser
type Cookies map[string]string

// Status describes what the vault holds for a platform
type Status struct {
	Configured bool `json:"configured"`
	Stale      bool `json:"stale"`
}

// Vault encrypts per-platform session cookies at rest and tracks whether
// the platform has rejected them.
type Vault struct {
	kv  KV
	key []byte
}

// New creates a vault. hexKey is the operator key; the AES-256 key is its
// SHA-256 digest.
func New(kv KV, hexKey string) (*Vault, error) {
	if hexKey == "" {
		return nil, errors.New("vault: encryption key is required")
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("vault: encryption key must be hex: %w", err)
	}
	sum := sha256.Sum256(raw)

	return &Vault{kv: kv, key: sum[:]}, nil
}

func cookiesKey(p models.Platform) string { return p.Short() + "_cookies" }
func staleKey(p models.Platform) string   { return p.Short() + "_cookies_stale" }

// Store encrypts and writes the cookies, then clears the stale flag
func (v *Vault) Store(ctx context.Context, platform models.Platform, cookies Cookies) error {
	plaintext, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}

	blob, err := v.encrypt(plaintext)
	if err != nil {
		return err
	}

	if err := v.kv.SetConfig(ctx, cookiesKey(platform), blob); err != nil {
		return fmt.Errorf("failed to store %s cookies: %w", platform, err)
	}
	if err := v.kv.SetConfig(ctx, staleKey(platform), "false"); err != nil {
		return fmt.Errorf("failed to clear %s stale flag: %w", platform, err)
	}
	return nil
}

// Get returns the decrypted cookies. found is false when nothing was ever
// stored. A blob that cannot be opened yields an error wrapping
// errors.ErrVaultDecrypt and never a partial map.
func (v *Vault) Get(ctx context.Context, platform models.Platform) (Cookies, bool, error) {
	blob, ok, err := v.kv.GetConfig(ctx, cookiesKey(platform))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s cookies: %w", platform, err)
	}
	if !ok || blob == "" {
		return nil, false, nil
	}

	plaintext, err := v.decrypt(blob)
	if err != nil {
		return nil, false, fmt.Errorf("%s cookies: %w: %v", platform, errs.ErrVaultDecrypt, err)
	}

	var cookies Cookies
	if err := json.Unmarshal(plaintext, &cookies); err != nil {
		return nil, false, fmt.Errorf("%s cookies: %w: %v", platform, errs.ErrVaultDecrypt, err)
	}
	if cookies == nil {
		return nil, false, fmt.Errorf("%s cookies: %w: not a cookie map", platform, errs.ErrVaultDecrypt)
	}
	return cookies, true, nil
}

// MarkStale flags the platform's cookies as rejected. The blob is untouched.
func (v *Vault) MarkStale(ctx context.Context, platform models.Platform) error {
	if err := v.kv.SetConfig(ctx, staleKey(platform), "true"); err != nil {
		return fmt.Errorf("failed to mark %s cookies stale: %w", platform, err)
	}
	return nil
}

// IsStale reports whether MarkStale was called since the last Store
func (v *Vault) IsStale(ctx context.Context, platform models.Platform) (bool, error) {
	val, _, err := v.kv.GetConfig(ctx, staleKey(platform))
	if err != nil {
		return false, fmt.Errorf("failed to read %s stale flag: %w", platform, err)
	}
	return val == "true", nil
}

// Status reports whether cookies are configured and whether they are stale
// without decrypting them.
func (v *Vault) Status(ctx context.Context, platform models.Platform) (Status, error) {
	blob, ok, err := v.kv.GetConfig(ctx, cookiesKey(platform))
	if err != nil {
		return Status{}, fmt.Errorf("failed to read %s cookies: %w", platform, err)
	}
	stale, err := v.IsStale(ctx, platform)
	if err != nil {
		return Status{}, err
	}
	return Status{Configured: ok && blob != "", Stale: stale}, nil
}

// encrypt produces base64(IV || AES-256-CBC(PKCS7(plaintext)))
func (v *Vault) encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (v *Vault) decrypt(blob string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(data) < 2*aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("invalid ciphertext length %d", len(data))
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	iv, ct := data[:aes.BlockSize], data[aes.BlockSize:]
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)

	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(plain) {
		return nil, errors.New("plaintext is not valid UTF-8")
	}
	return plain, nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(append([]byte(nil), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, errors.New("invalid padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
