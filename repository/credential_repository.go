package repository

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/blake2b"

	"insurecalc-backend/models"
	"insurecalc-backend/storage"
)

const (
	CredentialKey         = "insuranceCalc_apiKey"
	CredentialRememberKey = "insuranceCalc_apiKey_remember"
)

// obfuscationKey is XORed over the stored API key. This is obfuscation only:
// anyone with the storage contents and this constant can recover the key.
const obfuscationKey = "InsuranceCalc2024!"

// CredentialRepository handles the remembered API key
type CredentialRepository struct {
	store storage.Storage
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(store storage.Storage) *CredentialRepository {
	return &CredentialRepository{store: store}
}

// Save stores the key when remember is set and the key is non-empty;
// otherwise both keys are removed.
func (r *CredentialRepository) Save(ctx context.Context, apiKey string, remember bool) error {
	if !remember || apiKey == "" {
		return r.Clear(ctx)
	}

	if err := r.store.Put(ctx, CredentialKey, []byte(Obfuscate(apiKey))); err != nil {
		return fmt.Errorf("failed to save API key: %w", err)
	}
	if err := r.store.Put(ctx, CredentialRememberKey, []byte("true")); err != nil {
		return fmt.Errorf("failed to save API key: %w", err)
	}
	return nil
}

// Load returns the remembered key. A missing flag, a missing key or an
// undecodable value all yield an empty credential.
func (r *CredentialRepository) Load(ctx context.Context) models.StoredCredential {
	flag, err := r.store.Get(ctx, CredentialRememberKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("Failed to read API key flag", "error", err)
		}
		return models.StoredCredential{}
	}
	if string(flag) != "true" {
		return models.StoredCredential{}
	}

	raw, err := r.store.Get(ctx, CredentialKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("Failed to read API key", "error", err)
		}
		return models.StoredCredential{}
	}

	key, err := Deobfuscate(string(raw))
	if err != nil || key == "" {
		slog.Warn("Stored API key could not be decoded", "error", err)
		return models.StoredCredential{}
	}
	return models.StoredCredential{APIKey: key, Remember: true}
}

// Clear removes the stored key and its flag
func (r *CredentialRepository) Clear(ctx context.Context) error {
	var errs []error
	if err := r.store.Delete(ctx, CredentialKey); err != nil {
		errs = append(errs, err)
	}
	if err := r.store.Delete(ctx, CredentialRememberKey); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to clear API key: %w", err)
	}
	return nil
}

// Obfuscate XORs the key with obfuscationKey and base64-encodes the result.
func Obfuscate(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString(xorKey([]byte(apiKey)))
}

// Deobfuscate reverses Obfuscate
func Deobfuscate(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode stored key: %w", err)
	}
	return string(xorKey(raw)), nil
}

func xorKey(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[i] ^ obfuscationKey[i%len(obfuscationKey)]
	}
	return out
}

// Fingerprint identifies a key in logs and the UI without revealing it.
func Fingerprint(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])[:12]
}
