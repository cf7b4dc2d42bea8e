package service

import (
	"context"
	"errors"

	"insurecalc-backend/models"
	"insurecalc-backend/repository"
)

var errHistoryNotSet = errors.New("history repository not set")

// History returns the stored calculations, most recent first
func (s *CalculationService) History(ctx context.Context) ([]models.HistoryEntry, error) {
	if s.historyRepo == nil {
		return nil, errHistoryNotSet
	}
	return s.historyRepo.List(ctx), nil
}

// DeleteHistoryEntry removes one entry and returns what is left. Unknown ids
// are ignored.
func (s *CalculationService) DeleteHistoryEntry(ctx context.Context, id int64) ([]models.HistoryEntry, error) {
	if s.historyRepo == nil {
		return nil, errHistoryNotSet
	}
	entries, err := s.historyRepo.Remove(ctx, id)
	if err != nil {
		return nil, err
	}
	s.metrics.SetHistorySize(len(entries))
	return entries, nil
}

// ClearHistory removes every entry
func (s *CalculationService) ClearHistory(ctx context.Context) error {
	if s.historyRepo == nil {
		return errHistoryNotSet
	}
	if err := s.historyRepo.Clear(ctx); err != nil {
		return err
	}
	s.metrics.SetHistorySize(0)
	return nil
}

// CredentialStatus describes the remembered key without exposing it
type CredentialStatus struct {
	Remembered  bool   `json:"remembered"`
	Fingerprint string `json:"fingerprint,omitempty"`
	HasDefault  bool   `json:"hasDefault"`
}

// CredentialStatus reports whether a key is remembered
func (s *CalculationService) CredentialStatus(ctx context.Context) CredentialStatus {
	status := CredentialStatus{HasDefault: s.defaultAPIKey != ""}
	if s.credentialRepo == nil {
		return status
	}
	if cred := s.credentialRepo.Load(ctx); cred.APIKey != "" {
		status.Remembered = true
		status.Fingerprint = repository.Fingerprint(cred.APIKey)
	}
	return status
}

// RememberAPIKey stores or forgets a key according to remember
func (s *CalculationService) RememberAPIKey(ctx context.Context, apiKey string, remember bool) error {
	if s.credentialRepo == nil {
		return errors.New("credential repository not set")
	}
	return s.credentialRepo.Save(ctx, apiKey, remember)
}

// ForgetAPIKey removes the remembered key
func (s *CalculationService) ForgetAPIKey(ctx context.Context) error {
	if s.credentialRepo == nil {
		return errors.New("credential repository not set")
	}
	return s.credentialRepo.Clear(ctx)
}
