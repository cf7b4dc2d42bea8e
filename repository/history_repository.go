package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"insurecalc-backend/models"
	"insurecalc-backend/storage"
)

const (
	// HistoryKey is the storage key holding the JSON-encoded history list
	HistoryKey = "insuranceCalculatorHistory"

	// MaxHistoryEntries caps the list; the oldest entries are dropped first
	MaxHistoryEntries = 50
)

// HistoryRepository handles persistence of the calculation history
type HistoryRepository struct {
	store storage.Storage
	now   func() time.Time
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(store storage.Storage) *HistoryRepository {
	return &HistoryRepository{store: store, now: time.Now}
}

// List returns the history, most recent first. Missing or unreadable data
// yields an empty list.
func (r *HistoryRepository) List(ctx context.Context) []models.HistoryEntry {
	entries, err := r.load(ctx)
	if err != nil {
		slog.Warn("Failed to load history, treating as empty", "error", err)
		return []models.HistoryEntry{}
	}
	return entries
}

// Record prepends an entry and truncates the list. ID and Timestamp are
// assigned here; amounts are rounded to cents.
func (r *HistoryRepository) Record(ctx context.Context, entry models.HistoryEntry) (models.HistoryEntry, error) {
	entries, err := r.load(ctx)
	if err != nil {
		// a corrupt list is replaced rather than blocking new entries
		slog.Warn("Discarding unreadable history", "error", err)
		entries = nil
	}

	now := r.now()
	entry.ID = now.UnixMilli()
	if len(entries) > 0 && entry.ID <= entries[0].ID {
		entry.ID = entries[0].ID + 1
	}
	entry.Timestamp = now.Format(models.TimestampLayout)
	entry.InitialAmount = models.RoundCents(entry.InitialAmount)
	entry.InsuranceAmount = models.RoundCents(entry.InsuranceAmount)
	entry.PatientAmount = models.RoundCents(entry.PatientAmount)
	if entry.Explanation != nil && *entry.Explanation == "" {
		entry.Explanation = nil
	}

	if len(entries) >= MaxHistoryEntries {
		entries = entries[:MaxHistoryEntries-1]
	}
	entries = append([]models.HistoryEntry{entry}, entries...)

	if err := r.save(ctx, entries); err != nil {
		return models.HistoryEntry{}, err
	}
	return entry, nil
}

// Remove deletes the entry with the given id and returns the remaining list.
// An unknown id leaves the list unchanged.
func (r *HistoryRepository) Remove(ctx context.Context, id int64) ([]models.HistoryEntry, error) {
	entries := r.List(ctx)

	kept := make([]models.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return entries, nil
	}

	if err := r.save(ctx, kept); err != nil {
		return nil, err
	}
	return kept, nil
}

// Clear drops every entry
func (r *HistoryRepository) Clear(ctx context.Context) error {
	if err := r.store.Delete(ctx, HistoryKey); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func (r *HistoryRepository) load(ctx context.Context) ([]models.HistoryEntry, error) {
	raw, err := r.store.Get(ctx, HistoryKey)
	if errors.Is(err, storage.ErrNotFound) {
		return []models.HistoryEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var entries []models.HistoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	return entries, nil
}

func (r *HistoryRepository) save(ctx context.Context, entries []models.HistoryEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := r.store.Put(ctx, HistoryKey, raw); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}
