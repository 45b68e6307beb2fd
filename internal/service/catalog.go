package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"tablepick-backend/internal/domain"
)

// StaticCatalog is a CandidateSource over a fixed in-memory item list,
// typically loaded from a JSON file at startup. Candidate ordering is the
// catalog's ordering, so every scope deals items in the same sequence.
type StaticCatalog struct {
	items []domain.Candidate
}

func NewStaticCatalog(items []domain.Candidate) *StaticCatalog {
	return &StaticCatalog{items: items}
}

// LoadCatalogFile reads a JSON array of candidates from disk.
func LoadCatalogFile(path string) ([]domain.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var items []domain.Candidate
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	return items, nil
}

func (c *StaticCatalog) Candidates(_ context.Context, _ string, exclude map[string]bool, limit int) ([]domain.Candidate, error) {
	candidates := make([]domain.Candidate, 0, limit)
	for _, item := range c.items {
		if exclude[item.ItemID] {
			continue
		}
		candidates = append(candidates, item)
		if len(candidates) == limit {
			break
		}
	}
	return candidates, nil
}
