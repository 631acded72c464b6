package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/bdougie/filmstrip/internal/fileutils"
	"github.com/bdougie/filmstrip/internal/models"
)

// Storage records finished descriptions
type Storage interface {
	// Save persists a single description
	Save(ctx context.Context, d *models.Description) error

	// Close releases any held resources
	Close() error
}

// JSONStorage appends descriptions to a JSON array file
type JSONStorage struct {
	mu     sync.Mutex
	path   string
	pretty bool
}

// NewJSONStorage creates a file-backed store at path
func NewJSONStorage(path string, pretty bool) *JSONStorage {
	return &JSONStorage{path: path, pretty: pretty}
}

// Save appends d to the file, rewriting it atomically
func (s *JSONStorage) Save(ctx context.Context, d *models.Description) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return err
	}
	existing = append(existing, *d)

	if err := fileutils.WriteJSONFileAtomic(s.path, existing, s.pretty); err != nil {
		return fmt.Errorf("failed to save descriptions: %w", err)
	}
	return nil
}

// Load returns every description recorded so far
func (s *JSONStorage) Load() ([]models.Description, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *JSONStorage) load() ([]models.Description, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptions file: %w", err)
	}

	var out []models.Description
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal existing descriptions: %w", err)
	}
	return out, nil
}

func (s *JSONStorage) Close() error {
	return nil
}
