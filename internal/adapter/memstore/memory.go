package memstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"txtvec/internal/domain"
	"txtvec/internal/port"
)

// MemoryStore is a PassageStore that lives only as long as the process.
type MemoryStore struct {
	mu       sync.RWMutex
	passages map[int]domain.StoredPassage
	sources  map[string]domain.SourceInfo
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		passages: make(map[int]domain.StoredPassage),
		sources:  make(map[string]domain.SourceInfo),
	}
}

func (s *MemoryStore) PutPassages(passages []domain.StoredPassage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, p := range passages {
		if p.ID < 0 {
			return fmt.Errorf("passage with negative id %d", p.ID)
		}
	}
	for _, p := range passages {
		s.passages[p.ID] = p
		info := s.sources[p.Source]
		info.Source = p.Source
		info.Passages++
		info.IngestedAt = now
		s.sources[p.Source] = info
	}
	return nil
}

func (s *MemoryStore) GetPassage(id int) (domain.StoredPassage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.passages[id]
	if !ok {
		return domain.StoredPassage{}, fmt.Errorf("passage %d: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (s *MemoryStore) ListSources() ([]domain.SourceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sources := make([]domain.SourceInfo, 0, len(s.sources))
	for _, info := range s.sources {
		sources = append(sources, info)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Source < sources[j].Source })
	return sources, nil
}

func (s *MemoryStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.passages), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var _ port.PassageStore = (*MemoryStore)(nil)
