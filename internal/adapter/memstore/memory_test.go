package memstore

import (
	"errors"
	"sync"
	"testing"

	"txtvec/internal/domain"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()

	err := s.PutPassages([]domain.StoredPassage{
		{ID: 0, Source: "b.txt", ChunkIndex: 0, Text: "one"},
		{ID: 1, Source: "a.txt", ChunkIndex: 0, Text: "two"},
		{ID: 2, Source: "b.txt", ChunkIndex: 1, Text: "three"},
	})
	if err != nil {
		t.Fatal(err)
	}

	p, err := s.GetPassage(2)
	if err != nil || p.Text != "three" {
		t.Errorf("GetPassage(2) = %+v, %v", p, err)
	}
	if _, err := s.GetPassage(5); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	sources, _ := s.ListSources()
	if len(sources) != 2 || sources[0].Source != "a.txt" || sources[1].Passages != 2 {
		t.Errorf("unexpected sources %+v", sources)
	}
	if n, _ := s.Count(); n != 3 {
		t.Errorf("expected 3 passages, got %d", n)
	}

	if err := s.PutPassages([]domain.StoredPassage{{ID: 3, Source: "c.txt"}, {ID: -1, Source: "c.txt"}}); err == nil {
		t.Error("expected error for negative id")
	}
	if n, _ := s.Count(); n != 3 {
		t.Errorf("rejected batch should not be stored, count %d", n)
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				id := w*25 + i
				if err := s.PutPassages([]domain.StoredPassage{{ID: id, Source: "s.txt"}}); err != nil {
					t.Error(err)
				}
				if _, err := s.GetPassage(id); err != nil {
					t.Error(err)
				}
			}
		}(w)
	}
	wg.Wait()

	sources, _ := s.ListSources()
	if len(sources) != 1 || sources[0].Passages != 100 {
		t.Errorf("unexpected sources %+v", sources)
	}
}
