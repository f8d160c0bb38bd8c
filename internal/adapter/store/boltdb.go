package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"txtvec/internal/domain"
	"txtvec/internal/port"
)

var (
	bucketPassages = []byte("passages")
	bucketSources  = []byte("sources")
	bucketMeta     = []byte("meta")
	keyIndexID     = []byte("index_id")
)

// BoltStore is the passage catalog of a corpus: passage text by index
// entry id, per-source counts, and the schema and index identity of the
// data it holds.
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketPassages, bucketSources, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// passageKey encodes ids big-endian so cursor order is id order.
func passageKey(id int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

// PutPassages stores passages and bumps the count of each source in one
// transaction.
func (s *BoltStore) PutPassages(passages []domain.StoredPassage) error {
	if len(passages) == 0 {
		return nil
	}
	now := s.now().UTC()

	return s.db.Update(func(tx *bbolt.Tx) error {
		pb := tx.Bucket(bucketPassages)
		sb := tx.Bucket(bucketSources)

		added := make(map[string]int)
		var order []string
		for _, p := range passages {
			if p.ID < 0 {
				return fmt.Errorf("passage with negative id %d", p.ID)
			}
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			if err := pb.Put(passageKey(p.ID), data); err != nil {
				return err
			}
			if _, ok := added[p.Source]; !ok {
				order = append(order, p.Source)
			}
			added[p.Source]++
		}

		for _, source := range order {
			info := domain.SourceInfo{Source: source}
			if existing := sb.Get([]byte(source)); existing != nil {
				if err := json.Unmarshal(existing, &info); err != nil {
					return fmt.Errorf("source %s: %w", source, err)
				}
			}
			info.Passages += added[source]
			info.IngestedAt = now
			data, err := json.Marshal(info)
			if err != nil {
				return err
			}
			if err := sb.Put([]byte(source), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) GetPassage(id int) (domain.StoredPassage, error) {
	var p domain.StoredPassage
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketPassages).Get(passageKey(id))
		if data == nil {
			return fmt.Errorf("passage %d: %w", id, domain.ErrNotFound)
		}
		return json.Unmarshal(data, &p)
	})
	return p, err
}

// ListSources returns the ingested sources ordered by name.
func (s *BoltStore) ListSources() ([]domain.SourceInfo, error) {
	var sources []domain.SourceInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSources).ForEach(func(k, v []byte) error {
			var info domain.SourceInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return fmt.Errorf("source %s: %w", k, err)
			}
			sources = append(sources, info)
			return nil
		})
	})
	return sources, err
}

func (s *BoltStore) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketPassages).Stats().KeyN
		return nil
	})
	return n, err
}

// IndexID returns the id of the index file this catalog belongs to, or
// uuid.Nil if none was recorded.
func (s *BoltStore) IndexID() (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyIndexID)
		if data == nil {
			return nil
		}
		var err error
		id, err = uuid.FromBytes(data)
		return err
	})
	return id, err
}

func (s *BoltStore) SetIndexID(id uuid.UUID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyIndexID, id[:])
	})
}

var _ port.PassageStore = (*BoltStore)(nil)
