package port

import "txtvec/internal/domain"

// PassageStore retains passage text keyed by index entry id so search
// results can be shown with their text.
type PassageStore interface {
	PutPassages(passages []domain.StoredPassage) error

	GetPassage(id int) (domain.StoredPassage, error)

	ListSources() ([]domain.SourceInfo, error)

	Count() (int, error)

	Close() error
}

// PassageLookup is the read side used at query time.
type PassageLookup interface {
	GetPassage(id int) (domain.StoredPassage, error)
}
