package port

import "txtvec/internal/domain"

// DocumentSource enumerates the documents of a corpus.
type DocumentSource interface {
	Documents(root string) ([]domain.Document, error)
}
