package domain

import "time"

// Document is one source text handed to ingestion.
type Document struct {
	ID   string
	Text string
}

// Metadata is what the index keeps next to each vector.
type Metadata struct {
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
}

// IndexEntry is a single stored vector.
type IndexEntry struct {
	ID       int
	Vector   []float32
	Metadata Metadata
}

// SearchHit is one ranked result from a vector search.
type SearchHit struct {
	ID       int
	Score    float64
	Metadata Metadata
}

// InsertResult reports the outcome of one item in a batch insert.
type InsertResult struct {
	ID  int
	Err error
}

// StoredPassage is a passage as retained by the passage catalog, keyed by
// the index entry id it was inserted under.
type StoredPassage struct {
	ID         int    `json:"id"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// SourceInfo summarizes what the catalog holds for one source document.
type SourceInfo struct {
	Source     string    `json:"source"`
	Passages   int       `json:"passages"`
	IngestedAt time.Time `json:"ingested_at"`
}

// PassageRef is a display-ready reference to a search result.
type PassageRef struct {
	Rank       int     `json:"rank"`
	ID         int     `json:"id"`
	Score      float64 `json:"score"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text,omitempty"`
}
