package port

// Splitter breaks a document's text into ordered, bounded fragments.
type Splitter interface {
	Split(text string) []string
}

// Normalizer rewrites text before it is split.
type Normalizer interface {
	Normalize(text string) string
}
