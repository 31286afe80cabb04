package domain

import "time"

// KnowledgeSource is an ingested reference corpus (a commentary, a statute collection, a practice guide).
// Ingestion is handled elsewhere; this service only reads sources.
type KnowledgeSource struct {
	ID        string
	Name      string
	Category  string
	Active    bool
	Processed bool
	Summary   string
	OriginURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasSummary reports whether a precomputed summary is available.
func (s *KnowledgeSource) HasSummary() bool {
	return s.Summary != ""
}

// SourceChunk is a slice of a knowledge source's text.
type SourceChunk struct {
	ID         string
	SourceID   string
	ChunkIndex int
	Heading    string
	Content    string
}
