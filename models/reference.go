package models

import (
	"github.com/google/uuid"
)

// UnavailableReferenceText is the passage handed to prompt assembly when the
// knowledge base cannot be queried
const UnavailableReferenceText = "Error: knowledge base not ready."

// ReferenceMatch is a knowledge-base passage returned for a chunk query
type ReferenceMatch struct {
	ID          uuid.UUID `json:"id,omitempty"`
	Category    string    `json:"category"`
	Content     string    `json:"content"`
	Source      string    `json:"source,omitempty"`
	Distance    float64   `json:"distance,omitempty"` // Vector similarity distance
	Unavailable bool      `json:"unavailable,omitempty"`
}

// UnavailableReference is the fail-closed sentinel returned instead of an error
func UnavailableReference() ReferenceMatch {
	return ReferenceMatch{Content: UnavailableReferenceText, Unavailable: true}
}

// ReferencePassage is a knowledge-base row as written by the ingestion tool
type ReferencePassage struct {
	ID             uuid.UUID
	Category       string
	SourceDocument string
	ChunkIndex     int
	Content        string
	Embedding      []float32
	Metadata       map[string]interface{}
}
