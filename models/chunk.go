package models

import "time"

// Chunk is a retrieved unit of document text. SequenceIndex is the 1-based
// retrieval rank and is what answer citations like [2] refer to.
type Chunk struct {
	Content       string  `json:"content" bson:"content"`
	Source        string  `json:"source" bson:"source"`
	Page          int     `json:"page" bson:"page"`
	Score         float64 `json:"score" bson:"-"`
	SequenceIndex int     `json:"sequence_index" bson:"-"`
}

// StoredChunk is the persisted form of a chunk in the chunks collection.
// The ingestion pipeline writes these; retrieval only reads them.
type StoredChunk struct {
	Content    string    `bson:"content"`
	Source     string    `bson:"source"`
	Page       int       `bson:"page"`
	ChunkIndex int       `bson:"chunk_index"`
	IngestedAt time.Time `bson:"ingested_at"`
}
