package services

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"document-insights-backend/internal/config"
	"document-insights-backend/models"
)

// Retriever is the chunk retrieval collaborator: given a query it returns the
// k most relevant chunks, ranked. Rank order defines SequenceIndex, which is
// the citation numbering basis.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]models.Chunk, error)
}

// MongoRetriever reads the chunks collection the ingestion pipeline maintains.
// With a text index available it uses $text scoring; otherwise it falls back
// to a keyword-overlap scan over all chunks.
type MongoRetriever struct {
	chunks  *mongo.Collection
	useText bool
}

func NewMongoRetriever(db *mongo.Database, cfg *config.Config) *MongoRetriever {
	return &MongoRetriever{
		chunks:  db.Collection("chunks"),
		useText: cfg.TextSearchEnable || cfg.TextSearchIndex != "",
	}
}

func (r *MongoRetriever) Search(ctx context.Context, query string, k int) ([]models.Chunk, error) {
	if r.useText {
		chunks, err := r.textSearch(ctx, query, k)
		if err == nil {
			return chunks, nil
		}
		// Text index may be missing on older deployments; degrade to scan.
		r.useText = false
	}
	return r.keywordSearch(ctx, query, k)
}

func (r *MongoRetriever) textSearch(ctx context.Context, query string, k int) ([]models.Chunk, error) {
	filter := bson.M{"$text": bson.M{"$search": query}}
	opts := options.Find().
		SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}, "content": 1, "source": 1, "page": 1}).
		SetSort(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetLimit(int64(k))

	cursor, err := r.chunks.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}
	defer cursor.Close(ctx)

	var results []models.Chunk
	for cursor.Next(ctx) {
		var doc struct {
			Content string  `bson:"content"`
			Source  string  `bson:"source"`
			Page    int     `bson:"page"`
			Score   float64 `bson:"score"`
		}
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		results = append(results, models.Chunk{
			Content: doc.Content,
			Source:  doc.Source,
			Page:    doc.Page,
			Score:   doc.Score,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("text search cursor failed: %w", err)
	}

	return rankChunks(results), nil
}

// keywordSearch scores every stored chunk by query word occurrence counts.
func (r *MongoRetriever) keywordSearch(ctx context.Context, query string, k int) ([]models.Chunk, error) {
	cursor, err := r.chunks.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("chunk scan failed: %w", err)
	}
	defer cursor.Close(ctx)

	queryWords := strings.Fields(strings.ToLower(query))

	var scored []models.Chunk
	for cursor.Next(ctx) {
		var doc models.StoredChunk
		if err := cursor.Decode(&doc); err != nil {
			continue
		}

		score := 0
		chunkText := strings.ToLower(doc.Content)
		for _, word := range queryWords {
			if strings.Contains(chunkText, word) {
				score += strings.Count(chunkText, word)
			}
		}
		if score == 0 {
			continue
		}

		scored = append(scored, models.Chunk{
			Content: doc.Content,
			Source:  doc.Source,
			Page:    doc.Page,
			Score:   float64(score),
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("chunk scan cursor failed: %w", err)
	}

	// Sort by score (descending)
	for i := 0; i < len(scored); i++ {
		for j := i + 1; j < len(scored); j++ {
			if scored[j].Score > scored[i].Score {
				scored[i], scored[j] = scored[j], scored[i]
			}
		}
	}

	if len(scored) > k {
		scored = scored[:k]
	}
	return rankChunks(scored), nil
}

// rankChunks assigns the 1-based retrieval rank citations refer to.
func rankChunks(chunks []models.Chunk) []models.Chunk {
	for i := range chunks {
		chunks[i].SequenceIndex = i + 1
	}
	return chunks
}
