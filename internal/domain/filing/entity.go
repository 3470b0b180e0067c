package filing

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"finresearch/internal/domain/quarter"
)

// Passage is one indexed chunk of a parsed quarterly report
type Passage struct {
	ID         uuid.UUID `db:"id"`
	Company    string    `db:"company"`
	Year       int       `db:"year"`
	Quarter    int       `db:"quarter"`
	Document   string    `db:"document"`
	Page       int       `db:"page"`
	ChunkIndex int       `db:"chunk_index"`
	Content    string    `db:"content"`

	// Embedding metadata (queries must use the same model)
	Embedding           pgvector.Vector `db:"embedding"`
	EmbeddingModel      string          `db:"embedding_model"`
	EmbeddingDimensions int             `db:"embedding_dimensions"`

	CreatedAt time.Time `db:"created_at"`
}

// Period returns the passage's quarter
func (p Passage) Period() quarter.Quarter {
	return quarter.Quarter{Year: p.Year, Q: p.Quarter}
}

// ScoredPassage is a search hit with its cosine similarity
type ScoredPassage struct {
	Passage
	Similarity float64 `db:"similarity"`
}

// SearchQuery describes one similarity search
type SearchQuery struct {
	Company   string
	Embedding pgvector.Vector
	From      quarter.Quarter
	To        quarter.Quarter
	Limit     int
}

// NewPassageID derives a stable ID from document, page and chunk.
// Re-indexing a file replaces its rows.
func NewPassageID(company, document string, page, chunk int) uuid.UUID {
	key := fmt.Sprintf("%s|%s|%d|%d", strings.ToLower(company), path.Clean(document), page, chunk)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key))
}
