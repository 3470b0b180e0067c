package filings

import (
	"context"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"finresearch/internal/adapters/embeddings"
	"finresearch/internal/agents"
	"finresearch/internal/domain/filing"
	"finresearch/internal/domain/quarter"
	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
)

var _ agents.SemanticSearch = (*Service)(nil)

// Service searches and maintains the report passage index
type Service struct {
	repository filing.Repository
	embedder   embeddings.Provider
	company    string
	log        *logger.Logger
}

// NewService creates a filings service scoped to one company
func NewService(repository filing.Repository, embedder embeddings.Provider, company string, log *logger.Logger) *Service {
	return &Service{
		repository: repository,
		embedder:   embedder,
		company:    company,
		log:        log.With("component", "filings_service"),
	}
}

// Search embeds text and returns the topK most similar passages inside filter
func (s *Service) Search(ctx context.Context, text string, filter agents.PassageFilter, topK int) ([]agents.PassageHit, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "search text is empty")
	}
	if topK <= 0 {
		topK = 5
	}

	start := time.Now()
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}

	hits, err := s.repository.SearchSimilar(ctx, filing.SearchQuery{
		Company:   s.company,
		Embedding: pgvector.NewVector(vector),
		From:      filter.From,
		To:        filter.To,
		Limit:     topK,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), err.Error())
		}
		return nil, errors.Wrap(errors.ErrUnavailable, err.Error())
	}

	out := make([]agents.PassageHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, agents.PassageHit{
			Text:     h.Content,
			Score:    h.Similarity,
			Year:     h.Year,
			Quarter:  h.Quarter,
			Document: h.Document,
			Page:     h.Page,
		})
	}

	s.log.Debugw("Passage search",
		"hits", len(out),
		"from", filter.From.String(),
		"to", filter.To.String(),
		"took", time.Since(start),
	)
	return out, nil
}

// Quarters lists the quarters that have indexed passages
func (s *Service) Quarters(ctx context.Context) ([]quarter.Quarter, error) {
	return s.repository.ListQuarters(ctx, s.company)
}

// Count returns the number of indexed passages
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repository.Count(ctx, s.company)
}

// PassageInput is one pre-chunked passage to index
type PassageInput struct {
	Text     string `json:"text"`
	Year     int    `json:"year"`
	Quarter  int    `json:"quarter"`
	Document string `json:"document"`
	Page     int    `json:"page"`
	Chunk    int    `json:"chunk"`
}

// Validate checks the fields the index depends on
func (p PassageInput) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return errors.NewValidationError("text", "must not be empty", p.Text)
	}
	if _, err := quarter.New(p.Year, p.Quarter); err != nil {
		return errors.NewValidationError("quarter", err.Error(), p.Quarter)
	}
	if strings.TrimSpace(p.Document) == "" {
		return errors.NewValidationError("document", "must not be empty", p.Document)
	}
	return nil
}

// Index embeds passages in one batch call and upserts them
func (s *Service) Index(ctx context.Context, inputs []PassageInput) (int, error) {
	if len(inputs) == 0 {
		return 0, nil
	}
	for i, in := range inputs {
		if err := in.Validate(); err != nil {
			return 0, errors.Wrapf(err, "passage %d", i)
		}
	}

	texts := make([]string, len(inputs))
	for i, in := range inputs {
		texts[i] = in.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, errors.Wrap(err, "embed passages")
	}
	if len(vectors) != len(inputs) {
		return 0, errors.Wrapf(errors.ErrInternal, "expected %d vectors, got %d", len(inputs), len(vectors))
	}

	passages := make([]filing.Passage, len(inputs))
	for i, in := range inputs {
		passages[i] = filing.Passage{
			ID:                  filing.NewPassageID(s.company, in.Document, in.Page, in.Chunk),
			Company:             s.company,
			Year:                in.Year,
			Quarter:             in.Quarter,
			Document:            in.Document,
			Page:                in.Page,
			ChunkIndex:          in.Chunk,
			Content:             in.Text,
			Embedding:           pgvector.NewVector(vectors[i]),
			EmbeddingModel:      s.embedder.Name(),
			EmbeddingDimensions: len(vectors[i]),
		}
	}

	if err := s.repository.Upsert(ctx, passages); err != nil {
		return 0, err
	}
	return len(passages), nil
}
