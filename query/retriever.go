package query

import (
	"context"

	"github.com/tmc/langchaingo/schema"

	"github.com/poiesic/ragpilot/core"
	"github.com/poiesic/ragpilot/executor"
)

// Retriever exposes the search effect of one project as a langchaingo
// retriever, so chains built on langchaingo can use the backend index.
type Retriever struct {
	exec      executor.Executor
	projectID core.ProjectID
	topK      int
}

var _ schema.Retriever = (*Retriever)(nil)

// NewRetriever creates a retriever returning up to topK documents of
// projectID.
func NewRetriever(exec executor.Executor, projectID core.ProjectID, topK int) (*Retriever, error) {
	if exec == nil {
		return nil, ErrExecutorRequired
	}
	if err := core.ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	if err := core.ValidateTopK(topK); err != nil {
		return nil, err
	}
	return &Retriever{exec: exec, projectID: projectID, topK: topK}, nil
}

// GetRelevantDocuments searches the project index for query.
func (r *Retriever) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	query, err := core.ValidateQuestion(query)
	if err != nil {
		return nil, err
	}

	chunks, err := r.exec.Search(ctx, r.projectID, query, r.topK)
	if err != nil {
		return nil, err
	}
	return ChunksToDocuments(chunks), nil
}

// ChunksToDocuments converts retrieved chunks, keeping their order.
func ChunksToDocuments(chunks []core.Chunk) []schema.Document {
	docs := make([]schema.Document, 0, len(chunks))
	for _, chunk := range chunks {
		metadata := map[string]any{"id": uint64(chunk.ID)}
		if chunk.Metadata.Source != "" {
			metadata["source"] = chunk.Metadata.Source
		}
		if chunk.Metadata.Page != nil {
			metadata["page"] = *chunk.Metadata.Page
		}
		docs = append(docs, schema.Document{
			PageContent: chunk.Text,
			Metadata:    metadata,
			Score:       float32(chunk.Score),
		})
	}
	return docs
}
