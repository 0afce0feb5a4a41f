package mock

import "github.com/poiesic/ragpilot/core"

var cannedTexts = []struct {
	text   string
	source string
	page   int
}{
	{"Retrieval-augmented generation combines a retriever with a generator so answers are grounded in documents.", "demo-guide.pdf", 1},
	{"Documents are split into overlapping chunks before they are embedded and stored in the vector index.", "demo-guide.pdf", 2},
	{"The chunk size controls how much text each vector represents; the overlap preserves context across boundaries.", "demo-guide.pdf", 2},
	{"Semantic search ranks chunks by similarity between the query embedding and the stored embeddings.", "demo-guide.pdf", 3},
	{"Answers cite the retrieved chunks so readers can verify the source material.", "demo-guide.pdf", 4},
}

// CannedChunks returns up to limit synthetic chunks in descending score order.
func CannedChunks(limit int) []core.Chunk {
	if limit > len(cannedTexts) {
		limit = len(cannedTexts)
	}
	if limit <= 0 {
		return []core.Chunk{}
	}

	chunks := make([]core.Chunk, 0, limit)
	for i := range limit {
		c := cannedTexts[i]
		page := c.page
		chunks = append(chunks, core.Chunk{
			ID:    core.IDFromContent(c.text),
			Text:  c.text,
			Score: 0.95 - 0.1*float64(i),
			Metadata: core.ChunkMetadata{
				Source: c.source,
				Page:   &page,
			},
		})
	}
	return chunks
}
