package models

// Embedding is a vector produced by an embedding model. An empty
// Embedding marks a chunk that failed to embed.
type Embedding []float32

// Chunk is a window of tokens taken from the input content
type Chunk struct {
	Index int
	// Start and End delimit the token window, End is exclusive
	Start int
	End   int
	Text  string
}

// TokenCount returns the number of tokens in the chunk window.
func (c Chunk) TokenCount() int {
	return c.End - c.Start
}

// ChunkResult is the outcome of embedding one chunk: either Embedding is
// set or Err describes why the chunk failed.
type ChunkResult struct {
	Chunk
	Embedding Embedding
	Err       error
}

// Failed reports whether the chunk could not be embedded.
func (r ChunkResult) Failed() bool {
	return r.Err != nil
}

// Page is the plain text of one page, slide or sheet of a document
type Page struct {
	Number  int
	Content string
}

// SearchResult is a stored chunk matched by a similarity search
type SearchResult struct {
	ID         string
	Source     string
	PageNumber int
	ChunkIndex int
	Content    string
	Similarity float32
}
