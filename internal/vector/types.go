// Package vector stores per-figure chunk embeddings in an HNSW graph
// alongside the chunk text, metadata, and BM25 token list.
//
// Each figure owns one Collection persisted as a directory of three files:
// the exported HNSW graph, its gob id-mapping sidecar, and a gob record
// file holding text, metadata, and tokens keyed by chunk id. The record
// file is the source the BM25 cache rebuilds from.
package vector

import "context"

// ChunkMetadata describes the provenance of one stored chunk.
type ChunkMetadata struct {
	// Filename is the stored (sanitized) file name.
	Filename string
	// OriginalFilename is the name the file was uploaded under.
	OriginalFilename string
	// FileType is the declared type (pdf, txt, docx).
	FileType string
	// FileSize is the raw upload size in bytes.
	FileSize int64
	// TextLength is the extracted text length in runes.
	TextLength int
	// ChunkIndex is this chunk's position within the document.
	ChunkIndex int
	// TotalChunks is the document's chunk count.
	TotalChunks int
	// StartChar and EndChar are rune offsets into the normalized text.
	StartChar int
	EndChar   int
	// CharCount is EndChar - StartChar.
	CharCount int
}

// Record is one stored chunk: its text, provenance, and the token list the
// sparse index consumes.
type Record struct {
	Text     string
	Metadata ChunkMetadata
	Tokens   []string
}

// QueryResult is one dense search hit.
type QueryResult struct {
	ID string
	// Similarity is the cosine similarity in [-1, 1] (unit vectors make the
	// practical range [0, 1] for natural text).
	Similarity float32
	Record     Record
}

// Searcher is the dense-retrieval surface the search engine consumes.
type Searcher interface {
	Query(ctx context.Context, vector []float32, k int) ([]QueryResult, error)
	Get(id string) (Record, bool)
	Count() int
}
